package repository

import (
	"database/sql"

	"go.mongodb.org/mongo-driver/mongo"
)

// ListingStores は掲載と応募のリポジトリ一式。
// 設定された掲載ストア（PostgreSQLまたはMongoDB）に応じて実装を切り替える。
type ListingStores struct {
	Products     ProductRepository
	Scholarships ScholarshipRepository
	Applications ApplicationRepository
}

// NewPostgresListingStores はPostgreSQL実装のリポジトリ一式を生成する。
func NewPostgresListingStores(db *sql.DB) ListingStores {
	return ListingStores{
		Products:     NewPostgresProductRepo(db),
		Scholarships: NewPostgresScholarshipRepo(db),
		Applications: NewPostgresApplicationRepo(db),
	}
}

// NewMongoListingStores はMongoDB実装のリポジトリ一式を生成する。
func NewMongoListingStores(db *mongo.Database) ListingStores {
	return ListingStores{
		Products:     NewMongoProductRepo(db.Collection("products")),
		Scholarships: NewMongoScholarshipRepo(db.Collection("scholarships")),
		Applications: NewMongoApplicationRepo(db.Collection("applications")),
	}
}
