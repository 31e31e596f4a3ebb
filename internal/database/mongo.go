package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoCollections はMongoDB上のコレクション名。
var MongoCollections = struct {
	Products     string
	Scholarships string
	Applications string
}{
	Products:     "products",
	Scholarships: "scholarships",
	Applications: "applications",
}

// ConnectMongo はMongoDBに接続し、プライマリへの疎通を確認する。
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetAppName("showcase").
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}
	return client, nil
}

// EnsureMongoIndexes は一覧の並び順と取り込み重複排除に必要なインデックスを作成する。
// 作成済みの場合は何もしない。
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	scholarships := db.Collection(MongoCollections.Scholarships)
	_, err := scholarships.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "program", Value: 1}, {Key: "_id", Value: 1}}},
		{
			Keys: bson.D{{Key: "source", Value: 1}, {Key: "external_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetPartialFilterExpression(bson.M{
				"source":      bson.M{"$gt": ""},
				"external_id": bson.M{"$gt": ""},
			}),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create scholarship indexes: %w", err)
	}

	applications := db.Collection(MongoCollections.Applications)
	_, err = applications.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "submitted_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create application indexes: %w", err)
	}
	return nil
}
