package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/hitoshi/showcase/internal/model"
)

// applicationDocument はMongoDB上の応募ドキュメント。
type applicationDocument struct {
	ID                  string    `bson:"_id"`
	ListingKind         string    `bson:"listing_kind"`
	ListingID           string    `bson:"listing_id"`
	UserID              string    `bson:"user_id,omitempty"`
	ApplicantName       string    `bson:"applicant_name"`
	Email               string    `bson:"email"`
	Phone               string    `bson:"phone"`
	Address             string    `bson:"address"`
	HighestLevelOfStudy string    `bson:"highest_level_of_study"`
	ALevelCombination   string    `bson:"a_level_combination,omitempty"`
	ALevelPoints        string    `bson:"a_level_points,omitempty"`
	Budget              string    `bson:"budget"`
	Message             string    `bson:"message,omitempty"`
	PhotoURL            string    `bson:"photo_url"`
	Status              string    `bson:"status"`
	SubmittedAt         time.Time `bson:"submitted_at"`
}

func (d applicationDocument) toModel() *model.Application {
	return &model.Application{
		ID: d.ID, ListingKind: model.ListingKind(d.ListingKind), ListingID: d.ListingID, UserID: d.UserID,
		ApplicantName: d.ApplicantName, Email: d.Email, Phone: d.Phone, Address: d.Address,
		HighestLevelOfStudy: d.HighestLevelOfStudy, ALevelCombination: d.ALevelCombination,
		ALevelPoints: d.ALevelPoints, Budget: d.Budget, Message: d.Message, PhotoURL: d.PhotoURL,
		Status: model.ApplicationStatus(d.Status), SubmittedAt: d.SubmittedAt,
	}
}

// MongoApplicationRepo はMongoDBを使用した応募リポジトリ。
type MongoApplicationRepo struct {
	collection *mongo.Collection
}

// NewMongoApplicationRepo はMongoApplicationRepoを生成する。
func NewMongoApplicationRepo(collection *mongo.Collection) *MongoApplicationRepo {
	return &MongoApplicationRepo{collection: collection}
}

// Create は応募を登録する。
func (r *MongoApplicationRepo) Create(ctx context.Context, a *model.Application) error {
	doc := applicationDocument{
		ID: a.ID, ListingKind: string(a.ListingKind), ListingID: a.ListingID, UserID: a.UserID,
		ApplicantName: a.ApplicantName, Email: a.Email, Phone: a.Phone, Address: a.Address,
		HighestLevelOfStudy: a.HighestLevelOfStudy, ALevelCombination: a.ALevelCombination,
		ALevelPoints: a.ALevelPoints, Budget: a.Budget, Message: a.Message, PhotoURL: a.PhotoURL,
		Status: string(a.Status), SubmittedAt: a.SubmittedAt,
	}
	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	return nil
}

// FindByID は指定IDの応募を取得する。見つからない場合はnilを返す。
func (r *MongoApplicationRepo) FindByID(ctx context.Context, id string) (*model.Application, error) {
	var doc applicationDocument
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find application: %w", err)
	}
	return doc.toModel(), nil
}

// ListAll は全応募を新しい順に返す。
func (r *MongoApplicationRepo) ListAll(ctx context.Context) ([]*model.Application, error) {
	opts := options.Find().SetSort(bson.D{{Key: "submitted_at", Value: -1}, {Key: "_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	defer cursor.Close(ctx)

	var apps []*model.Application
	for cursor.Next(ctx) {
		var doc applicationDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode application: %w", err)
		}
		apps = append(apps, doc.toModel())
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return apps, nil
}

// UpdateStatus は応募ステータスを更新する。
func (r *MongoApplicationRepo) UpdateStatus(ctx context.Context, id string, status model.ApplicationStatus) (bool, error) {
	result, err := r.collection.UpdateByID(ctx, id, bson.M{"$set": bson.M{"status": string(status)}})
	if err != nil {
		return false, fmt.Errorf("failed to update application status: %w", err)
	}
	return result.MatchedCount > 0, nil
}

// compile-time interface check
var _ ApplicationRepository = (*MongoApplicationRepo)(nil)
