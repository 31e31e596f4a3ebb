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

// scholarshipDocument はMongoDB上の奨学金ドキュメント。
type scholarshipDocument struct {
	ID             string    `bson:"_id"`
	ExternalID     string    `bson:"external_id"`
	Source         string    `bson:"source"`
	Name           string    `bson:"name"`
	Description    string    `bson:"description"`
	Country        string    `bson:"country"`
	Level          string    `bson:"level"`
	FundingType    string    `bson:"funding_type"`
	ImageURL       string    `bson:"image_url"`
	Requirements   []string  `bson:"requirements"`
	Deadline       string    `bson:"deadline"`
	Degree         string    `bson:"degree"`
	GraduationYear string    `bson:"graduation_year"`
	Language       string    `bson:"language"`
	Program        string    `bson:"program"`
	Semester       string    `bson:"semester"`
	Type           string    `bson:"type"`
	University     string    `bson:"university"`
	CreatedAt      time.Time `bson:"created_at"`
	UpdatedAt      time.Time `bson:"updated_at"`
}

func toScholarshipDocument(s *model.Scholarship) scholarshipDocument {
	return scholarshipDocument{
		ID: s.ID, ExternalID: s.ExternalID, Source: s.Source, Name: s.Name, Description: s.Description,
		Country: s.Country, Level: s.Level, FundingType: s.FundingType, ImageURL: s.ImageURL,
		Requirements: s.Requirements, Deadline: s.Deadline, Degree: s.Degree, GraduationYear: s.GraduationYear,
		Language: s.Language, Program: s.Program, Semester: s.Semester, Type: s.Type, University: s.University,
		CreatedAt: s.CreatedAt, UpdatedAt: s.UpdatedAt,
	}
}

func (d scholarshipDocument) toModel() *model.Scholarship {
	return &model.Scholarship{
		ID: d.ID, ExternalID: d.ExternalID, Source: d.Source, Name: d.Name, Description: d.Description,
		Country: d.Country, Level: d.Level, FundingType: d.FundingType, ImageURL: d.ImageURL,
		Requirements: d.Requirements, Deadline: d.Deadline, Degree: d.Degree, GraduationYear: d.GraduationYear,
		Language: d.Language, Program: d.Program, Semester: d.Semester, Type: d.Type, University: d.University,
		CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	}
}

// editableFields は管理者と取り込みが更新できるフィールド。
func (d scholarshipDocument) editableFields() bson.M {
	return bson.M{
		"name":            d.Name,
		"description":     d.Description,
		"country":         d.Country,
		"level":           d.Level,
		"funding_type":    d.FundingType,
		"requirements":    d.Requirements,
		"deadline":        d.Deadline,
		"degree":          d.Degree,
		"graduation_year": d.GraduationYear,
		"language":        d.Language,
		"program":         d.Program,
		"semester":        d.Semester,
		"type":            d.Type,
		"university":      d.University,
		"updated_at":      d.UpdatedAt,
	}
}

// MongoScholarshipRepo はMongoDBを使用した奨学金リポジトリ。
type MongoScholarshipRepo struct {
	collection *mongo.Collection
}

// NewMongoScholarshipRepo はMongoScholarshipRepoを生成する。
func NewMongoScholarshipRepo(collection *mongo.Collection) *MongoScholarshipRepo {
	return &MongoScholarshipRepo{collection: collection}
}

// Create は奨学金を登録する。
func (r *MongoScholarshipRepo) Create(ctx context.Context, s *model.Scholarship) error {
	if _, err := r.collection.InsertOne(ctx, toScholarshipDocument(s)); err != nil {
		return fmt.Errorf("failed to create scholarship: %w", err)
	}
	return nil
}

// CreateBatch は複数件を順序付きで一括登録する。
// 一括登録はトランザクションを使わないため、失敗時は登録済み分を削除して戻す。
func (r *MongoScholarshipRepo) CreateBatch(ctx context.Context, items []*model.Scholarship) error {
	if len(items) == 0 {
		return nil
	}
	docs := make([]interface{}, len(items))
	ids := make([]string, len(items))
	for i, s := range items {
		docs[i] = toScholarshipDocument(s)
		ids[i] = s.ID
	}
	if _, err := r.collection.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true)); err != nil {
		if _, delErr := r.collection.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}}); delErr != nil {
			return fmt.Errorf("failed to insert scholarships: %w (rollback failed: %v)", err, delErr)
		}
		return fmt.Errorf("failed to insert scholarships: %w", err)
	}
	return nil
}

// Update は奨学金の内容を置き換える。
func (r *MongoScholarshipRepo) Update(ctx context.Context, s *model.Scholarship) (bool, error) {
	doc := toScholarshipDocument(s)
	fields := doc.editableFields()
	fields["image_url"] = doc.ImageURL
	result, err := r.collection.UpdateByID(ctx, s.ID, bson.M{"$set": fields})
	if err != nil {
		return false, fmt.Errorf("failed to update scholarship: %w", err)
	}
	return result.MatchedCount > 0, nil
}

// Upsert は(source, external_id)が一致するドキュメントを更新し、なければ登録する。
func (r *MongoScholarshipRepo) Upsert(ctx context.Context, s *model.Scholarship) (bool, error) {
	doc := toScholarshipDocument(s)
	update := bson.M{
		"$set": doc.editableFields(),
		"$setOnInsert": bson.M{
			"_id":        doc.ID,
			"image_url":  doc.ImageURL,
			"created_at": doc.CreatedAt,
		},
	}
	filter := bson.M{"source": doc.Source, "external_id": doc.ExternalID}
	result, err := r.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return false, fmt.Errorf("failed to upsert scholarship: %w", err)
	}
	return result.UpsertedCount > 0, nil
}

// Delete は奨学金を削除する。
func (r *MongoScholarshipRepo) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, fmt.Errorf("failed to delete scholarship: %w", err)
	}
	return result.DeletedCount > 0, nil
}

// DeleteAll は全件を削除する。
func (r *MongoScholarshipRepo) DeleteAll(ctx context.Context) (int64, error) {
	result, err := r.collection.DeleteMany(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to delete scholarships: %w", err)
	}
	return result.DeletedCount, nil
}

// FindByID は指定IDの奨学金を取得する。見つからない場合はnilを返す。
func (r *MongoScholarshipRepo) FindByID(ctx context.Context, id string) (*model.Scholarship, error) {
	var doc scholarshipDocument
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find scholarship: %w", err)
	}
	return doc.toModel(), nil
}

// ListAll は全件を登録順に返す。
func (r *MongoScholarshipRepo) ListAll(ctx context.Context) ([]*model.Scholarship, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	return r.find(ctx, bson.M{}, opts)
}

// ListPage はプログラム名、IDの順にcursorの次からlimit件を返す。
func (r *MongoScholarshipRepo) ListPage(ctx context.Context, cursor string, limit int) (*ScholarshipPage, error) {
	c, err := decodeCursor(cursor)
	if err != nil {
		return nil, &ErrInvalidCursor{Err: err}
	}
	limit = normalizeLimit(limit)

	filter := bson.M{}
	if c != nil {
		filter = bson.M{"$or": bson.A{
			bson.M{"program": bson.M{"$gt": c.Program}},
			bson.M{"program": c.Program, "_id": bson.M{"$gt": c.ID}},
		}}
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "program", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit + 1))

	items, err := r.find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	return buildPage(items, limit), nil
}

// Count は総件数を返す。
func (r *MongoScholarshipRepo) Count(ctx context.Context) (int64, error) {
	n, err := r.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count scholarships: %w", err)
	}
	return n, nil
}

func (r *MongoScholarshipRepo) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*model.Scholarship, error) {
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list scholarships: %w", err)
	}
	defer cursor.Close(ctx)

	var items []*model.Scholarship
	for cursor.Next(ctx) {
		var doc scholarshipDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode scholarship: %w", err)
		}
		items = append(items, doc.toModel())
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return items, nil
}

// compile-time interface check
var _ ScholarshipRepository = (*MongoScholarshipRepo)(nil)
