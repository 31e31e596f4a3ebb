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

// productDocument はMongoDB上の商品ドキュメント。
type productDocument struct {
	ID          string    `bson:"_id"`
	Name        string    `bson:"name"`
	Description string    `bson:"description"`
	Price       float64   `bson:"price"`
	ImageURL    string    `bson:"image_url"`
	Category    string    `bson:"category"`
	InStock     bool      `bson:"in_stock"`
	CreatedAt   time.Time `bson:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

func toProductDocument(p *model.Product) productDocument {
	return productDocument{
		ID: p.ID, Name: p.Name, Description: p.Description, Price: p.Price, ImageURL: p.ImageURL,
		Category: p.Category, InStock: p.InStock, CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt,
	}
}

func (d productDocument) toModel() *model.Product {
	return &model.Product{
		ID: d.ID, Name: d.Name, Description: d.Description, Price: d.Price, ImageURL: d.ImageURL,
		Category: d.Category, InStock: d.InStock, CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	}
}

// MongoProductRepo はMongoDBを使用した商品リポジトリ。
type MongoProductRepo struct {
	collection *mongo.Collection
}

// NewMongoProductRepo はMongoProductRepoを生成する。
func NewMongoProductRepo(collection *mongo.Collection) *MongoProductRepo {
	return &MongoProductRepo{collection: collection}
}

// Create は商品を登録する。
func (r *MongoProductRepo) Create(ctx context.Context, p *model.Product) error {
	if _, err := r.collection.InsertOne(ctx, toProductDocument(p)); err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	return nil
}

// Update は商品の内容を置き換える。作成日時は維持する。
func (r *MongoProductRepo) Update(ctx context.Context, p *model.Product) (bool, error) {
	result, err := r.collection.UpdateByID(ctx, p.ID, bson.M{"$set": bson.M{
		"name":        p.Name,
		"description": p.Description,
		"price":       p.Price,
		"image_url":   p.ImageURL,
		"category":    p.Category,
		"in_stock":    p.InStock,
		"updated_at":  p.UpdatedAt,
	}})
	if err != nil {
		return false, fmt.Errorf("failed to update product: %w", err)
	}
	return result.MatchedCount > 0, nil
}

// Delete は商品を削除する。
func (r *MongoProductRepo) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, fmt.Errorf("failed to delete product: %w", err)
	}
	return result.DeletedCount > 0, nil
}

// FindByID は指定IDの商品を取得する。見つからない場合はnilを返す。
func (r *MongoProductRepo) FindByID(ctx context.Context, id string) (*model.Product, error) {
	var doc productDocument
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find product: %w", err)
	}
	return doc.toModel(), nil
}

// ListAll は全商品を登録順に返す。
func (r *MongoProductRepo) ListAll(ctx context.Context) ([]*model.Product, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer cursor.Close(ctx)

	var products []*model.Product
	for cursor.Next(ctx) {
		var doc productDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode product: %w", err)
		}
		products = append(products, doc.toModel())
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return products, nil
}

// compile-time interface check
var _ ProductRepository = (*MongoProductRepo)(nil)
