// Package product はストアフロント商品のデータアクセスを提供する。
package product

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/showcase/internal/model"
	"github.com/hitoshi/showcase/internal/repository"
	"github.com/hitoshi/showcase/internal/security"
	"github.com/hitoshi/showcase/internal/upload"
	"github.com/hitoshi/showcase/internal/validation"
)

// Input は商品の登録・更新内容。
// 画像はアップロードファイルまたは ImageURL のどちらかで指定する。
type Input struct {
	Name        string  `json:"name" validate:"notblank,max=200"`
	Description string  `json:"description" validate:"max=5000"`
	Price       float64 `json:"price" validate:"gte=0"`
	Category    string  `json:"category" validate:"notblank,max=100"`
	InStock     bool    `json:"in_stock"`
	ImageURL    string  `json:"image_url" validate:"omitempty,max=8000000"`
}

// Service は商品のサービス層。
// 変更系の操作は全て変更後（削除の場合は削除前）のレコードを返す。
// 呼び出し側はそれをスナップショットへ反映する。
type Service struct {
	repo        repository.ProductRepository
	sanitizer   security.ListingSanitizer
	uploadLimit int64
	now         func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.ProductRepository, sanitizer security.ListingSanitizer, uploadLimit int64) *Service {
	return &Service{
		repo:        repo,
		sanitizer:   sanitizer,
		uploadLimit: uploadLimit,
		now:         time.Now,
	}
}

// Create は商品を登録する。画像は必須。
func (s *Service) Create(ctx context.Context, in Input, image io.Reader) (*model.Product, error) {
	p := &model.Product{}
	if err := s.apply(p, in, image); err != nil {
		return nil, err
	}
	if p.ImageURL == "" {
		return nil, model.NewValidationError("image is required")
	}

	now := s.now().UTC()
	p.ID = uuid.NewString()
	p.CreatedAt = now
	p.UpdatedAt = now

	if err := s.repo.Create(ctx, p); err != nil {
		slog.Error("商品の登録に失敗しました", slog.String("error", err.Error()))
		return nil, model.NewIOFailure("product.create", err)
	}
	return p, nil
}

// Update は商品の内容を置き換える。画像を指定しない場合は既存の画像を維持する。
func (s *Service) Update(ctx context.Context, id string, in Input, image io.Reader) (*model.Product, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	updated := *current
	if err := s.apply(&updated, in, image); err != nil {
		return nil, err
	}
	updated.UpdatedAt = s.now().UTC()

	ok, err := s.repo.Update(ctx, &updated)
	if err != nil {
		slog.Error("商品の更新に失敗しました", slog.String("product_id", id), slog.String("error", err.Error()))
		return nil, model.NewIOFailure("product.update", err)
	}
	if !ok {
		return nil, model.NewProductNotFoundError(id)
	}
	return &updated, nil
}

// Delete は商品を削除し、削除したレコードを返す。
func (s *Service) Delete(ctx context.Context, id string) (*model.Product, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	ok, err := s.repo.Delete(ctx, id)
	if err != nil {
		slog.Error("商品の削除に失敗しました", slog.String("product_id", id), slog.String("error", err.Error()))
		return nil, model.NewIOFailure("product.delete", err)
	}
	if !ok {
		return nil, model.NewProductNotFoundError(id)
	}
	return current, nil
}

// Get は指定IDの商品を返す。
func (s *Service) Get(ctx context.Context, id string) (*model.Product, error) {
	if !validation.IsID(id) {
		return nil, model.NewProductNotFoundError(id)
	}
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, model.NewIOFailure("product.get", err)
	}
	if p == nil {
		return nil, model.NewProductNotFoundError(id)
	}
	return p, nil
}

// ListAll は全商品を登録順に返す。スナップショットの取得元として使われる。
func (s *Service) ListAll(ctx context.Context) ([]*model.Product, error) {
	items, err := s.repo.ListAll(ctx)
	if err != nil {
		slog.Error("商品一覧の取得に失敗しました", slog.String("error", err.Error()))
		return nil, model.NewIOFailure("product.list", err)
	}
	return items, nil
}

// apply は検証・無害化した入力を p に反映する。
func (s *Service) apply(p *model.Product, in Input, image io.Reader) error {
	if err := validation.Struct(in); err != nil {
		return err
	}

	p.Name = s.sanitizer.PlainText(in.Name)
	p.Description = s.sanitizer.Description(in.Description)
	p.Price = in.Price
	p.Category = s.sanitizer.PlainText(in.Category)
	p.InStock = in.InStock

	switch {
	case image != nil:
		uri, err := upload.ToDataURI(image, s.uploadLimit)
		if err != nil {
			return upload.AsAPIError(err)
		}
		p.ImageURL = uri
	case in.ImageURL != "":
		if !s.sanitizer.ImageURL(in.ImageURL) {
			return model.NewValidationError("image_url must be an https URL or an image data URI")
		}
		p.ImageURL = in.ImageURL
	}
	return nil
}
