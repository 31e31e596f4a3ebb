// Package scholarship は奨学金募集情報のデータアクセスと一括取り込みを提供する。
package scholarship

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/showcase/internal/catalog"
	"github.com/hitoshi/showcase/internal/model"
	"github.com/hitoshi/showcase/internal/repository"
	"github.com/hitoshi/showcase/internal/security"
	"github.com/hitoshi/showcase/internal/upload"
	"github.com/hitoshi/showcase/internal/validation"
)

// PlaceholderImage は画像が指定されていない奨学金に表示する画像。
const PlaceholderImage = "/placeholder-scholarship.jpg"

// Input は奨学金の登録・更新内容。
type Input struct {
	Name           string   `json:"name" validate:"notblank,max=300"`
	Description    string   `json:"description" validate:"max=5000"`
	Country        string   `json:"country" validate:"notblank,max=100"`
	Level          string   `json:"level" validate:"max=100"`
	FundingType    string   `json:"funding_type" validate:"max=100"`
	Requirements   []string `json:"requirements" validate:"max=50,dive,max=500"`
	Deadline       string   `json:"deadline" validate:"notblank,max=50"`
	Degree         string   `json:"degree" validate:"max=100"`
	GraduationYear string   `json:"graduation_year" validate:"max=20"`
	Language       string   `json:"language" validate:"max=100"`
	Program        string   `json:"program" validate:"max=300"`
	Semester       string   `json:"semester" validate:"max=100"`
	Type           string   `json:"type" validate:"max=100"`
	University     string   `json:"university" validate:"max=300"`
	ImageURL       string   `json:"image_url"`
}

// Service は奨学金のサービス層。
type Service struct {
	repo        repository.ScholarshipRepository
	sanitizer   security.ListingSanitizer
	uploadLimit int64
	now         func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.ScholarshipRepository, sanitizer security.ListingSanitizer, uploadLimit int64) *Service {
	return &Service{
		repo:        repo,
		sanitizer:   sanitizer,
		uploadLimit: uploadLimit,
		now:         time.Now,
	}
}

// Create は奨学金を登録する。
func (s *Service) Create(ctx context.Context, in Input, image io.Reader) (*model.Scholarship, error) {
	sc := &model.Scholarship{ImageURL: PlaceholderImage}
	if err := s.apply(sc, in, image); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	sc.ID = uuid.NewString()
	sc.CreatedAt = now
	sc.UpdatedAt = now

	if err := s.repo.Create(ctx, sc); err != nil {
		slog.Error("奨学金の登録に失敗しました", slog.String("error", err.Error()))
		return nil, model.NewIOFailure("scholarship.create", err)
	}
	return sc, nil
}

// Update は奨学金の内容を置き換える。取り込み元の情報と作成日時は維持する。
func (s *Service) Update(ctx context.Context, id string, in Input, image io.Reader) (*model.Scholarship, error) {
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
		slog.Error("奨学金の更新に失敗しました", slog.String("scholarship_id", id), slog.String("error", err.Error()))
		return nil, model.NewIOFailure("scholarship.update", err)
	}
	if !ok {
		return nil, model.NewScholarshipNotFoundError(id)
	}
	return &updated, nil
}

// Delete は奨学金を削除し、削除したレコードを返す。
// この奨学金を参照する応募は残る。
func (s *Service) Delete(ctx context.Context, id string) (*model.Scholarship, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	ok, err := s.repo.Delete(ctx, id)
	if err != nil {
		slog.Error("奨学金の削除に失敗しました", slog.String("scholarship_id", id), slog.String("error", err.Error()))
		return nil, model.NewIOFailure("scholarship.delete", err)
	}
	if !ok {
		return nil, model.NewScholarshipNotFoundError(id)
	}
	return current, nil
}

// DeleteAll は全件を削除し、削除件数を返す。
func (s *Service) DeleteAll(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteAll(ctx)
	if err != nil {
		slog.Error("奨学金の全件削除に失敗しました", slog.String("error", err.Error()))
		return 0, model.NewIOFailure("scholarship.delete_all", err)
	}
	slog.Info("奨学金を全件削除しました", slog.Int64("count", n))
	return n, nil
}

// Get は指定IDの奨学金を返す。
func (s *Service) Get(ctx context.Context, id string) (*model.Scholarship, error) {
	if !validation.IsID(id) {
		return nil, model.NewScholarshipNotFoundError(id)
	}
	sc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, model.NewIOFailure("scholarship.get", err)
	}
	if sc == nil {
		return nil, model.NewScholarshipNotFoundError(id)
	}
	return sc, nil
}

// ListAll は全件を返す。スナップショットの取得元として使われる。
func (s *Service) ListAll(ctx context.Context) ([]*model.Scholarship, error) {
	items, err := s.repo.ListAll(ctx)
	if err != nil {
		slog.Error("奨学金一覧の取得に失敗しました", slog.String("error", err.Error()))
		return nil, model.NewIOFailure("scholarship.list", err)
	}
	return items, nil
}

// ListPage はプログラム名順のカーソルページングで奨学金を返す。
func (s *Service) ListPage(ctx context.Context, cursor string, limit int) (*repository.ScholarshipPage, error) {
	page, err := s.repo.ListPage(ctx, cursor, limit)
	if err != nil {
		var invalid *repository.ErrInvalidCursor
		if errors.As(err, &invalid) {
			return nil, model.NewValidationError("cursor is invalid")
		}
		return nil, model.NewIOFailure("scholarship.list_page", err)
	}
	return page, nil
}

// Count は総件数を返す。
func (s *Service) Count(ctx context.Context) (int64, error) {
	n, err := s.repo.Count(ctx)
	if err != nil {
		return 0, model.NewIOFailure("scholarship.count", err)
	}
	return n, nil
}

func (s *Service) apply(sc *model.Scholarship, in Input, image io.Reader) error {
	if err := validation.Struct(in); err != nil {
		return err
	}
	if _, ok := catalog.ParseDeadline(in.Deadline); !ok {
		return model.NewValidationError("deadline is not a recognizable date")
	}

	sc.Name = s.sanitizer.PlainText(in.Name)
	sc.Description = s.sanitizer.Description(in.Description)
	sc.Country = s.sanitizer.PlainText(in.Country)
	sc.Level = s.sanitizer.PlainText(in.Level)
	sc.FundingType = s.sanitizer.PlainText(in.FundingType)
	sc.Deadline = strings.TrimSpace(in.Deadline)
	sc.Degree = s.sanitizer.PlainText(in.Degree)
	sc.GraduationYear = s.sanitizer.PlainText(in.GraduationYear)
	sc.Language = s.sanitizer.PlainText(in.Language)
	sc.Program = s.sanitizer.PlainText(in.Program)
	sc.Semester = s.sanitizer.PlainText(in.Semester)
	sc.Type = s.sanitizer.PlainText(in.Type)
	sc.University = s.sanitizer.PlainText(in.University)

	sc.Requirements = make([]string, 0, len(in.Requirements))
	for _, r := range in.Requirements {
		if v := s.sanitizer.PlainText(r); v != "" {
			sc.Requirements = append(sc.Requirements, v)
		}
	}

	switch {
	case image != nil:
		uri, err := upload.ToDataURI(image, s.uploadLimit)
		if err != nil {
			return upload.AsAPIError(err)
		}
		sc.ImageURL = uri
	case in.ImageURL != "":
		if !s.sanitizer.ImageURL(in.ImageURL) {
			return model.NewValidationError("image_url must be an https URL or an image data URI")
		}
		sc.ImageURL = in.ImageURL
	}
	return nil
}
