// Package application は奨学金への応募と商品への問い合わせを扱う。
//
// 応募は提出時に1度だけ作成され、その後に管理者が変更できるのはステータスのみ。
// 応募はアプリケーションから削除されない。
package application

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/showcase/internal/catalog"
	"github.com/hitoshi/showcase/internal/model"
	"github.com/hitoshi/showcase/internal/notify"
	"github.com/hitoshi/showcase/internal/repository"
	"github.com/hitoshi/showcase/internal/upload"
	"github.com/hitoshi/showcase/internal/validation"
)

// SubmitInput は応募フォームの入力内容。
type SubmitInput struct {
	ListingKind         string `json:"listing_kind" validate:"required,oneof=product scholarship"`
	ListingID           string `json:"listing_id" validate:"required,max=64"`
	ApplicantName       string `json:"applicant_name" validate:"notblank,max=200"`
	Email               string `json:"email" validate:"required,email,max=254"`
	Phone               string `json:"phone" validate:"notblank,max=50"`
	Address             string `json:"address" validate:"max=500"`
	HighestLevelOfStudy string `json:"highest_level_of_study" validate:"omitempty,oneof=O-Level A-Level Bachelor Master PhD"`
	ALevelCombination   string `json:"a_level_combination" validate:"max=100"`
	ALevelPoints        string `json:"a_level_points" validate:"omitempty,numeric,max=5"`
	Budget              string `json:"budget" validate:"omitempty,numeric,max=15"`
	Message             string `json:"message" validate:"max=5000"`
}

// ProductLookup は問い合わせ先商品の取得。
type ProductLookup interface {
	Get(ctx context.Context, id string) (*model.Product, error)
}

// ScholarshipLookup は応募先奨学金の取得。
type ScholarshipLookup interface {
	Get(ctx context.Context, id string) (*model.Scholarship, error)
}

// Recorder は応募に関するメトリクスの記録先。
type Recorder interface {
	IncApplicationsSubmitted(kind string)
	IncApplicationStatusChange(status string)
}

type noopRecorder struct{}

func (noopRecorder) IncApplicationsSubmitted(string)   {}
func (noopRecorder) IncApplicationStatusChange(string) {}

// Service は応募のサービス層。
type Service struct {
	repo         repository.ApplicationRepository
	products     ProductLookup
	scholarships ScholarshipLookup
	notifier     notify.Notifier
	recorder     Recorder
	uploadLimit  int64
	now          func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// recorder が nil の場合はメトリクスを記録しない。
func NewService(
	repo repository.ApplicationRepository,
	products ProductLookup,
	scholarships ScholarshipLookup,
	notifier notify.Notifier,
	recorder Recorder,
	uploadLimit int64,
) *Service {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	return &Service{
		repo:         repo,
		products:     products,
		scholarships: scholarships,
		notifier:     notifier,
		recorder:     recorder,
		uploadLimit:  uploadLimit,
		now:          time.Now,
	}
}

// Submit は応募を受け付ける。
//   - 奨学金への応募は写真・住所・最終学歴が必須で、募集中の奨学金にのみ応募できる
//   - 商品への問い合わせは写真を任意で添付できる
//
// 作成された応募のステータスは常に pending。
func (s *Service) Submit(ctx context.Context, userID string, in SubmitInput, photo io.Reader) (*model.Application, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	kind := model.ListingKind(in.ListingKind)
	now := s.now().UTC()

	listingName, err := s.checkListing(ctx, kind, in.ListingID, now)
	if err != nil {
		return nil, err
	}

	if kind == model.ListingKindScholarship {
		if strings.TrimSpace(in.Address) == "" || in.HighestLevelOfStudy == "" {
			return nil, model.NewValidationError("address and highest_level_of_study are required")
		}
		if photo == nil {
			return nil, model.NewValidationError("photo is required")
		}
	}

	app := &model.Application{
		ID:                  uuid.NewString(),
		ListingKind:         kind,
		ListingID:           in.ListingID,
		UserID:              userID,
		ApplicantName:       strings.TrimSpace(in.ApplicantName),
		Email:               strings.TrimSpace(in.Email),
		Phone:               strings.TrimSpace(in.Phone),
		Address:             strings.TrimSpace(in.Address),
		HighestLevelOfStudy: in.HighestLevelOfStudy,
		ALevelCombination:   strings.TrimSpace(in.ALevelCombination),
		ALevelPoints:        in.ALevelPoints,
		Budget:              in.Budget,
		Message:             strings.TrimSpace(in.Message),
		Status:              model.ApplicationStatusPending,
		SubmittedAt:         now,
	}

	if photo != nil {
		uri, err := upload.ToDataURI(photo, s.uploadLimit)
		if err != nil {
			return nil, upload.AsAPIError(err)
		}
		app.PhotoURL = uri
	}

	if err := s.repo.Create(ctx, app); err != nil {
		slog.Error("応募の保存に失敗しました",
			slog.String("listing_id", app.ListingID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewIOFailure("application.submit", err)
	}

	s.recorder.IncApplicationsSubmitted(string(kind))
	if err := s.notifier.ApplicationSubmitted(ctx, app, listingName); err != nil {
		slog.Warn("応募通知の送信に失敗しました",
			slog.String("application_id", app.ID),
			slog.String("error", err.Error()),
		)
	}
	return app, nil
}

// checkListing は応募先の掲載が存在し受付可能かを確認し、掲載名を返す。
func (s *Service) checkListing(ctx context.Context, kind model.ListingKind, id string, now time.Time) (string, error) {
	switch kind {
	case model.ListingKindScholarship:
		sc, err := s.scholarships.Get(ctx, id)
		if err != nil {
			return "", err
		}
		if catalog.StatusOf(sc.Deadline, now) != catalog.StatusOpen {
			return "", model.NewScholarshipClosedError(id)
		}
		return sc.Name, nil
	case model.ListingKindProduct:
		p, err := s.products.Get(ctx, id)
		if err != nil {
			return "", err
		}
		return p.Name, nil
	default:
		return "", model.NewListingNotFoundError(id)
	}
}

// List は全応募を新しい順に返す。掲載が削除済みの応募も含む。
func (s *Service) List(ctx context.Context) ([]*model.Application, error) {
	apps, err := s.repo.ListAll(ctx)
	if err != nil {
		slog.Error("応募一覧の取得に失敗しました", slog.String("error", err.Error()))
		return nil, model.NewIOFailure("application.list", err)
	}
	return apps, nil
}

// Get は指定IDの応募を返す。
func (s *Service) Get(ctx context.Context, id string) (*model.Application, error) {
	if !validation.IsID(id) {
		return nil, model.NewApplicationNotFoundError(id)
	}
	app, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, model.NewIOFailure("application.get", err)
	}
	if app == nil {
		return nil, model.NewApplicationNotFoundError(id)
	}
	return app, nil
}

// UpdateStatus は応募のステータスを変更し、変更後の応募を返す。
func (s *Service) UpdateStatus(ctx context.Context, id, status string) (*model.Application, error) {
	next := model.ApplicationStatus(strings.ToLower(strings.TrimSpace(status)))
	if !next.Valid() {
		return nil, model.NewInvalidStatusError(status)
	}

	app, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if app.Status == next {
		return app, nil
	}

	ok, err := s.repo.UpdateStatus(ctx, id, next)
	if err != nil {
		slog.Error("応募ステータスの更新に失敗しました",
			slog.String("application_id", id),
			slog.String("error", err.Error()),
		)
		return nil, model.NewIOFailure("application.update_status", err)
	}
	if !ok {
		return nil, model.NewApplicationNotFoundError(id)
	}

	app.Status = next
	s.recorder.IncApplicationStatusChange(string(next))
	if err := s.notifier.ApplicationStatusChanged(ctx, app); err != nil {
		slog.Warn("ステータス変更通知の送信に失敗しました",
			slog.String("application_id", id),
			slog.String("error", err.Error()),
		)
	}
	return app, nil
}
