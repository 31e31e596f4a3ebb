package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/showcase/internal/application"
	"github.com/hitoshi/showcase/internal/catalog"
	"github.com/hitoshi/showcase/internal/middleware"
	"github.com/hitoshi/showcase/internal/model"
)

// ApplicationServiceInterface は応募ハンドラーが必要とするサービスインターフェース。
type ApplicationServiceInterface interface {
	Submit(ctx context.Context, userID string, in application.SubmitInput, photo io.Reader) (*model.Application, error)
	List(ctx context.Context) ([]*model.Application, error)
	Get(ctx context.Context, id string) (*model.Application, error)
	UpdateStatus(ctx context.Context, id, status string) (*model.Application, error)
}

// ApplicationHandler は応募のHTTPハンドラー。
type ApplicationHandler struct {
	service ApplicationServiceInterface
	config  ListConfig
}

// NewApplicationHandler はApplicationHandlerを生成する。
func NewApplicationHandler(service ApplicationServiceInterface, config ListConfig) *ApplicationHandler {
	return &ApplicationHandler{service: service, config: config}
}

type applicationResponse struct {
	ID                  string    `json:"id"`
	ListingKind         string    `json:"listing_kind"`
	ListingID           string    `json:"listing_id"`
	ApplicantName       string    `json:"applicant_name"`
	Email               string    `json:"email"`
	Phone               string    `json:"phone"`
	Address             string    `json:"address,omitempty"`
	HighestLevelOfStudy string    `json:"highest_level_of_study,omitempty"`
	ALevelCombination   string    `json:"a_level_combination,omitempty"`
	ALevelPoints        string    `json:"a_level_points,omitempty"`
	Budget              string    `json:"budget,omitempty"`
	Message             string    `json:"message,omitempty"`
	PhotoURL            string    `json:"photo_url,omitempty"`
	Status              string    `json:"status"`
	SubmittedAt         time.Time `json:"submitted_at"`
}

func toApplicationResponse(a *model.Application) applicationResponse {
	return applicationResponse{
		ID:                  a.ID,
		ListingKind:         string(a.ListingKind),
		ListingID:           a.ListingID,
		ApplicantName:       a.ApplicantName,
		Email:               a.Email,
		Phone:               a.Phone,
		Address:             a.Address,
		HighestLevelOfStudy: a.HighestLevelOfStudy,
		ALevelCombination:   a.ALevelCombination,
		ALevelPoints:        a.ALevelPoints,
		Budget:              a.Budget,
		Message:             a.Message,
		PhotoURL:            a.PhotoURL,
		Status:              string(a.Status),
		SubmittedAt:         a.SubmittedAt,
	}
}

// Submit は応募・問い合わせを受け付ける。
// POST /api/applications（multipart/form-data、写真は photo）
func (h *ApplicationHandler) Submit(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	if err := parseMultipart(w, r, h.config.UploadMaxBytes); err != nil {
		respondDecodeError(w, err)
		return
	}
	in := application.SubmitInput{
		ListingKind:         formString(r, "listing_kind"),
		ListingID:           formString(r, "listing_id"),
		ApplicantName:       formString(r, "applicant_name"),
		Email:               formString(r, "email"),
		Phone:               formString(r, "phone"),
		Address:             formString(r, "address"),
		HighestLevelOfStudy: formString(r, "highest_level_of_study"),
		ALevelCombination:   formString(r, "a_level_combination"),
		ALevelPoints:        formString(r, "a_level_points"),
		Budget:              formString(r, "budget"),
		Message:             r.PostFormValue("message"),
	}

	photo, closePhoto, err := formFile(r, "photo")
	if err != nil {
		writeInvalidRequest(w, "photo")
		return
	}
	defer closePhoto()

	app, err := h.service.Submit(r.Context(), userID, in, photo)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toApplicationResponse(app))
}

// List は管理画面の応募一覧を返す。
// GET /api/admin/applications?q=&kind=&status=&page=
// status は pending / approved / rejected の完全一致。
func (h *ApplicationHandler) List(w http.ResponseWriter, r *http.Request) {
	apps, err := h.service.List(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	now := h.config.clock()
	renderList(w, r, catalog.NewSnapshot(apps, now()), viewConfig{
		pageSize:      h.config.PageSize,
		now:           now,
		categoryParam: "kind",
		facets:        []string{model.FacetStatus},
	}, toApplicationResponse)
}

// Get は応募詳細を返す。
// GET /api/admin/applications/{id}
func (h *ApplicationHandler) Get(w http.ResponseWriter, r *http.Request) {
	app, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationResponse(app))
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// UpdateStatus は応募ステータスを変更する。
// PUT /api/admin/applications/{id}/status
func (h *ApplicationHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		writeInvalidRequest(w, err.Error())
		return
	}

	app, err := h.service.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationResponse(app))
}
