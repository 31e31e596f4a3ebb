package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/showcase/internal/catalog"
	"github.com/hitoshi/showcase/internal/model"
	"github.com/hitoshi/showcase/internal/repository"
	"github.com/hitoshi/showcase/internal/scholarship"
)

// 奨学金カタログ（カーソル方式）の1ページの件数
const (
	defaultCatalogLimit = 20
	maxCatalogLimit     = 100
)

// importMaxBytes は一括登録で受け付けるJSONの上限。
const importMaxBytes = 10 << 20

// ScholarshipServiceInterface は奨学金ハンドラーが必要とするサービスインターフェース。
type ScholarshipServiceInterface interface {
	Create(ctx context.Context, in scholarship.Input, image io.Reader) (*model.Scholarship, error)
	Update(ctx context.Context, id string, in scholarship.Input, image io.Reader) (*model.Scholarship, error)
	Delete(ctx context.Context, id string) (*model.Scholarship, error)
	DeleteAll(ctx context.Context) (int64, error)
	Get(ctx context.Context, id string) (*model.Scholarship, error)
	ListPage(ctx context.Context, cursor string, limit int) (*repository.ScholarshipPage, error)
	Count(ctx context.Context) (int64, error)
}

// ScholarshipImporter はJSON配列からの一括登録。
type ScholarshipImporter interface {
	Import(ctx context.Context, data []byte, source string) ([]*model.Scholarship, error)
}

// ScholarshipHandler は奨学金のHTTPハンドラー。
type ScholarshipHandler struct {
	service   ScholarshipServiceInterface
	importer  ScholarshipImporter
	snapshots SnapshotSource[*model.Scholarship]
	recorder  ListingQueryRecorder
	config    ListConfig
}

// NewScholarshipHandler はScholarshipHandlerを生成する。
func NewScholarshipHandler(
	service ScholarshipServiceInterface,
	importer ScholarshipImporter,
	snapshots SnapshotSource[*model.Scholarship],
	recorder ListingQueryRecorder,
	config ListConfig,
) *ScholarshipHandler {
	return &ScholarshipHandler{
		service:   service,
		importer:  importer,
		snapshots: snapshots,
		recorder:  recorder,
		config:    config,
	}
}

type scholarshipResponse struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	Country        string    `json:"country"`
	Level          string    `json:"level"`
	FundingType    string    `json:"funding_type"`
	ImageURL       string    `json:"image_url"`
	Requirements   []string  `json:"requirements"`
	Deadline       string    `json:"deadline"`
	Status         string    `json:"status"`
	Degree         string    `json:"degree,omitempty"`
	GraduationYear string    `json:"graduation_year,omitempty"`
	Language       string    `json:"language,omitempty"`
	Program        string    `json:"program,omitempty"`
	Semester       string    `json:"semester,omitempty"`
	Type           string    `json:"type,omitempty"`
	University     string    `json:"university,omitempty"`
	Source         string    `json:"source,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// scholarshipResponder は表示時点の時刻でステータスを導出する変換関数を返す。
func scholarshipResponder(now time.Time) func(*model.Scholarship) scholarshipResponse {
	return func(s *model.Scholarship) scholarshipResponse {
		reqs := s.Requirements
		if reqs == nil {
			reqs = []string{}
		}
		return scholarshipResponse{
			ID:             s.ID,
			Name:           s.Name,
			Description:    s.Description,
			Country:        s.Country,
			Level:          s.Level,
			FundingType:    s.FundingType,
			ImageURL:       s.ImageURL,
			Requirements:   reqs,
			Deadline:       s.Deadline,
			Status:         string(catalog.StatusOf(s.Deadline, now)),
			Degree:         s.Degree,
			GraduationYear: s.GraduationYear,
			Language:       s.Language,
			Program:        s.Program,
			Semester:       s.Semester,
			Type:           s.Type,
			University:     s.University,
			Source:         s.Source,
			CreatedAt:      s.CreatedAt,
			UpdatedAt:      s.UpdatedAt,
		}
	}
}

// List は奨学金一覧を返す。
// GET /api/scholarships?q=&country=&status=&degree=&page=
func (h *ScholarshipHandler) List(w http.ResponseWriter, r *http.Request) {
	snap, err := h.snapshots.Get(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if h.recorder != nil {
		h.recorder.RecordListingQuery("scholarships")
	}
	now := h.config.clock()
	renderList(w, r, snap, viewConfig{
		pageSize:      h.config.PageSize,
		now:           now,
		categoryParam: "country",
		statusParam:   "status",
		facets:        []string{model.FacetDegree},
	}, scholarshipResponder(now()))
}

// Get は奨学金詳細を返す。
// GET /api/scholarships/{id}
func (h *ScholarshipHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scholarshipResponder(h.config.clock()())(s))
}

type catalogPageResponse struct {
	Items      []scholarshipResponse `json:"items"`
	NextCursor string                `json:"next_cursor,omitempty"`
	HasMore    bool                  `json:"has_more"`
	TotalCount int64                 `json:"total_count"`
}

// Catalog はプログラム名順のカーソル方式で奨学金を返す。
// GET /api/scholarships/catalog?cursor=&limit=
func (h *ScholarshipHandler) Catalog(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultCatalogLimit)
	if limit < 1 || limit > maxCatalogLimit {
		limit = defaultCatalogLimit
	}

	page, err := h.service.ListPage(r.Context(), r.URL.Query().Get("cursor"), limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	total, err := h.service.Count(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	toResponse := scholarshipResponder(h.config.clock()())
	items := make([]scholarshipResponse, len(page.Items))
	for i, s := range page.Items {
		items[i] = toResponse(s)
	}
	writeJSON(w, http.StatusOK, catalogPageResponse{
		Items:      items,
		NextCursor: page.NextCursor,
		HasMore:    page.HasMore,
		TotalCount: total,
	})
}

// Create は奨学金を登録する。
// POST /api/admin/scholarships
func (h *ScholarshipHandler) Create(w http.ResponseWriter, r *http.Request) {
	in, image, closeImage, ok := h.readInput(w, r)
	if !ok {
		return
	}
	defer closeImage()

	s, err := h.service.Create(r.Context(), in, image)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	h.snapshots.Merge(s)
	slog.Info("scholarship created", slog.String("scholarship_id", s.ID))
	writeJSON(w, http.StatusCreated, scholarshipResponder(h.config.clock()())(s))
}

// Update は奨学金を更新する。
// PUT /api/admin/scholarships/{id}
func (h *ScholarshipHandler) Update(w http.ResponseWriter, r *http.Request) {
	in, image, closeImage, ok := h.readInput(w, r)
	if !ok {
		return
	}
	defer closeImage()

	s, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), in, image)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	h.snapshots.Merge(s)
	writeJSON(w, http.StatusOK, scholarshipResponder(h.config.clock()())(s))
}

// Delete は奨学金を削除し、削除した奨学金を返す。
// DELETE /api/admin/scholarships/{id}
func (h *ScholarshipHandler) Delete(w http.ResponseWriter, r *http.Request) {
	s, err := h.service.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	h.snapshots.Remove(s.ID)
	writeJSON(w, http.StatusOK, scholarshipResponder(h.config.clock()())(s))
}

// DeleteAll は全奨学金を削除する。
// DELETE /api/admin/scholarships
func (h *ScholarshipHandler) DeleteAll(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.service.DeleteAll(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	h.snapshots.Invalidate()
	slog.Info("all scholarships deleted", slog.Int64("deleted_count", deleted))
	writeJSON(w, http.StatusOK, map[string]int64{"deleted_count": deleted})
}

// Import はJSON配列の奨学金カタログを一括登録する。
// POST /api/admin/scholarships/import（application/json、または multipart の file）
func (h *ScholarshipHandler) Import(w http.ResponseWriter, r *http.Request) {
	var (
		data   []byte
		source = "admin-upload"
		err    error
	)
	if isJSONRequest(r) {
		data, err = readBody(w, r, importMaxBytes)
	} else {
		data, source, err = readImportFile(w, r)
	}
	if err != nil {
		respondDecodeError(w, err)
		return
	}

	items, err := h.importer.Import(r.Context(), data, source)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	h.snapshots.Invalidate()
	writeJSON(w, http.StatusCreated, map[string]int{"imported_count": len(items)})
}

func readImportFile(w http.ResponseWriter, r *http.Request) ([]byte, string, error) {
	if err := parseMultipart(w, r, importMaxBytes); err != nil {
		return nil, "", err
	}
	f, header, err := r.FormFile("file")
	if err != nil {
		return nil, "", model.NewInvalidImportError("file is required")
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, "", err
	}
	return data, header.Filename, nil
}

func (h *ScholarshipHandler) readInput(w http.ResponseWriter, r *http.Request) (in scholarship.Input, image io.Reader, closeImage func(), ok bool) {
	closeImage = func() {}
	if isJSONRequest(r) {
		if err := decodeJSON(w, r, h.config.UploadMaxBytes, &in); err != nil {
			respondDecodeError(w, err)
			return in, nil, closeImage, false
		}
		return in, nil, closeImage, true
	}

	if err := parseMultipart(w, r, h.config.UploadMaxBytes); err != nil {
		respondDecodeError(w, err)
		return in, nil, closeImage, false
	}
	in = scholarship.Input{
		Name:           formString(r, "name"),
		Description:    r.PostFormValue("description"),
		Country:        formString(r, "country"),
		Level:          formString(r, "level"),
		FundingType:    formString(r, "funding_type"),
		Requirements:   formList(r, "requirements"),
		Deadline:       formString(r, "deadline"),
		Degree:         formString(r, "degree"),
		GraduationYear: formString(r, "graduation_year"),
		Language:       formString(r, "language"),
		Program:        formString(r, "program"),
		Semester:       formString(r, "semester"),
		Type:           formString(r, "type"),
		University:     formString(r, "university"),
		ImageURL:       formString(r, "image_url"),
	}

	var err error
	image, closeImage, err = formFile(r, "image")
	if err != nil {
		writeInvalidRequest(w, "image")
		return in, nil, closeImage, false
	}
	return in, image, closeImage, true
}
