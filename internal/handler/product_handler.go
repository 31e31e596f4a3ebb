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
	"github.com/hitoshi/showcase/internal/product"
)

// ProductServiceInterface は商品ハンドラーが必要とするサービスインターフェース。
type ProductServiceInterface interface {
	Create(ctx context.Context, in product.Input, image io.Reader) (*model.Product, error)
	Update(ctx context.Context, id string, in product.Input, image io.Reader) (*model.Product, error)
	Delete(ctx context.Context, id string) (*model.Product, error)
	Get(ctx context.Context, id string) (*model.Product, error)
}

// SnapshotSource は一覧表示用のスナップショットと、その明示的な更新操作。
// catalog.Loader が実装する。
type SnapshotSource[T catalog.Record] interface {
	Get(ctx context.Context) (catalog.Snapshot[T], error)
	Refresh(ctx context.Context) (catalog.Snapshot[T], error)
	Merge(rec T)
	Remove(id string)
	Invalidate()
}

// ListConfig は一覧表示の設定。
type ListConfig struct {
	PageSize       int
	UploadMaxBytes int64
	Now            func() time.Time
}

func (c ListConfig) clock() func() time.Time {
	if c.Now == nil {
		return time.Now
	}
	return c.Now
}

// ProductHandler は商品のHTTPハンドラー。
type ProductHandler struct {
	service   ProductServiceInterface
	snapshots SnapshotSource[*model.Product]
	recorder  ListingQueryRecorder
	config    ListConfig
}

// NewProductHandler はProductHandlerを生成する。recorderはnilでもよい。
func NewProductHandler(service ProductServiceInterface, snapshots SnapshotSource[*model.Product], recorder ListingQueryRecorder, config ListConfig) *ProductHandler {
	return &ProductHandler{service: service, snapshots: snapshots, recorder: recorder, config: config}
}

type productResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       float64   `json:"price"`
	ImageURL    string    `json:"image_url"`
	Category    string    `json:"category"`
	InStock     bool      `json:"in_stock"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toProductResponse(p *model.Product) productResponse {
	return productResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		ImageURL:    p.ImageURL,
		Category:    p.Category,
		InStock:     p.InStock,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

// List は商品一覧を返す。
// GET /api/products?q=&category=&status=&page=
// status=open は在庫あり、closed は在庫切れ。
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	snap, err := h.snapshots.Get(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if h.recorder != nil {
		h.recorder.RecordListingQuery("products")
	}
	renderList(w, r, snap, viewConfig{
		pageSize:      h.config.PageSize,
		now:           h.config.clock(),
		categoryParam: "category",
		statusParam:   "status",
	}, toProductResponse)
}

// Get は商品詳細を返す。
// GET /api/products/{id}
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(p))
}

// Create は商品を登録する。
// POST /api/admin/products（multipart/form-data または JSON）
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	in, image, closeImage, ok := h.readInput(w, r)
	if !ok {
		return
	}
	defer closeImage()

	p, err := h.service.Create(r.Context(), in, image)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	h.snapshots.Merge(p)
	slog.Info("product created", slog.String("product_id", p.ID))
	writeJSON(w, http.StatusCreated, toProductResponse(p))
}

// Update は商品を更新する。画像を添付しない場合は既存の画像を維持する。
// PUT /api/admin/products/{id}
func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	in, image, closeImage, ok := h.readInput(w, r)
	if !ok {
		return
	}
	defer closeImage()

	p, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), in, image)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	h.snapshots.Merge(p)
	writeJSON(w, http.StatusOK, toProductResponse(p))
}

// Delete は商品を削除し、削除した商品を返す。
// DELETE /api/admin/products/{id}
func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	h.snapshots.Remove(p.ID)
	slog.Info("product deleted", slog.String("product_id", p.ID))
	writeJSON(w, http.StatusOK, toProductResponse(p))
}

// readInput はJSONまたはmultipartのリクエストから入力を読み取る。
// 失敗時はレスポンスを書き込み ok=false を返す。
func (h *ProductHandler) readInput(w http.ResponseWriter, r *http.Request) (in product.Input, image io.Reader, closeImage func(), ok bool) {
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
	price, err := formFloat(r, "price")
	if err != nil {
		handleServiceError(w, err)
		return in, nil, closeImage, false
	}
	in = product.Input{
		Name:        formString(r, "name"),
		Description: r.PostFormValue("description"),
		Price:       price,
		Category:    formString(r, "category"),
		InStock:     formBool(r, "in_stock"),
		ImageURL:    formString(r, "image_url"),
	}

	image, closeImage, err = formFile(r, "image")
	if err != nil {
		writeInvalidRequest(w, "image")
		return in, nil, closeImage, false
	}
	return in, image, closeImage, true
}

// respondDecodeError はボディ解析エラーのレスポンスを書き込む。
func respondDecodeError(w http.ResponseWriter, err error) {
	if apiErr, ok := err.(*model.APIError); ok {
		handleServiceError(w, apiErr)
		return
	}
	writeInvalidRequest(w, err.Error())
}
