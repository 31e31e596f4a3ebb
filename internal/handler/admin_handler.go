package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/showcase/internal/catalog"
)

// SnapshotRefresher はコレクション全件を再取得してスナップショットを置き換える。
type SnapshotRefresher interface {
	Name() string
	RefreshCount(ctx context.Context) (int, error)
}

type snapshotRefresher[T catalog.Record] struct {
	name string
	src  SnapshotSource[T]
}

// NewSnapshotRefresher はSnapshotSourceをSnapshotRefresherとして扱うアダプタを返す。
func NewSnapshotRefresher[T catalog.Record](name string, src SnapshotSource[T]) SnapshotRefresher {
	return &snapshotRefresher[T]{name: name, src: src}
}

func (r *snapshotRefresher[T]) Name() string { return r.name }

func (r *snapshotRefresher[T]) RefreshCount(ctx context.Context) (int, error) {
	snap, err := r.src.Refresh(ctx)
	if err != nil {
		return 0, err
	}
	return snap.Len(), nil
}

// AdminHandler は管理ダッシュボード向けの補助操作のハンドラー。
type AdminHandler struct {
	refreshers []SnapshotRefresher
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(refreshers ...SnapshotRefresher) *AdminHandler {
	return &AdminHandler{refreshers: refreshers}
}

type refreshResult struct {
	Collection string `json:"collection"`
	Count      int    `json:"count"`
}

// RefreshSnapshots は全コレクションのスナップショットを取り直す。
// 管理者が外部で直接データを変更した場合の再同期に使う。
// POST /api/admin/snapshots/refresh
func (h *AdminHandler) RefreshSnapshots(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	results := make([]refreshResult, 0, len(h.refreshers))
	for _, ref := range h.refreshers {
		n, err := ref.RefreshCount(r.Context())
		if err != nil {
			handleServiceError(w, err)
			return
		}
		results = append(results, refreshResult{Collection: ref.Name(), Count: n})
	}
	slog.Info("snapshots refreshed",
		slog.Int("collections", len(results)),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	writeJSON(w, http.StatusOK, map[string]interface{}{"refreshed": results})
}
