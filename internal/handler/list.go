package handler

import (
	"net/http"
	"time"

	"github.com/hitoshi/showcase/internal/catalog"
)

// pageWindowSize はページ送りに表示するページ番号の数。
const pageWindowSize = 5

// ListingQueryRecorder は一覧クエリの件数を記録する。
type ListingQueryRecorder interface {
	RecordListingQuery(collection string)
}

// listResponse は一覧APIの共通レスポンス。
type listResponse[R any] struct {
	Items      []R      `json:"items"`
	Page       int      `json:"page"`
	PageSize   int      `json:"page_size"`
	TotalPages int      `json:"total_pages"`
	TotalCount int      `json:"total_count"`
	Categories []string `json:"categories"`
	PageWindow []int    `json:"page_window"`
}

// viewConfig は一覧の絞り込みに使うクエリパラメータ名と設定。
type viewConfig struct {
	pageSize      int
	now           func() time.Time
	categoryParam string   // 分類のパラメータ名（category / country / kind）
	statusParam   string   // 募集状態（open / closed）のパラメータ名。空なら絞り込まない
	facets        []string // 完全一致で絞り込む追加パラメータ名
}

// renderList はスナップショットにクエリパラメータの絞り込みを適用し、1ページ分を返す。
//
// 検索語・分類・ステータス・ファセットはいずれも変更時に1ページ目へ戻るため、
// ページ番号は最後に設定する。レスポンスの値はすべて1回の View から取る。
func renderList[T catalog.Record, R any](w http.ResponseWriter, r *http.Request, snap catalog.Snapshot[T], cfg viewConfig, toResponse func(T) R) {
	q := r.URL.Query()

	clock := cfg.now
	if clock == nil {
		clock = time.Now
	}
	// ページ番号の丸めと表示で同じ時刻を使う
	renderedAt := clock()
	engine := catalog.NewEngine(snap, catalog.WithPageSize(cfg.pageSize),
		catalog.WithClock(func() time.Time { return renderedAt }))
	engine.SetQuery(q.Get("q"))
	engine.SetCategory(q.Get(cfg.categoryParam))
	if cfg.statusParam != "" {
		engine.SetStatus(catalog.ParseStatus(q.Get(cfg.statusParam)))
	}
	for _, name := range cfg.facets {
		engine.SetFacet(name, q.Get(name))
	}
	engine.SetPage(queryInt(r, "page", 1))

	view := engine.View(pageWindowSize)
	items := make([]R, len(view.Items))
	for i, rec := range view.Items {
		items[i] = toResponse(rec)
	}

	writeJSON(w, http.StatusOK, listResponse[R]{
		Items:      items,
		Page:       view.Page,
		PageSize:   view.PageSize,
		TotalPages: view.TotalPages,
		TotalCount: view.TotalCount,
		Categories: engine.Categories(),
		PageWindow: view.PageWindow,
	})
}
