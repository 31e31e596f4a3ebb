package catalog

import (
	"strings"
	"time"
)

// AllCategories は分類で絞り込まないことを表すワイルドカード。
const AllCategories = "all"

// DefaultPageSize は1ページあたりの表示件数の既定値。
const DefaultPageSize = 10

// FilterState は現在の検索語・分類・ステータス・ページ番号を表す。
// Pageは1始まり。
type FilterState struct {
	Query    string
	Category string
	Status   Status
	Facets   map[string]string
	Page     int
}

// Option はEngineの設定を変更する。
type Option func(*settings)

type settings struct {
	pageSize int
	now      func() time.Time
}

// WithPageSize は1ページあたりの表示件数を指定する。0以下は無視する。
func WithPageSize(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// WithClock はステータス導出に使う現在時刻の取得関数を指定する。
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// Engine はスナップショットとFilterStateから表示対象のページを導出する。
// 1つの一覧セッションに専有される前提で、ロックは持たない。
type Engine[T Record] struct {
	snapshot Snapshot[T]
	state    FilterState
	pageSize int
	now      func() time.Time
}

// NewEngine はEngineの新しいインスタンスを生成する。
// 初期状態は検索語なし・全分類・全ステータス・1ページ目。
func NewEngine[T Record](snapshot Snapshot[T], opts ...Option) *Engine[T] {
	cfg := settings{pageSize: DefaultPageSize, now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Engine[T]{
		snapshot: snapshot,
		state: FilterState{
			Category: AllCategories,
			Status:   StatusAll,
			Facets:   map[string]string{},
			Page:     1,
		},
		pageSize: cfg.pageSize,
		now:      cfg.now,
	}
}

// SetQuery は検索語を置き換え、1ページ目に戻す。空文字は絞り込みなし。
func (e *Engine[T]) SetQuery(text string) {
	e.state.Query = text
	e.state.Page = 1
}

// SetCategory は分類を置き換え、1ページ目に戻す。
// スナップショットに存在しない値は検証せず、結果が0件になるだけ。
func (e *Engine[T]) SetCategory(value string) {
	if value == "" {
		value = AllCategories
	}
	e.state.Category = value
	e.state.Page = 1
}

// SetStatus はステータス絞り込みを置き換え、1ページ目に戻す。
func (e *Engine[T]) SetStatus(status Status) {
	if status == "" {
		status = StatusAll
	}
	e.state.Status = status
	e.state.Page = 1
}

// SetFacet は名前付き分類の絞り込みを置き換え、1ページ目に戻す。
// 空文字またはワイルドカードで解除する。
func (e *Engine[T]) SetFacet(name, value string) {
	if value == "" || value == AllCategories {
		delete(e.state.Facets, name)
	} else {
		e.state.Facets[name] = value
	}
	e.state.Page = 1
}

// SetPage はページ番号を設定する。範囲外の値は[1, TotalPages]に丸める。
func (e *Engine[T]) SetPage(n int) {
	e.state.Page = clamp(n, 1, e.TotalPages())
}

// Replace はスナップショットを差し替える。FilterStateは維持する。
func (e *Engine[T]) Replace(snapshot Snapshot[T]) {
	e.snapshot = snapshot
}

// State は現在のFilterStateの複製を返す。Pageは現在の絞り込み結果に対して丸めた値。
func (e *Engine[T]) State() FilterState {
	facets := make(map[string]string, len(e.state.Facets))
	for k, v := range e.state.Facets {
		facets[k] = v
	}
	st := e.state
	st.Facets = facets
	st.Page = e.Page()
	return st
}

// PageSize は1ページあたりの表示件数を返す。
func (e *Engine[T]) PageSize() int {
	return e.pageSize
}

// Page は現在のページ番号を返す。
// スナップショット差し替えで総ページ数が減った場合も範囲内に収める。
func (e *Engine[T]) Page() int {
	return clamp(e.state.Page, 1, e.TotalPages())
}

// Filtered は絞り込み条件をすべて満たす掲載を元の順序で返す。
func (e *Engine[T]) Filtered() []T {
	return e.filteredAt(e.now())
}

func (e *Engine[T]) filteredAt(now time.Time) []T {
	query := strings.ToLower(e.state.Query)
	result := make([]T, 0, e.snapshot.Len())
	for _, rec := range e.snapshot.records {
		if e.matches(rec, query, now) {
			result = append(result, rec)
		}
	}
	return result
}

// FilteredCount は絞り込み後の件数を返す。
func (e *Engine[T]) FilteredCount() int {
	return len(e.Filtered())
}

// TotalPages は総ページ数を返す。0件でも1を返す。
func (e *Engine[T]) TotalPages() int {
	return totalPages(e.FilteredCount(), e.pageSize)
}

// Visible は現在ページに表示する掲載を返す。
// 長さはページサイズ以下で、絞り込み結果の連続した部分列になる。
func (e *Engine[T]) Visible() []T {
	filtered := e.Filtered()
	return pageSlice(filtered, clamp(e.state.Page, 1, totalPages(len(filtered), e.pageSize)), e.pageSize)
}

// View は1回の描画に必要な値をまとめたもの。
type View[T Record] struct {
	Items      []T
	Page       int
	PageSize   int
	TotalPages int
	TotalCount int
	PageWindow []int
}

// View は現在時刻を1度だけ読み、表示ページ・件数・ページ数を同じ絞り込み結果から導出する。
// windowSize は PageWindow と同じ意味。
func (e *Engine[T]) View(windowSize int) View[T] {
	filtered := e.filteredAt(e.now())
	total := totalPages(len(filtered), e.pageSize)
	page := clamp(e.state.Page, 1, total)
	return View[T]{
		Items:      pageSlice(filtered, page, e.pageSize),
		Page:       page,
		PageSize:   e.pageSize,
		TotalPages: total,
		TotalCount: len(filtered),
		PageWindow: pageWindow(page, total, windowSize),
	}
}

func pageSlice[T any](filtered []T, page, pageSize int) []T {
	start := (page - 1) * pageSize
	if start >= len(filtered) {
		return []T{}
	}
	end := min(start+pageSize, len(filtered))
	out := make([]T, end-start)
	copy(out, filtered[start:end])
	return out
}

// Categories はスナップショットに現れる分類を初出順に返す。先頭はワイルドカード。
func (e *Engine[T]) Categories() []string {
	seen := map[string]struct{}{}
	out := []string{AllCategories}
	for _, rec := range e.snapshot.records {
		c := rec.Classification()
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// PageWindow は現在ページを中心とした最大size個のページ番号を返す。
func (e *Engine[T]) PageWindow(size int) []int {
	return pageWindow(e.Page(), e.TotalPages(), size)
}

func (e *Engine[T]) matches(rec T, query string, now time.Time) bool {
	if e.state.Category != AllCategories && rec.Classification() != e.state.Category {
		return false
	}
	for name, want := range e.state.Facets {
		if rec.Facet(name) != want {
			return false
		}
	}
	if e.state.Status != StatusAll && RecordStatus(rec, now) != e.state.Status {
		return false
	}
	return matchesQuery(rec, query)
}

// matchesQuery は小文字化した検索語がいずれかのフィールド値に含まれるかを判定する。
func matchesQuery(rec Record, query string) bool {
	if query == "" {
		return true
	}
	for _, v := range rec.SearchValues() {
		if strings.Contains(strings.ToLower(v), query) {
			return true
		}
	}
	return false
}

func totalPages(count, pageSize int) int {
	if count <= 0 {
		return 1
	}
	return (count + pageSize - 1) / pageSize
}

func pageWindow(current, total, size int) []int {
	if size <= 0 {
		size = 5
	}
	start := max(1, current-size/2)
	end := min(total, start+size-1)
	if end-start+1 < size {
		start = max(1, end-size+1)
	}
	pages := make([]int, 0, end-start+1)
	for p := start; p <= end; p++ {
		pages = append(pages, p)
	}
	return pages
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
