package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/showcase/internal/catalog"
	"github.com/hitoshi/showcase/internal/model"
)

// 1回の一覧描画では現在時刻を1度だけ読み、件数とページ数が同じ時刻から導出されること。
func TestRenderList_ReadsClockOnce(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	calls := 0
	cfg := viewConfig{
		pageSize: 2,
		now: func() time.Time {
			calls++
			// 2回目以降は全ての締切を過ぎた時刻を返す
			return start.AddDate(calls-1, 0, 0)
		},
		categoryParam: "country",
		statusParam:   "status",
	}

	req := httptest.NewRequest(http.MethodGet, "/api/scholarships?status=open&page=2", nil)
	rec := httptest.NewRecorder()
	renderList(rec, req, catalog.NewSnapshot(testScholarships(), start), cfg,
		func(s *model.Scholarship) string { return s.ID })

	if calls != 1 {
		t.Errorf("clock calls = %d, want 1", calls)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp listResponse[string]
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.TotalCount != 3 || resp.TotalPages != 2 || resp.Page != 2 {
		t.Errorf("count/pages/page = %d/%d/%d, want 3/2/2", resp.TotalCount, resp.TotalPages, resp.Page)
	}
	if len(resp.Items) != 1 || resp.Items[0] != "s5" {
		t.Errorf("items = %v, want [s5]", resp.Items)
	}
}
