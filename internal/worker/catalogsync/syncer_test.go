package catalogsync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/showcase/internal/model"
	"github.com/hitoshi/showcase/internal/scholarship"
	"github.com/hitoshi/showcase/internal/security"
)

// --- テスト用の依存 ---

// testGuard はループバックのテストサーバーへの接続を許可するSourceGuard。
type testGuard struct {
	client  *http.Client
	blocked string
}

func (g *testGuard) NewSafeClient(timeout time.Duration) *http.Client { return g.client }

func (g *testGuard) ValidateURL(rawURL string) error {
	if g.blocked != "" && strings.Contains(rawURL, g.blocked) {
		return errors.New("blocked host")
	}
	return nil
}

func (g *testGuard) LimitBody(body io.Reader) io.Reader { return io.LimitReader(body, 1<<20) }

type memoryStore struct {
	mu    sync.Mutex
	items map[string]*model.Scholarship
	err   error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{items: map[string]*model.Scholarship{}}
}

func (m *memoryStore) Upsert(ctx context.Context, s *model.Scholarship) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	key := s.Source + "|" + s.ExternalID
	_, exists := m.items[key]
	m.items[key] = s
	return !exists, nil
}

func (m *memoryStore) get(source, externalID string) *model.Scholarship {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[source+"|"+externalID]
}

type fakeRecorder struct {
	mu        sync.Mutex
	successes map[string]int
	failures  []string
	latencies int
}

func (f *fakeRecorder) RecordSyncSuccess(source string, items int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.successes == nil {
		f.successes = map[string]int{}
	}
	f.successes[source] += items
}

func (f *fakeRecorder) RecordSyncFailure(source, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, reason)
}

func (f *fakeRecorder) RecordSyncLatency(time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latencies++
}

type fixture struct {
	syncer   *Syncer
	store    *memoryStore
	recorder *fakeRecorder
	guard    *testGuard
	logs     *bytes.Buffer
}

func newFixture(t *testing.T, srv *httptest.Server) *fixture {
	t.Helper()
	sanitizer := security.NewListingSanitizer()
	importer, err := scholarship.NewImporter(nil, sanitizer)
	if err != nil {
		t.Fatal(err)
	}
	f := &fixture{
		store:    newMemoryStore(),
		recorder: &fakeRecorder{},
		guard:    &testGuard{client: srv.Client()},
		logs:     &bytes.Buffer{},
	}
	f.syncer = NewSyncer(f.guard, importer, f.store, sanitizer, f.recorder,
		slog.New(slog.NewJSONHandler(f.logs, nil)), Config{Timeout: 5 * time.Second, MaxConcurrent: 2})
	return f
}

const catalogJSON = `[
  {"scholarship_id": 101, "degree": "Master", "program": "Civil Engineering", "university": "Tongji University", "deadline": "2026-06-30"},
  {"student_id": "S-7", "degree": "PhD", "program": "Physics", "university": "Zhejiang University", "language": "English"},
  {"degree": "Bachelor", "university": "Unknown Source University"}
]`

const rssFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Scholarship Board</title>
  <link>https://board.example.com</link>
  <item>
    <title>MEXT Research Scholarship</title>
    <link>https://board.example.com/s/mext</link>
    <description>&lt;p&gt;Fully funded&lt;/p&gt;&lt;script&gt;alert(1)&lt;/script&gt;</description>
    <category>JLPT N2</category>
    <deadline>2026-05-31</deadline>
    <country>Japan</country>
  </item>
  <item>
    <title>No link item</title>
  </item>
</channel>
</rss>`

// --- テスト ---

func TestSyncer_SyncSource_JSONCatalog(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("ETag", `"v1"`)
		io.WriteString(w, catalogJSON)
	}))
	defer srv.Close()
	f := newFixture(t, srv)

	res, err := f.syncer.SyncSource(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("SyncSource() error = %v", err)
	}
	if res.Inserted != 2 || res.Updated != 0 || res.Skipped != 1 {
		t.Errorf("result = %+v, want 2 inserted 1 skipped", res)
	}

	got := f.store.get(srv.URL, "101")
	if got == nil {
		t.Fatal("scholarship 101 not stored")
	}
	if got.Name != "Civil Engineering" || got.Country != scholarship.DefaultCountry || got.ID == "" {
		t.Errorf("stored = %+v", got)
	}
	if f.store.get(srv.URL, "S-7") == nil {
		t.Error("student_id should be used when scholarship_id is missing")
	}
	if f.syncer.State(srv.URL).ETag != `"v1"` {
		t.Errorf("ETag = %q, want \"v1\"", f.syncer.State(srv.URL).ETag)
	}
	if f.recorder.successes[srv.URL] != 2 {
		t.Errorf("recorded items = %d, want 2", f.recorder.successes[srv.URL])
	}

	// 2回目は更新として数える
	res, err = f.syncer.SyncSource(context.Background(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if res.Inserted != 0 || res.Updated != 2 {
		t.Errorf("second result = %+v, want 2 updated", res)
	}
}

func TestSyncer_SyncSource_ConditionalGet(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		io.WriteString(w, catalogJSON)
	}))
	defer srv.Close()
	f := newFixture(t, srv)

	f.syncer.SyncSource(context.Background(), srv.URL)
	res, err := f.syncer.SyncSource(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("SyncSource() error = %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if res.Inserted+res.Updated != 0 {
		t.Errorf("304 should not store anything, got %+v", res)
	}
}

func TestSyncer_SyncSource_RSSFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		io.WriteString(w, rssFeed)
	}))
	defer srv.Close()
	f := newFixture(t, srv)

	res, err := f.syncer.SyncSource(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("SyncSource() error = %v", err)
	}
	if res.Inserted != 1 {
		t.Fatalf("result = %+v, want 1 inserted", res)
	}

	got := f.store.get(srv.URL, "https://board.example.com/s/mext")
	if got == nil {
		t.Fatal("feed item not stored")
	}
	if got.Name != "MEXT Research Scholarship" || got.Program != got.Name {
		t.Errorf("name = %q program = %q", got.Name, got.Program)
	}
	if strings.Contains(got.Description, "<script") || !strings.Contains(got.Description, "Fully funded") {
		t.Errorf("description not sanitized: %q", got.Description)
	}
	if got.Deadline != "2026-05-31" || got.Country != "Japan" {
		t.Errorf("deadline = %q country = %q", got.Deadline, got.Country)
	}
	if len(got.Requirements) != 1 || got.Requirements[0] != "JLPT N2" {
		t.Errorf("requirements = %v", got.Requirements)
	}
}

func TestSyncer_SyncSource_HTMLAutodiscovery(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, `<html><head><link rel="alternate" type="application/rss+xml" href="/feed.xml"></head><body></body></html>`)
	})
	mux.HandleFunc("/feed.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		io.WriteString(w, rssFeed)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	f := newFixture(t, srv)

	res, err := f.syncer.SyncSource(context.Background(), srv.URL+"/page")
	if err != nil {
		t.Fatalf("SyncSource() error = %v", err)
	}
	if res.Inserted != 1 {
		t.Errorf("result = %+v, want 1 inserted", res)
	}
	if f.store.get(srv.URL+"/page", "https://board.example.com/s/mext") == nil {
		t.Error("items discovered through HTML should be attributed to the page source")
	}
}

func TestSyncer_SyncSource_HTTPStatus(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		wantStopped bool
		wantBackoff bool
		wantReason  string
	}{
		{"404は停止", http.StatusNotFound, true, false, "stopped"},
		{"403は停止", http.StatusForbidden, true, false, "stopped"},
		{"503はバックオフ", http.StatusServiceUnavailable, false, true, "backoff"},
		{"429はバックオフ", http.StatusTooManyRequests, false, true, "backoff"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()
			f := newFixture(t, srv)

			if _, err := f.syncer.SyncSource(context.Background(), srv.URL); err == nil {
				t.Fatal("expected error")
			}
			st := f.syncer.State(srv.URL)
			if st.Stopped != tt.wantStopped {
				t.Errorf("Stopped = %v, want %v", st.Stopped, tt.wantStopped)
			}
			if (st.ConsecutiveErrors > 0) != tt.wantBackoff {
				t.Errorf("ConsecutiveErrors = %d", st.ConsecutiveErrors)
			}
			if len(f.recorder.failures) != 1 || f.recorder.failures[0] != tt.wantReason {
				t.Errorf("failures = %v, want [%s]", f.recorder.failures, tt.wantReason)
			}
		})
	}
}

func TestSyncer_SyncSource_InvalidCatalog(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `[{"program": "no university"}]`)
	}))
	defer srv.Close()
	f := newFixture(t, srv)

	_, err := f.syncer.SyncSource(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("expected schema error")
	}
	st := f.syncer.State(srv.URL)
	if st.ConsecutiveErrors != 1 || st.Stopped {
		t.Errorf("state = %+v", st)
	}
	if !strings.Contains(st.LastError, "パース失敗") {
		t.Errorf("LastError = %q", st.LastError)
	}
}

func TestSyncer_SyncSource_Blocked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("blocked source should not be requested")
	}))
	defer srv.Close()
	f := newFixture(t, srv)
	f.guard.blocked = "127.0.0.1"

	if _, err := f.syncer.SyncSource(context.Background(), srv.URL); err == nil {
		t.Fatal("expected error")
	}
	if !f.syncer.State(srv.URL).Stopped {
		t.Error("blocked source should be stopped")
	}
}

func TestSyncer_SyncSource_StoreFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, catalogJSON)
	}))
	defer srv.Close()
	f := newFixture(t, srv)
	f.store.err = errors.New("connection refused")

	_, err := f.syncer.SyncSource(context.Background(), srv.URL)
	if !model.IsIOFailure(err) {
		t.Fatalf("err = %v, want IOFailure", err)
	}
	if f.syncer.State(srv.URL).ConsecutiveErrors != 1 {
		t.Error("store failure should back off")
	}
}

func TestSyncer_RunOnce_SkipsSourcesInBackoff(t *testing.T) {
	var mu sync.Mutex
	hits := map[string]int{}
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits["ok"]++
		mu.Unlock()
		io.WriteString(w, catalogJSON)
	})
	mux.HandleFunc("/down", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits["down"]++
		mu.Unlock()
		w.WriteHeader(http.StatusBadGateway)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	f := newFixture(t, srv)

	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	f.syncer.now = func() time.Time { return now }
	sources := []string{srv.URL + "/ok", srv.URL + "/down"}

	results := f.syncer.RunOnce(context.Background(), sources)
	if len(results) != 1 || results[0].Source != sources[0] {
		t.Fatalf("results = %+v", results)
	}

	// バックオフ期間内は /down を飛ばす
	now = now.Add(10 * time.Minute)
	f.syncer.RunOnce(context.Background(), sources)

	// バックオフ期間後は再試行する
	now = now.Add(30 * time.Minute)
	f.syncer.RunOnce(context.Background(), sources)

	mu.Lock()
	defer mu.Unlock()
	if hits["ok"] != 3 || hits["down"] != 2 {
		t.Errorf("hits = %v, want ok=3 down=2", hits)
	}
	if f.recorder.latencies != 3 {
		t.Errorf("latencies = %d, want 3", f.recorder.latencies)
	}
	if !strings.Contains(f.logs.String(), fmt.Sprintf(`"source":"%s/down"`, srv.URL)) {
		t.Error("expected skip log for /down")
	}
}
