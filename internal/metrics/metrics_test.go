package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetric は指定名・ラベルのメトリクスを返す。見つからなければnil。
func findMetric(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelsMatch(m, labels) {
				return m
			}
		}
	}
	return nil
}

func labelsMatch(m *dto.Metric, want map[string]string) bool {
	if len(m.GetLabel()) != len(want) {
		return false
	}
	for _, lp := range m.GetLabel() {
		if want[lp.GetName()] != lp.GetValue() {
			return false
		}
	}
	return true
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	m := findMetric(t, reg, name, labels)
	if m == nil {
		t.Fatalf("metric %s%v not found", name, labels)
	}
	return m.GetCounter().GetValue()
}

func TestNewCollector_ReturnsNonNil(t *testing.T) {
	if NewCollector(prometheus.NewRegistry()) == nil {
		t.Fatal("expected non-nil Collector")
	}
}

func TestRecordListingQuery_CountsPerCollection(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordListingQuery("products")
	c.RecordListingQuery("products")
	c.RecordListingQuery("scholarships")

	if v := counterValue(t, reg, "showcase_listing_queries_total", map[string]string{"collection": "products"}); v != 2 {
		t.Errorf("products = %v, want 2", v)
	}
	if v := counterValue(t, reg, "showcase_listing_queries_total", map[string]string{"collection": "scholarships"}); v != 1 {
		t.Errorf("scholarships = %v, want 1", v)
	}
}

func TestObserveSnapshotRefresh_LabelsResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.ObserveSnapshotRefresh("scholarships", "applied")
	c.ObserveSnapshotRefresh("scholarships", "stale")
	c.ObserveSnapshotRefresh("scholarships", "stale")

	if v := counterValue(t, reg, "showcase_snapshot_refresh_total", map[string]string{"collection": "scholarships", "result": "stale"}); v != 2 {
		t.Errorf("stale = %v, want 2", v)
	}
	if v := counterValue(t, reg, "showcase_snapshot_refresh_total", map[string]string{"collection": "scholarships", "result": "applied"}); v != 1 {
		t.Errorf("applied = %v, want 1", v)
	}
}

func TestApplicationCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.IncApplicationsSubmitted("scholarship")
	c.IncApplicationStatusChange("approved")
	c.IncApplicationStatusChange("approved")

	if v := counterValue(t, reg, "showcase_applications_submitted_total", map[string]string{"kind": "scholarship"}); v != 1 {
		t.Errorf("submitted = %v, want 1", v)
	}
	if v := counterValue(t, reg, "showcase_application_status_changes_total", map[string]string{"status": "approved"}); v != 2 {
		t.Errorf("approved = %v, want 2", v)
	}
}

func TestSyncMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSyncSuccess("https://example.com/feed.json", 12)
	c.RecordSyncSuccess("https://example.com/feed.json", 3)
	c.RecordSyncFailure("https://example.com/rss", "http_5xx")
	c.RecordSyncLatency(250 * time.Millisecond)

	if v := counterValue(t, reg, "showcase_sync_items_total", map[string]string{"source": "https://example.com/feed.json"}); v != 15 {
		t.Errorf("sync items = %v, want 15", v)
	}
	if v := counterValue(t, reg, "showcase_sync_failures_total", map[string]string{"source": "https://example.com/rss", "reason": "http_5xx"}); v != 1 {
		t.Errorf("sync failures = %v, want 1", v)
	}
	h := findMetric(t, reg, "showcase_sync_latency_seconds", map[string]string{})
	if h == nil || h.GetHistogram().GetSampleCount() != 1 {
		t.Fatalf("latency histogram = %v", h)
	}
}

func TestRecordHTTPStatus_IncrementsCounterWithLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(503)

	if v := counterValue(t, reg, "showcase_http_status_total", map[string]string{"status_code": "200"}); v != 2 {
		t.Errorf("200 = %v, want 2", v)
	}
	if v := counterValue(t, reg, "showcase_http_status_total", map[string]string{"status_code": "503"}); v != 1 {
		t.Errorf("503 = %v, want 1", v)
	}
}

func TestCollector_ImplementsSyncRecorder(t *testing.T) {
	var _ SyncRecorder = NewCollector(prometheus.NewRegistry())
}

func TestMultipleCollectors_IndependentRegistries(t *testing.T) {
	reg1 := prometheus.NewRegistry()
	reg2 := prometheus.NewRegistry()
	c1 := NewCollector(reg1)
	_ = NewCollector(reg2)

	c1.RecordListingQuery("products")

	if findMetric(t, reg2, "showcase_listing_queries_total", map[string]string{"collection": "products"}) != nil {
		t.Error("metrics leaked across registries")
	}
}
