// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SyncRecorder は同期ワーカーが使用するメトリクス記録のインターフェース。
type SyncRecorder interface {
	RecordSyncSuccess(source string, items int)
	RecordSyncFailure(source string, reason string)
	RecordSyncLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
// catalog.RefreshObserver、application.Recorder、SyncRecorder を満たす。
type Collector struct {
	listingQueries   *prometheus.CounterVec
	snapshotRefresh  *prometheus.CounterVec
	appsSubmitted    *prometheus.CounterVec
	appStatusChanges *prometheus.CounterVec
	syncItems        *prometheus.CounterVec
	syncFailures     *prometheus.CounterVec
	syncLatency      prometheus.Histogram
	httpStatus       *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		listingQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "showcase_listing_queries_total",
			Help: "一覧APIの呼び出し数",
		}, []string{"collection"}),
		snapshotRefresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "showcase_snapshot_refresh_total",
			Help: "スナップショット再取得の結果別件数",
		}, []string{"collection", "result"}),
		appsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "showcase_applications_submitted_total",
			Help: "受け付けた応募・問い合わせの数",
		}, []string{"kind"}),
		appStatusChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "showcase_application_status_changes_total",
			Help: "応募ステータス変更の数",
		}, []string{"status"}),
		syncItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "showcase_sync_items_total",
			Help: "同期元から取り込んだ奨学金の数",
		}, []string{"source"}),
		syncFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "showcase_sync_failures_total",
			Help: "同期失敗の数",
		}, []string{"source", "reason"}),
		syncLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "showcase_sync_latency_seconds",
			Help:    "同期サイクル1回の処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "showcase_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.listingQueries,
		c.snapshotRefresh,
		c.appsSubmitted,
		c.appStatusChanges,
		c.syncItems,
		c.syncFailures,
		c.syncLatency,
		c.httpStatus,
	)

	return c
}

// RecordListingQuery は一覧APIの呼び出しを記録する。
func (c *Collector) RecordListingQuery(collection string) {
	c.listingQueries.WithLabelValues(collection).Inc()
}

// ObserveSnapshotRefresh はスナップショット再取得の結果（applied/stale/error）を記録する。
func (c *Collector) ObserveSnapshotRefresh(collection, result string) {
	c.snapshotRefresh.WithLabelValues(collection, result).Inc()
}

func (c *Collector) IncApplicationsSubmitted(kind string) {
	c.appsSubmitted.WithLabelValues(kind).Inc()
}

func (c *Collector) IncApplicationStatusChange(status string) {
	c.appStatusChanges.WithLabelValues(status).Inc()
}

// RecordSyncSuccess は同期元からの取り込み件数を記録する。
func (c *Collector) RecordSyncSuccess(source string, items int) {
	c.syncItems.WithLabelValues(source).Add(float64(items))
}

// RecordSyncFailure は同期の失敗を記録する。reason は blocked, request, stopped, backoff, parse, store のいずれか。
func (c *Collector) RecordSyncFailure(source, reason string) {
	c.syncFailures.WithLabelValues(source, reason).Inc()
}

// RecordSyncLatency は同期サイクル1回の処理時間を記録する。
func (c *Collector) RecordSyncLatency(duration time.Duration) {
	c.syncLatency.Observe(duration.Seconds())
}

// RecordHTTPStatus は応答したHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
