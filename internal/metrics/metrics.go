// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ミドルウェア、サービス層、ワーカーから利用する。
type MetricsCollector interface {
	RecordHTTPRequest(method, route string, statusCode int, duration time.Duration)
	RecordLogin(success bool)
	RecordRegistration()
	RecordDocumentStored(sizeBytes int64)
	RecordDocumentRemovalFailure()
	RecordSessionsExpired(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpRequests      *prometheus.CounterVec
	httpLatency       *prometheus.HistogramVec
	logins            *prometheus.CounterVec
	registrations     prometheus.Counter
	documentsStored   prometheus.Counter
	documentBytes     prometheus.Counter
	documentRemoveErr prometheus.Counter
	sessionsExpired   prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_http_requests_total",
			Help: "HTTPリクエスト数（メソッド、ルート、ステータスコード別）",
		}, []string{"method", "route", "status_code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tracker_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_login_attempts_total",
			Help: "ログイン試行数（結果別）",
		}, []string{"result"}),
		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_registrations_total",
			Help: "ユーザー登録の合計数",
		}),
		documentsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_documents_stored_total",
			Help: "保存されたレビュー添付ファイルの合計数",
		}),
		documentBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_document_bytes_total",
			Help: "保存されたレビュー添付ファイルの合計バイト数",
		}),
		documentRemoveErr: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_document_removal_failures_total",
			Help: "添付ファイル削除失敗の合計数",
		}),
		sessionsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_sessions_expired_total",
			Help: "クリーンアップで削除された期限切れセッション数",
		}),
	}

	reg.MustRegister(
		c.httpRequests,
		c.httpLatency,
		c.logins,
		c.registrations,
		c.documentsStored,
		c.documentBytes,
		c.documentRemoveErr,
		c.sessionsExpired,
	)

	return c
}

// RecordHTTPRequest はHTTPリクエストの件数と処理時間を記録する。
// routeにはchiのルートパターン（/reviews/{id}等）を渡し、ラベルの爆発を防ぐこと。
func (c *Collector) RecordHTTPRequest(method, route string, statusCode int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	c.httpLatency.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordLogin はログイン試行の結果を記録する。
func (c *Collector) RecordLogin(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	c.logins.WithLabelValues(result).Inc()
}

// RecordRegistration はユーザー登録を記録する。
func (c *Collector) RecordRegistration() {
	c.registrations.Inc()
}

// RecordDocumentStored は添付ファイルの保存を記録する。
func (c *Collector) RecordDocumentStored(sizeBytes int64) {
	c.documentsStored.Inc()
	c.documentBytes.Add(float64(sizeBytes))
}

// RecordDocumentRemovalFailure は添付ファイル削除の失敗を記録する。
func (c *Collector) RecordDocumentRemovalFailure() {
	c.documentRemoveErr.Inc()
}

// RecordSessionsExpired は削除した期限切れセッション数を記録する。
func (c *Collector) RecordSessionsExpired(count int64) {
	c.sessionsExpired.Add(float64(count))
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type Nop struct{}

func (Nop) RecordHTTPRequest(string, string, int, time.Duration) {}
func (Nop) RecordLogin(bool)                                     {}
func (Nop) RecordRegistration()                                  {}
func (Nop) RecordDocumentStored(int64)                           {}
func (Nop) RecordDocumentRemovalFailure()                        {}
func (Nop) RecordSessionsExpired(int64)                          {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
