// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ストア操作の結果ラベル。
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Recorder はメトリクス記録のインターフェース。
// ミドルウェア、リポジトリ、認証ハンドラーから利用する。
type Recorder interface {
	RecordHTTPRequest(method, route string, status int, duration time.Duration)
	RecordStoreOperation(operation string, err error, duration time.Duration)
	RecordAuthFailure(reason string)
	RecordTokenIssued()
	RecordTokenRevoked()
	RecordRateLimited(limitType string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	storeOps      *prometheus.CounterVec
	storeLatency  *prometheus.HistogramVec
	authFailures  *prometheus.CounterVec
	tokensIssued  prometheus.Counter
	tokensRevoked prometheus.Counter
	rateLimited   *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "foodbridge_http_requests_total",
			Help: "HTTPリクエストの合計数",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "foodbridge_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		storeOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "foodbridge_store_operations_total",
			Help: "ストア操作の合計数",
		}, []string{"operation", "result"}),
		storeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "foodbridge_store_operation_duration_seconds",
			Help:    "ストア操作のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		authFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "foodbridge_auth_failures_total",
			Help: "認証失敗の理由別合計数",
		}, []string{"reason"}),
		tokensIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "foodbridge_tokens_issued_total",
			Help: "発行したトークンの合計数",
		}),
		tokensRevoked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "foodbridge_tokens_revoked_total",
			Help: "ログアウトで失効させたトークンの合計数",
		}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "foodbridge_rate_limited_total",
			Help: "レート制限で拒否したリクエストの合計数",
		}, []string{"limit_type"}),
	}

	reg.MustRegister(
		c.httpRequests,
		c.httpDuration,
		c.storeOps,
		c.storeLatency,
		c.authFailures,
		c.tokensIssued,
		c.tokensRevoked,
		c.rateLimited,
	)

	return c
}

// RecordHTTPRequest はHTTPリクエストの件数と処理時間を記録する。
// routeにはchiのルートパターンを渡し、ラベルのカーディナリティを抑える。
func (c *Collector) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordStoreOperation はストア操作の結果とレイテンシを記録する。
func (c *Collector) RecordStoreOperation(operation string, err error, duration time.Duration) {
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	c.storeOps.WithLabelValues(operation, result).Inc()
	c.storeLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordAuthFailure は認証失敗を理由別に記録する。
func (c *Collector) RecordAuthFailure(reason string) {
	c.authFailures.WithLabelValues(reason).Inc()
}

// RecordTokenIssued はトークン発行を記録する。
func (c *Collector) RecordTokenIssued() {
	c.tokensIssued.Inc()
}

// RecordTokenRevoked はトークン失効を記録する。
func (c *Collector) RecordTokenRevoked() {
	c.tokensRevoked.Inc()
}

// RecordRateLimited はレート制限による拒否を記録する。
func (c *Collector) RecordRateLimited(limitType string) {
	c.rateLimited.WithLabelValues(limitType).Inc()
}

// Nop は何も記録しないRecorder。メトリクス不要なテストや構成で使う。
type Nop struct{}

func (Nop) RecordHTTPRequest(string, string, int, time.Duration) {}
func (Nop) RecordStoreOperation(string, error, time.Duration)    {}
func (Nop) RecordAuthFailure(string)                             {}
func (Nop) RecordTokenIssued()                                   {}
func (Nop) RecordTokenRevoked()                                  {}
func (Nop) RecordRateLimited(string)                             {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}

var (
	_ Recorder = (*Collector)(nil)
	_ Recorder = Nop{}
)
