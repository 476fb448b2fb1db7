package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "recipe_scaler"

// Metrics 管線與 HTTP 指標，nil 接收者的方法皆為 no-op
type Metrics struct {
	registry *prometheus.Registry

	oracleRequests  *prometheus.CounterVec
	oracleDuration  *prometheus.HistogramVec
	cacheOperations *prometheus.CounterVec
	resolutions     *prometheus.CounterVec
	validationDrops *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// New 建立獨立 registry 的指標集合
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		oracleRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "oracle_requests_total",
				Help:      "Oracle queries by pipeline stage and outcome",
			},
			[]string{"stage", "outcome"},
		),
		oracleDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "oracle_request_duration_seconds",
				Help:      "Oracle round-trip latency",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 60, 120},
			},
			[]string{"stage"},
		),
		cacheOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "oracle_cache_operations_total",
				Help:      "Oracle reply cache lookups",
			},
			[]string{"result"},
		),
		resolutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "product_resolutions_total",
				Help:      "Shopping item resolutions by outcome",
			},
			[]string{"outcome"},
		),
		validationDrops: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "validation_dropped_records_total",
				Help:      "Records dropped by validation",
			},
			[]string{"stage"},
		),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

// Registry 返回底層 registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler 返回 /metrics 使用的 HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveOracle 記錄一次推論請求
func (m *Metrics) ObserveOracle(stage, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.oracleRequests.WithLabelValues(stage, outcome).Inc()
	m.oracleDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// CacheLookup 記錄快取命中或未命中
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheOperations.WithLabelValues(result).Inc()
}

// Resolution 記錄商品解析結果
func (m *Metrics) Resolution(outcome string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(outcome).Inc()
}

// ValidationDropped 記錄被驗證丟棄的紀錄數
func (m *Metrics) ValidationDropped(stage string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.validationDrops.WithLabelValues(stage).Add(float64(n))
}

// ObserveHTTP 記錄 HTTP 請求
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
