package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector 指标收集器
// 每个实例持有独立的 Registry，测试中可以重复创建；所有方法对 nil 接收者安全
type MetricsCollector struct {
	registry *prometheus.Registry

	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 交互账本指标
	interactionsTotal   *prometheus.CounterVec
	counterAdjustErrors *prometheus.CounterVec
	recountCorrections  *prometheus.CounterVec

	// 资金账本指标
	ledgerOpsTotal *prometheus.CounterVec
	ledgerAmount   *prometheus.CounterVec

	// 缓存指标
	cacheHitsTotal   *prometheus.CounterVec
	cacheMissesTotal *prometheus.CounterVec

	// 实时 & 通知
	realtimeEventsTotal *prometheus.CounterVec
	notificationsTotal  *prometheus.CounterVec
}

// NewMetricsCollector 创建指标收集器
func NewMetricsCollector() *MetricsCollector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &MetricsCollector{
		registry: reg,

		httpRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		httpRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		interactionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_interactions_total",
				Help: "Interaction ledger operations by action and whether state changed",
			},
			[]string{"action", "changed"},
		),
		counterAdjustErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_counter_adjust_failures_total",
				Help: "Best-effort counter adjustments that failed after the record write",
			},
			[]string{"action"},
		),
		recountCorrections: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_recount_corrections_total",
				Help: "Counter rows overwritten by the recount job",
			},
			[]string{"counter"},
		),

		ledgerOpsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_monetary_operations_total",
				Help: "Monetary ledger operations by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		ledgerAmount: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_monetary_amount_total",
				Help: "Gross amount moved by the monetary ledger",
			},
			[]string{"kind"},
		),

		cacheHitsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache_type", "key_prefix"},
		),
		cacheMissesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache_type", "key_prefix"},
		),

		realtimeEventsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "realtime_events_published_total",
				Help: "Change events published on the realtime bus",
			},
			[]string{"scope", "op"},
		),
		notificationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifications_dispatched_total",
				Help: "Notification deliveries by sink and status",
			},
			[]string{"sink", "status"},
		),
	}
}

// Registry 返回底层 Registry，测试中用于读取指标
func (m *MetricsCollector) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler /metrics 处理器
func (m *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest 记录 HTTP 请求指标
func (m *MetricsCollector) RecordHTTPRequest(method, endpoint string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, endpoint, getStatusCategory(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordInteraction 记录交互账本操作
func (m *MetricsCollector) RecordInteraction(action string, changed bool) {
	if m == nil {
		return
	}
	m.interactionsTotal.WithLabelValues(action, strconv.FormatBool(changed)).Inc()
}

// RecordCounterAdjustFailure 记录尽力模式下计数更新失败
func (m *MetricsCollector) RecordCounterAdjustFailure(action string) {
	if m == nil {
		return
	}
	m.counterAdjustErrors.WithLabelValues(action).Inc()
}

// RecordRecount 记录对账修正的行数
func (m *MetricsCollector) RecordRecount(counter string, corrected int64) {
	if m == nil || corrected <= 0 {
		return
	}
	m.recountCorrections.WithLabelValues(counter).Add(float64(corrected))
}

// RecordLedgerOp 记录资金操作
func (m *MetricsCollector) RecordLedgerOp(kind, outcome string, amount int64) {
	if m == nil {
		return
	}
	m.ledgerOpsTotal.WithLabelValues(kind, outcome).Inc()
	if outcome == "ok" && amount > 0 {
		m.ledgerAmount.WithLabelValues(kind).Add(float64(amount))
	}
}

// RecordCacheLookup 记录缓存命中情况
func (m *MetricsCollector) RecordCacheLookup(cacheType, keyPrefix string, hits, misses int) {
	if m == nil {
		return
	}
	if hits > 0 {
		m.cacheHitsTotal.WithLabelValues(cacheType, keyPrefix).Add(float64(hits))
	}
	if misses > 0 {
		m.cacheMissesTotal.WithLabelValues(cacheType, keyPrefix).Add(float64(misses))
	}
}

// RecordRealtimeEvent 记录发布的变更事件
func (m *MetricsCollector) RecordRealtimeEvent(scope, op string) {
	if m == nil {
		return
	}
	m.realtimeEventsTotal.WithLabelValues(scope, op).Inc()
}

// RecordNotification 记录通知投递结果
func (m *MetricsCollector) RecordNotification(sink string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.notificationsTotal.WithLabelValues(sink, status).Inc()
}

// getStatusCategory 获取状态分类
func getStatusCategory(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
