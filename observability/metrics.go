package observability

import (
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "questvault"

type httpMetrics struct {
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	throttle *prometheus.CounterVec
}

var (
	httpMetricsOnce sync.Once
	httpRegistry    *httpMetrics

	questMetricsOnce sync.Once
	questRegistry    *QuestMetrics
)

// HTTP returns the lazily-initialised registry recording API activity.
func HTTP() *httpMetrics {
	httpMetricsOnce.Do(func() {
		httpRegistry = &httpMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total API requests segmented by route, method and outcome.",
			}, []string{"route", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "errors_total",
				Help:      "Total API errors segmented by route and status code.",
			}, []string{"route", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route", "method"}),
			throttle: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "throttles_total",
				Help:      "Count of requests rejected by the rate limiter.",
			}, []string{"route"}),
		}
		prometheus.MustRegister(
			httpRegistry.requests,
			httpRegistry.errors,
			httpRegistry.latency,
			httpRegistry.throttle,
		)
	})
	return httpRegistry
}

// Observe records the outcome of an API request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *httpMetrics) Observe(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
		m.errors.WithLabelValues(route, fmt.Sprintf("%d", status)).Inc()
	}
	m.requests.WithLabelValues(route, method, outcome).Inc()
	m.latency.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for route.
func (m *httpMetrics) RecordThrottle(route string) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	m.throttle.WithLabelValues(route).Inc()
}

// QuestMetrics captures ledger activity of the quest engines.
type QuestMetrics struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	claimed    *prometheus.CounterVec
	remaining  *prometheus.GaugeVec
}

// Quest returns the singleton metrics registry for quest engines.
func Quest() *QuestMetrics {
	questMetricsOnce.Do(func() {
		questRegistry = &QuestMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "quest",
				Name:      "operations_total",
				Help:      "Count of quest ledger operations segmented by operation and outcome class.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "quest",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for quest ledger operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			claimed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "quest",
				Name:      "claimed_amount_total",
				Help:      "Fungible amounts disbursed by claims segmented by asset.",
			}, []string{"asset"}),
			remaining: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "quest",
				Name:      "pool_remaining",
				Help:      "Remaining unallocated pool per quest and asset.",
			}, []string{"quest", "asset"}),
		}
		prometheus.MustRegister(
			questRegistry.operations,
			questRegistry.latency,
			questRegistry.claimed,
			questRegistry.remaining,
		)
	})
	return questRegistry
}

// Observe records one ledger operation. outcome should be a stable label such
// as "success" or an error class name.
func (m *QuestMetrics) Observe(operation, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.operations.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordClaimed adds a disbursed fungible amount.
func (m *QuestMetrics) RecordClaimed(asset string, amount *big.Int) {
	if m == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	m.claimed.WithLabelValues(labelAsset(asset)).Add(bigToFloat(amount))
}

// RecordRemaining updates the remaining pool gauge.
func (m *QuestMetrics) RecordRemaining(quest uint64, asset string, remaining *big.Int) {
	if m == nil {
		return
	}
	m.remaining.WithLabelValues(fmt.Sprintf("%d", quest), labelAsset(asset)).Set(bigToFloat(remaining))
}

func labelAsset(asset string) string {
	trimmed := strings.TrimSpace(asset)
	if trimmed == "" {
		return "unknown"
	}
	return strings.ToLower(trimmed)
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	floatVal, acc := new(big.Float).SetInt(value).Float64()
	if acc != big.Exact {
		// Guard against NaN/Inf when conversion fails.
		if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
			return 0
		}
	}
	return floatVal
}
