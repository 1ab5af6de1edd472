package observability

import (
	"fmt"
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

// LedgerMetrics tracks state transitions applied by the node.
type LedgerMetrics struct {
	operations *prometheus.CounterVec
	tipVolume  prometheus.Counter
	tipAmount  prometheus.Histogram
	height     prometheus.Gauge
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	ledgerMetricsOnce sync.Once
	ledgerRegistry    *LedgerMetrics
)

// ModuleMetrics returns the lazily-initialised registry used to record RPC and
// gateway request activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tipjar",
				Subsystem: "module",
				Name:      "requests_total",
				Help:      "Total API requests segmented by surface, method and outcome.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tipjar",
				Subsystem: "module",
				Name:      "errors_total",
				Help:      "Total API errors segmented by surface, method and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "tipjar",
				Subsystem: "module",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tipjar",
				Subsystem: "module",
				Name:      "throttles_total",
				Help:      "Count of requests rejected by rate limiting.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a request. The status code should be the HTTP
// status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied module and
// reason.
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// Ledger returns the singleton ledger metrics registry.
func Ledger() *LedgerMetrics {
	ledgerMetricsOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tipjar",
				Subsystem: "ledger",
				Name:      "operations_total",
				Help:      "Ledger operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			tipVolume: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "tipjar",
				Subsystem: "ledger",
				Name:      "tip_volume_total",
				Help:      "Sum of accepted tip amounts in base units.",
			}),
			tipAmount: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "tipjar",
				Subsystem: "ledger",
				Name:      "tip_amount",
				Help:      "Distribution of accepted tip amounts in base units.",
				Buckets:   prometheus.ExponentialBuckets(10_000, 10, 6),
			}),
			height: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "tipjar",
				Subsystem: "ledger",
				Name:      "height",
				Help:      "Current ledger height.",
			}),
		}
		prometheus.MustRegister(
			ledgerRegistry.operations,
			ledgerRegistry.tipVolume,
			ledgerRegistry.tipAmount,
			ledgerRegistry.height,
		)
	})
	return ledgerRegistry
}

// RecordOperation counts a ledger operation. Outcome is "ok" or the name of the
// error that rejected it.
func (m *LedgerMetrics) RecordOperation(operation, outcome string) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "ok"
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
}

// RecordTip adds an accepted tip to the volume metrics.
func (m *LedgerMetrics) RecordTip(amount *big.Int) {
	if m == nil || amount == nil {
		return
	}
	value := bigToFloat(amount)
	m.tipVolume.Add(value)
	m.tipAmount.Observe(value)
}

// SetHeight publishes the current ledger height.
func (m *LedgerMetrics) SetHeight(height uint64) {
	if m == nil {
		return
	}
	m.height.Set(float64(height))
}

func bigToFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0
	}
	return f
}
