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

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	roundsMetricsOnce sync.Once
	roundsRegistry    *RoundsMetrics
)

// ModuleMetrics returns the lazily-initialised registry used to record HTTP
// route activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "roundledger",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP requests segmented by route group, route and outcome.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "roundledger",
				Subsystem: "http",
				Name:      "errors_total",
				Help:      "Total HTTP errors segmented by route group, route and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "roundledger",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for HTTP handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "roundledger",
				Subsystem: "http",
				Name:      "throttles_total",
				Help:      "Count of requests rejected due to throttling policies.",
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

// Observe records the outcome of a request. The status code should be the
// HTTP status that was ultimately written to the response writer.
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
// reason. Reasons should be stable strings such as "rate_limit".
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

// RoundsMetrics wraps collectors tracking the round engine. It satisfies
// rounds.Metrics.
type RoundsMetrics struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	value      *prometheus.CounterVec
	halted     prometheus.Gauge
	custody    prometheus.Gauge
}

// Rounds exposes the metrics registry for the round engine.
func Rounds() *RoundsMetrics {
	roundsMetricsOnce.Do(func() {
		roundsRegistry = newRoundsMetrics()
		prometheus.MustRegister(roundsRegistry.collectors()...)
	})
	return roundsRegistry
}

func newRoundsMetrics() *RoundsMetrics {
	return &RoundsMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "roundledger",
			Subsystem: "rounds",
			Name:      "operations_total",
			Help:      "Engine operations segmented by operation and outcome (ok or failure kind).",
		}, []string{"operation", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "roundledger",
			Subsystem: "rounds",
			Name:      "operation_duration_seconds",
			Help:      "Latency distribution for engine operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		value: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "roundledger",
			Subsystem: "rounds",
			Name:      "value_total",
			Help:      "Value moved by the engine segmented by flow (stake, stake_fee, payout, reward_fee, sweep).",
		}, []string{"flow"}),
		halted: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "roundledger",
			Subsystem: "rounds",
			Name:      "halted",
			Help:      "Indicates whether the circuit breaker is engaged (1) or not (0).",
		}),
		custody: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "roundledger",
			Subsystem: "rounds",
			Name:      "custody_balance",
			Help:      "Balance held by the custody account.",
		}),
	}
}

func (m *RoundsMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.operations, m.latency, m.value, m.halted, m.custody}
}

// ObserveOperation records one engine call.
func (m *RoundsMetrics) ObserveOperation(op, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	op = labelOr(op, "unknown")
	m.operations.WithLabelValues(op, labelOr(outcome, "unknown")).Inc()
	m.latency.WithLabelValues(op).Observe(elapsed.Seconds())
}

// AddValue accumulates amount under flow. Non-positive amounts are ignored.
func (m *RoundsMetrics) AddValue(flow string, amount *big.Int) {
	if m == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	m.value.WithLabelValues(labelOr(flow, "unknown")).Add(bigToFloat(amount))
}

// SetHalted toggles the halted gauge.
func (m *RoundsMetrics) SetHalted(halted bool) {
	if m == nil {
		return
	}
	if halted {
		m.halted.Set(1)
		return
	}
	m.halted.Set(0)
}

// RecordCustody updates the custody balance gauge.
func (m *RoundsMetrics) RecordCustody(balance *big.Int) {
	if m == nil {
		return
	}
	m.custody.Set(bigToFloat(balance))
}

func labelOr(value, fallback string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	return trimmed
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
