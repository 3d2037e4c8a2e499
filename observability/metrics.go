package observability

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"thurman/native/pool"
)

type apiMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	apiMetricsOnce sync.Once
	apiRegistry    *apiMetrics

	poolMetricsOnce sync.Once
	poolRegistry    *PoolMetrics
)

// API returns the lazily-initialised registry recording HTTP API activity.
func API() *apiMetrics {
	apiMetricsOnce.Do(func() {
		apiRegistry = &apiMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "thurman",
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "Total API requests segmented by route, method and outcome.",
			}, []string{"route", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "thurman",
				Subsystem: "api",
				Name:      "errors_total",
				Help:      "Total API errors segmented by route, method and status code.",
			}, []string{"route", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "thurman",
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "thurman",
				Subsystem: "api",
				Name:      "throttles_total",
				Help:      "Count of API requests rejected by throttling.",
			}, []string{"route", "reason"}),
		}
		prometheus.MustRegister(
			apiRegistry.requests,
			apiRegistry.errors,
			apiRegistry.latency,
			apiRegistry.throttles,
		)
	})
	return apiRegistry
}

// Observe records the outcome of an API request. status is the HTTP status
// written to the client.
func (m *apiMetrics) Observe(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(route, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(route, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordThrottle counts a request rejected for reason, e.g. "rate_limit".
func (m *apiMetrics) RecordThrottle(route, reason string) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(route, reason).Inc()
}

// PoolMetrics records engine operations and pool totals. It implements
// pool.Observer.
type PoolMetrics struct {
	operations *prometheus.CounterVec
	rejections *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	totals     *prometheus.GaugeVec
	cumulative *prometheus.GaugeVec
}

var _ pool.Observer = (*PoolMetrics)(nil)

// Pools returns the singleton pool metrics registry.
func Pools() *PoolMetrics {
	poolMetricsOnce.Do(func() {
		poolRegistry = &PoolMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "thurman",
				Subsystem: "pool",
				Name:      "operations_total",
				Help:      "Engine operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "thurman",
				Subsystem: "pool",
				Name:      "rejections_total",
				Help:      "Rejected engine operations segmented by operation and reason.",
			}, []string{"operation", "reason"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "thurman",
				Subsystem: "pool",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution of engine operations, lock wait included.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			totals: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "thurman",
				Subsystem: "pool",
				Name:      "total_units",
				Help:      "Pool totals in base units segmented by pool and counter.",
			}, []string{"pool", "counter"}),
			cumulative: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "thurman",
				Subsystem: "pool",
				Name:      "distribution_per_share",
				Help:      "Cumulative distribution per share, scaled down from 1e18.",
			}, []string{"pool"}),
		}
		prometheus.MustRegister(
			poolRegistry.operations,
			poolRegistry.rejections,
			poolRegistry.latency,
			poolRegistry.totals,
			poolRegistry.cumulative,
		)
	})
	return poolRegistry
}

func (m *PoolMetrics) ObserveOperation(op string, _ uint64, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
		m.rejections.WithLabelValues(op, RejectionReason(err)).Inc()
	}
	m.operations.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(elapsed.Seconds())
}

func (m *PoolMetrics) ObservePool(view pool.PoolView) {
	if m == nil {
		return
	}
	id := strconv.FormatUint(view.ID, 10)
	for counter, value := range map[string]*big.Int{
		"deposits":         view.TotalDeposits,
		"pending_deposits": view.PendingDeposits,
		"principal":        view.TotalPrincipal,
		"shares":           view.TotalShares,
		"locked_shares":    view.LockedShares,
		"undistributed":    view.Undistributed,
		"protocol_fees":    view.ProtocolFees,
	} {
		m.totals.WithLabelValues(id, counter).Set(toFloat(value))
	}
	m.cumulative.WithLabelValues(id).Set(toFloat(view.Cumulative) / 1e18)
}

// RejectionReason maps an engine error to a stable, low-cardinality label.
func RejectionReason(err error) string {
	var disabled *pool.OperationDisabledError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &disabled):
		return "disabled_" + string(disabled.Kind)
	case errors.Is(err, pool.ErrModulePaused):
		return "module_paused"
	case errors.Is(err, pool.ErrUnauthorized), errors.Is(err, pool.ErrNotAuthorizedOperator):
		return "unauthorized"
	case errors.Is(err, pool.ErrTransferFailed):
		return "transfer_failed"
	case errors.Is(err, pool.ErrCapExceeded):
		return "cap_exceeded"
	case errors.Is(err, pool.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, pool.ErrInsufficientPending), errors.Is(err, pool.ErrInsufficientClaimable),
		errors.Is(err, pool.ErrInsufficientShares), errors.Is(err, pool.ErrInsufficientFees):
		return "insufficient"
	case errors.Is(err, pool.ErrNotRegisteredOriginator):
		return "originator"
	default:
		return "other"
	}
}

func toFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
