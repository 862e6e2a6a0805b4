package bwfunc

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics receives lifecycle events of a Func.
type Metrics interface {
	// Invocation records a completed Invoke call.
	Invocation(coldStart, failed bool)
	// PhaseError records an error that escaped the middleware of lc.
	PhaseError(lc Lifecycle)
	// Middleware records a middleware frame that completed without error.
	Middleware(lc Lifecycle, frame *Frame)
	// Teardown records a teardown of the instance.
	Teardown()
}

type noopMetrics struct{}

func (noopMetrics) Invocation(bool, bool)        {}
func (noopMetrics) PhaseError(Lifecycle)         {}
func (noopMetrics) Middleware(Lifecycle, *Frame) {}
func (noopMetrics) Teardown()                    {}

// NewNoopMetrics returns Metrics that discard every event.
func NewNoopMetrics() Metrics {
	return noopMetrics{}
}

// PrometheusMetrics implements Metrics with Prometheus collectors.
type PrometheusMetrics struct {
	invocations *prometheus.CounterVec
	errors      *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	execution   *prometheus.HistogramVec
	teardowns   prometheus.Counter
}

// NewPrometheusMetrics creates the collectors under namespace and registers
// them with reg.
func NewPrometheusMetrics(namespace string, reg prometheus.Registerer) (*PrometheusMetrics, error) {
	if namespace == "" {
		namespace = "bwfunc"
	}

	pm := &PrometheusMetrics{
		invocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invocations_total",
				Help:      "Total number of invocations",
			},
			[]string{"coldstart", "status"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lifecycle_errors_total",
				Help:      "Total number of errors that escaped a lifecycle",
			},
			[]string{"lifecycle"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "middleware_duration_seconds",
				Help:      "Wall time of middleware including downstream middleware",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"lifecycle", "component"},
		),
		execution: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "middleware_execution_seconds",
				Help:      "Self time of middleware excluding downstream middleware",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"lifecycle", "component"},
		),
		teardowns: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "teardowns_total",
				Help:      "Total number of instance teardowns",
			},
		),
	}

	for _, c := range []prometheus.Collector{pm.invocations, pm.errors, pm.duration, pm.execution, pm.teardowns} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return pm, nil
}

// Invocation implements Metrics.
func (pm *PrometheusMetrics) Invocation(coldStart, failed bool) {
	status := "ok"
	if failed {
		status = "error"
	}
	pm.invocations.WithLabelValues(strconv.FormatBool(coldStart), status).Inc()
}

// PhaseError implements Metrics.
func (pm *PrometheusMetrics) PhaseError(lc Lifecycle) {
	pm.errors.WithLabelValues(lc.String()).Inc()
}

// Middleware implements Metrics.
func (pm *PrometheusMetrics) Middleware(lc Lifecycle, frame *Frame) {
	pm.duration.WithLabelValues(lc.String(), frame.Component).Observe(frame.Duration().Seconds())
	pm.execution.WithLabelValues(lc.String(), frame.Component).Observe(frame.Execution().Seconds())
}

// Teardown implements Metrics.
func (pm *PrometheusMetrics) Teardown() {
	pm.teardowns.Inc()
}
