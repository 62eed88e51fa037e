package observability

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/aretw0/sealgate/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sealgate"

// Metrics groups every collector the gateway records into.
type Metrics struct {
	registry *prometheus.Registry

	authResults     *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	sessionOps      *prometheus.CounterVec
	storeDuration   *prometheus.HistogramVec
}

// NewMetrics creates and registers the collectors on a fresh registry,
// together with the Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		authResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_results_total",
				Help:      "Authentication outcomes by result.",
			},
			[]string{"result"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
		sessionOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "session_operations_total",
				Help:      "Workflow operations by name and outcome.",
			},
			[]string{"operation", "outcome"},
		),
		storeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "store_operation_duration_seconds",
				Help:      "Duration of session store calls.",
				Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"operation", "outcome"},
		),
	}
	reg.MustRegister(m.authResults, m.requestDuration, m.sessionOps, m.storeDuration)
	return m
}

// Registry exposes the underlying registry for extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveAuth counts one authentication attempt. A nil error counts as "ok".
func (m *Metrics) ObserveAuth(err error) {
	m.authResults.WithLabelValues(Outcome(err)).Inc()
}

// ObserveRequest records the duration of one HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	m.requestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}

// ObserveSessionOp counts one workflow operation.
func (m *Metrics) ObserveSessionOp(op string, err error) {
	m.sessionOps.WithLabelValues(op, Outcome(err)).Inc()
}

// ObserveStore records the duration of one store call.
func (m *Metrics) ObserveStore(op string, d time.Duration, err error) {
	m.storeDuration.WithLabelValues(op, Outcome(err)).Observe(d.Seconds())
}

// RegisterSessionGauge exposes the live session count. Failures to count
// report -1 so a disconnected store is distinguishable from an idle one.
func (m *Metrics) RegisterSessionGauge(size func(context.Context) (int64, error)) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions",
			Help:      "Live container sessions in the store.",
		},
		func() float64 {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			n, err := size(ctx)
			if err != nil {
				return -1
			}
			return float64(n)
		},
	))
}

// RegisterAuditDropped exposes the audit dispatcher's drop counter.
func (m *Metrics) RegisterAuditDropped(dropped func() uint64) {
	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_dropped_total",
			Help:      "Dropped audit events due to dispatcher backpressure.",
		},
		func() float64 { return float64(dropped()) },
	))
}

// Outcome maps an error onto a low-cardinality label value.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	var authErr *domain.AuthenticationError
	if errors.As(err, &authErr) {
		return string(authErr.Reason)
	}
	var techErr *domain.TechnicalError
	if errors.As(err, &techErr) {
		return string(techErr.Kind)
	}
	var invalid *domain.InvalidRequestError
	switch {
	case errors.As(err, &invalid):
		return "invalid_request"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	}
	return "error"
}
