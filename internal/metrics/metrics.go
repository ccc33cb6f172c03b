// Package metrics exposes Prometheus instrumentation for gateway calls,
// workflow transitions, repository mutations and HTTP requests.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/elparko/CaseTracker/internal/apperr"
	"github.com/elparko/CaseTracker/internal/workflow"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds every metric on its own registry.
type Collector struct {
	registry *prometheus.Registry

	GatewayCalls    *prometheus.CounterVec
	GatewayDuration *prometheus.HistogramVec
	Transitions     *prometheus.CounterVec
	Mutations       *prometheus.CounterVec
	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
}

// NewCollector creates a collector whose metric names are prefixed with
// namespace.
func NewCollector(namespace string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		GatewayCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gateway_calls_total",
				Help:      "Calls to the transcription and analysis services by outcome.",
			},
			[]string{"gateway", "outcome"},
		),
		GatewayDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "gateway_call_duration_seconds",
				Help:      "Latency of calls to the transcription and analysis services.",
				Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"gateway"},
		),
		Transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workflow_transitions_total",
				Help:      "Capture workflow state transitions.",
			},
			[]string{"from", "to", "event"},
		),
		Mutations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "case_mutations_total",
				Help:      "Case repository writes by operation.",
			},
			[]string{"op"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests.",
			},
			[]string{"method", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
	}

	c.registry.MustRegister(
		c.GatewayCalls,
		c.GatewayDuration,
		c.Transitions,
		c.Mutations,
		c.HTTPRequests,
		c.HTTPDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// ObserveGatewayCall records one transcription or analysis call.
func (c *Collector) ObserveGatewayCall(gateway string, elapsed time.Duration, err error) {
	c.GatewayCalls.WithLabelValues(gateway, outcome(err)).Inc()
	c.GatewayDuration.WithLabelValues(gateway).Observe(elapsed.Seconds())
}

// ObserveTransition records one workflow state change.
func (c *Collector) ObserveTransition(from, to workflow.State, e workflow.Event) {
	c.Transitions.WithLabelValues(from.String(), to.String(), e.String()).Inc()
}

// ObserveMutation records one repository write.
func (c *Collector) ObserveMutation(op string) {
	c.Mutations.WithLabelValues(op).Inc()
}

// Middleware counts and times every request passing through next.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		c.HTTPRequests.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()
		c.HTTPDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// outcome labels a call by its error kind: ok, timeout, service_unavailable
// and so on.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return strings.ToLower(string(apperr.KindOf(err)))
}
