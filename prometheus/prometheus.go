// Package prometheus implements medic.Observer with Prometheus metrics and
// instruments HTTP handlers.
package prometheus

import (
	"net/http"
	"strconv"
	"time"

	"github.com/fwojciec/medic"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "medic"

var _ medic.Observer = (*Observer)(nil)

// Observer records orchestration, tool and HTTP metrics on one registry.
type Observer struct {
	gatherer prometheus.Gatherer

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	iterations      prometheus.Histogram
	toolCallsTotal  *prometheus.CounterVec
	toolDuration    *prometheus.HistogramVec
	retriesTotal    *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// New creates an Observer registered on a fresh registry that also carries
// the Go runtime and process collectors.
func New() *Observer {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return NewWithRegistry(reg, reg)
}

// NewWithRegistry creates an Observer registered on reg and exported from
// gatherer.
func NewWithRegistry(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Observer {
	o := &Observer{
		gatherer: gatherer,
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chat_requests_total",
				Help:      "Total number of chat requests by outcome",
			},
			[]string{"outcome"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "chat_request_duration_seconds",
				Help:      "Duration of chat requests in seconds",
				Buckets:   []float64{.25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"outcome"},
		),
		iterations: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "chat_iterations",
				Help:      "Reasoning iterations per chat request",
				Buckets:   []float64{1, 2, 3, 4, 5, 6},
			},
		),
		toolCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_calls_total",
				Help:      "Total number of tool calls by tool and outcome",
			},
			[]string{"tool", "outcome"},
		),
		toolDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "tool_call_duration_seconds",
				Help:      "Duration of tool calls in seconds",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"tool"},
		),
		retriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "model_retries_total",
				Help:      "Total number of retried model calls by attempt",
			},
			[]string{"attempt"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests by status code and method",
			},
			[]string{"code", "method"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"code", "method"},
		),
	}
	reg.MustRegister(
		o.requestsTotal,
		o.requestDuration,
		o.iterations,
		o.toolCallsTotal,
		o.toolDuration,
		o.retriesTotal,
		o.httpRequests,
		o.httpDuration,
	)
	return o
}

// ObserveRequest implements medic.Observer.
func (o *Observer) ObserveRequest(outcome string, iterations int, d time.Duration) {
	o.requestsTotal.WithLabelValues(outcome).Inc()
	o.requestDuration.WithLabelValues(outcome).Observe(d.Seconds())
	o.iterations.Observe(float64(iterations))
}

// ObserveToolCall implements medic.Observer.
func (o *Observer) ObserveToolCall(name medic.ToolName, outcome string, d time.Duration) {
	o.toolCallsTotal.WithLabelValues(string(name), outcome).Inc()
	o.toolDuration.WithLabelValues(string(name)).Observe(d.Seconds())
}

// ObserveRetry implements medic.Observer.
func (o *Observer) ObserveRetry(attempt int) {
	o.retriesTotal.WithLabelValues(strconv.Itoa(attempt)).Inc()
}

// Instrument wraps next with request count and latency metrics.
func (o *Observer) Instrument(next http.Handler) http.Handler {
	return promhttp.InstrumentHandlerDuration(o.httpDuration,
		promhttp.InstrumentHandlerCounter(o.httpRequests, next))
}

// Handler serves the registry in the Prometheus exposition format.
func (o *Observer) Handler() http.Handler {
	return promhttp.HandlerFor(o.gatherer, promhttp.HandlerOpts{})
}
