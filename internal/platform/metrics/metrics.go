// Package metrics provides a Prometheus registry for the gateway.
//
// Metrics live in a private registry rather than the global default so
// tests and embedding programs do not collide. All methods are safe on a
// nil *Registry, which records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ai_gateway"

type Registry struct {
	reg *prometheus.Registry

	// ai_gateway_http_requests_total{route,status}
	httpRequests *prometheus.CounterVec

	// ai_gateway_http_request_duration_seconds{route}
	httpDuration *prometheus.HistogramVec

	// ai_gateway_http_in_flight_requests
	inFlight prometheus.Gauge

	// ai_gateway_upstream_responses_total{provider,status}
	upstreamResponses *prometheus.CounterVec

	// ai_gateway_relay_errors_total{provider,kind}
	relayErrors *prometheus.CounterVec

	// ai_gateway_stream_bytes_total{provider}
	streamBytes *prometheus.CounterVec
}

func New() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r := &Registry{
		reg: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests handled, by route and status code.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Time to complete an HTTP request, streams included.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"route"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_in_flight_requests",
			Help:      "Requests currently being served.",
		}),
		upstreamResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_responses_total",
			Help:      "Upstream provider responses, by provider and status code.",
		}, []string{"provider", "status"}),
		relayErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_errors_total",
			Help:      "Relay failures, by provider and kind.",
		}, []string{"provider", "kind"}),
		streamBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_bytes_total",
			Help:      "Bytes relayed from streaming upstreams to callers.",
		}, []string{"provider"}),
	}

	reg.MustRegister(r.httpRequests, r.httpDuration, r.inFlight, r.upstreamResponses, r.relayErrors, r.streamBytes)
	return r
}

// Handler exposes the registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Begin marks a request in flight and returns a func that records it.
func (r *Registry) Begin() func(route string, status int) {
	if r == nil {
		return func(string, int) {}
	}
	start := time.Now()
	r.inFlight.Inc()
	return func(route string, status int) {
		r.inFlight.Dec()
		r.httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		r.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func (r *Registry) UpstreamResponse(provider string, status int) {
	if r == nil {
		return
	}
	r.upstreamResponses.WithLabelValues(provider, strconv.Itoa(status)).Inc()
}

func (r *Registry) RelayError(provider, kind string) {
	if r == nil {
		return
	}
	r.relayErrors.WithLabelValues(provider, kind).Inc()
}

func (r *Registry) StreamBytes(provider string, n int64) {
	if r == nil || n <= 0 {
		return
	}
	r.streamBytes.WithLabelValues(provider).Add(float64(n))
}
