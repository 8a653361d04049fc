package transport

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vitalvas/restmux/mediatype"
	"github.com/vitalvas/restmux/rest"
)

// Request outcomes, used as the "outcome" label.
const (
	OutcomeOK                   = "ok"
	OutcomeNotFound             = "not_found"
	OutcomeMethodNotAllowed     = "method_not_allowed"
	OutcomeNotAcceptable        = "not_acceptable"
	OutcomeUnsupportedMediaType = "unsupported_media_type"
	OutcomeBadRequest           = "bad_request"
	OutcomeCanceled             = "canceled"
	OutcomeError                = "error"
)

// Metrics holds the transport's collectors on a dedicated registry.
type Metrics struct {
	registry  *prometheus.Registry
	requests  *prometheus.CounterVec
	frames    prometheus.Counter
	bodyBytes prometheus.Counter
	inflight  prometheus.Gauge
}

// NewMetrics creates the collectors and registers them, together with the
// Go runtime and process collectors, on a new registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "restmux_requests_total",
			Help: "Requests served, by outcome.",
		}, []string{"outcome"}),
		frames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "restmux_response_frames_total",
			Help: "Response body frames written.",
		}),
		bodyBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "restmux_request_body_bytes_total",
			Help: "Request body bytes handed to handlers.",
		}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "restmux_inflight_requests",
			Help: "Requests currently being served.",
		}),
	}

	m.registry.MustRegister(
		m.requests,
		m.frames,
		m.bodyBytes,
		m.inflight,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Outcome classifies a finished request. routeErr is the routing failure
// reported by the dispatcher, err the completion error.
func Outcome(routeErr, err error) string {
	switch {
	case routeErr != nil && errors.Is(routeErr, rest.ErrNotFound):
		return OutcomeNotFound
	case routeErr != nil && errors.Is(routeErr, rest.ErrMethodNotAllowed):
		return OutcomeMethodNotAllowed
	case routeErr != nil && errors.Is(routeErr, mediatype.ErrNotAcceptable):
		return OutcomeNotAcceptable
	case routeErr != nil && errors.Is(routeErr, rest.ErrUnsupportedMediaType):
		return OutcomeUnsupportedMediaType
	case routeErr != nil:
		return OutcomeBadRequest
	case err == nil:
		return OutcomeOK
	case errors.Is(err, context.Canceled), errors.Is(err, errClientGone):
		return OutcomeCanceled
	default:
		return OutcomeError
	}
}
