package stresstest

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/studiowebux/restbench/internal/executor"
	"github.com/studiowebux/restbench/internal/types"
)

// Metrics exports batch run activity to Prometheus
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight *prometheus.GaugeVec
	ErrorsTotal      *prometheus.CounterVec
	BytesTotal       *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// NewMetrics registers the collectors with reg. A nil reg creates a private registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "restbench_requests_total",
				Help: "Total number of batch requests by result",
			},
			[]string{"template", "result"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "restbench_request_duration_seconds",
				Help:    "Batch request duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
			},
			[]string{"template"},
		),
		RequestsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "restbench_requests_in_flight",
				Help: "Number of batch requests currently in flight",
			},
			[]string{"template"},
		),
		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "restbench_errors_total",
				Help: "Total number of transport and compile errors by category",
			},
			[]string{"template", "category"},
		),
		BytesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "restbench_bytes_total",
				Help: "Total bytes transferred by direction",
			},
			[]string{"template", "direction"},
		),
		gatherer: reg,
	}
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) started(template string) {
	if m == nil {
		return
	}
	m.RequestsInFlight.WithLabelValues(template).Inc()
}

func (m *Metrics) finished(template string) {
	if m == nil {
		return
	}
	m.RequestsInFlight.WithLabelValues(template).Dec()
}

// observe records one outcome
func (m *Metrics) observe(template string, outcome types.Outcome) {
	if m == nil {
		return
	}

	result := "success"
	if outcome.Failed() {
		result = "failure"
	}
	m.RequestsTotal.WithLabelValues(template, result).Inc()

	if outcome.Err != nil {
		m.ErrorsTotal.WithLabelValues(template, executor.Classify(outcome.Err).String()).Inc()
		return
	}
	if outcome.Record == nil {
		return
	}
	m.RequestDuration.WithLabelValues(template).Observe(outcome.Record.Duration.Seconds())
	m.BytesTotal.WithLabelValues(template, "upload").Add(float64(outcome.Record.RequestSize))
	m.BytesTotal.WithLabelValues(template, "download").Add(float64(outcome.Record.ResponseSize))
}
