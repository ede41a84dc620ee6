// Package metrics holds the Prometheus collectors for the pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns its registry so several engines can coexist in one process (tests).
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	Transitions         *prometheus.CounterVec
	GateOutcomes        *prometheus.CounterVec
	ExtractionDuration  prometheus.Histogram
	HRDDecisions        *prometheus.CounterVec
	LinkFailures        *prometheus.CounterVec
	CollaboratorErrors  *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hireline",
			Name:      "candidate_transitions_total",
			Help:      "Candidate status transitions by target status and trigger.",
		}, []string{"to", "trigger"}),
		GateOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hireline",
			Name:      "document_gate_outcomes_total",
			Help:      "Document intake outcomes by kind.",
		}, []string{"kind", "outcome"}),
		ExtractionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "hireline",
			Name:      "ocr_extraction_duration_seconds",
			Help:      "OCR extraction latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		HRDDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hireline",
			Name:      "hrd_decisions_total",
			Help:      "HRD decisions by result.",
		}, []string{"decision"}),
		LinkFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hireline",
			Name:      "onboarding_link_failures_total",
			Help:      "Rejected onboarding link uses by reason.",
		}, []string{"reason"}),
		CollaboratorErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hireline",
			Name:      "collaborator_errors_total",
			Help:      "Best-effort collaborator failures.",
		}, []string{"collaborator"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hireline",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	reg.MustRegister(
		m.Transitions, m.GateOutcomes, m.ExtractionDuration, m.HRDDecisions,
		m.LinkFailures, m.CollaboratorErrors, m.HTTPRequestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Transition(to, trigger string) {
	if m != nil {
		m.Transitions.WithLabelValues(to, trigger).Inc()
	}
}

func (m *Metrics) GateOutcome(kind, outcome string) {
	if m != nil {
		m.GateOutcomes.WithLabelValues(kind, outcome).Inc()
	}
}

func (m *Metrics) ObserveExtraction(d time.Duration) {
	if m != nil {
		m.ExtractionDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) HRDDecision(decision string) {
	if m != nil {
		m.HRDDecisions.WithLabelValues(decision).Inc()
	}
}

func (m *Metrics) LinkFailure(reason string) {
	if m != nil {
		m.LinkFailures.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) CollaboratorError(name string) {
	if m != nil {
		m.CollaboratorErrors.WithLabelValues(name).Inc()
	}
}

func (m *Metrics) ObserveHTTP(method, route, status string, d time.Duration) {
	if m != nil {
		m.HTTPRequestDuration.WithLabelValues(method, route, status).Observe(d.Seconds())
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
