package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Ingestion outcomes.
const (
	OutcomeCreated   = "created"
	OutcomeUpdated   = "updated"
	OutcomeDuplicate = "duplicate"
	OutcomeLimited   = "limit_reached"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
)

// Fulfillment job dispatch outcomes.
const (
	DispatchSubmitted = "submitted"
	DispatchRetry     = "retry"
	DispatchExhausted = "exhausted"
)

// PipelineMetrics counts order ingestion outcomes and best-effort step failures.
type PipelineMetrics struct {
	ingested    *prometheus.CounterVec
	stepFailure *prometheus.CounterVec
	assignments *prometheus.CounterVec
	dispatched  *prometheus.CounterVec
}

func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	if reg == nil {
		return &PipelineMetrics{}
	}
	ingested := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inkroute_orders_ingested_total",
		Help: "Order submissions by source platform and outcome.",
	}, []string{"platform", "outcome"})
	stepFailure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inkroute_ingest_step_failures_total",
		Help: "Post-commit ingestion steps that failed and were skipped.",
	}, []string{"step"})
	assignments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inkroute_provider_assignments_total",
		Help: "Provider assignments by method.",
	}, []string{"method"})
	dispatched := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inkroute_fulfillment_dispatch_total",
		Help: "Fulfillment job dispatch attempts by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(ingested, stepFailure, assignments, dispatched)
	return &PipelineMetrics{ingested: ingested, stepFailure: stepFailure, assignments: assignments, dispatched: dispatched}
}

func (p *PipelineMetrics) Ingested(platform, outcome string) {
	if p == nil || p.ingested == nil {
		return
	}
	p.ingested.WithLabelValues(normalizeLabel(platform), outcome).Inc()
}

func (p *PipelineMetrics) StepFailed(step string) {
	if p == nil || p.stepFailure == nil {
		return
	}
	p.stepFailure.WithLabelValues(normalizeLabel(step)).Inc()
}

func (p *PipelineMetrics) Assigned(method string) {
	if p == nil || p.assignments == nil {
		return
	}
	p.assignments.WithLabelValues(normalizeLabel(method)).Inc()
}

func (p *PipelineMetrics) Dispatched(outcome string) {
	if p == nil || p.dispatched == nil {
		return
	}
	p.dispatched.WithLabelValues(outcome).Inc()
}
