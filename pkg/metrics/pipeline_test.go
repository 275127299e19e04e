package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestPipelineMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPipelineMetrics(reg)
	m.Ingested("shopify", OutcomeCreated)
	m.Ingested("shopify", OutcomeCreated)
	m.Ingested("api", OutcomeDuplicate)
	m.StepFailed("quota_increment")
	m.Assigned("auto")
	m.Dispatched(DispatchRetry)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	mf := findMetricFamily(mfs, "inkroute_orders_ingested_total")
	if mf == nil {
		t.Fatalf("ingested family missing")
	}
	var created float64
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), "platform", "shopify") && matchesLabel(metric.GetLabel(), "outcome", OutcomeCreated) {
			created = metric.GetCounter().GetValue()
		}
	}
	if created != 2 {
		t.Fatalf("expected 2 created shopify orders, got %f", created)
	}
	if got, err := fetchCounterValue(mfs, "inkroute_ingest_step_failures_total", "step", "quota_increment"); err != nil || got != 1 {
		t.Fatalf("step failure counter got=%f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "inkroute_provider_assignments_total", "method", "auto"); err != nil || got != 1 {
		t.Fatalf("assignment counter got=%f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "inkroute_fulfillment_dispatch_total", "outcome", DispatchRetry); err != nil || got != 1 {
		t.Fatalf("dispatch counter got=%f err=%v", got, err)
	}
}

func TestPipelineMetricsNilSafe(t *testing.T) {
	var m *PipelineMetrics
	m.Ingested("shopify", OutcomeCreated)
	m.Dispatched(DispatchSubmitted)
	NewPipelineMetrics(nil).StepFailed("notify")
}
