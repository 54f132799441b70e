package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewWithRegistererRegistersMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()

	m := NewWithRegisterer(registry)

	if m.LoansOriginated == nil || m.HTTPRequests == nil || m.OperationErrors == nil {
		t.Fatalf("expected key metrics to be initialized: %+v", m)
	}

	m.InstallmentsPaid.Inc()
	m.OperationErrors.WithLabelValues("pay_installment", "payment_too_low").Inc()

	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	if len(metricFamilies) == 0 {
		t.Fatalf("expected registered metrics, got none")
	}

	if got := testutil.ToFloat64(m.InstallmentsPaid); got != 1 {
		t.Fatalf("expected installments counter at 1, got %v", got)
	}
}

func TestNewWithRegistererIsolated(t *testing.T) {
	// two registries must not collide on metric names
	_ = NewWithRegisterer(prometheus.NewRegistry())
	_ = NewWithRegisterer(prometheus.NewRegistry())
}
