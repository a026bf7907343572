package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		t.Fatalf("writing metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestCodeValidationOutcomeLabels(t *testing.T) {
	outcomes := []string{"authorized", "invalid", "expired", "member_missing", "forbidden"}
	for _, outcome := range outcomes {
		c := CodeValidationsTotal.WithLabelValues(outcome)
		before := counterValue(t, c)
		c.Inc()
		if got := counterValue(t, c); got != before+1 {
			t.Errorf("outcome %q: counter = %v, want %v", outcome, got, before+1)
		}
	}
}

func TestTransitionCountersAreIndependent(t *testing.T) {
	approved := EntryRequestTransitionsTotal.WithLabelValues("approved")
	denied := EntryRequestTransitionsTotal.WithLabelValues("denied")

	beforeApproved := counterValue(t, approved)
	beforeDenied := counterValue(t, denied)

	approved.Inc()

	if got := counterValue(t, approved); got != beforeApproved+1 {
		t.Errorf("approved counter = %v, want %v", got, beforeApproved+1)
	}
	if got := counterValue(t, denied); got != beforeDenied {
		t.Errorf("denied counter moved: %v, want %v", got, beforeDenied)
	}
}

func TestHTTPRequestsTotalLabels(t *testing.T) {
	c := HTTPRequestsTotal.WithLabelValues("POST", "/api/v1/codes/validate", "200")
	before := counterValue(t, c)
	c.Inc()
	if got := counterValue(t, c); got != before+1 {
		t.Errorf("counter = %v, want %v", got, before+1)
	}
}
