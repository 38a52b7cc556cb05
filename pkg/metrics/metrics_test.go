package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveDisposition(t *testing.T) {
	before := testutil.ToFloat64(WebhookEventsTotal.WithLabelValues("ignored_echo"))
	ObserveDisposition("ignored_echo")
	ObserveDisposition("ignored_echo")

	if got := testutil.ToFloat64(WebhookEventsTotal.WithLabelValues("ignored_echo")); got != before+2 {
		t.Fatalf("ignored_echo count = %v, want %v", got, before+2)
	}
}

func TestObserveSend(t *testing.T) {
	before := testutil.ToFloat64(SendAttemptsTotal.WithLabelValues("zapi", "status_error"))
	ObserveSend("zapi", "status_error", 15*time.Millisecond)

	if got := testutil.ToFloat64(SendAttemptsTotal.WithLabelValues("zapi", "status_error")); got != before+1 {
		t.Fatalf("send attempts = %v, want %v", got, before+1)
	}
}

func TestSetProviderHealthy(t *testing.T) {
	SetProviderHealthy(true)
	if got := testutil.ToFloat64(ProviderHealthy); got != 1 {
		t.Fatalf("provider_healthy = %v, want 1", got)
	}
	SetProviderHealthy(false)
	if got := testutil.ToFloat64(ProviderHealthy); got != 0 {
		t.Fatalf("provider_healthy = %v, want 0", got)
	}
}
