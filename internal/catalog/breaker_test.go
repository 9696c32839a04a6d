package catalog

import (
	"testing"
	"time"
)

func TestBreaker_tripsAfterConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreaker(3, 2, time.Minute)

	for i := 0; i < 2; i++ {
		cb.RecordFailure()
	}
	if cb.State() != BreakerClosed {
		t.Fatalf("state = %v, want closed", cb.State())
	}
	cb.RecordFailure()
	if cb.State() != BreakerOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}
	if err := cb.Allow(); err == nil {
		t.Error("open breaker must reject")
	}
}

func TestBreaker_successResetsFailureRun(t *testing.T) {
	cb := NewCircuitBreaker(3, 2, time.Minute)
	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()
	if cb.State() != BreakerClosed {
		t.Errorf("state = %v, want closed", cb.State())
	}
}

func TestBreaker_halfOpenRecovery(t *testing.T) {
	cb := NewCircuitBreaker(1, 2, 10*time.Millisecond)
	cb.RecordFailure()
	if cb.State() != BreakerOpen {
		t.Fatalf("state = %v", cb.State())
	}

	time.Sleep(20 * time.Millisecond)
	if err := cb.Allow(); err != nil {
		t.Fatalf("Allow after cooldown: %v", err)
	}
	if cb.State() != BreakerHalfOpen {
		t.Fatalf("state = %v, want half-open", cb.State())
	}

	cb.RecordSuccess()
	cb.RecordSuccess()
	if cb.State() != BreakerClosed {
		t.Errorf("state = %v, want closed", cb.State())
	}
}

func TestBreaker_halfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(1, 2, 10*time.Millisecond)
	cb.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	if err := cb.Allow(); err != nil {
		t.Fatal(err)
	}
	cb.RecordFailure()
	if err := cb.Allow(); err == nil {
		t.Error("failure in half-open must reopen the circuit")
	}
}
