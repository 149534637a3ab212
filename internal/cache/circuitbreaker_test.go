package cache

import (
	"errors"
	"testing"
	"time"
)

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	cb := newCircuitBreaker(3, time.Hour)
	failing := errors.New("boom")

	for i := 0; i < 3; i++ {
		if err := cb.execute(func() error { return failing }); err != failing {
			t.Fatalf("call %d: got %v, want underlying error", i, err)
		}
	}
	if err := cb.execute(func() error { return nil }); err != ErrCircuitOpen {
		t.Fatalf("expected circuit open, got %v", err)
	}
}

func TestCircuitBreaker_HalfOpenProbeRecovers(t *testing.T) {
	cb := newCircuitBreaker(1, time.Millisecond)
	_ = cb.execute(func() error { return errors.New("boom") })

	time.Sleep(5 * time.Millisecond)

	if err := cb.execute(func() error { return nil }); err != nil {
		t.Fatalf("expected half-open probe to succeed, got %v", err)
	}
	if err := cb.execute(func() error { return nil }); err != nil {
		t.Fatalf("expected closed state to pass calls through, got %v", err)
	}
}

func TestCircuitBreaker_HalfOpenProbeFailureReopens(t *testing.T) {
	cb := newCircuitBreaker(1, time.Millisecond)
	_ = cb.execute(func() error { return errors.New("boom") })
	time.Sleep(5 * time.Millisecond)

	failing := errors.New("still broken")
	if err := cb.execute(func() error { return failing }); err != failing {
		t.Fatalf("got %v", err)
	}
	if err := cb.execute(func() error { return nil }); err != ErrCircuitOpen {
		t.Fatalf("expected reopened circuit, got %v", err)
	}
}
