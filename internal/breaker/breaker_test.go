package breaker

import (
	"errors"
	"testing"
	"time"
)

// S9 — circuit breaker trip and recovery.
func TestBreaker_TripAndRecover(t *testing.T) {
	now := time.UnixMilli(1_000_000)
	b := New(3, 5*time.Second, WithClock(func() time.Time { return now }))

	failing := errors.New("boom")
	for i := 0; i < 3; i++ {
		err := b.Call(func() error { return failing })
		if !errors.Is(err, failing) {
			t.Fatalf("expected underlying failure to pass through, got %v", err)
		}
	}
	if b.State() != Open {
		t.Fatalf("expected Open after threshold failures, got %s", b.State())
	}

	now = now.Add(1 * time.Second)
	called := false
	err := b.Call(func() error { called = true; return nil })
	if called {
		t.Fatal("expected call rejected while still within reset timeout")
	}
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}

	now = now.Add(6 * time.Second) // now t0+7s, past resetTimeout(5s) from openedAt(t0+0)... ensure past threshold
	called = false
	err = b.Call(func() error { called = true; return nil })
	if !called {
		t.Fatal("expected probe call to execute after reset timeout")
	}
	if err != nil {
		t.Fatalf("expected successful probe, got %v", err)
	}
	if b.State() != Closed {
		t.Fatalf("expected Closed after successful probe, got %s", b.State())
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.UnixMilli(1_000_000)
	b := New(1, time.Second, WithClock(func() time.Time { return now }))

	_ = b.Call(func() error { return errors.New("fail") })
	if b.State() != Open {
		t.Fatalf("expected Open, got %s", b.State())
	}

	now = now.Add(2 * time.Second)
	_ = b.Call(func() error { return errors.New("still failing") })
	if b.State() != Open {
		t.Fatalf("expected breaker to reopen after a failed half-open probe, got %s", b.State())
	}
}

func TestBreaker_ClosedStaysClosedOnSuccess(t *testing.T) {
	b := New(3, time.Second)
	for i := 0; i < 10; i++ {
		if err := b.Call(func() error { return nil }); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if b.State() != Closed {
		t.Fatalf("expected Closed, got %s", b.State())
	}
}
