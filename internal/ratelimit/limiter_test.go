package ratelimit

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestNew_CapacityCoercion(t *testing.T) {
	l := New(0, 1.0)
	if l.capacity != 1 {
		t.Fatalf("capacity coercion failed, got %d", l.capacity)
	}
}

func TestAvailable_NeverExceedsCapacity(t *testing.T) {
	l := New(5, 1000.0)
	// Fresh bucket starts full.
	if got := l.Available("k"); got > 5 {
		t.Fatalf("available %v exceeds capacity", got)
	}
	// Even after plenty of refill time, capacity caps the count.
	time.Sleep(20 * time.Millisecond)
	if got := l.Available("k"); got > 5 {
		t.Fatalf("available %v exceeds capacity after elapsed time", got)
	}
}

func TestTryAcquire_DrainAndRefill(t *testing.T) {
	// 2 tokens, refill 10/s => one token back after 100ms.
	l := New(2, 10.0)

	if !l.TryAcquire("k") || !l.TryAcquire("k") {
		t.Fatalf("expected initial capacity of 2 tokens")
	}
	if l.TryAcquire("k") {
		t.Fatalf("expected empty bucket to reject")
	}

	time.Sleep(150 * time.Millisecond) // > 1/R
	if !l.TryAcquire("k") {
		t.Fatalf("expected a token after refill interval")
	}
}

func TestAcquire_TimesOutWithDescriptiveError(t *testing.T) {
	// 1 token, negligible refill: second acquire must exhaust the budget.
	l := New(1, 0.001, WithMaxWait(30*time.Millisecond))

	if err := l.Acquire(context.Background(), "sender-1"); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	err := l.Acquire(context.Background(), "sender-1")
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if !strings.Contains(err.Error(), "sender-1") || !strings.Contains(err.Error(), "ms") {
		t.Fatalf("error should name key and elapsed ms, got: %v", err)
	}
}

func TestAcquire_WaitsForToken(t *testing.T) {
	// 1 token, refill 20/s => next token within 50ms, inside the budget.
	l := New(1, 20.0, WithMaxWait(time.Second))

	if err := l.Acquire(context.Background(), "k"); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	start := time.Now()
	if err := l.Acquire(context.Background(), "k"); err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatalf("acquire waited longer than expected: %v", time.Since(start))
	}
}

func TestIdleBucketEviction(t *testing.T) {
	l := New(1, 1.0, WithIdleTTL(time.Nanosecond))

	l.TryAcquire("old")
	time.Sleep(time.Millisecond)
	// Touching another key sweeps the stale one.
	l.TryAcquire("new")

	l.mu.Lock()
	_, oldExists := l.buckets["old"]
	_, newExists := l.buckets["new"]
	l.mu.Unlock()

	if oldExists {
		t.Fatalf("expected stale bucket to be evicted")
	}
	if !newExists {
		t.Fatalf("expected fresh bucket to remain")
	}
}

func TestAcquire_ContextCancelled(t *testing.T) {
	l := New(1, 0.001, WithMaxWait(time.Second))
	if err := l.Acquire(context.Background(), "k"); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Acquire(ctx, "k"); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
