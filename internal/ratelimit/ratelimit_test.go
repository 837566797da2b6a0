package ratelimit

import (
	"context"
	"testing"
	"time"
)

// fakeClock lets tests advance time without sleeping.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter() (*Limiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, time.June, 1, 12, 0, 0, 0, time.UTC)}
	l := New()
	l.now = clock.now
	return l, clock
}

// ========================================
// Check Tests
// ========================================

func TestCheck_ExactBudget(t *testing.T) {
	l, _ := newTestLimiter()
	policy := Policy{MaxRequests: 5, Window: time.Minute}

	for i := 1; i <= 5; i++ {
		res := l.Check("acct_1", policy)
		if !res.Allowed {
			t.Fatalf("call %d: Allowed = false, want true", i)
		}
		if want := 5 - i; res.Remaining != want {
			t.Errorf("call %d: Remaining = %d, want %d", i, res.Remaining, want)
		}
	}

	res := l.Check("acct_1", policy)
	if res.Allowed {
		t.Error("6th call in window must be denied")
	}
	if res.Remaining != 0 {
		t.Errorf("denied call Remaining = %d, want 0", res.Remaining)
	}
}

func TestCheck_WindowRollover(t *testing.T) {
	l, clock := newTestLimiter()
	policy := Policy{MaxRequests: 2, Window: time.Minute}

	l.Check("ip:1.2.3.4", policy)
	l.Check("ip:1.2.3.4", policy)
	if l.Check("ip:1.2.3.4", policy).Allowed {
		t.Fatal("3rd call must be denied within the window")
	}

	clock.advance(time.Minute + time.Second)
	res := l.Check("ip:1.2.3.4", policy)
	if !res.Allowed {
		t.Error("call after window rollover must be allowed")
	}
	if res.Remaining != 1 {
		t.Errorf("Remaining after rollover = %d, want 1", res.Remaining)
	}
}

func TestCheck_KeysIndependent(t *testing.T) {
	l, _ := newTestLimiter()
	policy := Policy{MaxRequests: 1, Window: time.Minute}

	if !l.Check("a", policy).Allowed {
		t.Fatal("first call for key a must pass")
	}
	if l.Check("a", policy).Allowed {
		t.Fatal("second call for key a must be denied")
	}
	if !l.Check("b", policy).Allowed {
		t.Error("key b must have its own budget")
	}
}

func TestCheck_ResetAtStableWithinWindow(t *testing.T) {
	l, clock := newTestLimiter()
	policy := Policy{MaxRequests: 10, Window: time.Minute}

	first := l.Check("k", policy)
	clock.advance(10 * time.Second)
	second := l.Check("k", policy)
	if !first.ResetAt.Equal(second.ResetAt) {
		t.Errorf("ResetAt moved within window: %v then %v", first.ResetAt, second.ResetAt)
	}
	if want := clock.t.Add(50 * time.Second); !second.ResetAt.Equal(want) {
		t.Errorf("ResetAt = %v, want %v", second.ResetAt, want)
	}
}

// ========================================
// Sweep / Lifecycle Tests
// ========================================

func TestSweep_RemovesExpiredBuckets(t *testing.T) {
	l, clock := newTestLimiter()
	policy := Policy{MaxRequests: 5, Window: time.Minute}

	l.Check("stale", policy)
	clock.advance(30 * time.Second)
	l.Check("fresh", policy)

	clock.advance(31 * time.Second) // "stale" window passed, "fresh" still live
	l.sweep()

	if got := l.Len(); got != 1 {
		t.Errorf("Len() after sweep = %d, want 1", got)
	}
}

func TestStartStop_Idempotent(t *testing.T) {
	l := New()
	l.sweepInterval = time.Millisecond

	ctx := context.Background()
	l.Start(ctx)
	l.Start(ctx) // duplicate Start must not stack timers

	l.Check("k", Policy{MaxRequests: 1, Window: time.Nanosecond})
	time.Sleep(20 * time.Millisecond)
	if got := l.Len(); got != 0 {
		t.Errorf("Len() after background sweep = %d, want 0", got)
	}

	l.Stop()
	l.Stop() // double Stop must not panic
}

func TestStop_Restartable(t *testing.T) {
	l := New()
	l.sweepInterval = time.Millisecond

	l.Start(context.Background())
	l.Stop()
	l.Start(context.Background())
	defer l.Stop()

	l.Check("k", Policy{MaxRequests: 1, Window: time.Nanosecond})
	time.Sleep(20 * time.Millisecond)
	if got := l.Len(); got != 0 {
		t.Errorf("sweep not running after restart, Len() = %d", got)
	}
}
