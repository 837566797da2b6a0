// Package ratelimit provides an in-process fixed-window rate limiter
// keyed by arbitrary strings (account ID, client IP). State is a single
// mutex-guarded map, so limits are per-instance only; multi-instance
// deployments need an external counter store, which is an accepted
// scaling boundary for this service.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Policy describes a named rate-limit budget.
type Policy struct {
	MaxRequests int
	Window      time.Duration
}

// Configured policies. Values, not mechanism: abuse mitigation rather
// than hard quota enforcement.
var (
	// PolicyMerchant limits merchant-API calls per account.
	PolicyMerchant = Policy{MaxRequests: 100, Window: time.Minute}
	// PolicyWidgetIP limits widget calls from a single IP.
	PolicyWidgetIP = Policy{MaxRequests: 20, Window: time.Minute}
	// PolicyLogin limits credential attempts per IP.
	PolicyLogin = Policy{MaxRequests: 5, Window: 15 * time.Minute}
)

// Result reports the outcome of a single Check call.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

type bucket struct {
	count   int
	resetAt time.Time
}

// Limiter is a fixed-window counter. A burst at a window boundary can
// momentarily admit up to 2x the limit across two adjacent windows;
// acceptable for the use case.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	sweepInterval time.Duration
	cancel        context.CancelFunc
	done          chan struct{}

	// now is swappable for tests.
	now func() time.Time
}

// New creates a Limiter. Call Start to run the background sweep.
func New() *Limiter {
	return &Limiter{
		buckets:       make(map[string]*bucket),
		sweepInterval: time.Minute,
		now:           time.Now,
	}
}

// Check records one request against key and reports whether it fits in
// the window. The bucket is created or refreshed when absent or past its
// reset instant.
func (l *Limiter) Check(key string, policy Policy) Result {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok || now.After(b.resetAt) {
		b = &bucket{resetAt: now.Add(policy.Window)}
		l.buckets[key] = b
	}
	b.count++

	remaining := policy.MaxRequests - b.count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   b.count <= policy.MaxRequests,
		Remaining: remaining,
		ResetAt:   b.resetAt,
	}
}

// Start launches the timer-driven cleanup of expired buckets. Calling
// Start on a limiter that is already running is a no-op, so module
// re-initialization cannot stack duplicate timers.
func (l *Limiter) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})

	go func() {
		defer close(l.done)
		ticker := time.NewTicker(l.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.sweep()
			}
		}
	}()
}

// Stop halts the cleanup goroutine and waits for it to exit. Safe to
// call multiple times.
func (l *Limiter) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// sweep removes buckets whose window has passed.
func (l *Limiter) sweep() {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		if !now.Before(b.resetAt) {
			delete(l.buckets, key)
		}
	}
}

// Len returns the number of live buckets.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
