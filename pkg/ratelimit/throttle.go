package ratelimit

import (
	"context"
	"sync"
	"time"
)

// IntervalThrottle enforces a minimum interval between requests per
// credential. Each Acquire reserves the next send slot under the lock, so
// concurrent callers sharing one credential are spaced out rather than
// released together.
type IntervalThrottle struct {
	mu          sync.Mutex
	next        map[string]time.Time
	minInterval time.Duration
}

// NewIntervalThrottle creates an interval throttle. A non-positive interval
// disables throttling entirely.
func NewIntervalThrottle(minInterval time.Duration) *IntervalThrottle {
	return &IntervalThrottle{
		next:        make(map[string]time.Time),
		minInterval: minInterval,
	}
}

// Acquire sleeps the remainder of the minimum interval since the credential's
// previous slot, then allows the call. Cost is ignored: every request
// occupies exactly one interval slot. Cancellation aborts the sleep but the
// reserved slot stands, keeping the spacing invariant for other callers.
func (t *IntervalThrottle) Acquire(ctx context.Context, credential string, _ int) error {
	if t.minInterval <= 0 {
		return ctx.Err()
	}

	t.mu.Lock()
	now := time.Now()
	slot := t.next[credential]
	if slot.Before(now) {
		slot = now
	}
	t.next[credential] = slot.Add(t.minInterval)
	t.mu.Unlock()

	wait := time.Until(slot)
	if wait <= 0 {
		return nil
	}

	throttleSleepsTotal.Inc()
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
