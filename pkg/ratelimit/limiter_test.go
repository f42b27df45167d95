package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestTokenBucket_BurstThenExhausted(t *testing.T) {
	// Capacity 3, zero refill: exactly 3 acquisitions succeed.
	bucket := NewTokenBucket(3, 0, 50*time.Millisecond)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := bucket.Acquire(ctx, "key-a", 1); err != nil {
			t.Fatalf("Acquire %d failed: %v", i+1, err)
		}
	}

	err := bucket.Acquire(ctx, "key-a", 1)
	if err == nil {
		t.Fatal("Expected exhaustion after burst consumed")
	}
	if !errors.Is(err, ErrExhausted) {
		t.Errorf("Error = %v, want ErrExhausted", err)
	}
}

func TestTokenBucket_CredentialsAreIsolated(t *testing.T) {
	bucket := NewTokenBucket(1, 0, 50*time.Millisecond)
	ctx := context.Background()

	if err := bucket.Acquire(ctx, "key-a", 1); err != nil {
		t.Fatalf("First credential acquire failed: %v", err)
	}
	// key-a is now empty, key-b must still have its full burst.
	if err := bucket.Acquire(ctx, "key-b", 1); err != nil {
		t.Errorf("Second credential should not be throttled by the first: %v", err)
	}
	if err := bucket.Acquire(ctx, "key-a", 1); !errors.Is(err, ErrExhausted) {
		t.Errorf("Expected ErrExhausted for drained credential, got %v", err)
	}
}

func TestTokenBucket_ConcurrentCallersNeverExceedCapacity(t *testing.T) {
	const capacity = 5
	bucket := NewTokenBucket(capacity, 0, 20*time.Millisecond)

	var successes atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < capacity*3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := bucket.Acquire(context.Background(), "shared", 1); err == nil {
				successes.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := successes.Load(); got != capacity {
		t.Errorf("Successful acquisitions = %d, want exactly %d", got, capacity)
	}
}

func TestTokenBucket_CostConsumesMultipleTokens(t *testing.T) {
	bucket := NewTokenBucket(4, 0, 50*time.Millisecond)
	ctx := context.Background()

	if err := bucket.Acquire(ctx, "key", 3); err != nil {
		t.Fatalf("Acquire(cost=3) failed: %v", err)
	}
	if err := bucket.Acquire(ctx, "key", 2); !errors.Is(err, ErrExhausted) {
		t.Errorf("Expected ErrExhausted with 1 token left and cost 2, got %v", err)
	}
	if err := bucket.Acquire(ctx, "key", 1); err != nil {
		t.Errorf("Last token should still be available: %v", err)
	}
}

func TestTokenBucket_RefillAllowsLaterAcquire(t *testing.T) {
	// 50 tokens/sec refill: after draining the burst, a token is available
	// well within the 500ms wait budget.
	bucket := NewTokenBucket(1, 50, 500*time.Millisecond)
	ctx := context.Background()

	if err := bucket.Acquire(ctx, "key", 1); err != nil {
		t.Fatalf("Initial acquire failed: %v", err)
	}

	start := time.Now()
	if err := bucket.Acquire(ctx, "key", 1); err != nil {
		t.Fatalf("Refilled acquire failed: %v", err)
	}
	if waited := time.Since(start); waited < 10*time.Millisecond {
		t.Errorf("Expected a refill wait of roughly 20ms, waited only %v", waited)
	}
}

func TestTokenBucket_ContextCancellation(t *testing.T) {
	bucket := NewTokenBucket(1, 0, 10*time.Second)
	ctx, cancel := context.WithCancel(context.Background())

	if err := bucket.Acquire(ctx, "key", 1); err != nil {
		t.Fatalf("Initial acquire failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- bucket.Acquire(ctx, "key", 1)
	}()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Acquire did not return after context cancellation")
	}
}

func TestIntervalThrottle_SpacesCalls(t *testing.T) {
	throttle := NewIntervalThrottle(60 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	if err := throttle.Acquire(ctx, "key", 1); err != nil {
		t.Fatalf("First acquire failed: %v", err)
	}
	if err := throttle.Acquire(ctx, "key", 1); err != nil {
		t.Fatalf("Second acquire failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("Second call was not spaced out: elapsed %v", elapsed)
	}
}

func TestIntervalThrottle_CredentialsAreIsolated(t *testing.T) {
	throttle := NewIntervalThrottle(200 * time.Millisecond)
	ctx := context.Background()

	if err := throttle.Acquire(ctx, "key-a", 1); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	start := time.Now()
	if err := throttle.Acquire(ctx, "key-b", 1); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("Different credential was delayed %v by the first", elapsed)
	}
}

func TestIntervalThrottle_ZeroIntervalIsNoop(t *testing.T) {
	throttle := NewIntervalThrottle(0)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 10; i++ {
		if err := throttle.Acquire(ctx, "key", 1); err != nil {
			t.Fatalf("Acquire failed: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("Disabled throttle slept for %v", elapsed)
	}
}

func TestIntervalThrottle_ContextCancellation(t *testing.T) {
	throttle := NewIntervalThrottle(10 * time.Second)
	ctx, cancel := context.WithCancel(context.Background())

	if err := throttle.Acquire(ctx, "key", 1); err != nil {
		t.Fatalf("First acquire failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- throttle.Acquire(ctx, "key", 1)
	}()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Acquire did not return after context cancellation")
	}
}

func TestIntervalThrottle_ConcurrentCallersAreSerialized(t *testing.T) {
	const interval = 30 * time.Millisecond
	throttle := NewIntervalThrottle(interval)

	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := throttle.Acquire(context.Background(), "shared", 1); err != nil {
				t.Errorf("Acquire failed: %v", err)
			}
		}()
	}
	wg.Wait()

	// Four callers on one credential occupy four consecutive slots.
	if elapsed := time.Since(start); elapsed < 3*interval-10*time.Millisecond {
		t.Errorf("Concurrent callers finished in %v, want at least ~%v", elapsed, 3*interval)
	}
}
