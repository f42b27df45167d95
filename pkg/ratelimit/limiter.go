// Package ratelimit bounds outbound request rate per credential.
//
// Two strategies are provided: a token bucket sized to the Registry's
// published limit, and a minimum-inter-request-interval throttle. Both are
// keyed by credential so that two different credentials never throttle each
// other, and both are safe under concurrent callers sharing one credential.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

// Prometheus metrics for local rate limiting.
var (
	rateLimitWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "registry_rate_limit_wait_seconds",
		Help:    "Time spent waiting for local rate limiter capacity",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
	})

	rateLimitExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "registry_rate_limit_exhausted_total",
		Help: "Total number of acquisitions that timed out waiting for local capacity",
	})

	throttleSleepsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "registry_throttle_sleeps_total",
		Help: "Total number of sleeps forced by the minimum request interval",
	})
)

// ErrExhausted is returned when the caller waited past the limiter's maximum
// wait without obtaining capacity. It is distinct from a server-side 429.
var ErrExhausted = errors.New("local rate limiter exhausted")

// Limiter gates outbound requests per credential. Acquire blocks until
// capacity is available or the limiter's wait budget runs out.
type Limiter interface {
	Acquire(ctx context.Context, credential string, cost int) error
}

// Registry reference values: burst of 60 requests with a sustained refill of
// 2/sec approximates the published 600 requests per 5 minutes.
const (
	DefaultBurst           = 60
	DefaultRefillPerSecond = 2.0
	DefaultMaxWait         = 30 * time.Second
)

// TokenBucket is a per-credential token bucket. Buckets are created lazily on
// first use and live for the process lifetime; the credential key space is
// small and stable.
type TokenBucket struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter

	burst   int
	refill  rate.Limit
	maxWait time.Duration
}

// NewTokenBucket creates a token bucket limiter. Non-positive arguments fall
// back to the Registry defaults.
func NewTokenBucket(burst int, refillPerSecond float64, maxWait time.Duration) *TokenBucket {
	if burst <= 0 {
		burst = DefaultBurst
	}
	if refillPerSecond < 0 {
		refillPerSecond = DefaultRefillPerSecond
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	return &TokenBucket{
		buckets: make(map[string]*rate.Limiter),
		burst:   burst,
		refill:  rate.Limit(refillPerSecond),
		maxWait: maxWait,
	}
}

// bucket returns the limiter for a credential, creating it with a full bucket
// on first use.
func (b *TokenBucket) bucket(credential string) *rate.Limiter {
	b.mu.Lock()
	defer b.mu.Unlock()

	lim, ok := b.buckets[credential]
	if !ok {
		lim = rate.NewLimiter(b.refill, b.burst)
		b.buckets[credential] = lim
	}
	return lim
}

// Acquire consumes cost tokens from the credential's bucket, blocking until
// they are available or the maximum wait elapses. A timed-out wait returns
// ErrExhausted; a cancelled context returns the context error.
func (b *TokenBucket) Acquire(ctx context.Context, credential string, cost int) error {
	if cost <= 0 {
		cost = 1
	}
	lim := b.bucket(credential)

	waitCtx, cancel := context.WithTimeout(ctx, b.maxWait)
	defer cancel()

	start := time.Now()
	if err := lim.WaitN(waitCtx, cost); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rateLimitExhaustedTotal.Inc()
		return fmt.Errorf("%w: no capacity within %s", ErrExhausted, b.maxWait)
	}
	rateLimitWaitSeconds.Observe(time.Since(start).Seconds())

	return nil
}
