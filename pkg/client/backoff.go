package client

import (
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"
)

// Backoff defaults match the Registry client's observed operational envelope.
const (
	DefaultBackoffBase = 500 * time.Millisecond
	DefaultBackoffCap  = 8 * time.Second

	// minDelay floors every computed delay so retry loops never spin.
	minDelay = 100 * time.Millisecond

	// jitterFraction is the symmetric randomization applied to each delay.
	jitterFraction = 0.2
)

// BackoffPolicy computes retry delays: exponential growth from Base, ±20%
// jitter, clamped to Cap.
type BackoffPolicy struct {
	Base time.Duration
	Cap  time.Duration
}

// DefaultBackoffPolicy returns the standard policy.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		Base: DefaultBackoffBase,
		Cap:  DefaultBackoffCap,
	}
}

// Delay returns the wait before retry attempt n (1-based). The result is
// always positive, jittered, and never exceeds Cap.
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	base := p.Base
	if base <= 0 {
		base = DefaultBackoffBase
	}
	cap := p.Cap
	if cap <= 0 {
		cap = DefaultBackoffCap
	}
	if attempt < 1 {
		attempt = 1
	}

	d := float64(base) * math.Pow(2, float64(attempt-1))
	if d > float64(cap) {
		d = float64(cap)
	}

	// Symmetric jitter: 0.8..1.2 of the computed delay.
	d *= 1 - jitterFraction + rand.Float64()*2*jitterFraction

	delay := time.Duration(d)
	if delay > cap {
		delay = cap
	}
	if delay < minDelay {
		delay = minDelay
	}
	return delay
}

// retryAfterDelay honors a server-supplied Retry-After header (seconds),
// preferring it over the computed backoff. Absent or unparsable headers fall
// back to the provided delay.
func retryAfterDelay(headers http.Header, fallback time.Duration) time.Duration {
	raw := headers.Get("Retry-After")
	if raw == "" {
		return fallback
	}
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil || secs < 0 {
		return fallback
	}
	delay := time.Duration(secs * float64(time.Second))
	if delay < minDelay {
		delay = minDelay
	}
	return delay
}
