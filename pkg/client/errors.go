package client

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// ErrorKind classifies a failed Registry call. Kinds, not Go types, drive the
// retry decision: the executor owns retries entirely and callers above it
// only see the final kind.
type ErrorKind string

const (
	// KindUnauthorized covers 401/403: the credential is bad or revoked.
	// Never retried.
	KindUnauthorized ErrorKind = "unauthorized"

	// KindBadRequest covers other 4xx: the request itself is malformed.
	// Never retried.
	KindBadRequest ErrorKind = "bad_request"

	// KindRateLimited covers 429 from the Registry. Retried up to the limit.
	KindRateLimited ErrorKind = "rate_limited"

	// KindUpstreamUnavailable covers 5xx. Retried up to the limit.
	KindUpstreamUnavailable ErrorKind = "upstream_unavailable"

	// KindNetwork covers connect/read timeouts and connection resets.
	// Retried up to the limit.
	KindNetwork ErrorKind = "network"

	// KindMalformedResponse covers a 2xx whose body is not valid JSON:
	// the server answered but violated the contract. Never retried.
	KindMalformedResponse ErrorKind = "malformed_response"

	// KindLimiterExhausted means the caller waited past the local rate
	// limiter's budget. Distinct from the server-side KindRateLimited.
	KindLimiterExhausted ErrorKind = "limiter_exhausted"
)

// ErrMissingCredential is returned on first use when no API key was
// configured. Construction deliberately succeeds without a key so health
// checks can start.
var ErrMissingCredential = errors.New("registry API key not configured")

// Error is a classified Registry call failure.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Path       string
	// Snippet is a short fragment of the upstream message. Never the full
	// raw body, never credential material.
	Snippet string
	Err     error

	// retryAfter carries a parsed Retry-After header so the retry loop can
	// prefer the server's delay over the computed backoff.
	retryAfter time.Duration
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "registry %s error", e.Kind)
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Path != "" {
		fmt.Fprintf(&b, " on %s", e.Path)
	}
	if e.Snippet != "" {
		fmt.Fprintf(&b, ": %s", e.Snippet)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap supports errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the executor may retry this kind.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindRateLimited, KindUpstreamUnavailable, KindNetwork:
		return true
	default:
		return false
	}
}

// KindOf extracts the classification from an error, or "" if the error did
// not come from this client.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// maxSnippetLen bounds what we echo back from upstream bodies.
const maxSnippetLen = 200

// snippet reduces an upstream body to a short, single-line message fragment.
func snippet(body []byte) string {
	s := strings.Join(strings.Fields(string(body)), " ")
	if len(s) > maxSnippetLen {
		cut := maxSnippetLen
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut] + "…"
	}
	return s
}
