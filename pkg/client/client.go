// Package client provides the resilient Registry HTTP client: per-credential
// rate limiting, retry with jittered backoff, error classification, and
// offset pagination.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/detecktiv/registry-client/pkg/cache"
	"github.com/detecktiv/registry-client/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for Registry client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "registry_requests_total",
		Help: "Total Registry requests by path and status",
	}, []string{"path", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "registry_request_duration_seconds",
		Help:    "Registry request duration in seconds by path, retries included",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"path"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "registry_errors_total",
		Help: "Total Registry errors by kind",
	}, []string{"kind"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "registry_retries_total",
		Help: "Total number of retry attempts by error kind",
	}, []string{"kind"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "registry_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error kind",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"kind"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "registry_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error kind",
	}, []string{"kind"})
)

// Client defaults.
const (
	DefaultBaseURL    = "https://api.company-information.service.gov.uk"
	DefaultUserAgent  = "registry-client/0.1.0 (+support@detecktiv.io)"
	DefaultTimeout    = 8 * time.Second
	DefaultMaxRetries = 3

	// maxBodyBytes bounds how much of an upstream body is read.
	maxBodyBytes = 10 << 20
)

// Config holds the client configuration. The zero value plus an API key is a
// working client; FromEnv fills it from REGISTRY_* environment variables.
type Config struct {
	// APIKey authenticates requests (HTTP Basic, key as username, empty
	// password) and partitions the rate limiter. Absence is reported on
	// first use, not at construction.
	APIKey string `env:"REGISTRY_API_KEY"`

	// BaseURL overrides the Registry endpoint (tests, mirrors).
	BaseURL string `env:"REGISTRY_BASE_URL"`

	// UserAgent identifies this client to the Registry.
	UserAgent string `env:"REGISTRY_USER_AGENT"`

	// Timeout is the per-request connect+read timeout, independent of
	// retry/backoff timers.
	Timeout time.Duration `env:"REGISTRY_TIMEOUT" envDefault:"8s"`

	// Retry behavior.
	MaxRetries  int           `env:"REGISTRY_MAX_RETRIES" envDefault:"3"`
	BackoffBase time.Duration `env:"REGISTRY_BACKOFF_BASE" envDefault:"500ms"`
	BackoffCap  time.Duration `env:"REGISTRY_BACKOFF_CAP" envDefault:"8s"`

	// Token-bucket rate limiting (default strategy).
	Burst           int           `env:"REGISTRY_BURST" envDefault:"60"`
	RefillPerSecond float64       `env:"REGISTRY_REFILL_PER_SEC" envDefault:"2"`
	LimiterMaxWait  time.Duration `env:"REGISTRY_LIMITER_MAX_WAIT" envDefault:"30s"`

	// MinRequestInterval > 0 selects the interval-throttle strategy instead
	// of the token bucket.
	MinRequestInterval time.Duration `env:"REGISTRY_MIN_REQUEST_INTERVAL"`

	// CacheTTL is the lifetime of cached payloads when Redis is configured.
	CacheTTL time.Duration `env:"REGISTRY_CACHE_TTL" envDefault:"5m"`

	// Limiter overrides the built-in strategies, e.g. to share one limiter
	// across several client instances holding the same credential.
	Limiter ratelimit.Limiter `env:"-"`

	// Redis enables the optional response cache when non-nil.
	Redis *redis.Client `env:"-"`

	// HTTPClient overrides the pooled default (tests).
	HTTPClient *http.Client `env:"-"`
}

// DefaultConfig returns a safe default configuration for the given key.
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:          apiKey,
		BaseURL:         DefaultBaseURL,
		UserAgent:       DefaultUserAgent,
		Timeout:         DefaultTimeout,
		MaxRetries:      DefaultMaxRetries,
		BackoffBase:     DefaultBackoffBase,
		BackoffCap:      DefaultBackoffCap,
		Burst:           ratelimit.DefaultBurst,
		RefillPerSecond: ratelimit.DefaultRefillPerSecond,
		LimiterMaxWait:  ratelimit.DefaultMaxWait,
		CacheTTL:        cache.DefaultTTL,
	}
}

// FromEnv builds a Config from REGISTRY_* environment variables.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse registry config from environment: %w", err)
	}
	return cfg, nil
}

// Client is the Registry HTTP client. It is safe for concurrent use; the
// rate limiter is its only mutable shared state.
type Client struct {
	httpClient *http.Client
	limiter    ratelimit.Limiter
	cache      *cache.Manager
	backoff    BackoffPolicy
	cfg        Config
	logger     zerolog.Logger
}

// New creates a Registry client. A missing API key is not an error here: it
// surfaces on the first call so health checks can start without one.
func New(cfg Config) (*Client, error) {
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("max_retries must be >= 0 (got %d)", cfg.MaxRetries)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	limiter := cfg.Limiter
	if limiter == nil {
		if cfg.MinRequestInterval > 0 {
			limiter = ratelimit.NewIntervalThrottle(cfg.MinRequestInterval)
		} else {
			limiter = ratelimit.NewTokenBucket(cfg.Burst, cfg.RefillPerSecond, cfg.LimiterMaxWait)
		}
	}

	var cacheManager *cache.Manager
	if cfg.Redis != nil {
		cacheManager = cache.NewManager(cfg.Redis, cfg.CacheTTL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		// Default transport pools connections across calls.
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		httpClient: httpClient,
		limiter:    limiter,
		cache:      cacheManager,
		backoff:    BackoffPolicy{Base: cfg.BackoffBase, Cap: cfg.BackoffCap},
		cfg:        cfg,
		logger:     log.With().Str("component", "registry-client").Logger(),
	}, nil
}

// Get fetches one Registry resource as a decoded JSON object, applying rate
// limiting, retries, and classification. Retry decisions live entirely here;
// callers propagate the final error.
func (c *Client) Get(ctx context.Context, path string, params url.Values) (map[string]any, error) {
	if c.cfg.APIKey == "" {
		return nil, &Error{Kind: KindUnauthorized, Path: path, Err: ErrMissingCredential}
	}

	cacheKey := cache.Key{Path: path, Query: params}
	if c.cache != nil {
		if body, err := c.cache.Get(ctx, cacheKey); err == nil {
			var payload map[string]any
			if jsonErr := json.Unmarshal(body, &payload); jsonErr == nil {
				c.logger.Debug().Str("path", path).Msg("Cache hit")
				return payload, nil
			}
			// Corrupt entry: drop it and fetch fresh.
			_ = c.cache.Delete(ctx, cacheKey)
		}
	}

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(path).Observe(time.Since(startTime).Seconds())
	}()

	var lastErr *Error
	attempts := c.cfg.MaxRetries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		// Every attempt pays the limiter, retries included.
		if err := c.limiter.Acquire(ctx, c.cfg.APIKey, 1); err != nil {
			if errors.Is(err, ratelimit.ErrExhausted) {
				errorsTotal.WithLabelValues(string(KindLimiterExhausted)).Inc()
				c.logger.Warn().Str("path", path).Msg("Local rate limiter exhausted")
				return nil, &Error{Kind: KindLimiterExhausted, Path: path, Err: err}
			}
			return nil, fmt.Errorf("acquire rate limiter: %w", err)
		}

		payload, body, attemptErr := c.do(ctx, path, params)
		if attemptErr == nil {
			if attempt > 1 {
				c.logger.Info().
					Str("path", path).
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			if c.cache != nil {
				if err := c.cache.Set(ctx, cacheKey, body); err != nil {
					c.logger.Warn().Err(err).Str("path", path).Msg("Failed to cache response")
				}
			}
			return payload, nil
		}

		lastErr = attemptErr
		errorsTotal.WithLabelValues(string(attemptErr.Kind)).Inc()
		c.logger.Warn().
			Str("path", path).
			Int("status", attemptErr.StatusCode).
			Str("error_kind", string(attemptErr.Kind)).
			Int("attempt", attempt).
			Msg("Registry request error")

		if !attemptErr.Retryable() {
			return nil, lastErr
		}
		if attempt >= attempts {
			break
		}

		delay := c.backoff.Delay(attempt)
		if attemptErr.Kind == KindRateLimited && attemptErr.retryAfter > 0 {
			// Server told us when to come back; trust it over our own guess.
			delay = attemptErr.retryAfter
		}

		retriesTotal.WithLabelValues(string(attemptErr.Kind)).Inc()
		retryBackoffSeconds.WithLabelValues(string(attemptErr.Kind)).Observe(delay.Seconds())
		c.logger.Debug().
			Str("path", path).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("Retrying request after backoff")

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled during retry backoff: %w", ctx.Err())
		case <-time.After(delay):
		}
	}

	// Retries exhausted: surface the last classified error, never a generic
	// timeout.
	retryExhaustedTotal.WithLabelValues(string(lastErr.Kind)).Inc()
	c.logger.Warn().
		Str("path", path).
		Str("error_kind", string(lastErr.Kind)).
		Int("attempts", attempts).
		Msg("Retry attempts exhausted")

	return nil, lastErr
}

// do issues a single attempt and classifies the outcome.
func (c *Client) do(ctx context.Context, path string, params url.Values) (map[string]any, []byte, *Error) {
	u := c.cfg.BaseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, nil, &Error{Kind: KindBadRequest, Path: path, Err: err}
	}
	// Registry auth: key as Basic username, empty password.
	req.SetBasicAuth(c.cfg.APIKey, "")
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		requestsTotal.WithLabelValues(path, "network_error").Inc()
		return nil, nil, &Error{Kind: KindNetwork, Path: path, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		requestsTotal.WithLabelValues(path, "network_error").Inc()
		return nil, nil, &Error{Kind: KindNetwork, Path: path, Err: err}
	}

	status := resp.StatusCode
	requestsTotal.WithLabelValues(path, fmt.Sprintf("%d", status)).Inc()

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return nil, nil, &Error{
			Kind: KindUnauthorized, StatusCode: status, Path: path,
			Snippet: snippet(body),
		}
	case status == http.StatusTooManyRequests:
		return nil, nil, &Error{
			Kind: KindRateLimited, StatusCode: status, Path: path,
			Snippet:    snippet(body),
			retryAfter: retryAfterDelay(resp.Header, 0),
		}
	case status >= 500:
		return nil, nil, &Error{
			Kind: KindUpstreamUnavailable, StatusCode: status, Path: path,
			Snippet: snippet(body),
		}
	case status >= 400:
		return nil, nil, &Error{
			Kind: KindBadRequest, StatusCode: status, Path: path,
			Snippet: snippet(body),
		}
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		// The server answered but broke the contract; retrying won't help.
		return nil, nil, &Error{Kind: KindMalformedResponse, StatusCode: status, Path: path, Err: err}
	}

	return payload, body, nil
}

// BaseURL returns the configured Registry endpoint.
func (c *Client) BaseURL() string {
	return c.cfg.BaseURL
}
