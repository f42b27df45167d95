// registry-proxy exposes the resilient registry client as a small HTTP
// daemon: a pass-through proxy for raw registry paths, a composed
// full-company endpoint, search, health probes, and Prometheus metrics.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/detecktiv/registry-client/pkg/client"
	"github.com/detecktiv/registry-client/pkg/logging"
	"github.com/detecktiv/registry-client/pkg/registry"
)

const requestTimeout = 60 * time.Second

func main() {
	// A missing .env is fine; the environment may be set directly.
	_ = godotenv.Load()

	logger := logging.Setup(logging.Config{
		Level:  getEnv("LOG_LEVEL", "info"),
		Pretty: os.Getenv("LOG_PRETTY") == "true",
	}).With().Str("component", "registry-proxy").Logger()

	cfg, err := client.FromEnv()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	var redisClient *redis.Client
	if addr := os.Getenv("REDIS_URL"); addr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: addr})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			cancel()
			logger.Fatal().Err(err).Str("redis_url", addr).Msg("Failed to connect to Redis")
		}
		cancel()
		cfg.Redis = redisClient
		logger.Info().Str("redis_url", addr).Msg("Response cache enabled")
	}

	registryClient, err := client.New(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create registry client")
	}
	svc := registry.New(registryClient)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/ready", readyHandler(redisClient))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/registry/", proxyHandler(registryClient, logger))
	mux.HandleFunc("/companies/", companyFullHandler(svc, logger))
	mux.HandleFunc("/search", searchHandler(svc, logger))

	addr := ":" + getEnv("PORT", "8080")
	logger.Info().Str("addr", addr).Msg("Starting registry proxy server")

	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// readyHandler reports readiness. Redis is only checked when configured: the
// proxy runs fine without a cache.
func readyHandler(redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if redisClient != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := redisClient.Ping(ctx).Err(); err != nil {
				http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}
}

// proxyHandler passes any registry path straight through the resilient
// client: /registry/company/12345678 -> /company/12345678.
func proxyHandler(c *client.Client, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/registry")
		if path == "" || path == "/" {
			http.Error(w, "missing registry path", http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()

		payload, err := c.Get(ctx, path, r.URL.Query())
		if err != nil {
			writeClientError(w, logger, path, err)
			return
		}
		writeJSON(w, logger, payload)
	}
}

// companyFullHandler serves GET /companies/{number}/full.
func companyFullHandler(svc *registry.Service, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/companies/")
		number, suffix, found := strings.Cut(rest, "/")
		if !found || suffix != "full" || number == "" {
			http.Error(w, "expected /companies/{number}/full", http.StatusNotFound)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()

		full, err := svc.CompanyFull(ctx, number, registry.FullOptions{
			EnrichOfficerAppointments: r.URL.Query().Get("enrich_officers") == "true",
		})
		if err != nil {
			writeClientError(w, logger, r.URL.Path, err)
			return
		}
		writeJSON(w, logger, full)
	}
}

// searchHandler serves GET /search?q=... using the advanced-first strategy.
func searchHandler(svc *registry.Service, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query().Get("q")
		if strings.TrimSpace(query) == "" {
			http.Error(w, "missing q parameter", http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()

		out, err := svc.Search(ctx, query, registry.SearchOptions{})
		if err != nil {
			writeClientError(w, logger, "/search", err)
			return
		}
		writeJSON(w, logger, out)
	}
}

// writeClientError maps classified client errors onto proxy status codes.
func writeClientError(w http.ResponseWriter, logger zerolog.Logger, path string, err error) {
	status := http.StatusBadGateway
	switch client.KindOf(err) {
	case client.KindUnauthorized:
		status = http.StatusUnauthorized
	case client.KindBadRequest:
		status = http.StatusBadRequest
	case client.KindRateLimited, client.KindLimiterExhausted:
		status = http.StatusTooManyRequests
	case client.KindUpstreamUnavailable, client.KindNetwork, client.KindMalformedResponse:
		status = http.StatusBadGateway
	}
	if errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
	}

	logger.Warn().Err(err).Str("path", path).Int("status", status).Msg("Proxied request failed")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, logger zerolog.Logger, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error().Err(err).Msg("Failed to write response")
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
