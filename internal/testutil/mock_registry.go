// Package testutil provides testing utilities for the registry client.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
)

// MockResponse defines one canned response from the mock registry.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
}

// MockRegistry is a configurable mock registry server. Paths can be given a
// fixed handler, a scripted sequence of responses (consumed one per request,
// the last one repeating), or a paged dataset served through the registry's
// items_per_page/start_index convention.
type MockRegistry struct {
	server *httptest.Server

	mu        sync.Mutex
	handlers  map[string]http.HandlerFunc
	sequences map[string][]MockResponse

	// Tracking
	requestCounts map[string]int
	lastAuth      string
	lastUserAgent string
}

// NewMockRegistry creates a new mock registry server.
func NewMockRegistry() *MockRegistry {
	mock := &MockRegistry{
		handlers:      make(map[string]http.HandlerFunc),
		sequences:     make(map[string][]MockResponse),
		requestCounts: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requestCounts[r.URL.Path]++
		mock.lastAuth = r.Header.Get("Authorization")
		mock.lastUserAgent = r.Header.Get("User-Agent")

		if seq, ok := mock.sequences[r.URL.Path]; ok && len(seq) > 0 {
			resp := seq[0]
			if len(seq) > 1 {
				mock.sequences[r.URL.Path] = seq[1:]
			}
			mock.mu.Unlock()
			writeResponse(w, resp)
			return
		}

		handler, ok := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if ok {
			handler(w, r)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":"not found"}`)
	}))

	return mock
}

func writeResponse(w http.ResponseWriter, resp MockResponse) {
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		fmt.Fprint(w, resp.Body)
	}
}

// URL returns the mock server URL.
func (m *MockRegistry) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockRegistry) Close() {
	m.server.Close()
}

// SetHandler installs a custom handler for a path.
func (m *MockRegistry) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse makes a path always answer with one canned response.
func (m *MockRegistry) SetResponse(path string, resp MockResponse) {
	m.SetSequence(path, resp)
}

// SetSequence scripts a path to answer with the given responses in order.
// The final response repeats once the script runs out.
func (m *MockRegistry) SetSequence(path string, responses ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sequences[path] = responses
}

// SetPagedItems serves a dataset through the registry's pagination
// convention: items_per_page bounds the slice, start_index offsets into it,
// and total_results declares the dataset size.
func (m *MockRegistry) SetPagedItems(path string, items []map[string]any) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		perPage, err := strconv.Atoi(r.URL.Query().Get("items_per_page"))
		if err != nil || perPage <= 0 {
			perPage = 25
		}
		start, err := strconv.Atoi(r.URL.Query().Get("start_index"))
		if err != nil || start < 0 {
			start = 0
		}

		end := start + perPage
		if start > len(items) {
			start = len(items)
		}
		if end > len(items) {
			end = len(items)
		}

		payload := map[string]any{
			"items":         items[start:end],
			"total_results": len(items),
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(payload)
	})
}

// RequestCount returns how many requests hit a path.
func (m *MockRegistry) RequestCount(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requestCounts[path]
}

// TotalRequests returns how many requests hit the server.
func (m *MockRegistry) TotalRequests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.requestCounts {
		total += n
	}
	return total
}

// LastAuthorization returns the Authorization header of the last request.
func (m *MockRegistry) LastAuthorization() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastAuth
}

// LastUserAgent returns the User-Agent header of the last request.
func (m *MockRegistry) LastUserAgent() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastUserAgent
}

// Reset clears tracking counters and scripted responses.
func (m *MockRegistry) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCounts = make(map[string]int)
	m.sequences = make(map[string][]MockResponse)
	m.handlers = make(map[string]http.HandlerFunc)
	m.lastAuth = ""
	m.lastUserAgent = ""
}

// NewItemsResponse creates a 200 response with an items page.
func NewItemsResponse(items string, totalResults int) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       fmt.Sprintf(`{"items":%s,"total_results":%d}`, items, totalResults),
	}
}

// NewRateLimitResponse creates a 429 response, optionally with Retry-After.
func NewRateLimitResponse(retryAfter string) MockResponse {
	resp := MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error":"rate limit exceeded"}`,
	}
	if retryAfter != "" {
		resp.Headers = map[string]string{"Retry-After": retryAfter}
	}
	return resp
}

// NewServerErrorResponse creates a 500 response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error":"internal server error"}`,
	}
}

// NewUnauthorizedResponse creates a 401 response.
func NewUnauthorizedResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusUnauthorized,
		Body:       `{"error":"invalid authorization"}`,
	}
}
