package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Key identifies a cached Registry response.
type Key struct {
	// Path is the Registry endpoint path (e.g. "/company/01234567/officers").
	Path string

	// Query are the request's query parameters.
	Query url.Values
}

// String generates a deterministic cache key string.
// Format: registry:path:param1=val1:param2=val2
//
// Example:
//
//	registry:company/01234567/officers:items_per_page=100:start_index=0
func (k Key) String() string {
	parts := []string{"registry"}

	path := strings.Trim(k.Path, "/")
	if path != "" {
		parts = append(parts, path)
	}

	// Query params sorted for determinism.
	if len(k.Query) > 0 {
		keys := make([]string, 0, len(k.Query))
		for key := range k.Query {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, k.Query.Get(key)))
		}
	}

	return strings.Join(parts, ":")
}
