package client

import (
	"context"
	"net/url"
	"strconv"
)

// Pagination parameter conventions of the Registry.
const (
	DefaultPageSize = 100
	maxPageSize     = 100

	defaultItemsKey   = "items"
	totalResultsKey   = "total_results"
	paramItemsPerPage = "items_per_page"
	paramStartIndex   = "start_index"
)

// PageOptions controls a multi-page fetch.
type PageOptions struct {
	// ItemsKey is the response field holding the page's items. When the
	// field is absent the pager falls back to the conventional "items".
	ItemsKey string

	// PageSize is clamped to the Registry's 1..100 bound (default 100).
	PageSize int

	// StartIndex is the offset of the first item to fetch.
	StartIndex int

	// MaxItems caps the accumulated result; 0 means no cap.
	MaxItems int

	// ExtraParams are passed through on every page request unless they
	// collide with the typed pagination parameters.
	ExtraParams url.Values
}

// PagedResult is the pager's output: a flat item list in upstream order.
type PagedResult struct {
	Items []map[string]any `json:"items"`

	// TotalResults is the upstream-declared total, or the accumulated item
	// count when the upstream never reports one.
	TotalResults int `json:"total_results"`
}

// FetchAll walks a paginated collection, accumulating items until one of the
// stop conditions holds: the caller's MaxItems cap, the upstream-declared
// total, or a short page. The offset advances by items actually received, so
// short pages mid-sequence stay correct.
func (c *Client) FetchAll(ctx context.Context, path string, opts PageOptions) (*PagedResult, error) {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	itemsKey := opts.ItemsKey
	if itemsKey == "" {
		itemsKey = defaultItemsKey
	}

	offset := opts.StartIndex
	if offset < 0 {
		offset = 0
	}

	var items []map[string]any
	total := -1 // unknown until the upstream reports one

	for {
		params := url.Values{}
		for key, values := range opts.ExtraParams {
			if key == paramItemsPerPage || key == paramStartIndex {
				continue // typed parameters win over pass-through
			}
			for _, v := range values {
				params.Add(key, v)
			}
		}
		params.Set(paramItemsPerPage, strconv.Itoa(pageSize))
		params.Set(paramStartIndex, strconv.Itoa(offset))

		payload, err := c.Get(ctx, path, params)
		if err != nil {
			return nil, err
		}

		pageItems := extractItems(payload, itemsKey)
		if total < 0 {
			if declared, ok := intField(payload, totalResultsKey); ok {
				total = declared
			}
		}

		items = append(items, pageItems...)

		if opts.MaxItems > 0 && len(items) >= opts.MaxItems {
			items = items[:opts.MaxItems]
			break
		}
		// Upstream totals are occasionally stale; reaching or passing the
		// declared total means done, never an inconsistency error.
		if total >= 0 && len(items) >= total {
			break
		}
		if len(pageItems) < pageSize {
			break
		}

		offset += len(pageItems)
	}

	result := &PagedResult{Items: items, TotalResults: total}
	if total < 0 {
		result.TotalResults = len(items)
	}

	c.logger.Debug().
		Str("path", path).
		Int("items", len(result.Items)).
		Int("total_results", result.TotalResults).
		Msg("Paged fetch complete")

	return result, nil
}

// extractItems pulls the item list out of a page payload, preferring the
// declared key and falling back to the conventional one.
func extractItems(payload map[string]any, itemsKey string) []map[string]any {
	raw, ok := payload[itemsKey]
	if !ok && itemsKey != defaultItemsKey {
		raw, ok = payload[defaultItemsKey]
	}
	if !ok {
		return nil
	}

	list, ok := raw.([]any)
	if !ok {
		return nil
	}

	items := make([]map[string]any, 0, len(list))
	for _, entry := range list {
		if record, ok := entry.(map[string]any); ok {
			items = append(items, record)
		}
	}
	return items
}

// intField reads an integer field from a decoded JSON object.
func intField(payload map[string]any, key string) (int, bool) {
	raw, ok := payload[key]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	default:
		return 0, false
	}
}
