package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Key identifies a cached listing API response. Listing pages are
// account scoped because the KIS gateway serves tier-dependent fields.
type Key struct {
	// Path is the API path (e.g. "/v1/stocks")
	Path string

	// Query are the query parameters (e.g. {"page": "2"})
	Query url.Values

	// AccountID is the KIS account number for authenticated endpoints
	// (empty for public data)
	AccountID string
}

// String generates a deterministic cache key string.
// Format: kis:path:query1=val1:query2=val2:acct=43098765-01
//
// Example:
//
//	kis:v1/stocks:page=2:acct=43098765-01
func (k Key) String() string {
	parts := []string{"kis"}

	// Add path (normalized)
	path := strings.Trim(k.Path, "/")
	if path != "" {
		parts = append(parts, path)
	}

	// Add query params (sorted for determinism)
	if len(k.Query) > 0 {
		queryKeys := make([]string, 0, len(k.Query))
		for key := range k.Query {
			queryKeys = append(queryKeys, key)
		}
		sort.Strings(queryKeys)

		for _, key := range queryKeys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, k.Query.Get(key)))
		}
	}

	// Add account scope if authenticated
	if k.AccountID != "" {
		parts = append(parts, fmt.Sprintf("acct=%s", k.AccountID))
	}

	return strings.Join(parts, ":")
}
