package cache

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Root prefixes every key written by this package.
const Root = "cache"

// DefaultTTL is applied when a caller passes ttl <= 0 to ReadThrough.
const DefaultTTL = 300 * time.Second

// Cache defines a minimal generic key-value cache with optional TTL per entry.
type Cache[K comparable, V any] interface {
	// Get returns the value and whether it was present and not expired.
	Get(key K) (V, bool)

	// Set stores the value with an optional TTL. If ttl <= 0, the entry does not expire.
	Set(key K, value V, ttl time.Duration)

	// Delete removes a key if present.
	Delete(key K)

	// DeleteFunc removes every key for which match returns true, in one
	// critical section, and reports how many were removed.
	DeleteFunc(match func(K) bool) int

	// Len returns the number of non-expired items currently stored.
	Len() int

	// PurgeExpired scans and removes expired entries.
	PurgeExpired()
}

// Store is the byte-level cache the gateway reads through and invalidates.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the stored bytes. A miss or an expired entry is (nil, false, nil).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set overwrites or creates key, resetting its TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// InvalidatePrefix deletes the key Root+":"+prefix and every key that
	// starts with Root+":"+prefix+":". A concurrent Get sees either the old
	// value or a miss.
	InvalidatePrefix(ctx context.Context, prefix string) (int, error)
}

// Invalidator is the write-side capability of a Store.
type Invalidator interface {
	InvalidatePrefix(ctx context.Context, prefix string) (int, error)
}

// Params are the query parameters folded into a cache key.
type Params map[string]any

// Namespace renders endpoint and params without the Root prefix, e.g.
// "student:student_id=5". Parameters are sorted by name so insertion order
// never changes the result.
func Namespace(endpoint string, params Params) string {
	if len(params) == 0 {
		return endpoint
	}
	names := make([]string, 0, len(params))
	for k := range params {
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(endpoint)
	for _, k := range names {
		b.WriteByte(':')
		b.WriteString(k)
		b.WriteByte('=')
		fmt.Fprint(&b, params[k])
	}
	return b.String()
}

// Key returns the canonical cache key: "cache:" + endpoint + ":k1=v1" + ...
func Key(endpoint string, params Params) string {
	return Root + ":" + Namespace(endpoint, params)
}

// matchesPrefix reports whether key falls under the invalidation prefix.
func matchesPrefix(key, prefix string) bool {
	base := Root + ":" + prefix
	if key == base {
		return true
	}
	return strings.HasPrefix(key, base+":")
}

// namespaceOf extracts the endpoint segment of a key for metric labels.
func namespaceOf(key string) string {
	rest := strings.TrimPrefix(key, Root+":")
	if i := strings.IndexByte(rest, ':'); i >= 0 {
		return rest[:i]
	}
	return rest
}
