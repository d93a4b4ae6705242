// Package cache provides pluggable byte-level caching for registry responses.
//
// The registry client stores JSON metadata responses through the [Cache]
// interface so repeated scans of overlapping dependency closures don't
// re-fetch the same package documents. Two backends exist: [FileCache] for
// normal CLI use and [NullCache] for --no-cache runs and tests.
package cache

import (
	"context"
	"time"
)

// Cache is the storage interface for cached registry responses.
// Implementations must tolerate concurrent use from a single process;
// cross-process sharing relies on atomic filesystem operations.
type Cache interface {
	// Get retrieves a value by key. The second return value reports whether
	// the key was found and fresh; a miss is not an error.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value under key. A ttl of 0 means the entry never expires.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes a value. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the backend.
	Close() error
}
