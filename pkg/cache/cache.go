// Package cache stores encoded artifacts keyed by their render trace.
//
// Two renders of the same layout that resolve to the same trace produce the
// same image, so the trace hash is a complete cache key. The pipeline peeks
// a render, derives the key with a [Keyer] and only renders on a miss.
//
// Implementations:
//
//   - [FileCache]: one file per entry under a directory, for the CLI
//   - [RedisCache]: shared cache for the API server and workers
//   - [NullCache]: never stores anything
package cache

import (
	"context"
	"time"
)

// Cache is a byte-oriented key/value store with optional expiry.
type Cache interface {
	// Get returns the entry for key. A miss is (nil, false, nil).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores data under key. A ttl of zero never expires.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	Close() error
}

// Clearer is implemented by caches that can drop every entry they own.
type Clearer interface {
	Clear(ctx context.Context) (int, error)
}

// Keyer derives cache keys.
type Keyer interface {
	// ArtifactKey keys an encoded render of slug whose trace hashes to
	// traceHash.
	ArtifactKey(slug, traceHash string, opts ArtifactKeyOpts) string

	// AssetKey keys the raw bytes of a layer asset.
	AssetKey(ref string) string
}

// ArtifactKeyOpts are the output options that change an artifact's bytes.
type ArtifactKeyOpts struct {
	Format  string `json:"format"`
	Quality int    `json:"quality,omitempty"`
}

// DefaultKeyer produces keys of the form "artifact:<slug>:<hash>" and
// "asset:<hash>".
type DefaultKeyer struct{}

// NewDefaultKeyer returns the default keyer.
func NewDefaultKeyer() Keyer { return DefaultKeyer{} }

// ArtifactKey implements [Keyer].
func (DefaultKeyer) ArtifactKey(slug, traceHash string, opts ArtifactKeyOpts) string {
	return hashKey("artifact:"+slug, traceHash, opts)
}

// AssetKey implements [Keyer].
func (DefaultKeyer) AssetKey(ref string) string {
	return "asset:" + Hash([]byte(ref))
}
