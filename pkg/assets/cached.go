package assets

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/strata/pkg/cache"
	"github.com/matzehuels/strata/pkg/observability"
)

// DefaultAssetTTL is how long fetched assets stay cached. Assets are content
// addressed, so entries never go stale; the TTL only bounds disk use.
const DefaultAssetTTL = 7 * 24 * time.Hour

// Cached serves assets from Cache and falls back to Store on a miss. Cache
// failures are logged and never fail a fetch.
type Cached struct {
	Store  Store
	Cache  cache.Cache
	Keyer  cache.Keyer
	TTL    time.Duration
	Logger *log.Logger
}

// NewCached wraps store with c using the default keyer and TTL.
func NewCached(store Store, c cache.Cache, logger *log.Logger) *Cached {
	if logger == nil {
		logger = log.Default()
	}
	return &Cached{Store: store, Cache: c, Keyer: cache.NewDefaultKeyer(), TTL: DefaultAssetTTL, Logger: logger}
}

// Fetch implements [Store].
func (c *Cached) Fetch(ctx context.Context, ref string) ([]byte, error) {
	key := c.Keyer.AssetKey(ref)
	hooks := observability.Cache()

	data, hit, err := c.Cache.Get(ctx, key)
	if err != nil {
		c.Logger.Warn("asset cache read failed", "ref", ref, "error", err)
	}
	if hit {
		hooks.OnCacheHit(ctx, "asset")
		return data, nil
	}
	hooks.OnCacheMiss(ctx, "asset")

	data, err = c.Store.Fetch(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := c.Cache.Set(ctx, key, data, c.TTL); err != nil {
		c.Logger.Warn("asset cache write failed", "ref", ref, "error", err)
	} else {
		hooks.OnCacheSet(ctx, "asset", len(data))
	}
	return data, nil
}
