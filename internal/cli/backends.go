package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/matzehuels/strata/pkg/assets"
	"github.com/matzehuels/strata/pkg/cache"
	"github.com/matzehuels/strata/pkg/config"
	"github.com/matzehuels/strata/pkg/levers"
	"github.com/matzehuels/strata/pkg/pipeline"
	"github.com/matzehuels/strata/pkg/price"
	"github.com/matzehuels/strata/pkg/token"
)

// =============================================================================
// Runner Factory
// =============================================================================

// backends are the collaborators a runner is built from. close releases
// connections in reverse order of opening.
type backends struct {
	assets assets.Store
	levers token.LeverStore
	prices token.PriceFeed
	cache  cache.Cache

	closers []func(context.Context) error
}

func (b *backends) onClose(fn func(context.Context) error) {
	b.closers = append(b.closers, fn)
}

func (b *backends) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := len(b.closers) - 1; i >= 0; i-- {
		_ = b.closers[i](ctx)
	}
}

// openBackends builds stores from cfg. assetDir is used when the config
// names no asset source; the render commands pass the layout's directory.
func (c *CLI) openBackends(ctx context.Context, cfg config.Config, assetDir string, noCache bool) (*backends, error) {
	b := &backends{}
	ok := false
	defer func() {
		if !ok {
			b.close()
		}
	}()

	var err error
	if b.cache, err = openCache(cfg, noCache); err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	b.onClose(func(context.Context) error { return b.cache.Close() })

	if b.assets, err = c.openAssets(cfg, assetDir, b.cache); err != nil {
		return nil, fmt.Errorf("open assets: %w", err)
	}
	if b.levers, err = c.openLevers(ctx, cfg, b); err != nil {
		return nil, fmt.Errorf("open levers: %w", err)
	}
	if b.prices, err = openPrices(cfg); err != nil {
		return nil, fmt.Errorf("open price feed: %w", err)
	}
	ok = true
	return b, nil
}

func openCache(cfg config.Config, noCache bool) (cache.Cache, error) {
	switch {
	case noCache || cfg.Cache.Disabled:
		return cache.NewNullCache(), nil
	case cfg.Redis.URL != "":
		return cache.NewRedisCache(cfg.Redis.URL, cfg.Redis.Namespace)
	}
	dir := cfg.Cache.Dir
	if dir == "" {
		var err error
		if dir, err = cacheDir(); err != nil {
			return cache.NewNullCache(), nil
		}
	}
	return cache.NewFileCache(dir)
}

func (c *CLI) openAssets(cfg config.Config, fallbackDir string, ch cache.Cache) (assets.Store, error) {
	switch {
	case cfg.Assets.Dir != "":
		return assets.NewDirStore(cfg.Assets.Dir), nil
	case cfg.Assets.BaseURL != "":
		store, err := assets.NewHTTPStore(cfg.Assets.BaseURL)
		if err != nil {
			return nil, err
		}
		// Remote assets are content-addressed; keep them next to the
		// rendered artifacts.
		return assets.NewCached(store, ch, c.Logger), nil
	}
	if fallbackDir == "" {
		fallbackDir = "."
	}
	return assets.NewDirStore(fallbackDir), nil
}

func (c *CLI) openLevers(ctx context.Context, cfg config.Config, b *backends) (token.LeverStore, error) {
	lc := cfg.Levers
	var primary token.LeverStore
	switch {
	case lc.File != "":
		m, err := levers.LoadFile(lc.File)
		if err != nil {
			return nil, err
		}
		primary = m
	case lc.MongoURI != "":
		m, client, err := levers.DialMongo(ctx, lc.MongoURI, lc.MongoDatabase)
		if err != nil {
			return nil, err
		}
		b.onClose(client.Disconnect)
		primary = m
	default:
		// Every token reads from the document's unminted values.
		c.Logger.Debug("no lever store configured")
		primary = levers.NewMemory()
	}

	if lc.LegacyFile == "" {
		return primary, nil
	}
	legacy, err := levers.LoadFile(lc.LegacyFile)
	if err != nil {
		return nil, fmt.Errorf("legacy levers: %w", err)
	}
	chain := levers.NewChain(primary, legacy)
	if lc.LegacyCutoff > 0 {
		chain.Cutoff = lc.LegacyCutoff
	}
	return chain, nil
}

func openPrices(cfg config.Config) (token.PriceFeed, error) {
	if cfg.Price.URL != "" {
		return price.NewHTTP(cfg.Price.URL)
	}
	return price.Static(cfg.Price.Static), nil
}

// runner builds a pipeline runner over b.
func (c *CLI) runner(cfg config.Config, b *backends) *pipeline.Runner {
	r := pipeline.NewRunner(b.assets, b.levers, b.cache, c.Logger)
	r.Prices = b.prices
	if cfg.Assets.PrefetchLimit > 0 {
		r.PrefetchLimit = cfg.Assets.PrefetchLimit
	}
	if cfg.Cache.TTL.Duration > 0 {
		r.TTL = cfg.Cache.TTL.Duration
	}
	return r
}
