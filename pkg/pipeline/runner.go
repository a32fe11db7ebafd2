package pipeline

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/strata/pkg/assets"
	"github.com/matzehuels/strata/pkg/audio"
	"github.com/matzehuels/strata/pkg/cache"
	"github.com/matzehuels/strata/pkg/engine"
	"github.com/matzehuels/strata/pkg/errors"
	"github.com/matzehuels/strata/pkg/measure"
	"github.com/matzehuels/strata/pkg/observability"
	"github.com/matzehuels/strata/pkg/raster"
	"github.com/matzehuels/strata/pkg/token"
)

// Runner executes pipeline runs with caching. It holds the collaborators
// only; every run builds its own token context, so one Runner serves
// concurrent runs.
type Runner struct {
	Assets engine.AssetStore
	Levers token.LeverStore
	Prices token.PriceFeed
	Clock  token.Clock
	Raster raster.Raster

	Cache  cache.Cache
	Keyer  cache.Keyer
	TTL    time.Duration
	Logger *log.Logger

	// PrefetchLimit bounds concurrent asset downloads.
	PrefetchLimit int
}

// NewRunner creates a runner. A nil cache disables caching.
func NewRunner(assets engine.AssetStore, levers token.LeverStore, c cache.Cache, logger *log.Logger) *Runner {
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		Assets:        assets,
		Levers:        levers,
		Clock:         token.SystemClock{},
		Raster:        raster.Bild{},
		Cache:         c,
		Keyer:         cache.NewDefaultKeyer(),
		TTL:           DefaultArtifactTTL,
		Logger:        logger,
		PrefetchLimit: DefaultPrefetchLimit,
	}
}

// Tokens builds the token context for a run: master id, block and
// timestamp from opts, the UTC offset and unminted fallback values from the
// document.
func (r *Runner) Tokens(opts Options) *token.Context {
	doc := opts.Document
	fallback := make(map[int64]token.ControlToken, len(doc.Unminted))
	for id, vals := range doc.Unminted {
		fallback[id] = token.ControlToken(vals)
	}
	return token.New(token.Options{
		MasterID:   opts.MasterID,
		Block:      opts.Block,
		Store:      r.Levers,
		Prices:     r.Prices,
		Clock:      r.Clock,
		Offset:     doc.UTCOffset,
		Fallback:   fallback,
		Prefetched: opts.Prefetched,
		Timestamp:  opts.Timestamp,
	})
}

func (r *Runner) raster() raster.Raster {
	if r.Raster == nil {
		return raster.Bild{}
	}
	return r.Raster
}

func (r *Runner) renderer(store engine.AssetStore, logger *log.Logger) *engine.Renderer {
	return &engine.Renderer{Assets: store, Raster: r.raster(), Logger: logger}
}

// cached reads an artifact from the cache. Read errors count as misses.
func (r *Runner) cached(ctx context.Context, slug, key string) ([]byte, bool) {
	data, hit, err := r.Cache.Get(ctx, key)
	if err != nil {
		r.Logger.Warn("cache read failed", "key", key, "error", err)
	}
	if hit {
		observability.Cache().OnCacheHit(ctx, "artifact")
		r.Logger.Info("artifact cached", "slug", slug, "key", key)
		return data, true
	}
	observability.Cache().OnCacheMiss(ctx, "artifact")
	return nil, false
}

// store writes an artifact to the cache and reports whether it was stored.
func (r *Runner) store(ctx context.Context, key string, data []byte) bool {
	if err := r.Cache.Set(ctx, key, data, r.TTL); err != nil {
		r.Logger.Warn("cache write failed", "key", key, "error", err)
		return false
	}
	observability.Cache().OnCacheSet(ctx, "artifact", len(data))
	return true
}

// Peek resolves the layout without rendering and returns the plan and the
// artifact key a render would be stored under.
func (r *Runner) Peek(ctx context.Context, opts Options) (*engine.Plan, string, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, "", err
	}
	plan, _, err := r.peek(ctx, opts, r.Tokens(opts))
	if err != nil {
		return nil, "", err
	}
	return plan, r.Keyer.ArtifactKey(opts.Slug, plan.Trace.Hash(), opts.ArtifactKeyOpts()), nil
}

func (r *Runner) peek(ctx context.Context, opts Options, tokens *token.Context) (*engine.Plan, time.Duration, error) {
	hooks := observability.Pipeline()
	hooks.OnPeekStart(ctx, opts.Slug)
	start := time.Now()

	plan, err := r.renderer(nil, opts.Logger).Peek(ctx, opts.Document.Layout, tokens)
	elapsed := time.Since(start)
	if err != nil {
		hooks.OnPeekComplete(ctx, opts.Slug, 0, elapsed, err)
		return nil, elapsed, err
	}
	hooks.OnPeekComplete(ctx, opts.Slug, plan.Trace.Len(), elapsed, nil)
	return plan, elapsed, nil
}

// Execute runs peek → key → cache → render → encode → store.
func (r *Runner) Execute(ctx context.Context, opts Options) (*Result, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	if r.Assets == nil {
		return nil, errors.New(errors.ErrCodeInternal, "runner has no asset store")
	}

	tokens := r.Tokens(opts)
	result := &Result{ContentType: raster.Format(opts.Format).ContentType()}
	result.Stats.Layers = len(opts.Document.Layout.Layers)

	// Stage 1: Peek
	plan, peekTime, err := r.peek(ctx, opts, tokens)
	if err != nil {
		return nil, err
	}
	result.Plan = plan
	result.TraceKey = plan.Trace.Key()
	result.TraceHash = plan.Trace.Hash()
	result.Stats.PeekTime = peekTime
	result.Stats.Measures = plan.Trace.Len()
	result.Stats.Assets = len(plan.Assets)

	r.Logger.Info("peeked render",
		"slug", opts.Slug,
		"measures", plan.Trace.Len(),
		"assets", len(plan.Assets),
		"duration", peekTime)

	// Stage 2: Key and cache lookup
	result.Key = r.Keyer.ArtifactKey(opts.Slug, result.TraceHash, opts.ArtifactKeyOpts())
	if !opts.Force {
		if data, hit := r.cached(ctx, opts.Slug, result.Key); hit {
			result.Artifact = data
			result.CacheInfo.Hit = true
			return result, nil
		}
	}

	// Stage 3: Render
	store := r.Assets
	if !opts.NoPrefetch && len(plan.Assets) > 0 {
		fetchStart := time.Now()
		mem, err := assets.Prefetch(ctx, r.Assets, plan.Assets, r.PrefetchLimit)
		if err != nil {
			code := errors.GetCode(err)
			if code == "" {
				code = errors.ErrCodeNetwork
			}
			return nil, errors.Wrap(code, err, "prefetch assets")
		}
		store = mem
		result.Stats.FetchTime = time.Since(fetchStart)
		r.Logger.Debug("prefetched assets", "count", len(mem), "duration", result.Stats.FetchTime)
	}

	hooks := observability.Pipeline()
	hooks.OnRenderStart(ctx, opts.Slug, result.Stats.Layers)
	res, err := r.renderer(store, opts.Logger).Render(ctx, opts.Document.Layout, tokens.Fork())
	if err != nil {
		hooks.OnRenderComplete(ctx, opts.Slug, 0, err)
		return nil, err
	}
	hooks.OnRenderComplete(ctx, opts.Slug, res.Duration, nil)
	result.Stats.RenderTime = res.Duration

	if !res.Trace.Equal(plan.Trace) {
		// The peek keyed a different image; store under the real trace.
		r.Logger.Warn("render trace differs from peek",
			"peek", plan.Trace.Key(), "render", res.Trace.Key())
		result.TraceKey = res.Trace.Key()
		result.TraceHash = res.Trace.Hash()
		result.Key = r.Keyer.ArtifactKey(opts.Slug, result.TraceHash, opts.ArtifactKeyOpts())
	}

	r.Logger.Info("rendered layout",
		"slug", opts.Slug,
		"duration", res.Duration)

	// Stage 4: Encode and store
	if res.Canvas == nil {
		return nil, errors.New(errors.ErrCodeInvalidLayout, "layout drew no layers")
	}
	encodeStart := time.Now()
	data, err := raster.EncodeBytes(res.Canvas, raster.Format(opts.Format), opts.Quality)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "encode %s", opts.Format)
	}
	result.Stats.EncodeTime = time.Since(encodeStart)
	result.Artifact = data
	hooks.OnEncode(ctx, opts.Format, len(data))

	result.CacheInfo.Stored = r.store(ctx, result.Key, data)
	return result, nil
}

// Stems resolves the active audio stems of the document against a fresh
// token context.
func (r *Runner) Stems(ctx context.Context, opts Options) ([]string, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	res := measure.NewResolver(r.Tokens(opts), opts.Logger)
	return audio.Stems(ctx, res, opts.Document.Audio)
}

// Close releases resources held by the runner (primarily the cache).
func (r *Runner) Close() error {
	if r.Cache != nil {
		return r.Cache.Close()
	}
	return nil
}
