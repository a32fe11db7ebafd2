// Package pipeline provides the render pipeline shared by the CLI, the API
// server and the job worker.
//
// A run has four stages:
//
//  1. Peek: resolve every property of the layout without touching pixels,
//     which yields the render trace and the assets the render needs
//  2. Key: hash the trace into an artifact cache key; a cached artifact
//     ends the run unless a re-render is forced
//  3. Render: prefetch the assets concurrently, then composite the layout
//     on a fork of the peeked token context
//  4. Encode: encode the canvas and store it under the key
//
// Because the render runs on a fork of the peek's token context, it reads
// the same lever values, timestamp, price and random sequence, and so
// produces the trace the key was derived from.
//
// # Usage
//
//	runner := pipeline.NewRunner(assets, levers, cache, logger)
//	result, err := runner.Execute(ctx, pipeline.Options{
//	    Slug:     "genesis-12",
//	    Document: doc,
//	    MasterID: 12,
//	})
//	png := result.Artifact
package pipeline

import (
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/strata/pkg/cache"
	"github.com/matzehuels/strata/pkg/engine"
	"github.com/matzehuels/strata/pkg/errors"
	"github.com/matzehuels/strata/pkg/layout"
	"github.com/matzehuels/strata/pkg/raster"
	"github.com/matzehuels/strata/pkg/token"
)

// =============================================================================
// Default Values
// =============================================================================

const (
	// DefaultFormat is the artifact encoding.
	DefaultFormat = raster.FormatPNG

	// DefaultArtifactTTL is how long artifacts stay cached. A trace fully
	// determines the image, so entries only expire to bound storage.
	DefaultArtifactTTL = 30 * 24 * time.Hour

	// DefaultPrefetchLimit bounds concurrent asset downloads.
	DefaultPrefetchLimit = 8
)

// =============================================================================
// Options
// =============================================================================

// Options configures one pipeline run. It supports JSON for API requests;
// the document travels separately.
type Options struct {
	// Slug names the artifact (collection and token) and namespaces its
	// cache keys.
	Slug string `json:"slug"`

	// MasterID is the token whose layout is rendered. Relative token ids in
	// the layout are offsets from it.
	MasterID int64 `json:"master_id"`

	// Block pins lever reads to a block height; zero reads the latest.
	Block int64 `json:"block,omitempty"`

	// Timestamp pins the render time (unix seconds); zero reads the clock.
	Timestamp int64 `json:"timestamp,omitempty"`

	Format  string `json:"format,omitempty"`
	Quality int    `json:"quality,omitempty"`

	// Force re-renders even when the artifact is cached.
	Force bool `json:"force,omitempty"`

	// NoPrefetch fetches assets one at a time during the render.
	NoPrefetch bool `json:"no_prefetch,omitempty"`

	// Document is the parsed token metadata.
	Document *layout.Document `json:"-"`

	// Blueprint is the flat layer list of a blueprint edition. Only
	// [Runner.Blueprint] reads it.
	Blueprint *Blueprint `json:"-"`

	// Prefetched seeds the lever cache, keyed by absolute token id.
	Prefetched map[int64]token.ControlToken `json:"-"`

	Logger *log.Logger `json:"-"`

	format    raster.Format
	validated bool
}

// ValidateAndSetDefaults checks required fields and applies defaults. It is
// idempotent.
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}
	if err := errors.ValidateSlug(o.Slug); err != nil {
		return err
	}
	if o.Document == nil || o.Document.Layout == nil {
		return errors.New(errors.ErrCodeInvalidInput, "document with a layout is required")
	}
	if o.MasterID < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "master id %d is negative", o.MasterID)
	}
	return o.setOutputDefaults()
}

// ValidateBlueprint is [Options.ValidateAndSetDefaults] for blueprint
// renders: it needs a blueprint instead of a document, and an empty slug
// becomes [DefaultBlueprintSlug].
func (o *Options) ValidateBlueprint() error {
	if o.validated {
		return nil
	}
	if o.Slug == "" {
		o.Slug = DefaultBlueprintSlug
	}
	if err := errors.ValidateSlug(o.Slug); err != nil {
		return err
	}
	if o.Blueprint == nil {
		return errors.New(errors.ErrCodeInvalidInput, "blueprint is required")
	}
	if err := o.Blueprint.Validate(); err != nil {
		return err
	}
	return o.setOutputDefaults()
}

func (o *Options) setOutputDefaults() error {
	f, err := raster.ParseFormat(o.Format)
	if err != nil {
		return err
	}
	o.format = f
	o.Format = string(f)
	if o.Quality < 0 || o.Quality > 100 {
		return errors.New(errors.ErrCodeInvalidInput, "quality %d out of range [0, 100]", o.Quality)
	}
	if f == raster.FormatJPEG && o.Quality == 0 {
		o.Quality = raster.DefaultJPEGQuality
	}
	if f == raster.FormatPNG {
		o.Quality = 0
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	o.validated = true
	return nil
}

// ArtifactKeyOpts returns cache key options for the encoded artifact.
func (o *Options) ArtifactKeyOpts() cache.ArtifactKeyOpts {
	return cache.ArtifactKeyOpts{Format: o.Format, Quality: o.Quality}
}

// =============================================================================
// Results
// =============================================================================

// Result contains the outputs of a pipeline run.
type Result struct {
	// Artifact is the encoded image.
	Artifact    []byte
	ContentType string

	// Key is the artifact cache key.
	Key string

	// TraceKey is the joined render trace, e.g. "2_50_50_7".
	TraceKey  string
	TraceHash string

	// Plan is the peeked render plan.
	Plan *engine.Plan

	Stats     Stats
	CacheInfo CacheInfo
}

// Stats contains pipeline execution statistics.
type Stats struct {
	Layers     int
	Measures   int
	Assets     int
	PeekTime   time.Duration
	FetchTime  time.Duration
	RenderTime time.Duration
	EncodeTime time.Duration
}

// CacheInfo reports how the cache was used.
type CacheInfo struct {
	// Hit is true when the artifact came from the cache.
	Hit bool

	// Stored is true when a rendered artifact was written to the cache.
	Stored bool
}
