package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"time"

	"github.com/matzehuels/strata/pkg/assets"
	"github.com/matzehuels/strata/pkg/cache"
	"github.com/matzehuels/strata/pkg/errors"
	"github.com/matzehuels/strata/pkg/observability"
	"github.com/matzehuels/strata/pkg/raster"
)

// DefaultBlueprintSlug names blueprint renders that carry no slug.
const DefaultBlueprintSlug = "blueprint"

// Blueprint is a blueprint edition: a flat, already resolved stack of
// layers. Every image layer is drawn at the top-left corner of the first
// one, which sets the canvas size.
type Blueprint struct {
	Layers []BlueprintLayer `json:"layers"`
}

// BlueprintLayer is one layer of a [Blueprint]. Layers of audio editions
// may carry only an AudioURI; those are skipped when compositing.
type BlueprintLayer struct {
	URI       string `json:"uri,omitempty"`
	BlendMode string `json:"blendMode,omitempty"`
	AudioURI  string `json:"audioUri,omitempty"`
}

// ParseBlueprint decodes and validates a blueprint layout.
func ParseBlueprint(data []byte) (*Blueprint, error) {
	var bp Blueprint
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&bp); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidLayout, err, "decode blueprint")
	}
	if err := bp.Validate(); err != nil {
		return nil, err
	}
	return &bp, nil
}

// Validate checks that the blueprint has an image layer and that every
// blend mode is known.
func (b *Blueprint) Validate() error {
	visual := b.Visual()
	if len(visual) == 0 {
		return errors.New(errors.ErrCodeInvalidLayout, "blueprint has no image layers")
	}
	for i, l := range visual {
		if _, err := raster.ParseBlendMode(l.BlendMode); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidLayout, err, "blueprint layer %d", i)
		}
	}
	return nil
}

// Visual returns the layers with an image, in drawing order.
func (b *Blueprint) Visual() []BlueprintLayer {
	var out []BlueprintLayer
	for _, l := range b.Layers {
		if l.URI != "" {
			out = append(out, l)
		}
	}
	return out
}

// Assets returns the image refs of the blueprint in drawing order.
func (b *Blueprint) Assets() []string {
	visual := b.Visual()
	refs := make([]string, len(visual))
	for i, l := range visual {
		refs[i] = l.URI
	}
	return refs
}

// Audio returns the audio refs of the blueprint.
func (b *Blueprint) Audio() []string {
	var out []string
	for _, l := range b.Layers {
		if l.AudioURI != "" {
			out = append(out, l.AudioURI)
		}
	}
	return out
}

// Hash identifies the image a blueprint draws. Audio refs do not take
// part.
func (b *Blueprint) Hash() string {
	data, _ := json.Marshal(b.Visual())
	return cache.Hash(data)
}

// Blueprint composites opts.Blueprint and caches the encoded result. The
// artifact is keyed by [Blueprint.Hash] in place of a trace hash, and
// Result.TraceKey stays empty.
func (r *Runner) Blueprint(ctx context.Context, opts Options) (*Result, error) {
	if err := opts.ValidateBlueprint(); err != nil {
		return nil, err
	}
	if r.Assets == nil {
		return nil, errors.New(errors.ErrCodeInternal, "runner has no asset store")
	}

	bp := opts.Blueprint
	layers := bp.Visual()
	result := &Result{ContentType: raster.Format(opts.Format).ContentType()}
	result.Stats.Layers = len(layers)
	result.Stats.Assets = len(layers)
	result.TraceHash = bp.Hash()
	result.Key = r.Keyer.ArtifactKey(opts.Slug, result.TraceHash, opts.ArtifactKeyOpts())

	if !opts.Force {
		if data, hit := r.cached(ctx, opts.Slug, result.Key); hit {
			result.Artifact = data
			result.CacheInfo.Hit = true
			return result, nil
		}
	}

	var store assets.Store = r.Assets
	if !opts.NoPrefetch {
		fetchStart := time.Now()
		mem, err := assets.Prefetch(ctx, r.Assets, bp.Assets(), r.PrefetchLimit)
		if err != nil {
			code := errors.GetCode(err)
			if code == "" {
				code = errors.ErrCodeNetwork
			}
			return nil, errors.Wrap(code, err, "prefetch blueprint assets")
		}
		store = mem
		result.Stats.FetchTime = time.Since(fetchStart)
	}

	hooks := observability.Pipeline()
	hooks.OnRenderStart(ctx, opts.Slug, len(layers))
	start := time.Now()
	canvas, err := r.compositeFlat(ctx, store, layers)
	result.Stats.RenderTime = time.Since(start)
	if err != nil {
		hooks.OnRenderComplete(ctx, opts.Slug, 0, err)
		return nil, err
	}
	hooks.OnRenderComplete(ctx, opts.Slug, result.Stats.RenderTime, nil)
	opts.Logger.Info("rendered blueprint",
		"slug", opts.Slug,
		"layers", len(layers),
		"audio", len(bp.Audio()),
		"duration", result.Stats.RenderTime)

	encodeStart := time.Now()
	data, err := raster.EncodeBytes(canvas, raster.Format(opts.Format), opts.Quality)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "encode %s", opts.Format)
	}
	result.Stats.EncodeTime = time.Since(encodeStart)
	result.Artifact = data
	hooks.OnEncode(ctx, opts.Format, len(data))
	result.CacheInfo.Stored = r.store(ctx, result.Key, data)
	return result, nil
}

// compositeFlat draws layers over the first one, all anchored at (0, 0).
func (r *Runner) compositeFlat(ctx context.Context, store assets.Store, layers []BlueprintLayer) (image.Image, error) {
	ras := r.raster()
	var canvas image.Image
	for i, l := range layers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := store.Fetch(ctx, l.URI)
		if err != nil {
			return nil, err
		}
		img, err := ras.Decode(data)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "decode %s", l.URI)
		}
		if i == 0 {
			canvas = img
			continue
		}
		mode, _ := raster.ParseBlendMode(l.BlendMode)
		canvas = ras.Composite(canvas, img, 0, 0, mode, 1)
	}
	return canvas, nil
}
