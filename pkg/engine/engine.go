// Package engine resolves a layout against a token context and composites
// the result.
//
// A render walks the top-level layers strictly in layout order. For each
// layer it picks the active variant ([ResolveVariant]), checks visibility,
// places the leaf (scale, rotation, mirror, anchor, position, orbit), applies
// colour operations and composites the leaf onto the accumulating canvas.
// The placement of every drawn layer is stamped into a [Geometry] side table
// that later layers read when they anchor to it; the layout itself is never
// modified.
//
// Every property read goes through one [measure.Resolver], so the resulting
// [measure.Trace] lists the resolved values in visitation order. [Renderer.Peek]
// runs the same walk against a dimension-only raster without fetching any
// asset, which yields the trace (and the assets a render would need) for
// cache lookups before any pixel work is done.
package engine

import (
	"context"
	"image"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/strata/pkg/errors"
	"github.com/matzehuels/strata/pkg/layout"
	"github.com/matzehuels/strata/pkg/measure"
	"github.com/matzehuels/strata/pkg/raster"
	"github.com/matzehuels/strata/pkg/token"
)

// AssetStore fetches encoded layer images by reference.
type AssetStore interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// Renderer renders layouts. A Renderer holds no per-render state and may be
// used for concurrent renders, each with its own token context.
type Renderer struct {
	Assets AssetStore
	Raster raster.Raster
	Logger *log.Logger
}

// New returns a renderer backed by the bild raster.
func New(assets AssetStore, logger *log.Logger) *Renderer {
	return &Renderer{Assets: assets, Raster: raster.Bild{}, Logger: logger}
}

// Result is the outcome of a render.
type Result struct {
	// Canvas is the composited image, or nil when no layer drew anything.
	Canvas image.Image

	Trace    *measure.Trace
	Geometry *Geometry
	Duration time.Duration
}

// Plan is the outcome of a peek: the trace a render with the same token
// context will produce and the assets it will fetch, in first-use order.
type Plan struct {
	Trace    *measure.Trace
	Assets   []string
	Geometry *Geometry
}

// Render resolves and composites l.
func (r *Renderer) Render(ctx context.Context, l *layout.Layout, tokens *token.Context) (*Result, error) {
	if r.Assets == nil {
		return nil, errors.New(errors.ErrCodeInternal, "renderer has no asset store")
	}
	ras := r.Raster
	if ras == nil {
		ras = raster.Bild{}
	}

	start := time.Now()
	p := r.newPass(l, tokens, ras)
	p.load = func(ctx context.Context, ref string) (image.Image, error) {
		data, err := r.Assets.Fetch(ctx, ref)
		if err != nil {
			code := errors.GetCode(err)
			if code == "" {
				code = errors.ErrCodeNetwork
			}
			return nil, errors.Wrap(code, err, "fetch asset %s", ref)
		}
		img, err := ras.Decode(data)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "decode asset %s", ref)
		}
		return img, nil
	}
	if err := p.run(ctx); err != nil {
		return nil, err
	}
	return &Result{
		Canvas:   p.canvas,
		Trace:    p.res.Trace,
		Geometry: p.geo,
		Duration: time.Since(start),
	}, nil
}

// Peek runs a render without fetching assets or touching pixels. All
// property reads happen exactly as in [Renderer.Render], so a render on a
// [token.Context.Fork] of tokens produces the same trace. Geometry that
// depends on image sizes is computed as if every asset were 0×0.
func (r *Renderer) Peek(ctx context.Context, l *layout.Layout, tokens *token.Context) (*Plan, error) {
	p := r.newPass(l, tokens, raster.Dry{})

	seen := make(map[string]bool)
	var refs []string
	p.load = func(_ context.Context, ref string) (image.Image, error) {
		if !seen[ref] {
			seen[ref] = true
			refs = append(refs, ref)
		}
		return p.raster.Blank(0, 0), nil
	}
	if err := p.run(ctx); err != nil {
		return nil, err
	}
	return &Plan{Trace: p.res.Trace, Assets: refs, Geometry: p.geo}, nil
}

func (r *Renderer) newPass(l *layout.Layout, tokens *token.Context, ras raster.Raster) *pass {
	logger := r.Logger
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return &pass{
		layout: l,
		res:    measure.NewResolver(tokens, logger),
		raster: ras,
		geo:    newGeometry(),
		logger: logger,
	}
}

// pass is the state of one render: the resolver and its trace, the geometry
// side table and the canvas.
type pass struct {
	layout *layout.Layout
	res    *measure.Resolver
	raster raster.Raster
	load   func(ctx context.Context, ref string) (image.Image, error)
	geo    *Geometry
	canvas image.Image
	logger *log.Logger
}

func (p *pass) run(ctx context.Context) error {
	if p.layout == nil {
		return errors.New(errors.ErrCodeInvalidLayout, "layout is nil")
	}
	n := len(p.layout.Layers)
	for i, node := range p.layout.Layers {
		if err := ctx.Err(); err != nil {
			return err
		}
		id := node.NodeID()
		p.logger.Debug("rendering layer", "layer", i+1, "of", n, "id", id)

		leaf, err := ResolveVariant(ctx, p.res, node)
		if err != nil {
			return err
		}
		if leaf == nil {
			continue
		}

		visible, err := Visible(ctx, p.res, leaf)
		if err != nil {
			return err
		}
		if !visible {
			p.logger.Debug("layer not visible, skipping", "id", id)
			continue
		}

		if leaf.IsText() {
			if err := p.drawText(ctx, leaf.Text); err != nil {
				return err
			}
			continue
		}
		if !leaf.IsDrawable() {
			p.logger.Debug("layer has no image, skipping", "id", id)
			continue
		}

		img, err := p.image(ctx, leaf)
		if err != nil {
			return err
		}
		if err := p.drawLeaf(ctx, id, leaf, img); err != nil {
			return err
		}
	}
	return nil
}

func (p *pass) image(ctx context.Context, leaf *layout.Leaf) (image.Image, error) {
	if leaf.Asset == "" {
		return p.raster.Blank(leaf.Width, leaf.Height), nil
	}
	return p.load(ctx, leaf.Asset)
}

// drawLeaf places, colours and composites one leaf. layerID is the id of the
// top-level layer the leaf was selected from; its placement is stamped under
// that id.
func (p *pass) drawLeaf(ctx context.Context, layerID string, leaf *layout.Leaf, img image.Image) error {
	img, pl, ok, err := p.place(ctx, layerID, leaf, img)
	if err != nil || !ok {
		return err
	}

	img, style, err := p.colorize(ctx, leaf, img)
	if err != nil {
		return err
	}

	if p.canvas == nil {
		// The first drawn layer becomes the canvas; its center is the
		// middle of its own bounds.
		p.canvas = img
		pl.CenterX, pl.CenterY = float64(pl.Width)/2, float64(pl.Height)/2
		pl.X, pl.Y = 0, 0
		p.geo.stamp(pl)
		return nil
	}
	p.geo.stamp(pl)
	p.canvas = p.raster.Composite(p.canvas, img, pl.X, pl.Y, style.Mode, style.Opacity)
	return nil
}
