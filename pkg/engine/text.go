package engine

import (
	"context"

	"github.com/matzehuels/strata/pkg/errors"
	"github.com/matzehuels/strata/pkg/layout"
)

// drawText resolves a text node's position and draws it onto the canvas.
// Text needs an existing canvas: it cannot be the first layer drawn.
func (p *pass) drawText(ctx context.Context, t *layout.Text) error {
	x, err := p.res.Resolve(ctx, t.X, "text x")
	if err != nil {
		return err
	}
	y, err := p.res.Resolve(ctx, t.Y, "text y")
	if err != nil {
		return err
	}

	if p.canvas == nil {
		return errors.New(errors.ErrCodeInvalidLayout, "text %q has no canvas to draw on", t.Content)
	}

	if t.CenterH {
		w, err := p.raster.MeasureText(t.Font, t.Content)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "measure text")
		}
		x -= int64(w / 2)
	}

	canvas, err := p.raster.DrawText(p.canvas, t.Font, int(x), int(y), t.Content)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "draw text")
	}
	p.canvas = canvas
	return nil
}
