package engine

import (
	"context"
	"image"

	"github.com/matzehuels/strata/pkg/layout"
	"github.com/matzehuels/strata/pkg/raster"
)

// Style is how a coloured leaf is composited.
type Style struct {
	Mode    raster.BlendMode
	Opacity float64
}

// colorize resolves and applies the leaf's colour operations in order: red,
// green, blue, hue, brightness, saturation and alpha. Additive operations
// that resolve to 0 are skipped. Alpha below 100 fades the layer itself;
// opacity is handed to the compositor with the blend mode.
func (p *pass) colorize(ctx context.Context, leaf *layout.Leaf, img image.Image) (image.Image, Style, error) {
	style := Style{Mode: leaf.BlendMode, Opacity: 1}
	if style.Mode == "" {
		style.Mode = raster.BlendNormal
	}
	c := leaf.Color
	if c == nil {
		return img, style, nil
	}
	ras := p.raster

	ops := []struct {
		prop  *layout.Property
		label string
		apply func(image.Image, int64) image.Image
	}{
		{c.Red, "color red", func(im image.Image, v int64) image.Image { return ras.Tint(im, raster.Red, int(v)) }},
		{c.Green, "color green", func(im image.Image, v int64) image.Image { return ras.Tint(im, raster.Green, int(v)) }},
		{c.Blue, "color blue", func(im image.Image, v int64) image.Image { return ras.Tint(im, raster.Blue, int(v)) }},
		{c.Hue, "color hue", func(im image.Image, v int64) image.Image { return ras.Hue(im, int(v)) }},
		{c.Brightness, "color brightness", func(im image.Image, v int64) image.Image { return ras.Brightness(im, float64(v)/100) }},
		{c.Saturation, "color saturation", func(im image.Image, v int64) image.Image { return ras.Saturate(im, float64(v)/100) }},
	}
	for _, op := range ops {
		if op.prop == nil {
			continue
		}
		v, err := p.res.Resolve(ctx, *op.prop, op.label)
		if err != nil {
			return nil, style, err
		}
		if v != 0 {
			img = op.apply(img, v)
		}
	}

	if c.Alpha != nil {
		a, err := p.res.Resolve(ctx, *c.Alpha, "color alpha")
		if err != nil {
			return nil, style, err
		}
		if a < 100 {
			img = ras.Fade(img, float64(a)/100)
		}
	}

	style.Mode = c.Mode(style.Mode)

	if c.Opacity != nil {
		o, err := p.res.Resolve(ctx, *c.Opacity, "layer opacity")
		if err != nil {
			return nil, style, err
		}
		style.Opacity = float64(o) / 100
	}
	return img, style, nil
}
