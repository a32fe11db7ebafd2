package raster

import (
	"errors"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/anthonynsimon/bild/adjust"
	"github.com/anthonynsimon/bild/blend"
	"github.com/anthonynsimon/bild/clone"
	"github.com/anthonynsimon/bild/fcolor"
	"github.com/anthonynsimon/bild/transform"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

// Bild is the pixel-level [Raster] implementation.
type Bild struct{}

var _ Raster = Bild{}

// Decode implements [Raster].
func (Bild) Decode(data []byte) (image.Image, error) {
	return Decode(data)
}

// Blank implements [Raster].
func (Bild) Blank(w, h int) image.Image {
	return image.NewRGBA(image.Rect(0, 0, max(w, 0), max(h, 0)))
}

// Resize implements [Raster].
func (b Bild) Resize(img image.Image, w, h int) image.Image {
	if w <= 0 || h <= 0 || img.Bounds().Empty() {
		return b.Blank(w, h)
	}
	return transform.Resize(img, w, h, transform.Linear)
}

// Rotate implements [Raster]. Positive angles turn counter-clockwise.
func (Bild) Rotate(img image.Image, degrees float64) image.Image {
	if math.Mod(degrees, 360) == 0 || img.Bounds().Empty() {
		return img
	}
	return transform.Rotate(img, -degrees, &transform.RotationOptions{ResizeBounds: true})
}

// Mirror implements [Raster].
func (Bild) Mirror(img image.Image, horizontal, vertical bool) image.Image {
	if horizontal {
		img = transform.FlipH(img)
	}
	if vertical {
		img = transform.FlipV(img)
	}
	return img
}

// Tint implements [Raster].
func (Bild) Tint(img image.Image, ch Channel, amount int) image.Image {
	return adjust.Apply(img, func(c color.RGBA) color.RGBA {
		switch ch {
		case Red:
			c.R = clampAdd(c.R, amount)
		case Green:
			c.G = clampAdd(c.G, amount)
		case Blue:
			c.B = clampAdd(c.B, amount)
		}
		return c
	})
}

// Hue implements [Raster].
func (Bild) Hue(img image.Image, degrees int) image.Image {
	return adjust.Hue(img, degrees)
}

// Brightness implements [Raster].
func (Bild) Brightness(img image.Image, amount float64) image.Image {
	return adjust.Brightness(img, clampUnit(amount))
}

// Saturate implements [Raster].
func (Bild) Saturate(img image.Image, amount float64) image.Image {
	return adjust.Saturation(img, clampUnit(amount))
}

// Fade implements [Raster].
func (Bild) Fade(img image.Image, opacity float64) image.Image {
	opacity = math.Max(0, math.Min(1, opacity))
	return adjust.Apply(img, func(c color.RGBA) color.RGBA {
		return color.RGBA{
			R: uint8(float64(c.R) * opacity),
			G: uint8(float64(c.G) * opacity),
			B: uint8(float64(c.B) * opacity),
			A: uint8(float64(c.A) * opacity),
		}
	})
}

// Composite implements [Raster].
func (b Bild) Composite(dst, src image.Image, x, y int, mode BlendMode, opacity float64) image.Image {
	base := clone.AsRGBA(dst)
	if src == nil || src.Bounds().Empty() {
		return base
	}

	if mode == "" || mode == BlendNormal {
		mask := image.NewUniform(color.Alpha{A: uint8(math.Round(math.Max(0, math.Min(1, opacity)) * 255))})
		sb := src.Bounds()
		r := image.Rect(x, y, x+sb.Dx(), y+sb.Dy())
		draw.DrawMask(base, r, src, sb.Min, mask, image.Point{}, draw.Over)
		return base
	}

	// Blend functions work on equally sized images, so the layer is placed
	// onto a transparent sheet the size of the canvas first.
	sheet := image.NewRGBA(base.Bounds())
	sb := src.Bounds()
	draw.Draw(sheet, image.Rect(x, y, x+sb.Dx(), y+sb.Dy()), src, sb.Min, draw.Src)
	var fg image.Image = sheet
	if opacity < 1 {
		fg = b.Fade(sheet, opacity)
	}

	switch mode {
	case BlendMultiply:
		return blend.Multiply(base, fg)
	case BlendScreen:
		return blend.Screen(base, fg)
	case BlendOverlay:
		return blend.Overlay(base, fg)
	case BlendLighten:
		return blend.Lighten(base, fg)
	case BlendDifference:
		return blend.Difference(base, fg)
	case BlendExclusion:
		return blend.Exclusion(base, fg)
	case BlendHardLight:
		return blend.Blend(base, fg, hardLight)
	default:
		return blend.Normal(base, fg)
	}
}

func hardLight(bg, fg fcolor.RGBAF64) fcolor.RGBAF64 {
	ch := func(b, f float64) float64 {
		if f <= 0.5 {
			return 2 * b * f
		}
		return 1 - 2*(1-b)*(1-f)
	}
	fg.Clamp()
	a := fg.A
	return fcolor.RGBAF64{
		R: ch(bg.R, fg.R)*a + (1-a)*bg.R,
		G: ch(bg.G, fg.G)*a + (1-a)*bg.G,
		B: ch(bg.B, fg.B)*a + (1-a)*bg.B,
		A: bg.A + a,
	}
}

// MeasureText implements [Raster].
func (Bild) MeasureText(font, s string) (int, error) {
	return measureText(font, s)
}

// DrawText implements [Raster]. The text's top-left corner is placed at
// (x, y); the baseline sits one ascent below.
func (Bild) DrawText(dst image.Image, ref string, x, y int, s string) (image.Image, error) {
	if dst == nil {
		return nil, errors.New("draw text: no canvas")
	}
	fs := ParseFont(ref)
	face, err := newFace(fs)
	if err != nil {
		return nil, err
	}
	defer face.Close()

	canvas := clone.AsRGBA(dst)
	d := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(fs.Color),
		Face: face,
		Dot:  fixed.P(x, y+face.Metrics().Ascent.Round()),
	}
	d.DrawString(s)
	return canvas, nil
}

func clampAdd(v uint8, amount int) uint8 {
	n := int(v) + amount
	switch {
	case n < 0:
		return 0
	case n > 255:
		return 255
	}
	return uint8(n)
}

func clampUnit(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}
