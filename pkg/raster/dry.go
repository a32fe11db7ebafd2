package raster

import (
	"bytes"
	"image"
	"image/color"
	"math"
)

// Dry is a [Raster] that tracks image dimensions and nothing else. Every
// image it returns is fully transparent.
type Dry struct{}

var _ Raster = Dry{}

type dryImage struct {
	w, h int
}

func (d dryImage) ColorModel() color.Model { return color.RGBAModel }
func (d dryImage) Bounds() image.Rectangle { return image.Rect(0, 0, d.w, d.h) }
func (d dryImage) At(int, int) color.Color { return color.Transparent }

// Decode implements [Raster]. Only the image header is read.
func (Dry) Decode(data []byte) (image.Image, error) {
	if err := checkImage(data); err != nil {
		return nil, err
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return dryImage{cfg.Width, cfg.Height}, nil
}

// Blank implements [Raster].
func (Dry) Blank(w, h int) image.Image { return dryImage{max(w, 0), max(h, 0)} }

// Resize implements [Raster].
func (d Dry) Resize(_ image.Image, w, h int) image.Image { return d.Blank(w, h) }

// Rotate implements [Raster]. The result has the bounding box of the rotated
// rectangle.
func (Dry) Rotate(img image.Image, degrees float64) image.Image {
	w, h := Size(img)
	if math.Mod(degrees, 360) == 0 {
		return dryImage{w, h}
	}
	rad := degrees * math.Pi / 180
	sin, cos := math.Abs(math.Sin(rad)), math.Abs(math.Cos(rad))
	fw, fh := float64(w), float64(h)
	return dryImage{
		w: int(math.Ceil(fw*cos + fh*sin - 1e-9)),
		h: int(math.Ceil(fw*sin + fh*cos - 1e-9)),
	}
}

// Mirror implements [Raster].
func (Dry) Mirror(img image.Image, _, _ bool) image.Image { return img }

// Tint implements [Raster].
func (Dry) Tint(img image.Image, _ Channel, _ int) image.Image { return img }

// Hue implements [Raster].
func (Dry) Hue(img image.Image, _ int) image.Image { return img }

// Brightness implements [Raster].
func (Dry) Brightness(img image.Image, _ float64) image.Image { return img }

// Saturate implements [Raster].
func (Dry) Saturate(img image.Image, _ float64) image.Image { return img }

// Fade implements [Raster].
func (Dry) Fade(img image.Image, _ float64) image.Image { return img }

// Composite implements [Raster].
func (Dry) Composite(dst, _ image.Image, _, _ int, _ BlendMode, _ float64) image.Image { return dst }

// MeasureText implements [Raster].
func (Dry) MeasureText(font, s string) (int, error) { return measureText(font, s) }

// DrawText implements [Raster].
func (Dry) DrawText(dst image.Image, _ string, _, _ int, _ string) (image.Image, error) {
	return dst, nil
}
