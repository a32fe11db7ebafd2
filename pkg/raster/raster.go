// Package raster provides the pixel primitives the render engine composes:
// decode, resize, rotate, mirror, colour adjustments, blend compositing and
// text. The engine only sees [Raster] and opaque [image.Image] handles; it
// never touches pixels itself.
//
// Two implementations ship with the package:
//   - [Bild] performs real pixel work on top of github.com/anthonynsimon/bild
//     and golang.org/x/image.
//   - [Dry] tracks image dimensions only. It lets the engine run a complete
//     resolution pass (the render trace, the asset plan) without fetching or
//     decoding a single asset.
package raster

import (
	"fmt"
	"image"
	"strings"
)

// BlendMode selects how a layer is composited onto the canvas.
type BlendMode string

// Supported blend modes. The empty mode behaves like [BlendNormal].
const (
	BlendNormal     BlendMode = "normal"
	BlendMultiply   BlendMode = "multiply"
	BlendHardLight  BlendMode = "hardlight"
	BlendLighten    BlendMode = "lighten"
	BlendOverlay    BlendMode = "overlay"
	BlendDifference BlendMode = "difference"
	BlendExclusion  BlendMode = "exclusion"
	BlendScreen     BlendMode = "screen"
)

// ValidBlendModes is the set of supported blend modes.
var ValidBlendModes = map[BlendMode]bool{
	BlendNormal:     true,
	BlendMultiply:   true,
	BlendHardLight:  true,
	BlendLighten:    true,
	BlendOverlay:    true,
	BlendDifference: true,
	BlendExclusion:  true,
	BlendScreen:     true,
}

// ParseBlendMode parses a blend mode name. It accepts the spellings used by
// both the layered renderer ("hardlight") and the blueprint renderer
// ("hard-light", "over").
func ParseBlendMode(s string) (BlendMode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "":
		return "", nil
	case "over", "src-over":
		return BlendNormal, nil
	case "hard-light", "hard_light":
		return BlendHardLight, nil
	}
	m := BlendMode(s)
	if !ValidBlendModes[m] {
		return "", fmt.Errorf("unknown blend mode %q", s)
	}
	return m, nil
}

// Channel is a colour channel targeted by [Raster.Tint].
type Channel int

const (
	Red Channel = iota
	Green
	Blue
)

func (c Channel) String() string {
	switch c {
	case Red:
		return "red"
	case Green:
		return "green"
	case Blue:
		return "blue"
	default:
		return fmt.Sprintf("channel(%d)", int(c))
	}
}

// Raster is the set of pixel primitives the engine consumes. Operations
// return new images and leave their inputs untouched.
type Raster interface {
	// Decode turns encoded asset bytes into an image.
	Decode(data []byte) (image.Image, error)

	// Blank returns a fully transparent w×h image.
	Blank(w, h int) image.Image

	// Resize scales img to exactly w×h.
	Resize(img image.Image, w, h int) image.Image

	// Rotate rotates img by degrees, growing the bounds so no pixel is
	// cropped.
	Rotate(img image.Image, degrees float64) image.Image

	// Mirror flips img horizontally and/or vertically.
	Mirror(img image.Image, horizontal, vertical bool) image.Image

	// Tint adds amount (-255..255) to one channel.
	Tint(img image.Image, ch Channel, amount int) image.Image

	// Hue rotates the hue by degrees.
	Hue(img image.Image, degrees int) image.Image

	// Brightness shifts brightness by amount in [-1, 1].
	Brightness(img image.Image, amount float64) image.Image

	// Saturate changes saturation by amount in [-1, 1].
	Saturate(img image.Image, amount float64) image.Image

	// Fade multiplies the alpha of every pixel by opacity in [0, 1].
	Fade(img image.Image, opacity float64) image.Image

	// Composite draws src onto dst with its top-left corner at (x, y),
	// using mode and scaling src's alpha by opacity. The result has dst's
	// bounds.
	Composite(dst, src image.Image, x, y int, mode BlendMode, opacity float64) image.Image

	// MeasureText returns the advance width of s in the named font.
	MeasureText(font, s string) (int, error)

	// DrawText draws s onto dst with its top-left corner at (x, y).
	DrawText(dst image.Image, font string, x, y int, s string) (image.Image, error)
}

// Size returns the width and height of img.
func Size(img image.Image) (int, int) {
	if img == nil {
		return 0, 0
	}
	b := img.Bounds()
	return b.Dx(), b.Dy()
}
