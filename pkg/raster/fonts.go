package raster

import (
	"fmt"
	"image/color"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

// DefaultFontSize is used when a font reference carries no size.
const DefaultFontSize = 32

// FontSpec is a parsed font reference.
type FontSpec struct {
	Family string
	Size   float64
	Color  color.Color
}

var fontSizeRe = regexp.MustCompile(`(\d+)`)

// ParseFont parses a font reference. References are free-form names such as
// "sans-32", "mono-16-white" or the bitmap font paths of older layouts
// ("open-sans/open-sans-64-white/open-sans-64-white.fnt"): the family is
// picked by keyword (mono, bold, italic, otherwise regular), the size is the
// last number in the name and the colour is white when the name says so,
// black otherwise.
func ParseFont(ref string) FontSpec {
	name := strings.ToLower(ref)
	fs := FontSpec{Family: "regular", Size: DefaultFontSize, Color: color.Black}

	switch {
	case strings.Contains(name, "mono"):
		fs.Family = "mono"
	case strings.Contains(name, "bold"):
		fs.Family = "bold"
	case strings.Contains(name, "italic"):
		fs.Family = "italic"
	}

	if m := fontSizeRe.FindAllString(name, -1); len(m) > 0 {
		if n, err := strconv.Atoi(m[len(m)-1]); err == nil && n > 0 {
			fs.Size = float64(n)
		}
	}

	if strings.Contains(name, "white") {
		fs.Color = color.White
	}
	return fs
}

var fontData = map[string][]byte{
	"regular": goregular.TTF,
	"bold":    gobold.TTF,
	"italic":  goitalic.TTF,
	"mono":    gomono.TTF,
}

var (
	parsedFonts   = map[string]*opentype.Font{}
	parsedFontsMu sync.Mutex
)

// newFace returns a fresh face for fs. Faces keep glyph caches and are not
// safe for concurrent use, so each caller gets its own; parsed fonts are
// shared.
func newFace(fs FontSpec) (font.Face, error) {
	parsedFontsMu.Lock()
	f, ok := parsedFonts[fs.Family]
	if !ok {
		var err error
		f, err = opentype.Parse(fontData[fs.Family])
		if err != nil {
			parsedFontsMu.Unlock()
			return nil, fmt.Errorf("parse font %s: %w", fs.Family, err)
		}
		parsedFonts[fs.Family] = f
	}
	parsedFontsMu.Unlock()

	return opentype.NewFace(f, &opentype.FaceOptions{
		Size:    fs.Size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
}

// measureText returns the rounded advance width of s.
func measureText(ref, s string) (int, error) {
	face, err := newFace(ParseFont(ref))
	if err != nil {
		return 0, err
	}
	defer face.Close()
	return font.MeasureString(face, s).Round(), nil
}
