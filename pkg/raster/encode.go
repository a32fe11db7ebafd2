package raster

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"strings"

	"github.com/h2non/filetype"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/matzehuels/strata/pkg/errors"
)

// Format is an output encoding.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
)

// DefaultJPEGQuality is the JPEG quality used when none is configured.
const DefaultJPEGQuality = 90

// ParseFormat parses an output format name.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "png":
		return FormatPNG, nil
	case "jpg", "jpeg":
		return FormatJPEG, nil
	}
	return "", errors.New(errors.ErrCodeInvalidFormat, "unsupported output format %q (want png or jpeg)", s)
}

// Ext returns the file extension for the format, without the dot.
func (f Format) Ext() string {
	if f == FormatJPEG {
		return "jpg"
	}
	return "png"
}

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	if f == FormatJPEG {
		return "image/jpeg"
	}
	return "image/png"
}

// Decode sniffs data and decodes it as an image. Anything that is not a
// known image type is rejected before decoding.
func Decode(data []byte) (image.Image, error) {
	if err := checkImage(data); err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "decode image")
	}
	return img, nil
}

func checkImage(data []byte) error {
	if len(data) == 0 {
		return errors.New(errors.ErrCodeInvalidFormat, "empty image data")
	}
	if !filetype.IsImage(data) {
		kind, _ := filetype.Match(data)
		return errors.New(errors.ErrCodeInvalidFormat, "asset is not an image (detected %s)", kindName(kind.MIME.Value))
	}
	return nil
}

func kindName(mime string) string {
	if mime == "" {
		return "unknown"
	}
	return mime
}

// Encode writes img to w in the given format. quality only applies to JPEG;
// values outside 1..100 fall back to [DefaultJPEGQuality].
func Encode(w io.Writer, img image.Image, f Format, quality int) error {
	switch f {
	case FormatJPEG:
		if quality < 1 || quality > 100 {
			quality = DefaultJPEGQuality
		}
		return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
	case FormatPNG, "":
		return png.Encode(w, img)
	}
	return fmt.Errorf("encode: unsupported format %q", f)
}

// EncodeBytes is [Encode] into a byte slice.
func EncodeBytes(img image.Image, f Format, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, img, f, quality); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
