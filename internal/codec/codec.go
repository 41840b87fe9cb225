package codec

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/disintegration/imaging"
)

type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatGIF  Format = "gif"
	FormatBMP  Format = "bmp"
	FormatTIFF Format = "tiff"
	FormatWEBP Format = "webp"

	DefaultJPEGQuality = 85
)

var (
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrEmptyImage        = errors.New("image has no pixels")
)

// Codec is the set of pixel primitives the stages are built from.
type Codec interface {
	Decode(data []byte) (image.Image, Format, error)
	Encode(img image.Image, format Format, quality int) ([]byte, error)
	Resize(img image.Image, width, height int) image.Image
	Rotate(img image.Image, degrees float64) image.Image
	Greyscale(img image.Image) *image.Gray
	ApplyLookupTable(img image.Image, table [256]uint8) *image.NRGBA
}

// Default returns the codec selected at build time.
func Default() Codec {
	return newCodec()
}

func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "jpeg", "jpg":
		return FormatJPEG, nil
	case "png":
		return FormatPNG, nil
	case "gif":
		return FormatGIF, nil
	case "bmp":
		return FormatBMP, nil
	case "tiff", "tif":
		return FormatTIFF, nil
	case "webp":
		return FormatWEBP, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
	}
}

func (f Format) ContentType() string {
	switch f {
	case FormatJPEG:
		return "image/jpeg"
	case FormatGIF:
		return "image/gif"
	case FormatBMP:
		return "image/bmp"
	case FormatTIFF:
		return "image/tiff"
	case FormatWEBP:
		return "image/webp"
	default:
		return "image/png"
	}
}

func (f Format) Extension() string {
	if f == FormatJPEG {
		return "jpg"
	}
	if f == "" {
		return string(FormatPNG)
	}
	return string(f)
}

// Flatten composites img onto an opaque background, dropping transparency.
func Flatten(img image.Image, background color.Color) *image.NRGBA {
	b := img.Bounds()
	canvas := imaging.New(b.Dx(), b.Dy(), background)
	return imaging.Overlay(canvas, img, image.Pt(0, 0), 1.0)
}
