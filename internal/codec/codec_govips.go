//go:build govips && cgo

package codec

import (
	"fmt"
	"image"

	"github.com/davidbyttow/govips/v2/vips"
)

// vipsCodec decodes through libvips, which reads more container formats
// than the Go decoders, and adds WEBP export. Pixel operations stay on the
// imaging implementation so both builds produce the same geometry.
type vipsCodec struct {
	imagingCodec
}

func (c vipsCodec) Decode(data []byte) (image.Image, Format, error) {
	ref, err := vips.NewImageFromBuffer(data)
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	defer ref.Close()

	format, ok := formatFromVips(ref.Format())
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, vips.ImageTypes[ref.Format()])
	}

	img, err := ref.ToImage(vips.NewDefaultExportParams())
	if err != nil {
		return nil, "", fmt.Errorf("convert vips image: %w", err)
	}
	if img.Bounds().Empty() {
		return nil, "", ErrEmptyImage
	}
	return img, format, nil
}

func (c vipsCodec) Encode(img image.Image, format Format, quality int) ([]byte, error) {
	if format != FormatWEBP {
		return c.imagingCodec.Encode(img, format, quality)
	}

	lossless, err := c.imagingCodec.Encode(img, FormatPNG, 0)
	if err != nil {
		return nil, err
	}

	ref, err := vips.NewImageFromBuffer(lossless)
	if err != nil {
		return nil, fmt.Errorf("load image into vips: %w", err)
	}
	defer ref.Close()

	params := vips.NewWebpExportParams()
	if quality > 0 && quality <= 100 {
		params.Quality = quality
	}
	data, _, err := ref.ExportWebp(params)
	if err != nil {
		return nil, fmt.Errorf("encode webp: %w", err)
	}
	return data, nil
}

func formatFromVips(t vips.ImageType) (Format, bool) {
	switch t {
	case vips.ImageTypeJPEG:
		return FormatJPEG, true
	case vips.ImageTypePNG:
		return FormatPNG, true
	case vips.ImageTypeGIF:
		return FormatGIF, true
	case vips.ImageTypeBMP:
		return FormatBMP, true
	case vips.ImageTypeTIFF:
		return FormatTIFF, true
	case vips.ImageTypeWEBP:
		return FormatWEBP, true
	default:
		return "", false
	}
}
