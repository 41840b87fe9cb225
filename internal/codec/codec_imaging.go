package codec

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

type imagingCodec struct{}

func (imagingCodec) Decode(data []byte) (image.Image, Format, error) {
	img, name, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	if img.Bounds().Empty() {
		return nil, "", ErrEmptyImage
	}

	format, err := ParseFormat(name)
	if err != nil {
		return nil, "", err
	}
	return img, format, nil
}

func (imagingCodec) Encode(img image.Image, format Format, quality int) ([]byte, error) {
	var (
		buf bytes.Buffer
		err error
	)

	switch format {
	case FormatJPEG:
		if quality <= 0 || quality > 100 {
			quality = DefaultJPEGQuality
		}
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality))
	case FormatPNG:
		err = imaging.Encode(&buf, img, imaging.PNG, imaging.PNGCompressionLevel(png.DefaultCompression))
	case FormatGIF:
		err = imaging.Encode(&buf, img, imaging.GIF)
	case FormatBMP:
		err = imaging.Encode(&buf, img, imaging.BMP)
	case FormatTIFF:
		err = imaging.Encode(&buf, img, imaging.TIFF)
	case FormatWEBP:
		return nil, fmt.Errorf("%w: webp export requires govips build tag", ErrUnsupportedFormat)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", format, err)
	}
	return buf.Bytes(), nil
}

func (imagingCodec) Resize(img image.Image, width, height int) image.Image {
	return imaging.Resize(img, width, height, imaging.Lanczos)
}

// Rotate turns the image counter-clockwise and grows the canvas to fit.
func (imagingCodec) Rotate(img image.Image, degrees float64) image.Image {
	return imaging.Rotate(img, degrees, color.Black)
}

// Greyscale returns a single-channel copy. Alpha is dropped.
func (imagingCodec) Greyscale(img image.Image) *image.Gray {
	grey := imaging.Grayscale(img)
	out := image.NewGray(grey.Rect)
	for i := range out.Pix {
		out.Pix[i] = grey.Pix[i*4]
	}
	return out
}

// ApplyLookupTable remaps the R, G and B channels in a single pass. Alpha is
// left untouched.
func (imagingCodec) ApplyLookupTable(img image.Image, table [256]uint8) *image.NRGBA {
	out := imaging.Clone(img)
	pix := out.Pix
	for i := 0; i+3 < len(pix); i += 4 {
		pix[i] = table[pix[i]]
		pix[i+1] = table[pix[i+1]]
		pix[i+2] = table[pix[i+2]]
	}
	return out
}
