package codec

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/dunamismax/pixelbench/internal/tonemap"
)

func TestDecodeEncodeRoundTripStaysValid(t *testing.T) {
	c := Default()
	src := buildTestPNG(t, 64, 48)

	for _, format := range []Format{FormatJPEG, FormatPNG, FormatGIF, FormatBMP, FormatTIFF} {
		t.Run(string(format), func(t *testing.T) {
			img, decodedFormat, err := c.Decode(src)
			if err != nil {
				t.Fatalf("decode source: %v", err)
			}
			if decodedFormat != FormatPNG {
				t.Fatalf("expected png source format, got %s", decodedFormat)
			}

			encoded, err := c.Encode(img, format, DefaultJPEGQuality)
			if err != nil {
				t.Fatalf("encode %s: %v", format, err)
			}

			again, againFormat, err := c.Decode(encoded)
			if err != nil {
				t.Fatalf("decode %s output: %v", format, err)
			}
			if againFormat != format {
				t.Fatalf("expected format %s after round trip, got %s", format, againFormat)
			}
			if again.Bounds().Dx() != 64 || again.Bounds().Dy() != 48 {
				t.Fatalf("expected 64x48 after round trip, got %v", again.Bounds())
			}
		})
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, _, err := Default().Decode([]byte("definitely not an image")); err == nil {
		t.Fatal("expected decode error for non-image bytes")
	}
}

func TestEncodeWebpNeedsGovips(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	_, err := imagingCodec{}.Encode(img, FormatWEBP, 0)
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestResizeIsExact(t *testing.T) {
	c := Default()
	cases := []struct {
		name          string
		srcW, srcH    int
		width, height int
	}{
		{name: "upscale_square_to_landscape", srcW: 100, srcH: 100, width: 800, height: 600},
		{name: "downscale_portrait", srcW: 300, srcH: 900, width: 120, height: 40},
		{name: "same_size", srcW: 50, srcH: 20, width: 50, height: 20},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			src := image.NewNRGBA(image.Rect(0, 0, tc.srcW, tc.srcH))
			out := c.Resize(src, tc.width, tc.height)
			if out.Bounds().Dx() != tc.width || out.Bounds().Dy() != tc.height {
				t.Fatalf("expected %dx%d, got %v", tc.width, tc.height, out.Bounds())
			}
		})
	}
}

func TestRotateDimensions(t *testing.T) {
	c := Default()
	src := image.NewNRGBA(image.Rect(0, 0, 80, 30))

	if b := c.Rotate(src, 0).Bounds(); b.Dx() != 80 || b.Dy() != 30 {
		t.Fatalf("expected rotate 0 to keep 80x30, got %v", b)
	}
	if b := c.Rotate(src, 90).Bounds(); b.Dx() != 30 || b.Dy() != 80 {
		t.Fatalf("expected rotate 90 to give 30x80, got %v", b)
	}
	if b := c.Rotate(src, 45).Bounds(); b.Dx() <= 80 || b.Dy() <= 30 {
		t.Fatalf("expected rotate 45 to expand the canvas, got %v", b)
	}
}

func TestGreyscaleIsSingleChannel(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	src.SetNRGBA(0, 0, color.NRGBA{R: 255, A: 255})
	src.SetNRGBA(1, 0, color.NRGBA{R: 255, G: 255, B: 255, A: 0})

	grey := Default().Greyscale(src)
	if len(grey.Pix) != 2 {
		t.Fatalf("expected one byte per pixel, got %d", len(grey.Pix))
	}
	if grey.Pix[0] == 0 || grey.Pix[0] == 255 {
		t.Fatalf("expected red to map to a mid grey, got %d", grey.Pix[0])
	}
	if grey.Pix[1] != 255 {
		t.Fatalf("expected transparent white to keep its luma, got %d", grey.Pix[1])
	}
}

func TestApplyLookupTableLeavesAlpha(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	src.SetNRGBA(0, 0, color.NRGBA{R: 10, G: 128, B: 250, A: 77})

	table := tonemap.DepthTable(1)
	out := Default().ApplyLookupTable(src, table)

	got := out.NRGBAAt(0, 0)
	want := color.NRGBA{R: 0, G: 255, B: 255, A: 77}
	if got != want {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if src.NRGBAAt(0, 0).R != 10 {
		t.Fatal("expected source image to stay unchanged")
	}
}

func TestApplyLookupTableBoundsDistinctValues(t *testing.T) {
	src := buildGradient(256, 4)
	for _, depth := range []int{1, 2, 3, 5} {
		out := Default().ApplyLookupTable(src, tonemap.DepthTable(depth))

		seen := map[uint8]struct{}{}
		for i := 0; i < len(out.Pix); i += 4 {
			seen[out.Pix[i]] = struct{}{}
			seen[out.Pix[i+1]] = struct{}{}
			seen[out.Pix[i+2]] = struct{}{}
		}
		if limit := 1 << depth; len(seen) > limit {
			t.Fatalf("depth=%d: expected at most %d distinct values, got %d", depth, limit, len(seen))
		}
	}
}

func TestParseFormat(t *testing.T) {
	cases := map[string]Format{
		"PNG":  FormatPNG,
		"jpg":  FormatJPEG,
		"JPEG": FormatJPEG,
		" tif": FormatTIFF,
		"webp": FormatWEBP,
	}
	for in, want := range cases {
		got, err := ParseFormat(in)
		if err != nil {
			t.Fatalf("ParseFormat(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseFormat(%q): expected %s, got %s", in, want, got)
		}
	}

	if _, err := ParseFormat("heic"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat for heic, got %v", err)
	}
}

func TestFlattenDropsTransparency(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	src.SetNRGBA(0, 0, color.NRGBA{A: 0})

	out := Flatten(src, color.White)
	if got := out.NRGBAAt(0, 0); got != (color.NRGBA{R: 255, G: 255, B: 255, A: 255}) {
		t.Fatalf("expected opaque white, got %v", got)
	}
}

func buildGradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(x * 255 / (w - 1))
			img.SetNRGBA(x, y, color.NRGBA{R: v, G: 255 - v, B: v / 2, A: 255})
		}
	}
	return img
}

func buildTestPNG(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8((x * 255) / w),
				G: uint8((y * 255) / h),
				B: 140,
				A: 255,
			})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode source png: %v", err)
	}
	return buf.Bytes()
}
