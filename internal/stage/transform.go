package stage

import (
	"context"
	"fmt"
	"image"

	"github.com/dunamismax/pixelbench/internal/codec"
	"github.com/dunamismax/pixelbench/internal/domain"
	"github.com/dunamismax/pixelbench/internal/tonemap"
)

type transformFunc func(img image.Image, params domain.Params) (image.Image, error)

// imageStage covers the four stages that answer with a JPEG payload.
type imageStage struct {
	name      string
	codec     codec.Codec
	opts      options
	transform transformFunc
}

func (s *imageStage) Name() string { return s.name }

func (s *imageStage) Invoke(ctx context.Context, req domain.Request) (resp domain.Response) {
	w := s.opts.window(s.name)
	defer w.recover(&resp)

	if err := req.Validate(); err != nil {
		return w.fail(domain.KindValidation, err)
	}

	w.open()
	img, err := decodeInput(s.codec, req.Image)
	if err != nil {
		return w.fail(domain.KindValidation, err)
	}
	if err := ctx.Err(); err != nil {
		return w.fail(contextKind(err), err)
	}

	out, err := s.transform(img, req.Params)
	if err != nil {
		return w.fail(domain.KindProcessing, err)
	}

	encoded, err := s.codec.Encode(out, codec.FormatJPEG, OutputQuality)
	if err != nil {
		return w.fail(domain.KindProcessing, fmt.Errorf("encode output: %w", err))
	}
	payload := domain.EncodeImagePayload(encoded)

	return domain.Response{
		Success:     true,
		Image:       payload,
		LogicTimeMS: w.elapsedMS(),
	}
}

func decodeInput(c codec.Codec, payload string) (image.Image, error) {
	data, err := domain.DecodeImagePayload(payload)
	if err != nil {
		return nil, err
	}
	img, _, err := c.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("cannot identify image: %w", err)
	}
	return img, nil
}

func NewGreyscale(c codec.Codec, opts ...Option) Stage {
	return &imageStage{
		name:  NameGreyscale,
		codec: c,
		opts:  buildOptions(opts),
		transform: func(img image.Image, _ domain.Params) (image.Image, error) {
			return c.Greyscale(img), nil
		},
	}
}

func NewResize(c codec.Codec, opts ...Option) Stage {
	return &imageStage{
		name:  NameResize,
		codec: c,
		opts:  buildOptions(opts),
		transform: func(img image.Image, params domain.Params) (image.Image, error) {
			width := params.Int(domain.ParamWidth, DefaultWidth)
			height := params.Int(domain.ParamHeight, DefaultHeight)
			if width <= 0 || height <= 0 {
				return nil, fmt.Errorf("%w: width and height must be positive, got %dx%d", ErrInvalidParams, width, height)
			}
			if width > MaxDimension || height > MaxDimension {
				return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels per side", ErrInvalidParams, width, height, MaxDimension)
			}
			return c.Resize(img, width, height), nil
		},
	}
}

func NewToneMap(c codec.Codec, opts ...Option) Stage {
	return &imageStage{
		name:  NameToneMap,
		codec: c,
		opts:  buildOptions(opts),
		transform: func(img image.Image, params domain.Params) (image.Image, error) {
			return toneMap(c, img, params.Int(domain.ParamTargetDepth, tonemap.DefaultDepth)), nil
		},
	}
}

// toneMap applies the gamma curve, then quantizes when depth is below 8.
// Tables are built per call.
func toneMap(c codec.Codec, img image.Image, depth int) *image.NRGBA {
	depth = tonemap.ClampDepth(depth)
	out := c.ApplyLookupTable(img, tonemap.GammaTable(tonemap.Gamma))
	if depth < tonemap.MaxDepth {
		out = c.ApplyLookupTable(out, tonemap.DepthTable(depth))
	}
	return out
}

func NewRotate(c codec.Codec, opts ...Option) Stage {
	return &imageStage{
		name:  NameRotate,
		codec: c,
		opts:  buildOptions(opts),
		transform: func(img image.Image, params domain.Params) (image.Image, error) {
			return c.Rotate(img, params.Float(domain.ParamAngle, DefaultAngle)), nil
		},
	}
}
