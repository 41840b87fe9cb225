package stage

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/dunamismax/pixelbench/internal/codec"
	"github.com/dunamismax/pixelbench/internal/domain"
)

type convertAndStore struct {
	codec codec.Codec
	store ObjectStore
	opts  options
}

// NewConvertAndStore returns the terminal stage: it re-encodes the image in
// the requested format and writes it to store exactly once.
func NewConvertAndStore(c codec.Codec, store ObjectStore, opts ...Option) Stage {
	return &convertAndStore{codec: c, store: store, opts: buildOptions(opts)}
}

func (s *convertAndStore) Name() string { return NameConvertAndStore }

func (s *convertAndStore) Invoke(ctx context.Context, req domain.Request) (resp domain.Response) {
	w := s.opts.window(NameConvertAndStore)
	defer w.recover(&resp)

	if err := req.Validate(); err != nil {
		return w.fail(domain.KindValidation, err)
	}

	w.open()
	img, err := decodeInput(s.codec, req.Image)
	if err != nil {
		return w.fail(domain.KindValidation, err)
	}

	format, err := codec.ParseFormat(req.Params.String(string(codec.FormatPNG), domain.ParamTargetFormat))
	if err != nil {
		return w.fail(domain.KindProcessing, err)
	}

	var (
		out     image.Image = img
		quality int
	)
	if format == codec.FormatJPEG {
		out = codec.Flatten(img, color.White)
		quality = StoreJPEGQuality
	}

	encoded, err := s.codec.Encode(out, format, quality)
	if err != nil {
		return w.fail(domain.KindProcessing, fmt.Errorf("encode %s: %w", format, err))
	}

	if s.store == nil {
		return w.fail(domain.KindStorage, errors.New("no object store configured"))
	}
	if err := ctx.Err(); err != nil {
		return w.fail(contextKind(err), err)
	}

	bucket := req.Params.String(s.opts.bucket, domain.ParamBucket, domain.ParamBucketAlias)
	key := req.Params.String(DefaultKey+"."+format.Extension(), domain.ParamKey, domain.ParamKeyAlias)

	url, err := s.store.Put(ctx, bucket, key, encoded, format.ContentType())
	if err != nil {
		return w.fail(domain.KindStorage, fmt.Errorf("store %s/%s: %w", bucket, key, err))
	}

	return domain.Response{
		Success:     true,
		StorageURL:  url,
		LogicTimeMS: w.elapsedMS(),
	}
}
