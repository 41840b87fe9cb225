// Package stage implements the five image-transform functions behind one
// request/response contract.
package stage

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/dunamismax/pixelbench/internal/codec"
	"github.com/dunamismax/pixelbench/internal/domain"
)

const (
	NameGreyscale       = "Greyscale"
	NameResize          = "Resize"
	NameToneMap         = "ToneMap"
	NameRotate          = "Rotate"
	NameConvertAndStore = "ConvertAndStore"
)

const (
	DefaultWidth  = 800
	DefaultHeight = 600
	DefaultAngle  = 90.0
	DefaultBucket = "pixelbench-outputs"
	DefaultKey    = "outputs/converted"

	MaxDimension     = 16384
	OutputQuality    = 85
	StoreJPEGQuality = 95
)

var ErrInvalidParams = errors.New("invalid parameters")

// Stage is one deployable transform function. Invoke never panics and
// always returns a populated envelope.
type Stage interface {
	Name() string
	Invoke(ctx context.Context, req domain.Request) domain.Response
}

type ObjectStore interface {
	Put(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error)
}

type options struct {
	debug  bool
	bucket string
	now    func() time.Time
}

type Option func(*options)

// WithDebugTraces attaches a stack trace to every error response.
func WithDebugTraces(enabled bool) Option {
	return func(o *options) { o.debug = enabled }
}

func WithDefaultBucket(bucket string) Option {
	return func(o *options) {
		if bucket != "" {
			o.bucket = bucket
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{bucket: DefaultBucket, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewSet returns the five stages in pipeline order.
func NewSet(c codec.Codec, store ObjectStore, opts ...Option) []Stage {
	return []Stage{
		NewGreyscale(c, opts...),
		NewResize(c, opts...),
		NewToneMap(c, opts...),
		NewRotate(c, opts...),
		NewConvertAndStore(c, store, opts...),
	}
}

// Functions maps deployable function ids to stages; the n-th stage is
// published as <prefix><n>-<arch>.
func Functions(prefix, arch string, stages []Stage) map[string]Stage {
	out := make(map[string]Stage, len(stages))
	for i, s := range stages {
		out[domain.FunctionID(prefix, arch, i+1)] = s
	}
	return out
}

// InvokeJSON decodes a raw envelope and runs s. Envelopes that are not JSON
// objects are rejected before the timing window opens.
func InvokeJSON(ctx context.Context, s Stage, body []byte) domain.Response {
	req, err := domain.DecodeRequest(body)
	if err != nil {
		return domain.Failure(domain.KindValidation, s.Name(), err)
	}
	return s.Invoke(ctx, req)
}

// window measures logic time from just before payload decoding to just
// after result encoding.
type window struct {
	stage  string
	debug  bool
	now    func() time.Time
	start  time.Time
	opened bool
}

func (o options) window(stage string) *window {
	return &window{stage: stage, debug: o.debug, now: o.now}
}

func (w *window) open() {
	w.start = w.now()
	w.opened = true
}

func (w *window) elapsedMS() float64 {
	if !w.opened {
		return 0
	}
	return float64(w.now().Sub(w.start)) / float64(time.Millisecond)
}

func (w *window) fail(kind domain.ErrorKind, err error) domain.Response {
	resp := domain.Failure(kind, w.stage, err)
	resp.LogicTimeMS = w.elapsedMS()
	if w.debug {
		resp.Error.Trace = string(debug.Stack())
	}
	return resp
}

func (w *window) recover(resp *domain.Response) {
	if r := recover(); r != nil {
		*resp = w.fail(domain.KindProcessing, fmt.Errorf("panic: %v", r))
	}
}

func contextKind(err error) domain.ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.KindTimeout
	}
	return domain.KindProcessing
}
