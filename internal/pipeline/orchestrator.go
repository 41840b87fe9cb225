// Package pipeline sequences the stage functions for one benchmark run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dunamismax/pixelbench/internal/domain"
	"github.com/dunamismax/pixelbench/internal/invoker"
	"github.com/dunamismax/pixelbench/internal/stage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

type Mode string

const (
	// ModePipeline feeds each stage the previous stage's output.
	ModePipeline Mode = "PIPELINE"
	// ModeStandalone feeds every stage the original image.
	ModeStandalone Mode = "STANDALONE"
)

var ErrUnknownMode = errors.New("unknown execution mode")

func ParseMode(value string) (Mode, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case string(ModePipeline):
		return ModePipeline, nil
	case string(ModeStandalone):
		return ModeStandalone, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, value)
	}
}

type Step struct {
	Number     int
	Name       string
	FunctionID string
	Params     domain.Params
}

// StoreTarget names where the final stage writes its output.
type StoreTarget struct {
	Format string
	Bucket string
	Key    string
}

// DefaultSteps returns the five benchmark steps with their standard
// parameters. functionID maps a step number to the deployed function.
func DefaultSteps(functionID func(step int) string, target StoreTarget) []Step {
	if target.Format == "" {
		target.Format = "PNG"
	}

	storeParams := domain.Params{domain.ParamTargetFormat: target.Format}
	if target.Bucket != "" {
		storeParams[domain.ParamBucket] = target.Bucket
	}
	if target.Key != "" {
		storeParams[domain.ParamKey] = target.Key
	}

	steps := []Step{
		{Name: stage.NameGreyscale, Params: domain.Params{}},
		{Name: stage.NameResize, Params: domain.Params{domain.ParamWidth: stage.DefaultWidth, domain.ParamHeight: stage.DefaultHeight}},
		{Name: stage.NameToneMap, Params: domain.Params{domain.ParamTargetDepth: 8}},
		{Name: stage.NameRotate, Params: domain.Params{domain.ParamAngle: stage.DefaultAngle}},
		{Name: stage.NameConvertAndStore, Params: storeParams},
	}
	for i := range steps {
		steps[i].Number = i + 1
		steps[i].FunctionID = functionID(i + 1)
	}
	return steps
}

// Outcome is what one step observed.
type Outcome struct {
	Step      Step
	Input     string
	Response  domain.Response
	RoundTrip time.Duration
	StartedAt time.Time
}

type RunResult struct {
	Outcomes []Outcome
	// Failed is set when any step failed. In pipeline mode the remaining
	// steps were skipped.
	Failed bool
	// Wall spans the first dispatch to the last completion.
	Wall time.Duration
}

// Completed reports whether every one of want steps ran and succeeded.
func (r RunResult) Completed(want int) bool {
	return !r.Failed && len(r.Outcomes) == want
}

func (r RunResult) LogicTotalMS() float64 {
	var total float64
	for _, o := range r.Outcomes {
		total += o.Response.LogicTimeMS
	}
	return total
}

type Orchestrator struct {
	invoker invoker.Invoker
	mode    Mode
	timeout time.Duration
	tracer  trace.Tracer
	now     func() time.Time
}

type Option func(*Orchestrator)

func WithTracer(tracer trace.Tracer) Option {
	return func(o *Orchestrator) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// New builds an orchestrator. Each invocation is bounded by timeout; zero
// disables the bound.
func New(inv invoker.Invoker, mode Mode, timeout time.Duration, opts ...Option) (*Orchestrator, error) {
	if inv == nil {
		return nil, errors.New("invoker is required")
	}
	if mode != ModePipeline && mode != ModeStandalone {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}

	o := &Orchestrator{
		invoker: inv,
		mode:    mode,
		timeout: timeout,
		tracer:  noop.NewTracerProvider().Tracer(""),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

func (o *Orchestrator) Mode() Mode {
	return o.mode
}

// Run executes steps in order. observe, when set, sees every outcome in step
// order after the last step has completed.
func (o *Orchestrator) Run(ctx context.Context, original string, steps []Step, observe func(Outcome)) RunResult {
	ctx, span := o.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("pipeline.mode", string(o.mode)),
		attribute.Int("pipeline.steps", len(steps)),
	))
	defer span.End()

	result := RunResult{Outcomes: make([]Outcome, 0, len(steps))}
	current := original

	for _, step := range steps {
		input := original
		if o.mode == ModePipeline {
			input = current
		}

		outcome := o.invoke(ctx, step, input)
		result.Outcomes = append(result.Outcomes, outcome)

		if !outcome.Response.Success {
			result.Failed = true
			if o.mode == ModePipeline {
				break
			}
			continue
		}
		if outcome.Response.Image != "" {
			current = outcome.Response.Image
		}
	}

	result.Wall = wall(result.Outcomes)
	if result.Failed {
		span.SetStatus(codes.Error, "step failed")
	}

	if observe != nil {
		for _, outcome := range result.Outcomes {
			observe(outcome)
		}
	}
	return result
}

// wall spans the first dispatch to the last completion.
func wall(outcomes []Outcome) time.Duration {
	if len(outcomes) == 0 {
		return 0
	}
	first, last := outcomes[0], outcomes[len(outcomes)-1]
	return last.StartedAt.Add(last.RoundTrip).Sub(first.StartedAt)
}

func (o *Orchestrator) invoke(ctx context.Context, step Step, input string) Outcome {
	ctx, span := o.tracer.Start(ctx, "pipeline.step", trace.WithAttributes(
		attribute.Int("step.number", step.Number),
		attribute.String("step.name", step.Name),
		attribute.String("function.id", step.FunctionID),
	))
	defer span.End()

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	req := domain.Request{Image: input, Params: step.Params}
	startedAt := o.now()
	resp, err := o.invoker.Invoke(ctx, step.FunctionID, req)
	roundTrip := o.now().Sub(startedAt)

	if err != nil {
		resp = invoker.FailureResponse(step.Name, err)
	}
	if !resp.Success {
		span.SetStatus(codes.Error, resp.ErrorString())
	}

	return Outcome{
		Step:      step,
		Input:     input,
		Response:  resp,
		RoundTrip: roundTrip,
		StartedAt: startedAt,
	}
}
