// Package bench drives repeated pipeline runs and aggregates their timings.
package bench

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/dunamismax/pixelbench/internal/codec"
	"github.com/dunamismax/pixelbench/internal/domain"
	"github.com/dunamismax/pixelbench/internal/id"
	"github.com/dunamismax/pixelbench/internal/pipeline"
	"github.com/dunamismax/pixelbench/internal/storage"
	"github.com/dunamismax/pixelbench/internal/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Config struct {
	Runs           int
	Warmup         int
	FunctionPrefix string
	Arch           string
	Bucket         string
	KeyPrefix      string
	OutputFormat   string
	// AuditWarmup also sends WARMUP rows to the sink.
	AuditWarmup bool
	SessionID   string
	// OutputDir, when set, keeps every returned intermediate image under
	// <OutputDir>/<session>/ for visual checks.
	OutputDir string
}

func (c Config) Validate() error {
	if c.Runs < 1 {
		return errors.New("runs must be at least 1")
	}
	if c.Warmup < 0 {
		return errors.New("warmup cannot be negative")
	}
	if strings.TrimSpace(c.FunctionPrefix) == "" {
		return errors.New("function prefix is required")
	}
	if strings.TrimSpace(c.Arch) == "" {
		return errors.New("arch is required")
	}
	if _, err := codec.ParseFormat(c.outputFormat()); err != nil {
		return err
	}
	return nil
}

func (c Config) outputFormat() string {
	if c.OutputFormat == "" {
		return string(codec.FormatPNG)
	}
	return c.OutputFormat
}

// objectKey names the stored output of one iteration.
func (c Config) objectKey(iteration int) string {
	format, _ := codec.ParseFormat(c.outputFormat())
	prefix := strings.Trim(c.KeyPrefix, "/")
	if prefix == "" {
		prefix = "output"
	}
	return fmt.Sprintf("%s/%s_%s_%s_%d.%s", prefix, c.FunctionPrefix, c.Arch, c.SessionID, iteration, format.Extension())
}

// Session is the outcome of one harness run.
type Session struct {
	ID         string              `json:"session_id"`
	Mode       pipeline.Mode       `json:"mode"`
	Arch       string              `json:"arch"`
	Runs       int                 `json:"runs"`
	Warmup     int                 `json:"warmup"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt time.Time           `json:"finished_at"`
	Rows       []domain.StepResult `json:"-"`
	Report     Report              `json:"report"`
}

type Harness struct {
	orchestrator *pipeline.Orchestrator
	sink         store.Sink
	logger       *log.Logger
	metrics      *Metrics
	tracer       trace.Tracer
}

type Option func(*Harness)

func WithMetrics(m *Metrics) Option {
	return func(h *Harness) { h.metrics = m }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(h *Harness) {
		if tracer != nil {
			h.tracer = tracer
		}
	}
}

func NewHarness(orchestrator *pipeline.Orchestrator, sink store.Sink, logger *log.Logger, opts ...Option) *Harness {
	if sink == nil {
		sink = store.NewMemorySink()
	}
	h := &Harness{
		orchestrator: orchestrator,
		sink:         sink,
		logger:       logger,
		tracer:       otel.Tracer("pixelbench/bench"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run executes warmup+runs iterations against image, a base64 payload.
// Iteration failures are recorded and never abort the session; only
// cancellation of ctx does.
func (h *Harness) Run(ctx context.Context, cfg Config, image string) (Session, error) {
	if err := cfg.Validate(); err != nil {
		return Session{}, fmt.Errorf("invalid benchmark config: %w", err)
	}
	if cfg.SessionID == "" {
		cfg.SessionID = id.Session()
	}

	session := Session{
		ID:        cfg.SessionID,
		Mode:      h.orchestrator.Mode(),
		Arch:      cfg.Arch,
		Runs:      cfg.Runs,
		Warmup:    cfg.Warmup,
		StartedAt: time.Now().UTC(),
	}
	functionID := func(step int) string { return domain.FunctionID(cfg.FunctionPrefix, cfg.Arch, step) }

	total := cfg.Warmup + cfg.Runs
	var runErr error
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		runType, runID := domain.RunTypeBenchmark, i-cfg.Warmup
		if i <= cfg.Warmup {
			runType, runID = domain.RunTypeWarmup, i
		}
		h.logger.Printf("running %s %d/%d session=%s", runType, i, total, cfg.SessionID)

		steps := pipeline.DefaultSteps(functionID, pipeline.StoreTarget{
			Format: cfg.outputFormat(),
			Bucket: cfg.Bucket,
			Key:    cfg.objectKey(i),
		})
		session.Rows = append(session.Rows, h.iteration(ctx, cfg, runType, runID, image, steps)...)
	}

	session.FinishedAt = time.Now().UTC()
	session.Report = Summarize(session.Rows)
	return session, runErr
}

func (h *Harness) iteration(ctx context.Context, cfg Config, runType string, runID int, image string, steps []pipeline.Step) []domain.StepResult {
	ctx, span := h.tracer.Start(ctx, "bench.iteration", trace.WithAttributes(
		attribute.String("bench.run_type", runType),
		attribute.Int("bench.run_id", runID),
	))
	defer span.End()

	rows := make([]domain.StepResult, 0, len(steps)+1)
	record := func(row domain.StepResult) {
		rows = append(rows, row)
		if h.metrics != nil {
			h.metrics.observe(row)
		}
		if runType == domain.RunTypeWarmup && !cfg.AuditWarmup {
			return
		}
		if err := h.sink.Write(ctx, row); err != nil {
			h.logger.Printf("result write failed run_type=%s run_id=%d step=%s err=%v", runType, runID, row.StepName, err)
		}
	}

	result := h.orchestrator.Run(ctx, image, steps, func(o pipeline.Outcome) {
		row := domain.StepResult{
			RunID:       runID,
			RunType:     runType,
			StepName:    o.Step.Name,
			FunctionID:  o.Step.FunctionID,
			LogicTimeMS: o.Response.LogicTimeMS,
			RoundTripMS: durationMS(o.RoundTrip),
			Success:     o.Response.Success,
			Error:       o.Response.ErrorString(),
		}
		if !row.Success {
			h.logger.Printf("step failed run_type=%s run_id=%d step=%s err=%s", runType, runID, row.StepName, row.Error)
		}
		record(row)
		if cfg.OutputDir != "" && o.Response.Success && o.Response.Image != "" {
			h.saveOutput(ctx, cfg, runType, runID, o)
		}
	})

	if h.orchestrator.Mode() == pipeline.ModePipeline && result.Completed(len(steps)) {
		record(domain.StepResult{
			RunID:       runID,
			RunType:     runType,
			StepName:    domain.StepPipelineTotal,
			FunctionID:  domain.FunctionAll,
			LogicTimeMS: result.LogicTotalMS(),
			RoundTripMS: durationMS(result.Wall),
			Success:     true,
		})
	}
	span.SetAttributes(attribute.Bool("bench.failed", result.Failed))
	return rows
}

// saveOutput writes one intermediate image as
// <session>/<run_type>_<run_id>/out_<step>_<arch>.jpg.
func (h *Harness) saveOutput(ctx context.Context, cfg Config, runType string, runID int, o pipeline.Outcome) {
	data, err := domain.DecodeImagePayload(o.Response.Image)
	if err != nil {
		h.logger.Printf("output not saved step=%s err=%v", o.Step.Name, err)
		return
	}
	key := fmt.Sprintf("%s_%d/out_%d_%s.jpg", strings.ToLower(runType), runID, o.Step.Number, cfg.Arch)
	dir := storage.DirStore{Root: cfg.OutputDir}
	if _, err := dir.Put(ctx, cfg.SessionID, key, data, "image/jpeg"); err != nil {
		h.logger.Printf("output not saved step=%s err=%v", o.Step.Name, err)
	}
}

func durationMS(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
