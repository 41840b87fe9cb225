package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/dunamismax/pixelbench/internal/bench"
	"github.com/dunamismax/pixelbench/internal/codec"
	"github.com/dunamismax/pixelbench/internal/config"
	"github.com/dunamismax/pixelbench/internal/domain"
	"github.com/dunamismax/pixelbench/internal/functions"
	"github.com/dunamismax/pixelbench/internal/id"
	"github.com/dunamismax/pixelbench/internal/invoker"
	"github.com/dunamismax/pixelbench/internal/pipeline"
	"github.com/dunamismax/pixelbench/internal/queue"
	"github.com/dunamismax/pixelbench/internal/store"
	"github.com/dunamismax/pixelbench/internal/telemetry"
	"github.com/dunamismax/pixelbench/internal/webhook"
	"go.opentelemetry.io/otel"
)

const (
	transportLocal = "local"
	transportHTTP  = "http"
	transportQueue = "queue"
)

type args struct {
	Image       string        `arg:"--image" help:"input image path"`
	Bucket      string        `arg:"--bucket" help:"bucket for the final stage output"`
	Prefix      string        `arg:"--prefix" help:"function name prefix, e.g. pixel_func"`
	Arch        string        `arg:"--arch" help:"architecture label, e.g. x86 or arm"`
	Mode        string        `arg:"--mode" help:"pipeline or standalone"`
	Runs        int           `arg:"--runs" help:"measured iterations"`
	Warmup      int           `arg:"--warmup" help:"warmup iterations"`
	Transport   string        `arg:"--transport" help:"local, http or queue"`
	Endpoint    string        `arg:"--endpoint" help:"function host base URL for the http transport"`
	Timeout     time.Duration `arg:"--timeout" help:"per-invocation timeout"`
	Out         string        `arg:"--out" help:"CSV result log path (default results_<prefix>_<arch>_<timestamp>.csv)"`
	AuditWarmup bool          `arg:"--audit-warmup" help:"also log warmup rows"`
	Postgres    string        `arg:"--postgres" help:"Postgres DSN for the result log"`
	Workload    string        `arg:"--workload" help:"workload label stored with Postgres rows"`
	MetricsAddr string        `arg:"--metrics-addr" help:"serve live Prometheus metrics on this address"`
	Webhook     string        `arg:"--webhook" help:"URL notified when the session completes"`
	KeyPrefix   string        `arg:"--key-prefix" help:"object key prefix for stored outputs"`
	Format      string        `arg:"--format" help:"output format of the final stage"`
	SaveOutputs string        `arg:"--save-outputs" help:"directory that keeps each step's output image"`
}

func (args) Description() string {
	return "Runs the five-stage image benchmark against one variant and logs per-step timings."
}

func main() {
	cfg := config.Load()
	a := args{
		Image:     "test.jpg",
		Bucket:    cfg.Storage.Bucket,
		Prefix:    cfg.Functions.Prefix,
		Arch:      cfg.Functions.Arch,
		Mode:      string(pipeline.ModePipeline),
		Runs:      10,
		Warmup:    2,
		Transport: transportLocal,
		Endpoint:  "http://localhost" + cfg.Host.Addr,
		Timeout:   time.Minute,
		Postgres:  cfg.Database.DSN,
		Workload:  "default",
		Webhook:   cfg.Webhook.URL,
		KeyPrefix: "output",
		Format:    "PNG",
	}
	arg.MustParse(&a)

	logger := log.New(os.Stdout, "[bench] ", log.LstdFlags|log.Lmsgprefix)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, a, logger); err != nil {
		logger.Fatalf("benchmark failed: %v", err)
	}
}

func run(ctx context.Context, cfg config.Config, a args, logger *log.Logger) error {
	mode, err := pipeline.ParseMode(a.Mode)
	if err != nil {
		return err
	}

	raw, err := os.ReadFile(a.Image)
	if err != nil {
		return fmt.Errorf("read input image: %w", err)
	}
	payload := domain.EncodeImagePayload(raw)

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  "pixelbench-bench",
		Exporter:     cfg.Tracing.Exporter,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		OTLPInsecure: cfg.Tracing.OTLPInsecure,
		SampleRatio:  cfg.Tracing.SampleRatio,
	}, logger)
	if err != nil {
		return fmt.Errorf("tracing setup: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Printf("tracing shutdown error: %v", err)
		}
	}()

	inv, closeInvoker, err := newInvoker(ctx, cfg, a, logger)
	if err != nil {
		return err
	}
	defer closeInvoker()

	orchestrator, err := pipeline.New(inv, mode, a.Timeout, pipeline.WithTracer(otel.Tracer("pixelbench/pipeline")))
	if err != nil {
		return err
	}

	sessionID := id.Session()
	csvPath := a.Out
	if csvPath == "" {
		csvPath = store.CSVFileName(a.Prefix, a.Arch, time.Now())
	}
	csvSink, err := store.NewCSVSink(csvPath)
	if err != nil {
		return err
	}
	var sink store.Sink = csvSink
	if a.Postgres != "" {
		pg, err := store.NewPostgresSink(ctx, a.Postgres, store.Labels{
			SessionID: sessionID,
			Arch:      a.Arch,
			Mode:      string(mode),
			Workload:  a.Workload,
		})
		if err != nil {
			_ = csvSink.Close()
			return err
		}
		sink = store.Tee(csvSink, pg)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			logger.Printf("result log close error: %v", err)
		}
	}()

	opts := []bench.Option{bench.WithTracer(otel.Tracer("pixelbench/bench"))}
	if a.MetricsAddr != "" {
		metrics := bench.NewMetrics()
		opts = append(opts, bench.WithMetrics(metrics))
		metricsServer := &http.Server{Addr: a.MetricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logger.Printf("metrics listening on %s", a.MetricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Printf("metrics server failed: %v", err)
			}
		}()
		defer metricsServer.Close()
	}

	logger.Printf("starting session=%s prefix=%s arch=%s mode=%s transport=%s runs=%d warmup=%d",
		sessionID, a.Prefix, a.Arch, mode, a.Transport, a.Runs, a.Warmup)

	harness := bench.NewHarness(orchestrator, sink, logger, opts...)
	session, runErr := harness.Run(ctx, bench.Config{
		Runs:           a.Runs,
		Warmup:         a.Warmup,
		FunctionPrefix: a.Prefix,
		Arch:           a.Arch,
		Bucket:         a.Bucket,
		KeyPrefix:      a.KeyPrefix,
		OutputFormat:   a.Format,
		AuditWarmup:    a.AuditWarmup,
		SessionID:      sessionID,
		OutputDir:      a.SaveOutputs,
	}, payload)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	if runErr != nil {
		logger.Printf("session interrupted after %d rows", len(session.Rows))
	}

	logger.Printf("benchmark complete, data saved to %s", csvSink.Path())
	if err := bench.WriteReport(os.Stdout, session); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	notifier := webhook.NewNotifier(webhook.Config{
		Endpoint:      a.Webhook,
		SigningSecret: cfg.Webhook.Secret,
		MaxAttempts:   3,
	})
	if notifier.Enabled() {
		notifyCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		event := struct {
			bench.Session
			ResultsPath string `json:"results_path"`
			Workload    string `json:"workload"`
		}{session, csvSink.Path(), a.Workload}
		if err := notifier.Notify(notifyCtx, webhook.EventBenchCompleted, event); err != nil {
			logger.Printf("webhook delivery failed: %v", err)
		}
	}
	return nil
}

func newInvoker(ctx context.Context, cfg config.Config, a args, logger *log.Logger) (invoker.Invoker, func(), error) {
	switch a.Transport {
	case transportLocal:
		cfg.Functions.Prefix = a.Prefix
		cfg.Functions.Arch = a.Arch
		fns, err := functions.Build(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		return invoker.NewLocal(fns), codec.Shutdown, nil
	case transportHTTP:
		return invoker.NewHTTP(a.Endpoint, a.Timeout), func() {}, nil
	case transportQueue:
		client := queue.NewClient(cfg.Queue.RedisClientOpt(), queue.ClientConfig{
			Queue:       cfg.Queue.Name,
			TaskTimeout: a.Timeout,
			Retention:   cfg.Queue.Retention,
		})
		return client, func() {
			if err := client.Close(); err != nil {
				logger.Printf("queue client close error: %v", err)
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown transport %q", a.Transport)
	}
}
