package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/dunamismax/pixelbench/internal/config"
	"github.com/dunamismax/pixelbench/internal/domain"
	"github.com/dunamismax/pixelbench/internal/queue"
	"github.com/dunamismax/pixelbench/internal/stage"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var ErrUnknownFunction = errors.New("function is not hosted by this worker")

// Server consumes stage:invoke tasks and stores each stage response as the
// task result.
type Server struct {
	logger    *log.Logger
	server    *asynq.Server
	sem       chan struct{}
	functions map[string]stage.Stage
	metrics   *metrics
	tracer    trace.Tracer
}

func NewServer(
	logger *log.Logger,
	queueCfg config.QueueConfig,
	workerCfg config.WorkerConfig,
	functions map[string]stage.Stage,
) (*Server, error) {
	if len(functions) == 0 {
		return nil, fmt.Errorf("at least one function is required")
	}

	s := &Server{
		logger: logger,
		server: asynq.NewServer(
			queueCfg.RedisClientOpt(),
			asynq.Config{
				Concurrency: workerCfg.Concurrency,
				Queues: map[string]int{
					queueCfg.Name: 1,
				},
				LogLevel: asynq.InfoLevel,
				ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
					logger.Printf("task failed type=%s err=%v", task.Type(), err)
				}),
			},
		),
		sem:       make(chan struct{}, max(1, workerCfg.MaxActiveStages)),
		functions: functions,
		metrics:   newMetrics(),
		tracer:    otel.Tracer("pixelbench/worker"),
	}
	return s, nil
}

func (s *Server) Run() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeInvokeStage, s.handleInvokeStage)
	return s.server.Run(mux)
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

func (s *Server) handleInvokeStage(ctx context.Context, task *asynq.Task) error {
	payload, err := queue.ParseInvokeStagePayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}

	resp, err := s.invoke(ctx, payload)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	body, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	if _, err := task.ResultWriter().Write(body); err != nil {
		return fmt.Errorf("write task result: %w", err)
	}
	return nil
}

// invoke runs one stage. Stage failures are returned inside the response;
// only an unknown function is an error.
func (s *Server) invoke(ctx context.Context, payload queue.InvokeStagePayload) (domain.Response, error) {
	fn, ok := s.functions[payload.FunctionID]
	if !ok {
		s.metrics.invocationsTotal.WithLabelValues(payload.FunctionID, "unknown").Inc()
		return domain.Response{}, fmt.Errorf("%w: %s", ErrUnknownFunction, payload.FunctionID)
	}

	ctx, span := s.tracer.Start(ctx, "worker.invoke_stage", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("function.id", payload.FunctionID),
		attribute.String("stage.name", fn.Name()),
	)
	defer span.End()

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		err := ctx.Err()
		s.metrics.invocationsTotal.WithLabelValues(payload.FunctionID, string(domain.KindTimeout)).Inc()
		span.SetStatus(codes.Error, err.Error())
		s.logger.Printf("stage slot wait abandoned function=%s err=%v", payload.FunctionID, err)
		return domain.Failure(domain.KindTimeout, fn.Name(), fmt.Errorf("waiting for a free stage slot: %w", err)), nil
	}
	s.metrics.activeStages.Inc()
	defer func() {
		<-s.sem
		s.metrics.activeStages.Dec()
	}()

	startedAt := time.Now()
	resp := fn.Invoke(ctx, payload.Request)

	outcome := "success"
	if !resp.Success {
		outcome = string(resp.ErrorKind())
		span.SetStatus(codes.Error, resp.ErrorString())
		s.logger.Printf("stage failed function=%s stage=%s err=%s", payload.FunctionID, fn.Name(), resp.ErrorString())
	} else {
		span.SetStatus(codes.Ok, "invoked")
	}
	s.metrics.invocationsTotal.WithLabelValues(payload.FunctionID, outcome).Inc()
	s.metrics.invocationDuration.WithLabelValues(fn.Name()).Observe(time.Since(startedAt).Seconds())
	s.metrics.logicTime.WithLabelValues(fn.Name()).Observe(resp.LogicTimeMS / 1000)
	span.SetAttributes(attribute.Float64("stage.logic_time_ms", resp.LogicTimeMS))

	return resp, nil
}
