// Package api hosts the stage functions over HTTP.
package api

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"sort"

	"github.com/dunamismax/pixelbench/internal/domain"
	"github.com/dunamismax/pixelbench/internal/stage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const maxInvokeBodyBytes = 64 << 20

type Server struct {
	logger      *log.Logger
	functions   map[string]stage.Stage
	rateLimiter RateLimiter
	metrics     *metrics
	tracer      trace.Tracer
	mux         *http.ServeMux
}

type Option func(*Server)

func WithRateLimiter(limiter RateLimiter) Option {
	return func(s *Server) { s.rateLimiter = limiter }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Server) { s.tracer = tracer }
}

func NewServer(logger *log.Logger, functions map[string]stage.Stage, opts ...Option) *Server {
	s := &Server{
		logger:    logger,
		functions: functions,
		metrics:   newMetrics(),
		mux:       http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.metrics.withHTTPMetrics(s.withTracing(s.mux))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", s.metrics.metricsHandler())
	s.mux.HandleFunc("GET /v1/functions", s.handleListFunctions)
	s.mux.Handle("POST /v1/functions/{id}/invoke", s.withRateLimit(http.HandlerFunc(s.handleInvoke)))
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type functionInfo struct {
	ID    string `json:"id"`
	Stage string `json:"stage"`
}

func (s *Server) handleListFunctions(w http.ResponseWriter, _ *http.Request) {
	out := make([]functionInfo, 0, len(s.functions))
	for id, fn := range s.functions {
		out = append(out, functionInfo{ID: id, Stage: fn.Name()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	writeJSON(w, http.StatusOK, map[string]any{"functions": out})
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	functionID := r.PathValue("id")
	fn, ok := s.functions[functionID]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "function not found"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxInvokeBodyBytes+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read request body"})
		return
	}
	if len(body) > maxInvokeBodyBytes {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "request body too large"})
		return
	}

	resp := stage.InvokeJSON(r.Context(), fn, body)
	s.metrics.observeInvocation(functionID, fn.Name(), resp)

	if span := trace.SpanFromContext(r.Context()); span.IsRecording() {
		span.SetAttributes(
			attribute.String("function.id", functionID),
			attribute.Bool("stage.success", resp.Success),
			attribute.Float64("stage.logic_time_ms", resp.LogicTimeMS),
		)
	}
	if !resp.Success {
		s.logger.Printf("invoke failed function=%s err=%s", functionID, resp.ErrorString())
	}

	writeJSON(w, statusForResponse(resp), resp)
}

func statusForResponse(resp domain.Response) int {
	if resp.Success {
		return http.StatusOK
	}
	switch resp.ErrorKind() {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
