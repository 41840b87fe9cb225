package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dunamismax/pixelbench/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry          *prometheus.Registry
	requestTotal      *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	rateLimitRejected *prometheus.CounterVec
	invocationsTotal  *prometheus.CounterVec
	logicTime         *prometheus.HistogramVec
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelbench_host_requests_total",
			Help: "Total HTTP requests handled by the function host.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pixelbench_host_request_duration_seconds",
			Help:    "Function host request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		rateLimitRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelbench_host_throttled_total",
			Help: "Invocations rejected by throttling.",
		}, []string{"function"}),
		invocationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelbench_host_invocations_total",
			Help: "Stage invocations by function and outcome.",
		}, []string{"function", "outcome"}),
		logicTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pixelbench_host_logic_time_seconds",
			Help:    "Stage-reported logic time.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
	}
	registry.MustRegister(
		m.requestTotal,
		m.requestDuration,
		m.rateLimitRejected,
		m.invocationsTotal,
		m.logicTime,
	)
	return m
}

func (m *metrics) metricsHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metrics) observeInvocation(functionID, stageName string, resp domain.Response) {
	outcome := "success"
	if !resp.Success {
		outcome = string(resp.ErrorKind())
	}
	m.invocationsTotal.WithLabelValues(functionID, outcome).Inc()
	m.logicTime.WithLabelValues(stageName).Observe(resp.LogicTimeMS / 1000)
}

func (m *metrics) withHTTPMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := routeLabel(r.URL.Path)
		status := strconv.Itoa(recorder.status)

		m.requestTotal.WithLabelValues(r.Method, route, status).Inc()
		m.requestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
	})
}

func routeLabel(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/functions/") && strings.HasSuffix(path, "/invoke"):
		return "/v1/functions/{id}/invoke"
	case strings.HasPrefix(path, "/v1/functions"):
		return "/v1/functions"
	case strings.HasPrefix(path, "/healthz"):
		return "/healthz"
	case strings.HasPrefix(path, "/metrics"):
		return "/metrics"
	default:
		return "other"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.status = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}
