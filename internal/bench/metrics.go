package bench

import (
	"net/http"

	"github.com/dunamismax/pixelbench/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes live session progress for scraping while a long
// benchmark runs.
type Metrics struct {
	registry    *prometheus.Registry
	rowsTotal   *prometheus.CounterVec
	logicTime   *prometheus.HistogramVec
	roundTrip   *prometheus.HistogramVec
	stepFailure *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	buckets := prometheus.ExponentialBuckets(0.001, 2, 16)
	m := &Metrics{
		registry: registry,
		rowsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelbench_bench_rows_total",
			Help: "Result rows recorded by run type and step.",
		}, []string{"run_type", "step"}),
		logicTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pixelbench_bench_logic_time_seconds",
			Help:    "Stage-reported logic time of successful steps.",
			Buckets: buckets,
		}, []string{"step"}),
		roundTrip: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pixelbench_bench_round_trip_seconds",
			Help:    "Client-side round trip of successful steps.",
			Buckets: buckets,
		}, []string{"step"}),
		stepFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelbench_bench_step_failures_total",
			Help: "Failed steps by step name.",
		}, []string{"step"}),
	}
	registry.MustRegister(m.rowsTotal, m.logicTime, m.roundTrip, m.stepFailure)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) observe(row domain.StepResult) {
	m.rowsTotal.WithLabelValues(row.RunType, row.StepName).Inc()
	if !row.Success {
		m.stepFailure.WithLabelValues(row.StepName).Inc()
		return
	}
	m.logicTime.WithLabelValues(row.StepName).Observe(row.LogicTimeMS / 1000)
	m.roundTrip.WithLabelValues(row.StepName).Observe(row.RoundTripMS / 1000)
}
