package worker

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry           *prometheus.Registry
	invocationsTotal   *prometheus.CounterVec
	invocationDuration *prometheus.HistogramVec
	logicTime          *prometheus.HistogramVec
	activeStages       prometheus.Gauge
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		invocationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelbench_worker_invocations_total",
			Help: "Stage invocations consumed from the queue by function and outcome.",
		}, []string{"function", "outcome"}),
		invocationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pixelbench_worker_invocation_duration_seconds",
			Help:    "Wall time of each queued stage invocation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		logicTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pixelbench_worker_logic_time_seconds",
			Help:    "Stage-reported logic time.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		activeStages: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pixelbench_worker_active_stages",
			Help: "Stage invocations currently running in the worker.",
		}),
	}

	registry.MustRegister(
		m.invocationsTotal,
		m.invocationDuration,
		m.logicTime,
		m.activeStages,
	)
	return m
}

func (m *metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
