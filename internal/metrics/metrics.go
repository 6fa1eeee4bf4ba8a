// Package metrics exposes dispatch counters in prometheus format.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	reg *prometheus.Registry

	runs        *prometheus.CounterVec
	runDuration prometheus.Histogram
	obligations *prometheus.CounterVec
	messages    *prometheus.CounterVec
	usage       *prometheus.CounterVec
	stuck       prometheus.Gauge
}

// New registers reminderd collectors on a private registry, plus the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		runs: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reminderd_dispatch_runs_total",
				Help: "Dispatch runs by trigger and result",
			},
			[]string{"trigger", "result"},
		),
		runDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "reminderd_dispatch_run_duration_seconds",
				Help:    "Wall time of one dispatch run",
				Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10, 30, 60, 120},
			},
		),
		obligations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reminderd_obligations_total",
				Help: "Obligations handled by final status (sent, failed, skipped)",
			},
			[]string{"status"},
		),
		messages: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reminderd_messages_total",
				Help: "Per-recipient messages by channel and result",
			},
			[]string{"channel", "result"},
		),
		usage: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reminderd_integration_batches_total",
				Help: "Successful integration batches recorded as usage",
			},
			[]string{"service"},
		),
		stuck: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "reminderd_obligations_stuck",
				Help: "Obligations left in sending longer than dispatch.stuck_after",
			},
		),
	}
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) ObserveRun(trigger string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.runs.WithLabelValues(trigger, result).Inc()
	m.runDuration.Observe(d.Seconds())
}

func (m *Metrics) Obligation(status string) {
	if m == nil {
		return
	}
	m.obligations.WithLabelValues(status).Inc()
}

func (m *Metrics) Messages(channel string, sent, failed int) {
	if m == nil {
		return
	}
	if sent > 0 {
		m.messages.WithLabelValues(channel, "sent").Add(float64(sent))
	}
	if failed > 0 {
		m.messages.WithLabelValues(channel, "failed").Add(float64(failed))
	}
}

func (m *Metrics) IntegrationBatch(service string) {
	if m == nil {
		return
	}
	m.usage.WithLabelValues(service).Inc()
}

func (m *Metrics) SetStuck(n int) {
	if m == nil {
		return
	}
	m.stuck.Set(float64(n))
}
