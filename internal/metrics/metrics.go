// Package metrics exposes ingest and alerting counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors registered by New. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	Bars           *prometheus.CounterVec
	Signals        *prometheus.CounterVec
	FetchErrors    prometheus.Counter
	Alerts         *prometheus.CounterVec
	IngestDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Bars: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "sentinel_bars_total", Help: "Price bars processed by outcome"},
			[]string{"result"},
		),
		Signals: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "sentinel_signals_total", Help: "Signals detected by type and outcome"},
			[]string{"signal_type", "result"},
		),
		FetchErrors: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "sentinel_fetch_errors_total", Help: "Failed price source requests"},
		),
		Alerts: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "sentinel_alerts_total", Help: "Alert deliveries by outcome"},
			[]string{"result"},
		),
		IngestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sentinel_ingest_duration_seconds",
				Help:    "Duration of ingest operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
	reg.MustRegister(m.Bars, m.Signals, m.FetchErrors, m.Alerts, m.IngestDuration)
	return m
}

func (m *Metrics) Bar(result string) {
	if m != nil {
		m.Bars.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) BarsN(result string, n int) {
	if m != nil && n > 0 {
		m.Bars.WithLabelValues(result).Add(float64(n))
	}
}

func (m *Metrics) Signal(signalType, result string) {
	if m != nil {
		m.Signals.WithLabelValues(signalType, result).Inc()
	}
}

func (m *Metrics) FetchError() {
	if m != nil {
		m.FetchErrors.Inc()
	}
}

func (m *Metrics) Alert(result string) {
	if m != nil {
		m.Alerts.WithLabelValues(result).Inc()
	}
}

// Since records the elapsed time of operation started at start.
func (m *Metrics) Since(operation string, start time.Time) {
	if m != nil {
		m.IngestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
