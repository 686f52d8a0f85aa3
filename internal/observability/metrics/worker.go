package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/tradedoc-ledger/internal/core/domain"
)

type WorkerMetrics struct {
	service  string
	registry *prometheus.Registry

	sweepTotal         *prometheus.CounterVec
	sweepDuration      *prometheus.HistogramVec
	sweepInFlight      prometheus.Gauge
	anomalyScansTotal  *prometheus.CounterVec
	integrityResults   *prometheus.CounterVec
	alertsRaisedTotal  *prometheus.CounterVec
	breakerTransitions *prometheus.CounterVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	sweepTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "integrity_sweeps_total",
			Help:      "Integrity sweeps by trigger and status.",
		},
		[]string{"service", "trigger", "status"},
	)
	sweepDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "integrity_sweep_duration_seconds",
			Help:      "Integrity sweep duration in seconds by trigger.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service", "trigger"},
	)
	sweepInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "integrity_sweeps_in_flight",
			Help:      "Number of integrity sweeps currently running.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	anomalyScansTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "anomaly_scans_total",
			Help:      "Anomaly scans by status.",
		},
		[]string{"service", "status"},
	)
	integrityResults := newIntegrityResultsCounter()
	alertsRaisedTotal := newAlertsRaisedCounter()
	breakerTransitions := newBreakerTransitionsCounter()

	registry.MustRegister(
		sweepTotal,
		sweepDuration,
		sweepInFlight,
		anomalyScansTotal,
		integrityResults,
		alertsRaisedTotal,
		breakerTransitions,
	)

	return &WorkerMetrics{
		service:            service,
		registry:           registry,
		sweepTotal:         sweepTotal,
		sweepDuration:      sweepDuration,
		sweepInFlight:      sweepInFlight,
		anomalyScansTotal:  anomalyScansTotal,
		integrityResults:   integrityResults,
		alertsRaisedTotal:  alertsRaisedTotal,
		breakerTransitions: breakerTransitions,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartSweep() {
	m.sweepInFlight.Inc()
}

func (m *WorkerMetrics) FinishSweep(trigger string, duration time.Duration, err error) {
	m.sweepInFlight.Dec()

	m.sweepTotal.WithLabelValues(m.service, trigger, statusLabel(err)).Inc()
	m.sweepDuration.WithLabelValues(m.service, trigger).Observe(duration.Seconds())
}

func (m *WorkerMetrics) FinishAnomalyScan(err error) {
	m.anomalyScansTotal.WithLabelValues(m.service, statusLabel(err)).Inc()
}

func (m *WorkerMetrics) ObserveIntegrityResult(status domain.IntegrityStatus) {
	m.integrityResults.WithLabelValues(m.service, string(status)).Inc()
}

func (m *WorkerMetrics) ObserveAlertRaised(kind string, severity domain.AlertSeverity) {
	m.alertsRaisedTotal.WithLabelValues(m.service, kind, string(severity)).Inc()
}

func (m *WorkerMetrics) ObserveBreakerTransition(operation, from, to string) {
	m.breakerTransitions.WithLabelValues(m.service, operation, from, to).Inc()
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
