package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/tradedoc-ledger/internal/core/domain"
)

const namespace = "tradedoc"

type HTTPServerMetrics struct {
	service  string
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	uploadsTotal       *prometheus.CounterVec
	verificationsTotal *prometheus.CounterVec
	integrityResults   *prometheus.CounterVec
	alertsRaisedTotal  *prometheus.CounterVec
	breakerTransitions *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	uploadsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "documents",
			Name:      "uploads_total",
			Help:      "Document registrations by outcome.",
		},
		[]string{"service", "outcome"},
	)
	verificationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "documents",
			Name:      "verifications_total",
			Help:      "On-demand verifications by outcome.",
		},
		[]string{"service", "outcome"},
	)
	integrityResults := newIntegrityResultsCounter()
	alertsRaisedTotal := newAlertsRaisedCounter()
	breakerTransitions := newBreakerTransitionsCounter()

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		uploadsTotal,
		verificationsTotal,
		integrityResults,
		alertsRaisedTotal,
		breakerTransitions,
	)

	return &HTTPServerMetrics{
		service:            service,
		registry:           registry,
		requestTotal:       requestTotal,
		requestDuration:    requestDuration,
		requestInFlight:    requestInFlight,
		uploadsTotal:       uploadsTotal,
		verificationsTotal: verificationsTotal,
		integrityResults:   integrityResults,
		alertsRaisedTotal:  alertsRaisedTotal,
		breakerTransitions: breakerTransitions,
	}
}

func newIntegrityResultsCounter() *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "integrity",
			Name:      "results_total",
			Help:      "Per-document integrity check results by status.",
		},
		[]string{"service", "status"},
	)
}

func newAlertsRaisedCounter() *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "raised_total",
			Help:      "Alerts raised by kind and severity.",
		},
		[]string{"service", "kind", "severity"},
	)
}

func newBreakerTransitionsCounter() *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "breaker_transitions_total",
			Help:      "Circuit breaker state transitions by operation.",
		},
		[]string{"service", "operation", "from", "to"},
	)
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			m.service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(m.service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath collapses identifiers so label cardinality stays bounded.
func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/documents/by-digest/"):
		return "/v1/documents/by-digest/{digest}"
	case strings.HasPrefix(path, "/v1/documents/") && strings.HasSuffix(path, "/ledger-entries"):
		return "/v1/documents/{id}/ledger-entries"
	case path == "/v1/documents/upload":
		return path
	case strings.HasPrefix(path, "/v1/documents/"):
		return "/v1/documents/{id}"
	case strings.HasPrefix(path, "/v1/ledger-entries/"):
		return "/v1/ledger-entries/{id}"
	case strings.HasPrefix(path, "/v1/alerts/") && strings.HasSuffix(path, "/acknowledge"):
		return "/v1/alerts/{id}/acknowledge"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordUpload(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	m.uploadsTotal.WithLabelValues(m.service, outcome).Inc()
}

func (m *HTTPServerMetrics) RecordVerification(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	m.verificationsTotal.WithLabelValues(m.service, outcome).Inc()
}

func (m *HTTPServerMetrics) ObserveIntegrityResult(status domain.IntegrityStatus) {
	m.integrityResults.WithLabelValues(m.service, string(status)).Inc()
}

func (m *HTTPServerMetrics) ObserveAlertRaised(kind string, severity domain.AlertSeverity) {
	m.alertsRaisedTotal.WithLabelValues(m.service, kind, string(severity)).Inc()
}

func (m *HTTPServerMetrics) ObserveBreakerTransition(operation, from, to string) {
	m.breakerTransitions.WithLabelValues(m.service, operation, from, to).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}
