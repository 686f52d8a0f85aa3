package httpadapter

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/kirillkom/tradedoc-ledger/internal/config"
	"github.com/kirillkom/tradedoc-ledger/internal/core/ports"
)

// Services groups the inbound use cases served over HTTP.
type Services struct {
	Ingestor  ports.DocumentIngestor
	Documents ports.DocumentReader
	Verifier  ports.DocumentVerifier
	Ledger    ports.LedgerReader
	Stats     ports.StatsReader
	Integrity ports.IntegrityChecker
	Alerts    ports.AlertService
}

// MetricsRecorder is the subset of the Prometheus metrics the router feeds.
type MetricsRecorder interface {
	Middleware(next http.Handler) http.Handler
	Handler() http.Handler
	RecordUpload(outcome string)
	RecordVerification(outcome string)
}

type Option func(*Router)

func WithMetrics(metrics MetricsRecorder) Option {
	return func(rt *Router) {
		rt.metrics = metrics
	}
}

// WithHealthCheck makes /healthz report 503 while check fails.
func WithHealthCheck(check func(context.Context) error) Option {
	return func(rt *Router) {
		rt.healthCheck = check
	}
}

type Router struct {
	services    Services
	metrics     MetricsRecorder
	healthCheck func(context.Context) error

	maxUploadBytes    int64
	rateLimitRPS      float64
	rateLimitBurst    int
	maxInFlight       int
	overloadWait      time.Duration
	trustForwardedFor bool
}

func NewRouter(cfg config.Config, services Services, options ...Option) *Router {
	rt := &Router{
		services:          services,
		maxUploadBytes:    cfg.MaxUploadBytes,
		rateLimitRPS:      cfg.APIRateLimitRPS,
		rateLimitBurst:    cfg.APIRateLimitBurst,
		maxInFlight:       cfg.APIMaxInFlight,
		overloadWait:      cfg.APIOverloadWait,
		trustForwardedFor: cfg.TrustForwardedFor,
	}
	if rt.maxUploadBytes <= 0 {
		rt.maxUploadBytes = 50 << 20
	}
	for _, option := range options {
		option(rt)
	}
	return rt
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	mux.HandleFunc("POST /v1/documents/upload", rt.withActor(rt.uploadDocument))
	mux.HandleFunc("POST /v1/documents", rt.withActor(rt.registerMetadata))
	mux.HandleFunc("GET /v1/documents", rt.withActor(rt.listDocuments))
	mux.HandleFunc("GET /v1/documents/{id}", rt.withActor(rt.getDocumentByID))
	mux.HandleFunc("DELETE /v1/documents/{id}", rt.withActor(rt.deleteDocument))
	mux.HandleFunc("GET /v1/documents/{id}/{resource}", rt.withActor(rt.documentSubresource))

	mux.HandleFunc("POST /v1/verify", rt.withActor(rt.verifyDocument))

	mux.HandleFunc("GET /v1/ledger-entries", rt.withActor(rt.listLedgerEntries))
	mux.HandleFunc("POST /v1/ledger-entries", rt.withActor(rt.recordShare))
	mux.HandleFunc("GET /v1/ledger-entries/{id}", rt.withActor(rt.getLedgerEntry))
	mux.HandleFunc("GET /v1/ledger-stats", rt.withActor(rt.ledgerStats))

	mux.HandleFunc("POST /v1/admin/run-integrity-check", rt.withActor(rt.runIntegrityCheck))
	mux.HandleFunc("GET /v1/admin/integrity-checks", rt.withActor(rt.listIntegrityChecks))
	mux.HandleFunc("GET /v1/admin/integrity-checks/summary", rt.withActor(rt.integritySummary))

	mux.HandleFunc("GET /v1/alerts", rt.withActor(rt.listAlerts))
	mux.HandleFunc("POST /v1/alerts/{id}/acknowledge", rt.withActor(rt.acknowledgeAlert))

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.maxInFlight, rt.overloadWait)
	handler = rateLimitMiddleware(handler, rt.rateLimitRPS, rt.rateLimitBurst, rt.trustForwardedFor)
	handler = accessLogMiddleware(handler)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(handler)
	}
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, r *http.Request) {
	if rt.healthCheck != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := rt.healthCheck(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
