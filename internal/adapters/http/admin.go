package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/kirillkom/tradedoc-ledger/internal/core/domain"
)

type integrityCheckRequest struct {
	Organization string   `json:"organization"`
	DocumentIDs  []string `json:"document_ids"`
}

func (rt *Router) runIntegrityCheck(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	var req integrityCheckRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json"})
		return
	}
	batch := domain.BatchCheckRequest{
		Organization: strings.TrimSpace(req.Organization),
		DocumentIDs:  req.DocumentIDs,
	}

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		if err := rt.services.Integrity.RequestBatchCheck(r.Context(), actor, batch); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
		return
	}

	summary, err := rt.services.Integrity.RunBatchCheck(r.Context(), actor, batch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (rt *Router) listIntegrityChecks(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	query := r.URL.Query()
	page, err := parsePage(query.Get("skip"), query.Get("limit"))
	if err != nil {
		writeError(w, err)
		return
	}
	filter := domain.IntegrityCheckFilter{
		DocumentID: strings.TrimSpace(query.Get("document_id")),
		Status:     domain.IntegrityStatus(strings.ToUpper(strings.TrimSpace(query.Get("status")))),
	}

	results, err := rt.services.Integrity.ListResults(r.Context(), actor, filter, page)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": nonNil(results)})
}

func (rt *Router) integritySummary(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	summary, err := rt.services.Integrity.Summary(r.Context(), actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (rt *Router) listAlerts(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	query := r.URL.Query()
	page, err := parsePage(query.Get("skip"), query.Get("limit"))
	if err != nil {
		writeError(w, err)
		return
	}
	filter := domain.AlertFilter{Kind: strings.TrimSpace(query.Get("kind"))}
	if raw := query.Get("acknowledged"); raw != "" {
		acknowledged, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, domain.WrapError(domain.ErrInvalidInput, "list alerts", fmt.Errorf("invalid acknowledged %q", raw)))
			return
		}
		filter.Acknowledged = &acknowledged
	}

	alerts, err := rt.services.Alerts.List(r.Context(), actor, filter, page)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": nonNil(alerts)})
}

func (rt *Router) acknowledgeAlert(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, domain.WrapError(domain.ErrInvalidInput, "acknowledge alert", fmt.Errorf("invalid alert id %q", r.PathValue("id"))))
		return
	}
	alert, err := rt.services.Alerts.Acknowledge(r.Context(), actor, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}
