package httpadapter

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/kirillkom/tradedoc-ledger/internal/core/domain"
)

func (rt *Router) listLedgerEntries(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	query := r.URL.Query()
	page, err := parsePage(query.Get("skip"), query.Get("limit"))
	if err != nil {
		writeError(w, err)
		return
	}
	filter := domain.LedgerFilter{DocumentID: strings.TrimSpace(query.Get("document_id"))}
	if raw := query.Get("event_kind"); raw != "" {
		kind, ok := domain.ParseEventKind(raw)
		if !ok {
			writeError(w, domain.WrapError(domain.ErrInvalidInput, "list ledger entries", fmt.Errorf("unknown event kind %q", raw)))
			return
		}
		filter.Kind = kind
	}

	entries, err := rt.services.Ledger.List(r.Context(), actor, filter, page)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": nonNil(entries)})
}

func (rt *Router) getLedgerEntry(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, domain.WrapError(domain.ErrInvalidInput, "get ledger entry", fmt.Errorf("invalid entry id %q", r.PathValue("id"))))
		return
	}
	entry, err := rt.services.Ledger.Get(r.Context(), actor, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

type shareRequest struct {
	DocumentID  string         `json:"document_id"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata"`
}

func (rt *Router) recordShare(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	var req shareRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json"})
		return
	}
	if strings.TrimSpace(req.DocumentID) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "document_id is required"})
		return
	}

	entry, err := rt.services.Ledger.RecordShare(r.Context(), actor, rt.originFromRequest(r), req.DocumentID, req.Description, req.Metadata)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (rt *Router) ledgerStats(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	stats, err := rt.services.Stats.Stats(r.Context(), actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func parsePage(rawSkip, rawLimit string) (domain.Page, error) {
	var page domain.Page
	var err error
	if rawSkip != "" {
		if page.Skip, err = strconv.Atoi(rawSkip); err != nil || page.Skip < 0 {
			return page, domain.WrapError(domain.ErrInvalidInput, "parse page", fmt.Errorf("invalid skip %q", rawSkip))
		}
	}
	if rawLimit != "" {
		if page.Limit, err = strconv.Atoi(rawLimit); err != nil || page.Limit <= 0 || page.Limit > domain.MaxPageLimit {
			return page, domain.WrapError(domain.ErrInvalidInput, "parse page", fmt.Errorf("limit must be between 1 and %d", domain.MaxPageLimit))
		}
	}
	return page.Normalize(), nil
}
