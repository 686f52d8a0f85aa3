package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/tradedoc-ledger/internal/core/domain"
	"github.com/kirillkom/tradedoc-ledger/internal/core/ports"
)

const multipartMemoryBytes = 8 << 20

type documentResponse struct {
	DocumentID     string                  `json:"document_id"`
	OwnerID        string                  `json:"owner_id"`
	Organization   string                  `json:"organization"`
	Category       domain.DocumentCategory `json:"category"`
	DocumentNumber string                  `json:"document_number"`
	Digest         string                  `json:"digest"`
	StorageLocator string                  `json:"storage_locator"`
	TradeReference string                  `json:"trade_reference,omitempty"`
	IssuedAt       *time.Time              `json:"issued_at,omitempty"`
	CreatedAt      time.Time               `json:"created_at"`
}

func newDocumentResponse(doc *domain.Document) documentResponse {
	return documentResponse{
		DocumentID:     doc.ID,
		OwnerID:        doc.OwnerID,
		Organization:   doc.Organization,
		Category:       doc.Category,
		DocumentNumber: doc.DocumentNumber,
		Digest:         doc.Digest,
		StorageLocator: doc.StorageLocator,
		TradeReference: doc.TradeReference,
		IssuedAt:       doc.IssuedAt,
		CreatedAt:      doc.CreatedAt,
	}
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	r.Body = http.MaxBytesReader(w, r.Body, rt.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemoryBytes); err != nil {
		rt.recordUpload("rejected")
		writeError(w, multipartError(err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		rt.recordUpload("rejected")
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	issuedAt, err := parseIssuedAt(r.FormValue("issued_at"))
	if err != nil {
		rt.recordUpload("rejected")
		writeError(w, err)
		return
	}

	doc, err := rt.services.Ingestor.Upload(r.Context(), actor, rt.originFromRequest(r), ports.UploadRequest{
		Filename:       fileHeader.Filename,
		Category:       domain.DocumentCategory(r.FormValue("category")),
		DocumentNumber: firstNonEmpty(r.FormValue("doc_number"), r.FormValue("document_number")),
		TradeReference: strings.TrimSpace(r.FormValue("trade_reference")),
		IssuedAt:       issuedAt,
		Body:           file,
	})
	if err != nil {
		rt.recordUpload(uploadOutcome(err))
		writeError(w, err)
		return
	}

	rt.recordUpload("created")
	writeJSON(w, http.StatusCreated, newDocumentResponse(doc))
}

type metadataRequest struct {
	Category       string `json:"category"`
	DocumentNumber string `json:"document_number"`
	Digest         string `json:"digest"`
	StorageLocator string `json:"storage_locator"`
	TradeReference string `json:"trade_reference"`
	IssuedAt       string `json:"issued_at"`
}

func (rt *Router) registerMetadata(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	var req metadataRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json"})
		return
	}
	issuedAt, err := parseIssuedAt(req.IssuedAt)
	if err != nil {
		writeError(w, err)
		return
	}

	doc, err := rt.services.Ingestor.RegisterMetadata(r.Context(), actor, rt.originFromRequest(r), ports.MetadataRequest{
		Category:       domain.DocumentCategory(req.Category),
		DocumentNumber: req.DocumentNumber,
		Digest:         req.Digest,
		StorageLocator: req.StorageLocator,
		TradeReference: req.TradeReference,
		IssuedAt:       issuedAt,
	})
	if err != nil {
		rt.recordUpload(uploadOutcome(err))
		writeError(w, err)
		return
	}
	rt.recordUpload("created")
	writeJSON(w, http.StatusCreated, newDocumentResponse(doc))
}

func (rt *Router) listDocuments(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	docs, err := rt.services.Documents.List(r.Context(), actor)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]documentResponse, 0, len(docs))
	for i := range docs {
		out = append(out, newDocumentResponse(&docs[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": out})
}

func (rt *Router) getDocumentByID(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	doc, err := rt.services.Documents.GetByID(r.Context(), actor, rt.originFromRequest(r), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newDocumentResponse(doc))
}

func (rt *Router) deleteDocument(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	entry, err := rt.services.Documents.Delete(r.Context(), actor, rt.originFromRequest(r), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// documentSubresource serves /v1/documents/by-digest/{digest} and
// /v1/documents/{id}/ledger-entries, which cannot be registered as separate
// patterns without overlapping.
func (rt *Router) documentSubresource(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	id, resource := r.PathValue("id"), r.PathValue("resource")
	switch {
	case id == "by-digest":
		rt.getDocumentByDigest(w, r, actor, resource)
	case resource == "ledger-entries":
		rt.documentLedgerEntries(w, r, actor, id)
	default:
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	}
}

func (rt *Router) getDocumentByDigest(w http.ResponseWriter, r *http.Request, actor domain.Actor, value string) {
	doc, err := rt.services.Documents.GetByDigest(r.Context(), actor, rt.originFromRequest(r), value)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newDocumentResponse(doc))
}

func (rt *Router) documentLedgerEntries(w http.ResponseWriter, r *http.Request, actor domain.Actor, id string) {
	entries, err := rt.services.Ledger.ListForDocument(r.Context(), actor, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"document_id": id, "entries": nonNil(entries)})
}

func (rt *Router) recordUpload(outcome string) {
	if rt.metrics != nil {
		rt.metrics.RecordUpload(outcome)
	}
}

func uploadOutcome(err error) string {
	switch {
	case domain.IsKind(err, domain.ErrDuplicateDigest):
		return "duplicate"
	case domain.IsKind(err, domain.ErrInvalidInput):
		return "rejected"
	case domain.IsKind(err, domain.ErrForbidden), domain.IsKind(err, domain.ErrUnauthenticated):
		return "denied"
	default:
		return "error"
	}
}

func multipartError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return err
	}
	return domain.WrapError(domain.ErrInvalidInput, "parse multipart form", err)
}

// parseIssuedAt accepts RFC 3339 timestamps and plain dates.
func parseIssuedAt(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			utc := t.UTC()
			return &utc, nil
		}
	}
	return nil, domain.WrapError(domain.ErrInvalidInput, "parse issued_at", fmt.Errorf("unsupported date %q", raw))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
