package httpadapter

import (
	"net/http"

	"github.com/kirillkom/tradedoc-ledger/internal/core/domain"
)

// verifyDocument hashes the uploaded file and compares it with the digest in
// ?digest=. A mismatch is still a 200 response.
func (rt *Router) verifyDocument(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	r.Body = http.MaxBytesReader(w, r.Body, rt.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemoryBytes); err != nil {
		writeError(w, multipartError(err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, _, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	claimed := firstNonEmpty(r.URL.Query().Get("digest"), r.FormValue("digest"))
	outcome, err := rt.services.Verifier.VerifyAndRecord(r.Context(), actor, rt.originFromRequest(r), file, claimed)
	if err != nil {
		rt.recordVerification("error")
		writeError(w, err)
		return
	}

	switch {
	case outcome.HashesMatch:
		rt.recordVerification("match")
	default:
		rt.recordVerification("mismatch")
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (rt *Router) recordVerification(outcome string) {
	if rt.metrics != nil {
		rt.metrics.RecordVerification(outcome)
	}
}
