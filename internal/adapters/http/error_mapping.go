package httpadapter

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/kirillkom/tradedoc-ledger/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case domain.IsKind(err, domain.ErrInvalidInput), domain.IsKind(err, domain.ErrDuplicateDigest):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized
	case domain.IsKind(err, domain.ErrForbidden):
		return http.StatusForbidden
	case domain.IsKind(err, domain.ErrNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrAlreadyAcknowledged):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrTemporary), domain.IsKind(err, domain.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error      string `json:"error"`
	ExistingID string `json:"existing_id,omitempty"`
}

// writeError renders err with its mapped status. Internal failures are
// logged and replaced by a generic message.
func writeError(w http.ResponseWriter, err error) {
	status := mapErrorToHTTPStatus(err)
	resp := errorResponse{Error: err.Error()}

	var duplicate *domain.DuplicateDigestError
	if errors.As(err, &duplicate) {
		resp.ExistingID = duplicate.ExistingID
	}
	switch status {
	case http.StatusInternalServerError:
		slog.Error("http_internal_error", "error", err)
		resp.Error = "internal error"
	case http.StatusServiceUnavailable:
		slog.Warn("http_dependency_unavailable", "error", err)
		resp.Error = "service temporarily unavailable"
	case http.StatusNotFound:
		resp.Error = "not found"
	}
	writeJSON(w, status, resp)
}
