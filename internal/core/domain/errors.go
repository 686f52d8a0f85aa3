package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrDuplicateDigest     = errors.New("duplicate digest")
	ErrInvalidInput        = errors.New("invalid input")
	ErrUnauthenticated     = errors.New("unauthenticated")
	ErrForbidden           = errors.New("forbidden")
	ErrStorageUnavailable  = errors.New("storage unavailable")
	ErrAlreadyAcknowledged = errors.New("alert already acknowledged")
	ErrAuditTrailGap       = errors.New("audit trail gap")
	ErrTemporary           = errors.New("temporary failure")
)

// DuplicateDigestError reports a registration collision together with the
// identifier of the document that already owns the digest.
type DuplicateDigestError struct {
	Digest     string
	ExistingID string
}

func (e *DuplicateDigestError) Error() string {
	return fmt.Sprintf("document with this digest already exists (id: %s)", e.ExistingID)
}

func (e *DuplicateDigestError) Is(target error) bool {
	return target == ErrDuplicateDigest
}

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
