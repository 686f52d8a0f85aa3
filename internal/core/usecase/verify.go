package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/kirillkom/tradedoc-ledger/internal/core/access"
	"github.com/kirillkom/tradedoc-ledger/internal/core/digest"
	"github.com/kirillkom/tradedoc-ledger/internal/core/domain"
)

const (
	verificationMatch    = "match"
	verificationMismatch = "mismatch"
)

type VerificationService struct {
	registry *DocumentRegistry
	ledger   *AuditLedger
}

func NewVerificationService(registry *DocumentRegistry, ledger *AuditLedger) *VerificationService {
	return &VerificationService{
		registry: registry,
		ledger:   ledger,
	}
}

// VerifyOnDemand hashes body and compares it with claimedDigest. It writes
// nothing. With an empty claim the computed digest is looked up instead and
// HashesMatch reports whether the bytes belong to a registered document.
func (s *VerificationService) VerifyOnDemand(ctx context.Context, body io.Reader, claimedDigest string) (*domain.VerificationOutcome, error) {
	if body == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "verify document", errors.New("content is required"))
	}
	computed, _, err := digest.SumReader(body)
	if err != nil {
		return nil, fmt.Errorf("hash presented content: %w", err)
	}

	claimed := strings.TrimSpace(claimedDigest)
	lookup := claimed
	if lookup == "" {
		lookup = computed
	}

	outcome := &domain.VerificationOutcome{
		ComputedDigest: computed,
		ProvidedDigest: claimed,
	}
	if digest.Valid(lookup) {
		doc, err := s.registry.GetByDigest(ctx, lookup)
		switch {
		case err == nil:
			outcome.Document = doc
			outcome.DocumentExists = true
		case domain.IsKind(err, domain.ErrNotFound):
		default:
			return nil, err
		}
	}

	if claimed == "" {
		outcome.HashesMatch = outcome.DocumentExists
	} else {
		outcome.HashesMatch = claimed == computed
	}
	return outcome, nil
}

// VerifyAndRecord runs VerifyOnDemand and appends one VERIFIED entry when
// the looked-up document exists and the actor may read it. Other actors get
// the outcome without the document identifier and leave no trace in the
// document's history.
func (s *VerificationService) VerifyAndRecord(
	ctx context.Context,
	actor domain.Actor,
	origin domain.Origin,
	body io.Reader,
	claimedDigest string,
) (*domain.VerificationOutcome, error) {
	if actor.ID == "" {
		return nil, domain.WrapError(domain.ErrUnauthenticated, "verify document", errors.New("actor is required"))
	}
	outcome, err := s.VerifyOnDemand(ctx, body, claimedDigest)
	if err != nil {
		return nil, err
	}
	doc := outcome.Document
	if doc == nil {
		return outcome, nil
	}
	if !access.Authorize(actor, *doc, access.ActionRead).Allowed() {
		return outcome, nil
	}
	outcome.DocumentID = doc.ID

	result, description := verificationMatch, "Document integrity verified: SUCCESS"
	if !outcome.HashesMatch {
		result, description = verificationMismatch, "Document integrity verified: FAILED"
	}
	_, err = s.ledger.Append(ctx, domain.LedgerEntry{
		DocumentID:        doc.ID,
		Kind:              domain.EventVerified,
		ActorID:           actor.ID,
		ActorOrganization: actor.Organization,
		OriginAddress:     origin.Address,
		UserAgent:         origin.UserAgent,
		DigestBefore:      domain.StringPtr(doc.Digest),
		DigestAfter:       domain.StringPtr(outcome.ComputedDigest),
		Description:       description,
		Metadata: map[string]any{
			"outcome":         result,
			"provided_digest": outcome.ProvidedDigest,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("record verification: %w", err)
	}
	return outcome, nil
}
