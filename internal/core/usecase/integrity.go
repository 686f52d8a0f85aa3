package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/tradedoc-ledger/internal/core/access"
	"github.com/kirillkom/tradedoc-ledger/internal/core/digest"
	"github.com/kirillkom/tradedoc-ledger/internal/core/domain"
	"github.com/kirillkom/tradedoc-ledger/internal/core/ports"
)

const remarkCheckInProgress = "check already in progress"

type IntegrityCheckConfig struct {
	Workers          int
	LockTTL          time.Duration
	LockWait         time.Duration
	LockPollInterval time.Duration
}

func DefaultIntegrityCheckConfig() IntegrityCheckConfig {
	return IntegrityCheckConfig{
		Workers:          4,
		LockTTL:          2 * time.Minute,
		LockWait:         5 * time.Second,
		LockPollInterval: 100 * time.Millisecond,
	}
}

func (c IntegrityCheckConfig) normalize() IntegrityCheckConfig {
	defaults := DefaultIntegrityCheckConfig()
	if c.Workers <= 0 {
		c.Workers = defaults.Workers
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	if c.LockWait < 0 {
		c.LockWait = 0
	}
	if c.LockPollInterval <= 0 {
		c.LockPollInterval = defaults.LockPollInterval
	}
	return c
}

// IntegrityCheckUseCase re-hashes stored bytes and compares them with the
// registered digests.
type IntegrityCheckUseCase struct {
	registry  *DocumentRegistry
	results   ports.IntegrityRepository
	storage   ports.ObjectStorage
	ledger    *AuditLedger
	alerts    *Alerting
	locker    ports.CheckLocker
	publisher ports.EventPublisher
	observer  ports.IntegrityObserver
	cfg       IntegrityCheckConfig
	logger    *slog.Logger
	now       func() time.Time
}

func NewIntegrityCheckUseCase(
	registry *DocumentRegistry,
	results ports.IntegrityRepository,
	storage ports.ObjectStorage,
	ledger *AuditLedger,
	alerts *Alerting,
	locker ports.CheckLocker,
	publisher ports.EventPublisher,
	observer ports.IntegrityObserver,
	cfg IntegrityCheckConfig,
	logger *slog.Logger,
) *IntegrityCheckUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &IntegrityCheckUseCase{
		registry:  registry,
		results:   results,
		storage:   storage,
		ledger:    ledger,
		alerts:    alerts,
		locker:    locker,
		publisher: publisher,
		observer:  observer,
		cfg:       cfg.normalize(),
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

type checkOutcome struct {
	result *domain.IntegrityCheckResult
	failed *domain.FailedDocument
	errs   []string
}

// RunBatchCheck checks every document in scope exactly once. Per-document
// problems end up in the summary; only a failure to enumerate documents
// aborts the run.
func (uc *IntegrityCheckUseCase) RunBatchCheck(ctx context.Context, actor domain.Actor, req domain.BatchCheckRequest) (*domain.BatchCheckSummary, error) {
	if err := access.RequireRole(actor, access.ActionRunIntegrityCheck); err != nil {
		return nil, err
	}
	scope := req.Organization
	if scope == "" {
		scope = domain.AllOrganizations
	}
	docs, err := uc.registry.ListForOrganization(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("list documents for integrity check: %w", err)
	}
	docs = selectDocuments(docs, req.DocumentIDs)

	summary := &domain.BatchCheckSummary{
		RunID:           uuid.NewString(),
		FailedDocuments: []domain.FailedDocument{},
		Errors:          []string{},
		Results:         make([]domain.IntegrityCheckResult, 0, len(docs)),
		StartedAt:       uc.now(),
	}
	uc.logger.Info("integrity_check_started",
		"run_id", summary.RunID,
		"scope", scope,
		"documents", len(docs),
		"requested_by", actor.ID,
	)

	outcomes := make([]checkOutcome, len(docs))
	var group errgroup.Group
	group.SetLimit(uc.cfg.Workers)
	for i := range docs {
		group.Go(func() error {
			outcomes[i] = uc.checkDocument(ctx, summary.RunID, docs[i])
			return nil
		})
	}
	_ = group.Wait()

	for _, outcome := range outcomes {
		summary.Errors = append(summary.Errors, outcome.errs...)
		if outcome.result == nil {
			continue
		}
		summary.TotalChecked++
		summary.Results = append(summary.Results, *outcome.result)
		switch outcome.result.Status {
		case domain.IntegrityPass:
			summary.Passed++
		case domain.IntegrityFail:
			summary.Failed++
		default:
			summary.Pending++
		}
		if outcome.failed != nil {
			summary.FailedDocuments = append(summary.FailedDocuments, *outcome.failed)
		}
	}
	summary.FinishedAt = uc.now()

	uc.logger.Info("integrity_check_finished",
		"run_id", summary.RunID,
		"total", summary.TotalChecked,
		"passed", summary.Passed,
		"failed", summary.Failed,
		"pending", summary.Pending,
		"errors", len(summary.Errors),
	)
	return summary, nil
}

func selectDocuments(docs []domain.Document, ids []string) []domain.Document {
	if len(ids) == 0 {
		return docs
	}
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	out := make([]domain.Document, 0, len(ids))
	for _, doc := range docs {
		if _, ok := wanted[doc.ID]; ok {
			out = append(out, doc)
		}
	}
	return out
}

func (uc *IntegrityCheckUseCase) checkDocument(ctx context.Context, runID string, doc domain.Document) checkOutcome {
	result := &domain.IntegrityCheckResult{
		DocumentID:   doc.ID,
		RunID:        runID,
		CheckKind:    domain.CheckKindHashMatch,
		StoredDigest: doc.Digest,
	}

	release, acquired, lockErr := uc.acquire(ctx, doc.ID)
	missing := false
	switch {
	case lockErr != nil:
		result.Status = domain.IntegrityPending
		result.Remarks = "lock unavailable: " + lockErr.Error()
	case !acquired:
		result.Status = domain.IntegrityPending
		result.Remarks = remarkCheckInProgress
	default:
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				uc.logger.Warn("integrity_lock_release_failed", "document_id", doc.ID, "error", err)
			}
		}()
		missing = uc.compare(ctx, doc, result)
	}
	result.CheckedAt = uc.now()

	outcome := checkOutcome{}
	if err := uc.results.Append(ctx, result); err != nil {
		outcome.errs = append(outcome.errs, fmt.Sprintf("document %s: store result: %v", doc.ID, err))
		return outcome
	}
	outcome.result = result
	if uc.observer != nil {
		uc.observer.ObserveIntegrityResult(result.Status)
	}

	switch {
	case result.Status == domain.IntegrityFail:
		outcome.failed = &domain.FailedDocument{
			DocumentID:     doc.ID,
			DocumentNumber: doc.DocumentNumber,
			Status:         result.Status,
			StoredDigest:   doc.Digest,
			ComputedDigest: *result.ComputedDigest,
			Reason:         result.Remarks,
		}
		outcome.errs = append(outcome.errs, uc.onMismatch(ctx, doc, result)...)
	case missing:
		outcome.failed = &domain.FailedDocument{
			DocumentID:     doc.ID,
			DocumentNumber: doc.DocumentNumber,
			Status:         result.Status,
			StoredDigest:   doc.Digest,
			Reason:         result.Remarks,
		}
		_, _, err := uc.alerts.RaiseOnce(ctx, "file-not-found:"+doc.ID, domain.AlertInput{
			Kind:             domain.AlertKindFileNotFound,
			Severity:         domain.SeverityHigh,
			Message:          fmt.Sprintf("Stored bytes for document %s (%s) are missing", doc.ID, doc.DocumentNumber),
			DocumentID:       doc.ID,
			IntegrityCheckID: result.ID,
		})
		if err != nil {
			outcome.errs = append(outcome.errs, fmt.Sprintf("document %s: raise alert: %v", doc.ID, err))
		}
	}
	return outcome
}

// compare fills in status, computed digest and remarks. It reports whether
// the stored bytes are definitively missing.
func (uc *IntegrityCheckUseCase) compare(ctx context.Context, doc domain.Document, result *domain.IntegrityCheckResult) bool {
	rc, err := uc.storage.Open(ctx, doc.StorageLocator)
	if err != nil {
		result.Status = domain.IntegrityPending
		if domain.IsKind(err, domain.ErrNotFound) {
			result.Remarks = "stored bytes not found"
			return true
		}
		result.Remarks = "storage unreachable: " + err.Error()
		return false
	}
	computed, _, err := digest.SumReader(rc)
	_ = rc.Close()
	if err != nil {
		result.Status = domain.IntegrityPending
		result.Remarks = "read stored bytes: " + err.Error()
		return false
	}

	result.ComputedDigest = domain.StringPtr(computed)
	if computed == doc.Digest {
		result.Status = domain.IntegrityPass
		return false
	}
	result.Status = domain.IntegrityFail
	result.Remarks = "computed digest differs from registered digest"
	return false
}

// onMismatch raises one CRITICAL alert per tamper state and records the
// MODIFIED entry alongside it. Later sweeps that find the same computed digest
// while the alert is still open only add their FAIL result.
func (uc *IntegrityCheckUseCase) onMismatch(ctx context.Context, doc domain.Document, result *domain.IntegrityCheckResult) []string {
	computed := *result.ComputedDigest
	_, raised, err := uc.alerts.RaiseOnce(ctx, "integrity-failure:"+doc.ID+":"+computed, domain.AlertInput{
		Kind:             domain.AlertKindIntegrityFailure,
		Severity:         domain.SeverityCritical,
		Message:          fmt.Sprintf("Integrity check failed for document %s (%s)", doc.ID, doc.DocumentNumber),
		DocumentID:       doc.ID,
		IntegrityCheckID: result.ID,
	})
	if err != nil {
		return []string{fmt.Sprintf("document %s: raise alert: %v", doc.ID, err)}
	}
	if !raised {
		return nil
	}
	_, err = uc.ledger.Append(ctx, domain.LedgerEntry{
		DocumentID:        doc.ID,
		Kind:              domain.EventModified,
		ActorID:           domain.SystemActor.ID,
		ActorOrganization: domain.SystemActor.Organization,
		DigestBefore:      domain.StringPtr(doc.Digest),
		DigestAfter:       domain.StringPtr(computed),
		Description:       "Integrity check detected modified stored bytes",
		Metadata: map[string]any{
			"run_id":             result.RunID,
			"integrity_check_id": result.ID,
		},
	})
	if err != nil {
		return []string{fmt.Sprintf("document %s: record modification: %v", doc.ID, err)}
	}
	return nil
}

// acquire waits up to LockWait for the per-document lock. Without a locker
// every check proceeds unguarded.
func (uc *IntegrityCheckUseCase) acquire(ctx context.Context, documentID string) (func(context.Context) error, bool, error) {
	if uc.locker == nil {
		return func(context.Context) error { return nil }, true, nil
	}
	key := "integrity-check:" + documentID
	deadline := time.Now().Add(uc.cfg.LockWait)
	for {
		release, acquired, err := uc.locker.TryLock(ctx, key, uc.cfg.LockTTL)
		if err != nil {
			return nil, false, err
		}
		if acquired {
			return release, true, nil
		}
		if !time.Now().Before(deadline) {
			return nil, false, nil
		}
		timer := time.NewTimer(uc.cfg.LockPollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, false, ctx.Err()
		case <-timer.C:
		}
	}
}

// RequestBatchCheck hands the sweep to the worker through the event bus.
func (uc *IntegrityCheckUseCase) RequestBatchCheck(ctx context.Context, actor domain.Actor, req domain.BatchCheckRequest) error {
	if err := access.RequireRole(actor, access.ActionRunIntegrityCheck); err != nil {
		return err
	}
	if uc.publisher == nil {
		return domain.WrapError(domain.ErrTemporary, "request integrity check", errors.New("asynchronous checks are not configured"))
	}
	req.RequestedBy = actor.ID
	if err := uc.publisher.PublishIntegrityCheckRequested(ctx, req); err != nil {
		return fmt.Errorf("publish integrity check request: %w", err)
	}
	return nil
}

func (uc *IntegrityCheckUseCase) ListResults(ctx context.Context, actor domain.Actor, filter domain.IntegrityCheckFilter, page domain.Page) ([]domain.IntegrityCheckResult, error) {
	if err := access.RequireRole(actor, access.ActionViewIntegrityChecks); err != nil {
		return nil, err
	}
	if filter.Status != "" {
		if _, ok := domain.ParseIntegrityStatus(string(filter.Status)); !ok {
			return nil, domain.WrapError(domain.ErrInvalidInput, "list integrity checks", fmt.Errorf("unknown status %q", filter.Status))
		}
	}
	filter.Organization = domain.AllOrganizations
	return uc.results.List(ctx, filter, page.Normalize())
}

func (uc *IntegrityCheckUseCase) Summary(ctx context.Context, actor domain.Actor) (*domain.IntegritySummary, error) {
	if err := access.RequireRole(actor, access.ActionViewIntegrityChecks); err != nil {
		return nil, err
	}
	counts, err := uc.results.CountByStatus(ctx, domain.AllOrganizations)
	if err != nil {
		return nil, fmt.Errorf("count integrity checks: %w", err)
	}
	summary := summarizeIntegrity(counts)
	return &summary, nil
}

func summarizeIntegrity(counts map[domain.IntegrityStatus]int64) domain.IntegritySummary {
	summary := domain.IntegritySummary{
		Passed:  counts[domain.IntegrityPass],
		Failed:  counts[domain.IntegrityFail],
		Pending: counts[domain.IntegrityPending],
	}
	summary.TotalChecks = summary.Passed + summary.Failed + summary.Pending
	if summary.TotalChecks > 0 {
		rate := float64(summary.Passed) / float64(summary.TotalChecks) * 100
		summary.PassRate = math.Round(rate*100) / 100
	}
	return summary
}
