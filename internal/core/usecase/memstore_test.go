package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/kirillkom/tradedoc-ledger/internal/core/domain"
	"github.com/kirillkom/tradedoc-ledger/internal/core/ports"
)

// memStore backs every repository port with shared in-memory state so that
// ledger appends can check document existence like the SQL store does.
type memStore struct {
	mu        sync.Mutex
	docs      map[string]domain.Document
	byDigest  map[string]string
	entries   []domain.LedgerEntry
	results   []domain.IntegrityCheckResult
	alerts    []domain.Alert
	appendErr error
	clock     time.Time
}

func newMemStore() *memStore {
	return &memStore{
		docs:     map[string]domain.Document{},
		byDigest: map[string]string{},
		clock:    time.Now().UTC(),
	}
}

func (s *memStore) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *memStore) orgOf(documentID string) string {
	return s.docs[documentID].Organization
}

func inScope(scope, organization string) bool {
	return scope == domain.AllOrganizations || scope == organization
}

func paginate[T any](items []T, page domain.Page) []T {
	if page.Skip >= len(items) {
		return []T{}
	}
	items = items[page.Skip:]
	if page.Limit < len(items) {
		items = items[:page.Limit]
	}
	return items
}

type memDocuments struct{ *memStore }

func (r memDocuments) Insert(_ context.Context, doc *domain.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byDigest[doc.Digest]; ok {
		return &domain.DuplicateDigestError{Digest: doc.Digest, ExistingID: existing}
	}
	r.docs[doc.ID] = *doc
	r.byDigest[doc.Digest] = doc.ID
	return nil
}

func (r memDocuments) GetByID(_ context.Context, id string) (*domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get document", fmt.Errorf("id %s", id))
	}
	return &doc, nil
}

func (r memDocuments) GetByDigest(_ context.Context, value string) (*domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byDigest[value]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get document by digest", errors.New("no match"))
	}
	doc := r.docs[id]
	return &doc, nil
}

func (r memDocuments) ListByOrganization(_ context.Context, organization string) ([]domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.Document{}
	for _, doc := range r.docs {
		if inScope(organization, doc.Organization) {
			out = append(out, doc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memLedger struct{ *memStore }

func (r memLedger) Append(_ context.Context, entry *domain.LedgerEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.appendErr != nil {
		return r.appendErr
	}
	if _, ok := r.docs[entry.DocumentID]; !ok {
		return domain.WrapError(domain.ErrNotFound, "append ledger entry", errors.New("document does not exist"))
	}
	entry.ID = int64(len(r.entries) + 1)
	entry.CreatedAt = r.tick()
	r.entries = append(r.entries, *entry)
	return nil
}

func (r memLedger) List(_ context.Context, filter domain.LedgerFilter, page domain.Page) ([]domain.LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.LedgerEntry{}
	for i := len(r.entries) - 1; i >= 0; i-- {
		entry := r.entries[i]
		if filter.Kind != "" && entry.Kind != filter.Kind {
			continue
		}
		if filter.DocumentID != "" && entry.DocumentID != filter.DocumentID {
			continue
		}
		if !inScope(filter.Organization, r.orgOf(entry.DocumentID)) {
			continue
		}
		out = append(out, entry)
	}
	return paginate(out, page), nil
}

func (r memLedger) ListByDocument(_ context.Context, documentID string) ([]domain.LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.LedgerEntry{}
	for _, entry := range r.entries {
		if entry.DocumentID == documentID {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (r memLedger) GetByID(_ context.Context, id int64) (*domain.LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, entry := range r.entries {
		if entry.ID == id {
			found := entry
			return &found, nil
		}
	}
	return nil, domain.WrapError(domain.ErrNotFound, "get ledger entry", errors.New("entry does not exist"))
}

func (r memLedger) CountByKind(_ context.Context, organization string, since time.Time) (map[domain.EventKind]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := map[domain.EventKind]int64{}
	for _, entry := range r.entries {
		if entry.CreatedAt.Before(since) || !inScope(organization, r.orgOf(entry.DocumentID)) {
			continue
		}
		counts[entry.Kind]++
	}
	return counts, nil
}

func (r memLedger) MostActiveDocuments(_ context.Context, organization string, limit int) ([]domain.DocumentActivity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := map[string]int64{}
	for _, entry := range r.entries {
		if inScope(organization, r.orgOf(entry.DocumentID)) {
			counts[entry.DocumentID]++
		}
	}
	out := make([]domain.DocumentActivity, 0, len(counts))
	for id, n := range counts {
		out = append(out, domain.DocumentActivity{DocumentID: id, EntryCount: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EntryCount != out[j].EntryCount {
			return out[i].EntryCount > out[j].EntryCount
		}
		return out[i].DocumentID < out[j].DocumentID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memLedger) ActorsAbove(_ context.Context, kind domain.EventKind, since time.Time, threshold int) ([]domain.ActorActivity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	type key struct{ id, org string }
	counts := map[key]int64{}
	for _, entry := range r.entries {
		if entry.Kind == kind && !entry.CreatedAt.Before(since) {
			counts[key{entry.ActorID, entry.ActorOrganization}]++
		}
	}
	out := []domain.ActorActivity{}
	for k, n := range counts {
		if n >= int64(threshold) {
			out = append(out, domain.ActorActivity{ActorID: k.id, ActorOrganization: k.org, EntryCount: n})
		}
	}
	return out, nil
}

func (r memLedger) DocumentsWithMismatches(_ context.Context, since time.Time, threshold int) ([]domain.DocumentActivity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := map[string]int64{}
	for _, entry := range r.entries {
		if entry.Kind == domain.EventVerified && entry.Metadata["outcome"] == "mismatch" && !entry.CreatedAt.Before(since) {
			counts[entry.DocumentID]++
		}
	}
	out := []domain.DocumentActivity{}
	for id, n := range counts {
		if n >= int64(threshold) {
			out = append(out, domain.DocumentActivity{DocumentID: id, EntryCount: n})
		}
	}
	return out, nil
}

type memResults struct{ *memStore }

func (r memResults) Append(_ context.Context, result *domain.IntegrityCheckResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	result.ID = int64(len(r.results) + 1)
	r.results = append(r.results, *result)
	return nil
}

func (r memResults) List(_ context.Context, filter domain.IntegrityCheckFilter, page domain.Page) ([]domain.IntegrityCheckResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.IntegrityCheckResult{}
	for i := len(r.results) - 1; i >= 0; i-- {
		result := r.results[i]
		if filter.DocumentID != "" && result.DocumentID != filter.DocumentID {
			continue
		}
		if filter.Status != "" && result.Status != filter.Status {
			continue
		}
		out = append(out, result)
	}
	return paginate(out, page), nil
}

func (r memResults) CountByStatus(_ context.Context, organization string) (map[domain.IntegrityStatus]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := map[domain.IntegrityStatus]int64{}
	for _, result := range r.results {
		if inScope(organization, r.orgOf(result.DocumentID)) {
			counts[result.Status]++
		}
	}
	return counts, nil
}

type memAlerts struct{ *memStore }

func (r memAlerts) Create(_ context.Context, alert *domain.Alert) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if alert.Fingerprint != nil {
		for _, existing := range r.alerts {
			if !existing.Acknowledged && existing.Fingerprint != nil && *existing.Fingerprint == *alert.Fingerprint {
				return false, nil
			}
		}
	}
	alert.ID = int64(len(r.alerts) + 1)
	r.alerts = append(r.alerts, *alert)
	return true, nil
}

func (r memAlerts) List(_ context.Context, filter domain.AlertFilter, page domain.Page) ([]domain.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.Alert{}
	for i := len(r.alerts) - 1; i >= 0; i-- {
		alert := r.alerts[i]
		if filter.Acknowledged != nil && alert.Acknowledged != *filter.Acknowledged {
			continue
		}
		if filter.Kind != "" && alert.Kind != filter.Kind {
			continue
		}
		out = append(out, alert)
	}
	return paginate(out, page), nil
}

func (r memAlerts) Acknowledge(_ context.Context, id int64, by string, at time.Time) (*domain.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.alerts {
		if r.alerts[i].ID != id {
			continue
		}
		if r.alerts[i].Acknowledged {
			return nil, domain.WrapError(domain.ErrAlreadyAcknowledged, "acknowledge alert", fmt.Errorf("alert %d", id))
		}
		r.alerts[i].Acknowledged = true
		r.alerts[i].AcknowledgedBy = domain.StringPtr(by)
		r.alerts[i].AcknowledgedAt = &at
		alert := r.alerts[i]
		return &alert, nil
	}
	return nil, domain.WrapError(domain.ErrNotFound, "acknowledge alert", fmt.Errorf("alert %d", id))
}

type memObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	openErr error
	deleted []string
}

func newMemObjects() *memObjects {
	return &memObjects{objects: map[string][]byte{}}
}

func (s *memObjects) Save(_ context.Context, key string, data io.Reader) (string, error) {
	raw, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	locator := "mem://" + key
	s.objects[locator] = raw
	return locator, nil
}

func (s *memObjects) Open(_ context.Context, locator string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openErr != nil {
		return nil, s.openErr
	}
	raw, ok := s.objects[locator]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "open object", fmt.Errorf("locator %s", locator))
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (s *memObjects) Delete(_ context.Context, locator string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, locator)
	s.deleted = append(s.deleted, locator)
	return nil
}

func (s *memObjects) put(locator string, raw []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[locator] = raw
}

type publisherFake struct {
	mu       sync.Mutex
	alerts   []domain.Alert
	requests []domain.BatchCheckRequest
	err      error
}

func (p *publisherFake) PublishAlertRaised(_ context.Context, alert domain.Alert) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.alerts = append(p.alerts, alert)
	return nil
}

func (p *publisherFake) PublishIntegrityCheckRequested(_ context.Context, req domain.BatchCheckRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.requests = append(p.requests, req)
	return nil
}

type lockerFake struct {
	mu   sync.Mutex
	held map[string]bool
}

func newLockerFake() *lockerFake {
	return &lockerFake{held: map[string]bool{}}
}

func (l *lockerFake) TryLock(_ context.Context, key string, _ time.Duration) (func(context.Context) error, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, false, nil
	}
	l.held[key] = true
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
		return nil
	}, true, nil
}

type observerFake struct {
	mu         sync.Mutex
	statuses   []domain.IntegrityStatus
	alertKinds []string
}

func (o *observerFake) ObserveAlertRaised(kind string, _ domain.AlertSeverity) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.alertKinds = append(o.alertKinds, kind)
}

func (o *observerFake) ObserveIntegrityResult(status domain.IntegrityStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses = append(o.statuses, status)
}

// harness wires every use case over one memStore.
type harness struct {
	store     *memStore
	objects   *memObjects
	publisher *publisherFake
	locker    *lockerFake
	observer  *observerFake

	registry  *DocumentRegistry
	ledger    *AuditLedger
	ingest    *IngestDocumentUseCase
	documents *DocumentQueryUseCase
	verifier  *VerificationService
	alerting  *Alerting
	integrity *IntegrityCheckUseCase
	stats     *StatisticsAggregator
	anomalies *AnomalyScanner
}

func newHarness() *harness {
	h := &harness{
		store:     newMemStore(),
		objects:   newMemObjects(),
		publisher: &publisherFake{},
		locker:    newLockerFake(),
		observer:  &observerFake{},
	}
	h.registry = NewDocumentRegistry(memDocuments{h.store})
	h.ledger = NewAuditLedger(memLedger{h.store}, h.registry)
	h.ingest = NewIngestDocumentUseCase(h.registry, h.ledger, h.objects, nil)
	h.documents = NewDocumentQueryUseCase(h.registry, h.ledger)
	h.verifier = NewVerificationService(h.registry, h.ledger)
	h.alerting = NewAlerting(memAlerts{h.store}, h.publisher, nil).WithObserver(h.observer)
	h.integrity = NewIntegrityCheckUseCase(
		h.registry,
		memResults{h.store},
		h.objects,
		h.ledger,
		h.alerting,
		h.locker,
		h.publisher,
		h.observer,
		IntegrityCheckConfig{Workers: 3, LockWait: 0, LockPollInterval: time.Millisecond},
		nil,
	)
	h.stats = NewStatisticsAggregator(memLedger{h.store}, memResults{h.store}, StatsConfig{})
	h.anomalies = NewAnomalyScanner(memLedger{h.store}, h.alerting, AnomalyConfig{
		Window:              24 * time.Hour,
		AccessThreshold:     3,
		VerifyFailThreshold: 2,
	}, nil)
	return h
}

var (
	bankA    = domain.Actor{ID: "alice", Role: domain.RoleBank, Organization: "org-a"}
	bankA2   = domain.Actor{ID: "amir", Role: domain.RoleBank, Organization: "org-a"}
	adminA   = domain.Actor{ID: "ada", Role: domain.RoleAdmin, Organization: "org-a"}
	corpB    = domain.Actor{ID: "bob", Role: domain.RoleCorporate, Organization: "org-b"}
	auditor  = domain.Actor{ID: "audrey", Role: domain.RoleAuditor, Organization: "audit-co"}
	noOrigin = domain.Origin{}
)

func (h *harness) upload(actor domain.Actor, number, content string) (*domain.Document, error) {
	return h.ingest.Upload(context.Background(), actor, noOrigin, uploadRequest(number, content))
}

func uploadRequest(number, content string) ports.UploadRequest {
	return ports.UploadRequest{
		Filename:       number + ".pdf",
		Category:       domain.CategoryInvoice,
		DocumentNumber: number,
		Body:           bytes.NewBufferString(content),
	}
}
