package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/kirillkom/tradedoc-ledger/internal/core/digest"
	"github.com/kirillkom/tradedoc-ledger/internal/core/domain"
)

func registryDoc(number, content string) *domain.Document {
	return &domain.Document{
		OwnerID:        bankA.ID,
		Organization:   bankA.Organization,
		Category:       domain.CategoryBillOfLading,
		DocumentNumber: number,
		Digest:         digest.Sum([]byte(content)),
		StorageLocator: "mem://" + number,
	}
}

func TestRegistryRegisterAssignsIdentity(t *testing.T) {
	h := newHarness()

	doc, err := h.registry.Register(context.Background(), registryDoc("BL-1", "bill"))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if doc.ID == "" || doc.CreatedAt.IsZero() {
		t.Fatalf("expected id and created_at to be assigned, got %+v", doc)
	}

	got, err := h.registry.GetByDigest(context.Background(), digest.Sum([]byte("bill")))
	if err != nil {
		t.Fatalf("get by digest: %v", err)
	}
	if got.ID != doc.ID || got.DocumentNumber != "BL-1" {
		t.Fatalf("unexpected document: %+v", got)
	}
}

func TestRegistryNormalizesCategory(t *testing.T) {
	h := newHarness()
	doc := registryDoc("LC-1", "credit")
	doc.Category = "letter-of-credit"

	registered, err := h.registry.Register(context.Background(), doc)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if registered.Category != domain.CategoryLetterOfCredit {
		t.Fatalf("expected normalized category, got %q", registered.Category)
	}
}

func TestRegistryRejectsInvalidDocuments(t *testing.T) {
	cases := map[string]func(*domain.Document){
		"bad digest":       func(d *domain.Document) { d.Digest = "ABC" },
		"no number":        func(d *domain.Document) { d.DocumentNumber = " " },
		"no locator":       func(d *domain.Document) { d.StorageLocator = "" },
		"wildcard org":     func(d *domain.Document) { d.Organization = domain.AllOrganizations },
		"unknown category": func(d *domain.Document) { d.Category = "RECEIPT" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness()
			doc := registryDoc("X-1", "x")
			mutate(doc)
			_, err := h.registry.Register(context.Background(), doc)
			if !errors.Is(err, domain.ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestRegistryDuplicateDigestReportsExistingID(t *testing.T) {
	h := newHarness()
	first, err := h.registry.Register(context.Background(), registryDoc("INV-1", "same bytes"))
	if err != nil {
		t.Fatalf("register first: %v", err)
	}

	_, err = h.registry.Register(context.Background(), registryDoc("INV-2", "same bytes"))
	if !errors.Is(err, domain.ErrDuplicateDigest) {
		t.Fatalf("expected duplicate digest error, got %v", err)
	}
	var dup *domain.DuplicateDigestError
	if !errors.As(err, &dup) || dup.ExistingID != first.ID {
		t.Fatalf("expected existing id %s, got %v", first.ID, err)
	}
}

func TestRegistryConcurrentRegistrationHasSingleWinner(t *testing.T) {
	h := newHarness()
	const attempts = 32

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		dupes     int
	)
	for i := range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.registry.Register(context.Background(), registryDoc(fmt.Sprintf("INV-%d", i), "contested"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, domain.ErrDuplicateDigest):
				dupes++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 || dupes != attempts-1 {
		t.Fatalf("expected 1 success and %d duplicates, got %d/%d", attempts-1, successes, dupes)
	}
}

func TestRegistryGetByDigestValidatesFormat(t *testing.T) {
	h := newHarness()
	_, err := h.registry.GetByDigest(context.Background(), "not-a-digest")
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	_, err = h.registry.GetByDigest(context.Background(), digest.Sum([]byte("unknown")))
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
