package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/kirillkom/tradedoc-ledger/internal/core/domain"
	"github.com/kirillkom/tradedoc-ledger/internal/core/ports"
)

func bytesReader(s string) io.Reader {
	return bytes.NewBufferString(s)
}

func TestUploadVerifyDuplicateTrail(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	file := "commercial invoice INV-1, 40ft container, FOB Rotterdam"

	doc, err := h.ingest.Upload(ctx, bankA, noOrigin, ports.UploadRequest{
		Filename:       "inv-1.pdf",
		Category:       domain.CategoryInvoice,
		DocumentNumber: "INV-1",
		Body:           bytesReader(file),
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	d := doc.Digest

	found, err := h.registry.GetByDigest(ctx, d)
	if err != nil {
		t.Fatalf("GetByDigest() error = %v", err)
	}
	if found.DocumentNumber != "INV-1" {
		t.Fatalf("expected INV-1, got %q", found.DocumentNumber)
	}

	outcome, err := h.verifier.VerifyAndRecord(ctx, bankA, noOrigin, bytesReader(file), d)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !outcome.HashesMatch {
		t.Fatalf("expected hashes to match")
	}

	_, err = h.ingest.Upload(ctx, bankA, noOrigin, ports.UploadRequest{
		Filename:       "inv-1-again.pdf",
		Category:       domain.CategoryInvoice,
		DocumentNumber: "INV-1",
		Body:           bytesReader(file),
	})
	var dup *domain.DuplicateDigestError
	if !errors.As(err, &dup) || dup.ExistingID != doc.ID {
		t.Fatalf("expected duplicate of %s, got %v", doc.ID, err)
	}

	trail, err := h.ledger.ListForDocument(ctx, bankA, doc.ID)
	if err != nil {
		t.Fatalf("ListForDocument() error = %v", err)
	}
	if len(trail) != 2 {
		t.Fatalf("expected exactly two entries, got %+v", trail)
	}
	if trail[0].Kind != domain.EventUploaded || trail[1].Kind != domain.EventVerified {
		t.Fatalf("expected UPLOADED then VERIFIED, got %s, %s", trail[0].Kind, trail[1].Kind)
	}
	if trail[0].ID >= trail[1].ID || trail[1].CreatedAt.Before(trail[0].CreatedAt) {
		t.Fatalf("entries must be strictly ordered")
	}
}
