package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/kirillkom/tradedoc-ledger/internal/core/domain"
	"github.com/kirillkom/tradedoc-ledger/internal/core/ports"
)

type namedBackend struct {
	scheme  string
	opened  []string
	deleted []string
}

func (b *namedBackend) Save(_ context.Context, key string, _ io.Reader) (string, error) {
	return b.scheme + key, nil
}

func (b *namedBackend) Open(_ context.Context, locator string) (io.ReadCloser, error) {
	b.opened = append(b.opened, locator)
	return io.NopCloser(strings.NewReader(b.scheme)), nil
}

func (b *namedBackend) Delete(_ context.Context, locator string) error {
	b.deleted = append(b.deleted, locator)
	return nil
}

func TestRouterDispatchesByScheme(t *testing.T) {
	local := &namedBackend{scheme: "local://"}
	remote := &namedBackend{scheme: "s3://"}
	router, err := NewRouter("s3://", map[string]ports.ObjectStorage{"local://": local, "s3://": remote})
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}

	locator, err := router.Save(context.Background(), "k", strings.NewReader("x"))
	if err != nil || locator != "s3://k" {
		t.Fatalf("expected primary backend to store, got %q err=%v", locator, err)
	}
	if _, err := router.Open(context.Background(), "local://old"); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := router.Delete(context.Background(), "s3://bucket/k"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if len(local.opened) != 1 || len(remote.deleted) != 1 {
		t.Fatalf("unexpected dispatch local=%v remote=%v", local.opened, remote.deleted)
	}

	if _, err := router.Open(context.Background(), "ftp://x"); !domain.IsKind(err, domain.ErrStorageUnavailable) {
		t.Fatalf("expected unknown scheme to be unavailable, got %v", err)
	}
}

func TestNewRouterRequiresPrimary(t *testing.T) {
	if _, err := NewRouter("s3://", map[string]ports.ObjectStorage{}); err == nil {
		t.Fatalf("expected error for missing primary")
	}
}
