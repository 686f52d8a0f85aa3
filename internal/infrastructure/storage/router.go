// Package storage routes object operations to the backend that owns a
// locator's scheme.
package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/kirillkom/tradedoc-ledger/internal/core/domain"
	"github.com/kirillkom/tradedoc-ledger/internal/core/ports"
)

type Router struct {
	primary  ports.ObjectStorage
	backends map[string]ports.ObjectStorage
}

// NewRouter writes new objects to primary and reads from whichever backend
// is registered for the locator's scheme ("local://", "s3://").
func NewRouter(primaryScheme string, backends map[string]ports.ObjectStorage) (*Router, error) {
	primary, ok := backends[primaryScheme]
	if !ok {
		return nil, fmt.Errorf("no storage backend registered for %q", primaryScheme)
	}
	return &Router{primary: primary, backends: backends}, nil
}

func (r *Router) Save(ctx context.Context, key string, data io.Reader) (string, error) {
	return r.primary.Save(ctx, key, data)
}

func (r *Router) Open(ctx context.Context, locator string) (io.ReadCloser, error) {
	backend, err := r.backendFor(locator)
	if err != nil {
		return nil, err
	}
	return backend.Open(ctx, locator)
}

func (r *Router) Delete(ctx context.Context, locator string) error {
	backend, err := r.backendFor(locator)
	if err != nil {
		return err
	}
	return backend.Delete(ctx, locator)
}

func (r *Router) backendFor(locator string) (ports.ObjectStorage, error) {
	for scheme, backend := range r.backends {
		if strings.HasPrefix(locator, scheme) {
			return backend, nil
		}
	}
	return nil, domain.WrapError(domain.ErrStorageUnavailable, "route locator", fmt.Errorf("no backend for locator %q", locator))
}
