package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/kirillkom/tradedoc-ledger/internal/core/domain"
)

const LocatorScheme = "local://"

type Storage struct {
	basePath string
}

func New(basePath string) (*Storage, error) {
	if basePath == "" {
		basePath = "./data/storage"
	}
	if err := os.MkdirAll(basePath, 0o750); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Storage{basePath: basePath}, nil
}

// Save writes data under key and returns a local:// locator. The file only
// becomes visible once fully written.
func (s *Storage) Save(_ context.Context, key string, data io.Reader) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(s.basePath, ".upload-*")
	if err != nil {
		return "", domain.WrapError(domain.ErrStorageUnavailable, "create temp file", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}()

	if _, err := io.Copy(tmp, data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return "", domain.WrapError(domain.ErrStorageUnavailable, "sync file", err)
	}
	if err := tmp.Close(); err != nil {
		return "", domain.WrapError(domain.ErrStorageUnavailable, "close file", err)
	}
	if err := os.Rename(tmpPath, filepath.Join(s.basePath, key)); err != nil {
		return "", domain.WrapError(domain.ErrStorageUnavailable, "publish file", err)
	}
	return LocatorScheme + key, nil
}

func (s *Storage) Open(_ context.Context, locator string) (io.ReadCloser, error) {
	key, err := keyFromLocator(locator)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(s.basePath, key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.WrapError(domain.ErrNotFound, "open file", err)
		}
		return nil, domain.WrapError(domain.ErrStorageUnavailable, "open file", err)
	}
	return f, nil
}

func (s *Storage) Delete(_ context.Context, locator string) error {
	key, err := keyFromLocator(locator)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.basePath, key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return domain.WrapError(domain.ErrStorageUnavailable, "remove file", err)
	}
	return nil
}

func keyFromLocator(locator string) (string, error) {
	key, ok := strings.CutPrefix(locator, LocatorScheme)
	if !ok {
		return "", domain.WrapError(domain.ErrInvalidInput, "parse locator", fmt.Errorf("unsupported locator %q", locator))
	}
	if err := validateKey(key); err != nil {
		return "", err
	}
	return key, nil
}

// validateKey keeps every key a single file name inside the base directory.
func validateKey(key string) error {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) || strings.HasPrefix(key, ".") {
		return domain.WrapError(domain.ErrInvalidInput, "validate storage key", fmt.Errorf("invalid key %q", key))
	}
	return nil
}
