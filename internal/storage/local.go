package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Local stores files on the local filesystem and serves them via a URL prefix.
// Suitable for development and single-node installs.
type Local struct {
	basePath  string // filesystem root, e.g. "./exports"
	urlPrefix string // URL prefix for served files, e.g. "/api/v1/exports"
}

// NewLocal creates a local filesystem storage.
func NewLocal(basePath, urlPrefix string) *Local {
	return &Local{
		basePath:  basePath,
		urlPrefix: strings.TrimRight(urlPrefix, "/"),
	}
}

func (l *Local) Put(_ context.Context, key string, body io.Reader, _ string) (string, error) {
	dest, err := l.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("creating directory for %s: %w", key, err)
	}

	// Write to a temp file first so readers never see a partial export.
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("creating file %s: %w", key, err)
	}
	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("writing file %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("closing file %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("moving file %s into place: %w", key, err)
	}

	return l.urlPrefix + "/" + key, nil
}

func (l *Local) Get(_ context.Context, key string) (io.ReadCloser, error) {
	path, err := l.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("opening file %s: %w", key, err)
	}
	return f, nil
}

func (l *Local) Delete(_ context.Context, key string) error {
	path, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing file %s: %w", key, err)
	}
	return nil
}

func (l *Local) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	// Local storage relies on the API's auth; the URL is not signed.
	return l.urlPrefix + "/" + key, nil
}

// path resolves key under the base path and rejects keys that escape it.
func (l *Local) path(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if clean == "/" || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return filepath.Join(l.basePath, clean), nil
}
