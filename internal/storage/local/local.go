// Package local stores files on the local filesystem.
package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/utafrali/catalog/internal/storage"
)

// Store writes files below Root and serves them from BaseURL.
type Store struct {
	root    string
	baseURL string
	logger  *slog.Logger
}

var _ storage.Store = (*Store)(nil)

// New creates the root directory if needed.
func New(root, baseURL string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root %s: %w", root, err)
	}
	return &Store{root: root, baseURL: baseURL, logger: logger}, nil
}

// Root returns the directory files are written under.
func (s *Store) Root() string {
	return s.root
}

func (s *Store) Store(ctx context.Context, data []byte, p, contentType string) (string, error) {
	clean, err := storage.CleanPath(p)
	if err != nil {
		return "", fmt.Errorf("store %q: %w", p, err)
	}

	dst := filepath.Join(s.root, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("store %q: %w", p, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("store %q: %w", p, err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("store %q: %w", p, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("store %q: %w", p, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("store %q: %w", p, err)
	}

	s.logger.DebugContext(ctx, "file stored",
		slog.String("path", clean),
		slog.String("content_type", contentType),
		slog.Int("size", len(data)),
	)
	return s.URL(clean), nil
}

func (s *Store) Delete(ctx context.Context, p string) error {
	clean, err := storage.CleanPath(p)
	if err != nil {
		return fmt.Errorf("delete %q: %w", p, err)
	}
	err = os.Remove(filepath.Join(s.root, filepath.FromSlash(clean)))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete %q: %w", p, err)
	}
	s.logger.DebugContext(ctx, "file deleted", slog.String("path", clean))
	return nil
}

func (s *Store) URL(p string) string {
	return storage.JoinURL(s.baseURL, p)
}

func (s *Store) PathOf(url string) (string, bool) {
	return storage.TrimURL(s.baseURL, url)
}
