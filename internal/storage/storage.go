// Package storage holds uploaded product images.
package storage

import (
	"context"
	"errors"
	"path"
	"strings"
)

// ErrInvalidPath is returned for paths that are empty, absolute, or escape
// the storage root.
var ErrInvalidPath = errors.New("invalid storage path")

// Store persists files under slash-separated relative paths.
type Store interface {
	// Store writes data at p and returns its public URL.
	Store(ctx context.Context, data []byte, p, contentType string) (string, error)

	// Delete removes the file at p. A missing file is not an error.
	Delete(ctx context.Context, p string) error

	// URL returns the public URL for p.
	URL(p string) string

	// PathOf maps a URL produced by this store back to its path.
	PathOf(url string) (string, bool)
}

// CleanPath validates p and returns it in canonical form.
func CleanPath(p string) (string, error) {
	if p == "" || strings.HasPrefix(p, "/") {
		return "", ErrInvalidPath
	}
	clean := path.Clean(p)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", ErrInvalidPath
	}
	return clean, nil
}

// JoinURL appends p to base with a single separating slash.
func JoinURL(base, p string) string {
	return strings.TrimRight(base, "/") + "/" + p
}

// TrimURL strips base from url, returning the path that follows it.
func TrimURL(base, url string) (string, bool) {
	prefix := strings.TrimRight(base, "/") + "/"
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}
	p, err := CleanPath(strings.TrimPrefix(url, prefix))
	if err != nil {
		return "", false
	}
	return p, true
}
