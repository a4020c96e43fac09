// Package memory keeps stored files in a map.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/utafrali/catalog/internal/storage"
)

// Object is a stored file.
type Object struct {
	Data        []byte
	ContentType string
}

// Store is an in-memory storage.Store.
type Store struct {
	mu      sync.RWMutex
	objects map[string]Object
	baseURL string
}

var _ storage.Store = (*Store)(nil)

// New creates an empty store whose URLs start with baseURL.
func New(baseURL string) *Store {
	return &Store{objects: make(map[string]Object), baseURL: baseURL}
}

func (s *Store) Store(_ context.Context, data []byte, p, contentType string) (string, error) {
	clean, err := storage.CleanPath(p)
	if err != nil {
		return "", fmt.Errorf("store %q: %w", p, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[clean] = Object{Data: append([]byte(nil), data...), ContentType: contentType}
	return s.URL(clean), nil
}

func (s *Store) Delete(_ context.Context, p string) error {
	clean, err := storage.CleanPath(p)
	if err != nil {
		return fmt.Errorf("delete %q: %w", p, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, clean)
	return nil
}

func (s *Store) URL(p string) string {
	return storage.JoinURL(s.baseURL, p)
}

func (s *Store) PathOf(url string) (string, bool) {
	return storage.TrimURL(s.baseURL, url)
}

// Get returns the object stored at p.
func (s *Store) Get(p string) (Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.objects[p]
	return o, ok
}

// Len returns the number of stored objects.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
