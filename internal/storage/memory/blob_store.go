// Package memory holds in-process implementations of the job registry and
// the artifact archive, for development and tests.
package memory

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// BlobStore keeps archived artifacts in memory and returns memory:// URIs.
type BlobStore struct {
	mu    sync.RWMutex
	data  map[string][]byte
	types map[string]string
}

// NewBlobStore creates an empty in-memory blob store.
func NewBlobStore() *BlobStore {
	return &BlobStore{
		data:  make(map[string][]byte),
		types: make(map[string]string),
	}
}

// PutObject stores the content under path and returns its URI.
func (s *BlobStore) PutObject(_ context.Context, path, contentType string, r io.Reader) (string, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read artifact %s: %w", path, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[path] = body
	s.types[path] = contentType
	return "memory://" + path, nil
}

// Object returns a copy of the stored content and its content type.
func (s *BlobStore) Object(path string) ([]byte, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	body, ok := s.data[path]
	if !ok {
		return nil, "", false
	}
	return append([]byte(nil), body...), s.types[path], true
}
