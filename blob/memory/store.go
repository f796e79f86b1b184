// Package memory provides a content-addressed in-memory blob store for
// testing. Content is keyed by its BLAKE2b-256 digest, so storing the same
// bytes twice yields the same id and a single stored copy.
package memory

import (
	"bytes"
	"context"
	"encoding/hex"
	"io"
	"sync"

	"golang.org/x/crypto/blake2b"

	"github.com/rbaliyan/mailvault/blob"
)

// Store implements blob.Store with in-memory storage.
// Thread-safe for concurrent use. Not suitable for production.
type Store struct {
	mu    sync.RWMutex
	blobs map[blob.ID][]byte
}

// Compile-time check.
var _ blob.Store = (*Store)(nil)

// New creates a new in-memory blob store.
func New() *Store {
	return &Store{blobs: make(map[blob.ID][]byte)}
}

// Put stores the content under its BLAKE2b-256 digest.
func (s *Store) Put(ctx context.Context, content io.Reader) (blob.ID, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return "", err
	}
	sum := blake2b.Sum256(data)
	id := blob.ID(hex.EncodeToString(sum[:]))

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.blobs[id]; !exists {
		s.blobs[id] = data
	}
	return id, nil
}

// Get returns a reader over the blob's content.
func (s *Store) Get(ctx context.Context, id blob.ID) (io.ReadCloser, error) {
	s.mu.RLock()
	data, ok := s.blobs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, blob.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Delete removes the blob. Deleting an absent blob is not an error.
func (s *Store) Delete(ctx context.Context, id blob.ID) error {
	s.mu.Lock()
	delete(s.blobs, id)
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored blobs. Test helper.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
