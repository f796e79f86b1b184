// Package cached provides a Redis read-through caching wrapper for blob
// stores. Vault content is immutable once written, which makes it safe to
// cache aggressively: a cached blob can only become stale by deletion, and
// Delete invalidates the cache entry.
package cached

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rbaliyan/mailvault/blob"
)

// Store wraps a blob.Store with Redis caching.
type Store struct {
	backend blob.Store
	client  redis.UniversalClient
	prefix  string
	maxSize int64
	ttl     time.Duration
	logger  *slog.Logger
}

// Compile-time check.
var _ blob.Store = (*Store)(nil)

// New creates a new cached blob store wrapping the given backend.
func New(backend blob.Store, client redis.UniversalClient, opts ...Option) (*Store, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	o := &options{
		prefix:  "mailvault:blob:",
		maxSize: 1 << 20, // 1MB per entry
		ttl:     24 * time.Hour,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}

	return &Store{
		backend: backend,
		client:  client,
		prefix:  o.prefix,
		maxSize: o.maxSize,
		ttl:     o.ttl,
		logger:  o.logger,
	}, nil
}

// Put stores the content in the backend. Caching happens on Get.
func (s *Store) Put(ctx context.Context, content io.Reader) (blob.ID, error) {
	return s.backend.Put(ctx, content)
}

// Get returns the blob's content, serving from Redis when cached.
// Cache failures degrade to a backend read, never to an error.
func (s *Store) Get(ctx context.Context, id blob.ID) (io.ReadCloser, error) {
	key := s.cacheKey(id)

	data, err := s.client.Get(ctx, key).Bytes()
	if err == nil {
		s.logger.Debug("blob cache hit", "id", id)
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	if !errors.Is(err, redis.Nil) {
		s.logger.Warn("blob cache read failed", "error", err, "id", id)
	}

	rc, err := s.backend.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	// Read fully so the entry can be cached; vault blobs are single mails
	// and bounded in practice.
	data, err = io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read blob for caching: %w", err)
	}

	if int64(len(data)) <= s.maxSize {
		if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
			s.logger.Warn("blob cache write failed", "error", err, "id", id)
		}
	}

	return io.NopCloser(bytes.NewReader(data)), nil
}

// Delete removes the blob from the backend and invalidates the cache entry.
func (s *Store) Delete(ctx context.Context, id blob.ID) error {
	if err := s.backend.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.client.Del(ctx, s.cacheKey(id)).Err(); err != nil {
		s.logger.Warn("blob cache invalidation failed", "error", err, "id", id)
	}
	return nil
}

func (s *Store) cacheKey(id blob.ID) string {
	return s.prefix + string(id)
}
