package cached

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/rbaliyan/mailvault/blob"
	"github.com/rbaliyan/mailvault/blob/memory"
)

func newTestStore(t *testing.T, opts ...Option) (*Store, *memory.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	backend := memory.New()
	s, err := New(backend, client, opts...)
	if err != nil {
		t.Fatalf("new cached store: %v", err)
	}
	return s, backend, mr
}

func readAll(t *testing.T, rc io.ReadCloser) string {
	t.Helper()
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(data)
}

func TestCachedStore(t *testing.T) {
	ctx := context.Background()

	t.Run("get populates cache", func(t *testing.T) {
		s, _, mr := newTestStore(t)
		id, err := s.Put(ctx, strings.NewReader("cache me"))
		if err != nil {
			t.Fatalf("put: %v", err)
		}

		rc, err := s.Get(ctx, id)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got := readAll(t, rc); got != "cache me" {
			t.Fatalf("expected %q, got %q", "cache me", got)
		}
		if !mr.Exists("mailvault:blob:" + string(id)) {
			t.Fatal("expected cache entry after first get")
		}
	})

	t.Run("cache hit served without backend", func(t *testing.T) {
		s, backend, _ := newTestStore(t)
		id, _ := s.Put(ctx, strings.NewReader("served twice"))
		rc, err := s.Get(ctx, id)
		if err != nil {
			t.Fatalf("warm get: %v", err)
		}
		readAll(t, rc)

		// Remove from backend; a cache hit must still serve the bytes.
		if err := backend.Delete(ctx, id); err != nil {
			t.Fatalf("backend delete: %v", err)
		}
		rc, err = s.Get(ctx, id)
		if err != nil {
			t.Fatalf("cached get: %v", err)
		}
		if got := readAll(t, rc); got != "served twice" {
			t.Fatalf("expected cached content, got %q", got)
		}
	})

	t.Run("oversized blobs bypass the cache", func(t *testing.T) {
		s, _, mr := newTestStore(t, WithMaxEntrySize(4))
		id, _ := s.Put(ctx, strings.NewReader("this is far too large"))
		rc, err := s.Get(ctx, id)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		readAll(t, rc)
		if mr.Exists("mailvault:blob:" + string(id)) {
			t.Fatal("oversized blob should not be cached")
		}
	})

	t.Run("delete invalidates cache", func(t *testing.T) {
		s, _, mr := newTestStore(t)
		id, _ := s.Put(ctx, strings.NewReader("to delete"))
		rc, _ := s.Get(ctx, id)
		readAll(t, rc)

		if err := s.Delete(ctx, id); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if mr.Exists("mailvault:blob:" + string(id)) {
			t.Fatal("cache entry should be invalidated on delete")
		}
		if _, err := s.Get(ctx, id); !blob.IsNotFound(err) {
			t.Fatalf("expected ErrNotFound after delete, got %v", err)
		}
	})

	t.Run("entries expire with TTL", func(t *testing.T) {
		s, _, mr := newTestStore(t, WithTTL(time.Minute))
		id, _ := s.Put(ctx, strings.NewReader("short lived"))
		rc, _ := s.Get(ctx, id)
		readAll(t, rc)

		mr.FastForward(2 * time.Minute)
		if mr.Exists("mailvault:blob:" + string(id)) {
			t.Fatal("cache entry should have expired")
		}
		// Backend still serves it.
		rc, err := s.Get(ctx, id)
		if err != nil {
			t.Fatalf("get after expiry: %v", err)
		}
		if got := readAll(t, rc); got != "short lived" {
			t.Fatalf("expected backend content, got %q", got)
		}
	})
}
