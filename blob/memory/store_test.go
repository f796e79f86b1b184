package memory

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/rbaliyan/mailvault/blob"
)

func TestStore(t *testing.T) {
	ctx := context.Background()
	s := New()

	t.Run("put and get round trip", func(t *testing.T) {
		id, err := s.Put(ctx, strings.NewReader("hello world"))
		if err != nil {
			t.Fatalf("put: %v", err)
		}
		rc, err := s.Get(ctx, id)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if string(data) != "hello world" {
			t.Fatalf("expected %q, got %q", "hello world", data)
		}
	})

	t.Run("identical content deduplicated", func(t *testing.T) {
		before := s.Len()
		id1, _ := s.Put(ctx, strings.NewReader("same bytes"))
		id2, _ := s.Put(ctx, strings.NewReader("same bytes"))
		if id1 != id2 {
			t.Fatalf("identical content should share an id: %s vs %s", id1, id2)
		}
		if s.Len() != before+1 {
			t.Fatalf("expected a single new blob, got %d", s.Len()-before)
		}
	})

	t.Run("get absent", func(t *testing.T) {
		_, err := s.Get(ctx, "no-such-id")
		if !blob.IsNotFound(err) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		id, _ := s.Put(ctx, strings.NewReader("ephemeral"))
		if err := s.Delete(ctx, id); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if err := s.Delete(ctx, id); err != nil {
			t.Fatalf("second delete: %v", err)
		}
		if _, err := s.Get(ctx, id); !blob.IsNotFound(err) {
			t.Fatalf("expected ErrNotFound after delete, got %v", err)
		}
	})
}
