package vault

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	blobmemory "github.com/rbaliyan/mailvault/blob/memory"
	"github.com/rbaliyan/mailvault/index"
	indexmemory "github.com/rbaliyan/mailvault/index/memory"
	"github.com/rbaliyan/mailvault/query"
)

func newTestService(t *testing.T, opts ...Option) Service {
	t.Helper()
	svc, err := NewService(append([]Option{
		WithIndex(indexmemory.New()),
		WithBlobStore(blobmemory.New()),
	}, opts...)...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := svc.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { svc.Close(context.Background()) })
	return svc
}

func vaultedMessage(owner, id string, deletion time.Time) DeletedMessage {
	return DeletedMessage{
		MessageID:       id,
		Owner:           owner,
		OriginMailboxes: []string{"inbox"},
		Sender:          "sender@example.com",
		Recipients:      []string{owner},
		Subject:         "subject of " + id,
		DeliveryDate:    deletion.Add(-72 * time.Hour),
		DeletionDate:    deletion,
	}
}

func collectSearch(t *testing.T, svc Service, owner string, q query.Query) []DeletedMessage {
	t.Helper()
	it, err := svc.Search(context.Background(), owner, q)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	msgs, err := index.Collect(context.Background(), it)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	return msgs
}

func TestServiceLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("operations require connect", func(t *testing.T) {
		svc, err := NewService(
			WithIndex(indexmemory.New()),
			WithBlobStore(blobmemory.New()),
		)
		if err != nil {
			t.Fatalf("new service: %v", err)
		}
		if svc.IsConnected() {
			t.Fatal("fresh service should not be connected")
		}
		err = svc.Append(ctx, vaultedMessage("alice", "m1", time.Now()), strings.NewReader("x"))
		if !errors.Is(err, ErrNotConnected) {
			t.Fatalf("expected ErrNotConnected, got %v", err)
		}
	})

	t.Run("double connect fails", func(t *testing.T) {
		svc := newTestService(t)
		if err := svc.Connect(ctx); !errors.Is(err, ErrAlreadyConnected) {
			t.Fatalf("expected ErrAlreadyConnected, got %v", err)
		}
	})

	t.Run("missing backends rejected", func(t *testing.T) {
		if _, err := NewService(WithBlobStore(blobmemory.New())); !errors.Is(err, ErrIndexRequired) {
			t.Fatalf("expected ErrIndexRequired, got %v", err)
		}
		if _, err := NewService(WithIndex(indexmemory.New())); !errors.Is(err, ErrBlobStoreRequired) {
			t.Fatalf("expected ErrBlobStoreRequired, got %v", err)
		}
	})
}

func TestAppendAndLoadContent(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	deletion := time.Date(2019, 6, 20, 10, 0, 0, 0, time.UTC)

	msg := vaultedMessage("alice@example.com", "m1", deletion)
	if err := svc.Append(ctx, msg, strings.NewReader("raw mail bytes")); err != nil {
		t.Fatalf("append: %v", err)
	}

	t.Run("content round trip", func(t *testing.T) {
		rc, err := svc.LoadContent(ctx, "alice@example.com", "m1")
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		defer rc.Close()
		data, _ := io.ReadAll(rc)
		if string(data) != "raw mail bytes" {
			t.Fatalf("expected raw bytes back, got %q", data)
		}
	})

	t.Run("re-append overwrites content", func(t *testing.T) {
		if err := svc.Append(ctx, msg, strings.NewReader("newer bytes")); err != nil {
			t.Fatalf("re-append: %v", err)
		}
		rc, err := svc.LoadContent(ctx, "alice@example.com", "m1")
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		defer rc.Close()
		data, _ := io.ReadAll(rc)
		if string(data) != "newer bytes" {
			t.Fatalf("expected latest content, got %q", data)
		}
		// Search still sees a single copy.
		if got := collectSearch(t, svc, "alice@example.com", query.All); len(got) != 1 {
			t.Fatalf("expected 1 message, got %d", len(got))
		}
	})

	t.Run("load for wrong owner", func(t *testing.T) {
		_, err := svc.LoadContent(ctx, "bob@example.com", "m1")
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("invalid message rejected", func(t *testing.T) {
		err := svc.Append(ctx, DeletedMessage{Owner: "alice@example.com"}, strings.NewReader("x"))
		if !errors.Is(err, ErrInvalidMessage) {
			t.Fatalf("expected ErrInvalidMessage, got %v", err)
		}
	})
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	deletion := time.Date(2019, 6, 20, 10, 0, 0, 0, time.UTC)

	if err := svc.Append(ctx, vaultedMessage("alice", "m1", deletion), strings.NewReader("bytes")); err != nil {
		t.Fatalf("append: %v", err)
	}

	if err := svc.Delete(ctx, "alice", "m1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	t.Run("message is gone", func(t *testing.T) {
		if _, err := svc.LoadContent(ctx, "alice", "m1"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if got := collectSearch(t, svc, "alice", query.All); len(got) != 0 {
			t.Fatalf("expected no search results, got %d", len(got))
		}
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		if err := svc.Delete(ctx, "alice", "m1"); err != nil {
			t.Fatalf("second delete: %v", err)
		}
		if err := svc.Delete(ctx, "alice", "never-existed"); err != nil {
			t.Fatalf("delete of absent message: %v", err)
		}
	})
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, WithBucketPrefix("deletedMessages"))

	june := time.Date(2019, 6, 5, 8, 0, 0, 0, time.UTC)
	july := time.Date(2019, 7, 15, 8, 0, 0, 0, time.UTC)

	invoice := vaultedMessage("alice", "m-invoice", june)
	invoice.Subject = "Invoice June"
	invoice.HasAttachment = true

	report := vaultedMessage("alice", "m-report", july)
	report.Subject = "Weekly report"
	report.Sender = "boss@example.com"

	other := vaultedMessage("bob", "m-bob", june)

	for _, m := range []DeletedMessage{invoice, report, other} {
		if err := svc.Append(ctx, m, strings.NewReader(m.MessageID)); err != nil {
			t.Fatalf("append %s: %v", m.MessageID, err)
		}
	}

	t.Run("all spans buckets", func(t *testing.T) {
		got := collectSearch(t, svc, "alice", query.All)
		if len(got) != 2 {
			t.Fatalf("expected 2 messages across buckets, got %d", len(got))
		}
	})

	t.Run("scoped to owner", func(t *testing.T) {
		got := collectSearch(t, svc, "bob", query.All)
		if len(got) != 1 || got[0].MessageID != "m-bob" {
			t.Fatalf("expected only bob's message, got %v", got)
		}
	})

	t.Run("subject containsIgnoreCase", func(t *testing.T) {
		q := query.Of(query.Criterion{
			Field:    query.FieldSubject,
			Operator: query.OpContainsIgnoreCase,
			Value:    "INVOICE",
		})
		got := collectSearch(t, svc, "alice", q)
		if len(got) != 1 || got[0].MessageID != "m-invoice" {
			t.Fatalf("expected the invoice, got %v", got)
		}
	})

	t.Run("conjunction", func(t *testing.T) {
		q := query.Of(
			query.HasSender("boss@example.com"),
			query.DeletionDateAfterOrEquals("2019-07-01T00:00:00Z"),
		)
		got := collectSearch(t, svc, "alice", q)
		if len(got) != 1 || got[0].MessageID != "m-report" {
			t.Fatalf("expected the report, got %v", got)
		}
	})

	t.Run("invalid query fails before iteration", func(t *testing.T) {
		q := query.Of(query.Criterion{Field: "bogus", Operator: query.OpEquals, Value: "x"})
		if _, err := svc.Search(ctx, "alice", q); !errors.Is(err, query.ErrUnsupportedQuery) {
			t.Fatalf("expected ErrUnsupportedQuery, got %v", err)
		}
	})

	t.Run("unknown owner yields empty result", func(t *testing.T) {
		got := collectSearch(t, svc, "nobody", query.All)
		if len(got) != 0 {
			t.Fatalf("expected no results, got %v", got)
		}
	})
}

func TestUsersWithVault(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	deletion := time.Date(2019, 6, 20, 10, 0, 0, 0, time.UTC)

	t.Run("empty vault", func(t *testing.T) {
		owners, err := svc.UsersWithVault(ctx)
		if err != nil {
			t.Fatalf("users: %v", err)
		}
		if len(owners) != 0 {
			t.Fatalf("expected no owners, got %v", owners)
		}
	})

	t.Run("owners across buckets deduplicated", func(t *testing.T) {
		appends := []DeletedMessage{
			vaultedMessage("bob", "m1", deletion),
			vaultedMessage("alice", "m1", deletion),
			vaultedMessage("alice", "m2", deletion.AddDate(0, 1, 0)),
		}
		for _, m := range appends {
			if err := svc.Append(ctx, m, strings.NewReader("x")); err != nil {
				t.Fatalf("append: %v", err)
			}
		}
		owners, err := svc.UsersWithVault(ctx)
		if err != nil {
			t.Fatalf("users: %v", err)
		}
		if len(owners) != 2 || owners[0] != "alice" || owners[1] != "bob" {
			t.Fatalf("expected [alice bob], got %v", owners)
		}
	})
}

func TestServiceEvents(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	events := svc.Events()
	if events == nil {
		t.Fatal("expected events after connect")
	}

	// Appends publish through the per-service bus; with the default noop
	// transport this must never surface as an operation error.
	deletion := time.Date(2019, 6, 20, 10, 0, 0, 0, time.UTC)
	if err := svc.Append(ctx, vaultedMessage("alice", "m1", deletion), strings.NewReader("x")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := svc.Delete(ctx, "alice", "m1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
}
