package vault

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

const sampleMail = "From: Bob Example <Bob@Example.com>\r\n" +
	"To: alice@example.com, Carol <carol@example.com>\r\n" +
	"Cc: dave@example.com\r\n" +
	"Subject: Quarterly numbers\r\n" +
	"Date: Mon, 10 Jun 2019 09:00:00 +0000\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Numbers attached next time.\r\n"

func TestExtractMetadata(t *testing.T) {
	deletion := time.Date(2019, 6, 20, 12, 0, 0, 0, time.UTC)
	mctx := MessageContext{
		MessageID:       "m1",
		Owner:           "alice@example.com",
		OriginMailboxes: []string{"inbox"},
		DeletionDate:    deletion,
	}

	t.Run("headers mapped", func(t *testing.T) {
		msg, err := ExtractMetadata([]byte(sampleMail), mctx)
		if err != nil {
			t.Fatalf("extract: %v", err)
		}
		if msg.MessageID != "m1" || msg.Owner != "alice@example.com" {
			t.Fatalf("identity not carried: %+v", msg)
		}
		if msg.Sender != "bob@example.com" {
			t.Fatalf("expected normalized sender, got %q", msg.Sender)
		}
		if msg.Subject != "Quarterly numbers" {
			t.Fatalf("unexpected subject %q", msg.Subject)
		}
		if len(msg.Recipients) != 3 {
			t.Fatalf("expected 3 recipients (to+cc), got %v", msg.Recipients)
		}
		want := time.Date(2019, 6, 10, 9, 0, 0, 0, time.UTC)
		if !msg.DeliveryDate.Equal(want) {
			t.Fatalf("expected delivery date %v, got %v", want, msg.DeliveryDate)
		}
		if !msg.DeletionDate.Equal(deletion) {
			t.Fatalf("deletion date changed: %v", msg.DeletionDate)
		}
		if msg.HasAttachment {
			t.Fatal("plain mail should not report attachments")
		}
	})

	t.Run("attachment detected", func(t *testing.T) {
		withAttachment := "From: bob@example.com\r\n" +
			"To: alice@example.com\r\n" +
			"Subject: With file\r\n" +
			"Content-Type: multipart/mixed; boundary=BOUNDARY\r\n" +
			"\r\n" +
			"--BOUNDARY\r\n" +
			"Content-Type: text/plain\r\n" +
			"\r\n" +
			"see attached\r\n" +
			"--BOUNDARY\r\n" +
			"Content-Type: application/pdf\r\n" +
			"Content-Disposition: attachment; filename=report.pdf\r\n" +
			"\r\n" +
			"%PDF-fake\r\n" +
			"--BOUNDARY--\r\n"

		msg, err := ExtractMetadata([]byte(withAttachment), mctx)
		if err != nil {
			t.Fatalf("extract: %v", err)
		}
		if !msg.HasAttachment {
			t.Fatal("expected attachment flag")
		}
	})

	t.Run("date fallback to deletion date", func(t *testing.T) {
		noDate := "From: bob@example.com\r\nSubject: undated\r\n\r\nbody\r\n"
		msg, err := ExtractMetadata([]byte(noDate), mctx)
		if err != nil {
			t.Fatalf("extract: %v", err)
		}
		if !msg.DeliveryDate.Equal(deletion) {
			t.Fatalf("expected deletion date fallback, got %v", msg.DeliveryDate)
		}
	})

	t.Run("duplicate recipients deduplicated", func(t *testing.T) {
		dup := "From: bob@example.com\r\n" +
			"To: alice@example.com\r\n" +
			"Cc: Alice <ALICE@example.com>\r\n" +
			"Subject: dup\r\n\r\nbody\r\n"
		msg, err := ExtractMetadata([]byte(dup), mctx)
		if err != nil {
			t.Fatalf("extract: %v", err)
		}
		if len(msg.Recipients) != 1 {
			t.Fatalf("expected deduplicated recipients, got %v", msg.Recipients)
		}
	})

	t.Run("missing identity rejected", func(t *testing.T) {
		_, err := ExtractMetadata([]byte(sampleMail), MessageContext{Owner: "alice@example.com"})
		if !errors.Is(err, ErrInvalidMessage) {
			t.Fatalf("expected ErrInvalidMessage, got %v", err)
		}
	})

	t.Run("extracted message appends cleanly", func(t *testing.T) {
		svc := newTestService(t)
		msg, err := ExtractMetadata([]byte(sampleMail), mctx)
		if err != nil {
			t.Fatalf("extract: %v", err)
		}
		if err := svc.Append(context.Background(), msg, strings.NewReader(sampleMail)); err != nil {
			t.Fatalf("append: %v", err)
		}
	})
}
