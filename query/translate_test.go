package query

import (
	"errors"
	"testing"
	"time"

	"github.com/rbaliyan/mailvault/index"
)

func testMessage() index.DeletedMessage {
	return index.DeletedMessage{
		MessageID:       "msg-1",
		Owner:           "alice@example.com",
		OriginMailboxes: []string{"inbox", "project-x"},
		Sender:          "bob@example.com",
		Recipients:      []string{"alice@example.com", "carol@example.com"},
		HasAttachment:   true,
		Subject:         "Quarterly Report",
		DeliveryDate:    time.Date(2019, 6, 10, 9, 0, 0, 0, time.UTC),
		DeletionDate:    time.Date(2019, 6, 20, 12, 0, 0, 0, time.UTC),
	}
}

func TestTranslate(t *testing.T) {
	msg := testMessage()

	tests := []struct {
		name  string
		query Query
		match bool
	}{
		{"empty query matches all", All, true},
		{"deletionDate beforeOrEquals inclusive", Of(DeletionDateBeforeOrEquals("2019-06-20T12:00:00Z")), true},
		{"deletionDate beforeOrEquals miss", Of(DeletionDateBeforeOrEquals("2019-06-20T11:59:59Z")), false},
		{"deletionDate afterOrEquals inclusive", Of(DeletionDateAfterOrEquals("2019-06-20T12:00:00Z")), true},
		{"deliveryDate afterOrEquals", Of(DeliveryDateAfterOrEquals("2019-06-01T00:00:00Z")), true},
		{"deliveryDate beforeOrEquals miss", Of(DeliveryDateBeforeOrEquals("2019-06-01T00:00:00Z")), false},
		{"recipient contains", Of(ContainsRecipient("carol@example.com")), true},
		{"recipient contains miss", Of(ContainsRecipient("dave@example.com")), false},
		{"recipient with display name normalized", Of(ContainsRecipient("Carol <carol@example.com>")), true},
		{"recipient literal lowercased", Of(ContainsRecipient("CAROL@Example.com")), true},
		{"sender equals", Of(HasSender("bob@example.com")), true},
		{"sender equals miss", Of(HasSender("eve@example.com")), false},
		{"sender literal lowercased", Of(HasSender("Bob@EXAMPLE.com")), true},
		{"hasAttachment true", Of(HasAttachment(true)), true},
		{"hasAttachment false miss", Of(HasAttachment(false)), false},
		{"origin mailbox contains", Of(ContainsOriginMailbox("project-x")), true},
		{"origin mailbox miss", Of(ContainsOriginMailbox("archive")), false},
		{"subject equals", Of(SubjectEquals("Quarterly Report")), true},
		{"subject equals is case sensitive", Of(SubjectEquals("quarterly report")), false},
		{"subject equalsIgnoreCase", Of(Criterion{Field: FieldSubject, Operator: OpEqualsIgnoreCase, Value: "quarterly report"}), true},
		{"subject contains", Of(SubjectContains("Report")), true},
		{"subject contains is case sensitive", Of(SubjectContains("report")), false},
		{"subject containsIgnoreCase", Of(Criterion{Field: FieldSubject, Operator: OpContainsIgnoreCase, Value: "REPORT"}), true},
		{"conjunction all match", Of(HasSender("bob@example.com"), HasAttachment(true), SubjectContains("Quarterly")), true},
		{"conjunction one miss", Of(HasSender("bob@example.com"), HasAttachment(false)), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pred, err := Translate(tt.query)
			if err != nil {
				t.Fatalf("translate: %v", err)
			}
			if got := pred(msg); got != tt.match {
				t.Fatalf("expected match=%v, got %v", tt.match, got)
			}
		})
	}
}

func TestTranslateErrors(t *testing.T) {
	t.Run("invalid literals", func(t *testing.T) {
		bad := []Criterion{
			DeletionDateBeforeOrEquals("not-a-date"),
			{Field: FieldHasAttachment, Operator: OpEquals, Value: "maybe"},
			ContainsRecipient("not an address"),
			HasSender(""),
			{Field: FieldOriginMailboxes, Operator: OpContains, Value: ""},
		}
		for _, c := range bad {
			if _, err := Translate(Of(c)); !errors.Is(err, ErrInvalidLiteral) {
				t.Errorf("(%s, %q): expected ErrInvalidLiteral, got %v", c.Field, c.Value, err)
			}
		}
	})

	t.Run("validation happens before literal parsing", func(t *testing.T) {
		q := Of(Criterion{Field: FieldSender, Operator: OpContains, Value: "not an address"})
		if _, err := Translate(q); !errors.Is(err, ErrUnsupportedQuery) {
			t.Fatalf("expected ErrUnsupportedQuery, got %v", err)
		}
	})

	t.Run("nested query rejected", func(t *testing.T) {
		q := Of(Of(SubjectEquals("x")))
		if _, err := Translate(q); !errors.Is(err, ErrUnsupportedQuery) {
			t.Fatalf("expected ErrUnsupportedQuery, got %v", err)
		}
	})
}
