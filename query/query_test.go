package query

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestValidate(t *testing.T) {
	t.Run("empty query is valid", func(t *testing.T) {
		if err := All.Validate(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("supported pairs", func(t *testing.T) {
		q := Of(
			DeletionDateBeforeOrEquals("2024-01-01T00:00:00Z"),
			DeliveryDateAfterOrEquals("2023-01-01T00:00:00Z"),
			ContainsRecipient("user@example.com"),
			HasSender("boss@example.com"),
			HasAttachment(true),
			ContainsOriginMailbox("mailbox-1"),
			SubjectEquals("hello"),
			SubjectContains("hel"),
			Criterion{Field: FieldSubject, Operator: OpEqualsIgnoreCase, Value: "HELLO"},
			Criterion{Field: FieldSubject, Operator: OpContainsIgnoreCase, Value: "HEL"},
		)
		if err := q.Validate(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("unsupported pairs rejected", func(t *testing.T) {
		bad := []Criterion{
			{Field: FieldSender, Operator: OpContains, Value: "x"},
			{Field: FieldRecipients, Operator: OpEquals, Value: "x"},
			{Field: FieldDeletionDate, Operator: OpEquals, Value: "x"},
			{Field: FieldHasAttachment, Operator: OpContains, Value: "true"},
			{Field: FieldOriginMailboxes, Operator: OpEqualsIgnoreCase, Value: "x"},
			{Field: FieldSubject, Operator: OpBeforeOrEquals, Value: "x"},
			{Field: "unknownField", Operator: OpEquals, Value: "x"},
		}
		for _, c := range bad {
			if err := Of(c).Validate(); !errors.Is(err, ErrUnsupportedQuery) {
				t.Errorf("(%s, %s): expected ErrUnsupportedQuery, got %v", c.Field, c.Operator, err)
			}
		}
	})

	t.Run("nested query rejected", func(t *testing.T) {
		q := Of(
			SubjectContains("a"),
			Of(SubjectContains("b")),
		)
		err := q.Validate()
		if !errors.Is(err, ErrUnsupportedQuery) {
			t.Fatalf("expected ErrUnsupportedQuery, got %v", err)
		}
	})
}

func TestJSONRoundTrip(t *testing.T) {
	q := Of(
		SubjectContains("invoice"),
		HasAttachment(true),
		DeletionDateBeforeOrEquals("2024-06-01T00:00:00Z"),
	)

	data, err := json.Marshal(q)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var back Query
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	criteria, err := back.Criteria()
	if err != nil {
		t.Fatalf("criteria: %v", err)
	}
	if len(criteria) != 3 {
		t.Fatalf("expected 3 criteria, got %d", len(criteria))
	}
	if criteria[0] != SubjectContains("invoice") {
		t.Errorf("unexpected first criterion: %+v", criteria[0])
	}
}

func TestUnmarshalJSON(t *testing.T) {
	t.Run("wire shape", func(t *testing.T) {
		raw := `{"combinator":"and","criteria":[
			{"fieldName":"subject","operator":"containsIgnoreCase","value":"Apache"},
			{"fieldName":"hasAttachment","operator":"equals","value":"true"}
		]}`
		var q Query
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if err := q.Validate(); err != nil {
			t.Fatalf("validate: %v", err)
		}
		criteria, _ := q.Criteria()
		if len(criteria) != 2 {
			t.Fatalf("expected 2 criteria, got %d", len(criteria))
		}
	})

	t.Run("non-and combinator rejected", func(t *testing.T) {
		raw := `{"combinator":"or","criteria":[]}`
		var q Query
		err := json.Unmarshal([]byte(raw), &q)
		if !errors.Is(err, ErrUnsupportedQuery) {
			t.Fatalf("expected ErrUnsupportedQuery, got %v", err)
		}
	})

	t.Run("nested query parses then fails validation", func(t *testing.T) {
		raw := `{"combinator":"and","criteria":[
			{"combinator":"and","criteria":[
				{"fieldName":"subject","operator":"equals","value":"x"}
			]}
		]}`
		var q Query
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			t.Fatalf("unmarshal should accept nesting: %v", err)
		}
		if err := q.Validate(); !errors.Is(err, ErrUnsupportedQuery) {
			t.Fatalf("expected ErrUnsupportedQuery from Validate, got %v", err)
		}
	})
}
