// Package query provides the search DSL for the deleted message vault.
//
// A query is a flat conjunction of criteria: each Criterion names a message
// field, a comparison operator, and a literal value, and a message matches
// the query when it matches every criterion. The grammar is intentionally
// flat - nesting a query inside another query is rejected at validation
// time, not silently flattened.
//
// Queries arrive from an external JSON layer (see the UnmarshalJSON/
// MarshalJSON round-trip on Query) and are compiled into pure predicates
// with Translate before any index is read. A query that fails validation
// therefore never causes partial index reads.
package query

import "fmt"

// Field names a searchable DeletedMessage attribute.
type Field string

// Searchable fields.
const (
	FieldDeletionDate    Field = "deletionDate"
	FieldDeliveryDate    Field = "deliveryDate"
	FieldRecipients      Field = "recipients"
	FieldSender          Field = "sender"
	FieldHasAttachment   Field = "hasAttachment"
	FieldOriginMailboxes Field = "originMailboxes"
	FieldSubject         Field = "subject"
)

// Operator names a comparison applied to a field.
type Operator string

// Supported operators. Each field accepts only a fixed subset, see
// supportedOperators.
const (
	OpBeforeOrEquals     Operator = "beforeOrEquals"
	OpAfterOrEquals      Operator = "afterOrEquals"
	OpEquals             Operator = "equals"
	OpEqualsIgnoreCase   Operator = "equalsIgnoreCase"
	OpContains           Operator = "contains"
	OpContainsIgnoreCase Operator = "containsIgnoreCase"
)

// supportedOperators is the (field, operator) table of the DSL.
var supportedOperators = map[Field]map[Operator]bool{
	FieldDeletionDate:    {OpBeforeOrEquals: true, OpAfterOrEquals: true},
	FieldDeliveryDate:    {OpBeforeOrEquals: true, OpAfterOrEquals: true},
	FieldRecipients:      {OpContains: true},
	FieldSender:          {OpEquals: true},
	FieldHasAttachment:   {OpEquals: true},
	FieldOriginMailboxes: {OpContains: true},
	FieldSubject:         {OpEquals: true, OpEqualsIgnoreCase: true, OpContains: true, OpContainsIgnoreCase: true},
}

// Element is one entry in a query's criteria list. It is a closed union:
// the only implementations are Criterion and Query. Query-within-Query is
// representable on the wire but rejected by Validate.
type Element interface {
	element()
}

// Criterion is a single (field, operator, value) comparison. Value is the
// raw string literal; it is parsed according to the field's type during
// translation.
type Criterion struct {
	Field    Field
	Operator Operator
	Value    string
}

func (Criterion) element() {}

// Query is an ordered set of elements combined with logical AND.
// The zero Query matches everything.
type Query struct {
	elements []Element
}

func (Query) element() {}

// All matches every message.
var All = Query{}

// Of builds a query from the given elements.
func Of(elements ...Element) Query {
	return Query{elements: elements}
}

// Elements returns the query's elements in order.
func (q Query) Elements() []Element {
	return q.elements
}

// Criteria returns the query's criteria, or an error if the query contains
// anything other than flat criteria.
func (q Query) Criteria() ([]Criterion, error) {
	criteria := make([]Criterion, 0, len(q.elements))
	for _, e := range q.elements {
		switch c := e.(type) {
		case Criterion:
			criteria = append(criteria, c)
		case Query:
			return nil, fmt.Errorf("%w: nested sub-queries are not supported", ErrUnsupportedQuery)
		default:
			return nil, fmt.Errorf("%w: unknown query element %T", ErrUnsupportedQuery, e)
		}
	}
	return criteria, nil
}

// Validate checks the query against the supported (field, operator) table
// and rejects nested sub-queries. It does not parse literal values; that
// happens in Translate.
func (q Query) Validate() error {
	criteria, err := q.Criteria()
	if err != nil {
		return err
	}
	for _, c := range criteria {
		ops, ok := supportedOperators[c.Field]
		if !ok {
			return fmt.Errorf("%w: unknown field %q", ErrUnsupportedQuery, c.Field)
		}
		if !ops[c.Operator] {
			return fmt.Errorf("%w: operator %q is not supported for field %q", ErrUnsupportedQuery, c.Operator, c.Field)
		}
	}
	return nil
}

// Convenience constructors mirroring the DSL surface.

// DeletionDateBeforeOrEquals matches messages deleted at or before the instant.
func DeletionDateBeforeOrEquals(value string) Criterion {
	return Criterion{Field: FieldDeletionDate, Operator: OpBeforeOrEquals, Value: value}
}

// DeletionDateAfterOrEquals matches messages deleted at or after the instant.
func DeletionDateAfterOrEquals(value string) Criterion {
	return Criterion{Field: FieldDeletionDate, Operator: OpAfterOrEquals, Value: value}
}

// DeliveryDateBeforeOrEquals matches messages delivered at or before the instant.
func DeliveryDateBeforeOrEquals(value string) Criterion {
	return Criterion{Field: FieldDeliveryDate, Operator: OpBeforeOrEquals, Value: value}
}

// DeliveryDateAfterOrEquals matches messages delivered at or after the instant.
func DeliveryDateAfterOrEquals(value string) Criterion {
	return Criterion{Field: FieldDeliveryDate, Operator: OpAfterOrEquals, Value: value}
}

// ContainsRecipient matches messages addressed to the given recipient.
func ContainsRecipient(address string) Criterion {
	return Criterion{Field: FieldRecipients, Operator: OpContains, Value: address}
}

// HasSender matches messages sent from the given address.
func HasSender(address string) Criterion {
	return Criterion{Field: FieldSender, Operator: OpEquals, Value: address}
}

// HasAttachment matches messages that carried attachments (or did not,
// for value false).
func HasAttachment(value bool) Criterion {
	v := "false"
	if value {
		v = "true"
	}
	return Criterion{Field: FieldHasAttachment, Operator: OpEquals, Value: v}
}

// ContainsOriginMailbox matches messages deleted from the given mailbox.
func ContainsOriginMailbox(mailboxID string) Criterion {
	return Criterion{Field: FieldOriginMailboxes, Operator: OpContains, Value: mailboxID}
}

// SubjectEquals matches messages whose subject is exactly value.
func SubjectEquals(value string) Criterion {
	return Criterion{Field: FieldSubject, Operator: OpEquals, Value: value}
}

// SubjectContains matches messages whose subject contains value.
func SubjectContains(value string) Criterion {
	return Criterion{Field: FieldSubject, Operator: OpContains, Value: value}
}
