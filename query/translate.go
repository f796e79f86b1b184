package query

import (
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/rbaliyan/mailvault/index"
)

// Predicate decides whether a DeletedMessage matches a compiled query.
// Predicates are pure; evaluation order across criteria does not matter.
type Predicate func(index.DeletedMessage) bool

// Translate validates q and compiles it into an executable predicate.
// Validation and literal parsing both happen here, before any index I/O:
// a bad query fails with ErrUnsupportedQuery or ErrInvalidLiteral and never
// produces partial index reads.
//
// A query with zero criteria compiles to a predicate that accepts everything.
func Translate(q Query) (Predicate, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	criteria, err := q.Criteria()
	if err != nil {
		return nil, err
	}

	predicates := make([]Predicate, 0, len(criteria))
	for _, c := range criteria {
		p, err := translateCriterion(c)
		if err != nil {
			return nil, err
		}
		predicates = append(predicates, p)
	}

	return func(msg index.DeletedMessage) bool {
		for _, p := range predicates {
			if !p(msg) {
				return false
			}
		}
		return true
	}, nil
}

func translateCriterion(c Criterion) (Predicate, error) {
	switch c.Field {
	case FieldDeletionDate:
		return datePredicate(c, func(m index.DeletedMessage) time.Time { return m.DeletionDate })
	case FieldDeliveryDate:
		return datePredicate(c, func(m index.DeletedMessage) time.Time { return m.DeliveryDate })
	case FieldRecipients:
		addr, err := parseAddress(c)
		if err != nil {
			return nil, err
		}
		return func(m index.DeletedMessage) bool { return m.HasRecipient(addr) }, nil
	case FieldSender:
		addr, err := parseAddress(c)
		if err != nil {
			return nil, err
		}
		return func(m index.DeletedMessage) bool { return m.Sender == addr }, nil
	case FieldHasAttachment:
		want, err := strconv.ParseBool(c.Value)
		if err != nil {
			return nil, literalError(c, err)
		}
		return func(m index.DeletedMessage) bool { return m.HasAttachment == want }, nil
	case FieldOriginMailboxes:
		if c.Value == "" {
			return nil, literalError(c, fmt.Errorf("empty mailbox id"))
		}
		mailboxID := c.Value
		return func(m index.DeletedMessage) bool { return m.InOriginMailbox(mailboxID) }, nil
	case FieldSubject:
		return subjectPredicate(c), nil
	default:
		// Validate already rejected unknown fields.
		return nil, fmt.Errorf("%w: unknown field %q", ErrUnsupportedQuery, c.Field)
	}
}

// datePredicate compiles a beforeOrEquals/afterOrEquals comparison against
// the timestamp selected by get. Literals are ISO-8601 with offset or zone.
func datePredicate(c Criterion, get func(index.DeletedMessage) time.Time) (Predicate, error) {
	at, err := time.Parse(time.RFC3339, c.Value)
	if err != nil {
		return nil, literalError(c, err)
	}
	switch c.Operator {
	case OpBeforeOrEquals:
		return func(m index.DeletedMessage) bool { return !get(m).After(at) }, nil
	case OpAfterOrEquals:
		return func(m index.DeletedMessage) bool { return !get(m).Before(at) }, nil
	default:
		return nil, fmt.Errorf("%w: operator %q is not supported for field %q", ErrUnsupportedQuery, c.Operator, c.Field)
	}
}

// parseAddress normalizes a mail address literal to its lowercased addr-spec
// form, matching how addresses are stored in the metadata index.
func parseAddress(c Criterion) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(c.Value))
	if err != nil {
		return "", literalError(c, err)
	}
	return strings.ToLower(addr.Address), nil
}

func subjectPredicate(c Criterion) Predicate {
	value := c.Value
	switch c.Operator {
	case OpEquals:
		return func(m index.DeletedMessage) bool { return m.Subject == value }
	case OpEqualsIgnoreCase:
		return func(m index.DeletedMessage) bool { return strings.EqualFold(m.Subject, value) }
	case OpContains:
		return func(m index.DeletedMessage) bool { return strings.Contains(m.Subject, value) }
	default: // OpContainsIgnoreCase, validated upstream
		lower := strings.ToLower(value)
		return func(m index.DeletedMessage) bool {
			return strings.Contains(strings.ToLower(m.Subject), lower)
		}
	}
}

func literalError(c Criterion, cause error) error {
	return fmt.Errorf("%w: field %q cannot parse %q: %v", ErrInvalidLiteral, c.Field, c.Value, cause)
}
