package query

import (
	"encoding/json"
	"fmt"
)

// Wire shape of the query DSL, as consumed from the external JSON layer:
//
//	{"combinator": "and", "criteria": [
//	    {"fieldName": "subject", "operator": "contains", "value": "hello"},
//	    ...
//	]}
//
// A criteria entry may itself be a composite query on the wire; it parses
// into a nested Query element and is then rejected by Validate, so the
// rejection carries an ErrUnsupportedQuery rather than a JSON error.

const combinatorAnd = "and"

type criterionJSON struct {
	FieldName string `json:"fieldName"`
	Operator  string `json:"operator"`
	Value     string `json:"value"`
}

type queryJSON struct {
	Combinator string            `json:"combinator"`
	Criteria   []json.RawMessage `json:"criteria"`
}

// MarshalJSON renders the query in its wire shape.
func (q Query) MarshalJSON() ([]byte, error) {
	out := queryJSON{Combinator: combinatorAnd, Criteria: make([]json.RawMessage, 0, len(q.elements))}
	for _, e := range q.elements {
		var (
			raw []byte
			err error
		)
		switch v := e.(type) {
		case Criterion:
			raw, err = json.Marshal(criterionJSON{FieldName: string(v.Field), Operator: string(v.Operator), Value: v.Value})
		case Query:
			raw, err = v.MarshalJSON()
		default:
			err = fmt.Errorf("%w: unknown query element %T", ErrUnsupportedQuery, e)
		}
		if err != nil {
			return nil, err
		}
		out.Criteria = append(out.Criteria, raw)
	}
	return json.Marshal(out)
}

// UnmarshalJSON parses the wire shape. Only the "and" combinator is
// accepted. Nested composite queries parse into Query elements; Validate
// rejects them afterwards.
func (q *Query) UnmarshalJSON(data []byte) error {
	var wire queryJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	if wire.Combinator != combinatorAnd {
		return fmt.Errorf("%w: combinator %q is not supported", ErrUnsupportedQuery, wire.Combinator)
	}
	elements := make([]Element, 0, len(wire.Criteria))
	for _, raw := range wire.Criteria {
		e, err := unmarshalElement(raw)
		if err != nil {
			return err
		}
		elements = append(elements, e)
	}
	q.elements = elements
	return nil
}

// unmarshalElement decides between criterion and composite by the presence
// of the "combinator" key.
func unmarshalElement(raw json.RawMessage) (Element, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, err
	}
	if _, isComposite := probe["combinator"]; isComposite {
		var nested Query
		if err := nested.UnmarshalJSON(raw); err != nil {
			return nil, err
		}
		return nested, nil
	}
	var c criterionJSON
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, err
	}
	return Criterion{Field: Field(c.FieldName), Operator: Operator(c.Operator), Value: c.Value}, nil
}
