package query

import "errors"

// Sentinel errors for the query package.
var (
	// ErrUnsupportedQuery is returned when a query names an unknown field,
	// pairs a field with an operator outside the supported table, uses a
	// combinator other than "and", or nests a sub-query.
	ErrUnsupportedQuery = errors.New("query: unsupported query")

	// ErrInvalidLiteral is returned when a criterion's literal value cannot
	// be parsed for the field's expected type.
	ErrInvalidLiteral = errors.New("query: invalid literal")
)

// Error checking helpers.

func IsUnsupported(err error) bool {
	return errors.Is(err, ErrUnsupportedQuery)
}

func IsInvalidLiteral(err error) bool {
	return errors.Is(err, ErrInvalidLiteral)
}
