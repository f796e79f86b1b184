// Package blob defines the content storage contract the vault consumes.
// Implementations are in blob/s3, blob/gcs, blob/memory, and blob/cached
// subpackages.
//
// The vault treats blob ids as opaque: s3/gcs return URI-shaped ids, the
// in-memory store returns content digests. A store may deduplicate content
// internally; the vault never inspects ids and never assumes two Put calls
// return distinct ids.
package blob

import (
	"context"
	"errors"
	"io"
)

// ID is an opaque blob identifier.
type ID string

func (id ID) String() string { return string(id) }

// Sentinel errors for the blob package.
var (
	// ErrNotFound is returned by Get when no blob exists for the id.
	ErrNotFound = errors.New("blob: not found")

	// ErrInvalidID is returned when an id is empty or malformed for the backend.
	ErrInvalidID = errors.New("blob: invalid id")
)

// Store stores message content.
//
// Put and Delete are idempotent from the caller's point of view: storing the
// same bytes twice may return the same id (deduplicating backends), and
// deleting an absent blob is success.
type Store interface {
	// Put stores the content and returns its id.
	Put(ctx context.Context, content io.Reader) (ID, error)

	// Get returns a reader over the blob's content.
	// Returns ErrNotFound if no blob exists for the id.
	Get(ctx context.Context, id ID) (io.ReadCloser, error)

	// Delete removes the blob. Deleting an absent blob is not an error.
	Delete(ctx context.Context, id ID) error
}

// IsNotFound reports whether err is a blob not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
