package vault

import (
	"errors"
	"fmt"

	"github.com/rbaliyan/mailvault/blob"
	"github.com/rbaliyan/mailvault/index"
	"github.com/rbaliyan/mailvault/query"
)

// Sentinel errors for the vault package.
// Use errors.Is() to check for these errors.
//
// These errors wrap corresponding index/blob/query-level errors where
// applicable, so errors.Is(err, vault.ErrNotFound) matches both vault-level
// and backend-level "not found" errors.
var (
	// ErrNotFound is returned when a message cannot be found in the vault.
	// Wraps index.ErrNotFound for consistent error checking.
	ErrNotFound = fmt.Errorf("vault: %w", index.ErrNotFound)

	// ErrContentNotFound is returned when a message's metadata exists but
	// its content blob is missing from the blob store.
	// Wraps blob.ErrNotFound for consistent error checking.
	ErrContentNotFound = fmt.Errorf("vault: %w", blob.ErrNotFound)

	// ErrInvalidMessage is returned for message validation failures.
	ErrInvalidMessage = errors.New("vault: invalid message")

	// ErrInvalidID is returned when an owner or message id is empty.
	// Wraps index.ErrInvalidID for consistent error checking.
	ErrInvalidID = fmt.Errorf("vault: %w", index.ErrInvalidID)

	// ErrUnsupportedQuery is returned when a search query uses a field,
	// operator, or shape the DSL does not support.
	// Wraps query.ErrUnsupportedQuery for consistent error checking.
	ErrUnsupportedQuery = fmt.Errorf("vault: %w", query.ErrUnsupportedQuery)

	// ErrIndexRequired is returned when no index is configured.
	ErrIndexRequired = errors.New("vault: index is required")

	// ErrBlobStoreRequired is returned when no blob store is configured.
	ErrBlobStoreRequired = errors.New("vault: blob store is required")

	// ErrNotConnected is returned when operations are attempted before Connect().
	// Wraps index.ErrNotConnected for consistent error checking.
	ErrNotConnected = fmt.Errorf("vault: %w", index.ErrNotConnected)

	// ErrAlreadyConnected is returned when Connect() is called twice.
	// Wraps index.ErrAlreadyConnected for consistent error checking.
	ErrAlreadyConnected = fmt.Errorf("vault: %w", index.ErrAlreadyConnected)
)

// IsNotFound reports whether err means the requested message does not exist,
// at either the vault or index level.
func IsNotFound(err error) bool {
	return errors.Is(err, index.ErrNotFound) || errors.Is(err, blob.ErrNotFound)
}

// EventPublishError is returned when event publishing fails but the
// operation itself succeeded. The message was appended/deleted, only the
// notification failed.
type EventPublishError struct {
	Event     string // The event name (e.g., "MessageAppended")
	MessageID string // The message ID the event was for
	Err       error  // The underlying publish error
}

func (e *EventPublishError) Error() string {
	return fmt.Sprintf("vault: event %s publish failed for message %s: %v", e.Event, e.MessageID, e.Err)
}

func (e *EventPublishError) Unwrap() error {
	return e.Err
}

// IsEventPublishError checks if the error is an event publish error and
// returns its details. Useful when event errors are configured as fatal but
// the caller still needs to know the underlying operation succeeded.
func IsEventPublishError(err error) (*EventPublishError, bool) {
	var epe *EventPublishError
	if errors.As(err, &epe) {
		return epe, true
	}
	return nil, false
}
