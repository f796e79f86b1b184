package index

import "errors"

// Sentinel errors for the index package.
var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("index: not found")

	// ErrInvalidID is returned when an owner or message id is empty.
	ErrInvalidID = errors.New("index: invalid id")

	// ErrInvalidBucket is returned when a bucket name does not follow the
	// <prefix>-YYYY-MM-DD format.
	ErrInvalidBucket = errors.New("index: invalid bucket name")

	// ErrNotConnected is returned when operations are attempted before Connect().
	ErrNotConnected = errors.New("index: not connected")

	// ErrAlreadyConnected is returned when Connect() is called twice.
	ErrAlreadyConnected = errors.New("index: already connected")
)

// Error checking helpers.

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsNotConnected(err error) bool {
	return errors.Is(err, ErrNotConnected)
}
