// Package retry provides a bounded-retry executor for optimistic,
// condition-checked writes against the backing store.
//
// The executor retries a boolean-returning operation until it reports
// success or the attempt budget is spent. It carries no backoff and no
// timeout: attempts run back to back as fast as the operation completes,
// which suits conditional writes whose failure mode is "someone else got
// there first, re-read and try again". Exhausting the budget is a normal
// outcome, not an error; only operation errors and context cancellation
// surface as errors.
package retry

import (
	"context"
	"errors"
	"fmt"
)

// ErrInvalidMaxRetries is returned by NewExecutor for a negative budget.
var ErrInvalidMaxRetries = errors.New("retry: max retries must not be negative")

// Executor performs up to a fixed number of attempts of an operation.
// The zero value performs no attempts. Executors are immutable and safe
// for concurrent use.
type Executor struct {
	maxRetries int
}

// NewExecutor creates an executor with the given attempt budget.
// maxRetries must be >= 0; zero means the operation is never attempted.
func NewExecutor(maxRetries int) (Executor, error) {
	if maxRetries < 0 {
		return Executor{}, fmt.Errorf("%w: %d", ErrInvalidMaxRetries, maxRetries)
	}
	return Executor{maxRetries: maxRetries}, nil
}

// MaxRetries returns the executor's attempt budget.
func (e Executor) MaxRetries() int {
	return e.maxRetries
}

// Do invokes op until it returns true or the budget is spent.
// Returns (true, nil) on success, (false, nil) on exhaustion, and
// (false, err) if op fails or the context is cancelled between attempts.
func (e Executor) Do(ctx context.Context, op func(context.Context) (bool, error)) (bool, error) {
	for attempt := 0; attempt < e.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		ok, err := op(ctx)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// DoResult invokes op until it yields a present result or the executor's
// budget is spent. Returns the first present result; (zero, false, nil)
// after exhaustion.
func DoResult[T any](ctx context.Context, e Executor, op func(context.Context) (T, bool, error)) (T, bool, error) {
	var zero T
	for attempt := 0; attempt < e.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, false, err
		}
		v, ok, err := op(ctx)
		if err != nil {
			return zero, false, err
		}
		if ok {
			return v, true, nil
		}
	}
	return zero, false, nil
}
