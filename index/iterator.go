package index

import (
	"context"
	"errors"
)

// ErrIteratorOutOfBounds is returned when Value() is called without a
// successful Next().
var ErrIteratorOutOfBounds = errors.New("index: iterator out of bounds - call Next() first")

// Iterator provides pull-based access to a finite sequence backed by the
// index. Use Next() to advance, Value() to read the current element.
//
// Iterators are restartable at the source: re-calling the listing method that
// produced the iterator yields a fresh iteration. A single iterator is NOT
// safe for concurrent use; create one per goroutine.
//
// Iterators hold no resources requiring cleanup - simply stop calling Next()
// when done.
type Iterator[T any] interface {
	// Next advances to the next element.
	// Returns (true, nil) if an element is available.
	// Returns (false, nil) if iteration is done.
	// Returns (false, error) if the backing read failed.
	Next(ctx context.Context) (bool, error)

	// Value returns the current element. Must be called after a successful
	// Next(); returns ErrIteratorOutOfBounds otherwise.
	Value() (T, error)
}

// sliceIterator iterates over an in-memory snapshot.
type sliceIterator[T any] struct {
	items []T
	idx   int
}

// NewSliceIterator returns an Iterator over the given snapshot. Used by the
// in-memory backend and by callers assembling small result sets.
func NewSliceIterator[T any](items []T) Iterator[T] {
	return &sliceIterator[T]{items: items}
}

func (it *sliceIterator[T]) Next(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if it.idx >= len(it.items) {
		return false, nil
	}
	it.idx++
	return true, nil
}

func (it *sliceIterator[T]) Value() (T, error) {
	var zero T
	if it.idx <= 0 || it.idx > len(it.items) {
		return zero, ErrIteratorOutOfBounds
	}
	return it.items[it.idx-1], nil
}

// Collect drains the iterator into a slice. Intended for small sequences and
// tests; prefer streaming via Next/Value for large result sets.
func Collect[T any](ctx context.Context, it Iterator[T]) ([]T, error) {
	var out []T
	for {
		ok, err := it.Next(ctx)
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		v, err := it.Value()
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
}

// FuncIterator adapts a batch-fetching function into an Iterator. Each call
// to Fetch returns the next batch; an empty batch ends iteration. Backends
// use this for cursor-paginated reads, keeping the cursor in the closure and
// advancing it on every Fetch.
type FuncIterator[T any] struct {
	Fetch func(ctx context.Context) ([]T, error)

	batch   []T
	idx     int
	done    bool
	fetched bool
}

func (it *FuncIterator[T]) Next(ctx context.Context) (bool, error) {
	if it.done {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		it.done = true
		return false, err
	}
	if it.idx >= len(it.batch) {
		if it.fetched && len(it.batch) == 0 {
			it.done = true
			return false, nil
		}
		batch, err := it.Fetch(ctx)
		if err != nil {
			it.done = true
			return false, err
		}
		it.batch = batch
		it.idx = 0
		it.fetched = true
		if len(batch) == 0 {
			it.done = true
			return false, nil
		}
	}
	it.idx++
	return true, nil
}

func (it *FuncIterator[T]) Value() (T, error) {
	var zero T
	if it.idx <= 0 || it.idx > len(it.batch) {
		return zero, ErrIteratorOutOfBounds
	}
	return it.batch[it.idx-1], nil
}
