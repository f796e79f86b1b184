package vault

import (
	"context"

	"github.com/rbaliyan/mailvault/index"
	"github.com/rbaliyan/mailvault/query"
)

// MessageIterator provides pull-based access to search results.
// It follows the index iterator contract: Next() to advance, Value() to read.
// A single iterator is not safe for concurrent use.
type MessageIterator = index.Iterator[index.DeletedMessage]

// searchIterator streams an owner's metadata rows bucket by bucket, yielding
// only rows the compiled predicate accepts. The underlying per-bucket
// listings are themselves paginated, so memory stays bounded by the backend
// batch size regardless of vault size.
type searchIterator struct {
	index   index.MetadataIndex
	owner   string
	buckets []index.Bucket
	pred    query.Predicate

	bucketIdx int
	current   index.Iterator[index.DeletedMessage]
	value     index.DeletedMessage
	valid     bool
	done      bool
}

func newSearchIterator(ix index.MetadataIndex, owner string, buckets []index.Bucket, pred query.Predicate) *searchIterator {
	return &searchIterator{
		index:   ix,
		owner:   owner,
		buckets: buckets,
		pred:    pred,
	}
}

func (it *searchIterator) Next(ctx context.Context) (bool, error) {
	if it.done {
		return false, nil
	}
	it.valid = false

	for {
		if err := ctx.Err(); err != nil {
			it.done = true
			return false, err
		}

		if it.current == nil {
			if it.bucketIdx >= len(it.buckets) {
				it.done = true
				return false, nil
			}
			bucketIt, err := it.index.ListMetadata(ctx, it.buckets[it.bucketIdx], it.owner)
			if err != nil {
				it.done = true
				return false, err
			}
			it.bucketIdx++
			it.current = bucketIt
		}

		ok, err := it.current.Next(ctx)
		if err != nil {
			it.done = true
			return false, err
		}
		if !ok {
			it.current = nil
			continue
		}

		msg, err := it.current.Value()
		if err != nil {
			it.done = true
			return false, err
		}
		if !it.pred(msg) {
			continue
		}

		it.value = msg
		it.valid = true
		return true, nil
	}
}

func (it *searchIterator) Value() (index.DeletedMessage, error) {
	if !it.valid {
		return index.DeletedMessage{}, index.ErrIteratorOutOfBounds
	}
	return it.value, nil
}
