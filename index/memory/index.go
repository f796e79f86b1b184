// Package memory provides an in-memory Index implementation for testing.
// This backend is not suitable for production use - data is not persisted.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rbaliyan/mailvault/index"
)

// Index implements index.Index with in-memory storage.
// Thread-safe for concurrent use. Not suitable for production.
type Index struct {
	storageRefs sync.Map // map[string]index.StorageInformation (owner+messageID)
	metadata    sync.Map // map[string]index.DeletedMessage (bucket+owner+messageID)

	mu      sync.RWMutex
	buckets map[index.Bucket]map[string]struct{} // bucket -> owners
	owners  map[string]map[index.Bucket]struct{} // owner -> buckets

	connected int32
}

// Compile-time check.
var _ index.Index = (*Index)(nil)

// New creates a new in-memory index.
func New() *Index {
	return &Index{
		buckets: make(map[index.Bucket]map[string]struct{}),
		owners:  make(map[string]map[index.Bucket]struct{}),
	}
}

// Connect marks the index as connected.
func (ix *Index) Connect(_ context.Context) error {
	if !atomic.CompareAndSwapInt32(&ix.connected, 0, 1) {
		return index.ErrAlreadyConnected
	}
	return nil
}

// Close marks the index as disconnected.
func (ix *Index) Close(_ context.Context) error {
	atomic.StoreInt32(&ix.connected, 0)
	return nil
}

func (ix *Index) checkConnected() error {
	if atomic.LoadInt32(&ix.connected) == 0 {
		return index.ErrNotConnected
	}
	return nil
}

// refKey builds the storage reference key. Separator cannot collide with
// bucket names or ids in practice; keys are internal to this backend.
func refKey(owner, messageID string) string {
	return owner + "\x00" + messageID
}

func metaKey(bucket index.Bucket, owner, messageID string) string {
	return string(bucket) + "\x00" + owner + "\x00" + messageID
}

func metaPrefix(bucket index.Bucket, owner string) string {
	return string(bucket) + "\x00" + owner + "\x00"
}

// =============================================================================
// StorageReferenceIndex
// =============================================================================

// Reference upserts the storage information. Latest write wins.
func (ix *Index) Reference(ctx context.Context, owner, messageID string, info index.StorageInformation) error {
	if err := ix.checkConnected(); err != nil {
		return err
	}
	if owner == "" || messageID == "" {
		return index.ErrInvalidID
	}
	ix.storageRefs.Store(refKey(owner, messageID), info)
	return nil
}

// Retrieve returns the storage information for (owner, messageID).
func (ix *Index) Retrieve(ctx context.Context, owner, messageID string) (index.StorageInformation, error) {
	if err := ix.checkConnected(); err != nil {
		return index.StorageInformation{}, err
	}
	v, ok := ix.storageRefs.Load(refKey(owner, messageID))
	if !ok {
		return index.StorageInformation{}, index.ErrNotFound
	}
	return v.(index.StorageInformation), nil
}

// Remove deletes the reference. Removing an absent key is not an error.
func (ix *Index) Remove(ctx context.Context, owner, messageID string) error {
	if err := ix.checkConnected(); err != nil {
		return err
	}
	ix.storageRefs.Delete(refKey(owner, messageID))
	return nil
}

// =============================================================================
// MetadataIndex
// =============================================================================

// Store inserts or overwrites the metadata row.
func (ix *Index) Store(ctx context.Context, bucket index.Bucket, owner string, msg index.DeletedMessage) error {
	if err := ix.checkConnected(); err != nil {
		return err
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	ix.metadata.Store(metaKey(bucket, owner, msg.MessageID), msg)
	return nil
}

// ListMessageIDs returns the message ids stored for (bucket, owner).
func (ix *Index) ListMessageIDs(ctx context.Context, bucket index.Bucket, owner string) (index.Iterator[string], error) {
	msgs, err := ix.snapshot(bucket, owner)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.MessageID
	}
	return index.NewSliceIterator(ids), nil
}

// ListMetadata returns the full metadata rows stored for (bucket, owner).
func (ix *Index) ListMetadata(ctx context.Context, bucket index.Bucket, owner string) (index.Iterator[index.DeletedMessage], error) {
	msgs, err := ix.snapshot(bucket, owner)
	if err != nil {
		return nil, err
	}
	return index.NewSliceIterator(msgs), nil
}

// snapshot collects the rows for (bucket, owner) at call time. Results are
// sorted by message id only to make iteration deterministic for tests; the
// contract guarantees no ordering.
func (ix *Index) snapshot(bucket index.Bucket, owner string) ([]index.DeletedMessage, error) {
	if err := ix.checkConnected(); err != nil {
		return nil, err
	}
	prefix := metaPrefix(bucket, owner)
	var msgs []index.DeletedMessage
	ix.metadata.Range(func(k, v any) bool {
		if strings.HasPrefix(k.(string), prefix) {
			msgs = append(msgs, v.(index.DeletedMessage))
		}
		return true
	})
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].MessageID < msgs[j].MessageID })
	return msgs, nil
}

// DeleteMessage removes one row. Idempotent.
func (ix *Index) DeleteMessage(ctx context.Context, bucket index.Bucket, owner, messageID string) error {
	if err := ix.checkConnected(); err != nil {
		return err
	}
	ix.metadata.Delete(metaKey(bucket, owner, messageID))
	return nil
}

// DeleteInBucket removes all rows for owner within bucket. Idempotent.
func (ix *Index) DeleteInBucket(ctx context.Context, bucket index.Bucket, owner string) error {
	if err := ix.checkConnected(); err != nil {
		return err
	}
	prefix := metaPrefix(bucket, owner)
	ix.metadata.Range(func(k, _ any) bool {
		if strings.HasPrefix(k.(string), prefix) {
			ix.metadata.Delete(k)
		}
		return true
	})
	return nil
}

// =============================================================================
// BucketIndex
// =============================================================================

// AddUser registers owner in bucket and bucket under owner. Idempotent.
func (ix *Index) AddUser(ctx context.Context, bucket index.Bucket, owner string) error {
	if err := ix.checkConnected(); err != nil {
		return err
	}
	if owner == "" {
		return index.ErrInvalidID
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.buckets[bucket] == nil {
		ix.buckets[bucket] = make(map[string]struct{})
	}
	ix.buckets[bucket][owner] = struct{}{}
	if ix.owners[owner] == nil {
		ix.owners[owner] = make(map[index.Bucket]struct{})
	}
	ix.owners[owner][bucket] = struct{}{}
	return nil
}

// Users returns the owners registered in bucket.
func (ix *Index) Users(ctx context.Context, bucket index.Bucket) (index.Iterator[string], error) {
	if err := ix.checkConnected(); err != nil {
		return nil, err
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	users := make([]string, 0, len(ix.buckets[bucket]))
	for owner := range ix.buckets[bucket] {
		users = append(users, owner)
	}
	sort.Strings(users)
	return index.NewSliceIterator(users), nil
}

// Buckets returns every registered bucket.
func (ix *Index) Buckets(ctx context.Context) (index.Iterator[index.Bucket], error) {
	if err := ix.checkConnected(); err != nil {
		return nil, err
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	buckets := make([]index.Bucket, 0, len(ix.buckets))
	for b := range ix.buckets {
		buckets = append(buckets, b)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i] < buckets[j] })
	return index.NewSliceIterator(buckets), nil
}

// BucketsOf returns the buckets owner is registered in.
func (ix *Index) BucketsOf(ctx context.Context, owner string) (index.Iterator[index.Bucket], error) {
	if err := ix.checkConnected(); err != nil {
		return nil, err
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	buckets := make([]index.Bucket, 0, len(ix.owners[owner]))
	for b := range ix.owners[owner] {
		buckets = append(buckets, b)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i] < buckets[j] })
	return index.NewSliceIterator(buckets), nil
}

// DeleteBucket removes all membership rows for bucket, both directions.
// Idempotent.
func (ix *Index) DeleteBucket(ctx context.Context, bucket index.Bucket) error {
	if err := ix.checkConnected(); err != nil {
		return err
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for owner := range ix.buckets[bucket] {
		delete(ix.owners[owner], bucket)
		if len(ix.owners[owner]) == 0 {
			delete(ix.owners, owner)
		}
	}
	delete(ix.buckets, bucket)
	return nil
}
