// Package index provides the metadata indices backing the deleted message
// vault. Implementations are in index/mongo, index/postgres, and index/memory
// subpackages.
//
// Three indices cooperate, all partitioned by retention bucket:
//
//   - StorageReferenceIndex records where each (owner, message) blob lives.
//   - MetadataIndex records the searchable DeletedMessage rows per
//     (bucket, owner).
//   - BucketIndex records which owners have data in which buckets, in both
//     directions, so that search can enumerate an owner's buckets without
//     scanning every bucket ever created.
//
// # Architectural Principle: No Distributed Locks
//
// All operations are idempotent upserts or deletes keyed by
// (bucket, owner, message id). Concurrency is handled by database-native
// atomic operations (MongoDB upserts, PostgreSQL INSERT ON CONFLICT), never
// by external locking. Writes to the same key resolve latest-write-wins;
// callers needing a stricter ordering must serialize above this layer.
package index

import "context"

// StorageInformation records where a message's serialized content lives.
// At most one live StorageInformation exists per (owner, message id);
// a new Reference call for the same key overwrites the previous value.
type StorageInformation struct {
	// Bucket is the retention bucket derived from the message's deletion date.
	Bucket Bucket
	// BlobID is the opaque blob store identifier for the content.
	BlobID string
}

// StorageReferenceIndex maps (owner, message id) to the blob holding the
// message content.
//
// Reference and Remove are idempotent: overwriting an existing reference or
// removing an absent one is success. The blob store is never touched by this
// index; an overwritten blob is orphaned until garbage collection reclaims it.
type StorageReferenceIndex interface {
	// Reference upserts the storage information for (owner, messageID).
	// Latest write wins.
	Reference(ctx context.Context, owner, messageID string, info StorageInformation) error

	// Retrieve returns the storage information for (owner, messageID).
	// Returns ErrNotFound if the key was never referenced or already removed.
	Retrieve(ctx context.Context, owner, messageID string) (StorageInformation, error)

	// Remove deletes the reference. Removing an absent key is not an error.
	Remove(ctx context.Context, owner, messageID string) error
}

// MetadataIndex stores the searchable DeletedMessage rows, keyed by
// (bucket, owner, message id).
//
// Listing methods return finite, restartable iterators: calling the method
// again yields a fresh iteration. No ordering is guaranteed within a bucket.
type MetadataIndex interface {
	// Store inserts or overwrites the metadata row for msg in the given
	// bucket and owner partition.
	Store(ctx context.Context, bucket Bucket, owner string, msg DeletedMessage) error

	// ListMessageIDs returns the message ids stored for (bucket, owner).
	ListMessageIDs(ctx context.Context, bucket Bucket, owner string) (Iterator[string], error)

	// ListMetadata returns the full metadata rows stored for (bucket, owner).
	ListMetadata(ctx context.Context, bucket Bucket, owner string) (Iterator[DeletedMessage], error)

	// DeleteMessage removes one row. Idempotent.
	DeleteMessage(ctx context.Context, bucket Bucket, owner, messageID string) error

	// DeleteInBucket removes all rows for owner within bucket. Idempotent;
	// subsequent listings for (bucket, owner) are empty.
	DeleteInBucket(ctx context.Context, bucket Bucket, owner string) error
}

// BucketIndex records bucket membership in both directions:
// bucket -> owners (for garbage collection) and owner -> buckets
// (for search). AddUser maintains both sides in one call.
type BucketIndex interface {
	// AddUser registers owner in bucket. Idempotent; a second call with the
	// same pair has no additional effect.
	AddUser(ctx context.Context, bucket Bucket, owner string) error

	// Users returns the owners registered in bucket, deduplicated.
	Users(ctx context.Context, bucket Bucket) (Iterator[string], error)

	// Buckets returns every bucket any owner ever registered into,
	// deduplicated.
	Buckets(ctx context.Context) (Iterator[Bucket], error)

	// BucketsOf returns the buckets owner is registered in, deduplicated.
	BucketsOf(ctx context.Context, owner string) (Iterator[Bucket], error)

	// DeleteBucket removes all membership rows for bucket, including the
	// owner -> bucket reverse entries. Idempotent.
	DeleteBucket(ctx context.Context, bucket Bucket) error
}

// Index combines the three vault indices with a shared lifecycle.
// A single backend session serves all three; Connect initializes
// collections/schema and Close releases the session state.
type Index interface {
	Connect(ctx context.Context) error
	Close(ctx context.Context) error

	StorageReferenceIndex
	MetadataIndex
	BucketIndex
}
