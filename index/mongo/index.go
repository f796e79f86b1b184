// Package mongo provides a MongoDB implementation of index.Index.
//
// Three collections back the three indices, all keyed so that every vault
// operation resolves to a single-partition read or an idempotent upsert:
//
//   - vault_metadata: one document per (bucket, owner, message_id), holding
//     the full DeletedMessage.
//   - vault_storage: one document per (owner, message_id), holding the
//     current StorageInformation. Upserts give latest-write-wins.
//   - vault_buckets: one document per (bucket, owner) membership pair,
//     indexed on both bucket and owner so it serves as its own reverse index.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	mongoopts "go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/rbaliyan/mailvault/index"
)

// Index implements index.Index using MongoDB.
type Index struct {
	client   *mongo.Client
	metadata *mongo.Collection
	storage  *mongo.Collection
	buckets  *mongo.Collection

	opts      *options
	connected int32
	logger    *slog.Logger
}

// Compile-time check.
var _ index.Index = (*Index)(nil)

// New creates a new MongoDB index with the provided client.
// Call Connect() to initialize the collections and indexes.
func New(client *mongo.Client, opts ...Option) *Index {
	o := newOptions(opts...)
	return &Index{
		client: client,
		opts:   o,
		logger: o.logger,
	}
}

// Connect initializes the database, collections, and indexes.
func (ix *Index) Connect(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&ix.connected, 0, 1) {
		return index.ErrAlreadyConnected
	}

	if ix.client == nil {
		atomic.StoreInt32(&ix.connected, 0)
		return fmt.Errorf("mongo: client is required")
	}

	ctx, cancel := context.WithTimeout(ctx, ix.opts.timeout)
	defer cancel()

	if err := ix.client.Ping(ctx, nil); err != nil {
		atomic.StoreInt32(&ix.connected, 0)
		return fmt.Errorf("mongo ping: %w", err)
	}

	db := ix.client.Database(ix.opts.database)
	ix.metadata = db.Collection(ix.opts.metadataCol)
	ix.storage = db.Collection(ix.opts.storageCol)
	ix.buckets = db.Collection(ix.opts.bucketCol)

	if err := ix.ensureIndexes(ctx); err != nil {
		atomic.StoreInt32(&ix.connected, 0)
		return fmt.Errorf("ensure indexes: %w", err)
	}

	ix.logger.Info("connected to MongoDB", "database", ix.opts.database)
	return nil
}

// Close marks the index as disconnected.
// The caller is responsible for closing the MongoDB client.
func (ix *Index) Close(ctx context.Context) error {
	atomic.StoreInt32(&ix.connected, 0)
	return nil
}

func (ix *Index) checkConnected() error {
	if atomic.LoadInt32(&ix.connected) == 0 {
		return index.ErrNotConnected
	}
	return nil
}

// ensureIndexes creates required indexes.
func (ix *Index) ensureIndexes(ctx context.Context) error {
	metadataIndexes := []mongo.IndexModel{
		// Partition key + row key: one document per message copy.
		{
			Keys: bson.D{
				bson.E{Key: "bucket", Value: 1},
				bson.E{Key: "owner", Value: 1},
				bson.E{Key: "message_id", Value: 1},
			},
			Options: mongoopts.Index().SetUnique(true),
		},
	}
	if _, err := ix.metadata.Indexes().CreateMany(ctx, metadataIndexes); err != nil {
		return fmt.Errorf("metadata indexes: %w", err)
	}

	storageIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				bson.E{Key: "owner", Value: 1},
				bson.E{Key: "message_id", Value: 1},
			},
			Options: mongoopts.Index().SetUnique(true),
		},
	}
	if _, err := ix.storage.Indexes().CreateMany(ctx, storageIndexes); err != nil {
		return fmt.Errorf("storage indexes: %w", err)
	}

	bucketIndexes := []mongo.IndexModel{
		// Membership pair, unique so AddUser is a natural idempotent upsert.
		{
			Keys: bson.D{
				bson.E{Key: "bucket", Value: 1},
				bson.E{Key: "owner", Value: 1},
			},
			Options: mongoopts.Index().SetUnique(true),
		},
		// Reverse direction: owner -> buckets for search.
		{Keys: bson.D{
			bson.E{Key: "owner", Value: 1},
			bson.E{Key: "bucket", Value: 1},
		}},
	}
	if _, err := ix.buckets.Indexes().CreateMany(ctx, bucketIndexes); err != nil {
		return fmt.Errorf("bucket indexes: %w", err)
	}

	return nil
}

// =============================================================================
// StorageReferenceIndex
// =============================================================================

type storageDoc struct {
	Owner     string `bson:"owner"`
	MessageID string `bson:"message_id"`
	Bucket    string `bson:"bucket"`
	BlobID    string `bson:"blob_id"`
}

// Reference upserts the storage information. Latest write wins.
func (ix *Index) Reference(ctx context.Context, owner, messageID string, info index.StorageInformation) error {
	if err := ix.checkConnected(); err != nil {
		return err
	}
	if owner == "" || messageID == "" {
		return index.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, ix.opts.timeout)
	defer cancel()

	filter := bson.M{"owner": owner, "message_id": messageID}
	doc := storageDoc{Owner: owner, MessageID: messageID, Bucket: string(info.Bucket), BlobID: info.BlobID}

	_, err := ix.storage.ReplaceOne(ctx, filter, doc, mongoopts.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("reference storage: %w", err)
	}
	return nil
}

// Retrieve returns the storage information for (owner, messageID).
func (ix *Index) Retrieve(ctx context.Context, owner, messageID string) (index.StorageInformation, error) {
	if err := ix.checkConnected(); err != nil {
		return index.StorageInformation{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, ix.opts.timeout)
	defer cancel()

	var doc storageDoc
	err := ix.storage.FindOne(ctx, bson.M{"owner": owner, "message_id": messageID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return index.StorageInformation{}, index.ErrNotFound
		}
		return index.StorageInformation{}, fmt.Errorf("retrieve storage: %w", err)
	}

	return index.StorageInformation{Bucket: index.Bucket(doc.Bucket), BlobID: doc.BlobID}, nil
}

// Remove deletes the reference. Removing an absent key is not an error.
func (ix *Index) Remove(ctx context.Context, owner, messageID string) error {
	if err := ix.checkConnected(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, ix.opts.timeout)
	defer cancel()

	if _, err := ix.storage.DeleteOne(ctx, bson.M{"owner": owner, "message_id": messageID}); err != nil {
		return fmt.Errorf("remove storage: %w", err)
	}
	return nil
}

// =============================================================================
// MetadataIndex
// =============================================================================

type metadataDoc struct {
	Bucket  string               `bson:"bucket"`
	Owner   string               `bson:"owner"`
	Message index.DeletedMessage `bson:"message"`

	// MessageID duplicates Message.MessageID at the top level for the
	// unique index and keyset pagination.
	MessageID string `bson:"message_id"`
}

// Store inserts or overwrites the metadata row.
func (ix *Index) Store(ctx context.Context, bucket index.Bucket, owner string, msg index.DeletedMessage) error {
	if err := ix.checkConnected(); err != nil {
		return err
	}
	if err := msg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, ix.opts.timeout)
	defer cancel()

	filter := bson.M{"bucket": string(bucket), "owner": owner, "message_id": msg.MessageID}
	doc := metadataDoc{Bucket: string(bucket), Owner: owner, MessageID: msg.MessageID, Message: msg}

	_, err := ix.metadata.ReplaceOne(ctx, filter, doc, mongoopts.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("store metadata: %w", err)
	}
	return nil
}

// listPage fetches one keyset page of metadata documents for (bucket, owner).
func (ix *Index) listPage(ctx context.Context, bucket index.Bucket, owner, afterID string) ([]metadataDoc, error) {
	ctx, cancel := context.WithTimeout(ctx, ix.opts.timeout)
	defer cancel()

	filter := bson.M{"bucket": string(bucket), "owner": owner}
	if afterID != "" {
		filter["message_id"] = bson.M{"$gt": afterID}
	}

	findOpts := mongoopts.Find().
		SetSort(bson.D{bson.E{Key: "message_id", Value: 1}}).
		SetLimit(int64(ix.opts.batchSize))

	cur, err := ix.metadata.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("list metadata: %w", err)
	}
	defer cur.Close(ctx)

	var docs []metadataDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return docs, nil
}

// ListMessageIDs returns the message ids stored for (bucket, owner).
func (ix *Index) ListMessageIDs(ctx context.Context, bucket index.Bucket, owner string) (index.Iterator[string], error) {
	if err := ix.checkConnected(); err != nil {
		return nil, err
	}

	var cursor string
	return &index.FuncIterator[string]{
		Fetch: func(ctx context.Context) ([]string, error) {
			docs, err := ix.listPage(ctx, bucket, owner, cursor)
			if err != nil {
				return nil, err
			}
			ids := make([]string, len(docs))
			for i, d := range docs {
				ids[i] = d.MessageID
			}
			if len(docs) > 0 {
				cursor = docs[len(docs)-1].MessageID
			}
			return ids, nil
		},
	}, nil
}

// ListMetadata returns the full metadata rows stored for (bucket, owner).
func (ix *Index) ListMetadata(ctx context.Context, bucket index.Bucket, owner string) (index.Iterator[index.DeletedMessage], error) {
	if err := ix.checkConnected(); err != nil {
		return nil, err
	}

	var cursor string
	return &index.FuncIterator[index.DeletedMessage]{
		Fetch: func(ctx context.Context) ([]index.DeletedMessage, error) {
			docs, err := ix.listPage(ctx, bucket, owner, cursor)
			if err != nil {
				return nil, err
			}
			msgs := make([]index.DeletedMessage, len(docs))
			for i, d := range docs {
				msgs[i] = d.Message
			}
			if len(docs) > 0 {
				cursor = docs[len(docs)-1].MessageID
			}
			return msgs, nil
		},
	}, nil
}

// DeleteMessage removes one row. Idempotent.
func (ix *Index) DeleteMessage(ctx context.Context, bucket index.Bucket, owner, messageID string) error {
	if err := ix.checkConnected(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, ix.opts.timeout)
	defer cancel()

	filter := bson.M{"bucket": string(bucket), "owner": owner, "message_id": messageID}
	if _, err := ix.metadata.DeleteOne(ctx, filter); err != nil {
		return fmt.Errorf("delete metadata: %w", err)
	}
	return nil
}

// DeleteInBucket removes all rows for owner within bucket. Idempotent.
func (ix *Index) DeleteInBucket(ctx context.Context, bucket index.Bucket, owner string) error {
	if err := ix.checkConnected(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, ix.opts.timeout)
	defer cancel()

	filter := bson.M{"bucket": string(bucket), "owner": owner}
	if _, err := ix.metadata.DeleteMany(ctx, filter); err != nil {
		return fmt.Errorf("delete in bucket: %w", err)
	}
	return nil
}

// =============================================================================
// BucketIndex
// =============================================================================

type membershipDoc struct {
	Bucket string `bson:"bucket"`
	Owner  string `bson:"owner"`
}

// AddUser registers owner in bucket. The unique (bucket, owner) index makes
// the upsert idempotent without any read-before-write.
func (ix *Index) AddUser(ctx context.Context, bucket index.Bucket, owner string) error {
	if err := ix.checkConnected(); err != nil {
		return err
	}
	if owner == "" {
		return index.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, ix.opts.timeout)
	defer cancel()

	filter := bson.M{"bucket": string(bucket), "owner": owner}
	update := bson.M{"$setOnInsert": membershipDoc{Bucket: string(bucket), Owner: owner}}

	_, err := ix.buckets.UpdateOne(ctx, filter, update, mongoopts.UpdateOne().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("add user: %w", err)
	}
	return nil
}

// distinctMembership reads membership docs matching filter and projects one
// field, deduplicated. Membership rows are unique per (bucket, owner), so
// dedup only matters when projecting a single dimension.
func (ix *Index) distinctMembership(ctx context.Context, filter bson.M, project func(membershipDoc) string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, ix.opts.timeout)
	defer cancel()

	cur, err := ix.buckets.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list membership: %w", err)
	}
	defer cur.Close(ctx)

	seen := make(map[string]struct{})
	var out []string
	for cur.Next(ctx) {
		var doc membershipDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode membership: %w", err)
		}
		v := project(doc)
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate membership: %w", err)
	}
	return out, nil
}

// Users returns the owners registered in bucket.
func (ix *Index) Users(ctx context.Context, bucket index.Bucket) (index.Iterator[string], error) {
	if err := ix.checkConnected(); err != nil {
		return nil, err
	}
	owners, err := ix.distinctMembership(ctx, bson.M{"bucket": string(bucket)},
		func(d membershipDoc) string { return d.Owner })
	if err != nil {
		return nil, err
	}
	return index.NewSliceIterator(owners), nil
}

// Buckets returns every registered bucket.
func (ix *Index) Buckets(ctx context.Context) (index.Iterator[index.Bucket], error) {
	if err := ix.checkConnected(); err != nil {
		return nil, err
	}
	names, err := ix.distinctMembership(ctx, bson.M{},
		func(d membershipDoc) string { return d.Bucket })
	if err != nil {
		return nil, err
	}
	buckets := make([]index.Bucket, len(names))
	for i, n := range names {
		buckets[i] = index.Bucket(n)
	}
	return index.NewSliceIterator(buckets), nil
}

// BucketsOf returns the buckets owner is registered in.
func (ix *Index) BucketsOf(ctx context.Context, owner string) (index.Iterator[index.Bucket], error) {
	if err := ix.checkConnected(); err != nil {
		return nil, err
	}
	names, err := ix.distinctMembership(ctx, bson.M{"owner": owner},
		func(d membershipDoc) string { return d.Bucket })
	if err != nil {
		return nil, err
	}
	buckets := make([]index.Bucket, len(names))
	for i, n := range names {
		buckets[i] = index.Bucket(n)
	}
	return index.NewSliceIterator(buckets), nil
}

// DeleteBucket removes all membership rows for bucket. Idempotent.
func (ix *Index) DeleteBucket(ctx context.Context, bucket index.Bucket) error {
	if err := ix.checkConnected(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, ix.opts.timeout)
	defer cancel()

	if _, err := ix.buckets.DeleteMany(ctx, bson.M{"bucket": string(bucket)}); err != nil {
		return fmt.Errorf("delete bucket: %w", err)
	}
	return nil
}
