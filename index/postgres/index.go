// Package postgres provides a PostgreSQL implementation of index.Index.
//
// The metadata rows keep searchable fields in typed columns (arrays for
// recipients and origin mailboxes) and the full record as JSONB, so the
// schema can serve richer server-side filtering later without a migration.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/rbaliyan/mailvault/index"
)

// Compile-time check
var _ index.Index = (*Index)(nil)

// Index implements index.Index using PostgreSQL.
type Index struct {
	db        *sqlx.DB
	opts      *options
	connected int32
	logger    *slog.Logger
}

// New creates a new PostgreSQL index with the provided database connection.
// Call Connect() to initialize the schema and indexes.
func New(db *sqlx.DB, opts ...Option) *Index {
	o := newOptions(opts...)
	return &Index{
		db:     db,
		opts:   o,
		logger: o.logger,
	}
}

// NewFromDB creates a new PostgreSQL index from a standard sql.DB connection.
// This wraps the sql.DB with sqlx for enhanced functionality.
func NewFromDB(db *sql.DB, opts ...Option) *Index {
	return New(sqlx.NewDb(db, "postgres"), opts...)
}

// Connect initializes the schema and indexes.
func (ix *Index) Connect(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&ix.connected, 0, 1) {
		return index.ErrAlreadyConnected
	}

	if ix.db == nil {
		atomic.StoreInt32(&ix.connected, 0)
		return fmt.Errorf("postgres: db is required")
	}

	ctx, cancel := context.WithTimeout(ctx, ix.opts.timeout)
	defer cancel()

	if err := ix.db.PingContext(ctx); err != nil {
		atomic.StoreInt32(&ix.connected, 0)
		return fmt.Errorf("postgres ping: %w", err)
	}

	if err := ix.ensureSchema(ctx); err != nil {
		atomic.StoreInt32(&ix.connected, 0)
		return fmt.Errorf("ensure schema: %w", err)
	}

	ix.logger.Info("connected to PostgreSQL",
		"metadata_table", ix.opts.metadataTable,
		"storage_table", ix.opts.storageTable,
		"bucket_table", ix.opts.bucketTable)
	return nil
}

// Close marks the index as disconnected.
// The caller is responsible for closing the database connection.
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

// ensureSchema creates the required tables and indexes.
func (ix *Index) ensureSchema(ctx context.Context) error {
	createMetadata := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			bucket VARCHAR(255) NOT NULL,
			owner VARCHAR(255) NOT NULL,
			message_id VARCHAR(255) NOT NULL,
			sender VARCHAR(512) NOT NULL DEFAULT '',
			subject TEXT NOT NULL DEFAULT '',
			has_attachment BOOLEAN NOT NULL DEFAULT FALSE,
			recipients TEXT[] NOT NULL DEFAULT '{}',
			origin_mailboxes TEXT[] NOT NULL DEFAULT '{}',
			delivery_date TIMESTAMPTZ NOT NULL,
			deletion_date TIMESTAMPTZ NOT NULL,
			payload JSONB NOT NULL DEFAULT '{}',
			PRIMARY KEY (bucket, owner, message_id)
		)
	`, ix.opts.metadataTable)

	if _, err := ix.db.ExecContext(ctx, createMetadata); err != nil {
		return fmt.Errorf("create metadata table: %w", err)
	}

	createStorage := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			owner VARCHAR(255) NOT NULL,
			message_id VARCHAR(255) NOT NULL,
			bucket VARCHAR(255) NOT NULL,
			blob_id TEXT NOT NULL,
			PRIMARY KEY (owner, message_id)
		)
	`, ix.opts.storageTable)

	if _, err := ix.db.ExecContext(ctx, createStorage); err != nil {
		return fmt.Errorf("create storage table: %w", err)
	}

	createBuckets := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			bucket VARCHAR(255) NOT NULL,
			owner VARCHAR(255) NOT NULL,
			PRIMARY KEY (bucket, owner)
		)
	`, ix.opts.bucketTable)

	if _, err := ix.db.ExecContext(ctx, createBuckets); err != nil {
		return fmt.Errorf("create bucket table: %w", err)
	}

	indexes := []string{
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_owner ON %s(owner, bucket)`, ix.opts.bucketTable, ix.opts.bucketTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_deletion ON %s(deletion_date)`, ix.opts.metadataTable, ix.opts.metadataTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_recipients ON %s USING GIN(recipients)`, ix.opts.metadataTable, ix.opts.metadataTable),
	}
	for _, idx := range indexes {
		if _, err := ix.db.ExecContext(ctx, idx); err != nil {
			ix.logger.Warn("failed to create index", "error", err, "sql", idx)
		}
	}

	return nil
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

	ctx, cancel := context.WithTimeout(ctx, ix.opts.timeout)
	defer cancel()

	query := fmt.Sprintf(`
		INSERT INTO %s (owner, message_id, bucket, blob_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (owner, message_id)
		DO UPDATE SET bucket = EXCLUDED.bucket, blob_id = EXCLUDED.blob_id
	`, ix.opts.storageTable)

	if _, err := ix.db.ExecContext(ctx, query, owner, messageID, string(info.Bucket), info.BlobID); err != nil {
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

	query := fmt.Sprintf(`
		SELECT bucket, blob_id FROM %s WHERE owner = $1 AND message_id = $2
	`, ix.opts.storageTable)

	var bucket, blobID string
	err := ix.db.QueryRowContext(ctx, query, owner, messageID).Scan(&bucket, &blobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return index.StorageInformation{}, index.ErrNotFound
		}
		return index.StorageInformation{}, fmt.Errorf("retrieve storage: %w", err)
	}

	return index.StorageInformation{Bucket: index.Bucket(bucket), BlobID: blobID}, nil
}

// Remove deletes the reference. Removing an absent key is not an error.
func (ix *Index) Remove(ctx context.Context, owner, messageID string) error {
	if err := ix.checkConnected(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, ix.opts.timeout)
	defer cancel()

	query := fmt.Sprintf(`DELETE FROM %s WHERE owner = $1 AND message_id = $2`, ix.opts.storageTable)
	if _, err := ix.db.ExecContext(ctx, query, owner, messageID); err != nil {
		return fmt.Errorf("remove storage: %w", err)
	}
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

	ctx, cancel := context.WithTimeout(ctx, ix.opts.timeout)
	defer cancel()

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (bucket, owner, message_id, sender, subject, has_attachment,
		                recipients, origin_mailboxes, delivery_date, deletion_date, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (bucket, owner, message_id)
		DO UPDATE SET sender = EXCLUDED.sender, subject = EXCLUDED.subject,
		              has_attachment = EXCLUDED.has_attachment,
		              recipients = EXCLUDED.recipients,
		              origin_mailboxes = EXCLUDED.origin_mailboxes,
		              delivery_date = EXCLUDED.delivery_date,
		              deletion_date = EXCLUDED.deletion_date,
		              payload = EXCLUDED.payload
	`, ix.opts.metadataTable)

	_, err = ix.db.ExecContext(ctx, query,
		string(bucket), owner, msg.MessageID, msg.Sender, msg.Subject, msg.HasAttachment,
		pq.Array(msg.Recipients), pq.Array(msg.OriginMailboxes),
		msg.DeliveryDate.UTC(), msg.DeletionDate.UTC(), payload,
	)
	if err != nil {
		return fmt.Errorf("store metadata: %w", err)
	}
	return nil
}

// listPage fetches one keyset page of metadata payloads for (bucket, owner).
func (ix *Index) listPage(ctx context.Context, bucket index.Bucket, owner, afterID string) ([]index.DeletedMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, ix.opts.timeout)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT payload FROM %s
		WHERE bucket = $1 AND owner = $2 AND message_id > $3
		ORDER BY message_id ASC
		LIMIT $4
	`, ix.opts.metadataTable)

	rows, err := ix.db.QueryContext(ctx, query, string(bucket), owner, afterID, ix.opts.batchSize)
	if err != nil {
		return nil, fmt.Errorf("list metadata: %w", err)
	}
	defer rows.Close()

	var msgs []index.DeletedMessage
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan metadata: %w", err)
		}
		var msg index.DeletedMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate metadata: %w", err)
	}
	return msgs, nil
}

// ListMessageIDs returns the message ids stored for (bucket, owner).
func (ix *Index) ListMessageIDs(ctx context.Context, bucket index.Bucket, owner string) (index.Iterator[string], error) {
	if err := ix.checkConnected(); err != nil {
		return nil, err
	}

	var cursor string
	return &index.FuncIterator[string]{
		Fetch: func(ctx context.Context) ([]string, error) {
			msgs, err := ix.listPage(ctx, bucket, owner, cursor)
			if err != nil {
				return nil, err
			}
			ids := make([]string, len(msgs))
			for i, m := range msgs {
				ids[i] = m.MessageID
			}
			if len(msgs) > 0 {
				cursor = msgs[len(msgs)-1].MessageID
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
			msgs, err := ix.listPage(ctx, bucket, owner, cursor)
			if err != nil {
				return nil, err
			}
			if len(msgs) > 0 {
				cursor = msgs[len(msgs)-1].MessageID
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

	query := fmt.Sprintf(`
		DELETE FROM %s WHERE bucket = $1 AND owner = $2 AND message_id = $3
	`, ix.opts.metadataTable)

	if _, err := ix.db.ExecContext(ctx, query, string(bucket), owner, messageID); err != nil {
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

	query := fmt.Sprintf(`DELETE FROM %s WHERE bucket = $1 AND owner = $2`, ix.opts.metadataTable)
	if _, err := ix.db.ExecContext(ctx, query, string(bucket), owner); err != nil {
		return fmt.Errorf("delete in bucket: %w", err)
	}
	return nil
}

// =============================================================================
// BucketIndex
// =============================================================================

// AddUser registers owner in bucket. The (bucket, owner) primary key makes
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

	query := fmt.Sprintf(`
		INSERT INTO %s (bucket, owner) VALUES ($1, $2)
		ON CONFLICT (bucket, owner) DO NOTHING
	`, ix.opts.bucketTable)

	if _, err := ix.db.ExecContext(ctx, query, string(bucket), owner); err != nil {
		return fmt.Errorf("add user: %w", err)
	}
	return nil
}

func (ix *Index) selectStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, ix.opts.timeout)
	defer cancel()

	var out []string
	if err := ix.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("list membership: %w", err)
	}
	return out, nil
}

// Users returns the owners registered in bucket.
func (ix *Index) Users(ctx context.Context, bucket index.Bucket) (index.Iterator[string], error) {
	if err := ix.checkConnected(); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT owner FROM %s WHERE bucket = $1 ORDER BY owner`, ix.opts.bucketTable)
	owners, err := ix.selectStrings(ctx, query, string(bucket))
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

	query := fmt.Sprintf(`SELECT DISTINCT bucket FROM %s ORDER BY bucket`, ix.opts.bucketTable)
	names, err := ix.selectStrings(ctx, query)
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

	query := fmt.Sprintf(`SELECT bucket FROM %s WHERE owner = $1 ORDER BY bucket`, ix.opts.bucketTable)
	names, err := ix.selectStrings(ctx, query, owner)
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

	query := fmt.Sprintf(`DELETE FROM %s WHERE bucket = $1`, ix.opts.bucketTable)
	if _, err := ix.db.ExecContext(ctx, query, string(bucket)); err != nil {
		return fmt.Errorf("delete bucket: %w", err)
	}
	return nil
}
