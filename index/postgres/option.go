package postgres

import (
	"log/slog"
	"time"
)

// Default configuration values.
const (
	DefaultMetadataTable = "vault_metadata"
	DefaultStorageTable  = "vault_storage"
	DefaultBucketTable   = "vault_buckets"
	DefaultTimeout       = 10 * time.Second
	DefaultBatchSize     = 100
)

// options holds PostgreSQL index configuration.
type options struct {
	metadataTable string
	storageTable  string
	bucketTable   string
	timeout       time.Duration
	batchSize     int
	logger        *slog.Logger
}

func newOptions(opts ...Option) *options {
	o := &options{
		metadataTable: DefaultMetadataTable,
		storageTable:  DefaultStorageTable,
		bucketTable:   DefaultBucketTable,
		timeout:       DefaultTimeout,
		batchSize:     DefaultBatchSize,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Option configures a PostgreSQL index.
type Option func(*options)

// WithMetadataTable sets the metadata table name.
func WithMetadataTable(name string) Option {
	return func(o *options) {
		if name != "" {
			o.metadataTable = name
		}
	}
}

// WithStorageTable sets the storage reference table name.
func WithStorageTable(name string) Option {
	return func(o *options) {
		if name != "" {
			o.storageTable = name
		}
	}
}

// WithBucketTable sets the bucket membership table name.
func WithBucketTable(name string) Option {
	return func(o *options) {
		if name != "" {
			o.bucketTable = name
		}
	}
}

// WithTimeout sets the operation timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithBatchSize sets the page size for listing iterators.
func WithBatchSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
