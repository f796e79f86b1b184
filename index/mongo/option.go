package mongo

import (
	"log/slog"
	"time"
)

// Default configuration values.
const (
	DefaultDatabase           = "mailvault"
	DefaultMetadataCollection = "vault_metadata"
	DefaultStorageCollection  = "vault_storage"
	DefaultBucketCollection   = "vault_buckets"
	DefaultTimeout            = 10 * time.Second
	DefaultBatchSize          = 100
)

// options holds MongoDB index configuration.
type options struct {
	database    string
	metadataCol string
	storageCol  string
	bucketCol   string
	timeout     time.Duration
	batchSize   int32
	logger      *slog.Logger
}

func newOptions(opts ...Option) *options {
	o := &options{
		database:    DefaultDatabase,
		metadataCol: DefaultMetadataCollection,
		storageCol:  DefaultStorageCollection,
		bucketCol:   DefaultBucketCollection,
		timeout:     DefaultTimeout,
		batchSize:   DefaultBatchSize,
	}
	o.logger = slog.Default()
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Option configures a MongoDB index.
type Option func(*options)

// WithDatabase sets the database name.
func WithDatabase(name string) Option {
	return func(o *options) {
		if name != "" {
			o.database = name
		}
	}
}

// WithMetadataCollection sets the metadata collection name.
func WithMetadataCollection(name string) Option {
	return func(o *options) {
		if name != "" {
			o.metadataCol = name
		}
	}
}

// WithStorageCollection sets the storage reference collection name.
func WithStorageCollection(name string) Option {
	return func(o *options) {
		if name != "" {
			o.storageCol = name
		}
	}
}

// WithBucketCollection sets the bucket membership collection name.
func WithBucketCollection(name string) Option {
	return func(o *options) {
		if name != "" {
			o.bucketCol = name
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
			o.batchSize = int32(n)
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
