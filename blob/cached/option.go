package cached

import (
	"log/slog"
	"time"
)

// options holds cache configuration.
type options struct {
	prefix  string
	maxSize int64
	ttl     time.Duration
	logger  *slog.Logger
}

// Option configures the cached store.
type Option func(*options)

// WithKeyPrefix sets the Redis key prefix.
// Default is "mailvault:blob:".
func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		o.prefix = prefix
	}
}

// WithMaxEntrySize sets the largest blob, in bytes, that will be cached.
// Larger blobs are always served from the backend. Default is 1MB.
func WithMaxEntrySize(size int64) Option {
	return func(o *options) {
		if size > 0 {
			o.maxSize = size
		}
	}
}

// WithTTL sets the cache entry lifetime. Default is 24h.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}
