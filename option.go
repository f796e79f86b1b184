package vault

import (
	"log/slog"
	"time"

	"github.com/rbaliyan/event/v3/transport"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/rbaliyan/mailvault/blob"
	"github.com/rbaliyan/mailvault/index"
)

// Default configuration values.
const (
	DefaultRetention = 365 * 24 * time.Hour // 1 year
	MinRetention     = 24 * time.Hour       // 1 day minimum

	// Concurrency limits
	DefaultMaxConcurrentGC = 4 // owners processed in parallel during garbage collection

	// Retry budget for the bucket drop at the end of garbage collection
	DefaultGCRetries = 3
)

// options holds vault configuration.
type options struct {
	index  index.Index
	blobs  blob.Store
	logger *slog.Logger

	// Retention configuration
	retention    time.Duration
	bucketPrefix string

	// Clock override for deterministic tests
	clock func() time.Time

	// Concurrency limits
	maxConcurrentGC int
	gcRetries       int

	// OpenTelemetry
	tracingEnabled bool
	metricsEnabled bool
	serviceName    string
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	// Event handling
	eventErrorsFatal      bool
	eventTransport        transport.Transport
	redisClient           redis.UniversalClient
	onEventPublishFailure EventPublishFailureFunc
}

// EventPublishFailureFunc is called when an event fails to publish.
type EventPublishFailureFunc func(eventName string, err error)

// safeEventPublishFailure calls the event failure callback with panic
// recovery, so a misbehaving callback cannot take down the operation.
func (o *options) safeEventPublishFailure(eventName string, err error) {
	if o.onEventPublishFailure == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("panic in event publish failure handler",
				"event", eventName,
				"original_error", err,
				"panic", r,
			)
		}
	}()
	o.onEventPublishFailure(eventName, err)
}

// newOptions creates options with defaults and applies provided options.
func newOptions(opts ...Option) *options {
	o := &options{
		logger:          slog.Default(),
		retention:       DefaultRetention,
		bucketPrefix:    index.DefaultBucketPrefix,
		clock:           func() time.Time { return time.Now().UTC() },
		maxConcurrentGC: DefaultMaxConcurrentGC,
		gcRetries:       DefaultGCRetries,
	}
	for _, opt := range opts {
		opt(o)
	}

	// Ensure event failure callback is always set
	if o.onEventPublishFailure == nil {
		o.onEventPublishFailure = func(eventName string, err error) {
			o.logger.Error("failed to publish event", "event", eventName, "error", err)
		}
	}

	return o
}

// Option configures a vault service.
type Option func(*options)

// --- Core Options ---

// WithIndex sets the metadata index backend (required).
func WithIndex(ix index.Index) Option {
	return func(o *options) {
		if ix != nil {
			o.index = ix
		}
	}
}

// WithBlobStore sets the content blob store (required).
func WithBlobStore(s blob.Store) Option {
	return func(o *options) {
		if s != nil {
			o.blobs = s
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

// --- Retention Options ---

// WithRetention sets how long deleted messages stay in the vault before
// garbage collection drops them. Default is 1 year. Minimum is 1 day.
func WithRetention(d time.Duration) Option {
	return func(o *options) {
		if d >= MinRetention {
			o.retention = d
		}
	}
}

// WithBucketPrefix sets the prefix used for retention bucket names.
// Default is index.DefaultBucketPrefix.
func WithBucketPrefix(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.bucketPrefix = prefix
		}
	}
}

// WithClock sets the time source used for retention cutoff computation.
// Intended for tests; defaults to time.Now in UTC.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// --- Concurrency Options ---

// WithMaxConcurrentGC sets how many owners are processed in parallel while
// garbage-collecting an expired bucket. Default is 4.
func WithMaxConcurrentGC(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxConcurrentGC = n
		}
	}
}

// WithGCRetries sets the attempt budget for dropping an expired bucket after
// its owners have been cleaned. Default is 3.
func WithGCRetries(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.gcRetries = n
		}
	}
}

// --- OTel Options ---

// WithTracing enables or disables OpenTelemetry tracing.
// Default is disabled.
func WithTracing(enabled bool) Option {
	return func(o *options) {
		o.tracingEnabled = enabled
	}
}

// WithMetrics enables or disables OpenTelemetry metrics.
// Default is disabled.
func WithMetrics(enabled bool) Option {
	return func(o *options) {
		o.metricsEnabled = enabled
	}
}

// WithOTel enables both OpenTelemetry tracing and metrics.
func WithOTel(enabled bool) Option {
	return func(o *options) {
		o.tracingEnabled = enabled
		o.metricsEnabled = enabled
	}
}

// WithServiceName sets the service name for OpenTelemetry telemetry and the
// event bus name prefix. Default is "mailvault".
func WithServiceName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.serviceName = name
		}
	}
}

// WithTracerProvider sets a custom OpenTelemetry tracer provider.
// Default uses the global tracer provider from otel.GetTracerProvider().
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tracerProvider = tp
		}
	}
}

// WithMeterProvider sets a custom OpenTelemetry meter provider.
// Default uses the global meter provider from otel.GetMeterProvider().
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		if mp != nil {
			o.meterProvider = mp
		}
	}
}

// --- Event Options ---

// WithEventErrorsFatal configures whether event publishing failures should
// cause the operation to fail. By default, event failures are logged but the
// operation succeeds (the message is still appended/deleted).
func WithEventErrorsFatal(fatal bool) Option {
	return func(o *options) {
		o.eventErrorsFatal = fatal
	}
}

// WithEventTransport sets the event transport for publishing and subscribing.
// If not provided, a noop transport is used (events are silently dropped).
func WithEventTransport(t transport.Transport) Option {
	return func(o *options) {
		if t != nil {
			o.eventTransport = t
		}
	}
}

// WithRedisClient sets a Redis client for the event transport.
// When provided, events are published to Redis Streams for reliable delivery.
//
// Compatible with *redis.Client, *redis.ClusterClient, and redis.UniversalClient.
func WithRedisClient(client redis.UniversalClient) Option {
	return func(o *options) {
		if client != nil {
			o.redisClient = client
		}
	}
}

// WithEventPublishFailureHandler sets a callback for event publishing
// failures. By default failures are logged using the configured logger.
func WithEventPublishFailureHandler(fn EventPublishFailureFunc) Option {
	return func(o *options) {
		if fn != nil {
			o.onEventPublishFailure = fn
		}
	}
}
