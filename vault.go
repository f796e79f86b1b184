package vault

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/rbaliyan/event/v3"
	"github.com/rbaliyan/event/v3/transport/noop"
	eventredis "github.com/rbaliyan/event/v3/transport/redis"
	"go.opentelemetry.io/otel/attribute"

	"github.com/rbaliyan/mailvault/blob"
	"github.com/rbaliyan/mailvault/index"
	"github.com/rbaliyan/mailvault/query"
	"github.com/rbaliyan/mailvault/retry"
)

// DeletedMessage is re-exported so callers can work with the vault package
// without importing index directly.
type DeletedMessage = index.DeletedMessage

// ServiceHealth provides health and state information about the service.
type ServiceHealth interface {
	// IsConnected returns true if the service is connected and ready.
	IsConnected() bool
}

// Service manages the deleted message vault.
//
// Composed of:
//   - ServiceHealth: Health and state queries (IsConnected)
type Service interface {
	ServiceHealth

	// Connect establishes connections to the index and event backends.
	Connect(ctx context.Context) error
	// Close closes all connections.
	Close(ctx context.Context) error

	// Append stores a deleted message: its raw content in the blob store
	// and its metadata in the index, filed under the retention bucket
	// derived from the message's deletion date. Appending the same
	// (owner, message id) again overwrites the previous copy.
	Append(ctx context.Context, msg DeletedMessage, content io.Reader) error

	// Delete removes a message from the vault ahead of its retention
	// expiry. The content blob is left in place and reclaimed by the next
	// garbage collection run. Deleting an absent message is not an error.
	Delete(ctx context.Context, owner, messageID string) error

	// LoadContent returns the raw content of a vaulted message.
	// Returns ErrNotFound if the message is not in the vault.
	LoadContent(ctx context.Context, owner, messageID string) (io.ReadCloser, error)

	// Search returns an iterator over the owner's vaulted messages
	// matching the query. Matching is evaluated per message; ordering
	// across buckets is not defined.
	Search(ctx context.Context, owner string, q query.Query) (MessageIterator, error)

	// UsersWithVault returns the owners that currently have at least one
	// retention bucket, sorted and deduplicated.
	UsersWithVault(ctx context.Context) ([]string, error)

	// DeleteExpired drops every retention bucket whose window has fully
	// passed out of the retention period. Call this periodically using
	// your application's scheduler.
	DeleteExpired(ctx context.Context) (*DeleteExpiredResult, error)

	// Events returns per-service event instances for subscribing and
	// publishing.
	Events() *ServiceEvents
}

// Connection states for the service.
const (
	stateDisconnected int32 = 0
	stateConnecting   int32 = 1
	stateConnected    int32 = 2
)

// service is the default implementation of Service.
type service struct {
	index    index.Index
	blobs    blob.Store
	logger   *slog.Logger
	opts     *options
	state    int32 // stateDisconnected, stateConnecting, or stateConnected
	otel     *otelInstrumentation
	gcRetry  retry.Executor
	eventBus *event.Bus
	events   *ServiceEvents
}

// NewService creates a new vault service.
// Call Connect() to establish connections to backends.
func NewService(opts ...Option) (Service, error) {
	o := newOptions(opts...)

	if o.index == nil {
		return nil, ErrIndexRequired
	}
	if o.blobs == nil {
		return nil, ErrBlobStoreRequired
	}

	otelInstr, err := newOtelInstrumentation(o)
	if err != nil {
		return nil, fmt.Errorf("init otel: %w", err)
	}

	gcRetry, err := retry.NewExecutor(o.gcRetries)
	if err != nil {
		return nil, fmt.Errorf("init gc retry: %w", err)
	}

	return &service{
		index:   o.index,
		blobs:   o.blobs,
		logger:  o.logger,
		opts:    o,
		otel:    otelInstr,
		gcRetry: gcRetry,
	}, nil
}

// Events returns per-service event instances for subscribing and publishing.
func (s *service) Events() *ServiceEvents {
	return s.events
}

// IsConnected returns true if the service is connected and ready.
func (s *service) IsConnected() bool {
	return atomic.LoadInt32(&s.state) == stateConnected
}

func (s *service) checkConnected() error {
	if atomic.LoadInt32(&s.state) != stateConnected {
		return ErrNotConnected
	}
	return nil
}

// Connect establishes connections to the index and event backends.
func (s *service) Connect(ctx context.Context) error {
	// Three-state transition prevents operations from seeing partial
	// initialization: stateDisconnected -> stateConnecting -> stateConnected.
	if !atomic.CompareAndSwapInt32(&s.state, stateDisconnected, stateConnecting) {
		return ErrAlreadyConnected
	}

	success := false
	defer func() {
		if success {
			atomic.StoreInt32(&s.state, stateConnected)
		} else {
			atomic.StoreInt32(&s.state, stateDisconnected)
		}
	}()

	if err := s.index.Connect(ctx); err != nil {
		return fmt.Errorf("connect index: %w", err)
	}

	if err := s.initEventBus(ctx); err != nil {
		s.index.Close(ctx)
		return fmt.Errorf("init event bus: %w", err)
	}

	success = true
	s.logger.Info("vault service connected",
		"retention", s.opts.retention,
		"bucket_prefix", s.opts.bucketPrefix)
	return nil
}

// busCounter generates unique suffixes for event bus names.
var busCounter int64

// initEventBus initializes the event bus for this service.
func (s *service) initEventBus(ctx context.Context) error {
	serviceName := s.opts.serviceName
	if serviceName == "" {
		serviceName = "mailvault"
	}
	// Each bus needs a unique name, so append a counter suffix
	busName := fmt.Sprintf("%s-%d", serviceName, atomic.AddInt64(&busCounter, 1))

	var bus *event.Bus
	var err error

	switch {
	case s.opts.eventTransport != nil:
		s.logger.Info("initializing event bus with custom transport")
		bus, err = event.NewBus(busName, event.WithTransport(s.opts.eventTransport))
	case s.opts.redisClient != nil:
		s.logger.Info("initializing event bus with Redis transport")
		t, transportErr := eventredis.New(s.opts.redisClient)
		if transportErr != nil {
			return fmt.Errorf("create redis transport: %w", transportErr)
		}
		bus, err = event.NewBus(busName, event.WithTransport(t))
	default:
		s.logger.Debug("initializing event bus with noop transport")
		bus, err = event.NewBus(busName, event.WithTransport(noop.New()))
	}

	if err != nil {
		return fmt.Errorf("create event bus: %w", err)
	}
	s.eventBus = bus

	s.events = newServiceEvents(busName)
	if err := registerServiceEvents(ctx, bus, s.events); err != nil {
		bus.Close(ctx)
		return fmt.Errorf("register service events: %w", err)
	}

	return nil
}

// Close closes connections to the index and event backends.
func (s *service) Close(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.state, stateConnected, stateDisconnected) {
		return nil
	}

	var errs []error

	// Close event bus only if using a real transport. The noop bus holds
	// no resources.
	if s.eventBus != nil && (s.opts.eventTransport != nil || s.opts.redisClient != nil) {
		if err := s.eventBus.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close event bus: %w", err))
		}
	}

	if err := s.index.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close index: %w", err))
	}

	return errors.Join(errs...)
}

// Append stores a deleted message's content and metadata.
//
// Writes land in blob -> metadata -> membership -> reference order, so a
// crash mid-append never leaves a retrievable reference to missing data: the
// storage reference is written last, and readers resolve through it.
func (s *service) Append(ctx context.Context, msg DeletedMessage, content io.Reader) (err error) {
	if cerr := s.checkConnected(); cerr != nil {
		return cerr
	}
	if verr := msg.Validate(); verr != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, verr)
	}
	if content == nil {
		return fmt.Errorf("%w: nil content", ErrInvalidMessage)
	}

	start := time.Now()
	ctx, endSpan := s.otel.startSpan(ctx, "vault.Append",
		attribute.String("owner", msg.Owner))
	defer func() {
		endSpan(err)
		s.otel.recordAppend(ctx, time.Since(start), err)
	}()

	bucket := index.BucketFor(s.opts.bucketPrefix, msg.DeletionDate)

	blobID, err := s.blobs.Put(ctx, content)
	if err != nil {
		return fmt.Errorf("store content: %w", err)
	}

	if err = s.index.Store(ctx, bucket, msg.Owner, msg); err != nil {
		return fmt.Errorf("store metadata: %w", err)
	}

	if err = s.index.AddUser(ctx, bucket, msg.Owner); err != nil {
		return fmt.Errorf("register bucket membership: %w", err)
	}

	info := index.StorageInformation{Bucket: bucket, BlobID: string(blobID)}
	if err = s.index.Reference(ctx, msg.Owner, msg.MessageID, info); err != nil {
		return fmt.Errorf("reference content: %w", err)
	}

	if perr := s.events.MessageAppended.Publish(ctx, MessageAppendedEvent{
		Owner:      msg.Owner,
		MessageID:  msg.MessageID,
		Bucket:     bucket,
		AppendedAt: s.opts.clock(),
	}); perr != nil {
		if s.opts.eventErrorsFatal {
			return &EventPublishError{Event: "MessageAppended", MessageID: msg.MessageID, Err: perr}
		}
		s.opts.safeEventPublishFailure("MessageAppended", perr)
	}

	return nil
}

// Delete removes a message's metadata and storage reference.
//
// The content blob is deliberately left behind: a concurrent Append may have
// just overwritten the reference with a new blob, and distinguishing the two
// safely would require locking. Orphaned blobs are reclaimed when their
// bucket expires.
func (s *service) Delete(ctx context.Context, owner, messageID string) (err error) {
	if cerr := s.checkConnected(); cerr != nil {
		return cerr
	}
	if owner == "" || messageID == "" {
		return ErrInvalidID
	}

	start := time.Now()
	ctx, endSpan := s.otel.startSpan(ctx, "vault.Delete",
		attribute.String("owner", owner))
	defer func() {
		endSpan(err)
		s.otel.recordDelete(ctx, time.Since(start), err)
	}()

	info, err := s.index.Retrieve(ctx, owner, messageID)
	if err != nil {
		if index.IsNotFound(err) {
			// Already deleted or never appended.
			return nil
		}
		return fmt.Errorf("retrieve reference: %w", err)
	}

	if err = s.index.DeleteMessage(ctx, info.Bucket, owner, messageID); err != nil {
		return fmt.Errorf("delete metadata: %w", err)
	}

	if err = s.index.Remove(ctx, owner, messageID); err != nil {
		return fmt.Errorf("remove reference: %w", err)
	}

	if perr := s.events.MessageDeleted.Publish(ctx, MessageDeletedEvent{
		Owner:     owner,
		MessageID: messageID,
		DeletedAt: s.opts.clock(),
	}); perr != nil {
		if s.opts.eventErrorsFatal {
			return &EventPublishError{Event: "MessageDeleted", MessageID: messageID, Err: perr}
		}
		s.opts.safeEventPublishFailure("MessageDeleted", perr)
	}

	return nil
}

// LoadContent returns the raw content of a vaulted message.
func (s *service) LoadContent(ctx context.Context, owner, messageID string) (rc io.ReadCloser, err error) {
	if cerr := s.checkConnected(); cerr != nil {
		return nil, cerr
	}
	if owner == "" || messageID == "" {
		return nil, ErrInvalidID
	}

	start := time.Now()
	ctx, endSpan := s.otel.startSpan(ctx, "vault.LoadContent",
		attribute.String("owner", owner))
	defer func() {
		endSpan(err)
		s.otel.recordLoad(ctx, time.Since(start), err)
	}()

	info, err := s.index.Retrieve(ctx, owner, messageID)
	if err != nil {
		if index.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("retrieve reference: %w", err)
	}

	rc, err = s.blobs.Get(ctx, blob.ID(info.BlobID))
	if err != nil {
		if blob.IsNotFound(err) {
			return nil, ErrContentNotFound
		}
		return nil, fmt.Errorf("load content: %w", err)
	}
	return rc, nil
}

// Search returns an iterator over the owner's vaulted messages matching q.
// The query is validated and compiled before any index read; iteration
// streams bucket by bucket using the owner's bucket membership, so only
// buckets the owner actually has data in are scanned.
func (s *service) Search(ctx context.Context, owner string, q query.Query) (it MessageIterator, err error) {
	if cerr := s.checkConnected(); cerr != nil {
		return nil, cerr
	}
	if owner == "" {
		return nil, ErrInvalidID
	}

	start := time.Now()
	ctx, endSpan := s.otel.startSpan(ctx, "vault.Search",
		attribute.String("owner", owner))

	pred, err := query.Translate(q)
	if err != nil {
		endSpan(err)
		s.otel.recordSearch(ctx, time.Since(start), 0, err)
		return nil, fmt.Errorf("vault: %w", err)
	}

	bucketIt, err := s.index.BucketsOf(ctx, owner)
	if err != nil {
		endSpan(err)
		s.otel.recordSearch(ctx, time.Since(start), 0, err)
		return nil, fmt.Errorf("list buckets: %w", err)
	}
	buckets, err := index.Collect(ctx, bucketIt)

	endSpan(err)
	s.otel.recordSearch(ctx, time.Since(start), len(buckets), err)
	if err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}

	return newSearchIterator(s.index, owner, buckets, pred), nil
}

// UsersWithVault returns every owner with at least one retention bucket.
func (s *service) UsersWithVault(ctx context.Context) ([]string, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	bucketIt, err := s.index.Buckets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}

	seen := make(map[string]struct{})
	for {
		ok, err := bucketIt.Next(ctx)
		if err != nil {
			return nil, fmt.Errorf("iterate buckets: %w", err)
		}
		if !ok {
			break
		}
		bucket, err := bucketIt.Value()
		if err != nil {
			return nil, err
		}

		userIt, err := s.index.Users(ctx, bucket)
		if err != nil {
			return nil, fmt.Errorf("list users of %s: %w", bucket, err)
		}
		users, err := index.Collect(ctx, userIt)
		if err != nil {
			return nil, fmt.Errorf("iterate users of %s: %w", bucket, err)
		}
		for _, u := range users {
			seen[u] = struct{}{}
		}
	}

	owners := make([]string, 0, len(seen))
	for u := range seen {
		owners = append(owners, u)
	}
	sort.Strings(owners)
	return owners, nil
}
