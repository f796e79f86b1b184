package vault

import (
	"context"
	"fmt"
	"time"

	"github.com/rbaliyan/event/v3"

	"github.com/rbaliyan/mailvault/index"
)

// Event names for vault events.
const (
	EventNameMessageAppended = "vault.message.appended"
	EventNameMessageDeleted  = "vault.message.deleted"
	EventNameBucketExpired   = "vault.bucket.expired"
)

// MessageAppendedEvent is published when a deleted message is appended to
// the vault.
type MessageAppendedEvent struct {
	Owner      string       `json:"owner"`
	MessageID  string       `json:"message_id"`
	Bucket     index.Bucket `json:"bucket"`
	AppendedAt time.Time    `json:"appended_at"`
}

// MessageDeletedEvent is published when a message is removed from the vault
// ahead of its retention expiry.
type MessageDeletedEvent struct {
	Owner     string    `json:"owner"`
	MessageID string    `json:"message_id"`
	DeletedAt time.Time `json:"deleted_at"`
}

// BucketExpiredEvent is published when garbage collection drops a whole
// retention bucket.
type BucketExpiredEvent struct {
	Bucket          index.Bucket `json:"bucket"`
	OwnerCount      int          `json:"owner_count"`
	MessagesDropped int64        `json:"messages_dropped"`
	ExpiredAt       time.Time    `json:"expired_at"`
}

// ServiceEvents provides access to per-service event instances.
// Each service creates its own events bound to its own event bus, enabling
// independent event routing and parallel testing.
//
// Subscribe to events:
//
//	svc.Events().MessageAppended.Subscribe(ctx, handler)
//	svc.Events().MessageDeleted.Subscribe(ctx, handler)
//	svc.Events().BucketExpired.Subscribe(ctx, handler)
type ServiceEvents struct {
	// MessageAppended is published when a message is appended to the vault.
	MessageAppended event.Event[MessageAppendedEvent]

	// MessageDeleted is published when a message is removed before expiry.
	MessageDeleted event.Event[MessageDeletedEvent]

	// BucketExpired is published when garbage collection drops a bucket.
	BucketExpired event.Event[BucketExpiredEvent]
}

// newServiceEvents creates per-service event instances with a unique name prefix.
func newServiceEvents(namePrefix string) *ServiceEvents {
	return &ServiceEvents{
		MessageAppended: event.New[MessageAppendedEvent](namePrefix + "." + EventNameMessageAppended),
		MessageDeleted:  event.New[MessageDeletedEvent](namePrefix + "." + EventNameMessageDeleted),
		BucketExpired:   event.New[BucketExpiredEvent](namePrefix + "." + EventNameBucketExpired),
	}
}

// registerServiceEvents registers per-service events with the given bus.
func registerServiceEvents(ctx context.Context, bus *event.Bus, events *ServiceEvents) error {
	if err := event.Register(ctx, bus, events.MessageAppended); err != nil {
		return fmt.Errorf("register MessageAppended: %w", err)
	}
	if err := event.Register(ctx, bus, events.MessageDeleted); err != nil {
		return fmt.Errorf("register MessageDeleted: %w", err)
	}
	if err := event.Register(ctx, bus, events.BucketExpired); err != nil {
		return fmt.Errorf("register BucketExpired: %w", err)
	}
	return nil
}
