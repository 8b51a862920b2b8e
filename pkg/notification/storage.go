package notification

import (
	"context"
	"time"
)

// Storage persists notifications and their per-channel delivery state.
//
// Implementations must enforce two invariants regardless of caller behavior:
// delivery outcomes only move forward out of pending, and read_at is set at
// most once.
type Storage interface {
	// Create stores a new notification. When the request carried an
	// idempotency key and a row with the same (recipient, key) pair exists,
	// Create returns ErrAlreadyExists and stores nothing.
	Create(ctx context.Context, n Notification) error

	// FindByIdempotencyKey resolves the row a concurrent duplicate Create
	// collided with.
	FindByIdempotencyKey(ctx context.Context, recipientID, key string) (*Notification, error)

	// Get retrieves a single notification owned by the recipient.
	Get(ctx context.Context, recipientID, id string) (*Notification, error)

	// List returns the recipient's feed ordered by created_at descending.
	List(ctx context.Context, recipientID string, opts ListOptions) ([]Notification, error)

	// MarkRead sets read_at once; already-read notifications are untouched.
	MarkRead(ctx context.Context, recipientID string, ids ...string) error

	// MarkAllRead marks every unread notification of the recipient.
	MarkAllRead(ctx context.Context, recipientID string) error

	// CountUnread returns the recipient's unread count.
	CountUnread(ctx context.Context, recipientID string) (int, error)

	// SetDeliveryOutcome updates one channel's delivery status. The first
	// write for a channel initializes it; afterwards only pending entries
	// may change, and the retry count never decreases. A write that would
	// leave a terminal outcome returns ErrInvalidTransition, except for
	// an identical outcome which is a no-op.
	SetDeliveryOutcome(ctx context.Context, id string, ch Channel, st DeliveryStatus) error
}

// ListOptions filters and paginates feed queries.
type ListOptions struct {
	Limit      int // 0 = no limit
	Offset     int
	OnlyUnread bool
	Category   Category   // empty = all categories
	Since      *time.Time // only notifications created after this time
}
