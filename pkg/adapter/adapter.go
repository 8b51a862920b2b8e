package adapter

import (
	"context"

	"github.com/dmitrymomot/notifyhub/pkg/notification"
)

// Message is a fully rendered notification handed to a channel adapter.
// IdempotencyKey is stable across redeliveries of the same notification
// and channel, so vendors that support dedup keys drop the duplicates.
type Message struct {
	NotificationID string
	RecipientID    string
	Category       notification.Category
	Title          string
	Subject        string
	Body           string
	IdempotencyKey string
}

// Receipt is what a vendor acknowledged. ProviderRef is the vendor-side
// message identifier, kept on the delivery status for support lookups.
type Receipt struct {
	ProviderRef string
}

// Adapter delivers a rendered message over one channel. Implementations
// must be safe for concurrent use: the dispatch workers share one adapter
// per channel.
//
// Errors decide retry behavior: anything wrapped with Terminal is not
// retried, everything else is.
type Adapter interface {
	Channel() notification.Channel
	Deliver(ctx context.Context, msg Message) (Receipt, error)
}

// Contact holds the per-channel delivery endpoints for a user. Empty
// fields mean the user never registered that endpoint.
type Contact struct {
	Email     string
	Phone     string
	PushToken string
}

// Directory resolves users to their contact endpoints. Adapters look up
// the endpoint they need at delivery time so a user updating their email
// mid-retry gets the message at the new address.
type Directory interface {
	Lookup(ctx context.Context, userID string) (Contact, error)
}
