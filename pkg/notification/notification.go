package notification

import (
	"time"
)

// Category is the semantic type of a notification. It keys both user
// preferences and templates, so the set is closed: an unknown category is
// rejected at ingestion.
type Category string

const (
	CategoryOrderCreated       Category = "order_created"
	CategoryOrderStatusChanged Category = "order_status_changed"
	CategoryPaymentPending     Category = "payment_pending"
	CategoryPaymentSucceeded   Category = "payment_succeeded"
	CategoryPaymentFailed      Category = "payment_failed"
	CategoryPartnerUpdate      Category = "partner_update"
	CategorySecurityAlert      Category = "security_alert"
	CategorySystem             Category = "system"
)

// Categories returns every known category. Template catalogs are validated
// against this list at boot.
func Categories() []Category {
	return []Category{
		CategoryOrderCreated,
		CategoryOrderStatusChanged,
		CategoryPaymentPending,
		CategoryPaymentSucceeded,
		CategoryPaymentFailed,
		CategoryPartnerUpdate,
		CategorySecurityAlert,
		CategorySystem,
	}
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, known := range Categories() {
		if c == known {
			return true
		}
	}
	return false
}

// Suppressible reports whether user preferences may silence this category.
// Security alerts and system notices always route to at least one channel.
func (c Category) Suppressible() bool {
	return c != CategorySecurityAlert && c != CategorySystem
}

// Channel is one delivery mechanism.
type Channel string

const (
	ChannelInApp Channel = "inapp"
	ChannelMail  Channel = "mail"
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
	ChannelLive  Channel = "live"
)

// Channels returns every delivery channel.
func Channels() []Channel {
	return []Channel{ChannelInApp, ChannelMail, ChannelSMS, ChannelPush, ChannelLive}
}

// Valid reports whether ch is a known channel.
func (ch Channel) Valid() bool {
	switch ch {
	case ChannelInApp, ChannelMail, ChannelSMS, ChannelPush, ChannelLive:
		return true
	}
	return false
}

// Outcome is the per-channel delivery state. It only ever moves forward:
// pending is the sole non-terminal state.
type Outcome string

const (
	OutcomePending           Outcome = "pending"
	OutcomeSent              Outcome = "sent"
	OutcomeFailed            Outcome = "failed"
	OutcomeSkippedPreference Outcome = "skipped_preference"
)

// Terminal reports whether the outcome admits no further transition.
func (o Outcome) Terminal() bool {
	return o == OutcomeSent || o == OutcomeFailed || o == OutcomeSkippedPreference
}

// CanTransition reports whether moving from o to next is allowed.
// Identical outcomes are allowed so redeliveries stay idempotent.
func (o Outcome) CanTransition(next Outcome) bool {
	if o == next {
		return true
	}
	return o == OutcomePending
}

// DeliveryStatus records the state of one (notification, channel) pair.
type DeliveryStatus struct {
	Outcome     Outcome    `json:"outcome" bson:"outcome"`
	AttemptedAt *time.Time `json:"attempted_at,omitempty" bson:"attempted_at,omitempty"`
	ProviderRef string     `json:"provider_ref,omitempty" bson:"provider_ref,omitempty"`
	RetryCount  int        `json:"retry_count" bson:"retry_count"`
}

// CorrelationRefs ties a notification back to the producing business object.
type CorrelationRefs struct {
	OrderID   string `json:"order_id,omitempty"`
	PaymentID string `json:"payment_id,omitempty"`
}

// Notification is the persistent record created by the ingestion hook.
// Title and Body are the rendered in-app fallback; channel-specific content
// is rendered again at dispatch time.
type Notification struct {
	ID          string                     `json:"id"`
	RecipientID string                     `json:"recipient_id"`
	Category    Category                   `json:"category"`
	Title       string                     `json:"title"`
	Body        string                     `json:"body"`
	Refs        CorrelationRefs            `json:"refs"`
	Delivery    map[Channel]DeliveryStatus `json:"delivery"`
	// IdempotencyKey dedupes concurrent producer retries; blank when the
	// producer did not supply one. Not exposed to clients.
	IdempotencyKey string     `json:"-"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Read reports whether the recipient has seen the notification.
func (n *Notification) Read() bool {
	return n.ReadAt != nil
}

// Request is the ephemeral input to the ingestion hook. IdempotencyKey lets
// producers retry the call without creating duplicate rows.
type Request struct {
	RecipientID    string          `json:"recipient_id"`
	Category       Category        `json:"category"`
	Context        map[string]any  `json:"context,omitempty"`
	Refs           CorrelationRefs `json:"refs"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
}
