package bus

import (
	"context"
	"encoding/json"
	"time"
)

// Event is a single broadcast payload published to a topic. Events are
// fire-and-forget: subscribers present at publish time receive the event
// at most once, later subscribers never see it.
type Event struct {
	Topic       string          `json:"topic"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	PublishedAt time.Time       `json:"published_at"`
}

// NewEvent builds an Event with the payload marshaled to JSON.
func NewEvent(topic, eventType string, payload any) (Event, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Event{}, err
		}
		raw = data
	}
	return Event{
		Topic:       topic,
		Type:        eventType,
		Payload:     raw,
		PublishedAt: time.Now(),
	}, nil
}

// Subscription is one subscriber's view of a topic. Events is closed when
// the subscription is closed or the bus shuts down.
type Subscription interface {
	Events() <-chan Event
	Close() error
}

// Bus is the shared pub/sub fabric between the dispatcher and the live
// connection layer. Implementations must tolerate slow consumers without
// blocking publishers, typically by dropping events for that consumer.
type Bus interface {
	// Publish delivers the event to all current subscribers of its topic.
	Publish(ctx context.Context, event Event) error

	// Subscribe registers a consumer on a topic. The subscription is torn
	// down when ctx is cancelled or Close is called.
	Subscribe(ctx context.Context, topic string) (Subscription, error)

	// Close shuts the bus down and closes every open subscription.
	Close() error
}
