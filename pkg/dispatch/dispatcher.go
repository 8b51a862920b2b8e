package dispatch

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dmitrymomot/notifyhub/pkg/bus"
	"github.com/dmitrymomot/notifyhub/pkg/notification"
)

const defaultMaxAttempts = 3

// ChannelResolver answers which channels a notification goes to. The
// preference resolver implements it.
type ChannelResolver interface {
	Resolve(ctx context.Context, userID string, category notification.Category) ([]notification.Channel, error)
}

// Dispatcher fans a stored notification out into per-channel delivery
// jobs and pushes the live event onto the bus. One notification becomes
// at most one job per enabled channel; the live broadcast is not a job,
// it is published directly because it has no retry semantics.
type Dispatcher struct {
	resolver    ChannelResolver
	storage     notification.Storage
	jobs        JobStore
	eventBus    bus.Bus
	maxAttempts int
	log         *slog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithMaxAttempts sets how many delivery attempts a job gets before it
// is marked failed.
func WithMaxAttempts(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxAttempts = n
		}
	}
}

// WithDispatcherLogger sets the logger.
func WithDispatcherLogger(log *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if log != nil {
			d.log = log
		}
	}
}

func NewDispatcher(resolver ChannelResolver, storage notification.Storage, jobs JobStore, eventBus bus.Bus, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		resolver:    resolver,
		storage:     storage,
		jobs:        jobs,
		eventBus:    eventBus,
		maxAttempts: defaultMaxAttempts,
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch resolves the recipient's channels, records a pending delivery
// status per channel on the notification row, enqueues the jobs, and
// publishes the live event. Redispatching the same notification is a
// no-op: the duplicate jobs are rejected by their identity.
func (d *Dispatcher) Dispatch(ctx context.Context, n notification.Notification, renderCtx map[string]any) error {
	channels, err := d.resolver.Resolve(ctx, n.RecipientID, n.Category)
	if err != nil {
		// The feed must not go dark because the preference store is down.
		d.log.ErrorContext(ctx, "preference resolution failed, delivering in-app only",
			slog.String("notification_id", n.ID),
			slog.String("user_id", n.RecipientID),
			slog.Any("error", err))
		channels = []notification.Channel{notification.ChannelInApp}
	}

	jobs := make([]Job, 0, len(channels))
	for _, channel := range channels {
		if err := d.storage.SetDeliveryOutcome(ctx, n.ID, channel, notification.DeliveryStatus{
			Outcome: notification.OutcomePending,
		}); err != nil && !errors.Is(err, notification.ErrInvalidTransition) {
			return err
		}
		jobs = append(jobs, NewJob(n, channel, renderCtx, d.maxAttempts))
	}

	if len(jobs) > 0 {
		if err := d.jobs.Enqueue(ctx, jobs...); err != nil {
			if errors.Is(err, ErrDuplicateJob) {
				d.log.DebugContext(ctx, "notification already dispatched",
					slog.String("notification_id", n.ID))
				return nil
			}
			return err
		}
	}

	d.publishLive(ctx, n)
	return nil
}

type liveNotification struct {
	ID        string                `json:"id"`
	Category  notification.Category `json:"category"`
	Title     string                `json:"title"`
	Body      string                `json:"body"`
	OrderID   string                `json:"order_id,omitempty"`
	PaymentID string                `json:"payment_id,omitempty"`
	CreatedAt string                `json:"created_at"`
}

// publishLive pushes the notification onto the recipient's user topic
// and, when the notification correlates to an order, onto the order
// topic. Publish failures are logged, never propagated: live delivery is
// best effort and the durable channels are already enqueued.
func (d *Dispatcher) publishLive(ctx context.Context, n notification.Notification) {
	payload := liveNotification{
		ID:        n.ID,
		Category:  n.Category,
		Title:     n.Title,
		Body:      n.Body,
		OrderID:   n.Refs.OrderID,
		PaymentID: n.Refs.PaymentID,
		CreatedAt: n.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}

	topics := []string{bus.UserTopic(n.RecipientID)}
	if n.Refs.OrderID != "" {
		topics = append(topics, bus.OrderTopic(n.Refs.OrderID))
	}

	for _, topic := range topics {
		event, err := bus.NewEvent(topic, "notification", payload)
		if err != nil {
			d.log.ErrorContext(ctx, "failed to build live event",
				slog.String("notification_id", n.ID),
				slog.Any("error", err))
			return
		}
		if err := d.eventBus.Publish(ctx, event); err != nil {
			d.log.WarnContext(ctx, "live publish failed",
				slog.String("notification_id", n.ID),
				slog.String("topic", topic),
				slog.Any("error", err))
		}
	}
}
