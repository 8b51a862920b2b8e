package bus

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

const defaultChannelPrefix = "notifyhub:"

// RedisBus is a Bus backed by Redis pub/sub, used when dispatch workers
// and live connection hosts run as separate processes. Redis pub/sub is
// fire-and-forget, which matches the delivery contract: no replay, at
// most once per publish.
type RedisBus struct {
	client     redis.UniversalClient
	prefix     string
	log        *slog.Logger
	bufferSize int

	mu     sync.Mutex
	subs   map[*redisSubscription]struct{}
	closed bool
}

// RedisBusOption configures a RedisBus.
type RedisBusOption func(*RedisBus)

// WithChannelPrefix namespaces the Redis channels, allowing several
// environments to share one Redis.
func WithChannelPrefix(prefix string) RedisBusOption {
	return func(b *RedisBus) {
		b.prefix = prefix
	}
}

// WithRedisBusLogger sets the logger for decode and receive failures.
func WithRedisBusLogger(log *slog.Logger) RedisBusOption {
	return func(b *RedisBus) {
		b.log = log
	}
}

// WithRedisBufferSize sets the per-subscriber channel buffer.
func WithRedisBufferSize(size int) RedisBusOption {
	return func(b *RedisBus) {
		b.bufferSize = max(size, 1)
	}
}

func NewRedisBus(client redis.UniversalClient, opts ...RedisBusOption) *RedisBus {
	b := &RedisBus{
		client:     client,
		prefix:     defaultChannelPrefix,
		log:        slog.Default(),
		bufferSize: defaultBufferSize,
		subs:       make(map[*redisSubscription]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *RedisBus) Publish(ctx context.Context, event Event) error {
	if event.Topic == "" {
		return ErrEmptyTopic
	}

	data, err := json.Marshal(event)
	if err != nil {
		return errors.Join(ErrPublishFailed, err)
	}
	if err := b.client.Publish(ctx, b.prefix+event.Topic, data).Err(); err != nil {
		return errors.Join(ErrPublishFailed, err)
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	if topic == "" {
		return nil, ErrEmptyTopic
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBusClosed
	}

	pubsub := b.client.Subscribe(ctx, b.prefix+topic)
	sub := &redisSubscription{
		pubsub: pubsub,
		events: make(chan Event, b.bufferSize),
	}
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	go b.pump(ctx, sub)
	return sub, nil
}

// pump copies decoded events from the Redis subscription into the
// consumer channel until the subscription closes or the context ends.
func (b *RedisBus) pump(ctx context.Context, sub *redisSubscription) {
	defer func() {
		b.mu.Lock()
		delete(b.subs, sub)
		b.mu.Unlock()
		_ = sub.Close()
		close(sub.events)
	}()

	incoming := sub.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-incoming:
			if !ok {
				return
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.log.WarnContext(ctx, "dropping undecodable bus event",
					slog.String("channel", msg.Channel),
					slog.Any("error", err))
				continue
			}
			select {
			case sub.events <- event:
			default:
				// Slow consumer: drop rather than stall every other
				// subscriber sharing this process.
			}
		}
	}
}

func (b *RedisBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := make([]*redisSubscription, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	clear(b.subs)
	b.mu.Unlock()

	var errs []error
	for _, sub := range subs {
		if err := sub.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type redisSubscription struct {
	pubsub *redis.PubSub
	events chan Event

	closeOnce sync.Once
	closeErr  error
}

func (s *redisSubscription) Events() <-chan Event {
	return s.events
}

// Close shuts the Redis subscription down. The events channel is closed
// by the pump goroutine once it drains, so consumers ranging over Events
// terminate cleanly.
func (s *redisSubscription) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.pubsub.Close()
	})
	return s.closeErr
}
