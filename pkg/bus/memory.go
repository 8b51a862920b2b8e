package bus

import (
	"context"
	"sync"
)

const defaultBufferSize = 64

type memorySubscription struct {
	ch     chan Event
	closed bool
	mu     sync.RWMutex
	onStop func()
}

func (s *memorySubscription) Events() <-chan Event {
	return s.ch
}

func (s *memorySubscription) Close() error {
	s.mu.Lock()
	alreadyClosed := s.closed
	onStop := s.onStop
	if !s.closed {
		close(s.ch)
		s.closed = true
	}
	s.mu.Unlock()

	if !alreadyClosed && onStop != nil {
		onStop()
	}
	return nil
}

// send is non-blocking: a full buffer means the consumer fell behind and
// the event is dropped for them.
func (s *memorySubscription) send(event Event) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false
	}
	select {
	case s.ch <- event:
		return true
	default:
		return false
	}
}

// MemoryBus is a process-local Bus for single-instance deployments and
// tests. Publishing never blocks: subscribers whose buffers are full miss
// the event.
type MemoryBus struct {
	mu         sync.RWMutex
	topics     map[string]map[*memorySubscription]struct{}
	bufferSize int
	closed     bool
	cleanupWg  sync.WaitGroup
}

// MemoryBusOption configures a MemoryBus.
type MemoryBusOption func(*MemoryBus)

// WithBufferSize sets the per-subscriber channel buffer.
func WithBufferSize(size int) MemoryBusOption {
	return func(b *MemoryBus) {
		b.bufferSize = max(size, 1)
	}
}

func NewMemoryBus(opts ...MemoryBusOption) *MemoryBus {
	b := &MemoryBus{
		topics:     make(map[string]map[*memorySubscription]struct{}),
		bufferSize: defaultBufferSize,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *MemoryBus) Publish(_ context.Context, event Event) error {
	if event.Topic == "" {
		return ErrEmptyTopic
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrBusClosed
	}
	for sub := range b.topics[event.Topic] {
		if !sub.send(event) {
			go b.remove(event.Topic, sub)
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	if topic == "" {
		return nil, ErrEmptyTopic
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBusClosed
	}

	sub := &memorySubscription{ch: make(chan Event, b.bufferSize)}
	sub.onStop = func() { b.detach(topic, sub) }

	if b.topics[topic] == nil {
		b.topics[topic] = make(map[*memorySubscription]struct{})
	}
	b.topics[topic][sub] = struct{}{}

	if ctx.Done() != nil {
		b.cleanupWg.Add(1)
		go func() {
			defer b.cleanupWg.Done()
			<-ctx.Done()
			b.remove(topic, sub)
		}()
	}
	return sub, nil
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true

	subs := make([]*memorySubscription, 0)
	for _, topicSubs := range b.topics {
		for sub := range topicSubs {
			subs = append(subs, sub)
		}
	}
	clear(b.topics)
	b.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Close()
	}
	b.cleanupWg.Wait()
	return nil
}

// remove closes and detaches a subscription.
func (b *MemoryBus) remove(topic string, sub *memorySubscription) {
	b.detach(topic, sub)
	sub.mu.Lock()
	if !sub.closed {
		close(sub.ch)
		sub.closed = true
	}
	sub.mu.Unlock()
}

// detach drops the subscription from the topic map, pruning the topic
// entry when its last subscriber leaves.
func (b *MemoryBus) detach(topic string, sub *memorySubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if topicSubs, ok := b.topics[topic]; ok {
		delete(topicSubs, sub)
		if len(topicSubs) == 0 {
			delete(b.topics, topic)
		}
	}
}
