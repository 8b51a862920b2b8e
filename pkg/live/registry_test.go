package live

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry_AddRemove(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	a := newSession("user-a", 8)
	b := newSession("user-b", 8)

	assert.True(t, r.Add("order.1", a), "first subscriber")
	assert.False(t, r.Add("order.1", b), "second subscriber")
	assert.Equal(t, 2, r.Count("order.1"))

	assert.False(t, r.Remove("order.1", a))
	assert.True(t, r.Remove("order.1", b), "topic empty after last leaves")
	assert.Equal(t, 0, r.Count("order.1"))

	assert.False(t, r.Remove("order.unknown", a))
}

func TestRegistry_BroadcastReportsLaggards(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	healthy := newSession("user-a", 8)
	full := newSession("user-b", 1)
	full.enqueue(ServerMessage{Type: ServerHeartbeatAck}) // fill the buffer

	r.Add("partners.eu", healthy)
	r.Add("partners.eu", full)

	lagging := r.Broadcast("partners.eu", ServerMessage{Type: ServerTopicEvent})
	assert.Len(t, lagging, 1)
	assert.Same(t, full, lagging[0])

	select {
	case msg := <-healthy.send:
		assert.Equal(t, ServerTopicEvent, msg.Type)
	default:
		t.Fatal("healthy session did not receive the broadcast")
	}
}

func TestRegistry_ConcurrentTopics(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	var wg sync.WaitGroup
	for i := range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			topic := fmt.Sprintf("order.%d", i)
			s := newSession("user", 8)
			r.Add(topic, s)
			r.Broadcast(topic, ServerMessage{Type: ServerTopicEvent})
			r.Remove(topic, s)
		}()
	}
	wg.Wait()

	for i := range 32 {
		assert.Equal(t, 0, r.Count(fmt.Sprintf("order.%d", i)))
	}
}
