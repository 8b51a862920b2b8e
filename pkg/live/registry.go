package live

import (
	"hash/fnv"
	"sync"
)

const registryShards = 16

// Registry tracks which sessions are subscribed to which topics. Topics
// are partitioned across shards so a busy order topic does not contend
// with every user topic on a single lock.
type Registry struct {
	shards [registryShards]*registryShard
}

type registryShard struct {
	mu     sync.RWMutex
	topics map[string]map[*Session]struct{}
}

func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i] = &registryShard{topics: make(map[string]map[*Session]struct{})}
	}
	return r
}

func (r *Registry) shard(topic string) *registryShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(topic))
	return r.shards[h.Sum32()%registryShards]
}

// Add subscribes a session to a topic and reports whether it was the
// topic's first subscriber.
func (r *Registry) Add(topic string, session *Session) bool {
	shard := r.shard(topic)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	first := len(shard.topics[topic]) == 0
	if shard.topics[topic] == nil {
		shard.topics[topic] = make(map[*Session]struct{})
	}
	shard.topics[topic][session] = struct{}{}
	return first
}

// Remove unsubscribes a session from a topic and reports whether the
// topic is now empty.
func (r *Registry) Remove(topic string, session *Session) bool {
	shard := r.shard(topic)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	sessions, ok := shard.topics[topic]
	if !ok {
		return false
	}
	delete(sessions, session)
	if len(sessions) == 0 {
		delete(shard.topics, topic)
		return true
	}
	return false
}

// Sessions returns the current subscribers of a topic.
func (r *Registry) Sessions(topic string) []*Session {
	shard := r.shard(topic)
	shard.mu.RLock()
	defer shard.mu.RUnlock()

	sessions := make([]*Session, 0, len(shard.topics[topic]))
	for session := range shard.topics[topic] {
		sessions = append(sessions, session)
	}
	return sessions
}

// Count returns the subscriber count for a topic.
func (r *Registry) Count(topic string) int {
	shard := r.shard(topic)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	return len(shard.topics[topic])
}

// Broadcast enqueues the message to every subscriber of the topic and
// returns the sessions whose buffers were full. The caller decides what
// to do with the laggards; the broadcast itself never blocks.
func (r *Registry) Broadcast(topic string, msg ServerMessage) []*Session {
	var lagging []*Session
	for _, session := range r.Sessions(topic) {
		if !session.enqueue(msg) {
			lagging = append(lagging, session)
		}
	}
	return lagging
}
