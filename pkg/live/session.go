package live

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is a session's position in its lifecycle. A connection starts
// Connecting, becomes Authenticated when its token verifies, Subscribed
// on its first topic, then oscillates between Active and Idle with
// heartbeats until it is Closed. Closed is final.
type State string

const (
	StateConnecting    State = "connecting"
	StateAuthenticated State = "authenticated"
	StateSubscribed    State = "subscribed"
	StateActive        State = "active"
	StateIdle          State = "idle"
	StateClosed        State = "closed"
)

var stateTransitions = map[State][]State{
	StateConnecting:    {StateAuthenticated, StateClosed},
	StateAuthenticated: {StateSubscribed, StateClosed},
	StateSubscribed:    {StateActive, StateIdle, StateClosed},
	StateActive:        {StateIdle, StateClosed},
	StateIdle:          {StateActive, StateClosed},
	StateClosed:        {},
}

// CanTransition reports whether the lifecycle permits moving to next.
func (s State) CanTransition(next State) bool {
	for _, allowed := range stateTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Session is one websocket connection's server-side state: identity,
// subscriptions, lifecycle state, and the outbound buffer the write pump
// drains. All methods are safe for concurrent use.
type Session struct {
	id     string
	userID string
	send   chan ServerMessage

	mu            sync.RWMutex
	state         State
	topics        map[string]struct{}
	lastHeartbeat time.Time
	missedBeats   int
}

func newSession(userID string, sendBuffer int) *Session {
	return &Session{
		id:            uuid.New().String(),
		userID:        userID,
		send:          make(chan ServerMessage, sendBuffer),
		state:         StateConnecting,
		topics:        make(map[string]struct{}),
		lastHeartbeat: time.Now(),
	}
}

func (s *Session) ID() string     { return s.id }
func (s *Session) UserID() string { return s.userID }

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Topics returns a copy of the session's current subscriptions.
func (s *Session) Topics() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	topics := make([]string, 0, len(s.topics))
	for topic := range s.topics {
		topics = append(topics, topic)
	}
	return topics
}

func (s *Session) transition(next State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == next {
		return nil
	}
	if !s.state.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.state, next)
	}
	s.state = next
	return nil
}

// addTopic records a subscription, moving the session to Subscribed on
// its first topic.
func (s *Session) addTopic(topic string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return ErrSessionClosed
	}
	if s.state == StateAuthenticated {
		s.state = StateSubscribed
	}
	s.topics[topic] = struct{}{}
	return nil
}

func (s *Session) removeTopic(topic string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.topics, topic)
}

// heartbeat records client liveness and flips the session back to
// Active.
func (s *Session) heartbeat() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastHeartbeat = time.Now()
	s.missedBeats = 0
	if s.state == StateSubscribed || s.state == StateIdle {
		s.state = StateActive
	}
}

// sinceHeartbeat reports how long ago the client last proved liveness.
func (s *Session) sinceHeartbeat() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.lastHeartbeat)
}

// missHeartbeat counts one missed interval and reports whether the
// session crossed the eviction threshold of two consecutive misses.
// A single miss only demotes the session to Idle.
func (s *Session) missHeartbeat() (evict bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.missedBeats++
	if s.state == StateActive {
		s.state = StateIdle
	}
	return s.missedBeats >= 2
}

// enqueue attempts a non-blocking send to the session's buffer. A full
// buffer means the client fell behind; the caller evicts it.
func (s *Session) enqueue(msg ServerMessage) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state == StateClosed {
		return false
	}
	select {
	case s.send <- msg:
		return true
	default:
		return false
	}
}

// close marks the session Closed and shuts the outbound buffer. Safe to
// call more than once.
func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return
	}
	s.state = StateClosed
	close(s.send)
}
