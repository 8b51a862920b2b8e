package live

import (
	"log/slog"
	"net/http"
	"time"
)

// ManagerOption is a functional option for configuring a Manager.
type ManagerOption func(*managerOptions)

type managerOptions struct {
	access            AccessChecker
	snapshots         TopicStateProvider
	checkOrigin       func(*http.Request) bool
	heartbeatInterval time.Duration
	writeTimeout      time.Duration
	sendBuffer        int
	maxMessageSize    int64
	log               *slog.Logger
}

func defaultManagerOptions() *managerOptions {
	return &managerOptions{
		access:            AccessFunc(defaultAccess),
		heartbeatInterval: 25 * time.Second,
		writeTimeout:      10 * time.Second,
		sendBuffer:        64,
		maxMessageSize:    4 << 10,
		log:               slog.Default(),
	}
}

// WithAccessChecker replaces the default topic authorization policy.
func WithAccessChecker(checker AccessChecker) ManagerOption {
	return func(o *managerOptions) {
		if checker != nil {
			o.access = checker
		}
	}
}

// WithTopicStateProvider wires snapshots for non-user topics.
func WithTopicStateProvider(provider TopicStateProvider) ManagerOption {
	return func(o *managerOptions) {
		o.snapshots = provider
	}
}

// WithCheckOrigin overrides the upgrade origin check.
func WithCheckOrigin(fn func(*http.Request) bool) ManagerOption {
	return func(o *managerOptions) {
		o.checkOrigin = fn
	}
}

// WithHeartbeatInterval sets the expected client heartbeat cadence.
// Missing two intervals in a row evicts the session.
func WithHeartbeatInterval(d time.Duration) ManagerOption {
	return func(o *managerOptions) {
		if d > 0 {
			o.heartbeatInterval = d
		}
	}
}

// WithWriteTimeout bounds a single websocket write.
func WithWriteTimeout(d time.Duration) ManagerOption {
	return func(o *managerOptions) {
		if d > 0 {
			o.writeTimeout = d
		}
	}
}

// WithSendBuffer sets the per-session outbound buffer. Sessions that
// overflow it are evicted as slow consumers.
func WithSendBuffer(n int) ManagerOption {
	return func(o *managerOptions) {
		if n > 0 {
			o.sendBuffer = n
		}
	}
}

// WithMaxMessageSize caps inbound client messages.
func WithMaxMessageSize(n int64) ManagerOption {
	return func(o *managerOptions) {
		if n > 0 {
			o.maxMessageSize = n
		}
	}
}

// WithManagerLogger sets the logger.
func WithManagerLogger(log *slog.Logger) ManagerOption {
	return func(o *managerOptions) {
		if log != nil {
			o.log = log
		}
	}
}
