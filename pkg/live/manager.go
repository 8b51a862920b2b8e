package live

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dmitrymomot/notifyhub/pkg/bus"
	"github.com/dmitrymomot/notifyhub/pkg/notification"
)

// TopicStateProvider supplies the snapshot for non-user topics: the
// current order status for an order topic, the latest announcement for a
// partners topic. Returning nil state is fine; the subscriber just gets
// an empty snapshot.
type TopicStateProvider interface {
	Snapshot(ctx context.Context, topic string) (json.RawMessage, error)
}

// AccessChecker decides whether a user may subscribe to a topic.
type AccessChecker interface {
	Allowed(ctx context.Context, userID, topic string) error
}

// AccessFunc adapts a function to the AccessChecker interface.
type AccessFunc func(ctx context.Context, userID, topic string) error

func (f AccessFunc) Allowed(ctx context.Context, userID, topic string) error {
	return f(ctx, userID, topic)
}

// defaultAccess allows a user their own topic and any partners topic.
// Order topics need deployment knowledge of who owns the order, so they
// are denied until an AccessChecker is wired in.
func defaultAccess(_ context.Context, userID, topic string) error {
	if owner, ok := bus.IsUserTopic(topic); ok {
		if owner == userID {
			return nil
		}
		return ErrTopicForbidden
	}
	if strings.HasPrefix(topic, "partners.") {
		return nil
	}
	return ErrTopicForbidden
}

// Manager owns the websocket side of the live layer: handshake and
// token verification, session lifecycle, topic subscriptions, and the
// bridge from the event bus onto connected sessions.
//
// The bus bridge is reference counted per topic: the first session
// subscribing to a topic opens one bus subscription, later sessions
// share it, and the last one leaving closes it.
type Manager struct {
	eventBus  bus.Bus
	storage   notification.Storage
	tokens    *TokenIssuer
	registry  *Registry
	access    AccessChecker
	snapshots TopicStateProvider
	upgrader  websocket.Upgrader
	log       *slog.Logger

	heartbeatInterval time.Duration
	writeTimeout      time.Duration
	sendBuffer        int
	maxMessageSize    int64

	baseCtx context.Context
	cancel  context.CancelFunc

	mu       sync.Mutex
	bindings map[string]*topicBinding
	conns    map[*Session]*websocket.Conn
	closed   bool
	wg       sync.WaitGroup
}

type topicBinding struct {
	cancel context.CancelFunc
	refs   int
}

func NewManager(eventBus bus.Bus, storage notification.Storage, tokens *TokenIssuer, opts ...ManagerOption) *Manager {
	options := defaultManagerOptions()
	for _, opt := range opts {
		opt(options)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		eventBus:  eventBus,
		storage:   storage,
		tokens:    tokens,
		registry:  NewRegistry(),
		access:    options.access,
		snapshots: options.snapshots,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     options.checkOrigin,
		},
		log:               options.log,
		heartbeatInterval: options.heartbeatInterval,
		writeTimeout:      options.writeTimeout,
		sendBuffer:        options.sendBuffer,
		maxMessageSize:    options.maxMessageSize,
		baseCtx:           ctx,
		cancel:            cancel,
		bindings:          make(map[string]*topicBinding),
		conns:             make(map[*Session]*websocket.Conn),
	}
}

// Registry exposes the subscription registry, mainly for tests and
// metrics.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// HandleWS upgrades the request and runs the session until the client
// disconnects or is evicted. The connection token travels in the
// "token" query parameter; verification failures answer with the
// matching application close code after the upgrade, so clients can
// distinguish an expired token from a rejected one.
func (m *Manager) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.log.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}

	userID, err := m.tokens.Verify(r.URL.Query().Get("token"))
	if err != nil {
		code := CloseAuthInvalid
		if errors.Is(err, ErrTokenExpired) {
			code = CloseAuthExpired
		}
		m.closeConn(conn, code, err.Error())
		return
	}

	session := newSession(userID, m.sendBuffer)
	if err := session.transition(StateAuthenticated); err != nil {
		m.closeConn(conn, CloseAuthInvalid, err.Error())
		return
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.closeConn(conn, CloseServerShutdown, "shutting down")
		return
	}
	m.conns[session] = conn
	m.wg.Add(2)
	m.mu.Unlock()

	m.log.Info("live session connected",
		slog.String("conn_id", session.ID()),
		slog.String("user_id", userID))

	// The user's own topic needs no explicit subscribe message: the
	// session lands in Subscribed with its unread snapshot queued, so
	// the client never has to poll right after connecting. Explicit
	// subscribes remain for order and partner topics.
	m.subscribe(m.baseCtx, session, bus.UserTopic(userID))

	go func() {
		defer m.wg.Done()
		m.writePump(session, conn)
	}()
	go func() {
		defer m.wg.Done()
		m.heartbeatMonitor(session)
	}()

	m.readPump(session, conn)
}

// Shutdown evicts every session and stops the bus bridges.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	sessions := make([]*Session, 0, len(m.conns))
	for session := range m.conns {
		sessions = append(sessions, session)
	}
	m.mu.Unlock()

	for _, session := range sessions {
		m.evict(session, CloseServerShutdown, "server shutting down")
	}
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) readPump(session *Session, conn *websocket.Conn) {
	defer m.teardown(session)

	conn.SetReadLimit(m.maxMessageSize)
	deadline := 3 * m.heartbeatInterval
	_ = conn.SetReadDeadline(time.Now().Add(deadline))

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				m.log.Debug("live session read ended",
					slog.String("conn_id", session.ID()),
					slog.Any("error", err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(deadline))

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			session.enqueue(errorMessage(ErrCodeMalformedMessage, "malformed message"))
			continue
		}
		m.handleClientMessage(session, msg)
	}
}

func (m *Manager) writePump(session *Session, conn *websocket.Conn) {
	for msg := range session.send {
		_ = conn.SetWriteDeadline(time.Now().Add(m.writeTimeout))
		if err := conn.WriteJSON(msg); err != nil {
			m.log.Debug("live session write failed",
				slog.String("conn_id", session.ID()),
				slog.Any("error", err))
			_ = conn.Close()
			return
		}
	}
	// Buffer closed: the session ended, say goodbye if the socket is
	// still up.
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(m.writeTimeout))
	_ = conn.Close()
}

// heartbeatMonitor evicts sessions that miss two heartbeat intervals in
// a row. One miss demotes the session to Idle; the second removes it
// from every topic and closes the socket.
func (m *Manager) heartbeatMonitor(session *Session) {
	ticker := time.NewTicker(m.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.baseCtx.Done():
			return
		case <-ticker.C:
			if session.State() == StateClosed {
				return
			}
			if session.sinceHeartbeat() < m.heartbeatInterval {
				continue
			}
			if session.missHeartbeat() {
				m.log.Info("evicting unresponsive live session",
					slog.String("conn_id", session.ID()),
					slog.String("user_id", session.UserID()))
				m.evict(session, CloseHeartbeatMissed, "missed heartbeats")
				return
			}
		}
	}
}

func (m *Manager) handleClientMessage(session *Session, msg ClientMessage) {
	ctx := m.baseCtx

	switch msg.Type {
	case ClientHeartbeat:
		session.heartbeat()
		session.enqueue(ServerMessage{Type: ServerHeartbeatAck})

	case ClientSubscribe:
		m.subscribe(ctx, session, msg.Topic)

	case ClientUnsubscribe:
		if msg.Topic != "" {
			session.removeTopic(msg.Topic)
			if m.registry.Remove(msg.Topic, session) {
				m.releaseBinding(msg.Topic)
			}
		}

	case ClientMarkRead:
		if err := m.storage.MarkRead(ctx, session.UserID(), msg.NotificationID); err != nil {
			session.enqueue(errorMessage(ErrCodeMarkReadFailed, "mark_read failed"))
			return
		}
		m.publishUnreadCount(ctx, session.UserID())

	case ClientMarkAllRead:
		if err := m.storage.MarkAllRead(ctx, session.UserID()); err != nil {
			session.enqueue(errorMessage(ErrCodeMarkAllFailed, "mark_all_read failed"))
			return
		}
		m.publishUnreadCount(ctx, session.UserID())

	default:
		session.enqueue(errorMessage(ErrCodeUnknownMessage, ErrUnknownMessage.Error()))
	}
}

func (m *Manager) subscribe(ctx context.Context, session *Session, topic string) {
	if topic == "" {
		session.enqueue(errorMessage(ErrCodeTopicRequired, "topic is required"))
		return
	}
	if err := m.access.Allowed(ctx, session.UserID(), topic); err != nil {
		session.enqueue(errorMessage(ErrCodeTopicForbidden, ErrTopicForbidden.Error()))
		return
	}
	if err := session.addTopic(topic); err != nil {
		return
	}
	if m.registry.Add(topic, session) {
		m.ensureBinding(topic)
	}
	m.sendSnapshot(ctx, session, topic)
}

// sendSnapshot answers a fresh subscription with current state: the
// unread count for the user's own topic, the topic state provider's
// answer for anything else. Live events the client missed before
// subscribing are gone; the snapshot is the catch-up.
func (m *Manager) sendSnapshot(ctx context.Context, session *Session, topic string) {
	var payload SnapshotPayload

	if owner, ok := bus.IsUserTopic(topic); ok && owner == session.UserID() {
		count, err := m.storage.CountUnread(ctx, session.UserID())
		if err != nil {
			m.log.Warn("snapshot unread count failed",
				slog.String("conn_id", session.ID()),
				slog.Any("error", err))
		} else {
			payload.UnreadCount = &count
		}
	} else if m.snapshots != nil {
		state, err := m.snapshots.Snapshot(ctx, topic)
		if err != nil {
			m.log.Warn("topic snapshot failed",
				slog.String("topic", topic),
				slog.Any("error", err))
		} else {
			payload.State = state
		}
	}

	msg, err := newServerMessage(ServerSnapshot, topic, payload)
	if err != nil {
		return
	}
	session.enqueue(msg)
}

// publishUnreadCount pushes the new unread count through the bus so
// every device the user has connected updates, not just the one that
// marked the read.
func (m *Manager) publishUnreadCount(ctx context.Context, userID string) {
	count, err := m.storage.CountUnread(ctx, userID)
	if err != nil {
		m.log.Warn("unread count lookup failed",
			slog.String("user_id", userID),
			slog.Any("error", err))
		return
	}
	event, err := bus.NewEvent(bus.UserTopic(userID), ServerUnreadCount, UnreadCountPayload{UnreadCount: count})
	if err != nil {
		return
	}
	if err := m.eventBus.Publish(ctx, event); err != nil {
		m.log.Warn("unread count publish failed",
			slog.String("user_id", userID),
			slog.Any("error", err))
	}
}

// ensureBinding opens the shared bus subscription for a topic, or bumps
// its refcount if it is already running.
func (m *Manager) ensureBinding(topic string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if binding, ok := m.bindings[topic]; ok {
		binding.refs++
		return
	}

	ctx, cancel := context.WithCancel(m.baseCtx)
	sub, err := m.eventBus.Subscribe(ctx, topic)
	if err != nil {
		cancel()
		m.log.Error("bus subscribe failed",
			slog.String("topic", topic),
			slog.Any("error", err))
		return
	}
	m.bindings[topic] = &topicBinding{cancel: cancel, refs: 1}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.bridge(topic, sub)
	}()
}

func (m *Manager) releaseBinding(topic string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	binding, ok := m.bindings[topic]
	if !ok {
		return
	}
	binding.refs--
	if binding.refs <= 0 {
		binding.cancel()
		delete(m.bindings, topic)
	}
}

// bridge fans one topic's bus events out to its subscribed sessions.
// Sessions whose buffers are full are evicted: a reader that cannot
// keep up with its own notifications will not be allowed to pin memory.
func (m *Manager) bridge(topic string, sub bus.Subscription) {
	defer func() { _ = sub.Close() }()

	for event := range sub.Events() {
		msgType := ServerTopicEvent
		switch event.Type {
		case "notification":
			msgType = ServerNotification
		case ServerUnreadCount:
			msgType = ServerUnreadCount
		}

		msg := ServerMessage{Type: msgType, Topic: topic, Payload: event.Payload}
		for _, lagging := range m.registry.Broadcast(topic, msg) {
			m.log.Warn("evicting slow live session",
				slog.String("conn_id", lagging.ID()),
				slog.String("topic", topic))
			m.evict(lagging, CloseSlowConsumer, "send buffer overflow")
		}
	}
}

// evict removes a session from every topic, releases shared bus
// bindings, and closes the socket with the given application close
// code.
func (m *Manager) evict(session *Session, code int, reason string) {
	for _, topic := range session.Topics() {
		if m.registry.Remove(topic, session) {
			m.releaseBinding(topic)
		}
	}

	m.mu.Lock()
	conn, ok := m.conns[session]
	delete(m.conns, session)
	m.mu.Unlock()

	// The coded close frame must hit the wire before the write pump's
	// goodbye, or clients see a normal closure instead of the reason.
	if ok {
		m.closeConn(conn, code, reason)
	}
	session.close()
}

// teardown handles a session whose read pump ended, either a client
// disconnect or the aftermath of an eviction.
func (m *Manager) teardown(session *Session) {
	m.evict(session, websocket.CloseNormalClosure, "")
	m.log.Info("live session closed",
		slog.String("conn_id", session.ID()),
		slog.String("user_id", session.UserID()))
}

func (m *Manager) closeConn(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(m.writeTimeout))
	_ = conn.Close()
}
