package live

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifyhub/pkg/bus"
	"github.com/dmitrymomot/notifyhub/pkg/notification"
)

type liveTestEnv struct {
	manager *Manager
	bus     *bus.MemoryBus
	storage *notification.MemoryStorage
	issuer  *TokenIssuer
	server  *httptest.Server
}

func newLiveTestEnv(t *testing.T, opts ...ManagerOption) *liveTestEnv {
	t.Helper()

	eventBus := bus.NewMemoryBus()
	storage := notification.NewMemoryStorage()
	issuer, err := NewTokenIssuer(TokenConfig{Secret: "test-secret", TTL: time.Minute})
	require.NoError(t, err)

	manager := NewManager(eventBus, storage, issuer, opts...)
	server := httptest.NewServer(http.HandlerFunc(manager.HandleWS))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = manager.Shutdown(ctx)
		server.Close()
		_ = eventBus.Close()
	})

	return &liveTestEnv{
		manager: manager,
		bus:     eventBus,
		storage: storage,
		issuer:  issuer,
		server:  server,
	}
}

func (env *liveTestEnv) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()

	url := strings.Replace(env.server.URL, "http", "ws", 1) + "/?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func (env *liveTestEnv) seedNotification(t *testing.T, recipientID string) notification.Notification {
	t.Helper()

	n := notification.Notification{
		ID:          uuid.New().String(),
		RecipientID: recipientID,
		Category:    notification.CategorySystem,
		Title:       "Maintenance window",
		Body:        "The platform will restart at midnight.",
		Delivery: map[notification.Channel]notification.DeliveryStatus{
			notification.ChannelInApp: {Outcome: notification.OutcomeSent},
		},
		CreatedAt: time.Now(),
	}
	require.NoError(t, env.storage.Create(context.Background(), n))
	return n
}

func readServerMessage(t *testing.T, conn *websocket.Conn) ServerMessage {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg ServerMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

// expectSnapshot reads the next frame and asserts it is the snapshot for
// the given topic. Every authenticated connection starts with one for
// the user's own topic.
func expectSnapshot(t *testing.T, conn *websocket.Conn, topic string) SnapshotPayload {
	t.Helper()

	msg := readServerMessage(t, conn)
	require.Equal(t, ServerSnapshot, msg.Type)
	require.Equal(t, topic, msg.Topic)

	var payload SnapshotPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	return payload
}

func sendClientMessage(t *testing.T, conn *websocket.Conn, msg ClientMessage) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

func expectClose(t *testing.T, conn *websocket.Conn, code int) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, code, closeErr.Code)
}

func TestManager_RejectsInvalidToken(t *testing.T) {
	t.Parallel()

	env := newLiveTestEnv(t)
	conn := env.dial(t, "not-a-token")
	expectClose(t, conn, CloseAuthInvalid)
}

func TestManager_RejectsExpiredToken(t *testing.T) {
	t.Parallel()

	env := newLiveTestEnv(t)

	expired, err := NewTokenIssuer(TokenConfig{Secret: "test-secret", TTL: time.Minute})
	require.NoError(t, err)
	expired.ttl = -time.Minute
	token, err := expired.Issue("user-1")
	require.NoError(t, err)

	conn := env.dial(t, token)
	expectClose(t, conn, CloseAuthExpired)
}

func TestManager_ConnectSendsUnreadSnapshot(t *testing.T) {
	t.Parallel()

	env := newLiveTestEnv(t)
	env.seedNotification(t, "user-1")
	env.seedNotification(t, "user-1")

	token, err := env.issuer.Issue("user-1")
	require.NoError(t, err)
	conn := env.dial(t, token)

	// No subscribe message sent: the user topic snapshot is the first
	// frame on every connection.
	topic := bus.UserTopic("user-1")
	payload := expectSnapshot(t, conn, topic)
	require.NotNil(t, payload.UnreadCount)
	assert.Equal(t, 2, *payload.UnreadCount)

	assert.Equal(t, 1, env.manager.Registry().Count(topic))
}

func TestManager_ExplicitSubscribeSendsSnapshot(t *testing.T) {
	t.Parallel()

	env := newLiveTestEnv(t)
	token, err := env.issuer.Issue("user-1")
	require.NoError(t, err)
	conn := env.dial(t, token)
	expectSnapshot(t, conn, bus.UserTopic("user-1"))

	topic := "partners.acme"
	sendClientMessage(t, conn, ClientMessage{Type: ClientSubscribe, Topic: topic})

	expectSnapshot(t, conn, topic)
	assert.Equal(t, 1, env.manager.Registry().Count(topic))
}

func TestManager_DeliversPublishedEvents(t *testing.T) {
	t.Parallel()

	env := newLiveTestEnv(t)
	token, err := env.issuer.Issue("user-1")
	require.NoError(t, err)
	conn := env.dial(t, token)

	topic := bus.UserTopic("user-1")
	expectSnapshot(t, conn, topic)

	event, err := bus.NewEvent(topic, "notification", map[string]string{"title": "Order shipped"})
	require.NoError(t, err)
	require.NoError(t, env.bus.Publish(context.Background(), event))

	msg := readServerMessage(t, conn)
	assert.Equal(t, ServerNotification, msg.Type)
	assert.Equal(t, topic, msg.Topic)
	assert.JSONEq(t, `{"title":"Order shipped"}`, string(msg.Payload))
}

func TestManager_NoReplayForEventsBeforeConnect(t *testing.T) {
	t.Parallel()

	env := newLiveTestEnv(t)
	topic := bus.UserTopic("user-1")

	// Published before the user connects; must never be delivered.
	early, err := bus.NewEvent(topic, "notification", map[string]string{"title": "too early"})
	require.NoError(t, err)
	require.NoError(t, env.bus.Publish(context.Background(), early))

	token, err := env.issuer.Issue("user-1")
	require.NoError(t, err)
	conn := env.dial(t, token)
	expectSnapshot(t, conn, topic)

	sendClientMessage(t, conn, ClientMessage{Type: ClientHeartbeat})
	msg := readServerMessage(t, conn)
	assert.Equal(t, ServerHeartbeatAck, msg.Type, "the pre-connect event must not show up")
}

func TestManager_HeartbeatAck(t *testing.T) {
	t.Parallel()

	env := newLiveTestEnv(t)
	token, err := env.issuer.Issue("user-1")
	require.NoError(t, err)
	conn := env.dial(t, token)
	expectSnapshot(t, conn, bus.UserTopic("user-1"))

	sendClientMessage(t, conn, ClientMessage{Type: ClientHeartbeat})
	assert.Equal(t, ServerHeartbeatAck, readServerMessage(t, conn).Type)
}

func TestManager_MarkReadPushesUnreadCount(t *testing.T) {
	t.Parallel()

	env := newLiveTestEnv(t)
	seeded := env.seedNotification(t, "user-1")
	env.seedNotification(t, "user-1")

	token, err := env.issuer.Issue("user-1")
	require.NoError(t, err)
	conn := env.dial(t, token)
	expectSnapshot(t, conn, bus.UserTopic("user-1"))

	sendClientMessage(t, conn, ClientMessage{Type: ClientMarkRead, NotificationID: seeded.ID})

	msg := readServerMessage(t, conn)
	require.Equal(t, ServerUnreadCount, msg.Type)
	var payload UnreadCountPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.Equal(t, 1, payload.UnreadCount)

	stored, err := env.storage.Get(context.Background(), "user-1", seeded.ID)
	require.NoError(t, err)
	assert.True(t, stored.Read())
}

func TestManager_MarkAllReadPushesZeroCount(t *testing.T) {
	t.Parallel()

	env := newLiveTestEnv(t)
	env.seedNotification(t, "user-1")
	env.seedNotification(t, "user-1")

	token, err := env.issuer.Issue("user-1")
	require.NoError(t, err)
	conn := env.dial(t, token)
	expectSnapshot(t, conn, bus.UserTopic("user-1"))

	sendClientMessage(t, conn, ClientMessage{Type: ClientMarkAllRead})

	msg := readServerMessage(t, conn)
	require.Equal(t, ServerUnreadCount, msg.Type)
	var payload UnreadCountPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.Equal(t, 0, payload.UnreadCount)
}

func TestManager_ForbidsOtherUsersTopic(t *testing.T) {
	t.Parallel()

	env := newLiveTestEnv(t)
	token, err := env.issuer.Issue("user-1")
	require.NoError(t, err)
	conn := env.dial(t, token)
	expectSnapshot(t, conn, bus.UserTopic("user-1"))

	sendClientMessage(t, conn, ClientMessage{Type: ClientSubscribe, Topic: bus.UserTopic("user-2")})

	msg := readServerMessage(t, conn)
	assert.Equal(t, ServerError, msg.Type)
	assert.Equal(t, ErrCodeTopicForbidden, msg.Code)
	assert.Contains(t, msg.Error, "not allowed")
	assert.Equal(t, 0, env.manager.Registry().Count(bus.UserTopic("user-2")))
}

func TestManager_ErrorCodes(t *testing.T) {
	t.Parallel()

	env := newLiveTestEnv(t)
	token, err := env.issuer.Issue("user-1")
	require.NoError(t, err)
	conn := env.dial(t, token)
	expectSnapshot(t, conn, bus.UserTopic("user-1"))

	t.Run("missing topic on subscribe", func(t *testing.T) {
		sendClientMessage(t, conn, ClientMessage{Type: ClientSubscribe})
		msg := readServerMessage(t, conn)
		require.Equal(t, ServerError, msg.Type)
		assert.Equal(t, ErrCodeTopicRequired, msg.Code)
	})

	t.Run("unknown message type", func(t *testing.T) {
		sendClientMessage(t, conn, ClientMessage{Type: "teleport"})
		msg := readServerMessage(t, conn)
		require.Equal(t, ServerError, msg.Type)
		assert.Equal(t, ErrCodeUnknownMessage, msg.Code)
	})

	t.Run("malformed frame", func(t *testing.T) {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
		msg := readServerMessage(t, conn)
		require.Equal(t, ServerError, msg.Type)
		assert.Equal(t, ErrCodeMalformedMessage, msg.Code)
	})
}

func TestManager_CustomAccessChecker(t *testing.T) {
	t.Parallel()

	allowAll := AccessFunc(func(_ context.Context, _, _ string) error { return nil })
	env := newLiveTestEnv(t, WithAccessChecker(allowAll))

	token, err := env.issuer.Issue("user-1")
	require.NoError(t, err)
	conn := env.dial(t, token)
	expectSnapshot(t, conn, bus.UserTopic("user-1"))

	topic := bus.OrderTopic("order-42")
	sendClientMessage(t, conn, ClientMessage{Type: ClientSubscribe, Topic: topic})
	expectSnapshot(t, conn, topic)
}

func TestManager_FansOutToAllDevices(t *testing.T) {
	t.Parallel()

	env := newLiveTestEnv(t)
	token, err := env.issuer.Issue("user-1")
	require.NoError(t, err)

	topic := bus.UserTopic("user-1")
	phone := env.dial(t, token)
	laptop := env.dial(t, token)
	for _, conn := range []*websocket.Conn{phone, laptop} {
		expectSnapshot(t, conn, topic)
	}
	require.Equal(t, 2, env.manager.Registry().Count(topic))

	event, err := bus.NewEvent(topic, "notification", map[string]string{"title": "hello"})
	require.NoError(t, err)
	require.NoError(t, env.bus.Publish(context.Background(), event))

	for _, conn := range []*websocket.Conn{phone, laptop} {
		assert.Equal(t, ServerNotification, readServerMessage(t, conn).Type)
	}
}

func TestManager_ShutdownClosesSessions(t *testing.T) {
	t.Parallel()

	env := newLiveTestEnv(t)
	token, err := env.issuer.Issue("user-1")
	require.NoError(t, err)
	conn := env.dial(t, token)
	expectSnapshot(t, conn, bus.UserTopic("user-1"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, env.manager.Shutdown(ctx))

	expectClose(t, conn, CloseServerShutdown)
}

func TestManager_HeartbeatTimeoutEvicts(t *testing.T) {
	t.Parallel()

	env := newLiveTestEnv(t, WithHeartbeatInterval(50*time.Millisecond))
	token, err := env.issuer.Issue("user-1")
	require.NoError(t, err)
	conn := env.dial(t, token)
	expectSnapshot(t, conn, bus.UserTopic("user-1"))

	// Keep the socket chatty without ever heartbeating: the read deadline
	// stays fresh, so the close must come from the heartbeat monitor.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := conn.WriteJSON(ClientMessage{Type: ClientUnsubscribe}); err != nil {
					return
				}
			}
		}
	}()

	expectClose(t, conn, CloseHeartbeatMissed)
}
