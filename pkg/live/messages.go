package live

import "encoding/json"

// Client-to-server message types.
const (
	ClientSubscribe   = "subscribe"
	ClientUnsubscribe = "unsubscribe"
	ClientHeartbeat   = "heartbeat"
	ClientMarkRead    = "mark_read"
	ClientMarkAllRead = "mark_all_read"
)

// Server-to-client message types.
const (
	ServerSnapshot     = "snapshot"
	ServerNotification = "notification"
	ServerUnreadCount  = "unread_count"
	ServerTopicEvent   = "topic_event"
	ServerHeartbeatAck = "heartbeat_ack"
	ServerError        = "error"
)

// Machine-readable error codes carried on error messages, so clients
// can branch without parsing the human-readable text.
const (
	ErrCodeMalformedMessage = "malformed_message"
	ErrCodeTopicForbidden   = "topic_forbidden"
	ErrCodeTopicRequired    = "topic_required"
	ErrCodeMarkReadFailed   = "mark_read_failed"
	ErrCodeMarkAllFailed    = "mark_all_read_failed"
	ErrCodeUnknownMessage   = "unknown_message"
)

// ClientMessage is the envelope for everything a client sends after the
// handshake.
type ClientMessage struct {
	Type           string `json:"type"`
	Topic          string `json:"topic,omitempty"`
	NotificationID string `json:"notification_id,omitempty"`
}

// ServerMessage is the envelope for everything the server pushes.
type ServerMessage struct {
	Type    string          `json:"type"`
	Topic   string          `json:"topic,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Code    string          `json:"code,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func newServerMessage(msgType, topic string, payload any) (ServerMessage, error) {
	msg := ServerMessage{Type: msgType, Topic: topic}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return ServerMessage{}, err
		}
		msg.Payload = data
	}
	return msg, nil
}

func errorMessage(code, errText string) ServerMessage {
	return ServerMessage{Type: ServerError, Code: code, Error: errText}
}

// SnapshotPayload is sent immediately after a successful subscribe. For
// user topics it carries the unread count; for other topics whatever the
// topic state provider returns.
type SnapshotPayload struct {
	UnreadCount *int            `json:"unread_count,omitempty"`
	State       json.RawMessage `json:"state,omitempty"`
}

// UnreadCountPayload accompanies unread_count pushes after reads.
type UnreadCountPayload struct {
	UnreadCount int `json:"unread_count"`
}
