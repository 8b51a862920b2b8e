package live

import "errors"

var (
	ErrInvalidConfig     = errors.New("invalid live config")
	ErrTokenInvalid      = errors.New("connection token is invalid")
	ErrTokenExpired      = errors.New("connection token has expired")
	ErrTopicForbidden    = errors.New("subscription to this topic is not allowed")
	ErrSessionClosed     = errors.New("session is closed")
	ErrInvalidTransition = errors.New("invalid session state transition")
	ErrUnknownMessage    = errors.New("unknown client message type")
)

// Close codes sent when the server terminates a connection. The 4xxx
// range is reserved for applications by RFC 6455.
const (
	CloseAuthInvalid     = 4400
	CloseAuthExpired     = 4401
	CloseSlowConsumer    = 4002
	CloseHeartbeatMissed = 4003
	CloseServerShutdown  = 4004
)
