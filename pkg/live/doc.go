// Package live is the websocket layer of the notification engine: it
// authenticates connections with short-lived JWTs, tracks per-topic
// subscriptions, and bridges the shared event bus onto connected
// sessions.
//
// A connection's lifecycle is a small state machine: Connecting until
// the token verifies, Authenticated, Subscribed on the first topic,
// then Active or Idle depending on heartbeats, and finally Closed.
// The user's own topic is subscribed automatically right after the
// handshake; order and partner topics take an explicit subscribe.
// Clients send heartbeats on a fixed cadence; missing two in a row gets
// the session evicted from every topic and the socket closed.
//
// Live delivery carries no history. A client that subscribes receives a
// snapshot (its unread count, or the topic's current state) and from
// then on only events published while it stays subscribed. Anything
// missed is recovered from the notification feed, not the socket.
package live
