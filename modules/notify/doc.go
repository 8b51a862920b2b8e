// Package notify mounts the notification engine's HTTP surface: the
// producer ingestion endpoint, the recipient feed and preference API,
// and the live websocket layer with its connection tokens.
package notify
