// Package bus is the topic pub/sub fabric connecting the dispatcher to
// live websocket sessions.
//
// Events are fire-and-forget: a publish reaches the subscribers present
// at that moment at most once, and there is no replay for late joiners.
// Clients needing history read the notification feed instead.
//
// Two implementations ship: MemoryBus for single-process deployments and
// tests, and RedisBus on Redis pub/sub for multi-instance deployments
// where dispatch workers and connection hosts are separate processes.
// Both drop events for consumers that cannot keep up rather than
// blocking the publisher.
package bus
