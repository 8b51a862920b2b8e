// Package dispatch fans stored notifications out into per-channel
// delivery jobs and processes them with a bounded worker pool.
//
// A job's identity is its (notification, channel) pair: redispatching a
// notification enqueues nothing new, and a job redelivered after a
// worker crash replays against storage predicates that make the second
// outcome write a no-op. Delivery is therefore at-least-once with
// idempotent effects.
//
// Workers claim jobs under an exclusive time-boxed lease. Retryable
// failures go back to pending with exponential backoff until the attempt
// budget runs out; terminal failures (vendor rejected the recipient,
// no contact endpoint) fail immediately. User preferences are rechecked
// at delivery time, so an opt-out between enqueue and delivery ends the
// job as skipped rather than sent.
//
// The live broadcast path is not a job. The dispatcher publishes it
// straight onto the bus, because live events are fire-and-forget and
// retrying a stale one has no value.
package dispatch
