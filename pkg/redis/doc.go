// Package redis provides the Redis client wiring for the broadcast bus:
// URL-based configuration, boot-time connection retries, and a readiness
// healthcheck.
package redis
