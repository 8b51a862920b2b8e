// Package pg wires the PostgreSQL connection pool used by the notification
// and preference stores: pgxpool connection with boot retries, a readiness
// healthcheck, and goose-based schema migrations.
package pg
