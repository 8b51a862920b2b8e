// Package mongo provides the MongoDB client wiring for deployments that
// keep the notification feed in a document store instead of PostgreSQL.
package mongo
