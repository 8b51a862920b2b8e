package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// JobStore persists delivery jobs and hands them to workers under an
// exclusive lease.
type JobStore interface {
	// Enqueue stores pending jobs, all or none: a job whose
	// (NotificationID, Channel) pair is already present fails the whole
	// batch with ErrDuplicateJob and nothing is persisted.
	Enqueue(ctx context.Context, jobs ...Job) error

	// Claim atomically leases the next due pending job for the worker.
	// While the lease holds, no other worker can claim the job. Returns
	// ErrNoJobToClaim when nothing is due.
	Claim(ctx context.Context, workerID uuid.UUID, lease time.Duration) (*Job, error)

	// Complete ends the job in a terminal status and clears the lease.
	Complete(ctx context.Context, jobID uuid.UUID, status JobStatus, lastError string) error

	// Reschedule returns a failed attempt to pending, increments the
	// retry count, records the error, and delays the next attempt until
	// runAt.
	Reschedule(ctx context.Context, jobID uuid.UUID, lastError string, runAt time.Time) error

	// Get returns a job by ID.
	Get(ctx context.Context, jobID uuid.UUID) (*Job, error)
}
