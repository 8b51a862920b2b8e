package dispatch

import "errors"

var (
	ErrNoJobToClaim     = errors.New("no job to claim")
	ErrJobNotFound      = errors.New("job not found")
	ErrDuplicateJob     = errors.New("job already enqueued for this notification and channel")
	ErrStoreNil         = errors.New("job store is nil")
	ErrNoAdapters       = errors.New("no channel adapters registered")
	ErrAdapterNotFound  = errors.New("no adapter for channel")
	ErrAlreadyStarted   = errors.New("worker already started")
	ErrNotStarted       = errors.New("worker not started")
	ErrRetriesExhausted = errors.New("delivery retries exhausted")
)
