package notification

import "errors"

var (
	// ErrNotFound is returned when a notification does not exist.
	ErrNotFound = errors.New("notification not found")

	// ErrAlreadyExists is returned by Create when another row with the same
	// (recipient, idempotency key) pair is already stored.
	ErrAlreadyExists = errors.New("notification already exists")

	// ErrInvalidTransition is returned when a delivery outcome update would
	// move a channel backwards out of a terminal state.
	ErrInvalidTransition = errors.New("invalid delivery outcome transition")

	// ErrInvalidCategory is returned for categories outside the closed enum.
	ErrInvalidCategory = errors.New("unknown notification category")

	// ErrMissingRecipient is returned when a request carries no recipient id.
	ErrMissingRecipient = errors.New("recipient id is required")

	// ErrStoreUnavailable wraps storage failures surfaced by the ingestion
	// hook. Producers log it and move on; it must never abort their own
	// transaction.
	ErrStoreUnavailable = errors.New("notification store unavailable")
)
