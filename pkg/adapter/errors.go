package adapter

import "errors"

var (
	ErrInvalidConfig     = errors.New("invalid adapter config")
	ErrFailedToDeliver   = errors.New("failed to deliver message")
	ErrNoContactEndpoint = errors.New("recipient has no endpoint for this channel")
	ErrRecipientRejected = errors.New("vendor rejected the recipient")
)

// terminalError marks a delivery failure that retrying cannot fix:
// malformed recipient, vendor-side rejection, missing endpoint.
type terminalError struct {
	err error
}

func (e terminalError) Error() string { return e.err.Error() }
func (e terminalError) Unwrap() error { return e.err }

// Terminal wraps an error so the dispatcher fails the job immediately
// instead of scheduling a retry.
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return terminalError{err: err}
}

// IsTerminal reports whether the error was marked Terminal anywhere in
// its chain.
func IsTerminal(err error) bool {
	var t terminalError
	return errors.As(err, &t)
}

// IsRetryable reports whether a delivery error should be retried.
// Everything is retryable unless explicitly marked terminal: timeouts,
// connection resets, and vendor 5xx responses all fall through here.
func IsRetryable(err error) bool {
	return err != nil && !IsTerminal(err)
}
