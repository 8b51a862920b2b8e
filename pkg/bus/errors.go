package bus

import "errors"

var (
	ErrBusClosed     = errors.New("bus is closed")
	ErrEmptyTopic    = errors.New("topic must not be empty")
	ErrPublishFailed = errors.New("failed to publish event")
)
