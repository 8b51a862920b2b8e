package preference

import "errors"

var (
	ErrNotFound         = errors.New("preferences not found")
	ErrInvalidSettings  = errors.New("invalid preference settings")
	ErrStoreUnavailable = errors.New("preference store unavailable")
)
