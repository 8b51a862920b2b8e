package binder

import "errors"

// Common binding errors
var (
	// ErrBinderNotApplicable signals that a binder does not apply to the
	// request (for example a body binder on a GET). The handler wrapper
	// skips the binder instead of failing the request.
	ErrBinderNotApplicable = errors.New("binder not applicable to this request")

	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrMissingContentType   = errors.New("missing content type")
	ErrFailedToParseJSON    = errors.New("failed to parse JSON request body")
	ErrFailedToParseQuery   = errors.New("failed to parse query parameters")
	ErrFailedToParsePath    = errors.New("failed to parse path parameters")
)
