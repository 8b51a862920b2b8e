package binder

import "net/http"

// Query creates a query parameter binder.
//
// It supports struct tags for custom parameter names:
//   - `query:"name"` binds to query parameter "name"
//   - `query:"-"` skips the field
//
// Basic types, slices of basic types, and pointers for optional fields are
// supported. Repeated parameters and comma-separated values both bind onto
// slices.
//
// Example:
//
//	type FeedRequest struct {
//		Limit      int    `query:"limit"`
//		OnlyUnread bool   `query:"unread"`
//		Category   string `query:"category"`
//	}
func Query() func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		return bindToStruct(v, "query", r.URL.Query(), ErrFailedToParseQuery)
	}
}
