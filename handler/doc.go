// Package handler provides type-safe HTTP request handling on top of
// net/http. Handlers are plain functions from a typed request to a
// Response; Wrap converts them to http.HandlerFunc, applying binders for
// request parsing and an error handler for failures.
//
// Basic usage:
//
//	type markReadRequest struct {
//		UserID string `path:"user_id"`
//		ID     string `path:"id"`
//	}
//
//	markRead := func(ctx handler.Context, req markReadRequest) handler.Response {
//		if err := storage.MarkRead(ctx, req.UserID, req.ID); err != nil {
//			return handler.JSONError(err)
//		}
//		return handler.Empty()
//	}
//
//	r.Post("/users/{user_id}/notifications/{id}/read", handler.Wrap(markRead,
//		handler.WithBinders[handler.Context, markReadRequest](
//			binder.Path(chi.URLParam),
//		),
//	))
//
// Errors carry HTTP semantics through HTTPError and ValidationError; the
// JSON responses render them with the matching status code.
package handler
