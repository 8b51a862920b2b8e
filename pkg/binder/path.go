package binder

import (
	"fmt"
	"net/http"
	"reflect"
)

// Path creates a path parameter binder using the provided extractor, which
// keeps the binder router-agnostic. With chi the extractor is chi.URLParam.
//
// It supports struct tags for custom parameter names:
//   - `path:"name"` binds to path parameter "name"
//   - `path:"-"` skips the field
//
// Example:
//
//	type MarkReadRequest struct {
//		UserID         string `path:"user_id"`
//		NotificationID string `path:"id"`
//	}
//
//	r.Post("/users/{user_id}/notifications/{id}/read", handler.Wrap(svc.markRead,
//		handler.WithBinders[handler.Context, MarkReadRequest](
//			binder.Path(chi.URLParam),
//		),
//	))
func Path(extractor func(r *http.Request, fieldName string) string) func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		if extractor == nil {
			return fmt.Errorf("%w: extractor function is nil", ErrFailedToParsePath)
		}

		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Ptr || rv.IsNil() {
			return fmt.Errorf("%w: target must be a non-nil pointer", ErrFailedToParsePath)
		}
		rv = rv.Elem()
		if rv.Kind() != reflect.Struct {
			return fmt.Errorf("%w: target must be a pointer to struct", ErrFailedToParsePath)
		}

		rt := rv.Type()
		for i := range rv.NumField() {
			field := rv.Field(i)
			fieldType := rt.Field(i)
			if !field.CanSet() {
				continue
			}

			paramName, skip := parseFieldTag(fieldType, "path")
			if skip {
				continue
			}

			value := extractor(r, paramName)
			if value == "" {
				continue
			}

			if err := setFieldValue(field, fieldType.Type, []string{value}); err != nil {
				return fmt.Errorf("%w: field %s: %v", ErrFailedToParsePath, fieldType.Name, err)
			}
		}

		return nil
	}
}
