package binder

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/dmitrymomot/notifyhub/pkg/sanitizer"
)

// DefaultMaxJSONSize is the maximum accepted JSON request body (1MB).
const DefaultMaxJSONSize = 1 << 20

// JSON creates a strict JSON body binder. Unknown fields and trailing data
// are rejected, string fields are passed through the sanitizer. Requests
// without a body (GET, HEAD) report ErrBinderNotApplicable so the binder
// can be stacked with Query and Path on the same route.
func JSON() func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			return ErrBinderNotApplicable
		}

		contentType := r.Header.Get("Content-Type")
		if contentType == "" {
			return fmt.Errorf("%w: expected application/json", ErrMissingContentType)
		}
		mediaType, _, _ := strings.Cut(contentType, ";")
		if strings.TrimSpace(mediaType) != "application/json" {
			return fmt.Errorf("%w: got %s, expected application/json", ErrUnsupportedMediaType, mediaType)
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, DefaultMaxJSONSize+1))
		if err != nil {
			return fmt.Errorf("%w: reading request body: %v", ErrFailedToParseJSON, err)
		}
		if len(body) > DefaultMaxJSONSize {
			return fmt.Errorf("%w: request body too large (max %d bytes)", ErrFailedToParseJSON, DefaultMaxJSONSize)
		}

		decoder := json.NewDecoder(strings.NewReader(string(body)))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(v); err != nil {
			if err == io.EOF {
				return fmt.Errorf("%w: empty body", ErrFailedToParseJSON)
			}
			return fmt.Errorf("%w: %v", ErrFailedToParseJSON, err)
		}

		var extra json.RawMessage
		if err := decoder.Decode(&extra); err != io.EOF {
			return fmt.Errorf("%w: unexpected data after JSON object", ErrFailedToParseJSON)
		}

		sanitizeValue(reflect.ValueOf(v))
		return nil
	}
}

// sanitizeValue strips null bytes from every reachable string field of the
// decoded value.
func sanitizeValue(rv reflect.Value) {
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		if !rv.IsNil() {
			sanitizeValue(rv.Elem())
		}

	case reflect.String:
		if rv.CanSet() {
			rv.SetString(sanitizer.RemoveNullBytes(rv.String()))
		}

	case reflect.Struct:
		for i := range rv.NumField() {
			if rv.Field(i).CanSet() {
				sanitizeValue(rv.Field(i))
			}
		}

	case reflect.Slice, reflect.Array:
		for i := range rv.Len() {
			sanitizeValue(rv.Index(i))
		}
	}
}
