package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifyhub/handler"
	"github.com/dmitrymomot/notifyhub/pkg/binder"
)

type echoRequest struct {
	Name string `json:"name"`
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) handler.JSONResponse {
	t.Helper()
	var body handler.JSONResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestWrap(t *testing.T) {
	t.Parallel()

	t.Run("binds and renders JSON", func(t *testing.T) {
		t.Parallel()

		h := handler.Wrap(func(ctx handler.Context, req echoRequest) handler.Response {
			return handler.JSON(map[string]string{"hello": req.Name})
		}, handler.WithBinders[handler.Context, echoRequest](binder.JSON()))

		r := httptest.NewRequest("POST", "/", strings.NewReader(`{"name":"amelia"}`))
		r.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		h(rec, r)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"hello":"amelia"`)
	})

	t.Run("binding failure renders 400", func(t *testing.T) {
		t.Parallel()

		h := handler.Wrap(func(ctx handler.Context, req echoRequest) handler.Response {
			t.Fatal("handler must not run on binding failure")
			return nil
		}, handler.WithBinders[handler.Context, echoRequest](binder.JSON()))

		r := httptest.NewRequest("POST", "/", strings.NewReader(`{broken`))
		r.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		h(rec, r)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		body := decodeBody(t, rec)
		require.NotNil(t, body.Error)
		assert.Equal(t, "bad_request", body.Error.Code)
	})

	t.Run("inapplicable binders are skipped", func(t *testing.T) {
		t.Parallel()

		type feedRequest struct {
			Limit int `query:"limit"`
		}
		h := handler.Wrap(func(ctx handler.Context, req feedRequest) handler.Response {
			return handler.JSON(map[string]int{"limit": req.Limit})
		}, handler.WithBinders[handler.Context, feedRequest](binder.JSON(), binder.Query()))

		r := httptest.NewRequest("GET", "/?limit=5", nil)
		rec := httptest.NewRecorder()
		h(rec, r)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"limit":5`)
	})

	t.Run("nil response is an error", func(t *testing.T) {
		t.Parallel()

		h := handler.Wrap(func(ctx handler.Context, req echoRequest) handler.Response {
			return nil
		})

		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest("GET", "/", nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("decorators wrap in order", func(t *testing.T) {
		t.Parallel()

		var order []string
		mark := func(name string) handler.Decorator[handler.Context, echoRequest] {
			return func(next handler.HandlerFunc[handler.Context, echoRequest]) handler.HandlerFunc[handler.Context, echoRequest] {
				return func(ctx handler.Context, req echoRequest) handler.Response {
					order = append(order, name)
					return next(ctx, req)
				}
			}
		}

		h := handler.Wrap(func(ctx handler.Context, req echoRequest) handler.Response {
			return handler.Empty()
		}, handler.WithDecorators(mark("outer"), mark("inner")))

		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest("GET", "/", nil))

		assert.Equal(t, []string{"outer", "inner"}, order)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}

func TestJSONError(t *testing.T) {
	t.Parallel()

	t.Run("http error carries its status", func(t *testing.T) {
		t.Parallel()

		rec := httptest.NewRecorder()
		resp := handler.JSONError(handler.ErrNotFound)
		require.NoError(t, resp.Render(rec, httptest.NewRequest("GET", "/", nil)))

		assert.Equal(t, http.StatusNotFound, rec.Code)
		body := decodeBody(t, rec)
		require.NotNil(t, body.Error)
		assert.Equal(t, "not_found", body.Error.Code)
	})

	t.Run("validation error renders details", func(t *testing.T) {
		t.Parallel()

		verr := handler.NewValidationError()
		verr.Add("recipient_id", "is required")

		rec := httptest.NewRecorder()
		require.NoError(t, handler.JSONError(verr).Render(rec, httptest.NewRequest("POST", "/", nil)))

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		body := decodeBody(t, rec)
		require.NotNil(t, body.Error)
		assert.Equal(t, "validation_error", body.Error.Code)
		assert.Equal(t, []string{"is required"}, body.Error.Details["recipient_id"])
	})

	t.Run("unknown error defaults to 500", func(t *testing.T) {
		t.Parallel()

		rec := httptest.NewRecorder()
		require.NoError(t, handler.JSONError(assert.AnError).Render(rec, httptest.NewRequest("GET", "/", nil)))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestJSONMeta(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	resp := handler.JSON([]string{"a"}, handler.WithJSONMeta(map[string]any{"total": 1}))
	require.NoError(t, resp.Render(rec, httptest.NewRequest("GET", "/", nil)))

	body := decodeBody(t, rec)
	assert.Equal(t, float64(1), body.Meta["total"])
}
