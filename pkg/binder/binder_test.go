package binder_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifyhub/pkg/binder"
)

func TestJSON(t *testing.T) {
	t.Parallel()

	type createRequest struct {
		RecipientID string         `json:"recipient_id"`
		Category    string         `json:"category"`
		Context     map[string]any `json:"context"`
	}

	t.Run("binds valid body", func(t *testing.T) {
		t.Parallel()

		body := `{"recipient_id":"user-1","category":"order_created","context":{"order_id":"o-1"}}`
		r := httptest.NewRequest("POST", "/notifications", strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")

		var req createRequest
		require.NoError(t, binder.JSON()(r, &req))
		assert.Equal(t, "user-1", req.RecipientID)
		assert.Equal(t, "order_created", req.Category)
		assert.Equal(t, "o-1", req.Context["order_id"])
	})

	t.Run("rejects unknown fields", func(t *testing.T) {
		t.Parallel()

		r := httptest.NewRequest("POST", "/", strings.NewReader(`{"recipient_id":"u","bogus":true}`))
		r.Header.Set("Content-Type", "application/json")

		var req createRequest
		assert.ErrorIs(t, binder.JSON()(r, &req), binder.ErrFailedToParseJSON)
	})

	t.Run("rejects wrong content type", func(t *testing.T) {
		t.Parallel()

		r := httptest.NewRequest("POST", "/", strings.NewReader(`{}`))
		r.Header.Set("Content-Type", "text/plain")

		var req createRequest
		assert.ErrorIs(t, binder.JSON()(r, &req), binder.ErrUnsupportedMediaType)
	})

	t.Run("rejects missing content type", func(t *testing.T) {
		t.Parallel()

		r := httptest.NewRequest("POST", "/", strings.NewReader(`{}`))
		var req createRequest
		assert.ErrorIs(t, binder.JSON()(r, &req), binder.ErrMissingContentType)
	})

	t.Run("rejects trailing garbage", func(t *testing.T) {
		t.Parallel()

		r := httptest.NewRequest("POST", "/", strings.NewReader(`{"recipient_id":"u"} {"again":1}`))
		r.Header.Set("Content-Type", "application/json")

		var req createRequest
		assert.ErrorIs(t, binder.JSON()(r, &req), binder.ErrFailedToParseJSON)
	})

	t.Run("not applicable on GET", func(t *testing.T) {
		t.Parallel()

		r := httptest.NewRequest("GET", "/", nil)
		var req createRequest
		assert.ErrorIs(t, binder.JSON()(r, &req), binder.ErrBinderNotApplicable)
	})

	t.Run("strips null bytes from strings", func(t *testing.T) {
		t.Parallel()

		r := httptest.NewRequest("POST", "/", strings.NewReader("{\"recipient_id\":\"user\x00-1\"}"))
		r.Header.Set("Content-Type", "application/json")

		var req createRequest
		require.NoError(t, binder.JSON()(r, &req))
		assert.Equal(t, "user-1", req.RecipientID)
	})
}

func TestQuery(t *testing.T) {
	t.Parallel()

	type feedRequest struct {
		Limit      int      `query:"limit"`
		OnlyUnread bool     `query:"unread"`
		Categories []string `query:"categories"`
		Cursor     *string  `query:"cursor"`
		Internal   string   `query:"-"`
	}

	t.Run("binds parameters", func(t *testing.T) {
		t.Parallel()

		r := httptest.NewRequest("GET", "/notifications?limit=20&unread=true&categories=system,security_alert&cursor=abc", nil)

		var req feedRequest
		require.NoError(t, binder.Query()(r, &req))
		assert.Equal(t, 20, req.Limit)
		assert.True(t, req.OnlyUnread)
		assert.Equal(t, []string{"system", "security_alert"}, req.Categories)
		require.NotNil(t, req.Cursor)
		assert.Equal(t, "abc", *req.Cursor)
		assert.Empty(t, req.Internal)
	})

	t.Run("missing parameters keep zero values", func(t *testing.T) {
		t.Parallel()

		r := httptest.NewRequest("GET", "/notifications", nil)

		var req feedRequest
		require.NoError(t, binder.Query()(r, &req))
		assert.Zero(t, req.Limit)
		assert.Nil(t, req.Cursor)
	})

	t.Run("invalid int fails", func(t *testing.T) {
		t.Parallel()

		r := httptest.NewRequest("GET", "/notifications?limit=lots", nil)

		var req feedRequest
		assert.ErrorIs(t, binder.Query()(r, &req), binder.ErrFailedToParseQuery)
	})
}

func TestPath(t *testing.T) {
	t.Parallel()

	type markReadRequest struct {
		UserID         string `path:"user_id"`
		NotificationID string `path:"id"`
	}

	params := map[string]string{"user_id": "user-1", "id": "n-42"}

	t.Run("binds via extractor", func(t *testing.T) {
		t.Parallel()

		r := httptest.NewRequest("POST", "/users/user-1/notifications/n-42/read", nil)
		bind := binder.Path(func(_ *http.Request, name string) string { return params[name] })

		var req markReadRequest
		require.NoError(t, bind(r, &req))
		assert.Equal(t, "user-1", req.UserID)
		assert.Equal(t, "n-42", req.NotificationID)
	})

	t.Run("nil extractor fails", func(t *testing.T) {
		t.Parallel()

		r := httptest.NewRequest("POST", "/", nil)
		var req markReadRequest
		assert.ErrorIs(t, binder.Path(nil)(r, &req), binder.ErrFailedToParsePath)
	})
}
