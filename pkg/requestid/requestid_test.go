package requestid_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifyhub/pkg/requestid"
)

func TestMiddleware(t *testing.T) {
	t.Parallel()

	serve := func(t *testing.T, header string) (*httptest.ResponseRecorder, string) {
		t.Helper()
		var seen string
		h := requestid.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = requestid.FromContext(r.Context())
		}))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set(requestid.Header, header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec, seen
	}

	t.Run("generates id when absent", func(t *testing.T) {
		t.Parallel()

		rec, seen := serve(t, "")
		require.NotEmpty(t, seen)
		assert.Equal(t, seen, rec.Header().Get(requestid.Header))
		_, err := uuid.Parse(seen)
		assert.NoError(t, err)
	})

	t.Run("reuses valid client id", func(t *testing.T) {
		t.Parallel()

		rec, seen := serve(t, "client-id_42")
		assert.Equal(t, "client-id_42", seen)
		assert.Equal(t, "client-id_42", rec.Header().Get(requestid.Header))
	})

	t.Run("replaces malformed id", func(t *testing.T) {
		t.Parallel()

		_, seen := serve(t, "bad id\nwith newline")
		assert.NotEqual(t, "bad id\nwith newline", seen)
		_, err := uuid.Parse(seen)
		assert.NoError(t, err)
	})

	t.Run("replaces oversized id", func(t *testing.T) {
		t.Parallel()

		long := strings.Repeat("a", 200)
		_, seen := serve(t, long)
		assert.NotEqual(t, long, seen)
	})
}

func TestFromContext_Missing(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, requestid.FromContext(req.Context()))
}
