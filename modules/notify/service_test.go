package notify_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifyhub/modules/notify"
	"github.com/dmitrymomot/notifyhub/pkg/bus"
	"github.com/dmitrymomot/notifyhub/pkg/dispatch"
	"github.com/dmitrymomot/notifyhub/pkg/live"
	"github.com/dmitrymomot/notifyhub/pkg/notification"
	"github.com/dmitrymomot/notifyhub/pkg/preference"
	"github.com/dmitrymomot/notifyhub/pkg/template"
)

func newTokenIssuer() (*live.TokenIssuer, error) {
	return live.NewTokenIssuer(live.TokenConfig{Secret: "test-secret"})
}

func newLiveManager(issuer *live.TokenIssuer) *live.Manager {
	return live.NewManager(bus.NewMemoryBus(), notification.NewMemoryStorage(), issuer)
}

type testEnv struct {
	server  *httptest.Server
	storage *notification.MemoryStorage
	jobs    *dispatch.MemoryJobStore
	bus     *bus.MemoryBus
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	catalog, err := template.DefaultCatalog()
	require.NoError(t, err)
	renderer, err := template.NewRenderer(catalog)
	require.NoError(t, err)

	storage := notification.NewMemoryStorage()
	jobs := dispatch.NewMemoryJobStore()
	eventBus := bus.NewMemoryBus()
	prefs := preference.NewResolver(preference.NewMemoryStore())

	ingestor := notification.NewIngestor(storage, renderer)
	dispatcher := dispatch.NewDispatcher(prefs, storage, jobs, eventBus)

	svc := notify.NewService(ingestor, dispatcher, storage, prefs)
	server := httptest.NewServer(notify.Router(notify.RouterOptions{API: svc}))
	t.Cleanup(func() {
		server.Close()
		jobs.Close()
		_ = eventBus.Close()
	})

	return &testEnv{server: server, storage: storage, jobs: jobs, bus: eventBus}
}

func (env *testEnv) postJSON(t *testing.T, path string, body any) *http.Response {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(env.server.URL+path, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	return resp
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()

	var envelope struct {
		Data T              `json:"data"`
		Meta map[string]any `json:"meta"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return envelope.Data
}

func TestService_Send(t *testing.T) {
	t.Parallel()

	t.Run("accepts and persists", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)

		resp := env.postJSON(t, "/notifications", map[string]any{
			"recipient_id": "user-1",
			"category":     "order_created",
			"context":      map[string]any{"order_number": "SO-1001"},
			"order_id":     "order-77",
		})
		require.Equal(t, http.StatusAccepted, resp.StatusCode)

		ack := decodeJSON[notify.SendResponse](t, resp)
		require.NotEmpty(t, ack.ID)

		stored, err := env.storage.Get(context.Background(), "user-1", ack.ID)
		require.NoError(t, err)
		assert.Equal(t, notification.CategoryOrderCreated, stored.Category)
		assert.Equal(t, "order-77", stored.Refs.OrderID)
		assert.NotEmpty(t, stored.Title)

		// Dispatch ran: the in-app channel is tracked as pending.
		assert.Equal(t, notification.OutcomePending, stored.Delivery[notification.ChannelInApp].Outcome)
	})

	t.Run("rejects unknown category", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)

		resp := env.postJSON(t, "/notifications", map[string]any{
			"recipient_id": "user-1",
			"category":     "carrier_pigeon",
		})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})

	t.Run("rejects missing recipient", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)

		resp := env.postJSON(t, "/notifications", map[string]any{
			"category": "system",
		})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})

	t.Run("duplicate idempotency key returns same id", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)

		payload := map[string]any{
			"recipient_id":    "user-1",
			"category":        "system",
			"idempotency_key": "evt-123",
		}
		first := decodeJSON[notify.SendResponse](t, env.postJSON(t, "/notifications", payload))
		second := decodeJSON[notify.SendResponse](t, env.postJSON(t, "/notifications", payload))
		assert.Equal(t, first.ID, second.ID)
	})
}

func TestService_Feed(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	for range 3 {
		resp := env.postJSON(t, "/notifications", map[string]any{
			"recipient_id": "user-1",
			"category":     "system",
		})
		resp.Body.Close()
	}

	resp, err := http.Get(env.server.URL + "/users/user-1/notifications?limit=2")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var envelope struct {
		Data []notification.Notification `json:"data"`
		Meta map[string]any              `json:"meta"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	assert.Len(t, envelope.Data, 2)
	assert.Equal(t, float64(3), envelope.Meta["unread_count"])
}

func TestService_MarkRead(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	ack := decodeJSON[notify.SendResponse](t, env.postJSON(t, "/notifications", map[string]any{
		"recipient_id": "user-1",
		"category":     "system",
	}))

	resp, err := http.Post(env.server.URL+"/users/user-1/notifications/"+ack.ID+"/read", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	stored, err := env.storage.Get(context.Background(), "user-1", ack.ID)
	require.NoError(t, err)
	assert.True(t, stored.Read())

	t.Run("unknown notification is 404", func(t *testing.T) {
		resp, err := http.Post(env.server.URL+"/users/user-1/notifications/nope/read", "application/json", nil)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestService_MarkAllRead(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	for range 2 {
		resp := env.postJSON(t, "/notifications", map[string]any{
			"recipient_id": "user-1",
			"category":     "system",
		})
		resp.Body.Close()
	}

	resp, err := http.Post(env.server.URL+"/users/user-1/notifications/read-all", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	unread, err := env.storage.CountUnread(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Zero(t, unread)
}

func TestService_Preferences(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	t.Run("defaults for unknown user", func(t *testing.T) {
		resp, err := http.Get(env.server.URL + "/users/user-9/preferences")
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		settings := decodeJSON[preference.Settings](t, resp)
		assert.Equal(t, "user-9", settings.UserID)
	})

	t.Run("update round trip", func(t *testing.T) {
		payload := map[string]any{
			"channels": map[string]any{
				"order_created": map[string]bool{"mail": true, "sms": true},
			},
		}
		body, err := json.Marshal(payload)
		require.NoError(t, err)

		req, err := http.NewRequest(http.MethodPut, env.server.URL+"/users/user-1/preferences", bytes.NewReader(body))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		settings := decodeJSON[preference.Settings](t, resp)
		assert.True(t, settings.Channels[notification.CategoryOrderCreated][notification.ChannelMail])
		assert.True(t, settings.Channels[notification.CategoryOrderCreated][notification.ChannelSMS])
	})

	t.Run("rejects live channel toggles", func(t *testing.T) {
		payload := map[string]any{
			"channels": map[string]any{
				"order_created": map[string]bool{"live": false},
			},
		}
		body, err := json.Marshal(payload)
		require.NoError(t, err)

		req, err := http.NewRequest(http.MethodPut, env.server.URL+"/users/user-1/preferences", bytes.NewReader(body))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})
}

func TestLiveService_Token(t *testing.T) {
	t.Parallel()

	issuer, err := newTokenIssuer()
	require.NoError(t, err)
	manager := newLiveManager(issuer)
	t.Cleanup(func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_ = manager.Shutdown(ctx)
	})

	svc := notify.NewLiveService(issuer, manager)
	server := httptest.NewServer(notify.Router(notify.RouterOptions{Live: svc}))
	t.Cleanup(server.Close)

	t.Run("issues token", func(t *testing.T) {
		resp, err := http.Post(server.URL+"/live/token", "application/json",
			bytes.NewReader([]byte(`{"user_id":"user-1"}`)))
		require.NoError(t, err)
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		token := decodeJSON[notify.TokenResponse](t, resp)
		assert.NotEmpty(t, token.Token)

		userID, err := issuer.Verify(token.Token)
		require.NoError(t, err)
		assert.Equal(t, "user-1", userID)
	})

	t.Run("rejects missing user", func(t *testing.T) {
		resp, err := http.Post(server.URL+"/live/token", "application/json",
			bytes.NewReader([]byte(`{"user_id":""}`)))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})
}
