package template_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifyhub/pkg/notification"
	"github.com/dmitrymomot/notifyhub/pkg/template"
)

func TestParseCatalog(t *testing.T) {
	t.Parallel()

	t.Run("valid catalog", func(t *testing.T) {
		t.Parallel()

		catalog, err := template.ParseCatalog([]byte(`
order_created:
  inapp:
    title: "Order confirmed"
    body: "Order {{.order_id}} placed"
`))
		require.NoError(t, err)
		assert.Contains(t, catalog, notification.CategoryOrderCreated)
	})

	t.Run("unknown category rejected", func(t *testing.T) {
		t.Parallel()

		_, err := template.ParseCatalog([]byte(`
weekly_digest:
  inapp:
    body: "hi"
`))
		assert.ErrorIs(t, err, template.ErrInvalidCatalog)
	})

	t.Run("unknown channel rejected", func(t *testing.T) {
		t.Parallel()

		_, err := template.ParseCatalog([]byte(`
order_created:
  fax:
    body: "hi"
`))
		assert.ErrorIs(t, err, template.ErrInvalidCatalog)
	})

	t.Run("malformed yaml rejected", func(t *testing.T) {
		t.Parallel()

		_, err := template.ParseCatalog([]byte("order_created: ["))
		assert.ErrorIs(t, err, template.ErrFailedToParseCatalog)
	})
}

func TestNewRenderer_Validation(t *testing.T) {
	t.Parallel()

	t.Run("mail without subject fails at boot", func(t *testing.T) {
		t.Parallel()

		catalog, err := template.ParseCatalog([]byte(`
order_created:
  mail:
    body: "Order placed"
`))
		require.NoError(t, err)

		_, err = template.NewRenderer(catalog)
		assert.ErrorIs(t, err, template.ErrMissingSubject)
	})

	t.Run("empty body fails at boot", func(t *testing.T) {
		t.Parallel()

		catalog, err := template.ParseCatalog([]byte(`
order_created:
  inapp:
    title: "Order confirmed"
    body: ""
`))
		require.NoError(t, err)

		_, err = template.NewRenderer(catalog)
		assert.ErrorIs(t, err, template.ErrMissingBody)
	})

	t.Run("broken template syntax fails at boot", func(t *testing.T) {
		t.Parallel()

		catalog, err := template.ParseCatalog([]byte(`
order_created:
  inapp:
    body: "Order {{.order_id"
`))
		require.NoError(t, err)

		_, err = template.NewRenderer(catalog)
		assert.ErrorIs(t, err, template.ErrInvalidCatalog)
	})

	t.Run("default catalog compiles", func(t *testing.T) {
		t.Parallel()

		catalog, err := template.DefaultCatalog()
		require.NoError(t, err)

		_, err = template.NewRenderer(catalog)
		assert.NoError(t, err)
	})
}

func TestRenderer_Render(t *testing.T) {
	t.Parallel()

	catalog, err := template.DefaultCatalog()
	require.NoError(t, err)
	renderer, err := template.NewRenderer(catalog)
	require.NoError(t, err)

	t.Run("mail renders subject and body", func(t *testing.T) {
		t.Parallel()

		out, err := renderer.Render(notification.CategoryOrderCreated, notification.ChannelMail, map[string]any{
			"order_id":       "A-1042",
			"recipient_name": "Sam",
			"total":          "$41.50",
		})
		require.NoError(t, err)
		assert.Equal(t, "Order A-1042 confirmed", out.Subject)
		assert.Contains(t, out.Body, "A-1042")
	})

	t.Run("missing context variable is an error", func(t *testing.T) {
		t.Parallel()

		_, err := renderer.Render(notification.CategoryOrderCreated, notification.ChannelMail, map[string]any{
			"order_id": "A-1042",
		})
		assert.ErrorIs(t, err, template.ErrRenderFailed)
	})

	t.Run("missing channel template", func(t *testing.T) {
		t.Parallel()

		partial, err := template.ParseCatalog([]byte(`
order_created:
  inapp:
    title: "Order confirmed"
    body: "Order {{.order_id}} placed"
`))
		require.NoError(t, err)
		sparse, err := template.NewRenderer(partial)
		require.NoError(t, err)

		_, err = sparse.Render(notification.CategoryOrderCreated, notification.ChannelSMS, map[string]any{
			"order_id": "A-1042",
		})
		assert.ErrorIs(t, err, template.ErrTemplateNotFound)
	})

	t.Run("default catalog covers sms for order_created", func(t *testing.T) {
		t.Parallel()

		out, err := renderer.Render(notification.CategoryOrderCreated, notification.ChannelSMS, map[string]any{
			"order_id": "A-1042",
		})
		require.NoError(t, err)
		assert.Contains(t, out.Body, "A-1042")
	})

	t.Run("oversized sms body rejected", func(t *testing.T) {
		t.Parallel()

		out, err := renderer.Render(notification.CategoryOrderStatusChanged, notification.ChannelSMS, map[string]any{
			"order_id": "A-1042",
			"status":   strings.Repeat("x", 200),
		})
		assert.ErrorIs(t, err, template.ErrBodyTooLong)
		assert.Empty(t, out.Body)
	})
}

func TestRenderer_Validate(t *testing.T) {
	t.Parallel()

	t.Run("default catalog is complete", func(t *testing.T) {
		t.Parallel()

		catalog, err := template.DefaultCatalog()
		require.NoError(t, err)
		renderer, err := template.NewRenderer(catalog)
		require.NoError(t, err)

		assert.NoError(t, renderer.Validate())
	})

	t.Run("missing pair fails with its name", func(t *testing.T) {
		t.Parallel()

		catalog, err := template.DefaultCatalog()
		require.NoError(t, err)
		delete(catalog[notification.CategoryOrderCreated], notification.ChannelSMS)

		renderer, err := template.NewRenderer(catalog)
		require.NoError(t, err)

		err = renderer.Validate()
		require.ErrorIs(t, err, template.ErrIncompleteCatalog)
		assert.Contains(t, err.Error(), "order_created/sms")
	})

	t.Run("live channel needs no template", func(t *testing.T) {
		t.Parallel()

		catalog, err := template.DefaultCatalog()
		require.NoError(t, err)
		renderer, err := template.NewRenderer(catalog)
		require.NoError(t, err)

		// The catalog has no live entries and still validates; the live
		// channel reuses the in-app payload.
		assert.NoError(t, renderer.Validate())
	})
}

func TestRenderer_RenderFallback(t *testing.T) {
	t.Parallel()

	catalog, err := template.DefaultCatalog()
	require.NoError(t, err)
	renderer, err := template.NewRenderer(catalog)
	require.NoError(t, err)

	title, body, err := renderer.RenderFallback(notification.CategoryPaymentFailed, map[string]any{
		"order_id": "A-1042",
	})
	require.NoError(t, err)
	assert.Equal(t, "Payment failed", title)
	assert.Contains(t, body, "A-1042")
}

func TestCatalog_Merge(t *testing.T) {
	t.Parallel()

	base, err := template.DefaultCatalog()
	require.NoError(t, err)

	overlay, err := template.ParseCatalog([]byte(`
order_created:
  inapp:
    title: "Bestellung bestätigt"
    body: "Bestellung {{.order_id}} aufgegeben"
`))
	require.NoError(t, err)

	merged := base.Merge(overlay)
	renderer, err := template.NewRenderer(merged)
	require.NoError(t, err)

	out, err := renderer.Render(notification.CategoryOrderCreated, notification.ChannelInApp, map[string]any{
		"order_id": "A-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "Bestellung bestätigt", out.Title)

	// Channels not named in the overlay stay intact.
	assert.True(t, renderer.Has(notification.CategoryOrderCreated, notification.ChannelMail))
}
