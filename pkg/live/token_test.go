package live

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenIssuer(t *testing.T) {
	t.Parallel()

	t.Run("round trip", func(t *testing.T) {
		t.Parallel()

		issuer, err := NewTokenIssuer(TokenConfig{Secret: "test-secret", TTL: time.Minute})
		require.NoError(t, err)

		token, err := issuer.Issue("user-1")
		require.NoError(t, err)

		userID, err := issuer.Verify(token)
		require.NoError(t, err)
		assert.Equal(t, "user-1", userID)
	})

	t.Run("expired token", func(t *testing.T) {
		t.Parallel()

		issuer, err := NewTokenIssuer(TokenConfig{Secret: "test-secret", TTL: -time.Minute})
		require.NoError(t, err)
		// Negative TTL falls back to the default, so craft expiry
		// directly with a tiny TTL instead.
		issuer.ttl = -time.Minute

		token, err := issuer.Issue("user-1")
		require.NoError(t, err)

		_, err = issuer.Verify(token)
		assert.ErrorIs(t, err, ErrTokenExpired)
	})

	t.Run("wrong secret", func(t *testing.T) {
		t.Parallel()

		issuer, err := NewTokenIssuer(TokenConfig{Secret: "secret-a"})
		require.NoError(t, err)
		other, err := NewTokenIssuer(TokenConfig{Secret: "secret-b"})
		require.NoError(t, err)

		token, err := issuer.Issue("user-1")
		require.NoError(t, err)

		_, err = other.Verify(token)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("garbage token", func(t *testing.T) {
		t.Parallel()

		issuer, err := NewTokenIssuer(TokenConfig{Secret: "test-secret"})
		require.NoError(t, err)

		_, err = issuer.Verify("not-a-jwt")
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("missing secret rejected", func(t *testing.T) {
		t.Parallel()

		_, err := NewTokenIssuer(TokenConfig{})
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("empty user rejected", func(t *testing.T) {
		t.Parallel()

		issuer, err := NewTokenIssuer(TokenConfig{Secret: "test-secret"})
		require.NoError(t, err)

		_, err = issuer.Issue("")
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})
}
