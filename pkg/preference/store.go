package preference

import (
	"context"

	"github.com/dmitrymomot/notifyhub/pkg/notification"
)

// Store persists user preference settings.
type Store interface {
	// Get returns the stored settings for a user, or ErrNotFound when the
	// user never saved any.
	Get(ctx context.Context, userID string) (Settings, error)

	// Save upserts the full settings document for a user.
	Save(ctx context.Context, settings Settings) error
}

// Validate rejects settings referencing unknown categories or channels
// before they reach the store.
func Validate(settings Settings) error {
	if settings.UserID == "" {
		return ErrInvalidSettings
	}
	for category, set := range settings.Channels {
		if !category.Valid() {
			return ErrInvalidSettings
		}
		for channel := range set {
			if !channel.Valid() || channel == notification.ChannelLive {
				return ErrInvalidSettings
			}
		}
	}
	return nil
}
