package preference

import (
	"time"

	"github.com/dmitrymomot/notifyhub/pkg/notification"
)

// ChannelSet holds the per-channel enablement flags for a single category.
// Channels absent from the map fall back to the category default.
type ChannelSet map[notification.Channel]bool

// Settings is a user's notification preference document. Categories absent
// from the map resolve to the default channel set (in-app only).
type Settings struct {
	UserID    string                               `json:"user_id"`
	Channels  map[notification.Category]ChannelSet `json:"channels"`
	UpdatedAt time.Time                            `json:"updated_at"`
}

// DefaultSettings returns the settings applied to users who never saved any:
// every category delivers to the in-app feed only.
func DefaultSettings(userID string) Settings {
	return Settings{
		UserID:   userID,
		Channels: make(map[notification.Category]ChannelSet),
	}
}

// Enabled reports whether the given channel is enabled for the category.
// In-app delivery can never be disabled.
func (s Settings) Enabled(category notification.Category, channel notification.Channel) bool {
	if channel == notification.ChannelInApp {
		return true
	}
	set, ok := s.Channels[category]
	if !ok {
		return false
	}
	return set[channel]
}

// deliverableChannels is the ordering channels are resolved in. Live delivery
// is not listed: the broadcast path is not preference-gated.
var deliverableChannels = []notification.Channel{
	notification.ChannelInApp,
	notification.ChannelMail,
	notification.ChannelSMS,
	notification.ChannelPush,
}

// Resolve computes the enabled channel list for a category from these
// settings alone, without touching the store. Non-suppressible categories
// ignore opt-outs for in-app and mail; sms and push still require an opt-in
// because they depend on user-provided contact endpoints.
func (s Settings) Resolve(category notification.Category) []notification.Channel {
	channels := make([]notification.Channel, 0, len(deliverableChannels))
	for _, ch := range deliverableChannels {
		switch {
		case s.Enabled(category, ch):
			channels = append(channels, ch)
		case !category.Suppressible() && ch == notification.ChannelMail:
			channels = append(channels, ch)
		}
	}
	return channels
}
