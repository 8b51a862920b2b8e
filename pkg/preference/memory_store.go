package preference

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/dmitrymomot/notifyhub/pkg/notification"
)

// MemoryStore is an in-memory Store implementation for development
// and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]Settings
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]Settings)}
}

func (s *MemoryStore) Get(_ context.Context, userID string) (Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	settings, ok := s.data[userID]
	if !ok {
		return Settings{}, ErrNotFound
	}
	return cloneSettings(settings), nil
}

func (s *MemoryStore) Save(_ context.Context, settings Settings) error {
	if err := Validate(settings); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	settings.UpdatedAt = time.Now()
	s.data[settings.UserID] = cloneSettings(settings)
	return nil
}

func cloneSettings(settings Settings) Settings {
	channels := make(map[notification.Category]ChannelSet, len(settings.Channels))
	for category, set := range settings.Channels {
		channels[category] = maps.Clone(set)
	}
	settings.Channels = channels
	return settings
}
