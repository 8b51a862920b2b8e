package preference

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dmitrymomot/notifyhub/pkg/notification"
)

const defaultCacheTTL = 30 * time.Second

// Resolver answers "which channels does this notification go to" for a
// given user and category. Lookups are served from a short-lived cache so
// dispatch hot paths do not hit the store per job.
type Resolver struct {
	store Store
	ttl   time.Duration
	now   func() time.Time

	mu    sync.RWMutex
	cache map[string]cachedSettings
}

type cachedSettings struct {
	settings  Settings
	expiresAt time.Time
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithCacheTTL overrides how long resolved settings are cached.
// Non-positive values disable caching.
func WithCacheTTL(ttl time.Duration) ResolverOption {
	return func(r *Resolver) {
		r.ttl = ttl
	}
}

func NewResolver(store Store, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		store: store,
		ttl:   defaultCacheTTL,
		now:   time.Now,
		cache: make(map[string]cachedSettings),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the channels enabled for the user and category. Users
// without stored settings resolve to the defaults. Store failures surface:
// the caller decides whether to fall back or park the work.
func (r *Resolver) Resolve(ctx context.Context, userID string, category notification.Category) ([]notification.Channel, error) {
	settings, err := r.Settings(ctx, userID)
	if err != nil {
		return nil, err
	}
	return settings.Resolve(category), nil
}

// Settings returns the effective settings for a user, reading through the
// cache. Missing settings are substituted with defaults and cached too, so
// unconfigured users do not hammer the store.
func (r *Resolver) Settings(ctx context.Context, userID string) (Settings, error) {
	if settings, ok := r.cached(userID); ok {
		return settings, nil
	}

	settings, err := r.store.Get(ctx, userID)
	switch {
	case errors.Is(err, ErrNotFound):
		settings = DefaultSettings(userID)
	case err != nil:
		return Settings{}, err
	}

	r.put(userID, settings)
	return settings, nil
}

// Save writes settings through the store and invalidates the cache entry
// so the next Resolve observes the change.
func (r *Resolver) Save(ctx context.Context, settings Settings) error {
	if err := r.store.Save(ctx, settings); err != nil {
		return err
	}
	r.Invalidate(settings.UserID)
	return nil
}

// Invalidate drops the cached settings for a user.
func (r *Resolver) Invalidate(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, userID)
}

func (r *Resolver) cached(userID string) (Settings, bool) {
	if r.ttl <= 0 {
		return Settings{}, false
	}

	r.mu.RLock()
	entry, ok := r.cache[userID]
	r.mu.RUnlock()
	if !ok || r.now().After(entry.expiresAt) {
		return Settings{}, false
	}
	return entry.settings, true
}

func (r *Resolver) put(userID string, settings Settings) {
	if r.ttl <= 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[userID] = cachedSettings{
		settings:  settings,
		expiresAt: r.now().Add(r.ttl),
	}
}
