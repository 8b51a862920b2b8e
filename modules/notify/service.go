package notify

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/notifyhub/handler"
	"github.com/dmitrymomot/notifyhub/pkg/binder"
	"github.com/dmitrymomot/notifyhub/pkg/dispatch"
	"github.com/dmitrymomot/notifyhub/pkg/logger"
	"github.com/dmitrymomot/notifyhub/pkg/notification"
	"github.com/dmitrymomot/notifyhub/pkg/preference"
)

// Service is the HTTP surface of the notification engine: producers post
// events in, recipients read their feed and manage channel preferences.
type Service struct {
	ingestor   *notification.Ingestor
	dispatcher *dispatch.Dispatcher
	storage    notification.Storage
	prefs      *preference.Resolver
	log        *slog.Logger
}

// ServiceOption configures the Service.
type ServiceOption func(*Service)

// WithServiceLogger sets the logger.
func WithServiceLogger(log *slog.Logger) ServiceOption {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

func NewService(
	ingestor *notification.Ingestor,
	dispatcher *dispatch.Dispatcher,
	storage notification.Storage,
	prefs *preference.Resolver,
	opts ...ServiceOption,
) *Service {
	s := &Service{
		ingestor:   ingestor,
		dispatcher: dispatcher,
		storage:    storage,
		prefs:      prefs,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Handle() http.Handler {
	r := chi.NewRouter()
	errorHandler := handler.LogErrors(s.log)

	r.Post("/notifications", handler.Wrap(s.send,
		handler.WithBinders[handler.Context, SendRequest](binder.JSON()),
		handler.WithErrorHandler[handler.Context, SendRequest](errorHandler),
	))

	r.Get("/users/{user_id}/notifications", handler.Wrap(s.list,
		handler.WithBinders[handler.Context, FeedRequest](
			binder.Path(chi.URLParam),
			binder.Query(),
		),
		handler.WithErrorHandler[handler.Context, FeedRequest](errorHandler),
	))

	r.Post("/users/{user_id}/notifications/{id}/read", handler.Wrap(s.markRead,
		handler.WithBinders[handler.Context, MarkReadRequest](binder.Path(chi.URLParam)),
		handler.WithErrorHandler[handler.Context, MarkReadRequest](errorHandler),
	))

	r.Post("/users/{user_id}/notifications/read-all", handler.Wrap(s.markAllRead,
		handler.WithBinders[handler.Context, MarkAllReadRequest](binder.Path(chi.URLParam)),
		handler.WithErrorHandler[handler.Context, MarkAllReadRequest](errorHandler),
	))

	r.Get("/users/{user_id}/preferences", handler.Wrap(s.getPreferences,
		handler.WithBinders[handler.Context, PreferencesRequest](binder.Path(chi.URLParam)),
		handler.WithErrorHandler[handler.Context, PreferencesRequest](errorHandler),
	))

	r.Put("/users/{user_id}/preferences", handler.Wrap(s.updatePreferences,
		handler.WithBinders[handler.Context, UpdatePreferencesRequest](
			binder.Path(chi.URLParam),
			binder.JSON(),
		),
		handler.WithErrorHandler[handler.Context, UpdatePreferencesRequest](errorHandler),
	))

	return r
}

// SendRequest is the producer-facing ingestion payload.
type SendRequest struct {
	RecipientID    string         `json:"recipient_id"`
	Category       string         `json:"category"`
	Context        map[string]any `json:"context,omitempty"`
	OrderID        string         `json:"order_id,omitempty"`
	PaymentID      string         `json:"payment_id,omitempty"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
}

// SendResponse acknowledges an accepted notification.
type SendResponse struct {
	ID string `json:"id"`
}

func (s *Service) send(ctx handler.Context, req SendRequest) handler.Response {
	id, err := s.ingestor.Notify(ctx, notification.Request{
		RecipientID: req.RecipientID,
		Category:    notification.Category(req.Category),
		Context:     req.Context,
		Refs: notification.CorrelationRefs{
			OrderID:   req.OrderID,
			PaymentID: req.PaymentID,
		},
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return handler.JSONError(s.mapError(err))
	}

	n, err := s.storage.Get(ctx, req.RecipientID, id)
	if err != nil {
		return handler.JSONError(s.mapError(err))
	}

	if err := s.dispatcher.Dispatch(ctx, *n, req.Context); err != nil {
		// The row is already persisted; the recipient still sees it in-app.
		s.log.ErrorContext(ctx, "dispatch failed after ingestion",
			logger.NotificationID(id),
			logger.Error(err))
	}

	return handler.JSON(SendResponse{ID: id}, handler.WithJSONStatus(http.StatusAccepted))
}

// FeedRequest paginates and filters a recipient's notification feed.
type FeedRequest struct {
	UserID     string `path:"user_id" json:"-"`
	Limit      int    `query:"limit"`
	Offset     int    `query:"offset"`
	OnlyUnread bool   `query:"unread"`
	Category   string `query:"category"`
	Since      string `query:"since"` // RFC 3339
}

func (s *Service) list(ctx handler.Context, req FeedRequest) handler.Response {
	opts := notification.ListOptions{
		Limit:      req.Limit,
		Offset:     req.Offset,
		OnlyUnread: req.OnlyUnread,
		Category:   notification.Category(req.Category),
	}
	if req.Since != "" {
		since, err := time.Parse(time.RFC3339, req.Since)
		if err != nil {
			verr := handler.NewValidationError()
			verr.Add("since", "must be an RFC 3339 timestamp")
			return handler.JSONError(verr)
		}
		opts.Since = &since
	}

	items, err := s.storage.List(ctx, req.UserID, opts)
	if err != nil {
		return handler.JSONError(s.mapError(err))
	}
	unread, err := s.storage.CountUnread(ctx, req.UserID)
	if err != nil {
		return handler.JSONError(s.mapError(err))
	}

	return handler.JSON(items, handler.WithJSONMeta(map[string]any{
		"unread_count": unread,
	}))
}

// MarkReadRequest identifies one notification to mark read.
type MarkReadRequest struct {
	UserID string `path:"user_id"`
	ID     string `path:"id"`
}

func (s *Service) markRead(ctx handler.Context, req MarkReadRequest) handler.Response {
	if err := s.storage.MarkRead(ctx, req.UserID, req.ID); err != nil {
		return handler.JSONError(s.mapError(err))
	}
	return handler.Empty()
}

// MarkAllReadRequest identifies the recipient whose feed is marked read.
type MarkAllReadRequest struct {
	UserID string `path:"user_id"`
}

func (s *Service) markAllRead(ctx handler.Context, req MarkAllReadRequest) handler.Response {
	if err := s.storage.MarkAllRead(ctx, req.UserID); err != nil {
		return handler.JSONError(s.mapError(err))
	}
	return handler.Empty()
}

// PreferencesRequest identifies the user whose settings are fetched.
type PreferencesRequest struct {
	UserID string `path:"user_id"`
}

func (s *Service) getPreferences(ctx handler.Context, req PreferencesRequest) handler.Response {
	settings, err := s.prefs.Settings(ctx, req.UserID)
	if err != nil {
		return handler.JSONError(s.mapError(err))
	}
	return handler.JSON(settings)
}

// UpdatePreferencesRequest replaces a user's channel opt-ins. Categories
// absent from the map fall back to their defaults.
type UpdatePreferencesRequest struct {
	UserID   string                     `path:"user_id" json:"-"`
	Channels map[string]map[string]bool `json:"channels"`
}

func (s *Service) updatePreferences(ctx handler.Context, req UpdatePreferencesRequest) handler.Response {
	settings := preference.Settings{
		UserID:   req.UserID,
		Channels: make(map[notification.Category]preference.ChannelSet, len(req.Channels)),
	}
	for category, set := range req.Channels {
		channels := make(preference.ChannelSet, len(set))
		for ch, enabled := range set {
			channels[notification.Channel(ch)] = enabled
		}
		settings.Channels[notification.Category(category)] = channels
	}

	if err := s.prefs.Save(ctx, settings); err != nil {
		return handler.JSONError(s.mapError(err))
	}

	saved, err := s.prefs.Settings(ctx, req.UserID)
	if err != nil {
		return handler.JSONError(s.mapError(err))
	}
	return handler.JSON(saved)
}

// mapError translates domain errors into HTTP semantics.
func (s *Service) mapError(err error) error {
	switch {
	case errors.Is(err, notification.ErrNotFound), errors.Is(err, preference.ErrNotFound):
		return handler.ErrNotFound

	case errors.Is(err, notification.ErrMissingRecipient):
		verr := handler.NewValidationError()
		verr.Add("recipient_id", "is required")
		return verr

	case errors.Is(err, notification.ErrInvalidCategory):
		verr := handler.NewValidationError()
		verr.Add("category", "is not a known category")
		return verr

	case errors.Is(err, preference.ErrInvalidSettings):
		verr := handler.NewValidationError()
		verr.Add("channels", err.Error())
		return verr

	case errors.Is(err, notification.ErrStoreUnavailable), errors.Is(err, preference.ErrStoreUnavailable):
		return handler.ErrServiceUnavailable

	default:
		return err
	}
}
