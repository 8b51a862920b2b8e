package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifyhub/pkg/logger"
)

// FallbackRenderer produces the in-app title and body stored on the row at
// ingestion time. The template package satisfies this.
type FallbackRenderer interface {
	RenderFallback(category Category, context map[string]any) (title, body string, err error)
}

// Ingestor is the synchronous entry point producers call when a backend
// event happens. It writes the notification row and nothing else: no
// channel I/O, no template lookups beyond the in-app fallback, so the call
// completes in bounded time on the producer's request path.
type Ingestor struct {
	storage  Storage
	renderer FallbackRenderer
	log      *slog.Logger
}

// IngestorOption configures an Ingestor.
type IngestorOption func(*Ingestor)

// WithIngestorLogger sets the logger for the Ingestor.
func WithIngestorLogger(log *slog.Logger) IngestorOption {
	return func(i *Ingestor) {
		i.log = log
	}
}

// NewIngestor creates an ingestion hook over the given storage. The renderer
// may be nil, in which case rows carry an empty fallback title/body.
func NewIngestor(storage Storage, renderer FallbackRenderer, opts ...IngestorOption) *Ingestor {
	i := &Ingestor{
		storage:  storage,
		renderer: renderer,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Notify creates exactly one notification row for the request and returns
// its id. Concurrent retries carrying the same idempotency key resolve to
// the same row. A storage failure returns an error wrapping
// ErrStoreUnavailable; callers log it and continue, since a notification
// failure must never roll back the producer's own work.
func (i *Ingestor) Notify(ctx context.Context, req Request) (string, error) {
	if req.RecipientID == "" {
		return "", ErrMissingRecipient
	}
	if !req.Category.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidCategory, req.Category)
	}

	var title, body string
	if i.renderer != nil {
		var err error
		title, body, err = i.renderer.RenderFallback(req.Category, req.Context)
		if err != nil {
			// A broken fallback template is a boot-time configuration error;
			// hitting it here means the catalog changed under us. The row is
			// still written so the recipient is not left unaware.
			i.log.LogAttrs(ctx, slog.LevelError, "in-app fallback render failed",
				logger.Category(req.Category),
				logger.Error(err),
			)
		}
	}

	n := Notification{
		ID:             uuid.New().String(),
		RecipientID:    req.RecipientID,
		Category:       req.Category,
		Title:          title,
		Body:           body,
		Refs:           req.Refs,
		Delivery:       make(map[Channel]DeliveryStatus),
		IdempotencyKey: req.IdempotencyKey,
		CreatedAt:      time.Now(),
	}

	err := i.storage.Create(ctx, n)
	switch {
	case err == nil:
		return n.ID, nil
	case errors.Is(err, ErrAlreadyExists) && req.IdempotencyKey != "":
		existing, findErr := i.storage.FindByIdempotencyKey(ctx, req.RecipientID, req.IdempotencyKey)
		if findErr != nil {
			return "", errors.Join(ErrStoreUnavailable, findErr)
		}
		return existing.ID, nil
	default:
		return "", errors.Join(ErrStoreUnavailable, err)
	}
}
