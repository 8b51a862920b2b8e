package preference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/notifyhub/pkg/notification"
)

// PostgresStore persists preference settings as a single jsonb document
// per user.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Get(ctx context.Context, userID string) (Settings, error) {
	var (
		raw       []byte
		updatedAt time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT channels, updated_at FROM notification_preferences WHERE user_id = $1`,
		userID,
	).Scan(&raw, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Settings{}, ErrNotFound
		}
		return Settings{}, errors.Join(ErrStoreUnavailable, err)
	}

	channels := make(map[notification.Category]ChannelSet)
	if err := json.Unmarshal(raw, &channels); err != nil {
		return Settings{}, fmt.Errorf("decode preference document for %s: %w", userID, err)
	}

	return Settings{UserID: userID, Channels: channels, UpdatedAt: updatedAt}, nil
}

func (s *PostgresStore) Save(ctx context.Context, settings Settings) error {
	if err := Validate(settings); err != nil {
		return err
	}

	raw, err := json.Marshal(settings.Channels)
	if err != nil {
		return fmt.Errorf("encode preference document for %s: %w", settings.UserID, err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO notification_preferences (user_id, channels, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (user_id) DO UPDATE SET channels = EXCLUDED.channels, updated_at = now()`,
		settings.UserID, raw,
	)
	if err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}
