package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/notifyhub/pkg/pg"
)

// PostgresStorage is the production Storage implementation. The delivery
// status map lives in a jsonb column; forward-only transitions are enforced
// in the UPDATE predicate so concurrent writers cannot regress a terminal
// outcome even across processes.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage creates a Storage backed by the given pool. The schema
// is managed by the migrations directory, applied via pg.Migrate.
func NewPostgresStorage(pool *pgxpool.Pool) *PostgresStorage {
	return &PostgresStorage{pool: pool}
}

const notificationColumns = `id, recipient_id, category, title, body, order_ref, payment_ref, idempotency_key, delivery, read_at, created_at`

func (s *PostgresStorage) Create(ctx context.Context, n Notification) error {
	delivery, err := json.Marshal(n.Delivery)
	if err != nil {
		return fmt.Errorf("marshal delivery status: %w", err)
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO notifications (`+notificationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, NULL, $10)`,
		n.ID, n.RecipientID, string(n.Category), n.Title, n.Body,
		n.Refs.OrderID, n.Refs.PaymentID, n.IdempotencyKey, delivery, n.CreatedAt,
	)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *PostgresStorage) FindByIdempotencyKey(ctx context.Context, recipientID, key string) (*Notification, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE recipient_id = $1 AND idempotency_key = $2`,
		recipientID, key,
	)
	return scanNotification(row)
}

func (s *PostgresStorage) Get(ctx context.Context, recipientID, id string) (*Notification, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE id = $1 AND recipient_id = $2`,
		id, recipientID,
	)
	return scanNotification(row)
}

func (s *PostgresStorage) List(ctx context.Context, recipientID string, opts ListOptions) ([]Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE recipient_id = $1`
	args := []any{recipientID}

	if opts.OnlyUnread {
		query += ` AND read_at IS NULL`
	}
	if opts.Category != "" {
		args = append(args, string(opts.Category))
		query += fmt.Sprintf(` AND category = $%d`, len(args))
	}
	if opts.Since != nil {
		args = append(args, *opts.Since)
		query += fmt.Sprintf(` AND created_at > $%d`, len(args))
	}

	// Feed ordering matches the (recipient_id, created_at desc) index.
	query += ` ORDER BY created_at DESC`
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	notifications := []Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, *n)
	}
	return notifications, rows.Err()
}

func (s *PostgresStorage) MarkRead(ctx context.Context, recipientID string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	// read_at IS NULL keeps the timestamp monotonic: the first read wins.
	_, err := s.pool.Exec(ctx, `
		UPDATE notifications
		SET read_at = now()
		WHERE recipient_id = $1 AND id = ANY($2) AND read_at IS NULL`,
		recipientID, ids,
	)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

func (s *PostgresStorage) MarkAllRead(ctx context.Context, recipientID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE notifications
		SET read_at = now()
		WHERE recipient_id = $1 AND read_at IS NULL`,
		recipientID,
	)
	if err != nil {
		return fmt.Errorf("mark all read: %w", err)
	}
	return nil
}

func (s *PostgresStorage) CountUnread(ctx context.Context, recipientID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM notifications
		WHERE recipient_id = $1 AND read_at IS NULL`,
		recipientID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}

func (s *PostgresStorage) SetDeliveryOutcome(ctx context.Context, id string, ch Channel, st DeliveryStatus) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal delivery status: %w", err)
	}

	// The predicate admits the write only while the channel is absent or
	// pending and the retry count does not decrease; terminal outcomes are
	// immutable at the database level.
	tag, err := s.pool.Exec(ctx, `
		UPDATE notifications
		SET delivery = jsonb_set(delivery, ARRAY[$2], $3::jsonb)
		WHERE id = $1
		  AND (NOT delivery ? $2 OR delivery->$2->>'outcome' = 'pending')
		  AND COALESCE((delivery->$2->>'retry_count')::int, 0) <= $4`,
		id, string(ch), payload, st.RetryCount,
	)
	if err != nil {
		return fmt.Errorf("set delivery outcome: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// No row updated: distinguish a missing notification from an illegal
	// transition, and tolerate idempotent rewrites of the same terminal
	// outcome caused by at-least-once redelivery.
	var current Outcome
	err = s.pool.QueryRow(ctx, `
		SELECT COALESCE(delivery->$2->>'outcome', '') FROM notifications WHERE id = $1`,
		id, string(ch),
	).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("read delivery outcome: %w", err)
	}
	if current.Terminal() && current == st.Outcome {
		return nil
	}
	return ErrInvalidTransition
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNotification(row rowScanner) (*Notification, error) {
	var (
		n        Notification
		category string
		idemKey  *string
		delivery []byte
	)
	err := row.Scan(
		&n.ID, &n.RecipientID, &category, &n.Title, &n.Body,
		&n.Refs.OrderID, &n.Refs.PaymentID, &idemKey, &delivery,
		&n.ReadAt, &n.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan notification: %w", err)
	}

	n.Category = Category(category)
	if idemKey != nil {
		n.IdempotencyKey = *idemKey
	}
	n.Delivery = make(map[Channel]DeliveryStatus)
	if len(delivery) > 0 {
		if err := json.Unmarshal(delivery, &n.Delivery); err != nil {
			return nil, fmt.Errorf("decode delivery status: %w", err)
		}
	}
	return &n, nil
}
