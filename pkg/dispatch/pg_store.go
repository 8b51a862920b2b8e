package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/notifyhub/pkg/notification"
	"github.com/dmitrymomot/notifyhub/pkg/pg"
)

// PostgresJobStore persists delivery jobs in the delivery_jobs table.
// Claiming uses FOR UPDATE SKIP LOCKED inside a single UPDATE, so
// concurrent workers never lease the same job. A processing row whose
// lease expired is claimable again, so a crashed worker's job is picked
// up by the next poll instead of stranding the delivery.
type PostgresJobStore struct {
	pool *pgxpool.Pool
}

func NewPostgresJobStore(pool *pgxpool.Pool) *PostgresJobStore {
	return &PostgresJobStore{pool: pool}
}

func (s *PostgresJobStore) Enqueue(ctx context.Context, jobs ...Job) error {
	if len(jobs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, job := range jobs {
		renderCtx, err := json.Marshal(job.Context)
		if err != nil {
			return fmt.Errorf("encode render context for %s: %w", job.IdempotencyKey(), err)
		}
		batch.Queue(
			`INSERT INTO delivery_jobs
			   (id, notification_id, recipient_id, category, channel, context,
			    status, retry_count, max_attempts, scheduled_at, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)`,
			job.ID, job.NotificationID, job.RecipientID, string(job.Category), string(job.Channel),
			renderCtx, string(JobStatusPending), job.RetryCount, job.MaxAttempts,
			job.ScheduledAt, job.CreatedAt,
		)
	}

	// The batch runs in one transaction so a duplicate anywhere in it
	// leaves no partial insert behind.
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	results := tx.SendBatch(ctx, batch)
	for range jobs {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			if pg.IsDuplicateKeyError(err) {
				return fmt.Errorf("%w: %v", ErrDuplicateJob, err)
			}
			return err
		}
	}
	if err := results.Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresJobStore) Claim(ctx context.Context, workerID uuid.UUID, lease time.Duration) (*Job, error) {
	until := time.Now().Add(lease)
	row := s.pool.QueryRow(ctx,
		`UPDATE delivery_jobs SET
		   status = 'processing',
		   locked_by = $1,
		   locked_until = $2,
		   updated_at = now()
		 WHERE id = (
		   SELECT id FROM delivery_jobs
		   WHERE scheduled_at <= now()
		     AND (status = 'pending'
		          OR (status = 'processing' AND locked_until <= now()))
		   ORDER BY scheduled_at
		   FOR UPDATE SKIP LOCKED
		   LIMIT 1
		 )
		 RETURNING id, notification_id, recipient_id, category, channel, context,
		           status, retry_count, max_attempts, last_error,
		           scheduled_at, locked_by, locked_until, created_at, updated_at`,
		workerID, until,
	)

	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoJobToClaim
		}
		return nil, err
	}
	return job, nil
}

func (s *PostgresJobStore) Complete(ctx context.Context, jobID uuid.UUID, status JobStatus, lastError string) error {
	if !status.Terminal() {
		return fmt.Errorf("complete requires a terminal status, got %q", status)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE delivery_jobs SET
		   status = $2,
		   last_error = NULLIF($3, ''),
		   locked_by = NULL,
		   locked_until = NULL,
		   updated_at = now()
		 WHERE id = $1`,
		jobID, string(status), lastError,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (s *PostgresJobStore) Reschedule(ctx context.Context, jobID uuid.UUID, lastError string, runAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE delivery_jobs SET
		   status = 'pending',
		   retry_count = retry_count + 1,
		   last_error = $2,
		   scheduled_at = $3,
		   locked_by = NULL,
		   locked_until = NULL,
		   updated_at = now()
		 WHERE id = $1`,
		jobID, lastError, runAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (s *PostgresJobStore) Get(ctx context.Context, jobID uuid.UUID) (*Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, notification_id, recipient_id, category, channel, context,
		        status, retry_count, max_attempts, last_error,
		        scheduled_at, locked_by, locked_until, created_at, updated_at
		 FROM delivery_jobs WHERE id = $1`,
		jobID,
	)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return job, nil
}

func scanJob(row pgx.Row) (*Job, error) {
	var (
		job       Job
		category  string
		channel   string
		status    string
		renderCtx []byte
		lastError *string
	)
	err := row.Scan(
		&job.ID, &job.NotificationID, &job.RecipientID, &category, &channel, &renderCtx,
		&status, &job.RetryCount, &job.MaxAttempts, &lastError,
		&job.ScheduledAt, &job.LockedBy, &job.LockedUntil, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Category = notification.Category(category)
	job.Channel = notification.Channel(channel)
	job.Status = JobStatus(status)
	if lastError != nil {
		job.LastError = *lastError
	}
	if len(renderCtx) > 0 {
		if err := json.Unmarshal(renderCtx, &job.Context); err != nil {
			return nil, fmt.Errorf("decode render context for job %s: %w", job.ID, err)
		}
	}
	return &job, nil
}
