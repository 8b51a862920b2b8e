package dispatch

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifyhub/pkg/notification"
)

// JobStatus tracks a delivery job through its lifecycle. Jobs start
// pending, move to processing while a worker holds the lease, and end in
// one of the terminal states mirroring the per-channel outcome.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusSent       JobStatus = "sent"
	JobStatusFailed     JobStatus = "failed"
	JobStatusSkipped    JobStatus = "skipped_preference"
)

// Terminal reports whether the status ends the job's lifecycle.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusSent, JobStatusFailed, JobStatusSkipped:
		return true
	}
	return false
}

// Outcome maps a terminal job status onto the notification's per-channel
// delivery outcome.
func (s JobStatus) Outcome() notification.Outcome {
	switch s {
	case JobStatusSent:
		return notification.OutcomeSent
	case JobStatusFailed:
		return notification.OutcomeFailed
	case JobStatusSkipped:
		return notification.OutcomeSkippedPreference
	default:
		return notification.OutcomePending
	}
}

// Job is one unit of delivery work: a single notification on a single
// channel. The (NotificationID, Channel) pair is the job's identity;
// enqueueing the same pair twice is a duplicate, not a second delivery.
type Job struct {
	ID             uuid.UUID
	NotificationID string
	RecipientID    string
	Category       notification.Category
	Channel        notification.Channel
	Context        map[string]any
	Status         JobStatus
	RetryCount     int
	MaxAttempts    int
	LastError      string
	ScheduledAt    time.Time
	LockedBy       *uuid.UUID
	LockedUntil    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IdempotencyKey is stable across redeliveries of this job, derived from
// the job identity. Adapters forward it to vendors that dedup on it.
func (j Job) IdempotencyKey() string {
	return fmt.Sprintf("%s:%s", j.NotificationID, j.Channel)
}

// NewJob builds a pending job for one channel of a notification.
func NewJob(n notification.Notification, channel notification.Channel, renderCtx map[string]any, maxAttempts int) Job {
	now := time.Now()
	return Job{
		ID:             uuid.New(),
		NotificationID: n.ID,
		RecipientID:    n.RecipientID,
		Category:       n.Category,
		Channel:        channel,
		Context:        renderCtx,
		Status:         JobStatusPending,
		MaxAttempts:    maxAttempts,
		ScheduledAt:    now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
