package dispatch

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryJobStore is an in-memory JobStore for single-process deployments
// and tests. A background manager releases expired leases so jobs held by
// a crashed worker become claimable again.
type MemoryJobStore struct {
	mu     sync.Mutex
	jobs   map[uuid.UUID]*Job
	byPair map[string]uuid.UUID

	leaseTicker *time.Ticker
	done        chan struct{}
	closeOnce   sync.Once
}

func NewMemoryJobStore() *MemoryJobStore {
	s := &MemoryJobStore{
		jobs:        make(map[uuid.UUID]*Job),
		byPair:      make(map[string]uuid.UUID),
		leaseTicker: time.NewTicker(time.Second),
		done:        make(chan struct{}),
	}
	go s.leaseExpirationManager()
	return s
}

// Close stops the lease expiration manager.
func (s *MemoryJobStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.leaseTicker.Stop()
	})
	return nil
}

func (s *MemoryJobStore) Enqueue(_ context.Context, jobs ...Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, job := range jobs {
		pair := job.IdempotencyKey()
		if _, exists := s.byPair[pair]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateJob, pair)
		}
	}
	for _, job := range jobs {
		j := job
		j.Context = maps.Clone(job.Context)
		s.jobs[j.ID] = &j
		s.byPair[j.IdempotencyKey()] = j.ID
	}
	return nil
}

func (s *MemoryJobStore) Claim(_ context.Context, workerID uuid.UUID, lease time.Duration) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var best *Job
	for _, job := range s.jobs {
		if job.Status != JobStatusPending {
			continue
		}
		if job.ScheduledAt.After(now) {
			continue
		}
		if job.LockedUntil != nil && job.LockedUntil.After(now) {
			continue
		}
		// Oldest due job first keeps the ordering fair across channels.
		if best == nil || job.ScheduledAt.Before(best.ScheduledAt) {
			best = job
		}
	}
	if best == nil {
		return nil, ErrNoJobToClaim
	}

	until := now.Add(lease)
	best.Status = JobStatusProcessing
	best.LockedBy = &workerID
	best.LockedUntil = &until
	best.UpdatedAt = now

	claimed := *best
	claimed.Context = maps.Clone(best.Context)
	return &claimed, nil
}

func (s *MemoryJobStore) Complete(_ context.Context, jobID uuid.UUID, status JobStatus, lastError string) error {
	if !status.Terminal() {
		return fmt.Errorf("complete requires a terminal status, got %q", status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	job.Status = status
	job.LastError = lastError
	job.LockedBy = nil
	job.LockedUntil = nil
	job.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryJobStore) Reschedule(_ context.Context, jobID uuid.UUID, lastError string, runAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	job.Status = JobStatusPending
	job.RetryCount++
	job.LastError = lastError
	job.ScheduledAt = runAt
	job.LockedBy = nil
	job.LockedUntil = nil
	job.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryJobStore) Get(_ context.Context, jobID uuid.UUID) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	copied := *job
	copied.Context = maps.Clone(job.Context)
	return &copied, nil
}

// leaseExpirationManager returns jobs whose worker disappeared to the
// pending pool. The attempt counts as a retry on redelivery, not here:
// the retry count only moves when a worker records a failed attempt.
func (s *MemoryJobStore) leaseExpirationManager() {
	for {
		select {
		case <-s.done:
			return
		case <-s.leaseTicker.C:
			s.releaseExpiredLeases()
		}
	}
}

func (s *MemoryJobStore) releaseExpiredLeases() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for _, job := range s.jobs {
		if job.Status != JobStatusProcessing {
			continue
		}
		if job.LockedUntil == nil || job.LockedUntil.After(now) {
			continue
		}
		job.Status = JobStatusPending
		job.LockedBy = nil
		job.LockedUntil = nil
		job.UpdatedAt = now
	}
}
