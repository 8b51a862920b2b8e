package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifyhub/pkg/adapter"
	"github.com/dmitrymomot/notifyhub/pkg/notification"
	"github.com/dmitrymomot/notifyhub/pkg/template"
)

// Renderer produces channel-ready text for a job. The template renderer
// implements it.
type Renderer interface {
	Render(category notification.Category, channel notification.Channel, context map[string]any) (template.Rendered, error)
}

// Worker claims delivery jobs under an exclusive lease and runs them
// through the channel adapters. Concurrency is bounded by a semaphore;
// each claimed job is processed in its own goroutine with panic
// recovery, so a misbehaving adapter cannot take the pool down.
type Worker struct {
	jobs     JobStore
	storage  notification.Storage
	resolver ChannelResolver
	renderer Renderer
	adapters map[notification.Channel]adapter.Adapter

	workerID uuid.UUID
	sem      chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	stopMu   sync.Mutex
	stopping atomic.Bool

	pollInterval   time.Duration
	leaseDuration  time.Duration
	attemptTimeout time.Duration
	backoffBase    time.Duration
	backoffCap     time.Duration
	log            *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

func NewWorker(jobs JobStore, storage notification.Storage, resolver ChannelResolver, renderer Renderer, adapters []adapter.Adapter, opts ...WorkerOption) (*Worker, error) {
	if jobs == nil {
		return nil, ErrStoreNil
	}
	if len(adapters) == 0 {
		return nil, ErrNoAdapters
	}

	options := defaultWorkerOptions()
	for _, opt := range opts {
		opt(options)
	}

	byChannel := make(map[notification.Channel]adapter.Adapter, len(adapters))
	for _, a := range adapters {
		byChannel[a.Channel()] = a
	}

	return &Worker{
		jobs:           jobs,
		storage:        storage,
		resolver:       resolver,
		renderer:       renderer,
		adapters:       byChannel,
		workerID:       uuid.New(),
		sem:            make(chan struct{}, options.concurrency),
		pollInterval:   options.pollInterval,
		leaseDuration:  options.leaseDuration,
		attemptTimeout: options.attemptTimeout,
		backoffBase:    options.backoffBase,
		backoffCap:     options.backoffCap,
		log:            options.log,
	}, nil
}

// Start begins claiming jobs in the background.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return ErrAlreadyStarted
	}
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	w.stopping.Store(false)
	go w.run()

	w.log.Info("dispatch worker started",
		slog.String("worker_id", w.workerID.String()),
		slog.Int("concurrency", cap(w.sem)))
	return nil
}

// Stop cancels the poll loop and waits for in-flight jobs to finish.
func (w *Worker) Stop() error {
	w.mu.Lock()
	if w.cancel == nil {
		w.mu.Unlock()
		return ErrNotStarted
	}

	w.stopMu.Lock()
	w.stopping.Store(true)
	w.stopMu.Unlock()

	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	cancel()
	w.wg.Wait()

	w.log.Info("dispatch worker stopped", slog.String("worker_id", w.workerID.String()))
	return nil
}

// Run returns a function suitable for errgroup: start, block on ctx,
// then drain.
func (w *Worker) Run(ctx context.Context) func() error {
	return func() error {
		if err := w.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return w.Stop()
	}
}

func (w *Worker) run() {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			select {
			case w.sem <- struct{}{}:
				w.stopMu.Lock()
				if w.stopping.Load() {
					w.stopMu.Unlock()
					<-w.sem
					return
				}
				w.wg.Add(1)
				w.stopMu.Unlock()

				go func() {
					defer w.wg.Done()
					defer func() { <-w.sem }()

					if err := w.claimAndProcess(); err != nil {
						w.log.Error("job processing failed",
							slog.String("worker_id", w.workerID.String()),
							slog.Any("error", err))
					}
				}()
			default:
				// All slots busy, skip this tick.
			}
		}
	}
}

func (w *Worker) claimAndProcess() error {
	job, err := w.jobs.Claim(w.ctx, w.workerID, w.leaseDuration)
	if err != nil {
		if errors.Is(err, ErrNoJobToClaim) {
			return nil
		}
		return fmt.Errorf("claim job: %w", err)
	}
	return w.Process(job)
}

// Process runs one claimed job end to end. It is exported so tests and
// single-shot tools can drive the pipeline without the poll loop.
func (w *Worker) Process(job *Job) (retErr error) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			retErr = fmt.Errorf("panic delivering %s: %v", job.IdempotencyKey(), r)
			w.log.Error("delivery panicked",
				slog.String("worker_id", w.workerID.String()),
				slog.String("notification_id", job.NotificationID),
				slog.String("channel", string(job.Channel)),
				slog.Any("panic", r))
			_ = w.handleFailure(job, retErr)
		}
	}()

	// Jobs outlive the worker's context during graceful shutdown: the
	// attempt runs under its own deadline, not the poll loop's.
	ctx, cancel := context.WithTimeout(context.Background(), w.attemptTimeout)
	defer cancel()

	if skipped, err := w.recheckPreferences(ctx, job); err != nil || skipped {
		return err
	}

	msg, err := w.render(job)
	if err != nil {
		w.log.Error("render failed, delivery cannot proceed",
			slog.String("notification_id", job.NotificationID),
			slog.String("channel", string(job.Channel)),
			slog.Any("error", err))
		return w.finalize(job, JobStatusFailed, notification.DeliveryStatus{
			Outcome:    notification.OutcomeFailed,
			RetryCount: job.RetryCount,
		}, err.Error())
	}

	ad, ok := w.adapters[job.Channel]
	if !ok {
		return w.finalize(job, JobStatusFailed, notification.DeliveryStatus{
			Outcome:    notification.OutcomeFailed,
			RetryCount: job.RetryCount,
		}, fmt.Sprintf("%s: %s", ErrAdapterNotFound, job.Channel))
	}

	receipt, err := ad.Deliver(ctx, msg)
	if err != nil {
		return w.handleFailure(job, err)
	}

	now := time.Now()
	w.log.Info("delivered",
		slog.String("notification_id", job.NotificationID),
		slog.String("channel", string(job.Channel)),
		slog.String("provider_ref", receipt.ProviderRef),
		slog.Duration("duration", time.Since(start)))

	return w.finalize(job, JobStatusSent, notification.DeliveryStatus{
		Outcome:     notification.OutcomeSent,
		AttemptedAt: &now,
		ProviderRef: receipt.ProviderRef,
		RetryCount:  job.RetryCount,
	}, "")
}

// recheckPreferences re-resolves the recipient's channels at delivery
// time: a user who opted out between enqueue and delivery is skipped,
// not surprised. The in-app feed is exempt, it is always delivered.
// A preference store outage fails open: delivering per the stale answer
// beats dropping the notification.
func (w *Worker) recheckPreferences(ctx context.Context, job *Job) (bool, error) {
	if job.Channel == notification.ChannelInApp || w.resolver == nil {
		return false, nil
	}

	channels, err := w.resolver.Resolve(ctx, job.RecipientID, job.Category)
	if err != nil {
		w.log.Warn("preference recheck failed, delivering anyway",
			slog.String("notification_id", job.NotificationID),
			slog.String("channel", string(job.Channel)),
			slog.Any("error", err))
		return false, nil
	}
	if slices.Contains(channels, job.Channel) {
		return false, nil
	}

	now := time.Now()
	return true, w.finalize(job, JobStatusSkipped, notification.DeliveryStatus{
		Outcome:     notification.OutcomeSkippedPreference,
		AttemptedAt: &now,
		RetryCount:  job.RetryCount,
	}, "channel disabled by recipient preferences")
}

func (w *Worker) render(job *Job) (adapter.Message, error) {
	msg := adapter.Message{
		NotificationID: job.NotificationID,
		RecipientID:    job.RecipientID,
		Category:       job.Category,
		IdempotencyKey: job.IdempotencyKey(),
	}
	if w.renderer == nil {
		return msg, nil
	}

	rendered, err := w.renderer.Render(job.Category, job.Channel, job.Context)
	if err != nil {
		// The in-app row was written with fallback text at ingestion, so
		// feed delivery does not depend on a second successful render.
		if job.Channel == notification.ChannelInApp {
			return msg, nil
		}
		return adapter.Message{}, err
	}
	msg.Title = rendered.Title
	msg.Subject = rendered.Subject
	msg.Body = rendered.Body
	return msg, nil
}

// handleFailure decides between retry and terminal failure. Terminal
// adapter errors and exhausted attempts fail the job; everything else
// goes back to pending with exponential backoff.
func (w *Worker) handleFailure(job *Job, deliverErr error) error {
	attempts := job.RetryCount + 1
	now := time.Now()

	w.log.Error("delivery attempt failed",
		slog.String("worker_id", w.workerID.String()),
		slog.String("notification_id", job.NotificationID),
		slog.String("channel", string(job.Channel)),
		slog.Int("attempt", attempts),
		slog.Int("max_attempts", job.MaxAttempts),
		slog.Any("error", deliverErr))

	if adapter.IsTerminal(deliverErr) || attempts >= job.MaxAttempts {
		if !adapter.IsTerminal(deliverErr) {
			deliverErr = fmt.Errorf("%w: %s", ErrRetriesExhausted, deliverErr)
		}
		return w.finalize(job, JobStatusFailed, notification.DeliveryStatus{
			Outcome:     notification.OutcomeFailed,
			AttemptedAt: &now,
			RetryCount:  attempts,
		}, deliverErr.Error())
	}

	delay := backoff(job.RetryCount, w.backoffBase, w.backoffCap)
	if err := w.jobs.Reschedule(context.Background(), job.ID, deliverErr.Error(), now.Add(delay)); err != nil {
		return fmt.Errorf("reschedule job %s: %w", job.ID, err)
	}

	// Keep the notification row's attempt counter current while the
	// channel stays pending.
	if err := w.storage.SetDeliveryOutcome(context.Background(), job.NotificationID, job.Channel, notification.DeliveryStatus{
		Outcome:     notification.OutcomePending,
		AttemptedAt: &now,
		RetryCount:  attempts,
	}); err != nil && !errors.Is(err, notification.ErrInvalidTransition) {
		return err
	}
	return nil
}

// finalize ends the job and records the channel outcome on the
// notification row. A redelivered job whose outcome already landed is a
// no-op at the storage layer, which is what keeps at-least-once delivery
// from corrupting the row.
func (w *Worker) finalize(job *Job, status JobStatus, delivery notification.DeliveryStatus, lastError string) error {
	if err := w.jobs.Complete(context.Background(), job.ID, status, lastError); err != nil {
		return fmt.Errorf("complete job %s: %w", job.ID, err)
	}
	if err := w.storage.SetDeliveryOutcome(context.Background(), job.NotificationID, job.Channel, delivery); err != nil {
		if errors.Is(err, notification.ErrInvalidTransition) {
			w.log.Warn("channel outcome already recorded",
				slog.String("notification_id", job.NotificationID),
				slog.String("channel", string(job.Channel)),
				slog.String("status", string(status)))
			return nil
		}
		return err
	}
	return nil
}
