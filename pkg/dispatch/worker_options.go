package dispatch

import (
	"log/slog"
	"time"
)

// WorkerOption is a functional option for configuring a worker.
type WorkerOption func(*workerOptions)

type workerOptions struct {
	concurrency    int
	pollInterval   time.Duration
	leaseDuration  time.Duration
	attemptTimeout time.Duration
	backoffBase    time.Duration
	backoffCap     time.Duration
	log            *slog.Logger
}

func defaultWorkerOptions() *workerOptions {
	return &workerOptions{
		concurrency:    4,
		pollInterval:   time.Second,
		leaseDuration:  time.Minute,
		attemptTimeout: 30 * time.Second,
		backoffBase:    defaultBackoffBase,
		backoffCap:     defaultBackoffCap,
		log:            slog.Default(),
	}
}

// WithConcurrency bounds how many jobs the worker processes at once.
func WithConcurrency(n int) WorkerOption {
	return func(o *workerOptions) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithPollInterval sets how often the worker checks for due jobs.
func WithPollInterval(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithLeaseDuration sets how long a claimed job stays locked before an
// expired lease returns it to the pool.
func WithLeaseDuration(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.leaseDuration = d
		}
	}
}

// WithAttemptTimeout bounds one delivery attempt, vendor call included.
func WithAttemptTimeout(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.attemptTimeout = d
		}
	}
}

// WithBackoff sets the retry backoff curve: base doubled per retry,
// capped at cap.
func WithBackoff(base, cap time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if base > 0 {
			o.backoffBase = base
		}
		if cap > 0 {
			o.backoffCap = cap
		}
	}
}

// WithWorkerLogger sets the logger for the worker.
func WithWorkerLogger(log *slog.Logger) WorkerOption {
	return func(o *workerOptions) {
		if log != nil {
			o.log = log
		}
	}
}
