package dispatch

import "time"

const (
	defaultBackoffBase = 30 * time.Second
	defaultBackoffCap  = 10 * time.Minute
)

// backoff computes the delay before the next attempt: base doubled per
// completed retry, capped so a flapping vendor does not push retries out
// past the point of usefulness.
func backoff(retryCount int, base, cap time.Duration) time.Duration {
	if base <= 0 {
		base = defaultBackoffBase
	}
	if cap <= 0 {
		cap = defaultBackoffCap
	}

	delay := base
	for range retryCount {
		delay *= 2
		if delay >= cap {
			return cap
		}
	}
	return min(delay, cap)
}
