package notify

import "time"

const maxBackoff = time.Hour

// RetryPolicy schedules redelivery of failed notifications with exponential
// backoff.
type RetryPolicy struct {
	Base        time.Duration
	MaxAttempts int
}

// Next returns when to retry after the given number of failed attempts, or
// nil once the attempts are used up.
func (p RetryPolicy) Next(attempts int, now time.Time) *time.Time {
	if attempts >= p.MaxAttempts {
		return nil
	}
	delay := p.Base
	for i := 1; i < attempts && delay < maxBackoff; i++ {
		delay *= 2
	}
	delay = min(delay, maxBackoff)
	at := now.Add(delay)
	return &at
}
