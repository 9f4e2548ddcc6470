package webclient

import (
	"context"
	"net/http"
	"time"
)

type AttemptFunc func() (status int, body []byte, err error)

// Retry describes a capped exponential backoff.
type Retry struct {
	Attempts     int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetry is used by the chain clients.
var DefaultRetry = Retry{Attempts: 3, InitialDelay: 500 * time.Millisecond, MaxDelay: 30 * time.Second}

// Transient reports whether an attempt outcome is worth retrying.
func Transient(status int, err error) bool {
	return err != nil || status == http.StatusTooManyRequests || status >= 500
}

// Do retries fn on transient outcomes (429/5xx or transport errors). The last
// outcome is returned unchanged once attempts run out.
func (r Retry) Do(ctx context.Context, fn AttemptFunc) (int, []byte, error) {
	attempts := r.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := r.InitialDelay
	if delay <= 0 {
		delay = 2 * time.Second
	}
	maxDelay := r.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}

	for i := 0; ; i++ {
		status, body, err := fn()
		if !Transient(status, err) || i == attempts-1 {
			return status, body, err
		}
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return status, body, ctx.Err()
		case <-t.C:
		}
		if delay *= 2; delay > maxDelay {
			delay = maxDelay
		}
	}
}

// DoWithRetry is Retry{attempts, initialDelay, 0}.Do(ctx, fn).
func DoWithRetry(ctx context.Context, attempts int, initialDelay time.Duration, fn AttemptFunc) (int, []byte, error) {
	return Retry{Attempts: attempts, InitialDelay: initialDelay}.Do(ctx, fn)
}
