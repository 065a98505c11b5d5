// Package retry runs provider calls with a bounded number of attempts and a backoff policy,
// and paces them with a rate limiter.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Policy returns how long to wait after the given failed attempt (0-based).
type Policy interface {
	NextDelay(attempt int) time.Duration
}

// Exponential doubles the delay after each failure, starting at Initial and capped at Max.
// A zero Max means no cap.
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

// NextDelay implements Policy.
func (e Exponential) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 30 {
		attempt = 30
	}
	d := e.Initial << attempt
	if e.Max > 0 && d > e.Max {
		d = e.Max
	}
	return d
}

// NoDelay retries immediately. Used in tests.
type NoDelay struct{}

// NextDelay implements Policy.
func (NoDelay) NextDelay(int) time.Duration { return 0 }

type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying; Do returns it after the current attempt.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Do calls fn until it succeeds, returns a permanent error, or maxAttempts calls have failed.
// The wait between attempts is cut short when ctx is done.
func Do(ctx context.Context, maxAttempts int, policy Policy, fn func(attempt int) error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if policy == nil {
		policy = NoDelay{}
	}

	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err = fn(attempt); err == nil {
			return nil
		}
		var p *permanentError
		if errors.As(err, &p) {
			return p.err
		}
		if attempt == maxAttempts-1 {
			break
		}

		delay := policy.NextDelay(attempt)
		if delay <= 0 {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fmt.Errorf("%w (last error: %v)", ctxErr, err)
			}
			continue
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w (last error: %v)", ctx.Err(), err)
		case <-timer.C:
		}
	}
	return fmt.Errorf("gave up after %d attempts: %w", maxAttempts, err)
}
