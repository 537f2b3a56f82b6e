// Package retry implements bounded retries with exponential backoff.
//
// The policy only decides whether and when to try again. Callers supply the
// predicate that says which failures are worth retrying, so transport code
// can report "retryable" without ever retrying itself.
package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Policy configures retry behavior. MaxAttempts counts the first try.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	Jitter      bool

	// OnRetry is called before sleeping ahead of attempt+1.
	OnRetry func(err error, attempt int, delay time.Duration)

	// Sleep waits for d or until ctx is done. Tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultPolicy returns three attempts with 1s, 2s backoff capped at 10s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    10 * time.Second,
		Multiplier:  2.0,
		Jitter:      true,
	}
}

// Attempts normalizes MaxAttempts to at least one.
func (p Policy) Attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Delay returns the wait before retry number attempt (1-based: the delay
// after the first failure is Delay(1)).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	delay := float64(p.BaseDelay) * math.Pow(multiplier, float64(attempt-1))
	if p.MaxDelay > 0 {
		delay = math.Min(delay, float64(p.MaxDelay))
	}
	if p.Jitter {
		// +/- 50%
		delay *= 0.5 + rand.Float64()
	}
	return time.Duration(delay)
}

// Outcome reports how a retried call ended.
type Outcome struct {
	Attempts int
	// Exhausted is true when the last error was retryable but no attempts
	// were left.
	Exhausted bool
}

// Do calls fn until it succeeds, returns an error that retryable rejects,
// or the attempt budget runs out. Context cancellation stops retries and
// returns the context error.
func Do[T any](ctx context.Context, p Policy, retryable func(error) bool, fn func(ctx context.Context) (T, error)) (T, Outcome, error) {
	var zero T
	attempts := p.Attempts()
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, Outcome{Attempts: attempt - 1}, err
		}

		result, err := fn(ctx)
		if err == nil {
			return result, Outcome{Attempts: attempt}, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, Outcome{Attempts: attempt}, ctx.Err()
		}
		if retryable == nil || !retryable(err) {
			return zero, Outcome{Attempts: attempt}, err
		}
		if attempt == attempts {
			break
		}

		delay := p.Delay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(err, attempt, delay)
		}
		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			return zero, Outcome{Attempts: attempt}, sleepErr
		}
	}

	return zero, Outcome{Attempts: attempts, Exhausted: true}, lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NoSleep is a Sleep implementation that only honours cancellation.
func NoSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}
