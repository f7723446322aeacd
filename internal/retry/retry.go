// Package retry runs fallible operations under a bounded attempt budget and
// provides the cancellable waits used for backoff and politeness pauses.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// Range is a delay interval. A fixed delay has Min == Max.
type Range struct {
	Min time.Duration `yaml:"min"`
	Max time.Duration `yaml:"max"`
}

// Fixed returns a Range that always picks d.
func Fixed(d time.Duration) Range {
	return Range{Min: d, Max: d}
}

// Pick returns a uniformly random duration in [Min, Max].
func (r Range) Pick() time.Duration {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + time.Duration(rand.Int63n(int64(r.Max-r.Min)+1))
}

// Sleep blocks for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ExhaustedError is returned when every attempt failed.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Policy bounds how often an operation is attempted and how long to wait
// between attempts.
type Policy struct {
	MaxAttempts int
	Delay       Range

	// Sleep defaults to the package Sleep.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnRetry is called after a failed attempt that will be retried.
	OnRetry func(attempt int, err error)
}

// Do calls op until it succeeds or MaxAttempts calls have failed. Every
// error counts as a failed attempt. The last error is returned inside an
// *ExhaustedError. Cancellation of ctx stops further attempts.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if attempt == attempts {
			break
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}
		if err := sleep(ctx, p.Delay.Pick()); err != nil {
			return zero, err
		}
	}
	return zero, &ExhaustedError{Attempts: attempts, Err: lastErr}
}

// IsExhausted reports whether err came from a policy running out of attempts.
func IsExhausted(err error) bool {
	var ex *ExhaustedError
	return errors.As(err, &ex)
}
