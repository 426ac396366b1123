// Package poll repeats a status check until it reports completion.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// DefaultInterval matches the long-running-operation cadence of the video API.
const DefaultInterval = 6 * time.Second

var ErrExhausted = errors.New("poll: attempts exhausted")

// Config controls the wait between checks.
type Config struct {
	// Interval is used when BackOff is nil. Zero means DefaultInterval.
	Interval time.Duration
	// MaxAttempts bounds the number of checks. Zero means unbounded.
	MaxAttempts int
	BackOff     backoff.BackOff
	// Sleep waits for d or until ctx is done. Tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

// CheckFunc inspects the remote state once. attempt starts at 1.
type CheckFunc[T any] func(ctx context.Context, attempt int) (value T, done bool, err error)

// Until calls check at least once and returns the value of the first check
// that reports done. An error from check ends the loop immediately.
func Until[T any](ctx context.Context, cfg Config, check CheckFunc[T]) (T, error) {
	var zero T

	b := cfg.BackOff
	if b == nil {
		interval := cfg.Interval
		if interval <= 0 {
			interval = DefaultInterval
		}
		b = backoff.NewConstantBackOff(interval)
	}
	b.Reset()

	sleep := cfg.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("poll cancelled: %w", err)
		}

		v, done, err := check(ctx, attempt)
		if err != nil {
			return zero, err
		}
		if done {
			return v, nil
		}

		if cfg.MaxAttempts > 0 && attempt >= cfg.MaxAttempts {
			return zero, fmt.Errorf("%w after %d checks", ErrExhausted, attempt)
		}
		d := b.NextBackOff()
		if d == backoff.Stop {
			return zero, fmt.Errorf("%w after %d checks", ErrExhausted, attempt)
		}
		if err := sleep(ctx, d); err != nil {
			return zero, fmt.Errorf("poll cancelled: %w", err)
		}
	}
}

// Sleep blocks for d unless ctx is done first.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
