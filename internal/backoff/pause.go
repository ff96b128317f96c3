package backoff

import (
	"context"
	"time"
)

// Pauser suspends the caller for a delay unless ctx ends first.
type Pauser interface {
	Pause(ctx context.Context, d time.Duration) error
}

// TimerPauser waits on a timer.
type TimerPauser struct{}

// Pause blocks for d or until ctx is done, returning ctx.Err() in the latter
// case.
func (TimerPauser) Pause(ctx context.Context, d time.Duration) error {
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

// Between picks a random delay in [lo, hi]. A hi below lo yields lo.
func Between(lo, hi time.Duration) time.Duration {
	if lo < 0 {
		lo = 0
	}
	if hi <= lo {
		return lo
	}
	return lo + randomUpTo(hi-lo+1)
}
