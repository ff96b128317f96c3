// Package backoff provides the named retry policy shared by the renderer and
// the structurer, plus the context-aware pauses used for courtesy delays.
package backoff

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"net"
	"time"
)

// Policy describes how many times an operation runs and how long to wait
// between attempts.
type Policy struct {
	// Name labels the policy in logs.
	Name string
	// MaxAttempts counts the first try. Values below 1 mean 1.
	MaxAttempts int
	// BaseDelay is the wait before the second attempt.
	BaseDelay time.Duration
	// MaxDelay caps any single wait.
	MaxDelay time.Duration
	// Exponential doubles the delay on every attempt when set; otherwise the
	// delay is fixed at BaseDelay.
	Exponential bool
	// Jitter randomizes each wait within [delay/2, delay).
	Jitter bool
}

// Fixed returns a policy with a constant delay between attempts.
func Fixed(name string, attempts int, delay time.Duration) Policy {
	return Policy{Name: name, MaxAttempts: attempts, BaseDelay: delay, MaxDelay: delay, Jitter: true}
}

// Exponential returns a jittered exponential policy.
func Exponential(name string, attempts int, base, maxDelay time.Duration) Policy {
	return Policy{
		Name:        name,
		MaxAttempts: attempts,
		BaseDelay:   base,
		MaxDelay:    maxDelay,
		Exponential: true,
		Jitter:      true,
	}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// ShouldRetry decides whether err warrants another attempt after attempt
// (1-based) attempts have run.
func (p Policy) ShouldRetry(err error, attempt int) bool {
	if err == nil || attempt >= p.attempts() {
		return false
	}
	var perm *permanentError
	if errors.As(err, &perm) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return true
}

// Delay returns the wait before attempt+1.
func (p Policy) Delay(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	delay := float64(p.BaseDelay)
	if p.Exponential && attempt > 1 {
		delay *= math.Pow(2, float64(attempt-1))
	}
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	if !p.Jitter {
		return time.Duration(delay)
	}
	half := time.Duration(delay / 2)
	return half + randomUpTo(half)
}

func (p Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Do runs fn until it succeeds, the policy gives up or ctx ends. The last
// error is returned wrapped with the policy name.
func (p Policy) Do(ctx context.Context, pauser Pauser, fn func(ctx context.Context, attempt int) error) error {
	if pauser == nil {
		pauser = TimerPauser{}
	}
	var err error
	for attempt := 1; ; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err != nil {
				return fmt.Errorf("%s: %w", p.label(), err)
			}
			return fmt.Errorf("%s: %w", p.label(), ctxErr)
		}
		err = fn(ctx, attempt)
		if err == nil {
			return nil
		}
		if !p.ShouldRetry(err, attempt) {
			return fmt.Errorf("%s: after %d attempt(s): %w", p.label(), attempt, unwrapPermanent(err))
		}
		if pauseErr := pauser.Pause(ctx, p.Delay(attempt)); pauseErr != nil {
			return fmt.Errorf("%s: %w", p.label(), err)
		}
	}
}

func (p Policy) label() string {
	if p.Name == "" {
		return "retry"
	}
	return p.Name
}

func unwrapPermanent(err error) error {
	var perm *permanentError
	if errors.As(err, &perm) {
		return perm.err
	}
	return err
}

func randomUpTo(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
