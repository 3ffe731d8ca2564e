// ABOUTME: Bounded exponential-backoff retry policy for outbound calls
// ABOUTME: Retries transport failures and 5xx responses, never 4xx or cancellation

package upstream

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/2389/session-gateway/internal/apierr"
)

// RetryPolicy controls how failed idempotent calls are retried.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
}

// DefaultRetryPolicy returns 3 attempts, 200ms initial delay, 2x multiplier,
// 2s max delay.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     2 * time.Second,
	}
}

// ShouldRetry reports whether err is retryable and attempt (1-indexed) is
// below MaxAttempts.
func (p *RetryPolicy) ShouldRetry(err error, attempt int) bool {
	if attempt >= p.MaxAttempts {
		return false
	}
	return IsRetryable(err)
}

// IsRetryable classifies an outbound failure. Transport errors (including a
// per-attempt timeout) and 5xx responses are transient. 4xx responses,
// cancellation, and errors that did not come from an upstream call are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var e *apierr.Error
	if !errors.As(err, &e) || e.Kind != apierr.KindUpstream {
		return false
	}
	if e.UpstreamStatus == 0 {
		return true
	}
	return e.UpstreamStatus >= 500
}

// NextDelay returns the backoff for attempt (1-indexed):
// InitialDelay * Multiplier^(attempt-1), capped at MaxDelay.
func (p *RetryPolicy) NextDelay(attempt int) time.Duration {
	delay := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

// Execute runs fn until it succeeds, fails permanently, or MaxAttempts is
// reached. A nil policy runs fn exactly once. Waiting between attempts stops
// when ctx is done, returning the last error from fn.
func (p *RetryPolicy) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if p == nil || p.MaxAttempts <= 1 {
		return fn(ctx)
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil || !p.ShouldRetry(err, attempt) {
			return err
		}

		timer := time.NewTimer(p.NextDelay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}
	return lastErr
}
