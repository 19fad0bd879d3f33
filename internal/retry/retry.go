// Package retry wraps outbound provider calls in bounded exponential
// backoff with jitter. Only errors classified as transient are retried;
// everything else propagates immediately.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"syscall"
	"time"

	"google.golang.org/api/googleapi"
)

type Policy struct {
	// MaxRetries bounds the total number of attempts.
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Factor     float64
}

// DefaultPolicy allows 3 attempts, delaying 1s, 2s, 4s... capped at 30s,
// each delay stretched by up to 10% random jitter.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
		Factor:     2,
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.MaxRetries <= 0 {
		p.MaxRetries = d.MaxRetries
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = d.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = d.MaxDelay
	}
	if p.Factor <= 1 {
		p.Factor = d.Factor
	}
	return p
}

// Delay returns the backoff before the given attempt (1-based), without
// jitter: min(maxDelay, baseDelay * factor^(attempt-1)).
func (p Policy) Delay(attempt int) time.Duration {
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * p.Factor)
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// transientError marks an error as retryable regardless of its type.
type transientError struct {
	err error
}

func (e transientError) Error() string { return e.err.Error() }
func (e transientError) Unwrap() error { return e.err }

// Transient wraps err so Retryable reports true for it. Provider adapters
// use it for backend-specific signals (e.g. an HTTP 429 from a bespoke
// API) the generic classifier cannot see.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return transientError{err: err}
}

// Retryable classifies an error as transient: rate-limit signals,
// 5xx-class responses and known flaky network conditions qualify.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var te transientError
	if errors.As(err, &te) {
		return true
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if gerr.Code == 429 || (gerr.Code >= 500 && gerr.Code < 600) {
			return true
		}
		for _, e := range gerr.Errors {
			if e.Reason == "rateLimitExceeded" || e.Reason == "userRateLimitExceeded" {
				return true
			}
		}
		return false
	}

	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	return errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE)
}

// Do runs op, retrying transient failures according to the policy. When
// retries are exhausted the last error is returned.
func Do[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, error) {
	p = p.withDefaults()

	var zero T
	for attempt := 1; ; attempt++ {
		res, err := op(ctx)
		if err == nil {
			return res, nil
		}
		if !Retryable(err) || attempt >= p.MaxRetries {
			return zero, err
		}
		delay := p.Delay(attempt)
		delay += time.Duration(rand.Float64() * 0.1 * float64(delay))
		if err := sleep(ctx, delay); err != nil {
			return zero, fmt.Errorf("retry: %w", err)
		}
	}
}

// Run is Do for operations without a result.
func Run(ctx context.Context, p Policy, op func(context.Context) error) error {
	_, err := Do(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

func sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
