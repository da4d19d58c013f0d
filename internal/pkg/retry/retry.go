// Package retry re-runs an operation while it reports a transient condition.
//
// The relay never re-submits a transaction. This package is used to wait on
// conditions that resolve by themselves, such as a receipt that the node does
// not know about yet.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// Unlimited makes Do keep trying until the context ends.
const Unlimited = -1

// ErrExhausted is wrapped into the error returned when MaxRetries is used up.
var ErrExhausted = errors.New("retries exhausted")

// Config holds configuration for retry behavior.
type Config struct {
	// MaxRetries is the maximum number of retry attempts after the first call.
	// 0 means a single call, Unlimited means retry until the context ends.
	MaxRetries int

	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps exponential growth.
	MaxBackoff time.Duration

	// BackoffFactor is the multiplier applied after each retry. 1.0 gives a
	// constant interval.
	BackoffFactor float64

	// Jitter adds rand(0, backoff) to every wait.
	Jitter bool
}

// DefaultConfig returns a short exponential backoff.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     100 * time.Millisecond,
		BackoffFactor:  2.0,
		Jitter:         true,
	}
}

// PollConfig returns a constant-interval config that retries until the context ends.
func PollConfig(interval time.Duration) Config {
	return Config{
		MaxRetries:     Unlimited,
		InitialBackoff: interval,
		MaxBackoff:     interval,
		BackoffFactor:  1.0,
	}
}

// IsRetryableFunc determines if an error should trigger a retry.
type IsRetryableFunc func(error) bool

// OnRetryFunc is called before each retry. attempt is 1-indexed.
type OnRetryFunc func(attempt int, err error, backoff time.Duration)

// Do executes fn, retrying while isRetryable(err) holds.
//
// fn is called at least once. A non-retryable error is returned unwrapped.
// When the context ends while waiting, the context error is returned wrapped
// together with the last error.
//
// Example:
//
//	receipt, err := retry.Do(ctx, retry.PollConfig(time.Second), isNotFound, nil, func() (*types.Receipt, error) {
//	    return client.TransactionReceipt(ctx, hash)
//	})
func Do[T any](
	ctx context.Context,
	cfg Config,
	isRetryable IsRetryableFunc,
	onRetry OnRetryFunc,
	fn func() (T, error),
) (T, error) {
	var zero T

	if cfg.BackoffFactor <= 0 {
		cfg.BackoffFactor = 2.0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 10 * time.Millisecond
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}

	backoff := cfg.InitialBackoff
	var lastErr error

	for attempt := 0; cfg.MaxRetries == Unlimited || attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := backoff
			if cfg.Jitter {
				wait += time.Duration(rand.Int63n(int64(backoff)))
			}
			if onRetry != nil {
				onRetry(attempt, lastErr, wait)
			}

			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, fmt.Errorf("%w (last error: %v)", ctx.Err(), lastErr)
			case <-timer.C:
			}

			backoff = time.Duration(float64(backoff) * cfg.BackoffFactor)
			if backoff > cfg.MaxBackoff {
				backoff = cfg.MaxBackoff
			}
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !isRetryable(err) {
			return zero, err
		}
	}

	return zero, fmt.Errorf("%w after %d retries: %w", ErrExhausted, cfg.MaxRetries, lastErr)
}

// DoVoid is like Do but for functions that don't return a value.
func DoVoid(
	ctx context.Context,
	cfg Config,
	isRetryable IsRetryableFunc,
	onRetry OnRetryFunc,
	fn func() error,
) error {
	_, err := Do(ctx, cfg, isRetryable, onRetry, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}
