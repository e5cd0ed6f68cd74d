// Package retry carries the backoff policy shared by the remote provider
// adapters. Transient provider failures are retried locally; everything else
// surfaces to the caller unmodified.
package retry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 2 * time.Second
	DefaultMaxDelay    = 10 * time.Second
)

// Policy describes how an operation is retried: a fixed attempt ceiling, an
// exponential backoff schedule, and a predicate selecting retryable errors.
// The zero value retries nothing; use Default for the standard provider
// policy.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// Retryable reports whether an error is worth another attempt. A nil
	// predicate treats every error as retryable.
	Retryable func(error) bool
}

func Default(retryable func(error) bool) Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
		Retryable:   retryable,
	}
}

// Do runs op until it succeeds, a non-retryable error occurs, the attempt
// ceiling is reached, or ctx is done. The last error is returned as-is.
func (p Policy) Do(ctx context.Context, op func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.BaseDelay
	bo.MaxInterval = p.MaxDelay

	wrapped := func() error {
		err := op()
		if err == nil {
			return nil
		}

		if p.Retryable != nil && !p.Retryable(err) {
			return backoff.Permanent(err)
		}

		return err
	}

	return backoff.Retry(wrapped,
		backoff.WithContext(
			backoff.WithMaxRetries(bo, uint64(attempts-1)), ctx,
		),
	)
}

// IsTransient reports whether a provider error is worth retrying: rate
// limits, timeouts, server-side failures, or anything that never produced an
// API response at all.
func IsTransient(err error) bool {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		switch apierr.StatusCode {
		case http.StatusRequestTimeout,
			http.StatusConflict,
			http.StatusTooManyRequests:
			return true
		}

		return apierr.StatusCode >= http.StatusInternalServerError
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	return true
}
