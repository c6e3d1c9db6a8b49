/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package retry retries model calls that fail with rate limit or transient
// server errors, backing off exponentially with random jitter.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/chainguard-dev/clog"
)

// ErrExhausted is wrapped by the error returned once every attempt failed.
var ErrExhausted = errors.New("retries exhausted")

// Config controls how often and how patiently a call is retried.
type Config struct {
	// MaxRetries is the number of attempts after the first; 0 disables retry.
	MaxRetries int `env:"MAX_RETRIES, default=5"`
	// BaseBackoff is the delay before the first retry.
	BaseBackoff time.Duration `env:"BASE_BACKOFF, default=1s"`
	// MaxBackoff caps the exponential delay.
	MaxBackoff time.Duration `env:"MAX_BACKOFF, default=60s"`
	// MaxJitter bounds the random delay added to each backoff.
	MaxJitter time.Duration `env:"MAX_JITTER, default=500ms"`
}

// Validate checks that no duration or count is negative.
func (c Config) Validate() error {
	var errs []error
	if c.MaxRetries < 0 {
		errs = append(errs, errors.New("max retries cannot be negative"))
	}
	if c.BaseBackoff < 0 {
		errs = append(errs, errors.New("base backoff cannot be negative"))
	}
	if c.MaxBackoff < 0 {
		errs = append(errs, errors.New("max backoff cannot be negative"))
	}
	if c.MaxJitter < 0 {
		errs = append(errs, errors.New("max jitter cannot be negative"))
	}
	return errors.Join(errs...)
}

// Default returns the configuration used for judge calls. Quota errors on
// hosted models take a while to clear, so the backoff starts at a second.
func Default() Config {
	return Config{
		MaxRetries:  5,
		BaseBackoff: time.Second,
		MaxBackoff:  time.Minute,
		MaxJitter:   500 * time.Millisecond,
	}
}

// Backoff returns the delay before retry number attempt (zero based),
// without jitter.
func (c Config) Backoff(attempt int) time.Duration {
	if attempt > 30 {
		return c.MaxBackoff
	}
	return min(c.BaseBackoff<<attempt, c.MaxBackoff)
}

func (c Config) jitter() time.Duration {
	if c.MaxJitter <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(c.MaxJitter)))
	if err != nil {
		return 0
	}
	return time.Duration(n.Int64())
}

// Do calls fn until it succeeds, returns an error retryable rejects, or the
// attempts run out. Cancelling ctx stops the wait between attempts.
func Do[T any](ctx context.Context, cfg Config, operation string, retryable func(error) bool, fn func(context.Context) (T, error)) (T, error) {
	var (
		result  T
		lastErr error
	)
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		result, lastErr = fn(ctx)
		if lastErr == nil {
			return result, nil
		}
		if !retryable(lastErr) || attempt == cfg.MaxRetries {
			break
		}

		wait := cfg.Backoff(attempt) + cfg.jitter()
		clog.FromContext(ctx).With("operation", operation).
			With("attempt", attempt+1).
			With("max_retries", cfg.MaxRetries).
			With("backoff", wait).
			With("error", lastErr.Error()).
			Warn("Model call failed transiently, retrying")

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(wait):
		}
	}
	if !retryable(lastErr) {
		return result, lastErr
	}
	return result, fmt.Errorf("%s failed after %d retries: %w", operation, cfg.MaxRetries, errors.Join(ErrExhausted, lastErr))
}

// transientMarkers are fragments of error text that indicate quota or
// overload conditions on hosted model APIs.
var transientMarkers = []string{
	"429", "503", "504", "529",
	"resource exhausted", "resource_exhausted",
	"rate limit", "overloaded", "quota exceeded",
	"internal error", "server error", "deadline exceeded",
}

// Transient reports whether err looks like a quota or overload failure from
// its message. It is the fallback for SDKs that do not expose status codes.
func Transient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, m := range transientMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// StatusCodes returns a classifier accepting the given HTTP status codes, as
// extracted by code.
func StatusCodes(code func(error) (int, bool), codes ...int) func(error) bool {
	return func(err error) bool {
		c, ok := code(err)
		if !ok {
			return false
		}
		for _, want := range codes {
			if c == want {
				return true
			}
		}
		return false
	}
}
