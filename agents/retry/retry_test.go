/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package retry_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"chainguard.dev/agenteval/agents/retry"
)

func testConfig() retry.Config {
	return retry.Config{
		MaxRetries:  3,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  10 * time.Millisecond,
		MaxJitter:   time.Millisecond,
	}
}

func always(err error) bool { return err != nil }

func TestDoSuccess(t *testing.T) {
	t.Parallel()
	var attempts atomic.Int32
	got, err := retry.Do(context.Background(), testConfig(), "judge", always, func(context.Context) (string, error) {
		attempts.Add(1)
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if got != "ok" {
		t.Errorf("result: got = %q, wanted = %q", got, "ok")
	}
	if n := attempts.Load(); n != 1 {
		t.Errorf("attempts: got = %d, wanted = 1", n)
	}
}

func TestDoRecovers(t *testing.T) {
	t.Parallel()
	var attempts atomic.Int32
	got, err := retry.Do(context.Background(), testConfig(), "judge", always, func(context.Context) (int, error) {
		if n := attempts.Add(1); n < 3 {
			return 0, errors.New("429 Too Many Requests")
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if got != 42 {
		t.Errorf("result: got = %d, wanted = 42", got)
	}
	if n := attempts.Load(); n != 3 {
		t.Errorf("attempts: got = %d, wanted = 3", n)
	}
}

func TestDoExhausted(t *testing.T) {
	t.Parallel()
	var attempts atomic.Int32
	cause := errors.New("503 overloaded")
	_, err := retry.Do(context.Background(), testConfig(), "judge", always, func(context.Context) (string, error) {
		attempts.Add(1)
		return "", cause
	})
	if !errors.Is(err, retry.ErrExhausted) {
		t.Errorf("error: got = %v, wanted wrapping %v", err, retry.ErrExhausted)
	}
	if !errors.Is(err, cause) {
		t.Errorf("error: got = %v, wanted wrapping %v", err, cause)
	}
	if n := attempts.Load(); n != 4 {
		t.Errorf("attempts: got = %d, wanted = 4", n)
	}
}

func TestDoPermanent(t *testing.T) {
	t.Parallel()
	var attempts atomic.Int32
	cause := errors.New("400 bad request")
	_, err := retry.Do(context.Background(), testConfig(), "judge", func(error) bool { return false }, func(context.Context) (string, error) {
		attempts.Add(1)
		return "", cause
	})
	if err != cause {
		t.Errorf("error: got = %v, wanted = %v", err, cause)
	}
	if n := attempts.Load(); n != 1 {
		t.Errorf("attempts: got = %d, wanted = 1", n)
	}
}

func TestDoCancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cfg := testConfig()
	cfg.BaseBackoff = time.Hour
	cfg.MaxBackoff = time.Hour

	var attempts atomic.Int32
	_, err := retry.Do(ctx, cfg, "judge", always, func(context.Context) (string, error) {
		attempts.Add(1)
		cancel()
		return "", errors.New("429")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error: got = %v, wanted = %v", err, context.Canceled)
	}
	if n := attempts.Load(); n != 1 {
		t.Errorf("attempts: got = %d, wanted = 1", n)
	}
}

func TestDoNoRetries(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.MaxRetries = 0
	var attempts atomic.Int32
	_, err := retry.Do(context.Background(), cfg, "judge", always, func(context.Context) (string, error) {
		attempts.Add(1)
		return "", errors.New("529")
	})
	if err == nil {
		t.Fatal("Do: got nil error, wanted failure")
	}
	if n := attempts.Load(); n != 1 {
		t.Errorf("attempts: got = %d, wanted = 1", n)
	}
}

func TestBackoff(t *testing.T) {
	t.Parallel()
	cfg := retry.Config{BaseBackoff: time.Second, MaxBackoff: 10 * time.Second}
	for attempt, want := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second} {
		if got := cfg.Backoff(attempt); got != want {
			t.Errorf("Backoff(%d): got = %v, wanted = %v", attempt, got, want)
		}
	}
	if got := cfg.Backoff(100); got != cfg.MaxBackoff {
		t.Errorf("Backoff(100): got = %v, wanted = %v", got, cfg.MaxBackoff)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	if err := retry.Default().Validate(); err != nil {
		t.Errorf("Default().Validate: %v", err)
	}
	bad := retry.Config{MaxRetries: -1, MaxJitter: -time.Second}
	if err := bad.Validate(); err == nil {
		t.Error("Validate: got nil error, wanted failure")
	}
}

func TestTransient(t *testing.T) {
	t.Parallel()
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("Error 429: RESOURCE_EXHAUSTED"), true},
		{errors.New("model is Overloaded"), true},
		{fmt.Errorf("call: %w", errors.New("quota exceeded for project")), true},
		{errors.New("invalid argument: prompt too long"), false},
		{context.Canceled, false},
	}
	for _, tt := range tests {
		if got := retry.Transient(tt.err); got != tt.want {
			t.Errorf("Transient(%v): got = %v, wanted = %v", tt.err, got, tt.want)
		}
	}
}

func TestStatusCodes(t *testing.T) {
	t.Parallel()
	type coded struct{ error }
	code := func(err error) (int, bool) {
		var c coded
		if errors.As(err, &c) {
			return 429, true
		}
		return 0, false
	}
	check := retry.StatusCodes(code, 429, 503)
	if !check(fmt.Errorf("wrapped: %w", coded{errors.New("limited")})) {
		t.Error("StatusCodes: got = false, wanted = true for 429")
	}
	if check(errors.New("plain")) {
		t.Error("StatusCodes: got = true, wanted = false for uncoded error")
	}
}
