/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package testevals

import (
	"fmt"
	"sync/atomic"
	"testing"

	"chainguard.dev/agenteval/agents/evals"
)

// Option configures an observer.
type Option func(*observer)

// WithMinScore fails the test for any grade below score.
func WithMinScore(score float64) Option {
	return func(o *observer) {
		o.minScore = score
		o.enforce = true
	}
}

// observer wraps a testing.TB to implement evals.Observer
type observer struct {
	tb       testing.TB
	prefix   string
	minScore float64
	enforce  bool
	count    atomic.Int64
}

// New creates a new Observer from a testing.TB
func New(tb testing.TB, opts ...Option) evals.Observer {
	return NewPrefix(tb, "", opts...)
}

// NewPrefix creates a new Observer from a testing.TB with a message prefix
func NewPrefix(tb testing.TB, prefix string, opts ...Option) evals.Observer {
	o := &observer{tb: tb, prefix: prefix}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *observer) format(msg string) string {
	if o.prefix == "" {
		return msg
	}
	return o.prefix + ": " + msg
}

// Fail marks the test as failed with the given message
func (o *observer) Fail(msg string) {
	o.tb.Helper()
	o.tb.Error(o.format(msg))
}

// Log logs a message
func (o *observer) Log(msg string) {
	o.tb.Helper()
	o.tb.Log(o.format(msg))
}

// Grade logs the score, failing the test when it is below the minimum.
func (o *observer) Grade(score float64, reasoning string) {
	o.tb.Helper()
	msg := o.format(fmt.Sprintf("Grade: %.2f - %s", score, reasoning))
	if o.enforce && score < o.minScore {
		o.tb.Errorf("%s (wanted >= %.2f)", msg, o.minScore)
		return
	}
	o.tb.Log(msg)
}

// Increment increments the observation counter
func (o *observer) Increment() {
	o.count.Add(1)
}

// Total returns the number of observed instances
func (o *observer) Total() int64 {
	return o.count.Load()
}
