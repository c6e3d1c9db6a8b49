/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package evals

import "sync"

// Grade represents a grade with score and reasoning
type Grade struct {
	Score     float64
	Reasoning string
}

// ResultCollector wraps an Observer to collect failure messages and grades.
// A nil inner Observer is allowed; the collector then only records.
type ResultCollector struct {
	inner    Observer
	failures []string
	logs     []string
	grades   []Grade
	total    int64
	mu       sync.Mutex
}

// NewResultCollector creates a new ResultCollector that wraps the given Observer
func NewResultCollector(inner Observer) *ResultCollector {
	return &ResultCollector{inner: inner}
}

// Fail logs the failure message and stores it in the failures list
func (r *ResultCollector) Fail(msg string) {
	if r.inner != nil {
		r.inner.Log(msg)
	}
	r.mu.Lock()
	r.failures = append(r.failures, msg)
	r.mu.Unlock()
}

// Log passes through to the inner observer and keeps the message
func (r *ResultCollector) Log(msg string) {
	if r.inner != nil {
		r.inner.Log(msg)
	}
	r.mu.Lock()
	r.logs = append(r.logs, msg)
	r.mu.Unlock()
}

// Grade passes through to the inner observer and stores the grade
func (r *ResultCollector) Grade(score float64, reasoning string) {
	if r.inner != nil {
		r.inner.Grade(score, reasoning)
	}
	r.mu.Lock()
	r.grades = append(r.grades, Grade{Score: score, Reasoning: reasoning})
	r.mu.Unlock()
}

// Failures returns a copy of all collected failure messages
func (r *ResultCollector) Failures() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.failures...)
}

// Logs returns a copy of all collected log messages
func (r *ResultCollector) Logs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.logs...)
}

// Grades returns a copy of all collected grades
func (r *ResultCollector) Grades() []Grade {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Grade(nil), r.grades...)
}

// Passed reports whether no failure was recorded.
func (r *ResultCollector) Passed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.failures) == 0
}

// Increment passes through to the inner observer
func (r *ResultCollector) Increment() {
	if r.inner != nil {
		r.inner.Increment()
	}
	r.mu.Lock()
	r.total++
	r.mu.Unlock()
}

// Total returns the number of evaluations seen by this collector
func (r *ResultCollector) Total() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}
