/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package evals

import (
	"path"
	"slices"
	"strings"
	"sync"

	"chainguard.dev/agenteval/agents/agenttrace"
)

// Observer receives the outcome of dimension evaluations and trace checks.
type Observer interface {
	// Fail records that a dimension could not score or a check did not hold.
	Fail(string)
	// Log records an informational message.
	Log(string)
	// Grade records a normalized score in [0, 1] with its summary. It is
	// called at most once per evaluation.
	Grade(score float64, reasoning string)
	// Increment is called once per evaluation, before its outcome.
	Increment()
	// Total returns the number of evaluations observed.
	Total() int64
}

// Check inspects a completed trace and reports problems to an Observer.
type Check func(Observer, *agenttrace.Trace)

// Inject binds a Check to an Observer, yielding a TraceCallback that counts
// the trace and then runs the check on it.
func Inject(obs Observer, check Check) agenttrace.TraceCallback {
	return func(trace *agenttrace.Trace) {
		obs.Increment()
		check(obs, trace)
	}
}

// NamespacedObserver is a tree of observers keyed by slash separated paths.
// The runner keys it by agent type and then dimension, so the node for
// analysis_quality on the cmo agent is "/cmo/analysis_quality".
type NamespacedObserver[T Observer] struct {
	name    string
	inner   T
	factory func(string) T

	mu       sync.Mutex
	children map[string]*NamespacedObserver[T]
}

// NewNamespacedObserver creates the root node "/". factory builds the
// observer of every node from its path.
func NewNamespacedObserver[T Observer](factory func(string) T) *NamespacedObserver[T] {
	return newNode("/", factory)
}

func newNode[T Observer](name string, factory func(string) T) *NamespacedObserver[T] {
	return &NamespacedObserver[T]{
		name:     name,
		inner:    factory(name),
		factory:  factory,
		children: make(map[string]*NamespacedObserver[T]),
	}
}

// Name returns the node's path.
func (n *NamespacedObserver[T]) Name() string { return n.name }

// Inner returns the node's own observer.
func (n *NamespacedObserver[T]) Inner() T { return n.inner }

func (n *NamespacedObserver[T]) Fail(msg string) { n.inner.Fail(msg) }
func (n *NamespacedObserver[T]) Log(msg string) { n.inner.Log(msg) }
func (n *NamespacedObserver[T]) Grade(score float64, why string) { n.inner.Grade(score, why) }
func (n *NamespacedObserver[T]) Increment() { n.inner.Increment() }
func (n *NamespacedObserver[T]) Total() int64 { return n.inner.Total() }

// Child returns the direct child with the given name, creating it on first
// use. Concurrent callers get the same node.
func (n *NamespacedObserver[T]) Child(name string) *NamespacedObserver[T] {
	n.mu.Lock()
	defer n.mu.Unlock()
	if child, ok := n.children[name]; ok {
		return child
	}
	child := newNode(path.Join(n.name, name), n.factory)
	n.children[name] = child
	return child
}

// Path descends through Child once per element, so Path("cmo", "structure")
// is Child("cmo").Child("structure").
func (n *NamespacedObserver[T]) Path(names ...string) *NamespacedObserver[T] {
	node := n
	for _, name := range names {
		node = node.Child(name)
	}
	return node
}

// Walk visits the node and then its descendants depth first, children in
// path order.
func (n *NamespacedObserver[T]) Walk(visitor func(string, T)) {
	visitor(n.name, n.inner)

	n.mu.Lock()
	children := make([]*NamespacedObserver[T], 0, len(n.children))
	for _, child := range n.children {
		children = append(children, child)
	}
	n.mu.Unlock()

	slices.SortFunc(children, func(a, b *NamespacedObserver[T]) int { return strings.Compare(a.name, b.name) })
	for _, child := range children {
		child.Walk(visitor)
	}
}
