/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package evals_test

import (
	"fmt"
	"testing"

	"chainguard.dev/agenteval/agents/agenttrace"
	"chainguard.dev/agenteval/agents/evals"
	"github.com/google/go-cmp/cmp"
)

// testNamedObserver implements Observer for testing NamespacedObserver
type testNamedObserver struct {
	name     string
	failures []string
	logs     []string
	count    int64
}

func (t *testNamedObserver) Fail(msg string) {
	t.failures = append(t.failures, msg)
}

func (t *testNamedObserver) Log(msg string) {
	t.logs = append(t.logs, msg)
}

func (t *testNamedObserver) Grade(score float64, reasoning string) {
	t.logs = append(t.logs, fmt.Sprintf("Grade: %.2f - %s", score, reasoning))
}

func (t *testNamedObserver) Increment() {
	t.count++
}

func (t *testNamedObserver) Total() int64 {
	return t.count
}

func TestNamespacedObserverChildren(t *testing.T) {
	root := evals.NewNamespacedObserver(func(name string) *testNamedObserver {
		return &testNamedObserver{name: name}
	})

	quality := root.Child("cmo").Child("analysis_quality")
	if got, want := quality.Name(), "/cmo/analysis_quality"; got != want {
		t.Errorf("Name(): got = %q, wanted = %q", got, want)
	}
	if root.Child("cmo").Child("analysis_quality") != quality {
		t.Error("Child: got a new node, wanted the existing one")
	}
	if root.Path("cmo", "analysis_quality") != quality {
		t.Error("Path: got a new node, wanted the existing one")
	}
	if root.Path() != root {
		t.Error("Path(): got a new node, wanted the root")
	}

	quality.Increment()
	quality.Fail("judge failed")
	if quality.Total() != 1 || len(quality.Inner().failures) != 1 {
		t.Errorf("delegation: got total = %d, failures = %v", quality.Total(), quality.Inner().failures)
	}
	if root.Total() != 0 {
		t.Errorf("root total: got = %d, wanted = 0", root.Total())
	}

	root.Child("specialist").Child("tool_usage")
	root.Child("cmo").Child("complexity")

	var visited []string
	root.Walk(func(name string, o *testNamedObserver) {
		if name != o.name {
			t.Errorf("Walk: node %q carries observer %q", name, o.name)
		}
		visited = append(visited, name)
	})
	want := []string{"/", "/cmo", "/cmo/analysis_quality", "/cmo/complexity", "/specialist", "/specialist/tool_usage"}
	if diff := cmp.Diff(want, visited); diff != "" {
		t.Errorf("Walk order (-want +got):\n%s", diff)
	}
}

func TestResultCollector(t *testing.T) {
	inner := &testNamedObserver{}
	rc := evals.NewResultCollector(inner)

	rc.Increment()
	rc.Log("checking")
	rc.Fail("missing tool")
	rc.Grade(0.5, "half")

	if rc.Passed() {
		t.Error("Passed(): got = true, wanted = false")
	}
	if diff := cmp.Diff([]string{"missing tool"}, rc.Failures()); diff != "" {
		t.Errorf("Failures() (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]evals.Grade{{Score: 0.5, Reasoning: "half"}}, rc.Grades()); diff != "" {
		t.Errorf("Grades() (-want +got):\n%s", diff)
	}
	// Failures reach the inner observer as logs, not failures.
	if len(inner.failures) != 0 || len(inner.logs) != 3 {
		t.Errorf("inner: got failures = %v, logs = %v", inner.failures, inner.logs)
	}
	if rc.Total() != 1 || inner.count != 1 {
		t.Errorf("Total(): got = %d (inner %d), wanted = 1", rc.Total(), inner.count)
	}
}

func TestInject(t *testing.T) {
	rc := evals.NewResultCollector(nil)
	callback := evals.Inject(rc, evals.NoTraceError())

	callback(&agenttrace.Trace{})
	callback(&agenttrace.Trace{Error: "boom"})

	if rc.Total() != 2 {
		t.Errorf("Total(): got = %d, wanted = 2", rc.Total())
	}
	if got := rc.Failures(); len(got) != 1 {
		t.Errorf("Failures(): got = %v, wanted one failure", got)
	}
}
