/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package evals

import (
	"fmt"
	"maps"
	"sort"
	"strings"

	"chainguard.dev/agenteval/agents/agenttrace"
)

// MaximumNToolCalls returns a Check that validates the trace has at most n tool calls.
func MaximumNToolCalls(n int) Check {
	return func(o Observer, trace *agenttrace.Trace) {
		if got := len(trace.ToolCalls); got > n {
			o.Fail(fmt.Sprintf("tool call count: got = %d, wanted <= %d", got, n))
		}
	}
}

// RequiredToolCalls returns a Check that validates the trace uses all of the specified tool names at least once.
func RequiredToolCalls(toolNames []string) Check {
	baseRequired := make(map[string]struct{}, len(toolNames))
	for _, name := range toolNames {
		baseRequired[name] = struct{}{}
	}

	return func(o Observer, trace *agenttrace.Trace) {
		required := maps.Clone(baseRequired)
		for _, tc := range trace.ToolCalls {
			delete(required, tc.Name)
		}
		if len(required) > 0 {
			missing := make([]string, 0, len(required))
			for name := range required {
				missing = append(missing, name)
			}
			sort.Strings(missing)
			o.Fail(fmt.Sprintf("missing required tool calls: %v", missing))
		}
	}
}

// NoToolErrors returns a Check that fails once for every tool call that ended in an error.
func NoToolErrors() Check {
	return func(o Observer, trace *agenttrace.Trace) {
		for _, tc := range trace.ToolCalls {
			if tc.Failed() {
				o.Fail(fmt.Sprintf("tool call %s error: got = %v, wanted = none", tc.Name, tc.Error))
			}
		}
	}
}

// NoTraceError returns a Check that validates the execution itself did not fail.
func NoTraceError() Check {
	return func(o Observer, trace *agenttrace.Trace) {
		if trace.Error != "" {
			o.Fail(fmt.Sprintf("trace error: got = %v, wanted = none", trace.Error))
		}
	}
}

// NoFailedSteps returns a Check that validates every recorded step succeeded.
func NoFailedSteps() Check {
	return func(o Observer, trace *agenttrace.Trace) {
		for _, step := range trace.Steps {
			if step.Error != "" {
				o.Fail(fmt.Sprintf("step %d (%s) error: got = %v, wanted = none", step.Index, step.Name, step.Error))
				return
			}
		}
	}
}

// NonEmptyOutput returns a Check that validates the execution produced final text.
func NonEmptyOutput() Check {
	return func(o Observer, trace *agenttrace.Trace) {
		if strings.TrimSpace(trace.Outcome.FinalText) == "" {
			o.Fail("final output: got = empty, wanted = non-empty")
		}
	}
}

// OutcomeValidator returns a Check that validates the outcome using a custom validator.
func OutcomeValidator(validator func(outcome agenttrace.Outcome) error) Check {
	return func(o Observer, trace *agenttrace.Trace) {
		if err := validator(trace.Outcome); err != nil {
			o.Fail(err.Error())
		}
	}
}

// Run applies checks to a trace in order and returns the collected result.
// Each check is counted once.
func Run(trace *agenttrace.Trace, checks ...Check) *ResultCollector {
	rc := NewResultCollector(nil)
	for _, check := range checks {
		Inject(rc, check)(trace)
	}
	return rc
}
