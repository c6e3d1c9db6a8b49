/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package runner

import (
	"context"
	"encoding/json"

	"chainguard.dev/agenteval/agents/agenttrace"
	"chainguard.dev/agenteval/agents/testcase"
)

// Agent is the agent under test. Execute runs the agent once for a test
// case and returns the completed trace. A trace whose Error is set is still
// evaluated; an error with no trace fails the run.
type Agent interface {
	Execute(ctx context.Context, tc *testcase.TestCase) (*agenttrace.Trace, error)
}

// AgentFunc adapts a function to the Agent interface.
type AgentFunc func(ctx context.Context, tc *testcase.TestCase) (*agenttrace.Trace, error)

// Execute implements Agent.
func (f AgentFunc) Execute(ctx context.Context, tc *testcase.TestCase) (*agenttrace.Trace, error) {
	return f(ctx, tc)
}

// Input returns the text a test case feeds the agent: the coordinator query,
// the specialist objective or the visualization input data.
func Input(tc *testcase.TestCase) string {
	switch p := tc.Payload.(type) {
	case *testcase.CMO:
		return p.Query
	case *testcase.Specialist:
		return p.Task.Objective
	case *testcase.Visualization:
		if s, ok := p.InputData.Data.(string); ok {
			return s
		}
		b, _ := json.Marshal(p.InputData.Data)
		return string(b)
	case *testcase.Unknown:
		for _, key := range []string{"query", "input"} {
			var s string
			if json.Unmarshal(p.Fields[key], &s) == nil && s != "" {
				return s
			}
		}
	}
	return ""
}
