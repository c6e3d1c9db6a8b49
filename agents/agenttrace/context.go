/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package agenttrace

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
)

// ExecutionContext ties an agent execution to the evaluation that caused it.
type ExecutionContext struct {
	EvaluationID string `json:"evaluation_id,omitempty"`
	TestCaseID   string `json:"test_case_id,omitempty"`
	AgentType    string `json:"agent_type,omitempty"`
}

// EnrichAttributes adds execution context attributes to the provided base attributes.
//
// Only bounded labels are added. evaluation_id and test_case_id stay on spans.
func (e ExecutionContext) EnrichAttributes(baseAttrs []attribute.KeyValue) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, len(baseAttrs), len(baseAttrs)+1)
	copy(attrs, baseAttrs)
	if e.AgentType != "" {
		attrs = append(attrs, attribute.String("agent_type", e.AgentType))
	}
	return attrs
}

type contextKey string

const executionContextKey contextKey = "execution_context"

// WithExecutionContext adds execution context to the Go context
func WithExecutionContext(ctx context.Context, execCtx ExecutionContext) context.Context {
	return context.WithValue(ctx, executionContextKey, execCtx)
}

// GetExecutionContext retrieves execution context from the Go context
func GetExecutionContext(ctx context.Context) ExecutionContext {
	if execCtx, ok := ctx.Value(executionContextKey).(ExecutionContext); ok {
		return execCtx
	}
	return ExecutionContext{}
}
