/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package agenttrace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const instrumentationName = "chainguard.ai.agenteval.agenttrace"

// Step is one ordered unit of work inside an agent execution, such as a
// classification pass or the delegation to a specialist.
type Step struct {
	Index     int       `json:"index"`
	Kind      string    `json:"kind"`
	Name      string    `json:"name"`
	Output    string    `json:"output,omitempty"`
	Error     string    `json:"error,omitempty"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// ToolCall represents a single tool invocation within a trace
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Params    map[string]any `json:"params,omitempty"`
	Result    any            `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
	StartTime time.Time      `json:"start_time"`
	EndTime   time.Time      `json:"end_time"`
	trace     *Trace         // Parent trace for auto-adding on completion
	mu        sync.Mutex
	span      oteltrace.Span
}

// Outcome holds the terminal results of an execution. These are the values a
// derived test case copies into its actual_* fields.
type Outcome struct {
	Complexity    string   `json:"complexity,omitempty"`
	Specialties   []string `json:"specialties,omitempty"`
	KeyDataPoints []string `json:"key_data_points,omitempty"`
	TotalCost     float64  `json:"total_cost,omitempty"`
	FinalText     string   `json:"final_text,omitempty"`
	ChartType     string   `json:"chart_type,omitempty"`
}

// Trace is the immutable record of one execution of the agent under test.
// Recording methods are only used while the agent runs; once a trace has been
// completed and stored it is treated as read-only.
type Trace struct {
	ID          string           `json:"id"`
	AgentType   string           `json:"agent_type"`
	Input       string           `json:"input"`
	ExecContext ExecutionContext `json:"exec_context,omitempty"`
	Steps       []Step           `json:"steps"`
	ToolCalls   []*ToolCall      `json:"tool_calls"`
	Outcome     Outcome          `json:"outcome"`
	Error       string           `json:"error,omitempty"`
	StartTime   time.Time        `json:"start_time"`
	EndTime     time.Time        `json:"end_time"`
	Metadata    map[string]any   `json:"metadata,omitempty"`
	tracer      Tracer
	mu          sync.Mutex
	ctx         context.Context
	span        oteltrace.Span
}

// newTraceWithTracer creates a new trace with the given tracer and input
func newTraceWithTracer(ctx context.Context, tracer Tracer, agentType, input string) *Trace {
	execCtx := GetExecutionContext(ctx)

	tr := otel.Tracer(instrumentationName, oteltrace.WithInstrumentationVersion("1.0.0"))
	attrs := []attribute.KeyValue{
		attribute.String("agent.type", agentType),
		attribute.String("agent.input", input),
	}
	if execCtx.EvaluationID != "" {
		attrs = append(attrs, attribute.String("evaluation_id", execCtx.EvaluationID))
	}
	if execCtx.TestCaseID != "" {
		attrs = append(attrs, attribute.String("test_case_id", execCtx.TestCaseID))
	}
	ctx, span := tr.Start(ctx, "agent.execution", oteltrace.WithAttributes(attrs...))

	return &Trace{
		ID:          generateTraceID(),
		AgentType:   agentType,
		Input:       input,
		ExecContext: execCtx,
		Steps:       []Step{},
		ToolCalls:   []*ToolCall{},
		StartTime:   time.Now(),
		Metadata:    make(map[string]any),
		tracer:      tracer,
		ctx:         ctx,
		span:        span,
	}
}

// AddStep appends a completed step, assigning its index.
func (t *Trace) AddStep(step Step) {
	t.mu.Lock()
	defer t.mu.Unlock()
	step.Index = len(t.Steps)
	t.Steps = append(t.Steps, step)
}

// StartToolCall starts a new tool call and returns it
func (t *Trace) StartToolCall(id, name string, params map[string]any) *ToolCall {
	tc := &ToolCall{
		ID:        id,
		Name:      name,
		Params:    params,
		StartTime: time.Now(),
		trace:     t,
	}
	if t.ctx != nil {
		tr := otel.Tracer(instrumentationName, oteltrace.WithInstrumentationVersion("1.0.0"))
		_, tc.span = tr.Start(t.ctx, "agent.tool_call", oteltrace.WithAttributes(
			attribute.String("tool.name", name),
			attribute.String("tool.id", id),
		))
	}
	return tc
}

// BadToolCall records a tool call that failed due to bad arguments or unknown tool
func (t *Trace) BadToolCall(id, name string, params map[string]any, err error) {
	now := time.Now()
	tc := &ToolCall{
		ID:        id,
		Name:      name,
		Params:    params,
		StartTime: now,
		EndTime:   now,
		Error:     err.Error(),
		trace:     t,
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.ToolCalls = append(t.ToolCalls, tc)
}

// Complete marks the tool call as complete and adds it to the parent trace
func (tc *ToolCall) Complete(result any, err error) {
	tc.mu.Lock()
	tc.Result = result
	if err != nil {
		tc.Error = err.Error()
	}
	tc.EndTime = time.Now()
	trace := tc.trace
	span := tc.span
	tc.mu.Unlock()

	if span != nil {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}

	trace.mu.Lock()
	defer trace.mu.Unlock()
	trace.ToolCalls = append(trace.ToolCalls, tc)
}

// Failed reports whether the tool call ended with an error.
func (tc *ToolCall) Failed() bool {
	return tc.Error != ""
}

// Complete marks the trace as complete with the given outcome and records it
// with the tracer that created it.
func (t *Trace) Complete(outcome Outcome, err error) {
	t.mu.Lock()
	t.Outcome = outcome
	if err != nil {
		t.Error = err.Error()
	}
	t.EndTime = time.Now()
	tracer := t.tracer
	span := t.span
	t.mu.Unlock()

	if span != nil {
		span.SetAttributes(
			attribute.Int("agent.tool_calls", len(t.ToolCalls)),
			attribute.Float64("agent.total_cost", outcome.TotalCost),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}

	if tracer != nil {
		tracer.RecordTrace(t)
	}
}

// Duration returns the total duration of the trace
func (t *Trace) Duration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.EndTime.IsZero() {
		return time.Since(t.StartTime)
	}
	return t.EndTime.Sub(t.StartTime)
}

// String returns a structured representation of the trace
func (t *Trace) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var sb strings.Builder
	fmt.Fprintf(&sb, "=== Trace %s (%s) ===\n", t.ID, t.AgentType)
	fmt.Fprintf(&sb, "Input: %q\n", truncate(t.Input, 200))

	if len(t.Steps) > 0 {
		fmt.Fprintf(&sb, "\nSteps (%d):\n", len(t.Steps))
		for _, s := range t.Steps {
			fmt.Fprintf(&sb, "  [%d] %s %s\n", s.Index+1, s.Kind, s.Name)
			if s.Error != "" {
				fmt.Fprintf(&sb, "      Error: %s\n", s.Error)
			}
		}
	}

	if len(t.ToolCalls) > 0 {
		fmt.Fprintf(&sb, "\nTool Calls (%d):\n", len(t.ToolCalls))
		for i, tc := range t.ToolCalls {
			fmt.Fprintf(&sb, "  [%d] %s (ID: %s)\n", i+1, tc.Name, tc.ID)
			if tc.Error != "" {
				fmt.Fprintf(&sb, "      Error: %s\n", tc.Error)
			}
		}
	} else {
		sb.WriteString("\nNo tool calls\n")
	}

	sb.WriteString("\nOutcome:\n")
	if t.Outcome.Complexity != "" {
		fmt.Fprintf(&sb, "  Complexity: %s\n", t.Outcome.Complexity)
	}
	if len(t.Outcome.Specialties) > 0 {
		fmt.Fprintf(&sb, "  Specialties: %s\n", strings.Join(t.Outcome.Specialties, ", "))
	}
	if t.Outcome.TotalCost > 0 {
		fmt.Fprintf(&sb, "  Total cost: $%.4f\n", t.Outcome.TotalCost)
	}
	if t.Error != "" {
		fmt.Fprintf(&sb, "  Error: %s\n", t.Error)
	}
	return sb.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// generateTraceID generates a unique trace ID
func generateTraceID() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return time.Now().Format("20060102-150405.000000")
	}
	// Format: YYYYMMDD-HHMMSS-RRRRRRRR
	return fmt.Sprintf("%s-%s", time.Now().Format("20060102-150405"), hex.EncodeToString(b))
}
