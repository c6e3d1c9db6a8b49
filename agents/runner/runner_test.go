/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package runner_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"chainguard.dev/agenteval/agents/aggregate"
	"chainguard.dev/agenteval/agents/agenttrace"
	"chainguard.dev/agenteval/agents/evalerr"
	"chainguard.dev/agenteval/agents/evals"
	"chainguard.dev/agenteval/agents/judge"
	"chainguard.dev/agenteval/agents/runner"
	"chainguard.dev/agenteval/agents/runstore"
	"chainguard.dev/agenteval/agents/testcase"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	runs   *runstore.Store
	cases  *testcase.Store
	traces *agenttrace.FileStore
}

func newFixture(t *testing.T, opts ...runstore.Option) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		runs:   runstore.New(filepath.Join(root, "evaluations"), opts...),
		cases:  testcase.NewStore(filepath.Join(root, "test_cases")),
		traces: agenttrace.NewFileStore(filepath.Join(root, "traces")),
	}
	ctx := context.Background()

	require.NoError(t, f.traces.Put(ctx, &agenttrace.Trace{
		ID:        "trace-cmo-1",
		AgentType: "cmo",
		Input:     "How is my cholesterol?",
		ToolCalls: []*agenttrace.ToolCall{{Name: "lab_results"}},
		Outcome: agenttrace.Outcome{
			Complexity:  "STANDARD",
			Specialties: []string{"cardiology"},
			FinalText:   "LDL is 160 mg/dL.",
		},
	}))
	require.NoError(t, f.cases.Save(ctx, &testcase.TestCase{
		Envelope: testcase.Envelope{ID: "cmo-1", AgentType: testcase.CMOAgent, TraceID: "trace-cmo-1"},
		Payload: &testcase.CMO{
			Query:                 "How is my cholesterol?",
			ExpectedComplexity:    testcase.Standard,
			ExpectedSpecialties:   []string{"cardiology"},
			ExpectedKeyDataPoints: []string{"LDL 160 mg/dL"},
			ExpectedTools:         []string{"lab_results"},
			MaxToolCalls:          3,
		},
	}))
	require.NoError(t, f.cases.Save(ctx, &testcase.TestCase{
		Envelope: testcase.Envelope{ID: "viz-live", AgentType: testcase.VisualizationAgent},
		Payload: &testcase.Visualization{
			InputData:         testcase.InputData{Type: "text", Data: "LDL by month"},
			ExpectedChartType: "line",
		},
	}))
	return f
}

func (f *fixture) manager(t *testing.T, j judge.Interface, opts ...runner.Option) *runner.Manager {
	t.Helper()
	registry, err := evals.NewRegistry(evals.Builtin(j)...)
	require.NoError(t, err)
	return runner.New(f.runs, f.cases, f.traces, registry, opts...)
}

func scoreJudge(score float64) judge.Interface {
	return judge.Func(func(_ context.Context, req *judge.Request) (*judge.Judgement, error) {
		return &judge.Judgement{Mode: req.Mode, Score: score, Reasoning: "ok", Suggestions: []string{}}, nil
	})
}

func eventTypes(page *runstore.Page) []string {
	out := make([]string, 0, len(page.Events))
	for _, ev := range page.Events {
		out = append(out, ev.Type)
	}
	return out
}

// waitTerminal polls the run until it reaches a terminal status.
func waitTerminal(t *testing.T, m *runner.Manager, id string) *runstore.Page {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		page, err := m.Events(context.Background(), id, 0)
		require.NoError(t, err)
		if page.Status.Terminal() {
			return page
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("evaluation %s did not finish", id)
	return nil
}

func TestEvaluateReplaysTrace(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.manager(t, scoreJudge(0.9))

	id, suite, err := m.Evaluate(ctx, runner.Selection{TestCaseIDs: []string{"cmo-1"}})
	require.NoError(t, err)
	assert.True(t, suite.OverallPass)
	// specialty = (recall 1 + judged precision 0.9) / 2
	assert.InDelta(t, (1+0.95+0.9+1+1)/5, suite.OverallScore, 1e-9)

	page, err := m.Events(ctx, id, 0)
	require.NoError(t, err)
	assert.Equal(t, runstore.Completed, page.Status)
	want := []string{
		"trace_load", "dimension_start",
		"complexity_eval", "specialty_eval", "analysis_quality_eval", "tool_usage_eval", "structure_eval",
		"overall_score", "evaluation_complete",
	}
	if diff := cmp.Diff(want, eventTypes(page)); diff != "" {
		t.Errorf("event types (-want +got):\n%s", diff)
	}
	for i, ev := range page.Events {
		assert.Equal(t, i+1, ev.Sequence)
	}

	var load map[string]any
	require.NoError(t, page.Events[0].Decode(&load))
	assert.Equal(t, "replay", load["source"])
	assert.Equal(t, "trace-cmo-1", load["trace_id"])

	stored, err := m.Result(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, suite.OverallScore, stored.OverallScore)
	assert.Equal(t, id, stored.EvaluationID)
	require.Len(t, stored.Tests, 1)
	assert.Len(t, stored.Tests[0].Dimensions, 5)
}

func TestMalformedJudgeDoesNotAbortRun(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	malformed := judge.Func(func(context.Context, *judge.Request) (*judge.Judgement, error) {
		return nil, fmt.Errorf("%w: %q", judge.ErrMalformedResponse, "looks great!")
	})
	m := f.manager(t, malformed)

	id, suite, err := m.Evaluate(ctx, runner.Selection{TestCaseIDs: []string{"cmo-1"}})
	require.NoError(t, err)

	page, err := m.Events(ctx, id, 0)
	require.NoError(t, err)
	assert.Equal(t, runstore.Completed, page.Status)

	var quality struct {
		Status  string            `json:"status"`
		Details map[string]string `json:"details"`
	}
	require.NoError(t, page.Events[4].Decode(&quality))
	assert.Equal(t, "analysis_quality_eval", page.Events[4].Type)
	assert.Equal(t, "error", quality.Status)
	assert.Contains(t, quality.Details["error"], "looks great")

	// Specialty also asks the judge for precision.
	var kinds []string
	for _, d := range suite.DimensionFailureDetails {
		kinds = append(kinds, d.Dimension+":"+d.Kind)
	}
	assert.Contains(t, kinds, "analysis_quality:"+aggregate.EvaluationError)
	assert.False(t, suite.OverallPass, "a dimension that never scored fails the gate")
}

func TestStartAndPoll(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.manager(t, scoreJudge(1))

	id, err := m.Start(ctx, "cmo-1")
	require.NoError(t, err)

	// The run is visible as soon as Start returns.
	meta, err := f.runs.ReadMetadata(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "cmo-1", meta.TestCaseID)

	full := waitTerminal(t, m, id)
	assert.Equal(t, runstore.Completed, full.Status)

	for k := 0; k <= full.TotalEvents; k++ {
		page, err := m.Events(ctx, id, k)
		require.NoError(t, err)
		if diff := cmp.Diff(full.Events[k:], page.Events); diff != "" {
			t.Errorf("Events(%d) (-want +got):\n%s", k, diff)
		}
		assert.Equal(t, full.TotalEvents, page.TotalEvents)
	}

	require.NoError(t, m.Shutdown(ctx))
}

func TestStartRejectsBadSelection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.manager(t, scoreJudge(1))

	_, err := m.Start(ctx, "missing")
	assert.ErrorIs(t, err, evalerr.ErrNotFound)

	// A test case without a trace needs an agent.
	_, err = m.Start(ctx, "viz-live")
	assert.ErrorIs(t, err, evalerr.ErrValidation)

	_, err = m.StartSuite(ctx, runner.Selection{})
	assert.ErrorIs(t, err, evalerr.ErrValidation)

	require.NoError(t, f.cases.Save(ctx, &testcase.TestCase{
		Envelope: testcase.Envelope{ID: "cmo-2", AgentType: testcase.CMOAgent, TraceID: "trace-gone"},
		Payload:  &testcase.CMO{Query: "q", ExpectedComplexity: testcase.Simple, ExpectedSpecialties: []string{}},
	}))
	_, err = m.Start(ctx, "cmo-2")
	assert.ErrorIs(t, err, evalerr.ErrNotFound)

	runs, err := m.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, runs, "rejected selections must not create runs")
}

func TestAgentProducesTrace(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	agent := runner.AgentFunc(func(ctx context.Context, tc *testcase.TestCase) (*agenttrace.Trace, error) {
		trace := agenttrace.StartTrace(ctx, string(tc.AgentType), runner.Input(tc))
		call := trace.StartToolCall("c1", "render_chart", nil)
		call.Complete(`{"ok":true}`, nil)
		trace.Complete(agenttrace.Outcome{FinalText: `{"type":"line"}`, ChartType: "line"}, nil)
		return trace, nil
	})
	m := f.manager(t, nil, runner.WithAgent(agent), runner.WithTraceRecorder(f.traces))

	id, suite, err := m.Evaluate(ctx, runner.Selection{AgentType: testcase.VisualizationAgent})
	require.NoError(t, err)
	assert.True(t, suite.OverallPass)
	require.Len(t, suite.Tests, 1)

	page, err := m.Events(ctx, id, 0)
	require.NoError(t, err)
	var load map[string]any
	require.NoError(t, page.Events[0].Decode(&load))
	assert.Equal(t, "agent", load["source"])

	traceID, _ := load["trace_id"].(string)
	stored, err := f.traces.Get(ctx, traceID)
	require.NoError(t, err)
	assert.Equal(t, "LDL by month", stored.Input)
	assert.Equal(t, id, stored.ExecContext.EvaluationID)
}

func TestPersistenceErrorFailsRun(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	// The agent squats on the first event file, so the trace_load write
	// cannot be completed.
	agent := runner.AgentFunc(func(ctx context.Context, tc *testcase.TestCase) (*agenttrace.Trace, error) {
		id := agenttrace.GetExecutionContext(ctx).EvaluationID
		dir, err := f.runs.Dir(id)
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(filepath.Join(dir, runstore.EventsDir, "001_trace_load.json"), []byte("{}"), 0o644); err != nil {
			return nil, err
		}
		return &agenttrace.Trace{ID: "t", Outcome: agenttrace.Outcome{FinalText: "{}", ChartType: "line"}}, nil
	})
	m := f.manager(t, nil, runner.WithAgent(agent))

	id, _, err := m.Evaluate(ctx, runner.Selection{TestCaseIDs: []string{"viz-live"}})
	assert.ErrorIs(t, err, evalerr.ErrPersistence)

	meta, err := f.runs.ReadMetadata(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, runstore.Failed, meta.Status)
	_, err = m.Result(ctx, id)
	assert.ErrorIs(t, err, runstore.ErrNotReady)
}

func TestShutdownInterruptsRuns(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	started := make(chan struct{})
	agent := runner.AgentFunc(func(ctx context.Context, tc *testcase.TestCase) (*agenttrace.Trace, error) {
		close(started)
		<-ctx.Done()
		return nil, context.Cause(ctx)
	})
	m := f.manager(t, nil, runner.WithAgent(agent))

	id, err := m.Start(ctx, "viz-live")
	require.NoError(t, err)
	<-started

	require.NoError(t, m.Shutdown(ctx))
	meta, err := f.runs.ReadMetadata(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, runstore.Failed, meta.Status)
	assert.Contains(t, meta.Error, runner.ErrShutdown.Error())

	_, err = m.Start(ctx, "cmo-1")
	assert.True(t, errors.Is(err, runner.ErrShutdown), "Start after Shutdown: got = %v, wanted = %v", err, runner.ErrShutdown)
}

func TestReapAbandonedRun(t *testing.T) {
	ctx := context.Background()
	var mu sync.Mutex
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	f := newFixture(t, runstore.WithClock(clock), runstore.WithInactivityTimeout(time.Minute))
	m := f.manager(t, nil)

	// A run whose writer went away: created, never finished.
	run, err := f.runs.Create(ctx, runstore.Metadata{TestCaseID: "cmo-1", AgentType: "cmo"})
	require.NoError(t, err)
	_, err = run.Emit(ctx, runstore.EventTraceLoad, map[string]any{"test_case_id": "cmo-1"})
	require.NoError(t, err)

	reaped, err := m.Reap(ctx)
	require.NoError(t, err)
	assert.Empty(t, reaped)

	mu.Lock()
	now = now.Add(2 * time.Minute)
	mu.Unlock()

	reaped, err = m.Reap(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{run.ID()}, reaped)

	page, err := m.Events(ctx, run.ID(), 0)
	require.NoError(t, err)
	assert.Equal(t, runstore.Failed, page.Status)
	assert.Equal(t, []string{"trace_load", "evaluation_error"}, eventTypes(page))

	// Already failed runs are left alone.
	reaped, err = m.Reap(ctx)
	require.NoError(t, err)
	assert.Empty(t, reaped)
}

func TestReapCancelsLiveForegroundRun(t *testing.T) {
	ctx := context.Background()
	var mu sync.Mutex
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	f := newFixture(t, runstore.WithClock(clock), runstore.WithInactivityTimeout(time.Minute))
	started := make(chan struct{})
	agent := runner.AgentFunc(func(ctx context.Context, tc *testcase.TestCase) (*agenttrace.Trace, error) {
		close(started)
		<-ctx.Done()
		return nil, context.Cause(ctx)
	})
	m := f.manager(t, nil, runner.WithAgent(agent))

	type outcome struct {
		id  string
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		id, _, err := m.Evaluate(ctx, runner.Selection{TestCaseIDs: []string{"viz-live"}})
		done <- outcome{id: id, err: err}
	}()
	<-started

	mu.Lock()
	now = now.Add(2 * time.Minute)
	mu.Unlock()

	reaped, err := m.Reap(ctx)
	require.NoError(t, err)
	require.Len(t, reaped, 1)

	got := <-done
	require.Error(t, got.err)
	assert.Contains(t, got.err.Error(), "of inactivity")
	assert.Equal(t, reaped[0], got.id)

	// The foreground writer recorded the failure itself; Reap did not
	// resume the run as a second writer.
	page, err := m.Events(ctx, got.id, 0)
	require.NoError(t, err)
	assert.Equal(t, runstore.Failed, page.Status)
	require.Equal(t, []string{"evaluation_error"}, eventTypes(page))
	var payload map[string]string
	require.NoError(t, page.Events[0].Decode(&payload))
	assert.Equal(t, runner.PhaseTraceLoad, payload["phase"])
}
