/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"chainguard.dev/agenteval/agents/aggregate"
	"chainguard.dev/agenteval/agents/agenttrace"
	"chainguard.dev/agenteval/agents/evalerr"
	"chainguard.dev/agenteval/agents/evals"
	"chainguard.dev/agenteval/agents/metrics"
	"chainguard.dev/agenteval/agents/runstore"
	"chainguard.dev/agenteval/agents/testcase"
	"github.com/chainguard-dev/clog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/semaphore"
)

// Phases named in evaluation_error events.
const (
	PhaseQueue      = "queue"
	PhaseTraceLoad  = "trace_load"
	PhaseDimensions = "dimension_eval"
	PhaseAggregate  = "overall_score"
	PhaseComplete   = "evaluation_complete"
	PhaseTimeout    = runstore.PhaseTimeout
)

// DefaultConcurrency bounds the number of runs evaluating at once.
const DefaultConcurrency = 4

// ErrShutdown is the cause recorded for runs interrupted by Shutdown.
var ErrShutdown = errors.New("evaluation interrupted by shutdown")

// Selection picks the test cases of a run: explicit ids, or every test case
// of an agent type.
type Selection struct {
	TestCaseIDs []string           `json:"test_case_ids,omitempty"`
	AgentType   testcase.AgentType `json:"agent_type,omitempty"`
}

// Manager owns evaluation runs. Each run has exactly one writer: the
// goroutine started for it, the caller of Evaluate, or Reap when it takes
// over an abandoned run.
type Manager struct {
	runs     *runstore.Store
	cases    *testcase.Store
	traces   agenttrace.Reader
	registry *evals.Registry

	agent    Agent
	recorder *agenttrace.FileStore
	sem      *semaphore.Weighted
	obs      *evals.NamespacedObserver[*evals.MetricsObserver]
	metrics  *metrics.Runs
	clock    func() time.Time

	wg     sync.WaitGroup
	mu     sync.Mutex
	active map[string]context.CancelCauseFunc
	closed bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithAgent sets the agent under test, used for test cases without a
// trace_id.
func WithAgent(a Agent) Option {
	return func(m *Manager) { m.agent = a }
}

// WithTraceRecorder persists the traces the agent produces.
func WithTraceRecorder(fs *agenttrace.FileStore) Option {
	return func(m *Manager) { m.recorder = fs }
}

// WithConcurrency bounds the number of runs evaluating at once.
func WithConcurrency(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithClock overrides the time source used for completed_at.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.clock = now }
}

// New creates a Manager.
func New(runs *runstore.Store, cases *testcase.Store, traces agenttrace.Reader, registry *evals.Registry, opts ...Option) *Manager {
	m := &Manager{
		runs:     runs,
		cases:    cases,
		traces:   traces,
		registry: registry,
		sem:      semaphore.NewWeighted(DefaultConcurrency),
		obs:      evals.NewNamespacedObserver(evals.NewMetricsObserver),
		metrics:  metrics.NewRuns("chainguard.dev/agenteval"),
		active:   map[string]context.CancelCauseFunc{},
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Registry returns the dimensions and thresholds runs are scored with.
func (m *Manager) Registry() *evals.Registry { return m.registry }

// item is one test case of a run with its replayed trace, if any.
type item struct {
	tc    *testcase.TestCase
	trace *agenttrace.Trace
}

// plan resolves a selection synchronously so that unknown test cases and
// missing traces are reported to the caller instead of the event log.
func (m *Manager) plan(ctx context.Context, sel Selection) ([]item, error) {
	var cases []*testcase.TestCase
	switch {
	case len(sel.TestCaseIDs) > 0:
		seen := map[string]bool{}
		for _, id := range sel.TestCaseIDs {
			if seen[id] {
				continue
			}
			seen[id] = true
			tc, err := m.cases.Get(ctx, id)
			if err != nil {
				return nil, err
			}
			cases = append(cases, tc)
		}
	case sel.AgentType != "":
		all, err := m.cases.Load(ctx, sel.AgentType)
		if err != nil {
			return nil, err
		}
		if len(all) == 0 {
			return nil, evalerr.NotFound("test cases for agent type", string(sel.AgentType))
		}
		cases = all
	default:
		return nil, evalerr.Validationf("selection", "one of test_case_ids or agent_type is required")
	}

	items := make([]item, 0, len(cases))
	for _, tc := range cases {
		it := item{tc: tc}
		if tc.TraceID != "" {
			trace, err := m.traces.Get(ctx, tc.TraceID)
			if err != nil {
				return nil, fmt.Errorf("test case %s: %w", tc.ID, err)
			}
			it.trace = trace
		} else if m.agent == nil {
			return nil, evalerr.Validationf(tc.ID, "test case has no trace_id and no agent is configured")
		}
		items = append(items, it)
	}
	return items, nil
}

func metadataFor(sel Selection, items []item) runstore.Metadata {
	meta := runstore.Metadata{AgentType: string(sel.AgentType)}
	for _, it := range items {
		meta.TestCaseIDs = append(meta.TestCaseIDs, it.tc.ID)
	}
	if len(items) == 1 {
		meta.TestCaseID = items[0].tc.ID
		meta.AgentType = string(items[0].tc.AgentType)
		meta.TestCaseIDs = nil
	}
	return meta
}

// Start begins evaluating a single test case in the background and returns
// its evaluation id once the run directory exists.
func (m *Manager) Start(ctx context.Context, testCaseID string) (string, error) {
	return m.StartSuite(ctx, Selection{TestCaseIDs: []string{testCaseID}})
}

// StartSuite begins evaluating a selection of test cases as one run. Errors
// resolving the selection are returned before any run is created.
func (m *Manager) StartSuite(ctx context.Context, sel Selection) (string, error) {
	items, err := m.plan(ctx, sel)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", ErrShutdown
	}
	run, err := m.runs.Create(ctx, metadataFor(sel, items))
	if err != nil {
		return "", err
	}
	// Runs outlive the request that started them but keep its logger.
	runCtx, cancel := context.WithCancelCause(context.WithoutCancel(ctx))
	m.active[run.ID()] = cancel
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.release(run.ID())
		if err := m.sem.Acquire(runCtx, 1); err != nil {
			m.fail(runCtx, run, PhaseQueue, context.Cause(runCtx))
			return
		}
		defer m.sem.Release(1)
		_, _ = m.execute(runCtx, run, items)
	}()
	return run.ID(), nil
}

// Evaluate runs a selection in the foreground and returns the evaluation id
// with its suite result.
func (m *Manager) Evaluate(ctx context.Context, sel Selection) (string, *aggregate.SuiteResult, error) {
	items, err := m.plan(ctx, sel)
	if err != nil {
		return "", nil, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", nil, ErrShutdown
	}
	run, err := m.runs.Create(ctx, metadataFor(sel, items))
	if err != nil {
		m.mu.Unlock()
		return "", nil, err
	}
	// Registering the run keeps Reap from resuming it while it is live.
	runCtx, cancel := context.WithCancelCause(ctx)
	m.active[run.ID()] = cancel
	m.wg.Add(1)
	m.mu.Unlock()
	defer m.wg.Done()
	defer m.release(run.ID())

	suite, err := m.execute(runCtx, run, items)
	return run.ID(), suite, err
}

func (m *Manager) release(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cancel, ok := m.active[id]; ok {
		cancel(nil)
		delete(m.active, id)
	}
}

// execute is the body of a run. Phases are written in order: per test case
// trace_load, dimension_start and one event per dimension, then
// overall_score and evaluation_complete.
func (m *Manager) execute(ctx context.Context, run *runstore.Run, items []item) (*aggregate.SuiteResult, error) {
	ctx, span := otel.Tracer("chainguard.dev/agenteval/agents/runner").Start(ctx, "evaluation.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("evaluation_id", run.ID()),
		attribute.Int("test_cases", len(items)),
	)
	ctx = clog.WithLogger(ctx, clog.FromContext(ctx).With("evaluation_id", run.ID()))
	m.metrics.RecordStart(ctx, len(items))

	fail := func(phase string, err error) (*aggregate.SuiteResult, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		m.fail(ctx, run, phase, err)
		return nil, err
	}

	tests := make([]*aggregate.TestResult, 0, len(items))
	for _, it := range items {
		tr, phase, err := m.evaluateTest(ctx, run, it)
		if err != nil {
			return fail(phase, err)
		}
		tests = append(tests, tr)
	}

	suite := aggregate.Aggregate(run.ID(), m.registry.Names(), m.registry.Thresholds(), tests)
	for _, tr := range tests {
		m.metrics.RecordTest(ctx, string(tr.AgentType), tr.Passed)
	}
	if _, err := run.Emit(ctx, runstore.EventOverallScore, map[string]any{
		"overall_score": suite.OverallScore,
		"overall_pass":  suite.OverallPass,
		"dimensions":    suite.Dimensions,
	}); err != nil {
		return fail(PhaseAggregate, err)
	}

	suite.CompletedAt = m.clock().UTC()
	if err := run.Complete(ctx, suite, map[string]any{
		"evaluation_id": run.ID(),
		"overall_pass":  suite.OverallPass,
	}); err != nil {
		return fail(PhaseComplete, err)
	}
	m.metrics.RecordFinish(ctx, string(runstore.Completed), "")
	span.SetAttributes(
		attribute.Float64("overall_score", suite.OverallScore),
		attribute.Bool("overall_pass", suite.OverallPass),
	)
	clog.FromContext(ctx).With("overall_score", suite.OverallScore, "overall_pass", suite.OverallPass).Info("Evaluation completed")
	return suite, nil
}

// evaluateTest scores one test case. Only failures that stop the run are
// returned; a dimension that cannot be scored is recorded and skipped.
func (m *Manager) evaluateTest(ctx context.Context, run *runstore.Run, it item) (*aggregate.TestResult, string, error) {
	tc := it.tc
	ctx = agenttrace.WithExecutionContext(ctx, agenttrace.ExecutionContext{
		EvaluationID: run.ID(),
		TestCaseID:   tc.ID,
		AgentType:    string(tc.AgentType),
	})
	log := clog.FromContext(ctx).With("test_case_id", tc.ID)

	trace, source := it.trace, "replay"
	if trace == nil {
		source = "agent"
		var err error
		if trace, err = m.runAgent(ctx, tc); err != nil {
			return nil, PhaseTraceLoad, err
		}
	}
	if _, err := run.Emit(ctx, runstore.EventTraceLoad, map[string]any{
		"test_case_id": tc.ID,
		"trace_id":     trace.ID,
		"source":       source,
		"steps":        len(trace.Steps),
		"tool_calls":   len(trace.ToolCalls),
	}); err != nil {
		return nil, PhaseTraceLoad, err
	}

	dims := m.registry.For(tc.AgentType)
	names := make([]string, 0, len(dims))
	for _, d := range dims {
		names = append(names, d.Name())
	}
	if _, err := run.Emit(ctx, runstore.EventDimensionStart, map[string]any{
		"test_case_id": tc.ID,
		"dimensions":   names,
	}); err != nil {
		return nil, PhaseDimensions, err
	}

	tr := aggregate.NewTestResult(tc, trace.ID)
	// Dimensions run one at a time so events keep the fixed dimension order.
	for _, d := range dims {
		res, err := evals.Evaluate(ctx, d, tc, trace, m.obs.Path(string(tc.AgentType), d.Name()))
		if cause := context.Cause(ctx); cause != nil {
			return nil, PhaseDimensions, cause
		}
		payload := map[string]any{"test_case_id": tc.ID}
		if err != nil {
			log.With("dimension", d.Name(), "error", err).Warn("Dimension could not be scored")
			tr.RecordError(d.Name(), err)
			payload["status"] = "error"
			payload["details"] = map[string]string{"error": err.Error()}
		} else {
			tr.Record(res)
			payload["status"] = "scored"
			payload["result"] = res
		}
		if _, err := run.Emit(ctx, runstore.DimensionEventType(d.Name()), payload); err != nil {
			return nil, PhaseDimensions, err
		}
	}
	return tr, "", nil
}

func (m *Manager) runAgent(ctx context.Context, tc *testcase.TestCase) (*agenttrace.Trace, error) {
	if m.recorder != nil {
		ctx = agenttrace.WithTracer(ctx, agenttrace.ByCode(m.recorder.Recorder(ctx)))
	}
	trace, err := m.agent.Execute(ctx, tc)
	if trace == nil {
		if err == nil {
			err = errors.New("agent returned no trace")
		}
		return nil, fmt.Errorf("running agent for test case %s: %w", tc.ID, err)
	}
	if err != nil {
		clog.FromContext(ctx).With("test_case_id", tc.ID, "error", err).Warn("Agent execution failed, evaluating its trace")
		if trace.Error == "" {
			trace.Error = err.Error()
		}
	}
	return trace, nil
}

// fail records a terminal failure. A run that is already terminal is left
// alone.
func (m *Manager) fail(ctx context.Context, run *runstore.Run, phase string, cause error) {
	log := clog.FromContext(ctx).With("evaluation_id", run.ID(), "phase", phase, "error", cause)
	if err := run.Fail(ctx, phase, cause); err != nil {
		if errors.Is(err, runstore.ErrClosed) {
			return
		}
		log.With("fail_error", err).Error("Failed to record evaluation failure")
	}
	m.metrics.RecordFinish(ctx, string(runstore.Failed), phase)
	log.Error("Evaluation failed")
}

// Events returns events[start:] of a run with its total count and status.
func (m *Manager) Events(ctx context.Context, id string, start int) (*runstore.Page, error) {
	return m.runs.ReadEvents(ctx, id, start)
}

// Result returns the suite result of a completed run. Runs that have not
// completed return an error matching runstore.ErrNotReady.
func (m *Manager) Result(ctx context.Context, id string) (*aggregate.SuiteResult, error) {
	raw, err := m.runs.ReadResult(ctx, id)
	if err != nil {
		return nil, err
	}
	var suite aggregate.SuiteResult
	if err := json.Unmarshal(raw, &suite); err != nil {
		return nil, fmt.Errorf("decoding result of %s: %w", id, err)
	}
	return &suite, nil
}

// List returns the metadata of every run, newest first.
func (m *Manager) List(ctx context.Context) ([]runstore.Metadata, error) {
	return m.runs.List(ctx)
}

// Reap durably fails every run that exceeded the inactivity timeout and
// returns their ids. Runs this process is writing are cancelled and fail
// themselves; abandoned runs are resumed and failed here.
func (m *Manager) Reap(ctx context.Context) ([]string, error) {
	all, err := m.runs.List(ctx)
	if err != nil {
		return nil, err
	}
	var reaped []string
	for _, meta := range all {
		if meta.CompletedAt != nil {
			continue
		}
		msg, expired, err := m.runs.Expired(ctx, meta.EvaluationID)
		if err != nil {
			return reaped, err
		} else if !expired {
			continue
		}

		m.mu.Lock()
		cancel, live := m.active[meta.EvaluationID]
		m.mu.Unlock()
		if live {
			cancel(errors.New(msg))
			reaped = append(reaped, meta.EvaluationID)
			continue
		}

		run, err := m.runs.Resume(ctx, meta.EvaluationID)
		if err != nil {
			clog.FromContext(ctx).With("evaluation_id", meta.EvaluationID, "error", err).Warn("Could not resume abandoned run")
			continue
		}
		m.fail(ctx, run, PhaseTimeout, errors.New(msg))
		reaped = append(reaped, meta.EvaluationID)
	}
	return reaped, nil
}

// Shutdown stops accepting runs, interrupts the ones in flight and waits
// for them to record their failure.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	for _, cancel := range m.active {
		cancel(ErrShutdown)
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
