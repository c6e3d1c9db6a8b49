/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package derive

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"chainguard.dev/agenteval/agents/agenttrace"
	"chainguard.dev/agenteval/agents/evalerr"
	"chainguard.dev/agenteval/agents/testcase"
	"github.com/chainguard-dev/clog"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
)

// Pairs maps each trace-derived actual_* field to the expected_* field it
// pre-populates.
var Pairs = map[string]string{
	"actual_complexity":      "expected_complexity",
	"actual_specialties":     "expected_specialties",
	"actual_key_data_points": "expected_key_data_points",
	"actual_total_cost":      "expected_max_cost",
	"actual_tools":           "expected_tools",
	"actual_chart_type":      "expected_chart_type",
}

// lockedFields may never change once a test case exists.
var lockedFields = []string{
	"id", "agent_type", "created_by", "created_at", "trace_id",
	"modified_fields", "derivation_baseline",
}

// defaultPriority is assigned to derived specialist tasks.
const defaultPriority = "medium"

// Deriver creates test cases from captured traces and applies reviewer
// edits to them. Updates to the same test case are serialized.
type Deriver struct {
	traces agenttrace.Reader
	store  *testcase.Store
	now    func() time.Time
	newID  func() string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a Deriver reading traces from traces and persisting test cases
// to store.
func New(traces agenttrace.Reader, store *testcase.Store) *Deriver {
	return &Deriver{
		traces: traces,
		store:  store,
		now:    time.Now,
		newID:  uuid.NewString,
		locks:  map[string]*sync.Mutex{},
	}
}

// lock returns the held lock of one test case.
func (d *Deriver) lock(id string) *sync.Mutex {
	d.mu.Lock()
	l, ok := d.locks[id]
	if !ok {
		l = &sync.Mutex{}
		d.locks[id] = l
	}
	d.mu.Unlock()
	l.Lock()
	return l
}

// Derive builds a studio test case from the trace with the given id and
// persists it. The expected_* fields start equal to their actual_* pairs and
// modified_fields starts empty.
func (d *Deriver) Derive(ctx context.Context, traceID string) (*testcase.TestCase, error) {
	trace, err := d.traces.Get(ctx, traceID)
	if err != nil {
		return nil, err
	}
	tc, err := FromTrace(trace, d.newID(), d.now())
	if err != nil {
		return nil, err
	}
	if err := d.store.Save(ctx, tc); err != nil {
		return nil, err
	}
	clog.FromContext(ctx).With("trace_id", traceID, "id", tc.ID, "agent_type", tc.AgentType).Info("Derived test case from trace")
	return tc, nil
}

// FromTrace builds a test case from a trace without touching any store.
func FromTrace(trace *agenttrace.Trace, id string, now time.Time) (*testcase.TestCase, error) {
	out := trace.Outcome
	tools := toolNames(trace)

	var payload testcase.Payload
	switch testcase.AgentType(trace.AgentType) {
	case testcase.CMOAgent:
		payload = &testcase.CMO{
			Query:                 trace.Input,
			ExpectedComplexity:    testcase.Complexity(out.Complexity),
			ExpectedSpecialties:   nonNil(out.Specialties),
			ExpectedKeyDataPoints: slices.Clone(out.KeyDataPoints),
			ExpectedTools:         slices.Clone(tools),
			ExpectedMaxCost:       out.TotalCost,
			ActualComplexity:      testcase.Complexity(out.Complexity),
			ActualSpecialties:     nonNil(out.Specialties),
			ActualKeyDataPoints:   slices.Clone(out.KeyDataPoints),
			ActualTotalCost:       out.TotalCost,
		}
	case testcase.SpecialistAgent:
		specialty := metadataString(trace, "specialty")
		if specialty == "" && len(out.Specialties) > 0 {
			specialty = out.Specialties[0]
		}
		priority := metadataString(trace, "priority")
		if priority == "" {
			priority = defaultPriority
		}
		payload = &testcase.Specialist{
			Specialty: specialty,
			Task: testcase.Task{
				Objective:      trace.Input,
				Context:        metadataString(trace, "context"),
				ExpectedOutput: out.FinalText,
				Priority:       priority,
				MaxToolCalls:   max(len(trace.ToolCalls), 1),
			},
			ExpectedTools:       slices.Clone(tools),
			ExpectedKeyFindings: slices.Clone(out.KeyDataPoints),
			ActualTools:         slices.Clone(tools),
			ActualTotalCost:     out.TotalCost,
		}
	case testcase.VisualizationAgent:
		inputType := metadataString(trace, "input_type")
		if inputType == "" {
			inputType = "text"
		}
		payload = &testcase.Visualization{
			InputData:         testcase.InputData{Type: inputType, Data: trace.Input},
			ExpectedChartType: out.ChartType,
			ExpectedTools:     slices.Clone(tools),
			ActualChartType:   out.ChartType,
		}
	default:
		return nil, evalerr.Validationf(trace.ID, "cannot derive a test case for agent type %q", trace.AgentType)
	}

	tc := &testcase.TestCase{
		Envelope: testcase.Envelope{
			ID:          id,
			AgentType:   testcase.AgentType(trace.AgentType),
			Category:    metadataString(trace, "category"),
			Description: fmt.Sprintf("Derived from trace %s", trace.ID),
			TraceID:     trace.ID,
			CreatedBy:   testcase.Studio,
			CreatedAt:   now.UTC(),
		},
		Payload: payload,
	}
	doc, err := tc.Document()
	if err != nil {
		return nil, err
	}
	// Round trip through validation so a trace missing a required outcome
	// is rejected here rather than at evaluation time.
	tc, err = testcase.FromDocument(trace.ID, doc)
	if err != nil {
		return nil, err
	}
	if tc.Baseline, err = tc.EditableFields(); err != nil {
		return nil, err
	}
	tc.ModifiedFields = []string{}
	return tc, nil
}

// Update applies a partial update to the test case with the given id and
// persists the result. A JSON null removes an optional field.
//
// Changing an actual_* field fails with *evalerr.ImmutableFieldError;
// changing identity fields fails with *evalerr.ValidationError. Keys whose
// value is unchanged are accepted, so re-issuing an update is a no-op.
func (d *Deriver) Update(ctx context.Context, id string, partial map[string]json.RawMessage) (*testcase.TestCase, error) {
	defer d.lock(id).Unlock()

	tc, err := d.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	updated, err := Apply(tc, partial)
	if err != nil {
		return nil, err
	}
	if err := d.store.Save(ctx, updated); err != nil {
		return nil, err
	}
	clog.FromContext(ctx).With("id", id, "modified_fields", updated.ModifiedFields).Info("Updated test case")
	return updated, nil
}

// Apply returns a copy of tc with partial applied and modified_fields
// recomputed. tc is not changed.
func Apply(tc *testcase.TestCase, partial map[string]json.RawMessage) (*testcase.TestCase, error) {
	doc, err := tc.Document()
	if err != nil {
		return nil, err
	}

	var immutable, locked, unknown []string
	for key, value := range partial {
		if sameJSON(doc[key], value) || (isNull(value) && doc[key] == nil) {
			continue
		}
		switch {
		case strings.HasPrefix(key, "actual_"):
			immutable = append(immutable, key)
		case slices.Contains(lockedFields, key):
			locked = append(locked, key)
		case !knownField(tc.AgentType, key):
			unknown = append(unknown, key)
		}
	}
	if len(immutable) > 0 {
		sort.Strings(immutable)
		return nil, &evalerr.ImmutableFieldError{Fields: immutable}
	}
	if len(locked) > 0 || len(unknown) > 0 {
		sort.Strings(locked)
		sort.Strings(unknown)
		verr := &evalerr.ValidationError{Source: tc.ID}
		for _, k := range locked {
			verr.Problems = append(verr.Problems, fmt.Sprintf("field %s cannot be changed", k))
		}
		for _, k := range unknown {
			verr.Problems = append(verr.Problems, fmt.Sprintf("unknown field %s for agent type %s", k, tc.AgentType))
		}
		return nil, verr
	}

	baseline := tc.Baseline
	if baseline == nil {
		// Hand-authored cases have no derivation snapshot; the state before
		// the first edit stands in for it.
		if baseline, err = tc.EditableFields(); err != nil {
			return nil, err
		}
	}

	for key, value := range partial {
		if slices.Contains(lockedFields, key) || strings.HasPrefix(key, "actual_") {
			continue
		}
		if isNull(value) {
			delete(doc, key)
		} else {
			doc[key] = value
		}
	}

	updated, err := testcase.FromDocument(tc.ID, doc)
	if err != nil {
		return nil, err
	}
	current, err := updated.EditableFields()
	if err != nil {
		return nil, err
	}
	updated.Baseline = maps.Clone(baseline)
	updated.ModifiedFields = ModifiedFields(baseline, current)
	return updated, nil
}

// ModifiedFields returns, in sorted order, the editable fields whose current
// value differs from the baseline. Fields restored to their baseline value
// are not reported. actual_* fields are never reported.
func ModifiedFields(baseline, current map[string]json.RawMessage) []string {
	keys := make(map[string]struct{}, len(baseline)+len(current))
	for k := range baseline {
		keys[k] = struct{}{}
	}
	for k := range current {
		keys[k] = struct{}{}
	}

	out := []string{}
	for k := range keys {
		if strings.HasPrefix(k, "actual_") || slices.Contains(lockedFields, k) {
			continue
		}
		b, inBase := baseline[k]
		c, inCur := current[k]
		if inBase != inCur || !sameJSON(b, c) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func knownField(agentType testcase.AgentType, key string) bool {
	if !agentType.Known() || testcase.IsEnvelopeField(key) {
		return true
	}
	s, err := testcase.Schema(agentType)
	if err != nil || s.Properties == nil {
		return true
	}
	_, ok := s.Properties.Get(key)
	return ok
}

// sameJSON reports whether two encodings hold the same value.
func sameJSON(a, b json.RawMessage) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	var av, bv any
	if json.Unmarshal(a, &av) != nil || json.Unmarshal(b, &bv) != nil {
		return false
	}
	return cmp.Equal(av, bv)
}

func isNull(v json.RawMessage) bool {
	return strings.TrimSpace(string(v)) == "null"
}

func toolNames(trace *agenttrace.Trace) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, tc := range trace.ToolCalls {
		if _, ok := seen[tc.Name]; ok || tc.Name == "" {
			continue
		}
		seen[tc.Name] = struct{}{}
		names = append(names, tc.Name)
	}
	return names
}

func metadataString(trace *agenttrace.Trace, key string) string {
	s, _ := trace.Metadata[key].(string)
	return s
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return slices.Clone(s)
}
