/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package evals

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"chainguard.dev/agenteval/agents/agenttrace"
	"chainguard.dev/agenteval/agents/judge"
	"chainguard.dev/agenteval/agents/testcase"
)

// Names of the built-in dimensions, in evaluation order.
const (
	ComplexityDimension      = "complexity"
	SpecialtyDimension       = "specialty"
	AnalysisQualityDimension = "analysis_quality"
	ToolUsageDimension       = "tool_usage"
	StructureDimension       = "structure"
)

// ErrNoJudge is returned by judge-based dimensions when no judge is configured.
var ErrNoJudge = errors.New("no judge configured")

// Builtin returns the built-in dimensions in evaluation order. j may be nil,
// in which case analysis_quality fails and specialty falls back to set
// precision.
func Builtin(j judge.Interface) []Dimension {
	return []Dimension{
		Complexity{},
		Specialty{Judge: j},
		AnalysisQuality{Judge: j},
		ToolUsage{},
		Structure{},
	}
}

// Complexity compares the declared complexity with the classification the
// coordinator made. An adjacent level earns half credit.
type Complexity struct{}

func (Complexity) Name() string       { return ComplexityDimension }
func (Complexity) Method() Method     { return Deterministic }
func (Complexity) Threshold() float64 { return 0.90 }
func (Complexity) Applies(a testcase.AgentType) bool {
	return a == testcase.CMOAgent
}

func (c Complexity) Score(_ context.Context, tc *testcase.TestCase, trace *agenttrace.Trace) (*DimensionResult, error) {
	cmo := tc.CMO()
	if cmo == nil {
		return nil, fmt.Errorf("complexity needs a cmo test case, got %s", tc.AgentType)
	}
	expected := cmo.ExpectedComplexity
	actual := testcase.Complexity(trace.Outcome.Complexity)

	score := 0.0
	distance := -1
	if actual.Valid() {
		distance = abs(expected.Level() - actual.Level())
		switch distance {
		case 0:
			score = 1
		case 1:
			score = 0.5
		}
	}

	res, err := NewResult(c.Name(), c.Method(), score, 1)
	if err != nil {
		return nil, err
	}
	res.Components["classification"] = score
	res.Details["expected"] = expected
	res.Details["actual"] = actual
	res.Details["level_distance"] = distance
	res.Summary = fmt.Sprintf("expected %s, classified %s", expected, orNone(string(actual)))
	return res, nil
}

// Specialty scores the set of specialists the coordinator selected: recall
// against the expected set, and precision of the selection. Precision comes
// from the judge when one is configured and from set overlap otherwise.
type Specialty struct {
	Judge judge.Interface
}

func (Specialty) Name() string       { return SpecialtyDimension }
func (Specialty) Method() Method     { return Hybrid }
func (Specialty) Threshold() float64 { return 0.85 }
func (Specialty) Applies(a testcase.AgentType) bool {
	return a == testcase.CMOAgent
}

func (s Specialty) Score(ctx context.Context, tc *testcase.TestCase, trace *agenttrace.Trace) (*DimensionResult, error) {
	cmo := tc.CMO()
	if cmo == nil {
		return nil, fmt.Errorf("specialty needs a cmo test case, got %s", tc.AgentType)
	}
	expected := normalizeSet(cmo.ExpectedSpecialties)
	actual := normalizeSet(trace.Outcome.Specialties)
	matched := intersect(expected, actual)

	recall := 1.0
	if len(expected) > 0 {
		recall = float64(len(matched)) / float64(len(expected))
	}

	precision, source, reasoning := 0.0, "set", ""
	switch {
	case len(actual) == 0:
		if len(expected) == 0 {
			precision = 1
		}
	case s.Judge != nil:
		verdict, err := s.Judge.Judge(ctx, &judge.Request{
			Mode:            judge.GoldenMode,
			ReferenceAnswer: fmt.Sprintf("Query: %s\nSpecialists: %s", cmo.Query, orNone(strings.Join(expected, ", "))),
			ActualAnswer:    fmt.Sprintf("Specialists: %s", strings.Join(actual, ", ")),
			Criterion:       "every selected specialist is relevant to the query; score the fraction of the selection that is justified",
		})
		if err != nil {
			return nil, fmt.Errorf("judging specialty precision: %w", err)
		}
		precision, source, reasoning = verdict.Score, "judge", verdict.Reasoning
	default:
		precision = float64(len(matched)) / float64(len(actual))
	}

	res, err := NewResult(s.Name(), s.Method(), recall+precision, 2)
	if err != nil {
		return nil, err
	}
	res.Components["recall"] = recall
	res.Components["precision"] = precision
	res.Details["missing"] = difference(expected, actual)
	res.Details["unexpected"] = difference(actual, expected)
	res.Details["precision_source"] = source
	if reasoning != "" {
		res.Details["reasoning"] = reasoning
	}
	res.Summary = fmt.Sprintf("recall %.2f, precision %.2f (%s)", recall, precision, source)
	return res, nil
}

// AnalysisQuality asks the judge to grade the final answer against the
// expected key data points, or against the specialist's expected output.
type AnalysisQuality struct {
	Judge judge.Interface
}

func (AnalysisQuality) Name() string       { return AnalysisQualityDimension }
func (AnalysisQuality) Method() Method     { return LLMJudge }
func (AnalysisQuality) Threshold() float64 { return 0.80 }
func (AnalysisQuality) Applies(a testcase.AgentType) bool {
	return a == testcase.CMOAgent || a == testcase.SpecialistAgent
}

func (a AnalysisQuality) Score(ctx context.Context, tc *testcase.TestCase, trace *agenttrace.Trace) (*DimensionResult, error) {
	if a.Judge == nil {
		return nil, ErrNoJudge
	}
	answer := strings.TrimSpace(trace.Outcome.FinalText)
	if answer == "" {
		res, err := NewResult(a.Name(), a.Method(), 0, 1)
		if err != nil {
			return nil, err
		}
		res.Components["judge"] = 0
		res.Summary = "no final answer to grade"
		return res, nil
	}

	req := &judge.Request{ActualAnswer: answer}
	switch p := tc.Payload.(type) {
	case *testcase.CMO:
		if len(p.ExpectedKeyDataPoints) > 0 {
			req.Mode = judge.GoldenMode
			req.ReferenceAnswer = bullets("Key data points", p.ExpectedKeyDataPoints)
			req.Criterion = "the analysis states every key data point accurately and answers the query: " + p.Query
		} else {
			req.Mode = judge.StandaloneMode
			req.Criterion = "the analysis answers the query accurately and completely: " + p.Query
		}
	case *testcase.Specialist:
		req.Mode = judge.GoldenMode
		req.ReferenceAnswer = p.Task.ExpectedOutput
		if len(p.ExpectedKeyFindings) > 0 {
			req.ReferenceAnswer += "\n\n" + bullets("Key findings", p.ExpectedKeyFindings)
		}
		req.Criterion = "the findings accomplish the objective with the expected key findings: " + p.Task.Objective
	default:
		return nil, fmt.Errorf("analysis_quality does not apply to %s", tc.AgentType)
	}

	verdict, err := a.Judge.Judge(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("judging analysis quality: %w", err)
	}
	res, err := NewResult(a.Name(), a.Method(), verdict.Score, 1)
	if err != nil {
		return nil, err
	}
	res.Components["judge"] = verdict.Score
	res.Summary = verdict.Reasoning
	res.Details["mode"] = req.Mode
	res.Details["suggestions"] = verdict.Suggestions
	return res, nil
}

// ToolUsage scores tool calls against the call budget, their success and
// the tools the test case requires.
type ToolUsage struct{}

func (ToolUsage) Name() string       { return ToolUsageDimension }
func (ToolUsage) Method() Method     { return Deterministic }
func (ToolUsage) Threshold() float64 { return 0.90 }
func (ToolUsage) Applies(a testcase.AgentType) bool { return a.Known() }

func (u ToolUsage) Score(_ context.Context, tc *testcase.TestCase, trace *agenttrace.Trace) (*DimensionResult, error) {
	var budget int
	var required []string
	switch p := tc.Payload.(type) {
	case *testcase.CMO:
		budget, required = p.MaxToolCalls, p.ExpectedTools
	case *testcase.Specialist:
		budget, required = p.Task.MaxToolCalls, p.ExpectedTools
	case *testcase.Visualization:
		budget, required = p.MaxToolCalls, p.ExpectedTools
	default:
		return nil, fmt.Errorf("tool_usage does not apply to %s", tc.AgentType)
	}

	calls := len(trace.ToolCalls)
	withinBudget := 1.0
	if budget > 0 && calls > budget {
		withinBudget = float64(budget) / float64(calls)
	}

	validCalls := 1.0
	if calls > 0 {
		var failed int
		for _, c := range trace.ToolCalls {
			if c.Failed() {
				failed++
			}
		}
		validCalls = float64(calls-failed) / float64(calls)
	}

	requiredTools := 1.0
	if len(required) > 0 {
		used := make(map[string]struct{}, calls)
		for _, c := range trace.ToolCalls {
			used[c.Name] = struct{}{}
		}
		var found int
		for _, name := range required {
			if _, ok := used[name]; ok {
				found++
			}
		}
		requiredTools = float64(found) / float64(len(required))
	}

	checks := []Check{NoToolErrors(), RequiredToolCalls(required)}
	if budget > 0 {
		checks = append(checks, MaximumNToolCalls(budget))
	}
	issues := Run(trace, checks...).Failures()

	components := map[string]float64{
		"within_budget":  withinBudget,
		"valid_calls":    validCalls,
		"required_tools": requiredTools,
	}
	score := mean(components)
	res, err := NewResult(u.Name(), u.Method(), score, 1)
	if err != nil {
		return nil, err
	}
	res.Components = components
	res.Details["tool_calls"] = calls
	res.Details["budget"] = budget
	res.Details["issues"] = nonNil(issues)
	res.Summary = fmt.Sprintf("%d tool calls, %d issues", calls, len(issues))
	return res, nil
}

// Structure checks that the output is well formed for the agent type. It
// applies to every agent type, including ones without a schema.
type Structure struct{}

func (Structure) Name() string                    { return StructureDimension }
func (Structure) Method() Method                  { return Deterministic }
func (Structure) Threshold() float64              { return 0.95 }
func (Structure) Applies(testcase.AgentType) bool { return true }

func (s Structure) Score(_ context.Context, tc *testcase.TestCase, trace *agenttrace.Trace) (*DimensionResult, error) {
	checks := map[string]Check{
		"no_trace_error":   NoTraceError(),
		"non_empty_output": NonEmptyOutput(),
	}
	switch tc.AgentType {
	case testcase.CMOAgent:
		checks["complexity_declared"] = OutcomeValidator(func(o agenttrace.Outcome) error {
			if !testcase.Complexity(o.Complexity).Valid() {
				return fmt.Errorf("complexity: got = %q, wanted one of SIMPLE, STANDARD, COMPLEX, COMPREHENSIVE", o.Complexity)
			}
			return nil
		})
	case testcase.SpecialistAgent:
		checks["no_failed_steps"] = NoFailedSteps()
	case testcase.VisualizationAgent:
		checks["chart_spec_well_formed"] = OutcomeValidator(func(o agenttrace.Outcome) error {
			var spec map[string]any
			if err := json.Unmarshal([]byte(o.FinalText), &spec); err != nil {
				return fmt.Errorf("chart spec is not a JSON object: %w", err)
			}
			return nil
		})
		checks["chart_type_declared"] = OutcomeValidator(func(o agenttrace.Outcome) error {
			if o.ChartType == "" {
				return errors.New("chart type: got = empty, wanted = non-empty")
			}
			return nil
		})
	}

	components := make(map[string]float64, len(checks))
	var issues []string
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		rc := Run(trace, checks[name])
		if rc.Passed() {
			components[name] = 1
		} else {
			components[name] = 0
			issues = append(issues, rc.Failures()...)
		}
	}

	res, err := NewResult(s.Name(), s.Method(), mean(components), 1)
	if err != nil {
		return nil, err
	}
	res.Components = components
	res.Details["issues"] = nonNil(issues)
	res.Summary = fmt.Sprintf("%d of %d structural checks passed", len(checks)-countZero(components), len(checks))
	return res, nil
}

func normalizeSet(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		k := strings.ToLower(strings.TrimSpace(item))
		if _, ok := seen[k]; ok || k == "" {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func intersect(a, b []string) []string {
	out := []string{}
	for _, x := range a {
		if slices.Contains(b, x) {
			out = append(out, x)
		}
	}
	return out
}

func difference(a, b []string) []string {
	out := []string{}
	for _, x := range a {
		if !slices.Contains(b, x) {
			out = append(out, x)
		}
	}
	return out
}

func bullets(title string, items []string) string {
	var sb strings.Builder
	sb.WriteString(title)
	sb.WriteString(":")
	for _, item := range items {
		sb.WriteString("\n- ")
		sb.WriteString(item)
	}
	return sb.String()
}

func countZero(m map[string]float64) int {
	var n int
	for _, v := range m {
		if v == 0 {
			n++
		}
	}
	return n
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
