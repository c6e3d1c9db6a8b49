/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package aggregate

import (
	"fmt"
	"math"
	"sort"
	"time"

	"chainguard.dev/agenteval/agents/evals"
	"chainguard.dev/agenteval/agents/testcase"
)

// Failure kinds in dimension_failure_details. An evaluation error is never
// reported as a low score.
const (
	BelowThreshold  = "below_threshold"
	EvaluationError = "evaluation_error"
)

// TestResult holds one test case's dimension results. A dimension that could
// not be scored appears in Errors and not in Dimensions.
type TestResult struct {
	TestCaseID string                            `json:"test_case_id"`
	AgentType  testcase.AgentType                `json:"agent_type"`
	TraceID    string                            `json:"trace_id,omitempty"`
	Dimensions map[string]*evals.DimensionResult `json:"dimensions"`
	Errors     map[string]string                 `json:"errors,omitempty"`
	Passed     bool                              `json:"passed"`
	Weak       *WeakComponent                    `json:"weak_component,omitempty"`
}

// NewTestResult creates an empty result for a test case.
func NewTestResult(tc *testcase.TestCase, traceID string) *TestResult {
	return &TestResult{
		TestCaseID: tc.ID,
		AgentType:  tc.AgentType,
		TraceID:    traceID,
		Dimensions: map[string]*evals.DimensionResult{},
	}
}

// Record stores a dimension result.
func (t *TestResult) Record(res *evals.DimensionResult) {
	t.Dimensions[res.Dimension] = res
}

// RecordError stores a dimension that failed to score.
func (t *TestResult) RecordError(dimension string, err error) {
	if t.Errors == nil {
		t.Errors = map[string]string{}
	}
	t.Errors[dimension] = err.Error()
}

// DimensionSummary is the suite-level verdict for one dimension.
type DimensionSummary struct {
	Dimension string  `json:"dimension"`
	Average   float64 `json:"average"`
	Threshold float64 `json:"threshold"`
	// Gap is how far the average falls short of the threshold, zero when
	// the dimension passes.
	Gap    float64 `json:"gap"`
	Passed bool    `json:"passed"`
	Scored int     `json:"scored"`
	Errors int     `json:"errors"`
}

// FailureDetail names one (test case, dimension) pair that failed.
type FailureDetail struct {
	TestCaseID string   `json:"test_case_id"`
	Dimension  string   `json:"dimension"`
	Kind       string   `json:"kind"`
	Score      *float64 `json:"score,omitempty"`
	Threshold  float64  `json:"threshold"`
	Error      string   `json:"error,omitempty"`
	Summary    string   `json:"summary,omitempty"`
}

// WeakComponent is the lowest scoring component of a failing test, with a
// root cause summary.
type WeakComponent struct {
	Dimension string  `json:"dimension"`
	Component string  `json:"component"`
	Score     float64 `json:"score"`
	Summary   string  `json:"summary"`
}

// SuiteResult is the aggregated outcome of a run.
type SuiteResult struct {
	EvaluationID            string             `json:"evaluation_id"`
	Tests                   []*TestResult      `json:"tests"`
	Dimensions              []DimensionSummary `json:"dimensions"`
	OverallScore            float64            `json:"overall_score"`
	OverallPass             bool               `json:"overall_pass"`
	DimensionFailureDetails []FailureDetail    `json:"dimension_failure_details"`
	CompletedAt             time.Time          `json:"completed_at"`
}

// FailingDimensions returns the dimensions whose gate failed.
func (s *SuiteResult) FailingDimensions() []DimensionSummary {
	var out []DimensionSummary
	for _, d := range s.Dimensions {
		if !d.Passed {
			out = append(out, d)
		}
	}
	return out
}

// Verdict returns PASS or FAIL.
func (s *SuiteResult) Verdict() string {
	if s.OverallPass {
		return "PASS"
	}
	return "FAIL"
}

// Aggregate combines per-test results. order fixes the dimension order of the
// summary; dimensions not in order follow alphabetically. Each dimension's
// average covers only the tests that scored it, and the suite passes only if
// every evaluated dimension's average meets its threshold. Averages are
// rounded to nine decimal places before the comparison, so an average equal
// to its threshold passes.
//
// A dimension that was attempted but never scored, because every test
// errored on it, has no average to compare and fails the gate. This is the
// one case where a dimension fails without an average strictly below its
// threshold.
//
// overall_score is the unweighted mean of every scored (test, dimension)
// pair, independent of the gate.
func Aggregate(evaluationID string, order []string, thresholds map[string]float64, tests []*TestResult) *SuiteResult {
	type acc struct {
		sum    float64
		scored int
		errors int
	}
	accs := map[string]*acc{}
	get := func(dim string) *acc {
		a, ok := accs[dim]
		if !ok {
			a = &acc{}
			accs[dim] = a
		}
		return a
	}

	var total float64
	var count int
	for _, t := range tests {
		for dim, res := range t.Dimensions {
			a := get(dim)
			a.sum += res.NormalizedScore
			a.scored++
			total += res.NormalizedScore
			count++
		}
		for dim := range t.Errors {
			get(dim).errors++
		}
	}

	out := &SuiteResult{
		EvaluationID:            evaluationID,
		Tests:                   tests,
		Dimensions:              []DimensionSummary{},
		OverallPass:             true,
		DimensionFailureDetails: []FailureDetail{},
	}
	if count > 0 {
		out.OverallScore = total / float64(count)
	}

	for _, dim := range dimensionOrder(order, accs) {
		a := accs[dim]
		sum := DimensionSummary{
			Dimension: dim,
			Threshold: thresholds[dim],
			Scored:    a.scored,
			Errors:    a.errors,
		}
		if a.scored > 0 {
			sum.Average = round(a.sum / float64(a.scored))
			sum.Passed = Meets(sum.Average, sum.Threshold)
		}
		if !sum.Passed {
			sum.Gap = round(sum.Threshold - sum.Average)
			out.OverallPass = false
		}
		out.Dimensions = append(out.Dimensions, sum)
	}

	for _, t := range tests {
		out.DimensionFailureDetails = append(out.DimensionFailureDetails, failures(t, thresholds)...)
		t.Passed = true
		for _, d := range out.DimensionFailureDetails {
			if d.TestCaseID == t.TestCaseID {
				t.Passed = false
				break
			}
		}
		if !t.Passed {
			t.Weak = weakest(t, thresholds)
		}
	}
	return out
}

func dimensionOrder[V any](order []string, present map[string]V) []string {
	seen := make(map[string]bool, len(present))
	var out []string
	for _, dim := range order {
		if _, ok := present[dim]; ok && !seen[dim] {
			out = append(out, dim)
			seen[dim] = true
		}
	}
	var rest []string
	for dim := range present {
		if !seen[dim] {
			rest = append(rest, dim)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

func failures(t *TestResult, thresholds map[string]float64) []FailureDetail {
	var out []FailureDetail
	for _, dim := range sortedKeys(t.Errors) {
		out = append(out, FailureDetail{
			TestCaseID: t.TestCaseID,
			Dimension:  dim,
			Kind:       EvaluationError,
			Threshold:  thresholds[dim],
			Error:      t.Errors[dim],
		})
	}
	for _, dim := range sortedKeys(t.Dimensions) {
		res := t.Dimensions[dim]
		if Meets(res.NormalizedScore, thresholds[dim]) {
			continue
		}
		score := res.NormalizedScore
		out = append(out, FailureDetail{
			TestCaseID: t.TestCaseID,
			Dimension:  dim,
			Kind:       BelowThreshold,
			Score:      &score,
			Threshold:  thresholds[dim],
			Summary:    res.Summary,
		})
	}
	return out
}

// weakest picks the dimension furthest below its threshold and, within it,
// the lowest component. An evaluation error outranks any score.
func weakest(t *TestResult, thresholds map[string]float64) *WeakComponent {
	if errs := sortedKeys(t.Errors); len(errs) > 0 {
		return &WeakComponent{
			Dimension: errs[0],
			Component: "error",
			Summary:   fmt.Sprintf("could not be scored: %s", t.Errors[errs[0]]),
		}
	}

	var worst *evals.DimensionResult
	worstGap := math.Inf(-1)
	for _, dim := range sortedKeys(t.Dimensions) {
		res := t.Dimensions[dim]
		if gap := thresholds[dim] - res.NormalizedScore; gap > worstGap {
			worst, worstGap = res, gap
		}
	}
	if worst == nil {
		return nil
	}

	wc := &WeakComponent{
		Dimension: worst.Dimension,
		Component: worst.Dimension,
		Score:     worst.NormalizedScore,
		Summary:   worst.Summary,
	}
	first := true
	for _, name := range sortedKeys(worst.Components) {
		if v := worst.Components[name]; first || v < wc.Score {
			wc.Component, wc.Score, first = name, v, false
		}
	}
	if wc.Summary == "" {
		wc.Summary = fmt.Sprintf("%s scored %.2f against a threshold of %.2f", worst.Dimension, worst.NormalizedScore, thresholds[worst.Dimension])
	}
	return wc
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Meets reports whether score reaches threshold, ignoring floating point
// noise below the ninth decimal place.
func Meets(score, threshold float64) bool {
	return round(score) >= round(threshold)
}

// round trims floating point noise from sums and gaps such as 0.80-0.7525.
func round(f float64) float64 {
	return math.Round(f*1e9) / 1e9
}
