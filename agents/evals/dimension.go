/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package evals

import (
	"context"
	"errors"
	"fmt"
	"math"

	"chainguard.dev/agenteval/agents/agenttrace"
	"chainguard.dev/agenteval/agents/evalerr"
	"chainguard.dev/agenteval/agents/testcase"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Method says how a dimension produces its score.
type Method string

const (
	Deterministic Method = "deterministic"
	LLMJudge      Method = "llm_judge"
	Hybrid        Method = "hybrid"
)

// DimensionResult is the score of one dimension for one test case.
type DimensionResult struct {
	Dimension       string             `json:"dimension_name"`
	RawScore        float64            `json:"raw_score"`
	MaxScore        float64            `json:"max_score"`
	NormalizedScore float64            `json:"normalized_score"`
	Components      map[string]float64 `json:"components"`
	Method          Method             `json:"evaluation_method"`
	Summary         string             `json:"summary,omitempty"`
	Details         map[string]any     `json:"details,omitempty"`
}

// NewResult builds a result with normalized_score = raw/max. raw must lie in
// [0, maxScore] and maxScore must be positive.
func NewResult(dimension string, method Method, raw, maxScore float64) (*DimensionResult, error) {
	switch {
	case math.IsNaN(raw) || math.IsNaN(maxScore) || math.IsInf(raw, 0) || math.IsInf(maxScore, 0):
		return nil, fmt.Errorf("%s: scores must be finite, got %v/%v", dimension, raw, maxScore)
	case maxScore <= 0:
		return nil, fmt.Errorf("%s: max score must be positive, got %v", dimension, maxScore)
	case raw < 0 || raw > maxScore:
		return nil, fmt.Errorf("%s: raw score %v outside [0, %v]", dimension, raw, maxScore)
	}
	return &DimensionResult{
		Dimension:       dimension,
		RawScore:        raw,
		MaxScore:        maxScore,
		NormalizedScore: raw / maxScore,
		Components:      map[string]float64{},
		Method:          method,
		Details:         map[string]any{},
	}, nil
}

// Dimension scores one quality axis. Implementations must not depend on
// other dimensions and must be safe for concurrent use.
type Dimension interface {
	// Name is the dimension's stable identifier, e.g. "tool_usage".
	Name() string
	// Method reports how Score computes its result.
	Method() Method
	// Threshold is the default pass threshold in [0, 1].
	Threshold() float64
	// Applies reports whether the dimension scores the agent type.
	Applies(agentType testcase.AgentType) bool
	// Score evaluates the test case against the trace.
	Score(ctx context.Context, tc *testcase.TestCase, trace *agenttrace.Trace) (*DimensionResult, error)
}

// Evaluate scores one dimension, recording the outcome on obs when it is not
// nil. Any failure is returned as a *evalerr.EvaluationError; the caller
// decides whether to continue with other dimensions.
func Evaluate(ctx context.Context, d Dimension, tc *testcase.TestCase, trace *agenttrace.Trace, obs Observer) (*DimensionResult, error) {
	ctx, span := otel.Tracer("chainguard.dev/agenteval/agents/evals").Start(ctx, "evaluation.dimension")
	defer span.End()
	span.SetAttributes(
		attribute.String("dimension", d.Name()),
		attribute.String("test_case_id", tc.ID),
		attribute.String("evaluation_method", string(d.Method())),
	)
	if obs != nil {
		obs.Increment()
	}

	res, err := d.Score(ctx, tc, trace)
	if err == nil && res == nil {
		err = errors.New("no result")
	}
	if err == nil {
		err = res.check()
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if obs != nil {
			obs.Fail(err.Error())
		}
		var eerr *evalerr.EvaluationError
		if errors.As(err, &eerr) {
			return nil, eerr
		}
		return nil, &evalerr.EvaluationError{Dimension: d.Name(), TestCaseID: tc.ID, Err: err}
	}

	res.Dimension = d.Name()
	span.SetAttributes(attribute.Float64("normalized_score", res.NormalizedScore))
	if obs != nil {
		obs.Grade(res.NormalizedScore, res.Summary)
	}
	return res, nil
}

// check re-verifies the normalization invariant.
func (r *DimensionResult) check() error {
	if r.MaxScore <= 0 || math.IsNaN(r.NormalizedScore) || r.NormalizedScore < 0 || r.NormalizedScore > 1 {
		return fmt.Errorf("%s: invalid score %v/%v", r.Dimension, r.RawScore, r.MaxScore)
	}
	if math.Abs(r.RawScore/r.MaxScore-r.NormalizedScore) > 1e-9 {
		return fmt.Errorf("%s: normalized score %v does not equal %v/%v", r.Dimension, r.NormalizedScore, r.RawScore, r.MaxScore)
	}
	return nil
}

// mean averages the component values, in [0,1] when they are.
func mean(components map[string]float64) float64 {
	if len(components) == 0 {
		return 0
	}
	var sum float64
	for _, v := range components {
		sum += v
	}
	return sum / float64(len(components))
}
