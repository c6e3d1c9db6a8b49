/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

/*
Package evals scores a recorded agent execution against a test case, one
quality dimension at a time.

# Core Components

  - Dimension: a scorer bound to one quality axis, a pass threshold and an
    evaluation method (deterministic, llm_judge or hybrid)
  - DimensionResult: raw and normalized score, components and details
  - Registry: the dimensions in evaluation order plus threshold overrides
  - Check: a pass/fail inspection of a trace reported to an Observer
  - Observer: interface for evaluation observing and grading
  - NamespacedObserver: hierarchical namespace management, keyed by agent
    type and dimension
  - ResultCollector: Observer wrapper that collects failure messages and grades
  - MetricsObserver: Observer exporting Prometheus counters

# Built-in Dimensions

	complexity        cmo                      deterministic  0.90
	specialty         cmo                      hybrid         0.85
	analysis_quality  cmo, specialist          llm_judge      0.80
	tool_usage        cmo, specialist, viz     deterministic  0.90
	structure         every agent type         deterministic  0.95

Agent types without a schema are scored on structure only.

# Usage

	reg, err := evals.NewRegistry(evals.Builtin(judgeClient)...)
	if err != nil {
		return err
	}
	obs := evals.NewNamespacedObserver(evals.NewMetricsObserver)
	for _, dim := range reg.For(tc.AgentType) {
		res, err := evals.Evaluate(ctx, dim, tc, trace,
			obs.Child(string(tc.AgentType)).Child(dim.Name()))
		if err != nil {
			// *evalerr.EvaluationError: record it and keep going.
			continue
		}
		fmt.Println(res.Dimension, res.NormalizedScore)
	}

Evaluate always returns scores in [0, 1] with
normalized_score = raw_score / max_score. A dimension that cannot produce a
score, such as a judge returning text without a number, fails with an
*evalerr.EvaluationError instead of a default score.

# Checks

Deterministic dimensions are assembled from Check functions that can also
be used on their own:

	rc := evals.Run(trace,
		evals.NoTraceError(),
		evals.MaximumNToolCalls(5),
		evals.RequiredToolCalls([]string{"lab_results"}),
	)
	if !rc.Passed() {
		fmt.Println(rc.Failures())
	}
*/
package evals
