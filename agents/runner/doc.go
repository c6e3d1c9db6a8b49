/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package runner is the run manager: it turns a selection of test cases
// into a persisted, pollable evaluation run.
//
// Start and StartSuite resolve the selection synchronously, so an unknown
// test case or missing trace is returned to the caller and never reaches an
// event log. They return once the run directory and its running metadata
// exist; scoring continues in the background, bounded by WithConcurrency.
// Evaluate does the same work in the foreground.
//
// For each test case the run writes trace_load, dimension_start and one
// {dimension}_eval event per applicable dimension, in registry order. A
// dimension that cannot be scored is recorded with status "error" and the
// run carries on. After the last test case the run writes overall_score,
// then result.json, then evaluation_complete. A failed write, an agent that
// produces no trace, Shutdown or the inactivity timeout fail the run with
// an evaluation_error event naming the phase.
//
//	m := runner.New(runs, cases, traces, registry, runner.WithAgent(agent))
//	id, err := m.Start(ctx, "cmo-revenue-q3")
//	page, err := m.Events(ctx, id, 0)
package runner
