/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Runs records the lifecycle of evaluation runs.
type Runs struct {
	started  metric.Int64Counter
	finished metric.Int64Counter
	tests    metric.Int64Counter
}

// NewRuns creates run lifecycle counters under meterName.
func NewRuns(meterName string) *Runs {
	meter := otel.Meter(meterName, metric.WithInstrumentationVersion("1.0.0"))
	return &Runs{
		started: counter(meter, meterName, "evaluation.runs.started",
			"The number of evaluation runs started", "{runs}"),
		finished: counter(meter, meterName, "evaluation.runs.finished",
			"The number of evaluation runs that reached a terminal status", "{runs}"),
		tests: counter(meter, meterName, "evaluation.tests",
			"The number of test cases evaluated", "{tests}"),
	}
}

// RecordStart counts a started run.
func (r *Runs) RecordStart(ctx context.Context, tests int) {
	r.started.Add(ctx, 1, metric.WithAttributes(attribute.Int("tests", tests)))
}

// RecordTest counts one evaluated test case.
func (r *Runs) RecordTest(ctx context.Context, agentType string, passed bool) {
	r.tests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("agent_type", agentType),
		attribute.Bool("passed", passed),
	))
}

// RecordFinish counts a run reaching status, with the phase it failed in.
func (r *Runs) RecordFinish(ctx context.Context, status, phase string) {
	attrs := []attribute.KeyValue{attribute.String("status", status)}
	if phase != "" {
		attrs = append(attrs, attribute.String("phase", phase))
	}
	r.finished.Add(ctx, 1, metric.WithAttributes(attrs...))
}
