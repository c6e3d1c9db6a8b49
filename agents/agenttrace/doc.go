/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

/*
Package agenttrace provides the trace model for agent executions and the
stores that hold captured traces.

# Overview

A Trace is the immutable record of one execution of the agent under test:

  - Steps: ordered units of work (classification, delegation, synthesis)
  - ToolCalls: individual tool invocations with parameters and results
  - Outcome: the terminal values a derived test case copies into actual_*
  - ExecutionContext: the evaluation and test case that caused the run

Traces are read through the Reader interface. FileStore keeps one JSON file
per trace on local disk; GCSStore reads the same layout from a Cloud Storage
bucket. Open picks between them based on the root.

# Usage

Capture traces while an agent runs and persist them:

	store := agenttrace.NewFileStore("/var/lib/agenteval/traces")
	ctx = agenttrace.WithTracer(ctx, agenttrace.ByCode(store.Recorder(ctx)))

	trace := agenttrace.StartTrace(ctx, "cmo", "How did Q3 revenue compare to plan?")
	tc := trace.StartToolCall("tc1", "query_financials", map[string]any{
		"quarter": "Q3",
	})
	tc.Complete(map[string]any{"rows": 12}, nil)
	trace.Complete(agenttrace.Outcome{Complexity: "STANDARD"}, nil)

Load a stored trace:

	reader, err := agenttrace.Open(ctx, "gs://my-bucket/traces")
	if err != nil {
		return err
	}
	trace, err := reader.Get(ctx, "20260101-120000-deadbeef")
*/
package agenttrace
