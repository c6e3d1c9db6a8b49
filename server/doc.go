/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package server exposes the evaluation engine over HTTP/JSON.
//
// Routes:
//
//	POST  /v1/test-cases/from-trace             derive a test case from a trace
//	GET   /v1/test-cases?agent_type=            list test case ids
//	GET   /v1/test-cases/{id}                   fetch a test case
//	PATCH /v1/test-cases/{id}                   apply a partial update
//	POST  /v1/evaluations                       start an evaluation run
//	GET   /v1/evaluations                       list runs, newest first
//	GET   /v1/evaluations/{id}/events           poll events from start_index
//	GET   /v1/evaluations/{id}/result           fetch the suite result
//	GET   /v1/schemas/{agent_type}              JSON Schema of a test case
//	GET   /metrics                              Prometheus metrics
//
// Errors are returned as {"error": "..."} with the status chosen by
// StatusFor.
package server
