/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"chainguard.dev/agenteval/agents/aggregate"
	"chainguard.dev/agenteval/agents/agenttrace"
	"chainguard.dev/agenteval/agents/derive"
	"chainguard.dev/agenteval/agents/evals"
	"chainguard.dev/agenteval/agents/judge"
	"chainguard.dev/agenteval/agents/runner"
	"chainguard.dev/agenteval/agents/runstore"
	"chainguard.dev/agenteval/agents/testcase"
	"chainguard.dev/agenteval/server"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type env struct {
	srv  *httptest.Server
	runs *runstore.Store
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	root := t.TempDir()

	traces := agenttrace.NewFileStore(filepath.Join(root, "traces"))
	require.NoError(t, traces.Put(ctx, &agenttrace.Trace{
		ID:        "trace-1",
		AgentType: "cmo",
		Input:     "How is my cholesterol?",
		ToolCalls: []*agenttrace.ToolCall{{Name: "lab_results"}},
		Outcome: agenttrace.Outcome{
			Complexity:  "STANDARD",
			Specialties: []string{"cardiology"},
			FinalText:   "LDL is 160 mg/dL.",
		},
	}))

	runs := runstore.New(filepath.Join(root, "evaluations"))
	cases := testcase.NewStore(filepath.Join(root, "test_cases"))
	j := judge.Func(func(_ context.Context, req *judge.Request) (*judge.Judgement, error) {
		return &judge.Judgement{Mode: req.Mode, Score: 0.9, Reasoning: "ok", Suggestions: []string{}}, nil
	})
	registry, err := evals.NewRegistry(evals.Builtin(j)...)
	require.NoError(t, err)
	mgr := runner.New(runs, cases, traces, registry)
	t.Cleanup(func() { _ = mgr.Shutdown(context.Background()) })

	srv := httptest.NewServer(server.New(mgr, cases, derive.New(traces, cases)))
	t.Cleanup(srv.Close)
	return &env{srv: srv, runs: runs}
}

func (e *env) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, e.srv.URL+path, r)
	require.NoError(t, err)
	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func decodeAs[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

func (e *env) derive(t *testing.T) string {
	t.Helper()
	status, body := e.do(t, http.MethodPost, "/v1/test-cases/from-trace", map[string]string{"trace_id": "trace-1"})
	require.Equal(t, http.StatusCreated, status, string(body))
	doc := decodeAs[map[string]any](t, body)
	id, _ := doc["id"].(string)
	require.NotEmpty(t, id)
	return id
}

func TestDeriveAndUpdate(t *testing.T) {
	e := newEnv(t)
	id := e.derive(t)

	status, body := e.do(t, http.MethodGet, "/v1/test-cases/"+id, nil)
	require.Equal(t, http.StatusOK, status, string(body))
	doc := decodeAs[map[string]any](t, body)
	if got, want := doc["expected_complexity"], "STANDARD"; got != want {
		t.Errorf("expected_complexity: got = %v, wanted = %v", got, want)
	}
	if got, want := doc["trace_id"], "trace-1"; got != want {
		t.Errorf("trace_id: got = %v, wanted = %v", got, want)
	}
	if diff := cmp.Diff([]any{}, doc["modified_fields"]); diff != "" {
		t.Errorf("modified_fields of a fresh derivation (-want +got):\n%s", diff)
	}

	status, body = e.do(t, http.MethodPatch, "/v1/test-cases/"+id, map[string]any{"expected_complexity": "COMPLEX"})
	require.Equal(t, http.StatusOK, status, string(body))
	updated := decodeAs[struct {
		ModifiedFields []string `json:"modified_fields"`
	}](t, body)
	if diff := cmp.Diff([]string{"expected_complexity"}, updated.ModifiedFields); diff != "" {
		t.Errorf("modified_fields (-want +got):\n%s", diff)
	}

	// Restoring the derived value clears the modification.
	status, body = e.do(t, http.MethodPatch, "/v1/test-cases/"+id, map[string]any{"expected_complexity": "STANDARD"})
	require.Equal(t, http.StatusOK, status, string(body))
	updated.ModifiedFields = nil
	require.NoError(t, json.Unmarshal(body, &updated))
	assert.Empty(t, updated.ModifiedFields)
}

func TestUpdateErrors(t *testing.T) {
	e := newEnv(t)
	id := e.derive(t)

	tests := []struct {
		name string
		path string
		body any
		want int
	}{{
		name: "actual field",
		path: "/v1/test-cases/" + id,
		body: map[string]any{"actual_complexity": "SIMPLE"},
		want: http.StatusConflict,
	}, {
		name: "locked field",
		path: "/v1/test-cases/" + id,
		body: map[string]any{"agent_type": "specialist"},
		want: http.StatusBadRequest,
	}, {
		name: "unknown field",
		path: "/v1/test-cases/" + id,
		body: map[string]any{"expected_vibes": "good"},
		want: http.StatusBadRequest,
	}, {
		name: "malformed body",
		path: "/v1/test-cases/" + id,
		body: "{not json",
		want: http.StatusBadRequest,
	}, {
		name: "null body",
		path: "/v1/test-cases/" + id,
		body: "null",
		want: http.StatusBadRequest,
	}, {
		name: "unknown test case",
		path: "/v1/test-cases/nope",
		body: map[string]any{"expected_complexity": "SIMPLE"},
		want: http.StatusNotFound,
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := e.do(t, http.MethodPatch, tt.path, tt.body)
			if status != tt.want {
				t.Errorf("status: got = %d, wanted = %d (%s)", status, tt.want, body)
			}
			resp := decodeAs[map[string]any](t, body)
			assert.NotEmpty(t, resp["error"])
		})
	}
}

func TestImmutableFieldsAreReported(t *testing.T) {
	e := newEnv(t)
	id := e.derive(t)

	status, body := e.do(t, http.MethodPatch, "/v1/test-cases/"+id, map[string]any{
		"actual_specialties": []string{"oncology"},
		"actual_complexity":  "SIMPLE",
	})
	require.Equal(t, http.StatusConflict, status, string(body))
	resp := decodeAs[struct {
		Fields []string `json:"fields"`
	}](t, body)
	if diff := cmp.Diff([]string{"actual_complexity", "actual_specialties"}, resp.Fields); diff != "" {
		t.Errorf("fields (-want +got):\n%s", diff)
	}
}

func TestDeriveErrors(t *testing.T) {
	e := newEnv(t)

	if status, body := e.do(t, http.MethodPost, "/v1/test-cases/from-trace", map[string]string{"trace_id": "missing"}); status != http.StatusNotFound {
		t.Errorf("missing trace: got = %d, wanted = %d (%s)", status, http.StatusNotFound, body)
	}
	if status, body := e.do(t, http.MethodPost, "/v1/test-cases/from-trace", map[string]string{}); status != http.StatusBadRequest {
		t.Errorf("no trace id: got = %d, wanted = %d (%s)", status, http.StatusBadRequest, body)
	}
	if status, body := e.do(t, http.MethodPost, "/v1/test-cases/from-trace", ""); status != http.StatusBadRequest {
		t.Errorf("empty body: got = %d, wanted = %d (%s)", status, http.StatusBadRequest, body)
	}
}

func TestListTestCases(t *testing.T) {
	e := newEnv(t)
	id := e.derive(t)

	status, body := e.do(t, http.MethodGet, "/v1/test-cases?agent_type=cmo", nil)
	require.Equal(t, http.StatusOK, status, string(body))
	list := decodeAs[struct {
		TestCaseIDs []string `json:"test_case_ids"`
	}](t, body)
	if diff := cmp.Diff([]string{id}, list.TestCaseIDs); diff != "" {
		t.Errorf("test_case_ids (-want +got):\n%s", diff)
	}

	status, body = e.do(t, http.MethodGet, "/v1/test-cases?agent_type=specialist", nil)
	require.Equal(t, http.StatusOK, status, string(body))
	list.TestCaseIDs = nil
	require.NoError(t, json.Unmarshal(body, &list))
	assert.Empty(t, list.TestCaseIDs)
}

func TestEvaluationLifecycle(t *testing.T) {
	e := newEnv(t)
	id := e.derive(t)

	status, body := e.do(t, http.MethodPost, "/v1/evaluations", map[string]string{"test_case_id": id})
	require.Equal(t, http.StatusAccepted, status, string(body))
	started := decodeAs[struct {
		EvaluationID string `json:"evaluation_id"`
		Status       string `json:"status"`
	}](t, body)
	require.NotEmpty(t, started.EvaluationID)
	if got, want := started.Status, "running"; got != want {
		t.Errorf("status: got = %q, wanted = %q", got, want)
	}

	var page runstore.Page
	deadline := time.Now().Add(10 * time.Second)
	for {
		status, body = e.do(t, http.MethodGet, "/v1/evaluations/"+started.EvaluationID+"/events?start_index=0", nil)
		require.Equal(t, http.StatusOK, status, string(body))
		page = decodeAs[runstore.Page](t, body)
		if page.Status.Terminal() || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.Equal(t, runstore.Completed, page.Status, page.Error)
	if got, want := page.Events[len(page.Events)-1].Type, runstore.EventEvaluationComplete; got != want {
		t.Errorf("last event: got = %q, wanted = %q", got, want)
	}

	// Polling past the end returns an empty page with the same total.
	status, body = e.do(t, http.MethodGet, "/v1/evaluations/"+started.EvaluationID+"/events?start_index=100", nil)
	require.Equal(t, http.StatusOK, status, string(body))
	tail := decodeAs[runstore.Page](t, body)
	assert.Empty(t, tail.Events)
	assert.Equal(t, page.TotalEvents, tail.TotalEvents)

	status, body = e.do(t, http.MethodGet, "/v1/evaluations/"+started.EvaluationID+"/result", nil)
	require.Equal(t, http.StatusOK, status, string(body))
	suite := decodeAs[aggregate.SuiteResult](t, body)
	if got, want := suite.EvaluationID, started.EvaluationID; got != want {
		t.Errorf("evaluation_id: got = %q, wanted = %q", got, want)
	}
	require.Len(t, suite.Tests, 1)
	assert.Equal(t, id, suite.Tests[0].TestCaseID)

	status, body = e.do(t, http.MethodGet, "/v1/evaluations", nil)
	require.Equal(t, http.StatusOK, status, string(body))
	list := decodeAs[struct {
		Evaluations []runstore.Metadata `json:"evaluations"`
	}](t, body)
	require.Len(t, list.Evaluations, 1)
	assert.Equal(t, started.EvaluationID, list.Evaluations[0].EvaluationID)
}

func TestStartEvaluationErrors(t *testing.T) {
	e := newEnv(t)

	tests := []struct {
		name string
		body any
		want int
	}{{
		name: "unknown test case",
		body: map[string]string{"test_case_id": "nope"},
		want: http.StatusNotFound,
	}, {
		name: "empty selection",
		body: map[string]string{},
		want: http.StatusBadRequest,
	}, {
		name: "agent type without cases",
		body: map[string]string{"agent_type": "specialist"},
		want: http.StatusNotFound,
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := e.do(t, http.MethodPost, "/v1/evaluations", tt.body)
			if status != tt.want {
				t.Errorf("status: got = %d, wanted = %d (%s)", status, tt.want, body)
			}
		})
	}

	// Rejected requests never create a run.
	status, body := e.do(t, http.MethodGet, "/v1/evaluations", nil)
	require.Equal(t, http.StatusOK, status)
	list := decodeAs[struct {
		Evaluations []runstore.Metadata `json:"evaluations"`
	}](t, body)
	assert.Empty(t, list.Evaluations)
}

func TestEventsAndResultErrors(t *testing.T) {
	e := newEnv(t)
	run, err := e.runs.Create(context.Background(), runstore.Metadata{TestCaseID: "pending"})
	require.NoError(t, err)

	tests := []struct {
		name string
		path string
		want int
	}{{
		name: "unknown evaluation events",
		path: "/v1/evaluations/01J00000000000000000000000/events",
		want: http.StatusNotFound,
	}, {
		name: "unknown evaluation result",
		path: "/v1/evaluations/01J00000000000000000000000/result",
		want: http.StatusNotFound,
	}, {
		name: "non numeric start index",
		path: "/v1/evaluations/" + run.ID() + "/events?start_index=abc",
		want: http.StatusBadRequest,
	}, {
		name: "negative start index",
		path: "/v1/evaluations/" + run.ID() + "/events?start_index=-1",
		want: http.StatusBadRequest,
	}, {
		name: "result not ready",
		path: "/v1/evaluations/" + run.ID() + "/result",
		want: http.StatusConflict,
	}, {
		name: "running events",
		path: "/v1/evaluations/" + run.ID() + "/events",
		want: http.StatusOK,
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := e.do(t, http.MethodGet, tt.path, nil)
			if status != tt.want {
				t.Errorf("status: got = %d, wanted = %d (%s)", status, tt.want, body)
			}
		})
	}
}

func TestSchema(t *testing.T) {
	e := newEnv(t)

	status, body := e.do(t, http.MethodGet, "/v1/schemas/cmo", nil)
	require.Equal(t, http.StatusOK, status, string(body))
	doc := decodeAs[map[string]any](t, body)
	props, ok := doc["properties"].(map[string]any)
	require.True(t, ok, "schema has no properties: %s", body)
	for _, field := range []string{"id", "query", "expected_complexity", "expected_specialties"} {
		if _, ok := props[field]; !ok {
			t.Errorf("schema property %s: missing", field)
		}
	}
}

func TestRequestIDAndMetrics(t *testing.T) {
	e := newEnv(t)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, e.srv.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set(server.RequestIDHeader, "abc-123")
	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "abc-123", resp.Header.Get(server.RequestIDHeader))

	resp, err = e.srv.Client().Get(e.srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.NotEmpty(t, resp.Header.Get(server.RequestIDHeader))

	status, _ := e.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, status)
}
