/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package testcase

import (
	"errors"
	"strings"
	"testing"

	"chainguard.dev/agenteval/agents/evalerr"
	"github.com/google/go-cmp/cmp"
)

const cmoJSON = `{
  "id": "q3-revenue",
  "agent_type": "cmo",
  "category": "finance",
  "query": "How did Q3 revenue compare to plan?",
  "expected_complexity": "STANDARD",
  "expected_specialties": ["finance", "forecasting"],
  "expected_key_data_points": ["revenue", "plan"]
}`

const specialistJSON = `{
  "id": "spec-1",
  "agent_type": "specialist",
  "specialty": "finance",
  "task": {
    "objective": "Summarize Q3",
    "context": "Quarterly review",
    "expected_output": "Three bullet summary",
    "priority": "high",
    "max_tool_calls": 4
  },
  "expected_tools": ["query_financials"]
}`

const visualizationJSON = `{
  "id": "viz-1",
  "agent_type": "visualization",
  "input_data": {"type": "timeseries", "data": [1, 2, 3]},
  "expected_chart_type": "line"
}`

func TestValidateVariants(t *testing.T) {
	tests := []struct {
		name  string
		input string
		check func(t *testing.T, tc *TestCase)
	}{{
		name:  "cmo",
		input: cmoJSON,
		check: func(t *testing.T, tc *TestCase) {
			p := tc.CMO()
			if p == nil {
				t.Fatalf("payload: got = %T, wanted = *CMO", tc.Payload)
			}
			if p.ExpectedComplexity != Standard {
				t.Errorf("expected_complexity: got = %q, wanted = %q", p.ExpectedComplexity, Standard)
			}
			if diff := cmp.Diff([]string{"finance", "forecasting"}, p.ExpectedSpecialties); diff != "" {
				t.Errorf("expected_specialties (-want +got):\n%s", diff)
			}
		},
	}, {
		name:  "specialist",
		input: specialistJSON,
		check: func(t *testing.T, tc *TestCase) {
			p := tc.Specialist()
			if p == nil {
				t.Fatalf("payload: got = %T, wanted = *Specialist", tc.Payload)
			}
			if p.Task.MaxToolCalls != 4 {
				t.Errorf("max_tool_calls: got = %d, wanted = 4", p.Task.MaxToolCalls)
			}
		},
	}, {
		name:  "visualization",
		input: visualizationJSON,
		check: func(t *testing.T, tc *TestCase) {
			p := tc.Visualization()
			if p == nil {
				t.Fatalf("payload: got = %T, wanted = *Visualization", tc.Payload)
			}
			if p.InputData.Type != "timeseries" || p.ExpectedChartType != "line" {
				t.Errorf("payload: got = %+v", p)
			}
		},
	}, {
		name:  "unknown agent type keeps fields",
		input: `{"id": "t-1", "agent_type": "triage", "urgency": "high"}`,
		check: func(t *testing.T, tc *TestCase) {
			u, ok := tc.Payload.(*Unknown)
			if !ok {
				t.Fatalf("payload: got = %T, wanted = *Unknown", tc.Payload)
			}
			if string(u.Fields["urgency"]) != `"high"` {
				t.Errorf("urgency: got = %s, wanted = %q", u.Fields["urgency"], "high")
			}
			if _, ok := u.Fields["id"]; ok {
				t.Error("unknown payload: got envelope field id, wanted payload fields only")
			}
		},
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc, err := Validate(tt.name, []byte(tt.input))
			if err != nil {
				t.Fatalf("Validate: %v", err)
			}
			tt.check(t, tc)
		})
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantMsg []string
	}{{
		name:    "not json",
		input:   `not json`,
		wantMsg: []string{"not a JSON object"},
	}, {
		name:    "missing envelope",
		input:   `{"query": "x"}`,
		wantMsg: []string{"missing required field id", "missing required field agent_type"},
	}, {
		name:    "cmo missing fields",
		input:   `{"id": "a", "agent_type": "cmo", "query": "x"}`,
		wantMsg: []string{"expected_complexity", "expected_specialties"},
	}, {
		name:    "cmo bad complexity",
		input:   `{"id": "a", "agent_type": "cmo", "query": "x", "expected_complexity": "HUGE", "expected_specialties": []}`,
		wantMsg: []string{"expected_complexity HUGE"},
	}, {
		name:    "bad created_by",
		input:   `{"id": "a", "agent_type": "triage", "created_by": "robot"}`,
		wantMsg: []string{"created_by robot"},
	}, {
		name:    "specialist missing task fields",
		input:   `{"id": "a", "agent_type": "specialist", "task": {"objective": "x"}}`,
		wantMsg: []string{"task.context", "task.expected_output", "task.priority", "task.max_tool_calls"},
	}, {
		name:    "specialist zero budget",
		input:   `{"id": "a", "agent_type": "specialist", "task": {"objective": "x", "context": "", "expected_output": "", "priority": "low", "max_tool_calls": 0}}`,
		wantMsg: []string{"task.max_tool_calls must be a positive integer"},
	}, {
		name:    "visualization missing chart",
		input:   `{"id": "a", "agent_type": "visualization", "input_data": {}}`,
		wantMsg: []string{"input_data.type", "expected_chart_type"},
	}, {
		name:    "id with separator",
		input:   `{"id": "../a", "agent_type": "triage"}`,
		wantMsg: []string{"path separators"},
	}, {
		name:    "null required field",
		input:   `{"id": "a", "agent_type": "cmo", "query": "x", "expected_complexity": "SIMPLE", "expected_specialties": null}`,
		wantMsg: []string{"missing required field expected_specialties"},
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Validate("input.json", []byte(tt.input))
			if !errors.Is(err, evalerr.ErrValidation) {
				t.Fatalf("Validate: got = %v, wanted = validation error", err)
			}
			for _, msg := range tt.wantMsg {
				if !strings.Contains(err.Error(), msg) {
					t.Errorf("error: got = %q, wanted to contain %q", err.Error(), msg)
				}
			}
		})
	}
}

func TestValidateYAML(t *testing.T) {
	input := `
id: yaml-1
agent_type: cmo
query: Which regions are growing?
expected_complexity: COMPLEX
expected_specialties:
  - sales
created_at: 2026-01-02T03:04:05Z
`
	tc, err := ValidateYAML("yaml-1.yaml", []byte(input))
	if err != nil {
		t.Fatalf("ValidateYAML: %v", err)
	}
	if tc.CMO().ExpectedComplexity != Complex {
		t.Errorf("complexity: got = %q, wanted = %q", tc.CMO().ExpectedComplexity, Complex)
	}
	if tc.CreatedAt.Year() != 2026 {
		t.Errorf("created_at: got = %v, wanted year 2026", tc.CreatedAt)
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	tc, err := Validate("cmo", []byte(cmoJSON))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	doc, err := tc.Document()
	if err != nil {
		t.Fatalf("Document: %v", err)
	}
	back, err := FromDocument("doc", doc)
	if err != nil {
		t.Fatalf("FromDocument: %v", err)
	}
	if diff := cmp.Diff(tc.CMO(), back.CMO()); diff != "" {
		t.Errorf("payload (-want +got):\n%s", diff)
	}
	if got := string(doc["modified_fields"]); got != "[]" {
		t.Errorf("modified_fields: got = %s, wanted = []", got)
	}
	if back.ModifiedFields == nil || len(back.ModifiedFields) != 0 {
		t.Errorf("ModifiedFields: got = %#v, wanted empty non-nil", back.ModifiedFields)
	}

	editable, err := tc.EditableFields()
	if err != nil {
		t.Fatalf("EditableFields: %v", err)
	}
	for _, k := range []string{"id", "agent_type"} {
		if _, ok := editable[k]; ok {
			t.Errorf("editable fields: got %q, wanted envelope identity excluded", k)
		}
	}
	for _, k := range []string{"query", "category"} {
		if _, ok := editable[k]; !ok {
			t.Errorf("editable fields: missing %q", k)
		}
	}
}

func TestComplexityLevel(t *testing.T) {
	if got := Comprehensive.Level() - Simple.Level(); got != 3 {
		t.Errorf("level span: got = %d, wanted = 3", got)
	}
	if Complexity("simple").Valid() {
		t.Error("lower-case complexity: got = valid, wanted = invalid")
	}
}
