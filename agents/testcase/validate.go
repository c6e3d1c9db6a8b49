/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package testcase

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"chainguard.dev/agenteval/agents/evalerr"
	"gopkg.in/yaml.v3"
)

// requiredFields lists, per agent type, the dotted paths that must be present
// and non-null.
var requiredFields = map[AgentType][]string{
	CMOAgent: {"query", "expected_complexity", "expected_specialties"},
	SpecialistAgent: {
		"task", "task.objective", "task.context", "task.expected_output",
		"task.priority", "task.max_tool_calls",
	},
	VisualizationAgent: {"input_data", "input_data.type", "expected_chart_type"},
}

// RequiredFields returns the required dotted field paths for an agent type.
// Unknown agent types only require the envelope identity.
func RequiredFields(agentType AgentType) []string {
	return append([]string{"id", "agent_type"}, requiredFields[agentType]...)
}

// Validate parses and validates a JSON encoded test case. source names the
// origin in error messages. Every problem found is reported in a single
// *evalerr.ValidationError.
//
// Agent types without a schema fall back to minimal validation: only id and
// agent_type must be present.
func Validate(source string, data []byte) (*TestCase, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, evalerr.Validationf(source, "not a JSON object: %v", err)
	}

	v := &validator{raw: raw}
	agentType := AgentType(v.str("agent_type"))
	for _, path := range RequiredFields(agentType) {
		v.require(path)
	}
	if id := v.str("id"); id != "" && strings.ContainsAny(id, `/\`) {
		v.problemf("id %q must not contain path separators", id)
	}
	if by, ok := raw["created_by"]; ok {
		if s, _ := by.(string); !CreatedBy(s).Valid() {
			v.problemf("created_by %v must be one of framework, studio", by)
		}
	}

	switch agentType {
	case CMOAgent:
		v.complexity("expected_complexity", true)
		v.complexity("actual_complexity", false)
		v.list("expected_specialties")
		v.list("actual_specialties")
	case SpecialistAgent:
		v.positiveInt("task.max_tool_calls")
	case VisualizationAgent:
		if t, ok := v.lookup("input_data.type"); ok {
			if s, _ := t.(string); s == "" {
				v.problemf("input_data.type must be a non-empty string")
			}
		}
	}
	if _, ok := raw["max_tool_calls"]; ok {
		v.positiveInt("max_tool_calls")
	}

	if len(v.problems) > 0 {
		return nil, &evalerr.ValidationError{Source: source, Problems: v.problems}
	}

	var tc TestCase
	if err := json.Unmarshal(data, &tc); err != nil {
		return nil, evalerr.Validationf(source, "%v", err)
	}
	return &tc, nil
}

// ValidateYAML converts a YAML document to JSON and validates it.
func ValidateYAML(source string, data []byte) (*TestCase, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, evalerr.Validationf(source, "not valid YAML: %v", err)
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, evalerr.Validationf(source, "YAML is not representable as JSON: %v", err)
	}
	return Validate(source, b)
}

// FromDocument validates a flattened document such as the one returned by
// TestCase.Document.
func FromDocument(source string, doc map[string]json.RawMessage) (*TestCase, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding document: %w", err)
	}
	return Validate(source, b)
}

type validator struct {
	raw      map[string]any
	problems []string
}

func (v *validator) problemf(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) lookup(path string) (any, bool) {
	var cur any = v.raw
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}

func (v *validator) str(path string) string {
	val, _ := v.lookup(path)
	s, _ := val.(string)
	return s
}

func (v *validator) require(path string) {
	val, ok := v.lookup(path)
	if !ok {
		v.problemf("missing required field %s", path)
		return
	}
	if (path == "id" || path == "agent_type") && val == "" {
		v.problemf("%s must not be empty", path)
	}
}

func (v *validator) complexity(path string, required bool) {
	val, ok := v.lookup(path)
	if !ok {
		return
	}
	s, _ := val.(string)
	if s == "" && !required {
		return
	}
	if !Complexity(s).Valid() {
		v.problemf("%s %v must be one of SIMPLE, STANDARD, COMPLEX, COMPREHENSIVE", path, val)
	}
}

func (v *validator) list(path string) {
	val, ok := v.lookup(path)
	if !ok {
		return
	}
	items, ok := val.([]any)
	if !ok {
		v.problemf("%s must be a list", path)
		return
	}
	for i, item := range items {
		if _, ok := item.(string); !ok {
			v.problemf("%s[%d] must be a string", path, i)
		}
	}
}

func (v *validator) positiveInt(path string) {
	val, ok := v.lookup(path)
	if !ok {
		return
	}
	f, ok := val.(float64)
	if !ok || f < 1 || f != math.Trunc(f) {
		v.problemf("%s must be a positive integer, got %v", path, val)
	}
}
