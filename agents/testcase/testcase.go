/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package testcase

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"time"
)

// AgentType selects the payload variant and schema of a test case.
type AgentType string

const (
	// CMOAgent is the coordinating agent that classifies a query and
	// delegates to specialists.
	CMOAgent AgentType = "cmo"
	// SpecialistAgent is a delegated sub-agent working on one task.
	SpecialistAgent AgentType = "specialist"
	// VisualizationAgent turns structured data into a chart specification.
	VisualizationAgent AgentType = "visualization"
)

// KnownAgentTypes lists the agent types with a full schema.
var KnownAgentTypes = []AgentType{CMOAgent, SpecialistAgent, VisualizationAgent}

// Known reports whether the agent type has a typed payload.
func (a AgentType) Known() bool {
	return slices.Contains(KnownAgentTypes, a)
}

// CreatedBy records how a test case came to exist.
type CreatedBy string

const (
	// Framework test cases were authored by hand or migrated in bulk.
	Framework CreatedBy = "framework"
	// Studio test cases were derived from a captured trace.
	Studio CreatedBy = "studio"
)

// Valid reports whether c is one of the known origins.
func (c CreatedBy) Valid() bool {
	return c == Framework || c == Studio
}

// Complexity is the coordinator's classification of a query.
type Complexity string

const (
	Simple        Complexity = "SIMPLE"
	Standard      Complexity = "STANDARD"
	Complex       Complexity = "COMPLEX"
	Comprehensive Complexity = "COMPREHENSIVE"
)

var complexityLevels = []Complexity{Simple, Standard, Complex, Comprehensive}

// Level returns the ordinal of c, or -1 when c is not a known level.
func (c Complexity) Level() int {
	return slices.Index(complexityLevels, c)
}

// Valid reports whether c is a known level.
func (c Complexity) Valid() bool { return c.Level() >= 0 }

// Envelope holds the identity and bookkeeping shared by every variant.
type Envelope struct {
	ID          string    `json:"id" jsonschema:"required,description=Unique id within the store partition"`
	AgentType   AgentType `json:"agent_type" jsonschema:"required,description=Selects the payload schema"`
	Category    string    `json:"category,omitempty"`
	Description string    `json:"description,omitempty"`
	TraceID     string    `json:"trace_id,omitempty" jsonschema:"description=Captured trace replayed during evaluation"`
	CreatedBy   CreatedBy `json:"created_by,omitempty" jsonschema:"enum=framework,enum=studio"`
	CreatedAt   time.Time `json:"created_at,omitzero"`

	// ModifiedFields names the fields a reviewer changed after derivation.
	// Documents always carry it, as [] when nothing changed.
	ModifiedFields []string `json:"modified_fields,omitempty"`
	// Baseline is the snapshot of editable fields taken at derivation time.
	Baseline map[string]json.RawMessage `json:"derivation_baseline,omitempty"`
}

// envelopeFields are the top-level keys owned by Envelope.
var envelopeFields = []string{
	"id", "agent_type", "category", "description", "trace_id",
	"created_by", "created_at", "modified_fields", "derivation_baseline",
}

// IsEnvelopeField reports whether key belongs to the shared envelope rather
// than the role-specific payload.
func IsEnvelopeField(key string) bool {
	return slices.Contains(envelopeFields, key)
}

// Payload is the role-specific part of a test case.
type Payload interface {
	Kind() AgentType
}

// TestCase is a tagged variant: the envelope plus exactly one payload whose
// concrete type is fixed by AgentType. On the wire the payload fields sit
// next to the envelope fields.
type TestCase struct {
	Envelope
	Payload Payload `json:"-"`
}

// CMO is the payload of a coordinator test case.
type CMO struct {
	Query                 string     `json:"query" jsonschema:"required"`
	ExpectedComplexity    Complexity `json:"expected_complexity" jsonschema:"required,enum=SIMPLE,enum=STANDARD,enum=COMPLEX,enum=COMPREHENSIVE"`
	ExpectedSpecialties   []string   `json:"expected_specialties" jsonschema:"required"`
	ExpectedKeyDataPoints []string   `json:"expected_key_data_points,omitempty"`
	ExpectedTools         []string   `json:"expected_tools,omitempty"`
	ExpectedMaxCost       float64    `json:"expected_max_cost,omitempty"`
	MaxToolCalls          int        `json:"max_tool_calls,omitempty"`

	ActualComplexity    Complexity `json:"actual_complexity,omitempty"`
	ActualSpecialties   []string   `json:"actual_specialties,omitempty"`
	ActualKeyDataPoints []string   `json:"actual_key_data_points,omitempty"`
	ActualTotalCost     float64    `json:"actual_total_cost,omitempty"`
}

func (*CMO) Kind() AgentType { return CMOAgent }

// Task is the unit of work handed to a specialist.
type Task struct {
	Objective      string `json:"objective" jsonschema:"required"`
	Context        string `json:"context" jsonschema:"required"`
	ExpectedOutput string `json:"expected_output" jsonschema:"required"`
	Priority       string `json:"priority" jsonschema:"required"`
	MaxToolCalls   int    `json:"max_tool_calls" jsonschema:"required,minimum=1"`
}

// Specialist is the payload of a specialist test case.
type Specialist struct {
	Specialty           string   `json:"specialty,omitempty"`
	Task                Task     `json:"task" jsonschema:"required"`
	ExpectedTools       []string `json:"expected_tools,omitempty"`
	ExpectedKeyFindings []string `json:"expected_key_findings,omitempty"`

	ActualTools     []string `json:"actual_tools,omitempty"`
	ActualTotalCost float64  `json:"actual_total_cost,omitempty"`
}

func (*Specialist) Kind() AgentType { return SpecialistAgent }

// InputData is the structured input given to the visualization agent.
type InputData struct {
	Type string `json:"type" jsonschema:"required"`
	Data any    `json:"data,omitempty"`
}

// Visualization is the payload of a visualization test case.
type Visualization struct {
	InputData         InputData `json:"input_data" jsonschema:"required"`
	ExpectedChartType string    `json:"expected_chart_type" jsonschema:"required"`
	ExpectedElements  []string  `json:"expected_elements,omitempty"`
	ExpectedTools     []string  `json:"expected_tools,omitempty"`
	MaxToolCalls      int       `json:"max_tool_calls,omitempty"`

	ActualChartType string `json:"actual_chart_type,omitempty"`
}

func (*Visualization) Kind() AgentType { return VisualizationAgent }

// Unknown carries the payload of an agent type this build has no schema
// for. Its fields are preserved verbatim.
type Unknown struct {
	Type   AgentType
	Fields map[string]json.RawMessage
}

func (u *Unknown) Kind() AgentType { return u.Type }

func (u *Unknown) MarshalJSON() ([]byte, error) {
	if u.Fields == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(u.Fields)
}

func newPayload(agentType AgentType) Payload {
	switch agentType {
	case CMOAgent:
		return &CMO{}
	case SpecialistAgent:
		return &Specialist{}
	case VisualizationAgent:
		return &Visualization{}
	default:
		return &Unknown{Type: agentType}
	}
}

// MarshalJSON flattens the envelope and payload into one object.
func (tc TestCase) MarshalJSON() ([]byte, error) {
	doc, err := tc.Document()
	if err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}

// UnmarshalJSON decodes the envelope, then the payload selected by
// agent_type. It does not validate required fields; use Validate for that.
func (tc *TestCase) UnmarshalJSON(data []byte) error {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	payload := newPayload(env.AgentType)
	if u, ok := payload.(*Unknown); ok {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(data, &fields); err != nil {
			return err
		}
		maps.DeleteFunc(fields, func(k string, _ json.RawMessage) bool { return IsEnvelopeField(k) })
		u.Fields = fields
	} else {
		dec := json.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(payload); err != nil {
			return fmt.Errorf("decoding %s payload: %w", env.AgentType, err)
		}
	}
	tc.Envelope = env
	tc.Payload = payload
	return nil
}

// Document returns the flattened top-level fields of the test case.
func (tc *TestCase) Document() (map[string]json.RawMessage, error) {
	doc := make(map[string]json.RawMessage)
	if tc.Payload != nil {
		if tc.Payload.Kind() != tc.AgentType {
			return nil, fmt.Errorf("payload kind %q does not match agent type %q", tc.Payload.Kind(), tc.AgentType)
		}
		b, err := json.Marshal(tc.Payload)
		if err != nil {
			return nil, fmt.Errorf("marshaling payload: %w", err)
		}
		if err := json.Unmarshal(b, &doc); err != nil {
			return nil, fmt.Errorf("flattening payload: %w", err)
		}
	}
	b, err := json.Marshal(tc.Envelope)
	if err != nil {
		return nil, fmt.Errorf("marshaling envelope: %w", err)
	}
	var env map[string]json.RawMessage
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("flattening envelope: %w", err)
	}
	maps.Copy(doc, env)
	if _, ok := doc["modified_fields"]; !ok {
		doc["modified_fields"] = json.RawMessage("[]")
	}
	return doc, nil
}

// EditableFields returns the top-level fields a reviewer may change:
// everything except the identity envelope. Trace-derived actual_* fields
// are included so callers can snapshot them; they are still read-only.
func (tc *TestCase) EditableFields() (map[string]json.RawMessage, error) {
	doc, err := tc.Document()
	if err != nil {
		return nil, err
	}
	maps.DeleteFunc(doc, func(k string, _ json.RawMessage) bool {
		return IsEnvelopeField(k) && k != "category" && k != "description"
	})
	return doc, nil
}

// CMO returns the coordinator payload, or nil for other variants.
func (tc *TestCase) CMO() *CMO {
	p, _ := tc.Payload.(*CMO)
	return p
}

// Specialist returns the specialist payload, or nil for other variants.
func (tc *TestCase) Specialist() *Specialist {
	p, _ := tc.Payload.(*Specialist)
	return p
}

// Visualization returns the visualization payload, or nil for other variants.
func (tc *TestCase) Visualization() *Visualization {
	p, _ := tc.Payload.(*Visualization)
	return p
}
