/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package schema_test

import (
	"testing"

	"chainguard.dev/agenteval/agents/schema"
	"google.golang.org/genai"
)

type verdict struct {
	Score     float64  `json:"score" jsonschema:"required,description=Score in [0,1],minimum=0,maximum=1"`
	Reasoning string   `json:"reasoning" jsonschema:"required"`
	Labels    []string `json:"labels,omitempty"`
}

func TestReflect(t *testing.T) {
	type nested struct {
		Value string `json:"value" jsonschema:"description=Nested value"`
	}
	type sample struct {
		Name   string  `json:"name" jsonschema:"description=Name,required"`
		Count  int     `json:"count,omitempty"`
		Nested *nested `json:"nested,omitempty"`
	}

	s := schema.Reflect(&sample{})
	if len(s.Required) != 1 || s.Required[0] != "name" {
		t.Fatalf("required: got = %#v, wanted = [name]", s.Required)
	}
	nestedSchema, ok := s.Properties.Get("nested")
	if !ok {
		t.Fatal("missing nested property")
	}
	value, ok := nestedSchema.Properties.Get("value")
	if !ok {
		t.Fatal("missing nested value property")
	}
	if value.Description != "Nested value" {
		t.Errorf("nested description: got = %q, wanted = %q", value.Description, "Nested value")
	}
}

func TestDocument(t *testing.T) {
	s := schema.NewGenerator().Document("Verdict", "A judge verdict", &verdict{})
	if s.Title != "Verdict" || s.Description != "A judge verdict" {
		t.Errorf("title/description: got = %q/%q", s.Title, s.Description)
	}
	m, err := schema.ToMap(s)
	if err != nil {
		t.Fatalf("ToMap: %v", err)
	}
	if m["title"] != "Verdict" {
		t.Errorf("map title: got = %v, wanted = Verdict", m["title"])
	}
}

func TestToGenai(t *testing.T) {
	got := schema.ToGenai(schema.ReflectType[verdict]())
	if got.Type != genai.TypeObject {
		t.Errorf("type: got = %q, wanted = %q", got.Type, genai.TypeObject)
	}
	if len(got.Required) != 2 {
		t.Errorf("required: got = %v, wanted = [score reasoning]", got.Required)
	}
	score := got.Properties["score"]
	if score == nil || score.Type != genai.TypeNumber {
		t.Fatalf("score: got = %+v, wanted number", score)
	}
	if score.Maximum == nil || *score.Maximum != 1 {
		t.Errorf("score maximum: got = %v, wanted = 1", score.Maximum)
	}
	labels := got.Properties["labels"]
	if labels == nil || labels.Items == nil || labels.Items.Type != genai.TypeString {
		t.Errorf("labels: got = %+v, wanted array of strings", labels)
	}
	if len(got.PropertyOrdering) != 3 || got.PropertyOrdering[0] != "score" {
		t.Errorf("ordering: got = %v, wanted score first", got.PropertyOrdering)
	}
}

func TestToGenaiNil(t *testing.T) {
	if got := schema.ToGenai(nil); got != nil {
		t.Errorf("ToGenai(nil): got = %v, wanted = nil", got)
	}
}
