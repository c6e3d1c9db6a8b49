/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package metrics

import (
	"context"
	"testing"

	"chainguard.dev/agenteval/agents/agenttrace"
	"go.opentelemetry.io/otel/attribute"
)

func TestExecutionAttributes(t *testing.T) {
	ctx := agenttrace.WithExecutionContext(context.Background(), agenttrace.ExecutionContext{
		EvaluationID: "01HZX",
		TestCaseID:   "cmo-1",
		AgentType:    "cmo",
	})
	base := []attribute.KeyValue{attribute.String("model", "claude-sonnet-4")}

	got := ExecutionAttributes(ctx, base)
	if len(got) != 2 {
		t.Fatalf("attributes: got = %v, wanted model and agent_type", got)
	}
	if got[1] != attribute.String("agent_type", "cmo") {
		t.Errorf("attribute: got = %v, wanted agent_type=cmo", got[1])
	}
	if len(base) != 1 {
		t.Errorf("base attributes were modified: %v", base)
	}

	if got := ExecutionAttributes(context.Background(), base); len(got) != 1 {
		t.Errorf("attributes without execution context: got = %v, wanted only model", got)
	}
}

func TestGenAIRecords(t *testing.T) {
	m := NewGenAI("chainguard.dev/agenteval/test")

	var seen []attribute.KeyValue
	m.SetAttributeEnricher(func(_ context.Context, base []attribute.KeyValue) []attribute.KeyValue {
		seen = base
		return base
	})
	m.RecordTokens(context.Background(), "gemini-2.5-pro", 120, 30)
	if len(seen) != 1 || seen[0].Value.AsString() != "gemini-2.5-pro" {
		t.Errorf("enricher input: got = %v, wanted model only", seen)
	}

	m.RecordJudgeCall(context.Background(), "gemini-2.5-pro", OutcomeMalformed)
	if len(seen) != 2 || seen[1].Value.AsString() != OutcomeMalformed {
		t.Errorf("enricher input: got = %v, wanted model and outcome", seen)
	}

	m.SetAttributeEnricher(nil)
	m.RecordJudgeCall(context.Background(), "gemini-2.5-pro", OutcomeSuccess)
}
