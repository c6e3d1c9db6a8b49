/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package testcase

import (
	"fmt"

	"chainguard.dev/agenteval/agents/evalerr"
	"chainguard.dev/agenteval/agents/schema"
	"github.com/invopop/jsonschema"
)

type cmoDocument struct {
	Envelope
	CMO
}

type specialistDocument struct {
	Envelope
	Specialist
}

type visualizationDocument struct {
	Envelope
	Visualization
}

// Schema returns the JSON Schema of a test case document for agentType.
// Agent types without a payload schema get the envelope schema.
func Schema(agentType AgentType) (*jsonschema.Schema, error) {
	g := schema.NewGenerator()
	title := fmt.Sprintf("%s test case", agentType)
	switch agentType {
	case CMOAgent:
		return g.Document(title, "Coordinator query with expected complexity and specialist selection", &cmoDocument{}), nil
	case SpecialistAgent:
		return g.Document(title, "Specialist task with a tool budget", &specialistDocument{}), nil
	case VisualizationAgent:
		return g.Document(title, "Structured input with the expected chart type", &visualizationDocument{}), nil
	case "":
		return nil, evalerr.Validationf("schema", "agent_type is required")
	default:
		return g.Document(title, "Unrecognized agent type; only the envelope is checked", &Envelope{}), nil
	}
}
