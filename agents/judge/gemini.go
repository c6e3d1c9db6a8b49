/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package judge

import (
	"context"
	"fmt"

	"chainguard.dev/agenteval/agents/retry"
	"chainguard.dev/agenteval/agents/schema"
	"google.golang.org/genai"
)

// gemini sends judge prompts to Gemini on Vertex AI with a structured JSON
// response schema.
type gemini struct {
	client *genai.Client
	model  string
	config *genai.GenerateContentConfig
}

// newGemini creates a Gemini backend.
func newGemini(ctx context.Context, projectID, region, model string) (*gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  projectID,
		Location: region,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Google AI client: %w", err)
	}

	responseSchema := schema.ToGenai(schema.ReflectType[Judgement]())
	temperature := float32(defaultTemperature)
	return &gemini{
		client: client,
		model:  model,
		config: &genai.GenerateContentConfig{
			Temperature:      &temperature,
			MaxOutputTokens:  defaultMaxTokens,
			ResponseMIMEType: "application/json",
			ResponseSchema:   responseSchema,
		},
	}, nil
}

func (g *gemini) complete(ctx context.Context, prompt string) (completion, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), g.config)
	if err != nil {
		return completion{}, err
	}
	out := completion{text: resp.Text()}
	if resp.UsageMetadata != nil {
		out.promptTokens = int64(resp.UsageMetadata.PromptTokenCount)
		out.completionTokens = int64(resp.UsageMetadata.CandidatesTokenCount)
	}
	return out, nil
}

// retryable falls back to the error text; the Vertex client does not expose
// a typed status for every transport.
func (g *gemini) retryable(err error) bool {
	return retry.Transient(err)
}
