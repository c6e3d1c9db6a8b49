/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package judge

import (
	"context"
	"errors"
	"strings"

	"chainguard.dev/agenteval/agents/retry"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/vertex"
)

// claude sends judge prompts to Claude, either directly or via Vertex AI.
type claude struct {
	client anthropic.Client
	model  string
}

// newClaudeVertex creates a Claude backend authenticated with Google
// application default credentials.
func newClaudeVertex(ctx context.Context, projectID, region, model string) *claude {
	return &claude{
		client: anthropic.NewClient(vertex.WithGoogleAuth(ctx, region, projectID)),
		model:  model,
	}
}

// newClaudeAPI creates a Claude backend using an Anthropic API key.
func newClaudeAPI(apiKey, model string) *claude {
	return &claude{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

func (c *claude) complete(ctx context.Context, prompt string) (completion, error) {
	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: defaultMaxTokens,
		Messages: []anthropic.MessageParam{{
			Role: anthropic.MessageParamRoleUser,
			Content: []anthropic.ContentBlockParamUnion{
				anthropic.NewTextBlock(prompt),
			},
		}},
		Temperature: anthropic.Float(defaultTemperature),
	})
	if err != nil {
		return completion{}, err
	}

	var text strings.Builder
	for _, content := range message.Content {
		if content.Type == "text" {
			text.WriteString(content.Text)
		}
	}
	return completion{
		text:             text.String(),
		promptTokens:     message.Usage.InputTokens,
		completionTokens: message.Usage.OutputTokens,
	}, nil
}

// retryable accepts rate limit, overloaded and transient server errors.
func (c *claude) retryable(err error) bool {
	return retry.StatusCodes(anthropicStatus, 429, 500, 503, 504, 529)(err)
}

func anthropicStatus(err error) (int, bool) {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode, true
	}
	return 0, false
}
