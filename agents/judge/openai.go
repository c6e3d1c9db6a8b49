/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package judge

import (
	"context"
	"errors"

	"chainguard.dev/agenteval/agents/retry"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// openAI sends judge prompts to any OpenAI compatible chat completions
// endpoint.
type openAI struct {
	client openai.Client
	model  string
}

// newOpenAI creates an OpenAI backend. An empty baseURL uses the public API.
func newOpenAI(apiKey, baseURL, model string) *openAI {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &openAI{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

func (o *openAI) complete(ctx context.Context, prompt string) (completion, error) {
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(defaultTemperature),
	})
	if err != nil {
		return completion{}, err
	}
	if len(resp.Choices) == 0 {
		return completion{}, errors.New("no choices in response")
	}
	return completion{
		text:             resp.Choices[0].Message.Content,
		promptTokens:     resp.Usage.PromptTokens,
		completionTokens: resp.Usage.CompletionTokens,
	}, nil
}

func (o *openAI) retryable(err error) bool {
	return retry.StatusCodes(openAIStatus, 429, 500, 502, 503, 504)(err)
}

func openAIStatus(err error) (int, bool) {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode, true
	}
	return 0, false
}
