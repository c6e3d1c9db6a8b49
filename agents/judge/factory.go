/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package judge

import (
	"context"
	"fmt"
	"strings"

	"chainguard.dev/agenteval/agents/metrics"
	"chainguard.dev/agenteval/agents/retry"
)

// Provider selects the API a judge model is reached through.
type Provider string

const (
	// ProviderAuto picks Vertex AI for claude-* and gemini-* models and
	// OpenAI for everything else.
	ProviderAuto      Provider = "auto"
	ProviderAnthropic Provider = "anthropic"
	ProviderVertex    Provider = "vertex"
	ProviderGemini    Provider = "gemini"
	ProviderOpenAI    Provider = "openai"
	// ProviderNone disables the judge; judge-based dimensions then fail.
	ProviderNone Provider = "none"
)

// Config describes how to reach a judge model.
type Config struct {
	Provider Provider
	Model    string

	// ProjectID and Region address Vertex AI.
	ProjectID string
	Region    string

	// APIKey authenticates the Anthropic and OpenAI APIs.
	APIKey string
	// BaseURL overrides the OpenAI endpoint, e.g. for a gateway.
	BaseURL string

	Retry retry.Config
}

// New creates a judge for cfg. It returns a nil Interface and no error when
// the provider is ProviderNone.
func New(ctx context.Context, cfg Config) (Interface, error) {
	if cfg.Provider == ProviderNone {
		return nil, nil
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("judge model is required for provider %q", cfg.Provider)
	}
	if err := cfg.Retry.Validate(); err != nil {
		return nil, fmt.Errorf("judge retry config: %w", err)
	}

	provider, err := resolve(cfg.Provider, cfg.Model)
	if err != nil {
		return nil, err
	}

	if (provider == ProviderVertex || provider == ProviderGemini) && cfg.ProjectID == "" {
		if cfg.ProjectID, err = detectProject(ctx); err != nil {
			return nil, err
		}
	}

	var b backend
	switch provider {
	case ProviderAnthropic:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("an API key is required for provider %q", provider)
		}
		b = newClaudeAPI(cfg.APIKey, cfg.Model)
	case ProviderVertex:
		if cfg.Region == "" {
			return nil, fmt.Errorf("a region is required for provider %q", provider)
		}
		b = newClaudeVertex(ctx, cfg.ProjectID, cfg.Region, cfg.Model)
	case ProviderGemini:
		if b, err = newGemini(ctx, cfg.ProjectID, cfg.Region, cfg.Model); err != nil {
			return nil, err
		}
	case ProviderOpenAI:
		b = newOpenAI(cfg.APIKey, cfg.BaseURL, cfg.Model)
	}

	return &modelJudge{
		model:   cfg.Model,
		backend: b,
		retry:   cfg.Retry,
		metrics: metrics.NewGenAI("chainguard.dev/agenteval"),
	}, nil
}

// resolve maps ProviderAuto onto a concrete provider using the model name.
func resolve(p Provider, model string) (Provider, error) {
	switch p {
	case ProviderAnthropic, ProviderVertex, ProviderGemini, ProviderOpenAI:
		return p, nil
	case ProviderAuto, "":
	default:
		return "", fmt.Errorf("unsupported judge provider: %q", p)
	}

	switch m := strings.ToLower(model); {
	case strings.HasPrefix(m, "claude-"):
		return ProviderVertex, nil
	case strings.HasPrefix(m, "gemini-"):
		return ProviderGemini, nil
	default:
		return ProviderOpenAI, nil
	}
}
