/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package config reads the evaluation engine's settings from the
// environment.
package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chainguard.dev/agenteval/agents/evals"
	"chainguard.dev/agenteval/agents/judge"
	"chainguard.dev/agenteval/agents/retry"
	"github.com/sethvargo/go-envconfig"
)

// Config holds every environment setting.
type Config struct {
	Port int `env:"PORT, default=8080"`

	// Storage roots. A gs://bucket/prefix trace root reads traces from
	// Cloud Storage.
	TraceRoot    string `env:"EVAL_TRACE_ROOT, default=./data/traces"`
	RunRoot      string `env:"EVAL_RUN_ROOT, default=./data/evaluations"`
	TestCaseRoot string `env:"EVAL_TEST_CASE_ROOT, default=./data/test_cases"`

	JudgeModel    string         `env:"EVAL_JUDGE_MODEL, default=claude-sonnet-4-5"`
	JudgeProvider judge.Provider `env:"EVAL_JUDGE_PROVIDER, default=auto"`
	JudgeAPIKey   string         `env:"EVAL_JUDGE_API_KEY"`
	JudgeBaseURL  string         `env:"EVAL_JUDGE_BASE_URL"`
	ProjectID     string         `env:"GOOGLE_CLOUD_PROJECT"`
	Region        string         `env:"GOOGLE_CLOUD_REGION, default=us-east5"`
	JudgeRetry    retry.Config   `env:", prefix=EVAL_JUDGE_"`

	InactivityTimeout time.Duration `env:"EVAL_RUN_INACTIVITY_TIMEOUT, default=15m"`
	MaxConcurrentRuns int           `env:"EVAL_MAX_CONCURRENT_RUNS, default=4"`
	ReapInterval      time.Duration `env:"EVAL_REAP_INTERVAL, default=1m"`
	// Thresholds overrides dimension thresholds, as "dimension:value,...".
	Thresholds string `env:"EVAL_THRESHOLDS"`
}

// Load reads the configuration from the process environment.
func Load(ctx context.Context) (*Config, error) {
	return LoadWith(ctx, envconfig.OsLookuper())
}

// LoadWith reads the configuration from l.
func LoadWith(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return nil, fmt.Errorf("processing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if c.InactivityTimeout < 0 {
		errs = append(errs, errors.New("EVAL_RUN_INACTIVITY_TIMEOUT cannot be negative"))
	}
	if c.MaxConcurrentRuns < 1 {
		errs = append(errs, fmt.Errorf("EVAL_MAX_CONCURRENT_RUNS must be at least 1, got %d", c.MaxConcurrentRuns))
	}
	switch c.JudgeProvider {
	case judge.ProviderAuto, judge.ProviderAnthropic, judge.ProviderVertex,
		judge.ProviderGemini, judge.ProviderOpenAI, judge.ProviderNone:
	default:
		errs = append(errs, fmt.Errorf("EVAL_JUDGE_PROVIDER %q is not one of auto, anthropic, vertex, gemini, openai, none", c.JudgeProvider))
	}
	if _, err := evals.ParseThresholds(c.Thresholds); err != nil {
		errs = append(errs, fmt.Errorf("EVAL_THRESHOLDS: %w", err))
	}
	if err := c.JudgeRetry.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Judge returns the judge settings.
func (c *Config) Judge() judge.Config {
	return judge.Config{
		Provider:  c.JudgeProvider,
		Model:     c.JudgeModel,
		ProjectID: c.ProjectID,
		Region:    c.Region,
		APIKey:    c.JudgeAPIKey,
		BaseURL:   c.JudgeBaseURL,
		Retry:     c.JudgeRetry,
	}
}

// Registry builds the dimension registry for j with the configured
// threshold overrides applied.
func (c *Config) Registry(j judge.Interface) (*evals.Registry, error) {
	r, err := evals.NewRegistry(evals.Builtin(j)...)
	if err != nil {
		return nil, err
	}
	overrides, err := evals.ParseThresholds(c.Thresholds)
	if err != nil {
		return nil, err
	}
	return r.WithThresholds(overrides)
}
