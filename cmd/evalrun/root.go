/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"chainguard.dev/agenteval/agents/agenttrace"
	"chainguard.dev/agenteval/agents/derive"
	"chainguard.dev/agenteval/agents/judge"
	"chainguard.dev/agenteval/agents/runner"
	"chainguard.dev/agenteval/agents/runstore"
	"chainguard.dev/agenteval/agents/testcase"
	"chainguard.dev/agenteval/config"
	"github.com/spf13/cobra"
)

// env is shared by every subcommand. The configuration is loaded once the
// command line has been parsed.
type env struct {
	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	e := &env{}
	root := &cobra.Command{
		Use:           "evalrun",
		Short:         "Evaluate agent traces against curated test cases",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Context())
			if err != nil {
				return err
			}
			e.cfg = cfg
			return nil
		},
	}
	root.AddCommand(
		newServeCmd(e),
		newRunCmd(e),
		newDeriveCmd(e),
		newUpdateCmd(e),
		newEventsCmd(e),
		newReportCmd(e),
		newValidateCmd(e),
	)
	return root
}

func (e *env) cases() *testcase.Store {
	return testcase.NewStore(e.cfg.TestCaseRoot)
}

func (e *env) runs() *runstore.Store {
	return runstore.New(e.cfg.RunRoot, runstore.WithInactivityTimeout(e.cfg.InactivityTimeout))
}

func (e *env) deriver(ctx context.Context) (*derive.Deriver, error) {
	traces, err := agenttrace.Open(ctx, e.cfg.TraceRoot)
	if err != nil {
		return nil, err
	}
	return derive.New(traces, e.cases()), nil
}

// manager wires the run manager with a judge built from the configuration.
// Commands that only read runs use managerWithoutJudge instead, so they work
// without judge credentials.
func (e *env) manager(ctx context.Context) (*runner.Manager, error) {
	j, err := judge.New(ctx, e.cfg.Judge())
	if err != nil {
		return nil, fmt.Errorf("creating judge: %w", err)
	}
	return e.newManager(ctx, j)
}

func (e *env) managerWithoutJudge(ctx context.Context) (*runner.Manager, error) {
	return e.newManager(ctx, nil)
}

func (e *env) newManager(ctx context.Context, j judge.Interface) (*runner.Manager, error) {
	traces, err := agenttrace.Open(ctx, e.cfg.TraceRoot)
	if err != nil {
		return nil, err
	}
	registry, err := e.cfg.Registry(j)
	if err != nil {
		return nil, err
	}
	return runner.New(e.runs(), e.cases(), traces, registry,
		runner.WithConcurrency(e.cfg.MaxConcurrentRuns)), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
