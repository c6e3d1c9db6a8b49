/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"errors"
	"fmt"

	"chainguard.dev/agenteval/agents/evals/report"
	"chainguard.dev/agenteval/agents/runner"
	"chainguard.dev/agenteval/agents/testcase"
	"github.com/spf13/cobra"
)

// errSuiteFailed is returned when an evaluation completes below threshold.
var errSuiteFailed = errors.New("evaluation did not pass")

func newRunCmd(e *env) *cobra.Command {
	var agentType string
	cmd := &cobra.Command{
		Use:   "run [test-case-id...]",
		Short: "Evaluate test cases in the foreground and print the report",
		Long: `Evaluate test cases in the foreground and print the report.

Each test case is scored on the trace named by its trace_id. Test cases
without a trace_id are rejected, since this binary does not run a live
agent.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			mgr, err := e.manager(ctx)
			if err != nil {
				return err
			}
			id, suite, err := mgr.Evaluate(ctx, runner.Selection{
				TestCaseIDs: args,
				AgentType:   testcase.AgentType(agentType),
			})
			if err != nil {
				if id != "" {
					return fmt.Errorf("evaluation %s: %w", id, err)
				}
				return err
			}
			text, failed := report.Text(suite)
			fmt.Fprint(cmd.OutOrStdout(), text)
			if failed {
				return fmt.Errorf("evaluation %s: %w", id, errSuiteFailed)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&agentType, "agent-type", "", "evaluate every test case of this agent type")
	return cmd
}

func newReportCmd(e *env) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "report <evaluation-id>",
		Short: "Print the report of a completed evaluation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := e.managerWithoutJudge(cmd.Context())
			if err != nil {
				return err
			}
			suite, err := mgr.Result(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), suite)
			}
			text, _ := report.Text(suite)
			_, err = fmt.Fprint(cmd.OutOrStdout(), text)
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw suite result")
	return cmd
}

func newEventsCmd(e *env) *cobra.Command {
	var start int
	cmd := &cobra.Command{
		Use:   "events <evaluation-id>",
		Short: "Print the events of an evaluation from an index on",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			page, err := e.runs().ReadEvents(cmd.Context(), args[0], start)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), page)
		},
	}
	cmd.Flags().IntVar(&start, "start-index", 0, "zero-based index of the first event to print")
	return cmd
}
