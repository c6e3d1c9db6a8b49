/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"chainguard.dev/agenteval/agents/evalerr"
	"chainguard.dev/agenteval/agents/testcase"
	"github.com/spf13/cobra"
)

func newDeriveCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "derive <trace-id>",
		Short: "Create a studio test case from a captured trace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := e.deriver(cmd.Context())
			if err != nil {
				return err
			}
			tc, err := d.Derive(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), tc)
		},
	}
}

func newUpdateCmd(e *env) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "update <test-case-id> [partial-json]",
		Short: "Apply a partial update to a test case",
		Long: `Apply a partial update to a test case. The update is a JSON object
given as the second argument or read from --file ("-" for stdin). A null value
removes an optional field.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data []byte
			switch {
			case len(args) == 2:
				data = []byte(args[1])
			case file == "-":
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("reading stdin: %w", err)
				}
				data = b
			case file != "":
				b, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("reading %s: %w", file, err)
				}
				data = b
			default:
				return evalerr.Validationf("update", "a partial JSON object or --file is required")
			}

			var partial map[string]json.RawMessage
			if err := json.Unmarshal(data, &partial); err != nil || partial == nil {
				return evalerr.Validationf("update", "partial update must be a JSON object")
			}
			d, err := e.deriver(cmd.Context())
			if err != nil {
				return err
			}
			tc, err := d.Update(cmd.Context(), args[0], partial)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), tc)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", `file holding the partial update, "-" for stdin`)
	return cmd
}

func newValidateCmd(_ *env) *cobra.Command {
	var schemaFor string
	cmd := &cobra.Command{
		Use:   "validate [file...]",
		Short: "Validate test case files, or print the schema of an agent type",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if schemaFor != "" {
				s, err := testcase.Schema(testcase.AgentType(schemaFor))
				if err != nil {
					return err
				}
				return printJSON(out, s)
			}
			if len(args) == 0 {
				return evalerr.Validationf("validate", "no files given")
			}

			invalid := 0
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("reading %s: %w", path, err)
				}
				var tc *testcase.TestCase
				switch filepath.Ext(path) {
				case ".yaml", ".yml":
					tc, err = testcase.ValidateYAML(path, data)
				default:
					tc, err = testcase.Validate(path, data)
				}
				if err != nil {
					invalid++
					fmt.Fprintf(out, "INVALID %v\n", err)
					continue
				}
				fmt.Fprintf(out, "OK      %s (%s %s)\n", path, tc.AgentType, tc.ID)
			}
			if invalid > 0 {
				return evalerr.Validationf("validate", "%d of %d files are invalid", invalid, len(args))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&schemaFor, "schema", "", "print the JSON Schema for this agent type instead")
	return cmd
}
