/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package report

import (
	"fmt"
	"strings"

	"chainguard.dev/agenteval/agents/aggregate"
)

// Generator renders a suite result, returning the report text and whether
// the suite failed.
type Generator func(suite *aggregate.SuiteResult) (string, bool)

// Text is the full plain-text report: the verdict, the dimension table, the
// failure details table and the per-test tree.
func Text(suite *aggregate.SuiteResult) (string, bool) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Evaluation %s: %s (overall score %.1f%%)\n\n", suite.EvaluationID, suite.Verdict(), suite.OverallScore*100)

	for _, gen := range []Generator{Table, Failures, Tree} {
		out, _ := gen(suite)
		if out == "" {
			continue
		}
		sb.WriteString(out)
		if !strings.HasSuffix(out, "\n") {
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n") + "\n", !suite.OverallPass
}
