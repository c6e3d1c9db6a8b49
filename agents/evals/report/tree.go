/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package report

import (
	"fmt"
	"path"
	"sort"

	"chainguard.dev/agenteval/agents/aggregate"
	"chainguard.dev/sdk/pathtree"
)

// Tree renders the suite as {agent_type}/{test_case}/{dimension}. Passing
// tests are collapsed to a single node; failing tests list every dimension
// and their weak component.
func Tree(suite *aggregate.SuiteResult) (string, bool) {
	if len(suite.Tests) == 0 {
		return "", !suite.OverallPass
	}
	tree := pathtree.New()
	tree.PrintOption = pathtree.KeyValueLabel

	byType := map[string][]*aggregate.TestResult{}
	for _, t := range suite.Tests {
		byType[string(t.AgentType)] = append(byType[string(t.AgentType)], t)
	}
	agentTypes := make([]string, 0, len(byType))
	for a := range byType {
		agentTypes = append(agentTypes, a)
	}
	sort.Strings(agentTypes)

	thresholds := thresholdsOf(suite)
	for _, agentType := range agentTypes {
		tests := byType[agentType]
		var passed int
		for _, t := range tests {
			if t.Passed {
				passed++
			}
		}
		value := fmt.Sprintf("%.1f%%", 100*float64(passed)/float64(len(tests)))
		if passed < len(tests) {
			value = failMark + " " + value
		}
		add(tree, agentType, value, fmt.Sprintf("(%d/%d)", passed, len(tests)))

		for _, t := range tests {
			addTest(tree, path.Join(agentType, t.TestCaseID), t, thresholds)
		}
	}
	return tree.String(), !suite.OverallPass
}

func addTest(tree *pathtree.Tree, base string, t *aggregate.TestResult, thresholds map[string]float64) {
	if t.Passed {
		add(tree, base, "PASS", fmt.Sprintf("(%d dimensions)", len(t.Dimensions)))
		return
	}
	add(tree, base, failMark+" FAIL", "")

	names := make([]string, 0, len(t.Dimensions)+len(t.Errors))
	for dim := range t.Dimensions {
		names = append(names, dim)
	}
	for dim := range t.Errors {
		names = append(names, dim)
	}
	sort.Strings(names)
	for _, dim := range names {
		p := path.Join(base, dim)
		if msg, ok := t.Errors[dim]; ok {
			add(tree, p, errorMark, truncate(msg, 60))
			continue
		}
		res := t.Dimensions[dim]
		value := fmt.Sprintf("%.2f", res.NormalizedScore)
		if !aggregate.Meets(res.NormalizedScore, thresholds[dim]) {
			value = failMark + " " + value
		}
		add(tree, p, value, fmt.Sprintf("(threshold %.2f)", thresholds[dim]))
	}
	if w := t.Weak; w != nil {
		add(tree, path.Join(base, "weak"), fmt.Sprintf("%s.%s", w.Dimension, w.Component), truncate(w.Summary, 60))
	}
}

func add(tree *pathtree.Tree, p, value, label string) {
	if err := tree.Add(p, value, label); err != nil {
		_ = tree.Update(p, value, label)
	}
}

func thresholdsOf(suite *aggregate.SuiteResult) map[string]float64 {
	out := make(map[string]float64, len(suite.Dimensions))
	for _, d := range suite.Dimensions {
		out[d.Dimension] = d.Threshold
	}
	return out
}
