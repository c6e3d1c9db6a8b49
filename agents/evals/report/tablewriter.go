/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package report

import (
	"bytes"
	"fmt"
	"io"

	"chainguard.dev/agenteval/agents/aggregate"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
)

// Cell markers. An evaluation error is marked differently from a low score.
const (
	failMark  = "❌"
	errorMark = "⚠️ ERROR"
)

// createStandardTable creates a markdown table writer shared by every
// tabular report.
func createStandardTable(headers []string, w io.Writer) *tablewriter.Table {
	cfg := tablewriter.Config{
		Header: tw.CellConfig{
			Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			Formatting: tw.CellFormatting{AutoFormat: tw.Off},
		},
		Row: tw.CellConfig{
			Alignment: tw.CellAlignment{Global: tw.AlignLeft},
		},
		MaxWidth: 120,
		Behavior: tw.Behavior{TrimSpace: tw.Off},
	}
	return tablewriter.NewTable(w,
		tablewriter.WithConfig(cfg),
		tablewriter.WithHeader(headers),
		tablewriter.WithRenderer(renderer.NewBlueprint()),
		tablewriter.WithRendition(tw.Rendition{
			Symbols: tw.NewSymbols(tw.StyleMarkdown),
			Borders: tw.Border{
				Left:   tw.On,
				Top:    tw.Off,
				Right:  tw.On,
				Bottom: tw.Off,
			},
		}),
		tablewriter.WithRowAutoWrap(tw.WrapNone),
	)
}

// Table renders one row per dimension with its suite average, threshold
// and the gap for dimensions below threshold.
func Table(suite *aggregate.SuiteResult) (string, bool) {
	if len(suite.Dimensions) == 0 {
		return "", !suite.OverallPass
	}
	var buf bytes.Buffer
	table := createStandardTable([]string{"Dimension", "Average", "Threshold", "Gap", "Scored", "Errors", "Status"}, &buf)
	for _, d := range suite.Dimensions {
		status, gap := "PASS", "-"
		if !d.Passed {
			status = failMark + " FAIL"
			gap = fmt.Sprintf("%.4f", d.Gap)
		}
		average := fmt.Sprintf("%.4f", d.Average)
		if d.Scored == 0 {
			average = "n/a"
		}
		_ = table.Append([]string{
			d.Dimension,
			average,
			fmt.Sprintf("%.2f", d.Threshold),
			gap,
			fmt.Sprint(d.Scored),
			fmt.Sprint(d.Errors),
			status,
		})
	}
	_ = table.Render()
	return buf.String(), !suite.OverallPass
}

// Failures renders dimension_failure_details, one row per failing
// (test case, dimension) pair.
func Failures(suite *aggregate.SuiteResult) (string, bool) {
	if len(suite.DimensionFailureDetails) == 0 {
		return "", !suite.OverallPass
	}
	var buf bytes.Buffer
	table := createStandardTable([]string{"Test case", "Dimension", "Score", "Threshold", "Detail"}, &buf)
	for _, f := range suite.DimensionFailureDetails {
		score, detail := errorMark, f.Error
		if f.Kind == aggregate.BelowThreshold && f.Score != nil {
			score = fmt.Sprintf("%.2f", *f.Score)
			detail = f.Summary
		}
		_ = table.Append([]string{f.TestCaseID, f.Dimension, score, fmt.Sprintf("%.2f", f.Threshold), truncate(detail, 60)})
	}
	_ = table.Render()
	return buf.String(), !suite.OverallPass
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
