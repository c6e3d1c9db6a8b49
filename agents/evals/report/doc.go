/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package report renders an aggregate.SuiteResult as plain text for the
// command line.
//
// Table lists every dimension with its suite average, threshold and gap.
// Failures lists dimension_failure_details, marking evaluation errors with
// "ERROR" rather than a score. Tree groups test cases by agent type and
// expands failing ones down to their weak component. Text combines all
// three under the suite verdict:
//
//	out, failed := report.Text(suite)
//	fmt.Print(out)
//	if failed {
//	    os.Exit(1)
//	}
package report
