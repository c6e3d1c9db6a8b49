/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package aggregate turns per-test dimension results into a suite verdict.
//
// Every dimension is gated on its own average: the suite fails when any
// dimension's mean normalized score falls below that dimension's threshold,
// however high the overall score is. Dimensions that failed to score for a
// test are left out of that dimension's average and listed in
// dimension_failure_details with kind "evaluation_error".
package aggregate
