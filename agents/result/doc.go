/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package result extracts structured values from model responses.
//
// Models tend to wrap JSON in markdown fences or surround it with prose.
// ExtractJSON strips that packaging; Extract decodes the JSON into a typed
// value; ParseScore is the strict parser used for judge scores and never
// invents a number from text it cannot read.
package result
