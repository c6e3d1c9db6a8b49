/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package derive turns captured traces into studio test cases and applies
// reviewer edits to them.
//
// A derived test case copies the trace's terminal outcomes into actual_*
// fields and pre-populates the paired expected_* fields with the same
// values. The editable fields at that moment are persisted as the
// derivation baseline, and modified_fields is always recomputed as a pure
// diff against it: a field is reported while its value differs from the
// baseline and drops out again once a reviewer restores the original value.
package derive
