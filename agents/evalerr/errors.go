/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package evalerr defines the error taxonomy shared by the evaluation engine.
//
// Every concrete error type matches a sentinel with errors.Is so callers can
// classify failures without depending on the concrete type:
//
//	if errors.Is(err, evalerr.ErrNotFound) {
//		// 404
//	}
package evalerr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrValidation classifies malformed test cases and requests.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound classifies unknown test case, trace, or evaluation ids.
	ErrNotFound = errors.New("not found")
	// ErrImmutableField classifies attempts to overwrite trace-derived fields.
	ErrImmutableField = errors.New("immutable field")
	// ErrEvaluation classifies a dimension that could not produce a score.
	ErrEvaluation = errors.New("evaluation failed")
	// ErrPersistence classifies failed writes to the run or test case store.
	ErrPersistence = errors.New("persistence failed")
)

// ValidationError lists the problems found while validating a test case.
type ValidationError struct {
	// Source identifies what was validated (a file path or test case id).
	Source string
	// Problems holds one message per failed check.
	Problems []string
}

func (e *ValidationError) Error() string {
	msg := strings.Join(e.Problems, "; ")
	if e.Source == "" {
		return fmt.Sprintf("validation failed: %s", msg)
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Source, msg)
}

// Is reports whether target is ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Validationf returns a ValidationError with a single formatted problem.
func Validationf(source, format string, args ...any) *ValidationError {
	return &ValidationError{Source: source, Problems: []string{fmt.Sprintf(format, args...)}}
}

// NotFoundError reports an unknown identifier of the given kind.
type NotFoundError struct {
	Kind string // "test case", "trace", "evaluation"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// Is reports whether target is ErrNotFound.
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// NotFound returns a NotFoundError.
func NotFound(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

// ImmutableFieldError reports an update that touched read-only fields.
type ImmutableFieldError struct {
	Fields []string
}

func (e *ImmutableFieldError) Error() string {
	fields := append([]string(nil), e.Fields...)
	sort.Strings(fields)
	return fmt.Sprintf("fields are read-only after derivation: %s", strings.Join(fields, ", "))
}

// Is reports whether target is ErrImmutableField.
func (e *ImmutableFieldError) Is(target error) bool { return target == ErrImmutableField }

// EvaluationError reports that one dimension could not score one test case.
type EvaluationError struct {
	Dimension  string
	TestCaseID string
	Err        error
}

func (e *EvaluationError) Error() string {
	if e.TestCaseID == "" {
		return fmt.Sprintf("dimension %s: %v", e.Dimension, e.Err)
	}
	return fmt.Sprintf("dimension %s for test case %s: %v", e.Dimension, e.TestCaseID, e.Err)
}

func (e *EvaluationError) Unwrap() error { return e.Err }

// Is reports whether target is ErrEvaluation.
func (e *EvaluationError) Is(target error) bool { return target == ErrEvaluation }

// PersistenceError reports a failed write. It is fatal to a run.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Is reports whether target is ErrPersistence.
func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }
