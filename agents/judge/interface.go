/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package judge

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
)

// JudgmentMode specifies the type of judgment to perform.
type JudgmentMode string

const (
	// GoldenMode evaluates a response against a reference answer.
	GoldenMode JudgmentMode = "golden"
	// StandaloneMode evaluates a single response against a criterion without a reference.
	StandaloneMode JudgmentMode = "standalone"
)

// ErrMalformedResponse is returned when a judge model answers with text that
// does not carry a usable numeric score. Callers must not substitute a
// default score.
var ErrMalformedResponse = errors.New("malformed judge response")

// Request contains the context for judgment
type Request struct {
	// Mode specifies the judgment mode.
	Mode JudgmentMode `json:"mode"`

	// ReferenceAnswer is the golden answer to compare against.
	ReferenceAnswer string `json:"reference_answer,omitempty"`

	// ActualAnswer is the answer to evaluate.
	ActualAnswer string `json:"actual_answer"`

	// Criterion specifies the evaluation criterion.
	Criterion string `json:"criterion"`
}

// Validate checks that the fields required by the request's mode are set.
func (r *Request) Validate() error {
	switch r.Mode {
	case GoldenMode:
		if r.ReferenceAnswer == "" {
			return errors.New("reference_answer is required for golden mode")
		}
	case StandaloneMode:
		if r.ReferenceAnswer != "" {
			return errors.New("reference_answer must not be provided for standalone mode")
		}
	default:
		return fmt.Errorf("unsupported mode: %q", r.Mode)
	}
	if r.ActualAnswer == "" {
		return fmt.Errorf("actual_answer is required for %s mode", r.Mode)
	}
	if r.Criterion == "" {
		return fmt.Errorf("criterion is required for %s mode", r.Mode)
	}
	return nil
}

// ScoreRange returns the inclusive bounds of a valid score in the mode.
func (JudgmentMode) ScoreRange() (lo, hi float64) {
	return 0, 1
}

// Judgement contains the judgment result
type Judgement struct {
	// Mode is the judgment mode used.
	Mode JudgmentMode `json:"mode"`

	// Score is the primary judgment metric from 0.0 (awful) to 1.0 (ideal - matches golden answer).
	Score float64 `json:"score"`

	// Reasoning explains the judgment and score.
	Reasoning string `json:"reasoning"`

	// Suggestions provides improvement recommendations. May be empty for perfect scores.
	Suggestions []string `json:"suggestions"`
}

// Check reports ErrMalformedResponse if the score is not a finite number in
// the mode's range.
func (j *Judgement) Check(mode JudgmentMode) error {
	lo, hi := mode.ScoreRange()
	switch {
	case math.IsNaN(j.Score) || math.IsInf(j.Score, 0):
		return fmt.Errorf("%w: score %v is not finite", ErrMalformedResponse, j.Score)
	case j.Score < lo || j.Score > hi:
		return fmt.Errorf("%w: score %v outside [%v, %v]", ErrMalformedResponse, j.Score, lo, hi)
	}
	return nil
}

// String returns a formatted representation of the judgment similar to trace output
func (j *Judgement) String() string {
	var sb strings.Builder

	// Header with score
	sb.WriteString(fmt.Sprintf("Grade: %.2f", j.Score))

	if j.Reasoning != "" {
		sb.WriteString(fmt.Sprintf(" - %s", j.Reasoning))
	}
	sb.WriteString("\n")

	for _, suggestion := range j.Suggestions {
		sb.WriteString(fmt.Sprintf("  Suggestion: %s\n", suggestion))
	}

	return strings.TrimRight(sb.String(), "\n")
}

// Interface defines the contract for judge implementations
type Interface interface {
	// Judge evaluates the actual answer in request against its criterion.
	// A response without a usable score fails with an error wrapping
	// ErrMalformedResponse.
	Judge(ctx context.Context, request *Request) (*Judgement, error)
}

// Func adapts a function to Interface.
type Func func(ctx context.Context, request *Request) (*Judgement, error)

// Judge implements Interface.
func (f Func) Judge(ctx context.Context, request *Request) (*Judgement, error) {
	return f(ctx, request)
}
