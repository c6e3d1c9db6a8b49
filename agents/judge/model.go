/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package judge

import (
	"context"
	"errors"
	"fmt"

	"chainguard.dev/agenteval/agents/metrics"
	"chainguard.dev/agenteval/agents/result"
	"chainguard.dev/agenteval/agents/retry"
	"github.com/chainguard-dev/clog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Defaults shared by every backend.
const (
	defaultMaxTokens   = 8192
	defaultTemperature = 0.1
)

// completion is one model answer.
type completion struct {
	text             string
	promptTokens     int64
	completionTokens int64
}

// backend sends a fully built prompt to a model.
type backend interface {
	complete(ctx context.Context, prompt string) (completion, error)
	retryable(err error) bool
}

// modelJudge implements Interface over a backend.
type modelJudge struct {
	model   string
	backend backend
	retry   retry.Config
	metrics *metrics.GenAI
}

var _ Interface = (*modelJudge)(nil)

// Judge implements Interface
func (j *modelJudge) Judge(ctx context.Context, request *Request) (*Judgement, error) {
	if err := request.Validate(); err != nil {
		return nil, err
	}
	template, err := promptFor(request.Mode)
	if err != nil {
		return nil, err
	}
	bound, err := request.Bind(template)
	if err != nil {
		return nil, fmt.Errorf("binding %s prompt: %w", request.Mode, err)
	}
	prompt, err := bound.Build()
	if err != nil {
		return nil, fmt.Errorf("building %s prompt: %w", request.Mode, err)
	}

	ctx, span := otel.Tracer("chainguard.dev/agenteval/agents/judge").Start(ctx, "judge.call")
	defer span.End()
	span.SetAttributes(
		attribute.String("judge.model", j.model),
		attribute.String("judge.mode", string(request.Mode)),
	)

	out, err := retry.Do(ctx, j.retry, "judge", j.backend.retryable, func(ctx context.Context) (completion, error) {
		return j.backend.complete(ctx, prompt)
	})
	if err != nil {
		j.metrics.RecordJudgeCall(ctx, j.model, metrics.OutcomeError)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("calling judge model %s: %w", j.model, err)
	}
	j.metrics.RecordTokens(ctx, j.model, out.promptTokens, out.completionTokens)

	judgement, err := parse(request.Mode, out.text)
	if err != nil {
		j.metrics.RecordJudgeCall(ctx, j.model, metrics.OutcomeMalformed)
		span.SetStatus(codes.Error, err.Error())
		clog.FromContext(ctx).With("model", j.model, "mode", request.Mode, "error", err).Warn("Judge returned a malformed response")
		return nil, err
	}
	j.metrics.RecordJudgeCall(ctx, j.model, metrics.OutcomeSuccess)
	span.SetAttributes(attribute.Float64("judge.score", judgement.Score))
	return judgement, nil
}

// wireJudgement distinguishes a missing score from a zero score.
type wireJudgement struct {
	Mode        JudgmentMode `json:"mode"`
	Score       *float64     `json:"score"`
	Reasoning   string       `json:"reasoning"`
	Suggestions []string     `json:"suggestions"`
}

// parse reads a Judgement from model text. A bare number is accepted as a
// score without reasoning; anything else without a numeric score is
// malformed.
func parse(mode JudgmentMode, text string) (*Judgement, error) {
	var j Judgement
	wire, err := result.Extract[wireJudgement](text)
	switch {
	case err == nil && wire.Score != nil:
		j = Judgement{Mode: wire.Mode, Score: *wire.Score, Reasoning: wire.Reasoning, Suggestions: wire.Suggestions}
	default:
		score, serr := result.ParseScore(text)
		if serr != nil {
			if err == nil {
				err = errors.New(`missing "score"`)
			}
			return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
		}
		j = Judgement{Score: score}
	}
	if j.Mode == "" {
		j.Mode = mode
	}
	if j.Suggestions == nil {
		j.Suggestions = []string{}
	}
	if err := j.Check(mode); err != nil {
		return nil, err
	}
	return &j, nil
}
