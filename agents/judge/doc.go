/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package judge asks a language model to score an answer against a
// criterion.
//
// # Overview
//
// The package provides:
//   - A common Interface with golden and standalone modes
//   - Backends for Claude (Anthropic API or Vertex AI), Gemini on Vertex AI
//     and OpenAI compatible endpoints
//   - Strict parsing: a response without a numeric score in range is an
//     error wrapping ErrMalformedResponse, never a default score
//
// # Usage
//
//	j, err := judge.New(ctx, judge.Config{
//		Provider:  judge.ProviderAuto,
//		Model:     "claude-sonnet-4-5",
//		ProjectID: projectID,
//		Region:    region,
//		Retry:     retry.Default(),
//	})
//	if err != nil {
//		return err
//	}
//	verdict, err := j.Judge(ctx, &judge.Request{
//		Mode:            judge.GoldenMode,
//		ReferenceAnswer: reference,
//		ActualAnswer:    answer,
//		Criterion:       "covers every key data point",
//	})
//
// # Scoring
//
// Scores range from 0.0 to 1.0, with 1.0 being perfect.
//
// Transient transport errors are retried with backoff; token usage and call
// outcomes are recorded through the metrics package.
//
// # Thread Safety
//
// All judge implementations are safe for concurrent use.
package judge
