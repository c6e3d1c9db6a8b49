/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package result

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrNoScore is returned when a response does not carry a usable score.
var ErrNoScore = errors.New("response does not contain a numeric score")

// ExtractJSON returns the JSON payload of a model response. The first
// ```json fenced block wins; otherwise surrounding fences and whitespace are
// trimmed; failing that, the outermost {...} span is returned.
func ExtractJSON(text string) string {
	if body, ok := fenced(text); ok {
		return body
	}

	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)
	if json.Valid([]byte(text)) {
		return text
	}

	// Prose around a single object.
	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		if candidate := text[start : end+1]; json.Valid([]byte(candidate)) {
			return candidate
		}
	}
	return text
}

// fenced returns the contents of the first ```json block whose markers sit
// on their own lines.
func fenced(text string) (string, bool) {
	var body []string
	inBlock := false
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case !inBlock && trimmed == "```json":
			inBlock = true
		case inBlock && trimmed == "```":
			return strings.TrimSpace(strings.Join(body, "\n")), true
		case inBlock:
			body = append(body, line)
		}
	}
	if inBlock {
		// Unterminated block: take what we have.
		return strings.TrimSpace(strings.Join(body, "\n")), true
	}
	return "", false
}

// Extract decodes the JSON payload of a model response into T.
func Extract[T any](text string) (T, error) {
	var out T
	payload := ExtractJSON(text)
	if payload == "" {
		return out, errors.New("empty JSON payload")
	}
	if err := json.Unmarshal([]byte(payload), &out); err != nil {
		return out, fmt.Errorf("decoding response: %w", err)
	}
	return out, nil
}

// ParseScore reads a score from a response that is either a bare number or
// a JSON object with a numeric "score" field. Anything else, including
// numbers embedded in prose, NaN and infinities, returns ErrNoScore.
func ParseScore(text string) (float64, error) {
	payload := ExtractJSON(text)
	if f, err := strconv.ParseFloat(payload, 64); err == nil {
		return finite(f)
	}

	var obj struct {
		Score *json.Number `json:"score"`
	}
	dec := json.NewDecoder(strings.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&obj); err != nil || obj.Score == nil {
		return 0, fmt.Errorf("%w: %q", ErrNoScore, truncate(text, 80))
	}
	f, err := obj.Score.Float64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNoScore, err)
	}
	return finite(f)
}

func finite(f float64) (float64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %v is not finite", ErrNoScore, f)
	}
	return f, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
