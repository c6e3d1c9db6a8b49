/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package evals

import (
	"fmt"
	"maps"
	"strconv"
	"strings"

	"chainguard.dev/agenteval/agents/testcase"
)

// Registry holds dimensions in their fixed evaluation order together with
// the pass threshold in force for each.
type Registry struct {
	dimensions []Dimension
	thresholds map[string]float64
}

// NewRegistry creates a registry. Dimension names must be unique.
func NewRegistry(dims ...Dimension) (*Registry, error) {
	r := &Registry{thresholds: make(map[string]float64, len(dims))}
	for _, d := range dims {
		if _, ok := r.thresholds[d.Name()]; ok {
			return nil, fmt.Errorf("duplicate dimension %q", d.Name())
		}
		if t := d.Threshold(); t < 0 || t > 1 {
			return nil, fmt.Errorf("dimension %q: threshold %v outside [0, 1]", d.Name(), t)
		}
		r.dimensions = append(r.dimensions, d)
		r.thresholds[d.Name()] = d.Threshold()
	}
	return r, nil
}

// For returns the dimensions that score agentType, in evaluation order.
func (r *Registry) For(agentType testcase.AgentType) []Dimension {
	var out []Dimension
	for _, d := range r.dimensions {
		if d.Applies(agentType) {
			out = append(out, d)
		}
	}
	return out
}

// Names returns every dimension name in evaluation order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.dimensions))
	for _, d := range r.dimensions {
		out = append(out, d.Name())
	}
	return out
}

// Thresholds returns a copy of the thresholds in force.
func (r *Registry) Thresholds() map[string]float64 {
	return maps.Clone(r.thresholds)
}

// WithThresholds returns a copy of the registry with some thresholds
// replaced. Unknown dimensions and values outside [0, 1] are rejected.
func (r *Registry) WithThresholds(overrides map[string]float64) (*Registry, error) {
	next := &Registry{dimensions: r.dimensions, thresholds: maps.Clone(r.thresholds)}
	for name, t := range overrides {
		if _, ok := next.thresholds[name]; !ok {
			return nil, fmt.Errorf("threshold for unknown dimension %q", name)
		}
		if t < 0 || t > 1 {
			return nil, fmt.Errorf("threshold for %q: %v outside [0, 1]", name, t)
		}
		next.thresholds[name] = t
	}
	return next, nil
}

// ParseThresholds reads overrides written as "dimension:value,...".
func ParseThresholds(s string) (map[string]float64, error) {
	out := make(map[string]float64)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, value, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("threshold %q: want dimension:value", pair)
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, fmt.Errorf("threshold %q: %w", pair, err)
		}
		out[strings.TrimSpace(name)] = f
	}
	return out, nil
}
