/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package promptbuilder fills {{name}} placeholders in judge prompt
// templates. Templates are string literals chosen by the developer; data
// from test cases and traces is only ever bound as a quoted literal,
// JSON, XML or YAML block, never spliced in as template text.
package promptbuilder

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"maps"

	"gopkg.in/yaml.v3"
)

// literal only accepts untyped string constants from callers outside this
// package, so templates cannot be assembled from runtime data.
type literal string

// Bindable is implemented by request types that know how to fill a prompt.
type Bindable interface {
	Bind(prompt *Prompt) (*Prompt, error)
}

// render produces the text substituted for one placeholder.
type render func() (string, error)

// Prompt is an immutable template plus the values bound so far. Every Bind
// method returns a new Prompt.
type Prompt struct {
	template string
	names    map[string]struct{}
	bound    map[string]render
}

// NewPrompt parses template and records its placeholders.
func NewPrompt(template literal) (*Prompt, error) {
	names := make(map[string]struct{})
	if _, err := expand(string(template), func(name string) (string, error) {
		names[name] = struct{}{}
		return "", nil
	}); err != nil {
		return nil, err
	}
	return &Prompt{
		template: string(template),
		names:    names,
		bound:    make(map[string]render),
	}, nil
}

// MustNewPrompt is NewPrompt for package-level templates.
func MustNewPrompt(template literal) *Prompt {
	p, err := NewPrompt(template)
	if err != nil {
		panic(err)
	}
	return p
}

// Placeholders returns the names found in the template.
func (p *Prompt) Placeholders() map[string]struct{} {
	return maps.Clone(p.names)
}

// BindLiteral binds a developer-supplied constant.
func (p *Prompt) BindLiteral(name string, value literal) (*Prompt, error) {
	return p.with(name, func() (string, error) { return string(value), nil })
}

// BindText binds runtime text as a quoted string so it cannot be read as
// instructions.
func (p *Prompt) BindText(name, value string) (*Prompt, error) {
	return p.with(name, func() (string, error) {
		b, err := json.Marshal(value)
		return string(b), err
	})
}

// BindJSON binds data rendered as indented JSON.
func (p *Prompt) BindJSON(name string, data any) (*Prompt, error) {
	return p.with(name, func() (string, error) {
		b, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshaling %s as JSON: %w", name, err)
		}
		return string(b), nil
	})
}

// BindXML binds data rendered as indented XML.
func (p *Prompt) BindXML(name string, data any) (*Prompt, error) {
	return p.with(name, func() (string, error) {
		b, err := xml.MarshalIndent(data, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshaling %s as XML: %w", name, err)
		}
		return string(b), nil
	})
}

// BindYAML binds data rendered as YAML.
func (p *Prompt) BindYAML(name string, data any) (*Prompt, error) {
	return p.with(name, func() (string, error) {
		b, err := yaml.Marshal(data)
		if err != nil {
			return "", fmt.Errorf("marshaling %s as YAML: %w", name, err)
		}
		return string(b), nil
	})
}

func (p *Prompt) with(name string, r render) (*Prompt, error) {
	if _, ok := p.names[name]; !ok {
		return nil, fmt.Errorf("binding %q not found in template", name)
	}
	if _, ok := p.bound[name]; ok {
		return nil, fmt.Errorf("binding %q already bound", name)
	}
	next := &Prompt{template: p.template, names: p.names, bound: maps.Clone(p.bound)}
	next.bound[name] = r
	return next, nil
}

// Build renders the prompt. Every placeholder must be bound.
func (p *Prompt) Build() (string, error) {
	values := make(map[string]string, len(p.bound))
	for name := range p.names {
		r, ok := p.bound[name]
		if !ok {
			return "", fmt.Errorf("unbound placeholder: %s", name)
		}
		v, err := r()
		if err != nil {
			return "", err
		}
		values[name] = v
	}
	return expand(p.template, func(name string) (string, error) {
		return values[name], nil
	})
}
