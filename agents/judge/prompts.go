/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package judge

import (
	"encoding/xml"
	"fmt"

	"chainguard.dev/agenteval/agents/promptbuilder"
)

// goldenPrompt is the prompt for golden mode judgment
var goldenPrompt = promptbuilder.MustNewPrompt(`<task>
You are grading an agent's answer against a reference answer.
Judge only the criterion given below.
</task>

{{golden_answer}}

{{actual_response}}

{{criterion}}

<instructions>
Score from 0.0 to 1.0. A score of 1.0 means the answer is at least as
good as the reference for this criterion; wording and ordering differences
do not lower the score. Use 0.75-0.99 for small gaps, 0.50-0.74 for notable
omissions, 0.25-0.49 for major errors and below 0.25 when the criterion is
not met at all. Every score below 1.0 needs at least one concrete
suggestion.
</instructions>

<output_format>
{"mode": "golden", "score": <number>, "reasoning": "<why>", "suggestions": ["..."]}
</output_format>

Respond with only the JSON object.`)

// standalonePrompt is the prompt for standalone mode judgment
var standalonePrompt = promptbuilder.MustNewPrompt(`<task>
You are grading an agent's answer on a single criterion. There is no
reference answer.
</task>

{{response}}

{{criterion}}

<instructions>
Score from 0.0 to 1.0. 1.0 means the criterion is fully met, 0.5 means it
is partly met with clear gaps and 0.0 means it is ignored or contradicted.
Every score below 1.0 needs at least one concrete suggestion.
</instructions>

<output_format>
{"mode": "standalone", "score": <number>, "reasoning": "<why>", "suggestions": ["..."]}
</output_format>

Respond with only the JSON object.`)

// promptFor returns the template for a mode.
func promptFor(mode JudgmentMode) (*promptbuilder.Prompt, error) {
	switch mode {
	case GoldenMode:
		return goldenPrompt, nil
	case StandaloneMode:
		return standalonePrompt, nil
	}
	return nil, fmt.Errorf("unknown judgment mode: %s", mode)
}

// section is an XML element named after its placeholder wrapping free text.
type section struct {
	XMLName xml.Name
	Content string `xml:",chardata"`
}

func bindSection(prompt *promptbuilder.Prompt, name, content string) (*promptbuilder.Prompt, error) {
	return prompt.BindXML(name, section{XMLName: xml.Name{Local: name}, Content: content})
}

// Bind implements promptbuilder.Bindable for Request
func (r *Request) Bind(prompt *promptbuilder.Prompt) (*promptbuilder.Prompt, error) {
	var bindings [][2]string
	switch r.Mode {
	case GoldenMode:
		bindings = [][2]string{{"golden_answer", r.ReferenceAnswer}, {"actual_response", r.ActualAnswer}}
	case StandaloneMode:
		bindings = [][2]string{{"response", r.ActualAnswer}}
	default:
		return nil, fmt.Errorf("unknown judgment mode: %s", r.Mode)
	}
	bindings = append(bindings, [2]string{"criterion", r.Criterion})

	var err error
	for _, b := range bindings {
		if prompt, err = bindSection(prompt, b[0], b[1]); err != nil {
			return nil, err
		}
	}
	return prompt, nil
}
