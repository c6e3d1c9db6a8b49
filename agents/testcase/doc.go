/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

/*
Package testcase defines test cases for the agents under evaluation and the
file-backed store that holds them.

A TestCase is a tagged variant. The shared Envelope carries identity and
derivation bookkeeping; Payload is one of *CMO, *Specialist or
*Visualization depending on AgentType. Agent types this build does not know
decode into *Unknown and are only checked for id and agent_type, so a corpus
written for a newer release still loads.

On disk a test case is a flat JSON or YAML object:

	{root}/framework/cmo/q3-revenue.yaml
	{root}/studio-generated/specialist/5f0c....json

Load never fails because of a single bad file; invalid files are logged and
skipped.
*/
package testcase
