// Package step contains the generation steps, one per pipeline phase.
// Steps mutate only their own phase's artifacts and never touch the
// store; checkpointing and sequencing belong to the runner.
package step

import (
	"context"
	"strings"

	"storyloom/internal/policy"
	"storyloom/internal/story"
)

// Step is the unit of work executed for one phase invocation. Run
// receives the current state and the feedback from a prior rejection, if
// any. Steps are idempotent under re-invocation: a rejected phase
// overwrites its earlier artifacts rather than duplicating them.
type Step interface {
	Name() string
	Phase() story.Phase
	Run(ctx context.Context, st *story.State, feedback string) error
}

// Generator is the single text generation collaborator every LLM-backed
// step calls exactly once per invocation.
type Generator interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string, temperature float64) (string, error)
}

// PolicyResolver resolves the generation policy for a phase.
type PolicyResolver interface {
	Resolve(phase story.Phase, genre, platform string) (policy.Policy, error)
}

// userPrompt assembles the user message for an LLM call: the phase's
// payload, the policy guidelines, and rejection feedback as an opaque
// trailing hint.
func userPrompt(payload string, pol policy.Policy, feedback string) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(payload))
	if guidelines := strings.TrimSpace(pol.Guidelines); guidelines != "" {
		b.WriteString("\n\nGuidelines:\n")
		b.WriteString(guidelines)
	}
	if feedback = strings.TrimSpace(feedback); feedback != "" {
		b.WriteString("\n\nThe previous attempt was rejected with this feedback, address it:\n")
		b.WriteString(feedback)
	}
	return b.String()
}
