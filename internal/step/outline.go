package step

import (
	"context"
	"encoding/json"
	"fmt"

	"storyloom/internal/llm"
	"storyloom/internal/services"
	"storyloom/internal/story"
)

// Outline generates the story outline from the original request.
type Outline struct {
	gen      Generator
	policies PolicyResolver
}

// NewOutline constructs the story outline step.
func NewOutline(gen Generator, policies PolicyResolver) *Outline {
	return &Outline{gen: gen, policies: policies}
}

func (o *Outline) Name() string { return "story_outline" }

func (o *Outline) Phase() story.Phase { return story.PhaseStoryOutline }

// Run makes one generation call and overwrites the outline.
func (o *Outline) Run(ctx context.Context, st *story.State, feedback string) error {
	pol, err := o.policies.Resolve(o.Phase(), st.Request.Genre, st.Request.Platform)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, o.Name(), "resolve policy", "", err)
	}

	payload, err := json.Marshal(st.Request)
	if err != nil {
		return services.Wrap(services.ErrGeneration, o.Name(), "encode request", "", err)
	}
	prompt := fmt.Sprintf("Create a story outline for this request:\n%s", payload)

	content, err := o.gen.CompleteJSON(ctx, pol.System, userPrompt(prompt, pol, feedback), pol.Temperature)
	if err != nil {
		return services.Wrap(services.ErrGeneration, o.Name(), "generate", "", err)
	}

	var outline story.Outline
	if err := llm.DecodeLLMJSON(content, &outline); err != nil {
		return services.Wrap(services.ErrGeneration, o.Name(), "parse response", "", err)
	}
	if err := st.SetOutline(outline); err != nil {
		return services.Wrap(services.ErrGeneration, o.Name(), "apply outline", "", err)
	}
	return nil
}
