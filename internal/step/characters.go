package step

import (
	"context"
	"encoding/json"
	"fmt"

	"storyloom/internal/llm"
	"storyloom/internal/services"
	"storyloom/internal/story"
)

// Characters generates the character roster from the outline.
type Characters struct {
	gen      Generator
	policies PolicyResolver
}

// NewCharacters constructs the character design step.
func NewCharacters(gen Generator, policies PolicyResolver) *Characters {
	return &Characters{gen: gen, policies: policies}
}

func (c *Characters) Name() string { return "character_design" }

func (c *Characters) Phase() story.Phase { return story.PhaseCharacterDesign }

// Run makes one generation call and replaces the roster wholesale.
func (c *Characters) Run(ctx context.Context, st *story.State, feedback string) error {
	if st.Outline == nil {
		return services.Wrap(services.ErrValidation, c.Name(), "check inputs", "story outline missing", nil)
	}
	pol, err := c.policies.Resolve(c.Phase(), st.Request.Genre, st.Request.Platform)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, c.Name(), "resolve policy", "", err)
	}

	inputs := struct {
		Request story.Request `json:"request"`
		Outline story.Outline `json:"outline"`
	}{st.Request, *st.Outline}
	payload, err := json.Marshal(inputs)
	if err != nil {
		return services.Wrap(services.ErrGeneration, c.Name(), "encode context", "", err)
	}
	prompt := fmt.Sprintf("Design the character roster for this story:\n%s", payload)

	content, err := c.gen.CompleteJSON(ctx, pol.System, userPrompt(prompt, pol, feedback), pol.Temperature)
	if err != nil {
		return services.Wrap(services.ErrGeneration, c.Name(), "generate", "", err)
	}

	var parsed struct {
		Characters []story.Character `json:"characters"`
	}
	if err := llm.DecodeLLMJSON(content, &parsed); err != nil {
		return services.Wrap(services.ErrGeneration, c.Name(), "parse response", "", err)
	}
	if len(parsed.Characters) == 0 {
		return services.Wrap(services.ErrGeneration, c.Name(), "parse response", "no characters in response", nil)
	}
	if err := st.SetCharacters(parsed.Characters); err != nil {
		return services.Wrap(services.ErrGeneration, c.Name(), "apply characters", "", err)
	}
	return nil
}
