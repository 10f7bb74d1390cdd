package step

import (
	"context"
	"encoding/json"
	"fmt"

	"storyloom/internal/llm"
	"storyloom/internal/services"
	"storyloom/internal/story"
)

// Prompts writes one text-to-video prompt per storyboard shot.
type Prompts struct {
	gen      Generator
	policies PolicyResolver
}

// NewPrompts constructs the video prompts step.
func NewPrompts(gen Generator, policies PolicyResolver) *Prompts {
	return &Prompts{gen: gen, policies: policies}
}

func (p *Prompts) Name() string { return "video_prompts" }

func (p *Prompts) Phase() story.Phase { return story.PhaseVideoPrompts }

// Run makes one generation call and overwrites the prompt for every shot.
// A response missing any shot fails the step so no shot silently skips
// video generation.
func (p *Prompts) Run(ctx context.Context, st *story.State, feedback string) error {
	shots := st.Shots()
	if len(shots) == 0 {
		return services.Wrap(services.ErrValidation, p.Name(), "check inputs", "storyboard missing", nil)
	}
	pol, err := p.policies.Resolve(p.Phase(), st.Request.Genre, st.Request.Platform)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, p.Name(), "resolve policy", "", err)
	}

	type promptShot struct {
		ShotID string `json:"shot_id"`
		story.Shot
	}
	inputs := struct {
		Platform   string            `json:"platform"`
		Characters []story.Character `json:"characters"`
		Shots      []promptShot      `json:"shots"`
	}{Platform: st.Request.Platform, Characters: st.Characters}
	for _, shot := range shots {
		inputs.Shots = append(inputs.Shots, promptShot{ShotID: shot.ID(), Shot: shot})
	}
	payload, err := json.Marshal(inputs)
	if err != nil {
		return services.Wrap(services.ErrGeneration, p.Name(), "encode context", "", err)
	}
	prompt := fmt.Sprintf("Write one video generation prompt per shot:\n%s", payload)

	content, err := p.gen.CompleteJSON(ctx, pol.System, userPrompt(prompt, pol, feedback), pol.Temperature)
	if err != nil {
		return services.Wrap(services.ErrGeneration, p.Name(), "generate", "", err)
	}

	var parsed struct {
		Prompts map[string]string `json:"prompts"`
	}
	if err := llm.DecodeLLMJSON(content, &parsed); err != nil {
		return services.Wrap(services.ErrGeneration, p.Name(), "parse response", "", err)
	}

	for _, shot := range shots {
		shotID := shot.ID()
		text, ok := parsed.Prompts[shotID]
		if !ok || text == "" {
			return services.Wrap(services.ErrGeneration, p.Name(), "parse response", fmt.Sprintf("no prompt for shot %s", shotID), nil)
		}
		if err := st.SetPrompt(shotID, text); err != nil {
			return services.Wrap(services.ErrGeneration, p.Name(), "apply prompts", "", err)
		}
	}
	return nil
}
