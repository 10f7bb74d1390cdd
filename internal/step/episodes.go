package step

import (
	"context"
	"encoding/json"
	"fmt"

	"storyloom/internal/llm"
	"storyloom/internal/services"
	"storyloom/internal/story"
)

// Episodes writes every episode script from the outline and roster.
type Episodes struct {
	gen      Generator
	policies PolicyResolver
}

// NewEpisodes constructs the episode writing step.
func NewEpisodes(gen Generator, policies PolicyResolver) *Episodes {
	return &Episodes{gen: gen, policies: policies}
}

func (e *Episodes) Name() string { return "episode_writing" }

func (e *Episodes) Phase() story.Phase { return story.PhaseEpisodeWriting }

// Run makes one generation call and replaces the episode list wholesale,
// so a rejected re-run never duplicates episodes.
func (e *Episodes) Run(ctx context.Context, st *story.State, feedback string) error {
	if st.Outline == nil {
		return services.Wrap(services.ErrValidation, e.Name(), "check inputs", "story outline missing", nil)
	}
	if len(st.Characters) == 0 {
		return services.Wrap(services.ErrValidation, e.Name(), "check inputs", "character roster missing", nil)
	}
	pol, err := e.policies.Resolve(e.Phase(), st.Request.Genre, st.Request.Platform)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, e.Name(), "resolve policy", "", err)
	}

	inputs := struct {
		Request    story.Request     `json:"request"`
		Outline    story.Outline     `json:"outline"`
		Characters []story.Character `json:"characters"`
	}{st.Request, *st.Outline, st.Characters}
	payload, err := json.Marshal(inputs)
	if err != nil {
		return services.Wrap(services.ErrGeneration, e.Name(), "encode context", "", err)
	}
	prompt := fmt.Sprintf("Write all %d episodes for this story:\n%s", st.Request.Episodes, payload)

	content, err := e.gen.CompleteJSON(ctx, pol.System, userPrompt(prompt, pol, feedback), pol.Temperature)
	if err != nil {
		return services.Wrap(services.ErrGeneration, e.Name(), "generate", "", err)
	}

	var parsed struct {
		Episodes []story.Episode `json:"episodes"`
	}
	if err := llm.DecodeLLMJSON(content, &parsed); err != nil {
		return services.Wrap(services.ErrGeneration, e.Name(), "parse response", "", err)
	}
	if len(parsed.Episodes) == 0 {
		return services.Wrap(services.ErrGeneration, e.Name(), "parse response", "no episodes in response", nil)
	}
	for i := range parsed.Episodes {
		// Storyboarding happens in its own phase.
		parsed.Episodes[i].Shots = nil
	}
	if err := st.SetEpisodes(parsed.Episodes); err != nil {
		return services.Wrap(services.ErrGeneration, e.Name(), "apply episodes", "", err)
	}
	return nil
}
