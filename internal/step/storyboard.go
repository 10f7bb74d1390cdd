package step

import (
	"context"
	"encoding/json"
	"fmt"

	"storyloom/internal/llm"
	"storyloom/internal/services"
	"storyloom/internal/story"
)

// Storyboard breaks every episode script into shots.
type Storyboard struct {
	gen      Generator
	policies PolicyResolver
}

// NewStoryboard constructs the storyboard step.
func NewStoryboard(gen Generator, policies PolicyResolver) *Storyboard {
	return &Storyboard{gen: gen, policies: policies}
}

func (s *Storyboard) Name() string { return "storyboard" }

func (s *Storyboard) Phase() story.Phase { return story.PhaseStoryboard }

// Run makes one generation call and replaces every episode's shot list.
func (s *Storyboard) Run(ctx context.Context, st *story.State, feedback string) error {
	if len(st.Episodes) == 0 {
		return services.Wrap(services.ErrValidation, s.Name(), "check inputs", "episodes missing", nil)
	}
	pol, err := s.policies.Resolve(s.Phase(), st.Request.Genre, st.Request.Platform)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, s.Name(), "resolve policy", "", err)
	}

	inputs := struct {
		EpisodeDuration int             `json:"episode_duration"`
		Episodes        []story.Episode `json:"episodes"`
	}{st.Request.EpisodeDuration, st.Episodes}
	payload, err := json.Marshal(inputs)
	if err != nil {
		return services.Wrap(services.ErrGeneration, s.Name(), "encode context", "", err)
	}
	prompt := fmt.Sprintf("Storyboard every episode:\n%s", payload)

	content, err := s.gen.CompleteJSON(ctx, pol.System, userPrompt(prompt, pol, feedback), pol.Temperature)
	if err != nil {
		return services.Wrap(services.ErrGeneration, s.Name(), "generate", "", err)
	}

	var parsed struct {
		Episodes []struct {
			Number int          `json:"number"`
			Shots  []story.Shot `json:"shots"`
		} `json:"episodes"`
	}
	if err := llm.DecodeLLMJSON(content, &parsed); err != nil {
		return services.Wrap(services.ErrGeneration, s.Name(), "parse response", "", err)
	}
	if len(parsed.Episodes) == 0 {
		return services.Wrap(services.ErrGeneration, s.Name(), "parse response", "no storyboards in response", nil)
	}

	boarded := make(map[int]bool, len(parsed.Episodes))
	for _, ep := range parsed.Episodes {
		shots := ep.Shots
		for i := range shots {
			shots[i].EpisodeNumber = ep.Number
		}
		if err := st.SetShots(ep.Number, shots); err != nil {
			return services.Wrap(services.ErrGeneration, s.Name(), "apply storyboard", fmt.Sprintf("episode %d", ep.Number), err)
		}
		boarded[ep.Number] = true
	}
	for _, ep := range st.Episodes {
		if !boarded[ep.Number] {
			return services.Wrap(services.ErrGeneration, s.Name(), "apply storyboard", fmt.Sprintf("episode %d missing from response", ep.Number), nil)
		}
	}
	return nil
}
