package runner

import (
	"testing"

	"storyloom/internal/story"
)

func baseState() *story.State {
	return story.NewState("s1", story.ModeAutonomous, story.Request{Idea: "idea", Episodes: 1})
}

func TestPhaseForResume(t *testing.T) {
	tests := []struct {
		name  string
		build func() *story.State
		want  story.Phase
	}{
		{
			name:  "fresh session starts at outline",
			build: baseState,
			want:  story.PhaseStoryOutline,
		},
		{
			name: "error phase wins over artifacts",
			build: func() *story.State {
				st := baseState()
				st.SetOutline(story.Outline{Title: "T"})
				st.Phase = story.PhaseError
				st.ErrorPhase = story.PhaseEpisodeWriting
				return st
			},
			want: story.PhaseEpisodeWriting,
		},
		{
			name: "error without recorded phase falls back to artifacts",
			build: func() *story.State {
				st := baseState()
				st.SetOutline(story.Outline{Title: "T"})
				st.Phase = story.PhaseError
				return st
			},
			want: story.PhaseCharacterDesign,
		},
		{
			name: "artifacts ahead of stored phase",
			build: func() *story.State {
				st := baseState()
				st.SetOutline(story.Outline{Title: "T"})
				st.SetCharacters([]story.Character{{Name: "Hero"}})
				st.SetEpisodes([]story.Episode{{Number: 1, Title: "Ep1"}})
				st.SetShots(1, []story.Shot{{EpisodeNumber: 1, ShotNumber: 1, Description: "wide"}})
				st.Phase = story.PhaseStoryboard
				return st
			},
			want: story.PhaseVideoPrompts,
		},
		{
			name: "stored phase ahead of artifacts is kept",
			build: func() *story.State {
				st := baseState()
				st.SetOutline(story.Outline{Title: "T"})
				st.Phase = story.PhaseEpisodeWriting
				return st
			},
			want: story.PhaseEpisodeWriting,
		},
		{
			name: "tasks present parks at review",
			build: func() *story.State {
				st := baseState()
				st.SetOutline(story.Outline{Title: "T"})
				st.SetCharacters([]story.Character{{Name: "Hero"}})
				st.SetEpisodes([]story.Episode{{Number: 1, Title: "Ep1"}})
				st.SetShots(1, []story.Shot{{EpisodeNumber: 1, ShotNumber: 1, Description: "wide"}})
				st.SetPrompt("ep1_shot1", "prompt")
				st.SetVideoTask("ep1_shot1", &story.TaskRecord{ShotID: "ep1_shot1", Provider: "stub", Status: story.TaskProcessing})
				st.Phase = story.PhaseVideoGeneration
				return st
			},
			want: story.PhaseReview,
		},
		{
			name: "completed stays completed",
			build: func() *story.State {
				st := baseState()
				st.Phase = story.PhaseCompleted
				return st
			},
			want: story.PhaseCompleted,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := phaseForResume(tc.build())
			if got != tc.want {
				t.Fatalf("phaseForResume = %s, want %s", got, tc.want)
			}
		})
	}
}
