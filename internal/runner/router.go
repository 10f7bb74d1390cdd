package runner

import "storyloom/internal/story"

// phaseForResume derives the phase a resumed session should re-enter.
// A session parked in the error phase goes back to the phase that failed.
// Otherwise the stored phase is reconciled against the artifacts actually
// present, which covers a crash after a step's state was saved but before
// the phase advanced: resume re-derives the later phase instead of
// re-running completed work.
func phaseForResume(st *story.State) story.Phase {
	if st.Phase == story.PhaseError {
		if st.ErrorPhase != "" && st.ErrorPhase != story.PhaseError {
			return st.ErrorPhase
		}
		return artifactPhase(st)
	}
	if st.Phase == story.PhaseCompleted {
		return story.PhaseCompleted
	}

	derived := artifactPhase(st)
	if derived.Index() > st.Phase.Index() {
		return derived
	}
	if st.Phase == story.PhaseInit {
		return story.PhaseStoryOutline
	}
	return st.Phase
}

// artifactPhase returns the phase whose upstream artifacts are all
// present, scanning from the most advanced artifact backwards.
func artifactPhase(st *story.State) story.Phase {
	switch {
	case len(st.VideoTasks) > 0:
		return story.PhaseReview
	case len(st.VideoPrompts) > 0:
		return story.PhaseVideoGeneration
	case hasShots(st):
		return story.PhaseVideoPrompts
	case len(st.Episodes) > 0:
		return story.PhaseStoryboard
	case len(st.Characters) > 0:
		return story.PhaseEpisodeWriting
	case st.Outline != nil:
		return story.PhaseCharacterDesign
	default:
		return story.PhaseStoryOutline
	}
}

func hasShots(st *story.State) bool {
	for _, ep := range st.Episodes {
		if len(ep.Shots) > 0 {
			return true
		}
	}
	return false
}
