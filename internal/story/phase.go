package story

import (
	"fmt"
	"strings"
)

// Phase identifies one stage of the fixed pipeline ordering.
type Phase string

const (
	PhaseInit            Phase = "init"
	PhaseStoryOutline    Phase = "story_outline"
	PhaseCharacterDesign Phase = "character_design"
	PhaseEpisodeWriting  Phase = "episode_writing"
	PhaseStoryboard      Phase = "storyboard"
	PhaseVideoPrompts    Phase = "video_prompts"
	PhaseVideoGeneration Phase = "video_generation"
	PhaseReview          Phase = "review"
	PhaseCompleted       Phase = "completed"
	PhaseError           Phase = "error"
)

// PhaseOrder is the forward progression of a session. The error phase sits
// outside the ordering and is reachable from any of these.
var PhaseOrder = []Phase{
	PhaseInit,
	PhaseStoryOutline,
	PhaseCharacterDesign,
	PhaseEpisodeWriting,
	PhaseStoryboard,
	PhaseVideoPrompts,
	PhaseVideoGeneration,
	PhaseReview,
	PhaseCompleted,
}

var phaseIndex = func() map[Phase]int {
	m := make(map[Phase]int, len(PhaseOrder))
	for i, p := range PhaseOrder {
		m[p] = i
	}
	return m
}()

// ParsePhase converts a stored string into a Phase.
func ParsePhase(value string) (Phase, error) {
	p := Phase(strings.ToLower(strings.TrimSpace(value)))
	if p == PhaseError {
		return p, nil
	}
	if _, ok := phaseIndex[p]; !ok {
		return "", fmt.Errorf("unknown phase %q", value)
	}
	return p, nil
}

func (p Phase) String() string {
	return string(p)
}

// Index returns the position of p in the phase ordering, or -1 for the
// error phase and unknown values.
func (p Phase) Index() int {
	if i, ok := phaseIndex[p]; ok {
		return i
	}
	return -1
}

// Next returns the phase that follows p in the fixed ordering. Terminal
// phases return themselves.
func (p Phase) Next() Phase {
	i := p.Index()
	if i < 0 || i >= len(PhaseOrder)-1 {
		return p
	}
	return PhaseOrder[i+1]
}

// Terminal reports whether p is a terminal phase.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseError
}

// Mode controls whether the runner pauses for human approval after each
// generation phase.
type Mode string

const (
	ModeInteractive Mode = "interactive"
	ModeAutonomous  Mode = "autonomous"
)

// ParseMode converts a stored string into a Mode.
func ParseMode(value string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(value))) {
	case ModeInteractive:
		return ModeInteractive, nil
	case ModeAutonomous:
		return ModeAutonomous, nil
	default:
		return "", fmt.Errorf("unknown interaction mode %q", value)
	}
}

func (m Mode) String() string {
	return string(m)
}
