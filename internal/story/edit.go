package story

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ApplyEdit applies a direct artifact edit between checkpoints. Supported
// paths:
//
//	outline
//	characters/<index>
//	episodes/<index>
//	episodes/<index>/shots/<index>
//	video_prompts/<shot_id>
//
// Indices are zero-based. The raw value is the JSON encoding of the
// artifact at that path. Edits that violate data model invariants fail
// with ErrInvalidMutation and leave the state unchanged.
func ApplyEdit(st *State, path string, raw json.RawMessage) error {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	switch {
	case len(parts) == 1 && parts[0] == "outline":
		var o Outline
		if err := json.Unmarshal(raw, &o); err != nil {
			return fmt.Errorf("%w: outline value: %v", ErrInvalidMutation, err)
		}
		return st.SetOutline(o)

	case len(parts) == 2 && parts[0] == "characters":
		index, err := parseIndex(parts[1])
		if err != nil {
			return err
		}
		var c Character
		if err := json.Unmarshal(raw, &c); err != nil {
			return fmt.Errorf("%w: character value: %v", ErrInvalidMutation, err)
		}
		return st.UpdateCharacter(index, c)

	case len(parts) == 2 && parts[0] == "episodes":
		index, err := parseIndex(parts[1])
		if err != nil {
			return err
		}
		var ep Episode
		if err := json.Unmarshal(raw, &ep); err != nil {
			return fmt.Errorf("%w: episode value: %v", ErrInvalidMutation, err)
		}
		return st.UpdateEpisode(index, ep)

	case len(parts) == 4 && parts[0] == "episodes" && parts[2] == "shots":
		epIndex, err := parseIndex(parts[1])
		if err != nil {
			return err
		}
		shotIndex, err := parseIndex(parts[3])
		if err != nil {
			return err
		}
		var sh Shot
		if err := json.Unmarshal(raw, &sh); err != nil {
			return fmt.Errorf("%w: shot value: %v", ErrInvalidMutation, err)
		}
		return st.UpdateShot(epIndex+1, shotIndex+1, sh)

	case len(parts) == 2 && parts[0] == "video_prompts":
		var prompt string
		if err := json.Unmarshal(raw, &prompt); err != nil {
			return fmt.Errorf("%w: prompt value must be a JSON string: %v", ErrInvalidMutation, err)
		}
		return st.SetPrompt(parts[1], prompt)

	default:
		return fmt.Errorf("%w: unsupported artifact path %q", ErrInvalidMutation, path)
	}
}

func parseIndex(value string) (int, error) {
	index, err := strconv.Atoi(value)
	if err != nil || index < 0 {
		return 0, fmt.Errorf("%w: invalid index %q", ErrInvalidMutation, value)
	}
	return index, nil
}
