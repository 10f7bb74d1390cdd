package story

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidMutation marks a setter or edit that violated a data model
// invariant. The state is unchanged when this is returned.
var ErrInvalidMutation = errors.New("invalid state mutation")

// Request holds the original idea and generation parameters. Immutable
// after session creation.
type Request struct {
	Idea            string `json:"idea"`
	Genre           string `json:"genre,omitempty"`
	Style           string `json:"style,omitempty"`
	Episodes        int    `json:"episodes"`
	EpisodeDuration int    `json:"episode_duration,omitempty"`
	Characters      int    `json:"characters,omitempty"`
	Audience        string `json:"audience,omitempty"`
	Platform        string `json:"platform,omitempty"`
}

// Outline is the story outline produced by the story_outline phase.
type Outline struct {
	Title    string `json:"title"`
	Synopsis string `json:"synopsis"`
	Theme    string `json:"theme,omitempty"`
	Premise  string `json:"premise,omitempty"`
}

// Character is one entry of the character roster.
type Character struct {
	Name              string `json:"name"`
	Age               string `json:"age,omitempty"`
	Appearance        string `json:"appearance,omitempty"`
	Personality       string `json:"personality,omitempty"`
	Background        string `json:"background,omitempty"`
	Role              string `json:"role,omitempty"`
	VisualDescription string `json:"visual_description,omitempty"`
}

// Shot is the smallest unit of video generation work.
type Shot struct {
	EpisodeNumber   int      `json:"episode_number"`
	ShotNumber      int      `json:"shot_number"`
	Description     string   `json:"description"`
	CameraMovement  string   `json:"camera_movement,omitempty"`
	DurationSeconds int      `json:"duration_seconds,omitempty"`
	Characters      []string `json:"characters,omitempty"`
}

// ID returns the shot's join key for video_prompts and video_tasks.
func (s Shot) ID() string {
	return ShotID(s.EpisodeNumber, s.ShotNumber)
}

// ShotID derives the deterministic join key for a shot.
func ShotID(episode, shot int) string {
	return fmt.Sprintf("ep%d_shot%d", episode, shot)
}

// Episode is one episode's script and storyboard.
type Episode struct {
	Number   int    `json:"number"`
	Title    string `json:"title"`
	Synopsis string `json:"synopsis,omitempty"`
	Script   string `json:"script,omitempty"`
	Shots    []Shot `json:"shots,omitempty"`
}

// TaskStatus is the lifecycle of one provider rendering job.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// Terminal reports whether the task has reached a final status.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// TaskRecord tracks one shot's provider job.
type TaskRecord struct {
	ShotID   string     `json:"shot_id"`
	Provider string     `json:"provider"`
	TaskID   string     `json:"task_id,omitempty"`
	Status   TaskStatus `json:"status"`
	VideoURL string     `json:"video_url,omitempty"`
	Error    string     `json:"error,omitempty"`
}

// State is the full pipeline state for one session. It is a pure data
// container; mutation goes through the named setters, which validate
// invariants and fail with ErrInvalidMutation.
type State struct {
	SessionID       string                 `json:"session_id"`
	Phase           Phase                  `json:"phase"`
	Mode            Mode                   `json:"interaction_mode"`
	Request         Request                `json:"user_request"`
	Outline         *Outline               `json:"story_outline,omitempty"`
	Characters      []Character            `json:"characters,omitempty"`
	Episodes        []Episode              `json:"episodes,omitempty"`
	VideoPrompts    map[string]string      `json:"video_prompts,omitempty"`
	VideoTasks      map[string]*TaskRecord `json:"video_tasks,omitempty"`
	PendingApproval bool                   `json:"pending_approval"`
	ApprovalType    string                 `json:"approval_type,omitempty"`
	Error           string                 `json:"error,omitempty"`
	ErrorPhase      Phase                  `json:"error_phase,omitempty"`
	RetryCount      int                    `json:"retry_count,omitempty"`
}

// NewState creates the initial state for a session.
func NewState(sessionID string, mode Mode, req Request) *State {
	return &State{
		SessionID: sessionID,
		Phase:     PhaseInit,
		Mode:      mode,
		Request:   req,
	}
}

// Encode serializes the state to JSON.
func (st *State) Encode() ([]byte, error) {
	data, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("encode workflow state: %w", err)
	}
	return data, nil
}

// Decode deserializes a state previously produced by Encode.
func Decode(data []byte) (*State, error) {
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode workflow state: %w", err)
	}
	return &st, nil
}

// SetOutline records the story outline.
func (st *State) SetOutline(o Outline) error {
	if o.Title == "" {
		return fmt.Errorf("%w: outline title must not be empty", ErrInvalidMutation)
	}
	copied := o
	st.Outline = &copied
	return nil
}

// SetCharacters replaces the character roster.
func (st *State) SetCharacters(chars []Character) error {
	for i, c := range chars {
		if c.Name == "" {
			return fmt.Errorf("%w: character %d has no name", ErrInvalidMutation, i)
		}
	}
	st.Characters = chars
	return nil
}

// UpdateCharacter replaces one character by position index.
func (st *State) UpdateCharacter(index int, c Character) error {
	if index < 0 || index >= len(st.Characters) {
		return fmt.Errorf("%w: character index %d out of range [0,%d)", ErrInvalidMutation, index, len(st.Characters))
	}
	if c.Name == "" {
		return fmt.Errorf("%w: character name must not be empty", ErrInvalidMutation)
	}
	st.Characters[index] = c
	return nil
}

// AppendEpisode adds an episode to the ordered list. Episode numbers must
// arrive in sequence starting at 1.
func (st *State) AppendEpisode(ep Episode) error {
	if ep.Number != len(st.Episodes)+1 {
		return fmt.Errorf("%w: episode number %d, expected %d", ErrInvalidMutation, ep.Number, len(st.Episodes)+1)
	}
	st.Episodes = append(st.Episodes, ep)
	return nil
}

// SetEpisodes replaces the episode list wholesale.
func (st *State) SetEpisodes(eps []Episode) error {
	for i, ep := range eps {
		if ep.Number != i+1 {
			return fmt.Errorf("%w: episode at position %d has number %d", ErrInvalidMutation, i, ep.Number)
		}
	}
	st.Episodes = eps
	return nil
}

// UpdateEpisode replaces one episode by position index.
func (st *State) UpdateEpisode(index int, ep Episode) error {
	if index < 0 || index >= len(st.Episodes) {
		return fmt.Errorf("%w: episode index %d out of range [0,%d)", ErrInvalidMutation, index, len(st.Episodes))
	}
	if ep.Number != index+1 {
		return fmt.Errorf("%w: episode number %d does not match position %d", ErrInvalidMutation, ep.Number, index)
	}
	st.Episodes[index] = ep
	return nil
}

// SetShots replaces the storyboard for one episode. Shot numbers must be
// sequential from 1 and carry the episode's number, keeping shot IDs
// unique across the session.
func (st *State) SetShots(episodeNumber int, shots []Shot) error {
	index := episodeNumber - 1
	if index < 0 || index >= len(st.Episodes) {
		return fmt.Errorf("%w: episode %d does not exist", ErrInvalidMutation, episodeNumber)
	}
	for i, sh := range shots {
		if sh.EpisodeNumber != episodeNumber {
			return fmt.Errorf("%w: shot %d carries episode %d, expected %d", ErrInvalidMutation, i, sh.EpisodeNumber, episodeNumber)
		}
		if sh.ShotNumber != i+1 {
			return fmt.Errorf("%w: shot at position %d has number %d", ErrInvalidMutation, i, sh.ShotNumber)
		}
	}
	st.Episodes[index].Shots = shots
	return nil
}

// UpdateShot replaces one shot identified by episode and shot number.
func (st *State) UpdateShot(episodeNumber, shotNumber int, sh Shot) error {
	epIndex := episodeNumber - 1
	if epIndex < 0 || epIndex >= len(st.Episodes) {
		return fmt.Errorf("%w: episode %d does not exist", ErrInvalidMutation, episodeNumber)
	}
	shotIndex := shotNumber - 1
	shots := st.Episodes[epIndex].Shots
	if shotIndex < 0 || shotIndex >= len(shots) {
		return fmt.Errorf("%w: shot %d out of range for episode %d", ErrInvalidMutation, shotNumber, episodeNumber)
	}
	if sh.EpisodeNumber != episodeNumber || sh.ShotNumber != shotNumber {
		return fmt.Errorf("%w: shot identity must remain ep%d shot%d", ErrInvalidMutation, episodeNumber, shotNumber)
	}
	shots[shotIndex] = sh
	return nil
}

// SetPrompt records the generated video prompt for a shot. The shot must
// exist in some episode's storyboard.
func (st *State) SetPrompt(shotID, prompt string) error {
	if !st.shotExists(shotID) {
		return fmt.Errorf("%w: no shot %q in storyboard", ErrInvalidMutation, shotID)
	}
	if prompt == "" {
		return fmt.Errorf("%w: prompt for %q must not be empty", ErrInvalidMutation, shotID)
	}
	if st.VideoPrompts == nil {
		st.VideoPrompts = make(map[string]string)
	}
	st.VideoPrompts[shotID] = prompt
	return nil
}

// SetVideoTask records or replaces the task record for a shot.
func (st *State) SetVideoTask(shotID string, rec *TaskRecord) error {
	if rec == nil {
		return fmt.Errorf("%w: nil task record for %q", ErrInvalidMutation, shotID)
	}
	if !st.shotExists(shotID) {
		return fmt.Errorf("%w: no shot %q in storyboard", ErrInvalidMutation, shotID)
	}
	if rec.ShotID != shotID {
		return fmt.Errorf("%w: record shot id %q does not match %q", ErrInvalidMutation, rec.ShotID, shotID)
	}
	if st.VideoTasks == nil {
		st.VideoTasks = make(map[string]*TaskRecord)
	}
	st.VideoTasks[shotID] = rec
	return nil
}

func (st *State) shotExists(shotID string) bool {
	for _, ep := range st.Episodes {
		for _, sh := range ep.Shots {
			if sh.ID() == shotID {
				return true
			}
		}
	}
	return false
}

// Shots returns every shot across all episodes in storyboard order.
func (st *State) Shots() []Shot {
	var all []Shot
	for _, ep := range st.Episodes {
		all = append(all, ep.Shots...)
	}
	return all
}

// ShotByID looks up one shot by its join key.
func (st *State) ShotByID(shotID string) (Shot, bool) {
	for _, ep := range st.Episodes {
		for _, sh := range ep.Shots {
			if sh.ID() == shotID {
				return sh, true
			}
		}
	}
	return Shot{}, false
}

// AllTasksTerminal reports whether every video task has reached a final
// status. False when no tasks exist.
func (st *State) AllTasksTerminal() bool {
	if len(st.VideoTasks) == 0 {
		return false
	}
	for _, rec := range st.VideoTasks {
		if !rec.Status.Terminal() {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the state via the JSON round trip.
func (st *State) Clone() (*State, error) {
	data, err := st.Encode()
	if err != nil {
		return nil, err
	}
	return Decode(data)
}
