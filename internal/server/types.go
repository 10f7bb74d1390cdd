package server

import (
	"encoding/json"
	"time"

	"storyloom/internal/session"
	"storyloom/internal/story"
)

// CreateSessionRequest starts a new pipeline session.
type CreateSessionRequest struct {
	Idea            string `json:"idea"`
	Genre           string `json:"genre,omitempty"`
	Style           string `json:"style,omitempty"`
	Episodes        int    `json:"episodes,omitempty"`
	EpisodeDuration int    `json:"episode_duration,omitempty"`
	Characters      int    `json:"characters,omitempty"`
	Audience        string `json:"audience,omitempty"`
	Platform        string `json:"platform,omitempty"`
	Mode            string `json:"mode,omitempty"`
}

// ApproveRequest resolves a pending approval gate.
type ApproveRequest struct {
	Approved bool   `json:"approved"`
	Feedback string `json:"feedback,omitempty"`
}

// EditArtifactRequest replaces one artifact path in the session state.
type EditArtifactRequest struct {
	Path  string          `json:"path"`
	Value json.RawMessage `json:"value"`
}

// RetryVideoRequest resubmits one shot, optionally on another platform.
type RetryVideoRequest struct {
	Platform string `json:"platform,omitempty"`
}

// SessionSummary is the listing view of one session.
type SessionSummary struct {
	SessionID string    `json:"session_id"`
	Status    string    `json:"status"`
	Mode      string    `json:"mode"`
	Phase     string    `json:"phase"`
	Idea      string    `json:"idea"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CheckpointView is one entry of a session's checkpoint log. Outputs are
// omitted from the detail view; the full state lives at /state.
type CheckpointView struct {
	ID        int64     `json:"id"`
	StepName  string    `json:"step_name"`
	Phase     string    `json:"phase"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionDetail is the single-session view with its checkpoint log.
type SessionDetail struct {
	SessionSummary
	Checkpoints []CheckpointView `json:"checkpoints"`
}

// SessionListResponse wraps a session listing.
type SessionListResponse struct {
	Sessions []SessionSummary `json:"sessions"`
}

// StateResponse wraps the full decoded workflow state.
type StateResponse struct {
	State *story.State `json:"state"`
}

// TasksResponse wraps the per-shot task records after a refresh.
type TasksResponse struct {
	Tasks map[string]*story.TaskRecord `json:"tasks"`
}

// TaskResponse wraps one shot's task record after a retry.
type TaskResponse struct {
	Task *story.TaskRecord `json:"task"`
}

// HealthResponse reports store and collaborator health.
type HealthResponse struct {
	Status    string         `json:"status"`
	Database  DatabaseHealth `json:"database"`
	Sessions  map[string]int `json:"sessions,omitempty"`
	LLM       string         `json:"llm"`
	Platforms []string       `json:"platforms"`
}

// DatabaseHealth is the wire view of a store health probe.
type DatabaseHealth struct {
	Path     string `json:"path"`
	Exists   bool   `json:"exists"`
	Readable bool   `json:"readable"`
	Error    string `json:"error,omitempty"`
}

func summarize(sess *session.Session) SessionSummary {
	return SessionSummary{
		SessionID: sess.SessionID,
		Status:    sess.Status.String(),
		Mode:      sess.Mode,
		Phase:     sess.Phase,
		Idea:      sess.Idea,
		Error:     sess.Error,
		CreatedAt: sess.CreatedAt,
		UpdatedAt: sess.UpdatedAt,
	}
}

func checkpointViews(cps []*session.Checkpoint) []CheckpointView {
	views := make([]CheckpointView, 0, len(cps))
	for _, cp := range cps {
		views = append(views, CheckpointView{
			ID:        cp.ID,
			StepName:  cp.StepName,
			Phase:     cp.Phase,
			CreatedAt: cp.CreatedAt,
		})
	}
	return views
}
