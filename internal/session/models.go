package session

import (
	"fmt"
	"strings"
	"time"
)

// Status tracks a session through its persistence lifecycle.
type Status string

const (
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// AllStatuses lists every valid session status.
var AllStatuses = []Status{StatusRunning, StatusPaused, StatusCompleted, StatusFailed}

// ParseStatus converts a stored string into a Status.
func ParseStatus(value string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, known := range AllStatuses {
		if s == known {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown session status %q", value)
}

func (s Status) String() string {
	return string(s)
}

// Terminal reports whether the session can make no further progress
// without a caller-initiated resume.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Session is the persistence wrapper around one workflow's state. The
// serialized state is the source of truth; Phase and Idea are denormalized
// for listing without decoding.
type Session struct {
	SessionID string
	Status    Status
	Mode      string
	Phase     string
	Idea      string
	StateJSON string
	Error     string
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Checkpoint records one step execution. Append-only.
type Checkpoint struct {
	ID         int64
	SessionID  string
	StepName   string
	Phase      string
	InputJSON  string
	OutputJSON string
	CreatedAt  time.Time
}

// DatabaseHealth summarizes a health probe of the session database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	Error            string
}
