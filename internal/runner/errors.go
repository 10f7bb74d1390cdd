package runner

import "errors"

var (
	// ErrNoPendingApproval marks an approval call issued when the session
	// is not waiting at an approval gate. Duplicate UI submissions hit
	// this instead of silently succeeding.
	ErrNoPendingApproval = errors.New("no pending approval")

	// ErrSessionCompleted marks an operation against a session that has
	// already reached completion.
	ErrSessionCompleted = errors.New("session already completed")

	// ErrUnknownShot marks a video retry against a shot id that does not
	// exist in the storyboard.
	ErrUnknownShot = errors.New("unknown shot")
)
