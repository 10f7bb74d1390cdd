// Package runner drives the workflow state machine. The runner is
// stateless: every public call loads the session from the store, mutates
// it, and saves it back, so any number of caller processes can share one
// database safely.
package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"storyloom/internal/logging"
	"storyloom/internal/services"
	"storyloom/internal/session"
	"storyloom/internal/step"
	"storyloom/internal/story"
	"storyloom/internal/video"
)

// Runner sequences generation steps through the phase ordering, persisting
// a checkpoint per step invocation and pausing at approval gates in
// interactive mode.
type Runner struct {
	store           *session.Store
	steps           map[story.Phase]step.Step
	fanout          *video.Fanout
	defaultPlatform string
	stepTimeout     time.Duration
	listLimit       int
	logger          *slog.Logger
}

// Options configures a Runner.
type Options struct {
	Store           *session.Store
	Steps           []step.Step
	Fanout          *video.Fanout
	DefaultPlatform string
	StepTimeout     time.Duration
	ListLimit       int
	Logger          *slog.Logger
}

// New constructs a Runner.
func New(opts Options) (*Runner, error) {
	if opts.Store == nil {
		return nil, errors.New("runner: store required")
	}
	if opts.Fanout == nil {
		return nil, errors.New("runner: fanout required")
	}
	steps := make(map[story.Phase]step.Step, len(opts.Steps))
	for _, s := range opts.Steps {
		if _, dup := steps[s.Phase()]; dup {
			return nil, fmt.Errorf("runner: duplicate step for phase %s", s.Phase())
		}
		steps[s.Phase()] = s
	}
	timeout := opts.StepTimeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	limit := opts.ListLimit
	if limit <= 0 {
		limit = 100
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runner{
		store:           opts.Store,
		steps:           steps,
		fanout:          opts.Fanout,
		defaultPlatform: opts.DefaultPlatform,
		stepTimeout:     timeout,
		listLimit:       limit,
		logger:          logger,
	}, nil
}

// Start creates a new session and drives it until it completes, fails, or
// pauses at the first approval gate.
func (r *Runner) Start(ctx context.Context, req story.Request, mode story.Mode) (*story.State, error) {
	if strings.TrimSpace(req.Idea) == "" {
		return nil, services.Wrap(services.ErrValidation, "start", "check request", "idea required", nil)
	}
	if req.Episodes <= 0 {
		req.Episodes = 1
	}
	if mode != story.ModeInteractive && mode != story.ModeAutonomous {
		return nil, services.Wrap(services.ErrValidation, "start", "check request", fmt.Sprintf("unknown mode %q", mode), nil)
	}

	st := story.NewState(uuid.NewString(), mode, req)
	st.Phase = story.PhaseStoryOutline

	sess := &session.Session{
		SessionID: st.SessionID,
		Status:    session.StatusRunning,
		Mode:      mode.String(),
		Phase:     st.Phase.String(),
		Idea:      req.Idea,
	}
	if err := encodeInto(sess, st); err != nil {
		return nil, err
	}
	if err := r.store.Create(ctx, sess); err != nil {
		return nil, err
	}

	r.logger.Info("session started",
		logging.String(logging.FieldSessionID, st.SessionID),
		logging.String("mode", mode.String()))

	if err := r.drive(ctx, sess, st, ""); err != nil {
		return nil, err
	}
	return st, nil
}

// Resume re-enters a suspended or failed session at the correct phase and
// drives it forward. The phase is derived from the recorded failure phase
// when present, otherwise from the artifacts already in the state. A
// session parked at an approval gate is returned untouched; only Approve
// clears the gate.
func (r *Runner) Resume(ctx context.Context, sessionID string) (*story.State, error) {
	sess, st, err := r.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if st.Phase == story.PhaseCompleted {
		return nil, fmt.Errorf("%w: %s", ErrSessionCompleted, sessionID)
	}
	if st.PendingApproval {
		r.logger.Info("session awaiting approval, resume is a no-op",
			logging.String(logging.FieldSessionID, sessionID),
			logging.String(logging.FieldPhase, st.Phase.String()))
		return st, nil
	}

	if recovered, ok := r.recoverFromCheckpoint(ctx, sessionID, st); ok {
		st = recovered
		if st.Mode == story.ModeInteractive {
			// The step finished but the crash lost the gate; restore it
			// so the output still gets reviewed before the phase advances.
			st.Error = ""
			st.ErrorPhase = ""
			st.PendingApproval = true
			st.ApprovalType = st.Phase.String()
			sess.Status = session.StatusPaused
			if err := r.save(ctx, sess, st); err != nil {
				return nil, err
			}
			return st, nil
		}
	}

	resumePhase := phaseForResume(st)
	r.logger.Info("session resuming",
		logging.String(logging.FieldSessionID, sessionID),
		logging.String("stored_phase", st.Phase.String()),
		logging.String(logging.FieldPhase, resumePhase.String()))

	st.Phase = resumePhase
	st.Error = ""
	st.ErrorPhase = ""
	st.PendingApproval = false
	st.ApprovalType = ""
	sess.Status = session.StatusRunning

	if err := r.drive(ctx, sess, st, ""); err != nil {
		return nil, err
	}
	return st, nil
}

// recoverFromCheckpoint reloads state from the last checkpoint when a
// crash landed between the checkpoint append and the session save,
// leaving the checkpoint's output ahead of the stored state. Failure
// checkpoints carry no state and are ignored.
func (r *Runner) recoverFromCheckpoint(ctx context.Context, sessionID string, st *story.State) (*story.State, bool) {
	cp, err := r.store.LastCheckpoint(ctx, sessionID)
	if err != nil || cp == nil {
		return nil, false
	}
	recovered, err := story.Decode([]byte(cp.OutputJSON))
	if err != nil || recovered.SessionID != sessionID {
		return nil, false
	}
	if artifactPhase(recovered).Index() <= artifactPhase(st).Index() {
		return nil, false
	}
	r.logger.Info("recovered state from checkpoint",
		logging.String(logging.FieldSessionID, sessionID),
		logging.String(logging.FieldStep, cp.StepName),
		logging.String(logging.FieldPhase, recovered.Phase.String()))
	return recovered, true
}

// Approve resolves a pending approval gate. Approving advances to the
// next phase; rejecting re-runs the same phase with the feedback folded
// into the generation context. Calling with no gate pending fails with
// ErrNoPendingApproval.
func (r *Runner) Approve(ctx context.Context, sessionID string, approved bool, feedback string) (*story.State, error) {
	sess, st, err := r.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !st.PendingApproval {
		return nil, fmt.Errorf("%w: session %s in phase %s", ErrNoPendingApproval, sessionID, st.Phase)
	}

	st.PendingApproval = false
	st.ApprovalType = ""
	sess.Status = session.StatusRunning

	if approved {
		st.Phase = st.Phase.Next()
		feedback = ""
		r.logger.Info("phase approved",
			logging.String(logging.FieldSessionID, sessionID),
			logging.String(logging.FieldPhase, st.Phase.String()))
	} else {
		r.logger.Info("phase rejected",
			logging.String(logging.FieldSessionID, sessionID),
			logging.String(logging.FieldPhase, st.Phase.String()))
	}

	if err := r.drive(ctx, sess, st, feedback); err != nil {
		return nil, err
	}
	return st, nil
}

// EditArtifact applies a direct edit to one artifact path between
// checkpoints and persists the result. Invalid paths or values leave the
// session untouched.
func (r *Runner) EditArtifact(ctx context.Context, sessionID, path string, value json.RawMessage) (*story.State, error) {
	sess, st, err := r.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := story.ApplyEdit(st, path, value); err != nil {
		return nil, err
	}
	if err := r.save(ctx, sess, st); err != nil {
		return nil, err
	}
	r.logger.Info("artifact edited",
		logging.String(logging.FieldSessionID, sessionID),
		logging.String("path", path))
	return st, nil
}

// GetState returns the decoded workflow state for a session.
func (r *Runner) GetState(ctx context.Context, sessionID string) (*story.State, error) {
	_, st, err := r.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// ListSessions returns session records, optionally filtered by status.
func (r *Runner) ListSessions(ctx context.Context, status session.Status) ([]*session.Session, error) {
	return r.store.List(ctx, status, r.listLimit)
}

// DeleteSession removes a session and its checkpoints.
func (r *Runner) DeleteSession(ctx context.Context, sessionID string) error {
	return r.store.Delete(ctx, sessionID)
}

// Checkpoints returns the append-only checkpoint log for a session.
func (r *Runner) Checkpoints(ctx context.Context, sessionID string) ([]*session.Checkpoint, error) {
	if _, err := r.store.Get(ctx, sessionID); err != nil {
		return nil, err
	}
	return r.store.Checkpoints(ctx, sessionID)
}

// RefreshVideos polls every in-flight video task, persists the updates,
// and completes the session when it is parked in review and every task
// has reached a terminal status.
func (r *Runner) RefreshVideos(ctx context.Context, sessionID string) (map[string]*story.TaskRecord, error) {
	sess, st, err := r.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(st.VideoTasks) == 0 {
		return map[string]*story.TaskRecord{}, nil
	}

	updated := r.fanout.RefreshStatus(ctx, st.VideoTasks)
	for shotID, rec := range updated {
		if err := st.SetVideoTask(shotID, rec); err != nil {
			return nil, err
		}
	}

	if st.Phase == story.PhaseReview && st.AllTasksTerminal() {
		st.Phase = story.PhaseCompleted
		sess.Status = session.StatusCompleted
		r.logger.Info("session completed",
			logging.String(logging.FieldSessionID, sessionID))
	}

	if err := r.save(ctx, sess, st); err != nil {
		return nil, err
	}
	return st.VideoTasks, nil
}

// RetryVideo resubmits a single shot, optionally on a different platform,
// and overwrites that shot's record only.
func (r *Runner) RetryVideo(ctx context.Context, sessionID, shotID, platform string) (*story.TaskRecord, error) {
	sess, st, err := r.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	shot, ok := st.ShotByID(shotID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownShot, shotID)
	}
	prompt, ok := st.VideoPrompts[shotID]
	if !ok || prompt == "" {
		return nil, services.Wrap(services.ErrValidation, "retry video", "check inputs", fmt.Sprintf("no prompt for shot %s", shotID), nil)
	}
	if platform == "" {
		if prior, ok := st.VideoTasks[shotID]; ok && prior.Provider != "" {
			platform = prior.Provider
		} else if st.Request.Platform != "" {
			platform = st.Request.Platform
		} else {
			platform = r.defaultPlatform
		}
	}

	rec := r.fanout.RetryOne(ctx, shot, prompt, platform)
	if err := st.SetVideoTask(shotID, rec); err != nil {
		return nil, err
	}
	if err := r.save(ctx, sess, st); err != nil {
		return nil, err
	}
	return rec, nil
}

// drive executes steps until the session completes, fails, or suspends at
// an approval gate. The feedback applies only to the first step executed.
func (r *Runner) drive(ctx context.Context, sess *session.Session, st *story.State, feedback string) error {
	for {
		if st.Phase.Terminal() || st.PendingApproval {
			return r.save(ctx, sess, st)
		}

		if st.Phase == story.PhaseReview {
			return r.driveReview(ctx, sess, st)
		}

		s, ok := r.steps[st.Phase]
		if !ok {
			return fmt.Errorf("runner: no step for phase %s", st.Phase)
		}

		if err := r.runStep(ctx, sess, st, s, feedback); err != nil {
			// The failure is persisted on the session; the caller gets the
			// updated state rather than an error.
			return r.save(ctx, sess, st)
		}
		feedback = ""

		if st.Mode == story.ModeInteractive {
			st.PendingApproval = true
			st.ApprovalType = st.Phase.String()
			sess.Status = session.StatusPaused
			r.logger.Info("awaiting approval",
				logging.String(logging.FieldSessionID, st.SessionID),
				logging.String(logging.FieldPhase, st.Phase.String()))
			return r.save(ctx, sess, st)
		}

		st.Phase = st.Phase.Next()
		if err := r.save(ctx, sess, st); err != nil {
			return err
		}
	}
}

// driveReview refreshes task statuses and completes the session once every
// task is terminal. Partial shot failures do not block completion; a
// session with some failed renders still completes.
func (r *Runner) driveReview(ctx context.Context, sess *session.Session, st *story.State) error {
	if len(st.VideoTasks) > 0 {
		updated := r.fanout.RefreshStatus(ctx, st.VideoTasks)
		for shotID, rec := range updated {
			if err := st.SetVideoTask(shotID, rec); err != nil {
				return err
			}
		}
	}

	if st.AllTasksTerminal() {
		st.Phase = story.PhaseCompleted
		sess.Status = session.StatusCompleted
		r.logger.Info("session completed",
			logging.String(logging.FieldSessionID, st.SessionID))
	} else {
		sess.Status = session.StatusPaused
	}
	return r.save(ctx, sess, st)
}

// runStep executes one step with a bounded timeout and appends exactly one
// checkpoint whether it succeeds or fails. On failure the state moves to
// the error phase with the failing phase retained for resume.
func (r *Runner) runStep(ctx context.Context, sess *session.Session, st *story.State, s step.Step, feedback string) error {
	phase := st.Phase
	logger := r.logger.With(
		logging.String(logging.FieldSessionID, st.SessionID),
		logging.String(logging.FieldPhase, phase.String()),
		logging.String(logging.FieldStep, s.Name()))
	logger.Info("step started")

	stepCtx, cancel := context.WithTimeout(ctx, r.stepTimeout)
	err := s.Run(stepCtx, st, feedback)
	cancel()
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		err = services.Wrap(services.ErrTimeout, s.Name(), "run", fmt.Sprintf("exceeded %s", r.stepTimeout), err)
	}

	if appendErr := r.appendCheckpoint(ctx, st, s, phase, feedback, err); appendErr != nil {
		logger.Error("checkpoint append failed", logging.Error(appendErr))
		if err == nil {
			// A run without its audit record counts as failed.
			err = fmt.Errorf("record checkpoint for %s: %w", s.Name(), appendErr)
		}
	}

	if err != nil {
		logger.Error("step failed", logging.Error(err))
		st.Phase = story.PhaseError
		st.ErrorPhase = phase
		st.Error = err.Error()
		st.RetryCount++
		sess.Status = session.StatusFailed
		return err
	}

	st.Error = ""
	st.ErrorPhase = ""
	logger.Info("step succeeded")
	return nil
}

func (r *Runner) appendCheckpoint(ctx context.Context, st *story.State, s step.Step, phase story.Phase, feedback string, stepErr error) error {
	input, _ := json.Marshal(map[string]string{"feedback": feedback})

	var output []byte
	if stepErr != nil {
		output, _ = json.Marshal(map[string]string{"error": stepErr.Error()})
	} else {
		output, _ = st.Encode()
	}

	cp := &session.Checkpoint{
		SessionID:  st.SessionID,
		StepName:   s.Name(),
		Phase:      phase.String(),
		InputJSON:  string(input),
		OutputJSON: string(output),
	}
	return r.store.AppendCheckpoint(ctx, cp)
}

func (r *Runner) load(ctx context.Context, sessionID string) (*session.Session, *story.State, error) {
	sess, err := r.store.Get(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	st, err := story.Decode([]byte(sess.StateJSON))
	if err != nil {
		return nil, nil, fmt.Errorf("session %s: %w", sessionID, err)
	}
	return sess, st, nil
}

func (r *Runner) save(ctx context.Context, sess *session.Session, st *story.State) error {
	if err := encodeInto(sess, st); err != nil {
		return err
	}
	return r.store.Update(ctx, sess)
}

func encodeInto(sess *session.Session, st *story.State) error {
	data, err := st.Encode()
	if err != nil {
		return err
	}
	sess.StateJSON = string(data)
	sess.Phase = st.Phase.String()
	sess.Error = st.Error
	switch st.Phase {
	case story.PhaseCompleted:
		sess.Status = session.StatusCompleted
	case story.PhaseError:
		sess.Status = session.StatusFailed
	}
	return nil
}
