package video

import (
	"context"
	"log/slog"
	"sync"

	"storyloom/internal/logging"
	"storyloom/internal/story"
)

// Fanout submits one rendering job per shot and tracks each job
// independently. Per-shot failures never abort the batch; the caller
// decides what total failure means.
type Fanout struct {
	registry      *Registry
	maxConcurrent int
	logger        *slog.Logger
}

// NewFanout constructs a fan-out manager over a provider registry.
func NewFanout(registry *Registry, maxConcurrent int, logger *slog.Logger) *Fanout {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Fanout{
		registry:      registry,
		maxConcurrent: maxConcurrent,
		logger:        logger,
	}
}

// SubmitAll submits a job for every shot that has a prompt and no
// completed record yet. Shots already completed keep their existing
// records untouched, making re-invocation after partial failure
// idempotent. Returns a fresh map holding the record for every shot it
// considered.
func (f *Fanout) SubmitAll(ctx context.Context, shots []story.Shot, prompts map[string]string, platform string, existing map[string]*story.TaskRecord) map[string]*story.TaskRecord {
	results := make(map[string]*story.TaskRecord)

	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, f.maxConcurrent)

	for _, shot := range shots {
		shotID := shot.ID()
		prompt, ok := prompts[shotID]
		if !ok || prompt == "" {
			continue
		}
		if prior, ok := existing[shotID]; ok && prior.Status == story.TaskCompleted {
			mu.Lock()
			results[shotID] = prior
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(shot story.Shot, shotID, prompt string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			rec := f.submitOne(ctx, shot, shotID, prompt, platform)
			mu.Lock()
			results[shotID] = rec
			mu.Unlock()
		}(shot, shotID, prompt)
	}

	wg.Wait()
	return results
}

func (f *Fanout) submitOne(ctx context.Context, shot story.Shot, shotID, prompt, platform string) *story.TaskRecord {
	rec := &story.TaskRecord{
		ShotID:   shotID,
		Provider: platform,
		Status:   story.TaskPending,
	}

	provider, err := f.registry.Get(platform)
	if err != nil {
		rec.Status = story.TaskFailed
		rec.Error = err.Error()
		return rec
	}

	taskID, err := provider.Submit(ctx, SubmitRequest{
		Prompt:          prompt,
		DurationSeconds: shot.DurationSeconds,
	})
	if err != nil {
		rec.Status = story.TaskFailed
		rec.Error = err.Error()
		f.logger.Warn("shot submission failed",
			logging.String(logging.FieldShotID, shotID),
			logging.String(logging.FieldProvider, platform),
			logging.Error(err))
		return rec
	}

	rec.TaskID = taskID
	f.logger.Info("shot submitted",
		logging.String(logging.FieldShotID, shotID),
		logging.String(logging.FieldProvider, platform),
		logging.String("task_id", taskID))
	return rec
}

// RefreshStatus polls every task that is not yet terminal and returns
// updated records. Terminal tasks pass through unchanged. Each shot's
// record is replaced wholesale by its own poll result only.
func (f *Fanout) RefreshStatus(ctx context.Context, tasks map[string]*story.TaskRecord) map[string]*story.TaskRecord {
	results := make(map[string]*story.TaskRecord, len(tasks))

	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, f.maxConcurrent)

	for shotID, rec := range tasks {
		if rec.Status.Terminal() || rec.TaskID == "" {
			results[shotID] = rec
			continue
		}

		wg.Add(1)
		go func(shotID string, rec *story.TaskRecord) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			updated := f.pollOne(ctx, rec)
			mu.Lock()
			results[shotID] = updated
			mu.Unlock()
		}(shotID, rec)
	}

	wg.Wait()
	return results
}

func (f *Fanout) pollOne(ctx context.Context, rec *story.TaskRecord) *story.TaskRecord {
	updated := *rec

	provider, err := f.registry.Get(rec.Provider)
	if err != nil {
		updated.Status = story.TaskFailed
		updated.Error = err.Error()
		return &updated
	}

	result, err := provider.Poll(ctx, rec.TaskID)
	if err != nil {
		// Poll failures are transient: keep the task alive for the next
		// refresh rather than failing the shot.
		f.logger.Warn("shot poll failed",
			logging.String(logging.FieldShotID, rec.ShotID),
			logging.String(logging.FieldProvider, rec.Provider),
			logging.Error(err))
		return &updated
	}

	switch result.Status {
	case JobPending:
		updated.Status = story.TaskPending
	case JobProcessing:
		updated.Status = story.TaskProcessing
	case JobCompleted:
		updated.Status = story.TaskCompleted
		updated.VideoURL = result.VideoURL
		updated.Error = ""
	case JobFailed:
		updated.Status = story.TaskFailed
		updated.Error = result.Error
	}
	return &updated
}

// RetryOne resubmits a single shot, optionally on a different platform,
// and returns the replacement record for that shot only.
func (f *Fanout) RetryOne(ctx context.Context, shot story.Shot, prompt, platform string) *story.TaskRecord {
	return f.submitOne(ctx, shot, shot.ID(), prompt, platform)
}

// AllFailed reports whether every task in the batch failed. False for an
// empty batch.
func AllFailed(tasks map[string]*story.TaskRecord) bool {
	if len(tasks) == 0 {
		return false
	}
	for _, rec := range tasks {
		if rec.Status != story.TaskFailed {
			return false
		}
	}
	return true
}
