package step

import (
	"context"

	"storyloom/internal/services"
	"storyloom/internal/story"
	"storyloom/internal/video"
)

// Videos fans prompts out to the configured provider, one job per shot.
// Per-shot failures are recorded in the task map; only total failure
// fails the step.
type Videos struct {
	fanout          *video.Fanout
	defaultPlatform string
}

// NewVideos constructs the video generation step.
func NewVideos(fanout *video.Fanout, defaultPlatform string) *Videos {
	return &Videos{fanout: fanout, defaultPlatform: defaultPlatform}
}

func (v *Videos) Name() string { return "video_generation" }

func (v *Videos) Phase() story.Phase { return story.PhaseVideoGeneration }

// Run submits a job for every shot lacking a completed record. Already
// completed shots keep their records, so re-running after a partial
// failure never resubmits finished work.
func (v *Videos) Run(ctx context.Context, st *story.State, feedback string) error {
	if len(st.VideoPrompts) == 0 {
		return services.Wrap(services.ErrValidation, v.Name(), "check inputs", "video prompts missing", nil)
	}

	platform := st.Request.Platform
	if platform == "" {
		platform = v.defaultPlatform
	}

	tasks := v.fanout.SubmitAll(ctx, st.Shots(), st.VideoPrompts, platform, st.VideoTasks)
	for shotID, rec := range tasks {
		if err := st.SetVideoTask(shotID, rec); err != nil {
			return services.Wrap(services.ErrProvider, v.Name(), "record task", "", err)
		}
	}

	if video.AllFailed(tasks) {
		return services.Wrap(services.ErrProvider, v.Name(), "submit", "every shot submission failed", nil)
	}
	return nil
}
