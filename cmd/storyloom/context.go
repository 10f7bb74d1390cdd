package main

import (
	"context"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"log/slog"

	"storyloom/internal/config"
	"storyloom/internal/llm"
	"storyloom/internal/logging"
	"storyloom/internal/policy"
	"storyloom/internal/runner"
	"storyloom/internal/session"
	"storyloom/internal/step"
	"storyloom/internal/video"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// runtime bundles everything a command needs to drive the pipeline
// in-process: the store, the runner, and the provider registry.
type runtime struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *session.Store
	runner   *runner.Runner
	llm      *llm.Client
	registry *video.Registry
}

func buildRuntime(cfg *config.Config, logPaths []string) (*runtime, error) {
	logger, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Paths:  logPaths,
	})
	if err != nil {
		return nil, err
	}

	store, err := session.Open(cfg)
	if err != nil {
		return nil, err
	}

	client := llm.NewClient(cfg.LLM)
	policies := policy.NewLoader(cfg.Paths.SkillsDir)
	registry := video.NewRegistry(cfg)
	fanout := video.NewFanout(registry, cfg.Video.MaxConcurrent, logger)

	r, err := runner.New(runner.Options{
		Store: store,
		Steps: []step.Step{
			step.NewOutline(client, policies),
			step.NewCharacters(client, policies),
			step.NewEpisodes(client, policies),
			step.NewStoryboard(client, policies),
			step.NewPrompts(client, policies),
			step.NewVideos(fanout, cfg.Video.DefaultPlatform),
		},
		Fanout:          fanout,
		DefaultPlatform: cfg.Video.DefaultPlatform,
		StepTimeout:     time.Duration(cfg.Workflow.StepTimeoutSeconds) * time.Second,
		ListLimit:       cfg.Workflow.SessionListLimit,
		Logger:          logger,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	return &runtime{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		runner:   r,
		llm:      client,
		registry: registry,
	}, nil
}

func (rt *runtime) close() {
	if rt.store != nil {
		_ = rt.store.Close()
	}
}

// withRuntime runs one command against a freshly opened runtime. The
// context cancels on SIGINT/SIGTERM so long-running generation calls can
// be interrupted cleanly.
func (c *commandContext) withRuntime(fn func(ctx context.Context, rt *runtime) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	// Log to the file, not stdout; command output stays clean.
	rt, err := buildRuntime(cfg, serveLogPaths(cfg))
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return fn(ctx, rt)
}

func serveLogPaths(cfg *config.Config) []string {
	return []string{filepath.Join(cfg.Paths.LogDir, "storyloom.log")}
}
