// Package video contains the provider adapters and the fan-out manager
// that turn per-shot prompts into asynchronous rendering jobs.
package video

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"storyloom/internal/config"
)

// JobStatus is a provider-neutral view of one rendering job.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// SubmitRequest carries everything a provider needs to start one job.
type SubmitRequest struct {
	Prompt          string
	DurationSeconds int
	AspectRatio     string
}

// PollResult is the outcome of one status poll.
type PollResult struct {
	Status   JobStatus
	VideoURL string
	Error    string
}

// Provider is the capability every video vendor adapter implements.
// Vendor quirks (auth schemes, response envelopes, status vocabularies)
// stay inside the adapter.
type Provider interface {
	Name() string
	Submit(ctx context.Context, req SubmitRequest) (string, error)
	Poll(ctx context.Context, taskID string) (PollResult, error)
	Download(ctx context.Context, url string) ([]byte, error)
}

// Registry maps platform names to providers.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry builds a registry containing every provider the config
// names, credentialed or not. Missing credentials surface at submit time
// so text phases never block on video setup.
func NewRegistry(cfg *config.Config) *Registry {
	reg := &Registry{providers: make(map[string]Provider)}
	reg.Register(NewKling(cfg.Providers.Kling))
	reg.Register(NewHailuo(cfg.Providers.Hailuo))
	reg.Register(NewJimeng(cfg.Providers.Jimeng))
	reg.Register(NewTongyi(cfg.Providers.Tongyi))
	return reg
}

// Register adds a provider under its own name.
func (r *Registry) Register(p Provider) {
	if r.providers == nil {
		r.providers = make(map[string]Provider)
	}
	r.providers[p.Name()] = p
}

// Get returns the provider for a platform name.
func (r *Registry) Get(platform string) (Provider, error) {
	p, ok := r.providers[platform]
	if !ok {
		return nil, fmt.Errorf("unknown video platform %q", platform)
	}
	return p, nil
}

// Names lists the registered platform names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func httpClientFor(cfg config.Provider) *http.Client {
	timeout := 60 * time.Second
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return &http.Client{Timeout: timeout}
}

func downloadURL(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("download video: new request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download video: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download video: http %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("download video: read body: %w", err)
	}
	return data, nil
}
