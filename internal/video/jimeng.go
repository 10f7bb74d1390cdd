package video

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"storyloom/internal/config"
	"storyloom/internal/services"
)

// Jimeng adapts the Jimeng (Volcengine) video generation API.
type Jimeng struct {
	cfg    config.Provider
	client *http.Client
}

// NewJimeng constructs a Jimeng provider from configuration.
func NewJimeng(cfg config.Provider) *Jimeng {
	return &Jimeng{cfg: cfg, client: httpClientFor(cfg)}
}

func (j *Jimeng) Name() string { return "jimeng" }

type jimengEnvelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type jimengTask struct {
	TaskID   string `json:"task_id"`
	Status   string `json:"status"`
	VideoURL string `json:"video_url"`
	Reason   string `json:"reason"`
}

const jimengOKCode = 10000

// Submit starts one video generation job.
func (j *Jimeng) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if strings.TrimSpace(j.cfg.APIKey) == "" {
		return "", services.Wrap(services.ErrConfiguration, j.Name(), "submit", "api key not configured", nil)
	}
	body := map[string]any{
		"req_key": j.cfg.Model,
		"prompt":  req.Prompt,
	}
	if req.AspectRatio != "" {
		body["aspect_ratio"] = req.AspectRatio
	}
	var task jimengTask
	if err := j.call(ctx, http.MethodPost, "/api/v1/video/submit", body, &task); err != nil {
		return "", err
	}
	if task.TaskID == "" {
		return "", services.Wrap(services.ErrProvider, j.Name(), "submit", "no task id in response", nil)
	}
	return task.TaskID, nil
}

// Poll fetches job status.
func (j *Jimeng) Poll(ctx context.Context, taskID string) (PollResult, error) {
	body := map[string]any{
		"req_key": j.cfg.Model,
		"task_id": taskID,
	}
	var task jimengTask
	if err := j.call(ctx, http.MethodPost, "/api/v1/video/result", body, &task); err != nil {
		return PollResult{}, err
	}

	switch task.Status {
	case "in_queue":
		return PollResult{Status: JobPending}, nil
	case "generating":
		return PollResult{Status: JobProcessing}, nil
	case "done":
		return PollResult{Status: JobCompleted, VideoURL: task.VideoURL}, nil
	case "failed", "expired", "not_found":
		return PollResult{Status: JobFailed, Error: task.Reason}, nil
	default:
		return PollResult{Status: JobProcessing}, nil
	}
}

// Download fetches the rendered video bytes.
func (j *Jimeng) Download(ctx context.Context, url string) ([]byte, error) {
	return downloadURL(ctx, j.client, url)
}

func (j *Jimeng) call(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return services.Wrap(services.ErrProvider, j.Name(), "encode request", "", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, j.cfg.BaseURL+path, reader)
	if err != nil {
		return services.Wrap(services.ErrProvider, j.Name(), "new request", "", err)
	}
	req.Header.Set("Authorization", "Bearer "+j.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := j.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrProvider, j.Name(), "http", "", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return services.Wrap(services.ErrProvider, j.Name(), "read body", "", err)
	}
	if resp.StatusCode != http.StatusOK {
		return services.Wrap(services.ErrProvider, j.Name(), "http", fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload))), nil)
	}

	var envelope jimengEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return services.Wrap(services.ErrProvider, j.Name(), "decode response", "", err)
	}
	if envelope.Code != jimengOKCode {
		return services.Wrap(services.ErrProvider, j.Name(), "api", fmt.Sprintf("code %d: %s", envelope.Code, envelope.Message), nil)
	}
	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return services.Wrap(services.ErrProvider, j.Name(), "decode data", "", err)
		}
	}
	return nil
}
