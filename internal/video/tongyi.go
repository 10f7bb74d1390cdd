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

// Tongyi adapts the Tongyi Wanxiang (DashScope) video synthesis API.
// Submission is asynchronous: the X-DashScope-Async header enqueues the
// job and a generic task endpoint reports completion.
type Tongyi struct {
	cfg    config.Provider
	client *http.Client
}

// NewTongyi constructs a Tongyi provider from configuration.
func NewTongyi(cfg config.Provider) *Tongyi {
	return &Tongyi{cfg: cfg, client: httpClientFor(cfg)}
}

func (t *Tongyi) Name() string { return "tongyi" }

type tongyiResponse struct {
	RequestID string `json:"request_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	Output    struct {
		TaskID     string `json:"task_id"`
		TaskStatus string `json:"task_status"`
		VideoURL   string `json:"video_url"`
		Message    string `json:"message"`
	} `json:"output"`
}

// Submit starts one video synthesis job.
func (t *Tongyi) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if strings.TrimSpace(t.cfg.APIKey) == "" {
		return "", services.Wrap(services.ErrConfiguration, t.Name(), "submit", "api key not configured", nil)
	}
	body := map[string]any{
		"model": t.cfg.Model,
		"input": map[string]any{
			"prompt": req.Prompt,
		},
	}
	if req.AspectRatio != "" {
		body["parameters"] = map[string]any{"size": req.AspectRatio}
	}

	var out tongyiResponse
	if err := t.call(ctx, http.MethodPost, "/api/v1/services/aigc/video-generation/video-synthesis", body, &out, true); err != nil {
		return "", err
	}
	if out.Output.TaskID == "" {
		return "", services.Wrap(services.ErrProvider, t.Name(), "submit", "no task id in response", nil)
	}
	return out.Output.TaskID, nil
}

// Poll fetches job status from the generic task endpoint.
func (t *Tongyi) Poll(ctx context.Context, taskID string) (PollResult, error) {
	var out tongyiResponse
	if err := t.call(ctx, http.MethodGet, "/api/v1/tasks/"+taskID, nil, &out, false); err != nil {
		return PollResult{}, err
	}

	switch out.Output.TaskStatus {
	case "PENDING":
		return PollResult{Status: JobPending}, nil
	case "RUNNING":
		return PollResult{Status: JobProcessing}, nil
	case "SUCCEEDED":
		return PollResult{Status: JobCompleted, VideoURL: out.Output.VideoURL}, nil
	case "FAILED", "CANCELED", "UNKNOWN":
		message := out.Output.Message
		if message == "" {
			message = out.Message
		}
		return PollResult{Status: JobFailed, Error: message}, nil
	default:
		return PollResult{Status: JobProcessing}, nil
	}
}

// Download fetches the rendered video bytes.
func (t *Tongyi) Download(ctx context.Context, url string) ([]byte, error) {
	return downloadURL(ctx, t.client, url)
}

func (t *Tongyi) call(ctx context.Context, method, path string, body any, out *tongyiResponse, async bool) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return services.Wrap(services.ErrProvider, t.Name(), "encode request", "", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, t.cfg.BaseURL+path, reader)
	if err != nil {
		return services.Wrap(services.ErrProvider, t.Name(), "new request", "", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if async {
		req.Header.Set("X-DashScope-Async", "enable")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrProvider, t.Name(), "http", "", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return services.Wrap(services.ErrProvider, t.Name(), "read body", "", err)
	}
	if resp.StatusCode != http.StatusOK {
		return services.Wrap(services.ErrProvider, t.Name(), "http", fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload))), nil)
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return services.Wrap(services.ErrProvider, t.Name(), "decode response", "", err)
	}
	if out.Code != "" {
		return services.Wrap(services.ErrProvider, t.Name(), "api", fmt.Sprintf("%s: %s", out.Code, out.Message), nil)
	}
	return nil
}
