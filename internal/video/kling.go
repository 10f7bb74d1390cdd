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

// Kling adapts the Kling text-to-video API.
type Kling struct {
	cfg    config.Provider
	client *http.Client
}

// NewKling constructs a Kling provider from configuration.
func NewKling(cfg config.Provider) *Kling {
	return &Kling{cfg: cfg, client: httpClientFor(cfg)}
}

func (k *Kling) Name() string { return "kling" }

type klingSubmitRequest struct {
	ModelName   string `json:"model_name"`
	Prompt      string `json:"prompt"`
	Duration    string `json:"duration,omitempty"`
	AspectRatio string `json:"aspect_ratio,omitempty"`
}

type klingEnvelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type klingTask struct {
	TaskID     string `json:"task_id"`
	TaskStatus string `json:"task_status"`
	TaskResult struct {
		Videos []struct {
			URL string `json:"url"`
		} `json:"videos"`
	} `json:"task_result"`
	TaskStatusMsg string `json:"task_status_msg"`
}

// Submit starts one text-to-video job and returns the provider task id.
func (k *Kling) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if strings.TrimSpace(k.cfg.APIKey) == "" {
		return "", services.Wrap(services.ErrConfiguration, k.Name(), "submit", "api key not configured", nil)
	}
	body := klingSubmitRequest{
		ModelName:   k.cfg.Model,
		Prompt:      req.Prompt,
		AspectRatio: req.AspectRatio,
	}
	if req.DurationSeconds > 0 {
		body.Duration = fmt.Sprintf("%d", req.DurationSeconds)
	}

	var task klingTask
	if err := k.call(ctx, http.MethodPost, "/v1/videos/text2video", body, &task); err != nil {
		return "", err
	}
	if task.TaskID == "" {
		return "", services.Wrap(services.ErrProvider, k.Name(), "submit", "no task id in response", nil)
	}
	return task.TaskID, nil
}

// Poll fetches the status of one job.
func (k *Kling) Poll(ctx context.Context, taskID string) (PollResult, error) {
	var task klingTask
	if err := k.call(ctx, http.MethodGet, "/v1/videos/text2video/"+taskID, nil, &task); err != nil {
		return PollResult{}, err
	}

	result := PollResult{}
	switch task.TaskStatus {
	case "submitted":
		result.Status = JobPending
	case "processing":
		result.Status = JobProcessing
	case "succeed":
		result.Status = JobCompleted
		if len(task.TaskResult.Videos) > 0 {
			result.VideoURL = task.TaskResult.Videos[0].URL
		}
	case "failed":
		result.Status = JobFailed
		result.Error = task.TaskStatusMsg
	default:
		result.Status = JobProcessing
	}
	return result, nil
}

// Download fetches the rendered video bytes.
func (k *Kling) Download(ctx context.Context, url string) ([]byte, error) {
	return downloadURL(ctx, k.client, url)
}

func (k *Kling) call(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return services.Wrap(services.ErrProvider, k.Name(), "encode request", "", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, k.cfg.BaseURL+path, reader)
	if err != nil {
		return services.Wrap(services.ErrProvider, k.Name(), "new request", "", err)
	}
	req.Header.Set("Authorization", "Bearer "+k.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := k.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrProvider, k.Name(), "http", "", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return services.Wrap(services.ErrProvider, k.Name(), "read body", "", err)
	}
	if resp.StatusCode != http.StatusOK {
		return services.Wrap(services.ErrProvider, k.Name(), "http", fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload))), nil)
	}

	var envelope klingEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return services.Wrap(services.ErrProvider, k.Name(), "decode response", "", err)
	}
	if envelope.Code != 0 {
		return services.Wrap(services.ErrProvider, k.Name(), "api", fmt.Sprintf("code %d: %s", envelope.Code, envelope.Message), nil)
	}
	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return services.Wrap(services.ErrProvider, k.Name(), "decode data", "", err)
		}
	}
	return nil
}
