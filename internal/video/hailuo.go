package video

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"storyloom/internal/config"
	"storyloom/internal/services"
)

// Hailuo adapts the MiniMax video generation API. Every response carries a
// base_resp envelope whose status_code must be zero.
type Hailuo struct {
	cfg    config.Provider
	client *http.Client
}

// NewHailuo constructs a Hailuo provider from configuration.
func NewHailuo(cfg config.Provider) *Hailuo {
	return &Hailuo{cfg: cfg, client: httpClientFor(cfg)}
}

func (h *Hailuo) Name() string { return "hailuo" }

type hailuoBaseResp struct {
	StatusCode int    `json:"status_code"`
	StatusMsg  string `json:"status_msg"`
}

type hailuoSubmitResponse struct {
	TaskID   string         `json:"task_id"`
	BaseResp hailuoBaseResp `json:"base_resp"`
}

type hailuoQueryResponse struct {
	TaskID   string         `json:"task_id"`
	Status   string         `json:"status"`
	FileID   string         `json:"file_id"`
	BaseResp hailuoBaseResp `json:"base_resp"`
}

type hailuoFileResponse struct {
	File struct {
		DownloadURL string `json:"download_url"`
	} `json:"file"`
	BaseResp hailuoBaseResp `json:"base_resp"`
}

// Submit starts one video generation job.
func (h *Hailuo) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if strings.TrimSpace(h.cfg.APIKey) == "" {
		return "", services.Wrap(services.ErrConfiguration, h.Name(), "submit", "api key not configured", nil)
	}
	body := map[string]any{
		"model":  h.cfg.Model,
		"prompt": req.Prompt,
	}
	var out hailuoSubmitResponse
	if err := h.call(ctx, http.MethodPost, "/v1/video_generation", body, &out); err != nil {
		return "", err
	}
	if err := h.checkBaseResp(out.BaseResp, "submit"); err != nil {
		return "", err
	}
	if out.TaskID == "" {
		return "", services.Wrap(services.ErrProvider, h.Name(), "submit", "no task id in response", nil)
	}
	return out.TaskID, nil
}

// Poll fetches job status. Finished jobs require a second file retrieval
// call to turn the file id into a download URL.
func (h *Hailuo) Poll(ctx context.Context, taskID string) (PollResult, error) {
	var out hailuoQueryResponse
	path := "/v1/query/video_generation?task_id=" + url.QueryEscape(taskID)
	if err := h.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return PollResult{}, err
	}
	if err := h.checkBaseResp(out.BaseResp, "poll"); err != nil {
		return PollResult{}, err
	}

	switch out.Status {
	case "Queueing", "Preparing":
		return PollResult{Status: JobPending}, nil
	case "Processing":
		return PollResult{Status: JobProcessing}, nil
	case "Fail":
		return PollResult{Status: JobFailed, Error: out.BaseResp.StatusMsg}, nil
	case "Success":
		videoURL, err := h.retrieveFile(ctx, out.FileID)
		if err != nil {
			return PollResult{}, err
		}
		return PollResult{Status: JobCompleted, VideoURL: videoURL}, nil
	default:
		return PollResult{Status: JobProcessing}, nil
	}
}

// Download fetches the rendered video bytes.
func (h *Hailuo) Download(ctx context.Context, url string) ([]byte, error) {
	return downloadURL(ctx, h.client, url)
}

func (h *Hailuo) retrieveFile(ctx context.Context, fileID string) (string, error) {
	if fileID == "" {
		return "", services.Wrap(services.ErrProvider, h.Name(), "retrieve file", "no file id for completed job", nil)
	}
	var out hailuoFileResponse
	path := "/v1/files/retrieve?file_id=" + url.QueryEscape(fileID)
	if err := h.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return "", err
	}
	if err := h.checkBaseResp(out.BaseResp, "retrieve file"); err != nil {
		return "", err
	}
	if out.File.DownloadURL == "" {
		return "", services.Wrap(services.ErrProvider, h.Name(), "retrieve file", "no download url", nil)
	}
	return out.File.DownloadURL, nil
}

func (h *Hailuo) checkBaseResp(base hailuoBaseResp, op string) error {
	if base.StatusCode != 0 {
		return services.Wrap(services.ErrProvider, h.Name(), op, fmt.Sprintf("status %d: %s", base.StatusCode, base.StatusMsg), nil)
	}
	return nil
}

func (h *Hailuo) call(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return services.Wrap(services.ErrProvider, h.Name(), "encode request", "", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, h.cfg.BaseURL+path, reader)
	if err != nil {
		return services.Wrap(services.ErrProvider, h.Name(), "new request", "", err)
	}
	req.Header.Set("Authorization", "Bearer "+h.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrProvider, h.Name(), "http", "", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return services.Wrap(services.ErrProvider, h.Name(), "read body", "", err)
	}
	if resp.StatusCode != http.StatusOK {
		return services.Wrap(services.ErrProvider, h.Name(), "http", fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload))), nil)
	}
	if out != nil {
		if err := json.Unmarshal(payload, out); err != nil {
			return services.Wrap(services.ErrProvider, h.Name(), "decode response", "", err)
		}
	}
	return nil
}
