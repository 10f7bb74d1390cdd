package video

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"storyloom/internal/config"
	"storyloom/internal/services"
)

func providerConfig(url string) config.Provider {
	return config.Provider{APIKey: "test-key", BaseURL: url, Model: "test-model"}
}

func TestKlingSubmitAndPoll(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("auth = %q", got)
		}
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/videos/text2video":
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			if body["model_name"] != "test-model" {
				t.Errorf("model_name = %v", body["model_name"])
			}
			json.NewEncoder(w).Encode(map[string]any{
				"code": 0,
				"data": map[string]any{"task_id": "k-1", "task_status": "submitted"},
			})
		case r.Method == http.MethodGet && r.URL.Path == "/v1/videos/text2video/k-1":
			json.NewEncoder(w).Encode(map[string]any{
				"code": 0,
				"data": map[string]any{
					"task_id":     "k-1",
					"task_status": "succeed",
					"task_result": map[string]any{
						"videos": []map[string]any{{"url": "http://cdn/video.mp4"}},
					},
				},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	kling := NewKling(providerConfig(server.URL))
	taskID, err := kling.Submit(context.Background(), SubmitRequest{Prompt: "a factory at dawn", DurationSeconds: 5})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if taskID != "k-1" {
		t.Fatalf("taskID = %q", taskID)
	}

	result, err := kling.Poll(context.Background(), taskID)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if result.Status != JobCompleted || result.VideoURL != "http://cdn/video.mp4" {
		t.Fatalf("result = %+v", result)
	}
}

func TestKlingAPIErrorEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"code": 1102, "message": "insufficient balance"})
	}))
	defer server.Close()

	kling := NewKling(providerConfig(server.URL))
	_, err := kling.Submit(context.Background(), SubmitRequest{Prompt: "x"})
	if !errors.Is(err, services.ErrProvider) {
		t.Fatalf("expected ErrProvider, got %v", err)
	}
}

func TestKlingMissingAPIKey(t *testing.T) {
	kling := NewKling(config.Provider{BaseURL: "http://unused"})
	_, err := kling.Submit(context.Background(), SubmitRequest{Prompt: "x"})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestHailuoSubmitAndPoll(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/video_generation":
			json.NewEncoder(w).Encode(map[string]any{
				"task_id":   "h-1",
				"base_resp": map[string]any{"status_code": 0},
			})
		case r.Method == http.MethodGet && r.URL.Path == "/v1/query/video_generation":
			if got := r.URL.Query().Get("task_id"); got != "h-1" {
				t.Errorf("task_id = %q", got)
			}
			json.NewEncoder(w).Encode(map[string]any{
				"task_id":   "h-1",
				"status":    "Success",
				"file_id":   "f-9",
				"base_resp": map[string]any{"status_code": 0},
			})
		case r.Method == http.MethodGet && r.URL.Path == "/v1/files/retrieve":
			json.NewEncoder(w).Encode(map[string]any{
				"file":      map[string]any{"download_url": "http://cdn/h.mp4"},
				"base_resp": map[string]any{"status_code": 0},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	hailuo := NewHailuo(providerConfig(server.URL))
	taskID, err := hailuo.Submit(context.Background(), SubmitRequest{Prompt: "ocean sunrise"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	result, err := hailuo.Poll(context.Background(), taskID)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if result.Status != JobCompleted || result.VideoURL != "http://cdn/h.mp4" {
		t.Fatalf("result = %+v", result)
	}
}

func TestHailuoBaseRespFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"base_resp": map[string]any{"status_code": 1008, "status_msg": "insufficient balance"},
		})
	}))
	defer server.Close()

	hailuo := NewHailuo(providerConfig(server.URL))
	_, err := hailuo.Submit(context.Background(), SubmitRequest{Prompt: "x"})
	if !errors.Is(err, services.ErrProvider) {
		t.Fatalf("expected ErrProvider, got %v", err)
	}
}

func TestTongyiSubmitAndPoll(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			if got := r.Header.Get("X-DashScope-Async"); got != "enable" {
				t.Errorf("async header = %q", got)
			}
			json.NewEncoder(w).Encode(map[string]any{
				"output": map[string]any{"task_id": "d-1", "task_status": "PENDING"},
			})
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/tasks/d-1":
			json.NewEncoder(w).Encode(map[string]any{
				"output": map[string]any{"task_id": "d-1", "task_status": "SUCCEEDED", "video_url": "http://cdn/t.mp4"},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	tongyi := NewTongyi(providerConfig(server.URL))
	taskID, err := tongyi.Submit(context.Background(), SubmitRequest{Prompt: "city at night"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	result, err := tongyi.Poll(context.Background(), taskID)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if result.Status != JobCompleted || result.VideoURL != "http://cdn/t.mp4" {
		t.Fatalf("result = %+v", result)
	}
}

func TestJimengPollStatuses(t *testing.T) {
	status := "in_queue"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/video/submit":
			json.NewEncoder(w).Encode(map[string]any{
				"code": 10000,
				"data": map[string]any{"task_id": "j-1"},
			})
		case "/api/v1/video/result":
			json.NewEncoder(w).Encode(map[string]any{
				"code": 10000,
				"data": map[string]any{"task_id": "j-1", "status": status, "video_url": "http://cdn/j.mp4"},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	jimeng := NewJimeng(providerConfig(server.URL))
	taskID, err := jimeng.Submit(context.Background(), SubmitRequest{Prompt: "forest path"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	cases := map[string]JobStatus{
		"in_queue":   JobPending,
		"generating": JobProcessing,
		"done":       JobCompleted,
		"failed":     JobFailed,
	}
	for wire, want := range cases {
		status = wire
		result, err := jimeng.Poll(context.Background(), taskID)
		if err != nil {
			t.Fatalf("Poll(%s): %v", wire, err)
		}
		if result.Status != want {
			t.Fatalf("status for %q = %s, want %s", wire, result.Status, want)
		}
	}
}

func TestRegistry(t *testing.T) {
	cfg := config.Default()
	reg := NewRegistry(&cfg)
	for _, name := range []string{"kling", "hailuo", "jimeng", "tongyi"} {
		p, err := reg.Get(name)
		if err != nil {
			t.Fatalf("Get(%s): %v", name, err)
		}
		if p.Name() != name {
			t.Fatalf("provider name = %q", p.Name())
		}
	}
	if _, err := reg.Get("sora"); err == nil {
		t.Fatal("expected error for unknown platform")
	}
	names := reg.Names()
	if len(names) != 4 {
		t.Fatalf("names = %v", names)
	}
}
