package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"storyloom/internal/config"
)

func testConfig(url string) config.LLM {
	return config.LLM{
		APIKey:        "test-key",
		BaseURL:       url,
		Model:         "test-model",
		RetryAttempts: 3,
	}
}

func completionBody(content string) string {
	payload := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}, "finish_reason": "stop"},
		},
	}
	data, _ := json.Marshal(payload)
	return string(data)
}

func TestCompleteJSONSuccess(t *testing.T) {
	var gotAuth string
	var gotBody chatCompletionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(completionBody(`{"title":"x"}`))); err != nil {
			t.Errorf("write response: %v", err)
		}
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	content, err := client.CompleteJSON(context.Background(), "system", "user", 0.7)
	if err != nil {
		t.Fatalf("CompleteJSON: %v", err)
	}
	if content != `{"title":"x"}` {
		t.Fatalf("content = %q", content)
	}
	if gotAuth != "Bearer test-key" {
		t.Fatalf("auth header = %q", gotAuth)
	}
	if gotBody.ResponseFormat["type"] != "json_object" {
		t.Fatalf("response_format = %v", gotBody.ResponseFormat)
	}
	if gotBody.Temperature != 0.7 {
		t.Fatalf("temperature = %v", gotBody.Temperature)
	}
}

func TestCompleteTextOmitsResponseFormat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if _, present := body["response_format"]; present {
			t.Error("response_format should be omitted for text completions")
		}
		w.Write([]byte(completionBody("a script")))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	content, err := client.CompleteText(context.Background(), "system", "user", 0.9)
	if err != nil {
		t.Fatalf("CompleteText: %v", err)
	}
	if content != "a script" {
		t.Fatalf("content = %q", content)
	}
}

func TestRetryOnServerError(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(completionBody(`{"ok":true}`)))
	}))
	defer server.Close()

	var slept []time.Duration
	client := NewClient(testConfig(server.URL), WithSleeper(func(d time.Duration) {
		slept = append(slept, d)
	}))
	content, err := client.CompleteJSON(context.Background(), "system", "user", 0)
	if err != nil {
		t.Fatalf("CompleteJSON: %v", err)
	}
	if content != `{"ok":true}` {
		t.Fatalf("content = %q", content)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d", attempts)
	}
	if len(slept) != 2 {
		t.Fatalf("sleeps = %v", slept)
	}
}

func TestRetryHonorsRetryAfter(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.Header().Set("Retry-After", "2")
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(completionBody("done")))
	}))
	defer server.Close()

	var slept []time.Duration
	client := NewClient(testConfig(server.URL), WithSleeper(func(d time.Duration) {
		slept = append(slept, d)
	}))
	if _, err := client.CompleteText(context.Background(), "system", "user", 0); err != nil {
		t.Fatalf("CompleteText: %v", err)
	}
	if len(slept) != 1 || slept[0] != 2*time.Second {
		t.Fatalf("slept = %v", slept)
	}
}

func TestNoRetryOnBadRequest(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		http.Error(w, "bad model", http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), WithSleeper(func(time.Duration) {}))
	_, err := client.CompleteJSON(context.Background(), "system", "user", 0)
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want no retry", attempts)
	}
	if !strings.Contains(err.Error(), "http 400") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMissingAPIKey(t *testing.T) {
	cfg := testConfig("http://unused")
	cfg.APIKey = ""
	client := NewClient(cfg)
	if _, err := client.CompleteJSON(context.Background(), "system", "user", 0); err == nil {
		t.Fatal("expected error for missing api key")
	}
}

func TestDecodeLLMJSON(t *testing.T) {
	type outline struct {
		Title string `json:"title"`
	}

	cases := []struct {
		name    string
		payload string
		want    string
		wantErr bool
	}{
		{name: "plain", payload: `{"title":"a"}`, want: "a"},
		{name: "fenced", payload: "```json\n{\"title\":\"b\"}\n```", want: "b"},
		{name: "fenced no language", payload: "```\n{\"title\":\"c\"}\n```", want: "c"},
		{name: "surrounding prose", payload: "Here you go:\n{\"title\":\"d\"}\nHope that helps!", want: "d"},
		{name: "empty", payload: "   ", wantErr: true},
		{name: "not json", payload: "sorry, I cannot do that", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got outline
			err := DecodeLLMJSON(tc.payload, &got)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeLLMJSON: %v", err)
			}
			if got.Title != tc.want {
				t.Fatalf("title = %q, want %q", got.Title, tc.want)
			}
		})
	}
}

func TestHealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(completionBody(`{"ok":true}`)))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}
