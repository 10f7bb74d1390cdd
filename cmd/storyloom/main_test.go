package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"storyloom/internal/session"
	"storyloom/internal/story"
)

func TestConfigInitWritesSample(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"config", "init", "--path", target})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("config init: %v", err)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "[llm]") {
		t.Fatalf("sample missing llm section:\n%s", data)
	}
	if !strings.Contains(out.String(), target) {
		t.Fatalf("output missing target path: %s", out.String())
	}
}

func TestConfigInitRefusesOverwrite(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(target, []byte("# existing"), 0o644); err != nil {
		t.Fatal(err)
	}

	cmd := newRootCommand()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"config", "init", "--path", target})

	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error for existing config file")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly-ten", 11, "exactly-ten"},
		{"a longer idea than fits", 10, "a longe..."},
		{"abc", 2, "ab"},
	}
	for _, tc := range tests {
		if got := truncate(tc.in, tc.max); got != tc.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tc.in, tc.max, got, tc.want)
		}
	}
}

func TestRenderSessionTablePlain(t *testing.T) {
	var buf bytes.Buffer
	rendered := renderSessionTable(&buf, []*session.Session{{
		SessionID: "abc",
		Status:    session.StatusPaused,
		Mode:      "interactive",
		Phase:     "storyboard",
		Idea:      "a robot learns to love",
		UpdatedAt: time.Date(2026, 1, 2, 15, 4, 0, 0, time.UTC),
	}})
	for _, cell := range []string{"abc", "paused", "interactive", "storyboard"} {
		if !strings.Contains(rendered, cell) {
			t.Fatalf("rendered table missing %q:\n%s", cell, rendered)
		}
	}
	if strings.Contains(rendered, "\x1b[") {
		t.Fatalf("non-terminal output should not be colored:\n%s", rendered)
	}
}

func TestRenderTaskTableSortsShots(t *testing.T) {
	var buf bytes.Buffer
	rendered := renderTaskTable(&buf, map[string]*story.TaskRecord{
		"ep1_shot2": {ShotID: "ep1_shot2", Provider: "veo", Status: story.TaskFailed, Error: "quota exceeded"},
		"ep1_shot1": {ShotID: "ep1_shot1", Provider: "veo", Status: story.TaskCompleted, VideoURL: "http://cdn/v.mp4"},
	})
	first := strings.Index(rendered, "ep1_shot1")
	second := strings.Index(rendered, "ep1_shot2")
	if first < 0 || second < 0 || first > second {
		t.Fatalf("shots not sorted:\n%s", rendered)
	}
	if !strings.Contains(rendered, "http://cdn/v.mp4") || !strings.Contains(rendered, "quota exceeded") {
		t.Fatalf("detail column missing url or error:\n%s", rendered)
	}
}
