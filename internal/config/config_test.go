package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.normalize(); err != nil {
		t.Fatalf("normalize default config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.toml")
	cfg, resolved, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if exists {
		t.Fatal("expected exists=false for missing file")
	}
	if resolved != path {
		t.Fatalf("resolved path = %q, want %q", resolved, path)
	}
	if cfg.Video.DefaultPlatform != "kling" {
		t.Fatalf("default platform = %q", cfg.Video.DefaultPlatform)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
data_dir = "` + dir + `/data"
log_dir = "` + dir + `/logs"
api_bind = "0.0.0.0:9000"

[llm]
model = "test-model"

[video]
default_platform = "HAILUO"
max_concurrent = 2
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, _, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to be found")
	}
	if cfg.LLM.Model != "test-model" {
		t.Fatalf("llm model = %q", cfg.LLM.Model)
	}
	if cfg.Video.DefaultPlatform != "hailuo" {
		t.Fatalf("default platform not normalized: %q", cfg.Video.DefaultPlatform)
	}
	if cfg.Video.MaxConcurrent != 2 {
		t.Fatalf("max concurrent = %d", cfg.Video.MaxConcurrent)
	}
	if cfg.Paths.DataDir != filepath.Join(dir, "data") {
		t.Fatalf("data dir = %q", cfg.Paths.DataDir)
	}
}

func TestLoadRejectsBadPlatform(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := "[video]\ndefault_platform = \"sora\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	_, _, _, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error for unknown platform")
	}
	if !strings.Contains(err.Error(), "default_platform") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEnvSecretOverride(t *testing.T) {
	t.Setenv("STORYLOOM_LLM_API_KEY", "env-key")
	path := filepath.Join(t.TempDir(), "config.toml")
	content := "[llm]\napi_key = \"file-key\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, _, _, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.APIKey != "env-key" {
		t.Fatalf("api key = %q, want env override", cfg.LLM.APIKey)
	}
}

func TestProviderFor(t *testing.T) {
	cfg := Default()
	for _, name := range []string{"kling", "hailuo", "jimeng", "tongyi", "  Kling "} {
		if _, ok := cfg.ProviderFor(name); !ok {
			t.Fatalf("expected provider for %q", name)
		}
	}
	if _, ok := cfg.ProviderFor("unknown"); ok {
		t.Fatal("unexpected provider for unknown platform")
	}
}

func TestWriteSampleRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if _, err := WriteSample(path); err != nil {
		t.Fatalf("WriteSample: %v", err)
	}
	if _, err := WriteSample(path); err == nil {
		t.Fatal("expected error on second WriteSample")
	}
}

func TestSampleConfigParses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(SampleConfig()), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, _, err := Load(path); err != nil {
		t.Fatalf("sample config should load cleanly: %v", err)
	}
}
