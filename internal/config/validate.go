package config

import (
	"fmt"
	"net"
	"strings"
)

var validLogFormats = map[string]bool{"console": true, "json": true}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate checks configuration for structural problems. Missing provider
// API keys are not errors here; the video submission path reports them
// per-shot so a session can still run text phases without credentials.
func (c *Config) Validate() error {
	var problems []string

	if c.Paths.DataDir == "" {
		problems = append(problems, "paths.data_dir must be set")
	}
	if c.Paths.LogDir == "" {
		problems = append(problems, "paths.log_dir must be set")
	}
	if c.Paths.APIBind != "" {
		if _, _, err := net.SplitHostPort(c.Paths.APIBind); err != nil {
			problems = append(problems, fmt.Sprintf("paths.api_bind %q is not host:port", c.Paths.APIBind))
		}
	}
	if c.LLM.BaseURL == "" {
		problems = append(problems, "llm.base_url must be set")
	}
	if c.LLM.Model == "" {
		problems = append(problems, "llm.model must be set")
	}
	if _, ok := c.ProviderFor(c.Video.DefaultPlatform); !ok {
		problems = append(problems, fmt.Sprintf("video.default_platform %q is not one of kling, hailuo, jimeng, tongyi", c.Video.DefaultPlatform))
	}
	if !validLogFormats[c.Logging.Format] {
		problems = append(problems, fmt.Sprintf("logging.format %q is not one of console, json", c.Logging.Format))
	}
	if !validLogLevels[c.Logging.Level] {
		problems = append(problems, fmt.Sprintf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
