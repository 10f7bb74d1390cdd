package config

import (
	"os"
	"strings"
)

// normalize expands paths, trims string fields, and applies environment
// overrides for secrets so the config is ready for validation.
func (c *Config) normalize() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	if c.Paths.SkillsDir != "" {
		if c.Paths.SkillsDir, err = expandPath(c.Paths.SkillsDir); err != nil {
			return err
		}
	}

	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.LLM.BaseURL = strings.TrimRight(strings.TrimSpace(c.LLM.BaseURL), "/")
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	c.Video.DefaultPlatform = strings.ToLower(strings.TrimSpace(c.Video.DefaultPlatform))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))

	applyEnvSecret(&c.LLM.APIKey, "STORYLOOM_LLM_API_KEY")
	applyEnvSecret(&c.Providers.Kling.APIKey, "STORYLOOM_KLING_API_KEY")
	applyEnvSecret(&c.Providers.Hailuo.APIKey, "STORYLOOM_HAILUO_API_KEY")
	applyEnvSecret(&c.Providers.Jimeng.APIKey, "STORYLOOM_JIMENG_API_KEY")
	applyEnvSecret(&c.Providers.Tongyi.APIKey, "STORYLOOM_TONGYI_API_KEY")

	for _, p := range []*Provider{&c.Providers.Kling, &c.Providers.Hailuo, &c.Providers.Jimeng, &c.Providers.Tongyi} {
		p.BaseURL = strings.TrimRight(strings.TrimSpace(p.BaseURL), "/")
		p.Model = strings.TrimSpace(p.Model)
		if p.TimeoutSeconds <= 0 {
			p.TimeoutSeconds = 60
		}
	}

	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = 120
	}
	if c.LLM.RetryAttempts <= 0 {
		c.LLM.RetryAttempts = 3
	}
	if c.Video.MaxConcurrent <= 0 {
		c.Video.MaxConcurrent = 4
	}
	if c.Video.SubmitTimeoutSeconds <= 0 {
		c.Video.SubmitTimeoutSeconds = 120
	}
	if c.Video.PollTimeoutSeconds <= 0 {
		c.Video.PollTimeoutSeconds = 30
	}
	if c.Workflow.StepTimeoutSeconds <= 0 {
		c.Workflow.StepTimeoutSeconds = 600
	}
	if c.Workflow.SessionListLimit <= 0 {
		c.Workflow.SessionListLimit = 100
	}
	return nil
}

func applyEnvSecret(target *string, envName string) {
	if value := strings.TrimSpace(os.Getenv(envName)); value != "" {
		*target = value
	}
}
