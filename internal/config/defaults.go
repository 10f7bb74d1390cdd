package config

// Default returns a Config populated with default values.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:   "~/.local/share/storyloom",
			LogDir:    "~/.local/share/storyloom/logs",
			SkillsDir: "",
			APIBind:   "127.0.0.1:7630",
		},
		LLM: LLM{
			BaseURL:        "https://api.openai.com/v1",
			Model:          "gpt-4o",
			TimeoutSeconds: 120,
			RetryAttempts:  3,
		},
		Providers: Providers{
			Kling: Provider{
				BaseURL:        "https://api.klingai.com",
				Model:          "kling-v1",
				TimeoutSeconds: 60,
			},
			Hailuo: Provider{
				BaseURL:        "https://api.minimax.chat",
				Model:          "video-01",
				TimeoutSeconds: 60,
			},
			Jimeng: Provider{
				BaseURL:        "https://visual.volcengineapi.com",
				Model:          "jimeng_vgfm_t2v_l20",
				TimeoutSeconds: 60,
			},
			Tongyi: Provider{
				BaseURL:        "https://dashscope.aliyuncs.com",
				Model:          "wanx2.1-t2v-turbo",
				TimeoutSeconds: 60,
			},
		},
		Video: Video{
			DefaultPlatform:      "kling",
			MaxConcurrent:        4,
			SubmitTimeoutSeconds: 120,
			PollTimeoutSeconds:   30,
		},
		Workflow: Workflow{
			StepTimeoutSeconds: 600,
			SessionListLimit:   100,
		},
		Logging: Logging{
			Format: "console",
			Level:  "info",
		},
	}
}
