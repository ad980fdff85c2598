package config

// Default returns the baseline configuration before file and environment overlays.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: "~/.local/share/pressroom",
			LogDir:  "~/.local/share/pressroom/logs",
		},
		Server: Server{
			Bind:            "127.0.0.1:8787",
			BaseURL:         "http://127.0.0.1:8787",
			DispatchTimeout: 5,
		},
		Workflow: Workflow{
			RecoveryInterval:   300,
			RecoveryMinAge:     10,
			MonitorInterval:    120,
			AlertBatchSize:     20,
			StaleInProgressAge: 60,
		},
		Feeds: Feeds{
			RequestTimeout: 30,
			MaxPostsPerRun: 50,
			ExtractWindow:  48,
		},
		Generation: Generation{
			PostsPerSection: 5,
		},
		LLM: LLM{
			BaseURL:        "https://openrouter.ai/api/v1/chat/completions",
			Model:          "openai/gpt-4o-mini",
			TimeoutSeconds: 60,
		},
		Notifications: Notifications{
			RequestTimeout: 10,
			Errors:         true,
			IssueReady:     true,
		},
		Logging: Logging{
			Format: "console",
			Level:  "info",
		},
	}
}
