package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:              "info",
			DefaultProvider:       "openai",
			MaxConcurrentMessages: 5,
			HistoryLimit:          10,
			ContextLookback:       50,
		},
		Providers: map[string]ProviderConfig{
			"openai": {
				Enabled:      true,
				APIBase:      "https://api.openai.com/v1",
				APIKey:       "${OPENAI_API_KEY}",
				DefaultModel: "gpt-4o-mini",
				MaxTokens:    1024,
			},
			"ollama": {
				Enabled:      false,
				APIBase:      "http://localhost:11434",
				DefaultModel: "llama3.1:8b",
			},
		},
		Channels: ChannelsConfig{
			Guest: TelegramConfig{
				Enabled:   false,
				Token:     "${STAYBOT_GUEST_TOKEN}",
				ParseMode: "Markdown",
			},
			Host: TelegramConfig{
				Enabled:   false,
				Token:     "${STAYBOT_HOST_TOKEN}",
				ParseMode: "Markdown",
			},
		},
		Storage: StorageConfig{
			DBPath:   "~/.staybot/staybot.db",
			ProofDir: "~/.staybot/proofs",
		},
		Catalog: CatalogConfig{
			Path: "~/.staybot/properties.yaml",
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Endpoint: "/metrics",
			Port:     9091,
		},
	}
}
