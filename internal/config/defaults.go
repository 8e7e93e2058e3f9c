package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			Workspace: "~/.personabot/workspace",
			LogLevel:  "info",
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Generator: GeneratorConfig{
			Default:        "openai",
			TimeoutSeconds: 30,
			RetryBackoffMS: 500,
			MaxTokens:      1024,
			Providers: map[string]ProviderConfig{
				"openai": {
					Enabled: true,
					Type:    "openai",
					APIKey:  "${OPENAI_API_KEY}",
					Model:   "gpt-4o-mini",
				},
			},
		},
		Persona: PersonaConfig{
			Threshold: 0.5,
			Window:    5,
		},
		Escalation: EscalationConfig{
			TurnCeiling:     20,
			UnansweredLimit: 3,
		},
		Knowledge: KnowledgeConfig{
			Dir:  "~/.personabot/knowledge",
			TopK: 3,
		},
		History: HistoryConfig{
			DBPath: "~/.personabot/personabot.db",
			Window: 10,
		},
		CRM: CRMConfig{
			Enabled:   false,
			AssistTag: "staff_assist",
		},
		Channels: ChannelsConfig{
			Webhook: WebhookConfig{
				Enabled: true,
				Path:    "/webhook",
			},
			Telegram: TelegramConfig{
				Enabled:   false,
				ParseMode: "Markdown",
			},
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Endpoint: "/metrics",
		},
	}
}
