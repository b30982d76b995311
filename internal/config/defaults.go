package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			Workspace: "~/.paintsense/workspace",
			LogLevel:  "info",
		},
		Server: ServerConfig{
			BaseURL:        "http://localhost:8000",
			TimeoutSeconds: 120,
			TokenCookie:    "csrftoken",
			TokenHeader:    "X-CSRFToken",
		},
		Review: ReviewConfig{
			DescriptionSource: "submit",
			OpenPreview:       false,
		},
		Voice: VoiceConfig{
			ReplyEnabled: false,
			STT: STTConfig{
				Enabled: false,
				APIBase: "https://api.groq.com/openai/v1",
				Model:   "whisper-large-v3",
			},
			TTS: TTSConfig{
				Enabled: false,
				APIBase: "https://api.openai.com/v1",
				Model:   "tts-1",
				Voice:   "alloy",
			},
		},
		History: HistoryConfig{
			Enabled:                    false,
			DBPath:                     "~/.paintsense/history.db",
			MaxMessagesPerConversation: 200,
			RetentionDays:              365,
		},
		Channels: ChannelsConfig{
			CLI: CLIConfig{
				Enabled: true,
			},
			Telegram: TelegramConfig{
				Enabled:   false,
				ParseMode: "Markdown",
			},
		},
	}
}
