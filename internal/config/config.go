package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the PaintSense client.
type Config struct {
	General  GeneralConfig  `json:"general" yaml:"general"`
	Server   ServerConfig   `json:"server" yaml:"server"`
	Review   ReviewConfig   `json:"review" yaml:"review"`
	Voice    VoiceConfig    `json:"voice" yaml:"voice"`
	History  HistoryConfig  `json:"history" yaml:"history"`
	Channels ChannelsConfig `json:"channels" yaml:"channels"`
}

type GeneralConfig struct {
	Workspace string `json:"workspace" yaml:"workspace"`
	LogLevel  string `json:"logLevel" yaml:"logLevel"`
	LogFile   string `json:"logFile,omitempty" yaml:"logFile,omitempty"`
}

// ServerConfig points the client at the advice service and names the
// anti-forgery token mechanism (Django-style by default).
type ServerConfig struct {
	BaseURL        string `json:"baseUrl" yaml:"baseUrl"`
	TimeoutSeconds int    `json:"timeoutSeconds" yaml:"timeoutSeconds"`
	TokenCookie    string `json:"tokenCookie" yaml:"tokenCookie"`
	TokenHeader    string `json:"tokenHeader" yaml:"tokenHeader"`
}

// ReviewConfig tunes the suggestion review flow.
// DescriptionSource selects where per-image descriptions come from:
// "submit" parses them from the first-phase reply at submit time,
// "confirm" re-parses the stored reply on entry into review.
type ReviewConfig struct {
	DescriptionSource string `json:"descriptionSource" yaml:"descriptionSource"`
	OpenPreview       bool   `json:"openPreview" yaml:"openPreview"`
	PreviewProfileDir string `json:"previewProfileDir,omitempty" yaml:"previewProfileDir,omitempty"`
}

type VoiceConfig struct {
	ReplyEnabled bool      `json:"replyEnabled" yaml:"replyEnabled"`
	STT          STTConfig `json:"stt" yaml:"stt"`
	TTS          TTSConfig `json:"tts" yaml:"tts"`
}

type STTConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	APIBase  string `json:"apiBase,omitempty" yaml:"apiBase,omitempty"`
	APIKey   string `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
	Model    string `json:"model,omitempty" yaml:"model,omitempty"`
	Language string `json:"language,omitempty" yaml:"language,omitempty"`
}

type TTSConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	APIBase string `json:"apiBase,omitempty" yaml:"apiBase,omitempty"`
	APIKey  string `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
	Model   string `json:"model,omitempty" yaml:"model,omitempty"`
	Voice   string `json:"voice,omitempty" yaml:"voice,omitempty"`
}

// HistoryConfig gates the local transcript history store. Disabled means
// the transcript lives only in memory for the session.
type HistoryConfig struct {
	Enabled                    bool   `json:"enabled" yaml:"enabled"`
	DBPath                     string `json:"dbPath" yaml:"dbPath"`
	MaxMessagesPerConversation int    `json:"maxMessagesPerConversation" yaml:"maxMessagesPerConversation"`
	RetentionDays              int    `json:"retentionDays" yaml:"retentionDays"`
}

type ChannelsConfig struct {
	CLI      CLIConfig      `json:"cli" yaml:"cli"`
	Telegram TelegramConfig `json:"telegram" yaml:"telegram"`
}

type CLIConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

type TelegramConfig struct {
	Enabled   bool           `json:"enabled" yaml:"enabled"`
	Token     string         `json:"token" yaml:"token"`
	AllowFrom FlexStringList `json:"allowFrom" yaml:"allowFrom"`
	ParseMode string         `json:"parseMode" yaml:"parseMode"`
}

// FlexStringList is a []string that can unmarshal from JSON arrays containing
// both strings and numbers (e.g. ["123", 456] both become "123", "456").
type FlexStringList []string

func (f *FlexStringList) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			result = append(result, s)
			continue
		}
		var n float64
		if err := json.Unmarshal(item, &n); err == nil {
			result = append(result, strconv.FormatInt(int64(n), 10))
			continue
		}
		result = append(result, string(item))
	}
	*f = result
	return nil
}

// DefaultConfigDir returns the default config directory (~/.paintsense).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".paintsense"
	}
	return filepath.Join(home, ".paintsense")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load reads a config file (JSON, or YAML when the extension is .yaml/.yml),
// expands environment variables and ~/ paths, and validates the result.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
		}
	}

	cfg.General.Workspace = ExpandPath(cfg.General.Workspace)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.History.DBPath = ExpandPath(cfg.History.DBPath)
	cfg.Review.PreviewProfileDir = ExpandPath(cfg.Review.PreviewProfileDir)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Server.BaseURL == "" {
		errs = append(errs, "server.baseUrl is required")
	}
	if !strings.HasPrefix(cfg.Server.BaseURL, "http://") && !strings.HasPrefix(cfg.Server.BaseURL, "https://") {
		errs = append(errs, "server.baseUrl must start with http:// or https://")
	}
	if cfg.Server.TimeoutSeconds < 1 {
		errs = append(errs, "server.timeoutSeconds must be >= 1")
	}
	if cfg.Server.TokenCookie == "" || cfg.Server.TokenHeader == "" {
		errs = append(errs, "server.tokenCookie and server.tokenHeader must be set")
	}

	switch cfg.Review.DescriptionSource {
	case "submit", "confirm":
		// valid
	default:
		errs = append(errs, "review.descriptionSource must be one of: submit, confirm")
	}

	if cfg.History.Enabled {
		if cfg.History.MaxMessagesPerConversation < 1 {
			errs = append(errs, "history.maxMessagesPerConversation must be >= 1")
		}
		if cfg.History.RetentionDays < 1 {
			errs = append(errs, "history.retentionDays must be >= 1")
		}
	}

	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token == "" {
		errs = append(errs, "channels.telegram.token is required when telegram is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
