package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_JSONOverridesDefaults(t *testing.T) {
	path := writeConfig(t, "config.json", `{
		"server": {"baseUrl": "https://paint.example.com", "timeoutSeconds": 30},
		"review": {"descriptionSource": "confirm"}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.BaseURL != "https://paint.example.com" {
		t.Fatalf("baseUrl = %q", cfg.Server.BaseURL)
	}
	if cfg.Server.TimeoutSeconds != 30 {
		t.Fatalf("timeoutSeconds = %d", cfg.Server.TimeoutSeconds)
	}
	if cfg.Review.DescriptionSource != "confirm" {
		t.Fatalf("descriptionSource = %q", cfg.Review.DescriptionSource)
	}
	// Untouched sections keep their defaults.
	if cfg.Server.TokenCookie != "csrftoken" || cfg.Server.TokenHeader != "X-CSRFToken" {
		t.Fatalf("token defaults lost: %+v", cfg.Server)
	}
}

func TestLoad_YAMLByExtension(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
server:
  baseUrl: "http://127.0.0.1:9000"
voice:
  replyEnabled: true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.BaseURL != "http://127.0.0.1:9000" {
		t.Fatalf("baseUrl = %q", cfg.Server.BaseURL)
	}
	if !cfg.Voice.ReplyEnabled {
		t.Fatal("voice.replyEnabled not parsed from YAML")
	}
}

func TestLoad_RejectsInvalidConfig(t *testing.T) {
	path := writeConfig(t, "config.json", `{"server": {"baseUrl": "ftp://nope"}}`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for non-http base URL")
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("PAINTSENSE_TEST_TOKEN", "secret-1")
	os.Unsetenv("PAINTSENSE_TEST_MISSING")

	cases := []struct{ in, want string }{
		{"${PAINTSENSE_TEST_TOKEN}", "secret-1"},
		{"${PAINTSENSE_TEST_MISSING:-fallback}", "fallback"},
		{"${PAINTSENSE_TEST_TOKEN:-fallback}", "secret-1"},
		{"${PAINTSENSE_TEST_MISSING}", "${PAINTSENSE_TEST_MISSING}"},
		{"plain text", "plain text"},
	}
	for _, c := range cases {
		if got := ExpandEnvVars(c.in); got != c.want {
			t.Fatalf("ExpandEnvVars(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestValidate_DescriptionSource(t *testing.T) {
	cfg := Defaults()
	cfg.Review.DescriptionSource = "sometimes"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for unknown descriptionSource")
	}
	cfg.Review.DescriptionSource = "submit"
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidate_TelegramNeedsToken(t *testing.T) {
	cfg := Defaults()
	cfg.Channels.Telegram.Enabled = true
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for enabled telegram without token")
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := Defaults()
	cfg.Server.BaseURL = "http://localhost:8123"
	cfg.History.Enabled = true
	cfg.History.DBPath = filepath.Join(t.TempDir(), "h.db")

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Server.BaseURL != "http://localhost:8123" {
		t.Fatalf("baseUrl = %q", loaded.Server.BaseURL)
	}
	if !loaded.History.Enabled {
		t.Fatal("history.enabled lost in round trip")
	}
}

func TestGetByPath(t *testing.T) {
	cfg := Defaults()
	val, err := GetByPath(cfg, "server.baseUrl")
	if err != nil {
		t.Fatalf("GetByPath: %v", err)
	}
	if val != cfg.Server.BaseURL {
		t.Fatalf("got %v", val)
	}
	if _, err := GetByPath(cfg, "server.noSuchKey"); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestSetByPath_CoercesAndRevalidates(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "server.timeoutSeconds", "45"); err != nil {
		t.Fatalf("SetByPath: %v", err)
	}
	if cfg.Server.TimeoutSeconds != 45 {
		t.Fatalf("timeoutSeconds = %d", cfg.Server.TimeoutSeconds)
	}

	if err := SetByPath(cfg, "review.descriptionSource", "bogus"); err == nil {
		t.Fatal("expected validation failure for bogus descriptionSource")
	}
}

func TestSanitize_MasksSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Voice.STT.APIKey = "gsk_live_abcdef123456"
	cfg.Channels.Telegram.Token = "7123456:AAAbbbCCC"

	s := Sanitize(cfg)
	if s.Voice.STT.APIKey == cfg.Voice.STT.APIKey {
		t.Fatal("STT API key not masked")
	}
	if strings.Contains(s.Channels.Telegram.Token, "AAAbbbCCC") {
		t.Fatalf("telegram token leaked: %q", s.Channels.Telegram.Token)
	}
	// The original must not be mutated.
	if cfg.Voice.STT.APIKey != "gsk_live_abcdef123456" {
		t.Fatal("Sanitize mutated the source config")
	}
}

func TestFlexStringList_MixedTypes(t *testing.T) {
	path := writeConfig(t, "config.json", `{
		"channels": {"telegram": {"allowFrom": ["123", 456]}}
	}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	got := cfg.Channels.Telegram.AllowFrom
	if len(got) != 2 || got[0] != "123" || got[1] != "456" {
		t.Fatalf("allowFrom = %v", got)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	if got := ExpandPath("~/x.db"); got != filepath.Join(home, "x.db") {
		t.Fatalf("got %q", got)
	}
	if got := ExpandPath("/abs/path"); got != "/abs/path" {
		t.Fatalf("got %q", got)
	}
}
