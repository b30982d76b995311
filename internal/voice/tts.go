package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// TTSConfig configures the OpenAI-compatible text-to-speech backend.
type TTSConfig struct {
	APIBase string // e.g. "https://api.openai.com/v1"
	APIKey  string
	Model   string // e.g. "tts-1"
	Voice   string // e.g. "alloy"
	Logger  *slog.Logger
}

// TTS synthesizes spoken audio for assistant replies. It implements
// domain.Synthesizer.
type TTS struct {
	apiBase string
	apiKey  string
	model   string
	voice   string
	client  *http.Client
	logger  *slog.Logger
}

func NewTTS(cfg TTSConfig) *TTS {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "tts-1"
	}
	if cfg.Voice == "" {
		cfg.Voice = "alloy"
	}
	return &TTS{
		apiBase: cfg.APIBase,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		voice:   cfg.Voice,
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (t *TTS) Available() bool { return t.apiKey != "" }

// Synthesize renders text as an MP3 stream. The caller owns the returned
// reader and must close it.
func (t *TTS) Synthesize(ctx context.Context, text string) (io.ReadCloser, error) {
	payload, err := json.Marshal(map[string]string{
		"model":           t.model,
		"voice":           t.voice,
		"input":           text,
		"response_format": "mp3",
	})
	if err != nil {
		return nil, fmt.Errorf("encode speech request: %w", err)
	}

	url := t.apiBase + "/audio/speech"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("speech API request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("speech API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	t.logger.Debug("speech synthesis started", "text_len", len(text))
	return resp.Body, nil
}
