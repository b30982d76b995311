package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"
)

// STTConfig configures the Whisper-compatible speech-to-text backend.
type STTConfig struct {
	APIBase  string // e.g. "https://api.groq.com/openai/v1" or "https://api.openai.com/v1"
	APIKey   string
	Model    string // e.g. "whisper-large-v3" (Groq) or "whisper-1" (OpenAI)
	Language string // optional ISO-639-1 language code
	Logger   *slog.Logger
}

// STT transcribes recorded audio through a Whisper-compatible API. It
// implements domain.Transcriber; availability is an API-key check so the
// core can feature-detect without knowing the backend.
type STT struct {
	apiBase  string
	apiKey   string
	model    string
	language string
	client   *http.Client
	logger   *slog.Logger
}

func NewSTT(cfg STTConfig) *STT {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.groq.com/openai/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "whisper-large-v3"
	}
	return &STT{
		apiBase:  cfg.APIBase,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		language: cfg.Language,
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *STT) Available() bool { return s.apiKey != "" }

// Transcribe converts audio data to text. filename should carry the
// extension (e.g. "clip.ogg") so the API can sniff the container.
func (s *STT) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return "", fmt.Errorf("copy audio data: %w", err)
	}

	writer.WriteField("model", s.model)
	writer.WriteField("response_format", "json")
	if s.language != "" {
		writer.WriteField("language", s.language)
	}
	writer.Close()

	url := s.apiBase + "/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("transcription API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode transcription response: %w", err)
	}

	s.logger.Info("transcription complete", "text_len", len(result.Text))
	return result.Text, nil
}
