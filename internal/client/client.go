package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"paintsense/internal/domain"
)

// Envelope is the JSON envelope both advice endpoints return.
// Reply is kept raw because its shape varies: the first-phase call encodes
// it as a JSON string, the confirmation call as a structured object.
type Envelope struct {
	OK    bool            `json:"ok"`
	Reply json.RawMessage `json:"reply,omitempty"`
	Error string          `json:"error,omitempty"`
}

// Config configures the advice-service client.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	TokenCookie string // session cookie carrying the anti-forgery token
	TokenHeader string // request header the token is echoed into
	Logger      *slog.Logger
}

// Client talks to the paint-advice service: one multipart POST for the
// initial consultation, one for the confirmation decision. Single attempt
// per call; retries are out of scope, the user recovers by resubmitting.
type Client struct {
	baseURL     string
	tokenHeader string
	session     *Session
	http        *http.Client
	logger      *slog.Logger
}

func New(cfg Config) (*Client, error) {
	if cfg.TokenCookie == "" {
		cfg.TokenCookie = "csrftoken"
	}
	if cfg.TokenHeader == "" {
		cfg.TokenHeader = "X-CSRFToken"
	}
	session, err := NewSession(cfg.BaseURL, cfg.TokenCookie)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		tokenHeader: cfg.TokenHeader,
		session:     session,
		http:        sharedHTTPClient(cfg.Timeout, session.Jar()),
		logger:      cfg.Logger,
	}, nil
}

// Prime fetches the service index so the session cookie jar holds a fresh
// anti-forgery token before the first mutating call.
func (c *Client) Prime(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("create prime request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("prime session: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if c.session.Token() == "" {
		return fmt.Errorf("service did not set the %s cookie", c.session.cookieName)
	}
	c.logger.Debug("session primed", "base", c.baseURL)
	return nil
}

// Submit posts the consultation bundle to /api/agent/.
func (c *Client) Submit(ctx context.Context, bundle domain.Bundle) (*Envelope, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if err := writer.WriteField("message", bundle.Text); err != nil {
		return nil, fmt.Errorf("write message field: %w", err)
	}
	if err := attachFiles(writer, "images", bundle.Images); err != nil {
		return nil, err
	}
	if err := attachFiles(writer, "docs", bundle.Docs); err != nil {
		return nil, err
	}
	writer.Close()

	return c.post(ctx, "/api/agent/", &body, writer.FormDataContentType())
}

// Confirm posts the user's decision plus the original reply text and image
// set to /api/agent/confirm/. The attachments are the same handles sent on
// submission, re-sent without copying.
func (c *Client) Confirm(ctx context.Context, decision bool, roomDescription string, images []domain.Attachment) (*Envelope, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if err := writer.WriteField("confirm", strconv.FormatBool(decision)); err != nil {
		return nil, fmt.Errorf("write confirm field: %w", err)
	}
	if err := writer.WriteField("room_description", roomDescription); err != nil {
		return nil, fmt.Errorf("write room_description field: %w", err)
	}
	if err := attachFiles(writer, "images", images); err != nil {
		return nil, err
	}
	writer.Close()

	return c.post(ctx, "/api/agent/confirm/", &body, writer.FormDataContentType())
}

func (c *Client) post(ctx context.Context, path string, body io.Reader, contentType string) (*Envelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(c.tokenHeader, c.session.Token())

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("advice service request: %w", err)
	}
	defer resp.Body.Close()

	var env Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode advice reply (%s): %w", resp.Status, err)
	}

	// ok=false with an empty error string falls back to the transport status
	// text so the user always sees something actionable.
	if !env.OK && env.Error == "" {
		env.Error = resp.Status
	}

	c.logger.Info("advice call complete",
		"path", path,
		"ok", env.OK,
		"status", resp.StatusCode,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return &env, nil
}

func attachFiles(writer *multipart.Writer, field string, files []domain.Attachment) error {
	for _, f := range files {
		part, err := createFormFile(writer, field, f.Filename, f.MimeType)
		if err != nil {
			return fmt.Errorf("create %s part: %w", field, err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return fmt.Errorf("write %s part: %w", field, err)
		}
	}
	return nil
}

// createFormFile is multipart.Writer.CreateFormFile with an explicit MIME
// type so the service sees image/* instead of application/octet-stream.
func createFormFile(writer *multipart.Writer, field, filename, mimeType string) (io.Writer, error) {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	h.Set("Content-Type", mimeType)
	return writer.CreatePart(h)
}

// sharedHTTPClient returns an HTTP client with connection pooling and the
// session cookie jar attached.
func sharedHTTPClient(timeout time.Duration, jar http.CookieJar) *http.Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
		Jar:       jar,
	}
}
