package channel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"paintsense/internal/advisor"
	"paintsense/internal/domain"
	"paintsense/internal/render"
)

// Pipeline is the slice of the advisor the channels drive.
type Pipeline interface {
	Submit(ctx context.Context, bundle domain.Bundle)
	LastRecommendations() domain.RecommendationPayload
}

// VoiceControl is the optional voice surface a channel exposes to the
// user. Nil means the build has no voice features wired.
type VoiceControl interface {
	CanListen() bool
	CanSpeak() bool
	ReplyEnabled() bool
	SetReplyEnabled(on bool)
	Transcribe(ctx context.Context, audio io.Reader, filename string) error
	TranscribeText(ctx context.Context, audio io.Reader, filename string) (string, error)
}

// CLI is the interactive terminal front end. It is both the view the
// advisor writes into and the review surface it presents suggestions on.
type CLI struct {
	pipeline Pipeline
	voice    VoiceControl
	logger   *slog.Logger
	in       io.Reader
	out      io.Writer

	mu      sync.Mutex
	pending string            // staged input text (voice transcripts land here)
	images  []domain.Attachment
	docs    []domain.Attachment

	reviewMu sync.Mutex
	onAccept func()
	onReject func()

	thinking  bool
	thinkMu   sync.Mutex
	thinkStop chan struct{}
}

type CLIConfig struct {
	Pipeline Pipeline
	Voice    VoiceControl
	Logger   *slog.Logger
	In       io.Reader
	Out      io.Writer
}

func NewCLI(cfg CLIConfig) *CLI {
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &CLI{
		pipeline: cfg.Pipeline,
		voice:    cfg.Voice,
		logger:   cfg.Logger,
		in:       cfg.In,
		out:      cfg.Out,
	}
}

func (c *CLI) Name() string { return "cli" }

// Bind attaches the pipeline after construction. The advisor needs the
// CLI as its view before the CLI can point at the advisor, so wiring
// happens in two steps.
func (c *CLI) Bind(p Pipeline) { c.pipeline = p }

// SetVoice attaches the voice control, which in turn holds the CLI as its
// input buffer.
func (c *CLI) SetVoice(v VoiceControl) { c.voice = v }

// Start runs the interactive REPL and blocks until EOF, /quit or context
// cancellation.
func (c *CLI) Start(ctx context.Context) error {
	fmt.Fprintln(c.out, "PaintSense CLI. Describe your room and press Enter. Type /help for commands.")
	c.prompt()

	scanner := bufio.NewScanner(c.in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return err
			}
			return nil // EOF
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			c.prompt()
			continue
		}

		if c.resolveReview(line) {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := c.handleCommand(ctx, line); quit {
				return nil
			}
			continue
		}

		c.submit(ctx, line)
	}
}

// resolveReview consumes a y/n answer while a suggestion is awaiting a
// decision. Any other input falls through and becomes a new submission,
// which supersedes the pending review.
func (c *CLI) resolveReview(line string) bool {
	c.reviewMu.Lock()
	accept, reject := c.onAccept, c.onReject
	c.reviewMu.Unlock()
	if accept == nil {
		return false
	}
	switch strings.ToLower(line) {
	case "y", "yes":
		accept()
		return true
	case "n", "no":
		reject()
		return true
	}
	return false
}

func (c *CLI) handleCommand(ctx context.Context, line string) (quit bool) {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/quit", "/exit", "/q":
		c.logger.Info("user requested quit")
		return true
	case "/help":
		c.printHelp()
	case "/image":
		c.attach(arg, true)
	case "/doc":
		c.attach(arg, false)
	case "/send":
		c.submit(ctx, "")
	case "/voice":
		c.toggleVoice()
	case "/mic":
		c.transcribeFile(ctx, arg)
	case "/swatches":
		c.printSwatches()
	default:
		fmt.Fprintln(c.out, "Unknown command. Type /help for available commands.")
		c.prompt()
	}
	return false
}

func (c *CLI) printHelp() {
	fmt.Fprintln(c.out, `Commands:
  /image PATH   Attach a room photo to the next message
  /doc PATH     Attach a document to the next message
  /send         Send staged attachments (with any staged text)
  /mic PATH     Transcribe an audio file into the input buffer
  /voice        Toggle spoken replies
  /swatches     Show hex codes from the last recommendation
  /quit         Exit`)
	c.prompt()
}

func (c *CLI) attach(path string, isImage bool) {
	if path == "" {
		fmt.Fprintln(c.out, "Usage: /image PATH or /doc PATH")
		c.prompt()
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(c.out, "Cannot read %s: %v\n", path, err)
		c.prompt()
		return
	}
	att := domain.Attachment{
		Filename: filepath.Base(path),
		MimeType: MimeByExt(path),
		Data:     data,
	}
	c.mu.Lock()
	if isImage {
		c.images = append(c.images, att)
	} else {
		c.docs = append(c.docs, att)
	}
	nImages, nDocs := len(c.images), len(c.docs)
	c.mu.Unlock()

	fmt.Fprintf(c.out, "Attached %s (%d bytes). Staged: %d image(s), %d doc(s).\n",
		att.Filename, len(att.Data), nImages, nDocs)
	c.prompt()
}

// submit builds a bundle from the typed line plus staged input and
// attachments, then runs it through the pipeline synchronously. The
// spinner covers the round trip.
func (c *CLI) submit(ctx context.Context, typed string) {
	c.mu.Lock()
	text := c.pending
	if typed != "" {
		if text != "" {
			text += " "
		}
		text += typed
	}
	bundle := domain.Bundle{
		Text:   text,
		Images: c.images,
		Docs:   c.docs,
	}
	c.mu.Unlock()

	c.pipeline.Submit(ctx, bundle)
	c.prompt()
}

func (c *CLI) toggleVoice() {
	if c.voice == nil || !c.voice.CanSpeak() {
		fmt.Fprintln(c.out, "Voice replies are not available (no TTS configured).")
		c.prompt()
		return
	}
	on := !c.voice.ReplyEnabled()
	c.voice.SetReplyEnabled(on)
	if on {
		fmt.Fprintln(c.out, "Voice replies on.")
	} else {
		fmt.Fprintln(c.out, "Voice replies off.")
	}
	c.prompt()
}

func (c *CLI) transcribeFile(ctx context.Context, path string) {
	if c.voice == nil || !c.voice.CanListen() {
		fmt.Fprintln(c.out, "Transcription is not available (no STT configured).")
		c.prompt()
		return
	}
	if path == "" {
		fmt.Fprintln(c.out, "Usage: /mic PATH")
		c.prompt()
		return
	}
	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(c.out, "Cannot read %s: %v\n", path, err)
		c.prompt()
		return
	}
	defer f.Close()

	if err := c.voice.Transcribe(ctx, f, filepath.Base(path)); err != nil {
		fmt.Fprintf(c.out, "Transcription failed: %v\n", err)
	}
	c.prompt()
}

func (c *CLI) printSwatches() {
	payload := c.pipeline.LastRecommendations()
	codes := render.Swatches(render.Recommendations(payload))
	if len(codes) == 0 {
		fmt.Fprintln(c.out, "No recommendation yet.")
	} else {
		fmt.Fprintln(c.out, strings.Join(codes, " "))
	}
	c.prompt()
}

// ---- domain.View ----

// Append prints an entry. The assistant's thinking placeholder becomes a
// spinner instead of a printed line; the eventual SetText replaces it.
func (c *CLI) Append(role domain.Role, text string) domain.EntryHandle {
	if role == domain.RoleAssistant && text == advisor.ThinkingText {
		c.startThinking()
		return &cliEntry{c: c, role: role}
	}
	c.printEntry(role, text)
	return &cliEntry{c: c, role: role}
}

func (c *CLI) printEntry(role domain.Role, text string) {
	c.stopThinking()
	switch role {
	case domain.RoleUser:
		// Already on screen as the typed line; only surface the
		// attachments-only echo.
		if text == advisor.EmptyTextEcho {
			fmt.Fprintln(c.out, text)
		}
	case domain.RoleSuggestion:
		fmt.Fprintln(c.out, text)
	case domain.RolePaintSuggestion:
		fmt.Fprintln(c.out, "\n--- Paint Recommendation ---")
		fmt.Fprintln(c.out, text)
		fmt.Fprintln(c.out, "----------------------------")
	default:
		fmt.Fprintf(c.out, "\nPaintSense: %s\n", text)
	}
}

func (c *CLI) InputText() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

func (c *CLI) SetInputText(text string) {
	c.mu.Lock()
	c.pending = text
	c.mu.Unlock()
	fmt.Fprintf(c.out, "[input] %s\n", text)
}

func (c *CLI) ClearInput() {
	c.mu.Lock()
	c.pending = ""
	c.images = nil
	c.docs = nil
	c.mu.Unlock()
}

func (c *CLI) FocusInput() { c.prompt() }

func (c *CLI) Notify(text string) {
	c.stopThinking()
	fmt.Fprintf(c.out, "✔ %s\n", text)
}

func (c *CLI) Alert(text string) {
	c.stopThinking()
	fmt.Fprintf(c.out, "✖ %s\n", text)
}

// ---- domain.ReviewSurface ----

func (c *CLI) Present(items []domain.ReviewItem) {
	c.stopThinking()
	fmt.Fprintln(c.out, "\n--- Suggestion ---")
	if len(items) == 0 {
		fmt.Fprintln(c.out, "(no attachments)")
	}
	for i, item := range items {
		fmt.Fprintf(c.out, "%d. %s\n", i+1, item.Attachment.Filename)
		if item.Description != "" {
			fmt.Fprintf(c.out, "   %s\n", item.Description)
		}
	}
	fmt.Fprintln(c.out, "------------------")
	fmt.Fprint(c.out, "Accept this suggestion? [y/n] ")
}

func (c *CLI) Hide() {
	c.reviewMu.Lock()
	c.onAccept, c.onReject = nil, nil
	c.reviewMu.Unlock()
}

func (c *CLI) Rebind(onAccept, onReject func()) {
	c.reviewMu.Lock()
	c.onAccept, c.onReject = onAccept, onReject
	c.reviewMu.Unlock()
}

// ---- internals ----

type cliEntry struct {
	c    *CLI
	role domain.Role
}

func (e *cliEntry) SetText(text string) {
	e.c.stopThinking()
	fmt.Fprint(e.c.out, "\r\033[K")
	e.c.printEntry(e.role, text)
}

func (c *CLI) prompt() {
	fmt.Fprint(c.out, "You> ")
}

func (c *CLI) startThinking() {
	c.thinkMu.Lock()
	defer c.thinkMu.Unlock()
	if c.thinking {
		return
	}
	c.thinking = true
	c.thinkStop = make(chan struct{})
	go func(stop chan struct{}) {
		frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
		i := 0
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				fmt.Fprintf(c.out, "\r%s %s", frames[i%len(frames)], advisor.ThinkingText)
				i++
			}
		}
	}(c.thinkStop)
}

func (c *CLI) stopThinking() {
	c.thinkMu.Lock()
	defer c.thinkMu.Unlock()
	if !c.thinking {
		return
	}
	c.thinking = false
	close(c.thinkStop)
}

// MimeByExt maps a file extension to a content type, defaulting to
// octet-stream for anything unrecognized.
func MimeByExt(path string) string {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return "application/octet-stream"
}
