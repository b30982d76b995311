package channel

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"paintsense/internal/advisor"
	"paintsense/internal/domain"
)

// Script is the non-interactive front end behind one-shot consultations:
// entries print as they settle and the review resolves itself with a
// fixed decision, so the whole flow runs without a prompt.
type Script struct {
	out      io.Writer
	decision bool
	logger   *slog.Logger

	mu     sync.Mutex
	input  string
	failed bool
}

type ScriptConfig struct {
	Out      io.Writer
	Decision bool
	Logger   *slog.Logger
}

func NewScript(cfg ScriptConfig) *Script {
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Script{
		out:      cfg.Out,
		decision: cfg.Decision,
		logger:   cfg.Logger,
	}
}

// Failed reports whether any step surfaced an error.
func (s *Script) Failed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed
}

func (s *Script) markFailed() {
	s.mu.Lock()
	s.failed = true
	s.mu.Unlock()
}

// ---- domain.View ----

func (s *Script) Append(role domain.Role, text string) domain.EntryHandle {
	if role == domain.RoleAssistant && text == advisor.ThinkingText {
		// Placeholder; the real text lands via SetText.
		return &scriptEntry{s: s, role: role}
	}
	s.print(role, text)
	return &scriptEntry{s: s, role: role}
}

func (s *Script) print(role domain.Role, text string) {
	switch role {
	case domain.RoleUser:
		fmt.Fprintf(s.out, "> %s\n", text)
	case domain.RolePaintSuggestion:
		fmt.Fprintf(s.out, "\n%s\n", text)
	default:
		fmt.Fprintln(s.out, text)
	}
}

func (s *Script) InputText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input
}

func (s *Script) SetInputText(text string) {
	s.mu.Lock()
	s.input = text
	s.mu.Unlock()
}

func (s *Script) ClearInput() {
	s.mu.Lock()
	s.input = ""
	s.mu.Unlock()
}

func (s *Script) FocusInput() {}

func (s *Script) Notify(text string) {
	fmt.Fprintln(s.out, text)
}

func (s *Script) Alert(text string) {
	s.markFailed()
	fmt.Fprintln(s.out, text)
}

// ---- domain.ReviewSurface ----

func (s *Script) Present(items []domain.ReviewItem) {
	for i, item := range items {
		fmt.Fprintf(s.out, "%d. %s", i+1, item.Attachment.Filename)
		if item.Description != "" {
			fmt.Fprintf(s.out, " — %s", item.Description)
		}
		fmt.Fprintln(s.out)
	}
}

func (s *Script) Hide() {}

// Rebind fires the scripted decision as soon as the controls are live.
func (s *Script) Rebind(onAccept, onReject func()) {
	if s.decision {
		fmt.Fprintln(s.out, "Accepting suggestion.")
		onAccept()
	} else {
		fmt.Fprintln(s.out, "Rejecting suggestion.")
		onReject()
	}
}

type scriptEntry struct {
	s    *Script
	role domain.Role
}

func (e *scriptEntry) SetText(text string) {
	if strings.HasPrefix(text, "Network error:") || strings.HasPrefix(text, "Error:") {
		e.s.markFailed()
	}
	e.s.print(e.role, text)
}
