// Package transcript is the ordered, role-tagged message log for one
// conversation. It owns ordinal assignment; entries are immutable once
// their in-flight placeholder text has settled.
package transcript

import (
	"context"
	"log/slog"
	"sync"

	"paintsense/internal/domain"
)

// Recorder persists transcript entries. Optional; a nil recorder keeps the
// transcript in memory only for the session.
type Recorder interface {
	Record(ctx context.Context, conversationID string, msg domain.Message) error
	Amend(ctx context.Context, conversationID string, ordinal int, text string) error
}

// Entry is a live transcript entry. SetText supports the placeholder flow:
// the "Thinking…" entry's text is replaced in place when the reply lands.
type Entry struct {
	log     *Log
	ordinal int
}

func (e *Entry) SetText(text string) {
	e.log.amend(e.ordinal, text)
}

// Message returns a snapshot of the entry.
func (e *Entry) Message() domain.Message {
	e.log.mu.Lock()
	defer e.log.mu.Unlock()
	return e.log.messages[e.ordinal]
}

// Log is the transcript sink. Appends are ordered; there is no removal
// short of session teardown.
type Log struct {
	conversationID string
	recorder       Recorder
	logger         *slog.Logger

	mu       sync.Mutex
	messages []domain.Message
}

func NewLog(conversationID string, recorder Recorder, logger *slog.Logger) *Log {
	return &Log{
		conversationID: conversationID,
		recorder:       recorder,
		logger:         logger,
	}
}

func (l *Log) ConversationID() string { return l.conversationID }

// Append adds a role-tagged entry and returns its handle.
func (l *Log) Append(role domain.Role, text string) *Entry {
	l.mu.Lock()
	msg := domain.Message{Role: role, Text: text, Ordinal: len(l.messages)}
	l.messages = append(l.messages, msg)
	l.mu.Unlock()

	if l.recorder != nil {
		if err := l.recorder.Record(context.Background(), l.conversationID, msg); err != nil {
			l.logger.Warn("failed to record transcript entry", "ordinal", msg.Ordinal, "err", err)
		}
	}
	return &Entry{log: l, ordinal: msg.Ordinal}
}

// Messages returns a copy of the transcript in append order.
func (l *Log) Messages() []domain.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.Message, len(l.messages))
	copy(out, l.messages)
	return out
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.messages)
}

func (l *Log) amend(ordinal int, text string) {
	l.mu.Lock()
	if ordinal < 0 || ordinal >= len(l.messages) {
		l.mu.Unlock()
		return
	}
	l.messages[ordinal].Text = text
	l.mu.Unlock()

	if l.recorder != nil {
		if err := l.recorder.Amend(context.Background(), l.conversationID, ordinal, text); err != nil {
			l.logger.Warn("failed to amend transcript entry", "ordinal", ordinal, "err", err)
		}
	}
}
