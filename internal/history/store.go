// Package history is the optional SQLite-backed transcript store. It keeps
// a durable copy of each conversation's messages on the client machine;
// the advice service itself never sees it.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"paintsense/internal/domain"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements transcript.Recorder on a local SQLite file.
type SQLiteStore struct {
	db          *sql.DB
	maxMessages int
	logger      *slog.Logger
}

// NewSQLiteStore opens (or creates) the store at dbPath. maxMessages caps
// each conversation's stored window; older entries are trimmed on write.
// Values <= 0 fall back to a 200-message cap.
func NewSQLiteStore(dbPath string, maxMessages int, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if maxMessages <= 0 {
		maxMessages = 200
	}
	store := &SQLiteStore{db: db, maxMessages: maxMessages, logger: logger}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id          TEXT PRIMARY KEY,
		started_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS messages (
		conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		ordinal         INTEGER NOT NULL,
		role            TEXT NOT NULL,
		text            TEXT,
		created_at      DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (conversation_id, ordinal)
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conv ON messages(conversation_id, ordinal);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Record persists one transcript entry, creating the conversation row on
// first use.
func (s *SQLiteStore) Record(ctx context.Context, conversationID string, msg domain.Message) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO conversations (id) VALUES (?)`, conversationID,
	); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO messages (conversation_id, ordinal, role, text, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		conversationID, msg.Ordinal, string(msg.Role), msg.Text, time.Now(),
	); err != nil {
		return err
	}
	// Trim the conversation to the configured window, oldest entries first.
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM messages
		 WHERE conversation_id = ?
		   AND ordinal <= (SELECT MAX(ordinal) FROM messages WHERE conversation_id = ?) - ?`,
		conversationID, conversationID, s.maxMessages,
	)
	return err
}

// Amend replaces the text of an already-recorded entry (placeholder flow).
func (s *SQLiteStore) Amend(ctx context.Context, conversationID string, ordinal int, text string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE messages SET text = ? WHERE conversation_id = ? AND ordinal = ?`,
		text, conversationID, ordinal,
	)
	return err
}

// Messages returns a conversation's entries in ordinal order, capped at
// limit (most recent kept). A limit <= 0 uses the store's message window.
func (s *SQLiteStore) Messages(ctx context.Context, conversationID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = s.maxMessages
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT ordinal, role, text FROM messages
		 WHERE conversation_id = ?
		 ORDER BY ordinal DESC LIMIT ?`, conversationID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []domain.Message
	for rows.Next() {
		var m domain.Message
		var role string
		if err := rows.Scan(&m.Ordinal, &role, &m.Text); err != nil {
			return nil, err
		}
		m.Role = domain.Role(role)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to ordinal order
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// ListConversations returns recent conversation IDs, newest first.
func (s *SQLiteStore) ListConversations(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM conversations ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Prune removes conversations older than the retention window.
func (s *SQLiteStore) Prune(ctx context.Context, retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM messages WHERE conversation_id IN
		 (SELECT id FROM conversations WHERE started_at < ?)`, cutoff,
	); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM conversations WHERE started_at < ?`, cutoff,
	)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
