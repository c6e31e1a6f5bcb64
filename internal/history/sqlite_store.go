package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"discussion-agent/internal/discussion"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS messages (
	seq            INTEGER PRIMARY KEY AUTOINCREMENT,
	tenant_id      TEXT    NOT NULL,
	discussion_id  TEXT    NOT NULL,
	id             TEXT    NOT NULL,
	agent_id       TEXT    NOT NULL,
	content        TEXT    NOT NULL,
	type           TEXT    NOT NULL,
	action_results TEXT,
	created_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS messages_by_discussion ON messages (tenant_id, discussion_id, seq);
`

const selectColumns = `seq, id, agent_id, content, type, action_results, created_at`

// SQLiteStore persists discussion history in a single SQLite database. Insertion order
// (the seq column) is the authoritative message order.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and migrates) the database at path. ":memory:" is accepted for tests.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("history: sqlite path must be provided")
	}

	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: open sqlite: %w", err)
	}
	if path == ":memory:" {
		// each in-memory connection is a separate database
		db.SetMaxOpenConns(1)
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: migrate sqlite: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// GetHistory returns messages in insertion order, optionally only the most recent ones.
func (s *SQLiteStore) GetHistory(ctx context.Context, key ConversationKey, opts ReadOptions) (MessageBatch, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	query := `SELECT ` + selectColumns + ` FROM messages WHERE tenant_id = ? AND discussion_id = ? ORDER BY seq ASC`
	args := []any{key.TenantID, key.DiscussionID}
	if opts.LimitMessages > 0 {
		query = `SELECT * FROM (SELECT ` + selectColumns + ` FROM messages WHERE tenant_id = ? AND discussion_id = ? ORDER BY seq DESC LIMIT ?) ORDER BY seq ASC`
		args = append(args, opts.LimitMessages)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history: query messages: %w", err)
	}
	defer rows.Close()

	messages := MessageBatch{}
	for rows.Next() {
		var (
			seq       int64
			msg       discussion.Message
			msgType   string
			results   sql.NullString
			createdAt int64
		)
		if err := rows.Scan(&seq, &msg.ID, &msg.AgentID, &msg.Content, &msgType, &results, &createdAt); err != nil {
			return nil, fmt.Errorf("history: scan message: %w", err)
		}
		msg.Type = discussion.MessageType(msgType)
		msg.CreatedAt = time.Unix(0, createdAt).UTC()
		if results.Valid && results.String != "" {
			if err := json.Unmarshal([]byte(results.String), &msg.ActionResults); err != nil {
				return nil, fmt.Errorf("history: decode action results for %s: %w", msg.ID, err)
			}
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterate messages: %w", err)
	}
	return messages, nil
}

// AppendMessages inserts the batch atomically.
func (s *SQLiteStore) AppendMessages(ctx context.Context, key ConversationKey, messages MessageBatch) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if len(messages) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("history: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO messages (tenant_id, discussion_id, id, agent_id, content, type, action_results, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("history: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, msg := range messages {
		var results sql.NullString
		if len(msg.ActionResults) > 0 {
			data, err := json.Marshal(msg.ActionResults)
			if err != nil {
				return fmt.Errorf("history: encode action results for %s: %w", msg.ID, err)
			}
			results = sql.NullString{String: string(data), Valid: true}
		}
		msgType := msg.Type
		if msgType == "" {
			msgType = discussion.MessageNormal
		}
		if _, err := stmt.ExecContext(ctx, key.TenantID, key.DiscussionID, msg.ID, msg.AgentID, msg.Content, string(msgType), results, msg.CreatedAt.UnixNano()); err != nil {
			return fmt.Errorf("history: insert message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("history: commit: %w", err)
	}
	return nil
}

// Clear deletes every message of the discussion.
func (s *SQLiteStore) Clear(ctx context.Context, key ConversationKey) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE tenant_id = ? AND discussion_id = ?`, key.TenantID, key.DiscussionID); err != nil {
		return fmt.Errorf("history: clear: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
