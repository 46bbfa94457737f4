package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"local-chat/internal/domain"
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		text TEXT NOT NULL,
		is_from_user INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_messages_created
		ON messages(created_at, id);
`

// SQLiteBackend stores the history in a single SQLite table.
type SQLiteBackend struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path. Use ":memory:" for a
// throwaway database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteBackend, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("repository: sqlite path must not be empty")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("repository: open sqlite: %w", err)
	}
	// One connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("repository: migrate sqlite: %w", err)
	}
	return &SQLiteBackend{db: db}, nil
}

func (b *SQLiteBackend) Commit(ctx context.Context, batch Batch) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("repository: sqlite begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, msg := range batch.Puts {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO messages (id, text, is_from_user, created_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET text = excluded.text
		`, msg.ID, msg.Text, msg.IsFromUser, msg.Timestamp.UnixNano())
		if err != nil {
			return fmt.Errorf("repository: sqlite put %s: %w", msg.ID, err)
		}
	}
	for _, msg := range batch.Deletes {
		if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, msg.ID); err != nil {
			return fmt.Errorf("repository: sqlite delete %s: %w", msg.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("repository: sqlite commit: %w", err)
	}
	return nil
}

func (b *SQLiteBackend) List(ctx context.Context) ([]domain.ChatMessage, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT id, text, is_from_user, created_at
		FROM messages
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("repository: sqlite list: %w", err)
	}
	defer rows.Close()

	var msgs []domain.ChatMessage
	for rows.Next() {
		var (
			msg       domain.ChatMessage
			createdAt int64
		)
		if err := rows.Scan(&msg.ID, &msg.Text, &msg.IsFromUser, &createdAt); err != nil {
			return nil, fmt.Errorf("repository: sqlite scan: %w", err)
		}
		msg.Timestamp = timeFromNanos(createdAt)
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
