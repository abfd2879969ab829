package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/xiaot623/gogo/sessionrelay/internal/domain"
)

// SQLiteArchive keeps transcripts of ended sessions. It is a write-behind
// ledger only; live state never loads from it.
type SQLiteArchive struct {
	db *sql.DB
}

// NewSQLiteArchive opens (and migrates) the archive database.
func NewSQLiteArchive(dsn string) (*SQLiteArchive, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	archive := &SQLiteArchive{db: db}
	if err := archive.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return archive, nil
}

func (a *SQLiteArchive) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS archived_sessions (
			session_id TEXT PRIMARY KEY,
			title TEXT,
			description TEXT,
			consult_type TEXT,
			health_info_url TEXT,
			status TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			ended_at DATETIME,
			archived_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS archived_messages (
			session_id TEXT NOT NULL,
			message_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			sender TEXT NOT NULL,
			message_type INTEGER NOT NULL,
			content TEXT NOT NULL,
			send_time DATETIME NOT NULL,
			PRIMARY KEY (session_id, message_id),
			FOREIGN KEY (session_id) REFERENCES archived_sessions(session_id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_archived_messages_seq ON archived_messages(session_id, seq)`,
	}

	for _, m := range migrations {
		if _, err := a.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database connection.
func (a *SQLiteArchive) Close() error {
	return a.db.Close()
}

// ArchiveSession stores a transcript, replacing any earlier snapshot of
// the same session.
func (a *SQLiteArchive) ArchiveSession(ctx context.Context, session domain.Session, messages []domain.Message) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM archived_messages WHERE session_id = ?`, session.ID); err != nil {
		return fmt.Errorf("failed to clear archived messages: %w", err)
	}

	var endedAt interface{}
	if session.EndTime != nil {
		endedAt = *session.EndTime
	}
	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO archived_sessions
			(session_id, title, description, consult_type, health_info_url, status, created_at, ended_at, archived_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.Title, session.Description, session.ConsultType, session.HealthInfoURL,
		string(session.Status), session.CreateTime, endedAt, time.Now())
	if err != nil {
		return fmt.Errorf("failed to archive session: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO archived_messages (session_id, message_id, seq, sender, message_type, content, send_time)
			VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare message insert: %w", err)
	}
	defer stmt.Close()

	for i, msg := range messages {
		if _, err := stmt.ExecContext(ctx, session.ID, msg.ID, i, string(msg.Sender), int(msg.Type), msg.Content, msg.SendTime); err != nil {
			return fmt.Errorf("failed to archive message %s: %w", msg.ID, err)
		}
	}

	return tx.Commit()
}

// GetSession retrieves an archived session. Returns ErrSessionNotFound
// when nothing was archived under sessionID.
func (a *SQLiteArchive) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	var session domain.Session
	var title, description, consultType, healthInfoURL sql.NullString
	var status string
	var endedAt sql.NullTime
	err := a.db.QueryRowContext(ctx,
		`SELECT session_id, title, description, consult_type, health_info_url, status, created_at, ended_at
			FROM archived_sessions WHERE session_id = ?`, sessionID).
		Scan(&session.ID, &title, &description, &consultType, &healthInfoURL, &status, &session.CreateTime, &endedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("archived session %q: %w", sessionID, domain.ErrSessionNotFound)
	}
	if err != nil {
		return nil, err
	}
	session.Title = title.String
	session.Description = description.String
	session.ConsultType = consultType.String
	session.HealthInfoURL = healthInfoURL.String
	session.Status = domain.SessionStatus(status)
	if endedAt.Valid {
		t := endedAt.Time
		session.EndTime = &t
	}
	return &session, nil
}

// GetMessages retrieves an archived transcript in arrival order.
func (a *SQLiteArchive) GetMessages(ctx context.Context, sessionID string) ([]domain.Message, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT message_id, session_id, sender, message_type, content, send_time
			FROM archived_messages WHERE session_id = ? ORDER BY seq ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []domain.Message{}
	for rows.Next() {
		var msg domain.Message
		var sender string
		var msgType int
		if err := rows.Scan(&msg.ID, &msg.SessionID, &sender, &msgType, &msg.Content, &msg.SendTime); err != nil {
			return nil, err
		}
		msg.Sender = domain.Sender(sender)
		msg.Type = domain.MessageType(msgType)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
