// Package storage is the durable side of the session store plus the audit
// log, backed by SQLite.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/VivekReddy2001/telegram-quiz-bot-render/internal/session"
	_ "modernc.org/sqlite"
)

// AuditRecord is one handled-event entry in the append-only audit log.
type AuditRecord struct {
	ID        string
	UserID    int64
	Kind      string
	Outcome   string
	Detail    string
	CreatedAt time.Time
}

// Store implements session.Repository over SQLite and appends audit
// records. Reconnect rebuilds the connection pool; the health monitor calls
// it during remediation.
type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	db, err := open(path)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db, path: path}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return store, nil
}

func open(path string) (*sql.DB, error) {
	// WAL keeps concurrent readers off the writers' backs.
	dsn := path + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

func (s *Store) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS sessions (
		user_id INTEGER PRIMARY KEY,
		chat_id INTEGER NOT NULL DEFAULT 0,
		state TEXT NOT NULL,
		anonymous INTEGER NOT NULL DEFAULT 1,
		last_activity INTEGER NOT NULL,
		requests INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_last_activity ON sessions(last_activity);

	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		kind TEXT NOT NULL,
		outcome TEXT NOT NULL,
		detail TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_log_user ON audit_log(user_id, created_at);
	`
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(query); err != nil {
		return err
	}
	return nil
}

func (s *Store) conn() *sql.DB {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db
}

// LoadSession implements session.Repository.
func (s *Store) LoadSession(ctx context.Context, userID int64) (session.Session, bool, error) {
	row := s.conn().QueryRowContext(ctx, `
		SELECT user_id, chat_id, state, anonymous, last_activity, requests
		FROM sessions WHERE user_id = ?`, userID)

	var sess session.Session
	var state string
	var anonymous int
	var lastActivity int64
	err := row.Scan(&sess.UserID, &sess.ChatID, &state, &anonymous, &lastActivity, &sess.Requests)
	if err == sql.ErrNoRows {
		return session.Session{}, false, nil
	}
	if err != nil {
		return session.Session{}, false, fmt.Errorf("load session %d: %w", userID, err)
	}
	sess.State = session.State(state)
	sess.Anonymous = anonymous != 0
	sess.LastActivity = time.Unix(lastActivity, 0).UTC()
	return sess, true, nil
}

// SaveSession implements session.Repository.
func (s *Store) SaveSession(ctx context.Context, sess session.Session) error {
	anonymous := 0
	if sess.Anonymous {
		anonymous = 1
	}
	_, err := s.conn().ExecContext(ctx, `
		INSERT INTO sessions (user_id, chat_id, state, anonymous, last_activity, requests, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			chat_id = excluded.chat_id,
			state = excluded.state,
			anonymous = excluded.anonymous,
			last_activity = excluded.last_activity,
			requests = excluded.requests,
			updated_at = excluded.updated_at`,
		sess.UserID, sess.ChatID, string(sess.State), anonymous,
		sess.LastActivity.Unix(), sess.Requests, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("save session %d: %w", sess.UserID, err)
	}
	return nil
}

// AppendAudit writes one audit record. Callers treat this as
// fire-and-forget; a failed append must never fail the event it describes.
func (s *Store) AppendAudit(ctx context.Context, rec AuditRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := s.conn().ExecContext(ctx, `
		INSERT INTO audit_log (id, user_id, kind, outcome, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, rec.Kind, rec.Outcome, rec.Detail, rec.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("append audit record: %w", err)
	}
	return nil
}

// Reconnect closes and reopens the connection pool. Safe to call repeatedly.
func (s *Store) Reconnect(ctx context.Context) error {
	db, err := open(s.path)
	if err != nil {
		return fmt.Errorf("reconnect: %w", err)
	}
	s.mu.Lock()
	old := s.db
	s.db = db
	s.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
