// Package sqlite implements medic.SessionStore on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fwojciec/medic"
	medicjson "github.com/fwojciec/medic/json"
	_ "github.com/mattn/go-sqlite3"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		patient_id TEXT NOT NULL,
		title TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_patient ON sessions(patient_id, status)`,
	`CREATE TABLE IF NOT EXISTS turns (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		session_id TEXT NOT NULL REFERENCES sessions(id),
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		metadata TEXT,
		created_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id, seq)`,
}

var _ medic.SessionStore = (*Store)(nil)

// Store is a SQLite-backed session store. Writes are serialized over a
// single connection.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used for status change timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New opens the database at dsn and applies migrations. Use ":memory:" for
// a private in-memory database.
func New(dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	s := &Store{db: db, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateSession implements medic.SessionStore.
func (s *Store) CreateSession(ctx context.Context, sess *medic.Session) error {
	if !sess.Status.Valid() {
		return fmt.Errorf("session status %q: %w", sess.Status, medic.ErrValidation)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, patient_id, title, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.PatientID, sess.Title, sess.Status, sess.CreatedAt.UTC(), sess.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// FindSession implements medic.SessionStore.
func (s *Store) FindSession(ctx context.Context, id string) (*medic.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, patient_id, title, status, created_at, updated_at FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, medic.ErrSessionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select session: %w", err)
	}
	return sess, nil
}

// ListSessions implements medic.SessionStore.
func (s *Store) ListSessions(ctx context.Context, patientID string, status medic.SessionStatus) ([]*medic.Session, error) {
	query := `SELECT id, patient_id, title, status, created_at, updated_at FROM sessions WHERE patient_id = ?`
	args := []any{patientID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY seq DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*medic.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// UpdateSessionStatus implements medic.SessionStore.
func (s *Store) UpdateSessionStatus(ctx context.Context, id string, status medic.SessionStatus) error {
	if !status.Valid() {
		return fmt.Errorf("session status %q: %w", status, medic.ErrValidation)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, updated_at = ? WHERE id = ?`, status, s.now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", id, medic.ErrSessionNotFound)
	}
	return nil
}

// AppendTurns implements medic.SessionStore.
func (s *Store) AppendTurns(ctx context.Context, sessionID string, turns ...*medic.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE sessions SET updated_at = ? WHERE id = ?`, turns[len(turns)-1].CreatedAt.UTC(), sessionID)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("touch session: %w", err)
	} else if n == 0 {
		return fmt.Errorf("%s: %w", sessionID, medic.ErrSessionNotFound)
	}

	for i, t := range turns {
		if !t.Role.Valid() {
			return fmt.Errorf("turn %d role %q: %w", i, t.Role, medic.ErrValidation)
		}
		var meta sql.NullString
		if t.Metadata != nil {
			data, err := medicjson.MarshalTurnMetadata(*t.Metadata)
			if err != nil {
				return fmt.Errorf("turn %d metadata: %w", i, err)
			}
			meta = sql.NullString{String: string(data), Valid: true}
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO turns (id, session_id, role, content, metadata, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			t.ID, sessionID, t.Role, t.Content, meta, t.CreatedAt.UTC())
		if err != nil {
			return fmt.Errorf("insert turn %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// History implements medic.SessionStore.
func (s *Store) History(ctx context.Context, sessionID string, limit int) ([]*medic.Turn, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, metadata, created_at FROM turns
		WHERE session_id = ? ORDER BY seq DESC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("select turns: %w", err)
	}
	defer rows.Close()

	var turns []*medic.Turn
	for rows.Next() {
		var t medic.Turn
		var meta sql.NullString
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Role, &t.Content, &meta, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		if meta.Valid {
			m, err := medicjson.UnmarshalTurnMetadata([]byte(meta.String))
			if err != nil {
				return nil, fmt.Errorf("turn %s metadata: %w", t.ID, err)
			}
			t.Metadata = &m
		}
		turns = append(turns, &t)
	}
	return turns, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*medic.Session, error) {
	var sess medic.Session
	if err := row.Scan(&sess.ID, &sess.PatientID, &sess.Title, &sess.Status, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
		return nil, err
	}
	return &sess, nil
}
