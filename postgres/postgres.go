// Package postgres implements medic.SessionStore on PostgreSQL. The schema
// is managed by embedded golang-migrate migrations.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/fwojciec/medic"
	medicjson "github.com/fwojciec/medic/json"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrations embed.FS

var _ medic.SessionStore = (*Store)(nil)

// Store is a PostgreSQL-backed session store.
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

// Migrate applies all pending migrations to the database at dsn, which
// must be a postgres:// URL.
func Migrate(dsn string) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// Open migrates and connects to the database at dsn.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	if err := Migrate(dsn); err != nil {
		return nil, err
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
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
		`INSERT INTO sessions (id, patient_id, title, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		sess.ID, sess.PatientID, sess.Title, string(sess.Status), sess.CreatedAt.UTC(), sess.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// FindSession implements medic.SessionStore.
func (s *Store) FindSession(ctx context.Context, id string) (*medic.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, patient_id, title, status, created_at, updated_at FROM sessions WHERE id = $1`, id)
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
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, patient_id, title, status, created_at, updated_at FROM sessions
		WHERE patient_id = $1 AND ($2::text = '' OR status = $2) ORDER BY seq DESC`, patientID, string(status))
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
		`UPDATE sessions SET status = $1, updated_at = $2 WHERE id = $3`, string(status), s.now().UTC(), id)
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
		`UPDATE sessions SET updated_at = $1 WHERE id = $2`, turns[len(turns)-1].CreatedAt.UTC(), sessionID)
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
			`INSERT INTO turns (id, session_id, role, content, metadata, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
			t.ID, sessionID, string(t.Role), t.Content, meta, t.CreatedAt.UTC())
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
		WHERE session_id = $1 ORDER BY seq DESC LIMIT $2`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("select turns: %w", err)
	}
	defer rows.Close()

	var turns []*medic.Turn
	for rows.Next() {
		var t medic.Turn
		var meta []byte
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Role, &t.Content, &meta, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		if meta != nil {
			m, err := medicjson.UnmarshalTurnMetadata(meta)
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
