package mock

import (
	"context"

	"github.com/fwojciec/medic"
)

// Interface compliance checks.
var (
	_ medic.SessionStore = (*SessionStore)(nil)
	_ medic.Renderer     = (*Renderer)(nil)
)

// SessionStore is a test double for medic.SessionStore.
type SessionStore struct {
	CreateSessionFn       func(ctx context.Context, s *medic.Session) error
	FindSessionFn         func(ctx context.Context, id string) (*medic.Session, error)
	ListSessionsFn        func(ctx context.Context, patientID string, status medic.SessionStatus) ([]*medic.Session, error)
	UpdateSessionStatusFn func(ctx context.Context, id string, status medic.SessionStatus) error
	AppendTurnsFn         func(ctx context.Context, sessionID string, turns ...*medic.Turn) error
	HistoryFn             func(ctx context.Context, sessionID string, limit int) ([]*medic.Turn, error)
}

// CreateSession delegates to CreateSessionFn.
func (s *SessionStore) CreateSession(ctx context.Context, sess *medic.Session) error {
	return s.CreateSessionFn(ctx, sess)
}

// FindSession delegates to FindSessionFn.
func (s *SessionStore) FindSession(ctx context.Context, id string) (*medic.Session, error) {
	return s.FindSessionFn(ctx, id)
}

// ListSessions delegates to ListSessionsFn.
func (s *SessionStore) ListSessions(ctx context.Context, patientID string, status medic.SessionStatus) ([]*medic.Session, error) {
	return s.ListSessionsFn(ctx, patientID, status)
}

// UpdateSessionStatus delegates to UpdateSessionStatusFn.
func (s *SessionStore) UpdateSessionStatus(ctx context.Context, id string, status medic.SessionStatus) error {
	return s.UpdateSessionStatusFn(ctx, id, status)
}

// AppendTurns delegates to AppendTurnsFn.
func (s *SessionStore) AppendTurns(ctx context.Context, sessionID string, turns ...*medic.Turn) error {
	return s.AppendTurnsFn(ctx, sessionID, turns...)
}

// History delegates to HistoryFn.
func (s *SessionStore) History(ctx context.Context, sessionID string, limit int) ([]*medic.Turn, error) {
	return s.HistoryFn(ctx, sessionID, limit)
}

// Renderer is a test double for medic.Renderer.
type Renderer struct {
	RenderFn      func(ctx context.Context, a *medic.Artifact) ([]byte, error)
	ContentTypeFn func() string
}

// Render delegates to RenderFn.
func (r *Renderer) Render(ctx context.Context, a *medic.Artifact) ([]byte, error) {
	return r.RenderFn(ctx, a)
}

// ContentType delegates to ContentTypeFn. Returns application/octet-stream
// when ContentTypeFn is nil.
func (r *Renderer) ContentType() string {
	if r.ContentTypeFn == nil {
		return "application/octet-stream"
	}
	return r.ContentTypeFn()
}
