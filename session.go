package medic

import (
	"context"
	"time"
	"unicode/utf8"
)

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	SessionActive   SessionStatus = "ACTIVE"
	SessionClosed   SessionStatus = "CLOSED"
	SessionArchived SessionStatus = "ARCHIVED"
)

// Valid reports whether s is a known status.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionActive, SessionClosed, SessionArchived:
		return true
	}
	return false
}

// Session identifies an ongoing conversation owned by a patient.
type Session struct {
	ID        string
	PatientID string
	Title     string
	Status    SessionStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Turn is one immutable message of a session's history.
type Turn struct {
	ID        string
	SessionID string
	Role      Role
	Content   string
	Metadata  *TurnMetadata
	CreatedAt time.Time
}

// TurnMetadata is the structured data attached to a persisted turn.
type TurnMetadata struct {
	Risk                RiskLabel
	ShouldSeeDoctor     bool
	ToolsUsed           []ToolName
	ImageInterpretation *ImageInterpretation
	Artifact            *Artifact
	Truncated           bool
}

const titleLimit = 100

// SessionTitle derives a session title from the first user message.
func SessionTitle(first string) string {
	if utf8.RuneCountInString(first) <= titleLimit {
		return first
	}
	return string([]rune(first)[:titleLimit]) + "..."
}

// SessionStore persists sessions and their ordered turn history.
type SessionStore interface {
	CreateSession(ctx context.Context, s *Session) error
	FindSession(ctx context.Context, id string) (*Session, error)
	// ListSessions returns a patient's sessions, newest first. An empty
	// status matches every status.
	ListSessions(ctx context.Context, patientID string, status SessionStatus) ([]*Session, error)
	UpdateSessionStatus(ctx context.Context, id string, status SessionStatus) error
	// AppendTurns writes all turns atomically or none of them.
	AppendTurns(ctx context.Context, sessionID string, turns ...*Turn) error
	// History returns at most limit turns, most recent first.
	History(ctx context.Context, sessionID string, limit int) ([]*Turn, error)
}
