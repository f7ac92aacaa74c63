package sqlite_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/fwojciec/medic"
	"github.com/fwojciec/medic/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:", sqlite.WithClock(func() time.Time { return t0.Add(time.Hour) }))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func session(id, patient string, status medic.SessionStatus) *medic.Session {
	return &medic.Session{ID: id, PatientID: patient, Title: "title " + id, Status: status, CreatedAt: t0, UpdatedAt: t0}
}

func turn(id string, role medic.Role, content string, at time.Time) *medic.Turn {
	return &medic.Turn{ID: id, Role: role, Content: content, CreatedAt: at}
}

func TestStore_Sessions(t *testing.T) {
	t.Parallel()

	t.Run("create and find", func(t *testing.T) {
		t.Parallel()
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.CreateSession(ctx, session("s1", "p1", medic.SessionActive)))

		got, err := s.FindSession(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, "p1", got.PatientID)
		assert.Equal(t, "title s1", got.Title)
		assert.Equal(t, medic.SessionActive, got.Status)
		assert.True(t, t0.Equal(got.CreatedAt))
		assert.True(t, t0.Equal(got.UpdatedAt))
	})

	t.Run("find unknown", func(t *testing.T) {
		t.Parallel()
		_, err := newStore(t).FindSession(context.Background(), "nope")
		require.ErrorIs(t, err, medic.ErrSessionNotFound)
	})

	t.Run("duplicate id", func(t *testing.T) {
		t.Parallel()
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.CreateSession(ctx, session("s1", "p1", medic.SessionActive)))
		require.Error(t, s.CreateSession(ctx, session("s1", "p1", medic.SessionActive)))
	})

	t.Run("invalid status", func(t *testing.T) {
		t.Parallel()
		err := newStore(t).CreateSession(context.Background(), session("s1", "p1", "OPEN"))
		require.ErrorIs(t, err, medic.ErrValidation)
	})

	t.Run("list newest first with status filter", func(t *testing.T) {
		t.Parallel()
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.CreateSession(ctx, session("s1", "p1", medic.SessionActive)))
		require.NoError(t, s.CreateSession(ctx, session("s2", "p1", medic.SessionClosed)))
		require.NoError(t, s.CreateSession(ctx, session("s3", "p1", medic.SessionActive)))
		require.NoError(t, s.CreateSession(ctx, session("s4", "p2", medic.SessionActive)))

		all, err := s.ListSessions(ctx, "p1", "")
		require.NoError(t, err)
		assert.Equal(t, []string{"s3", "s2", "s1"}, ids(all))

		active, err := s.ListSessions(ctx, "p1", medic.SessionActive)
		require.NoError(t, err)
		assert.Equal(t, []string{"s3", "s1"}, ids(active))

		none, err := s.ListSessions(ctx, "p9", "")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("update status", func(t *testing.T) {
		t.Parallel()
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.CreateSession(ctx, session("s1", "p1", medic.SessionActive)))
		require.NoError(t, s.UpdateSessionStatus(ctx, "s1", medic.SessionArchived))

		got, err := s.FindSession(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, medic.SessionArchived, got.Status)
		assert.True(t, t0.Add(time.Hour).Equal(got.UpdatedAt))

		require.ErrorIs(t, s.UpdateSessionStatus(ctx, "nope", medic.SessionClosed), medic.ErrSessionNotFound)
		require.ErrorIs(t, s.UpdateSessionStatus(ctx, "s1", "DELETED"), medic.ErrValidation)
	})
}

func TestStore_Turns(t *testing.T) {
	t.Parallel()

	t.Run("history is most recent first and bounded", func(t *testing.T) {
		t.Parallel()
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.CreateSession(ctx, session("s1", "p1", medic.SessionActive)))
		for i := range 3 {
			at := t0.Add(time.Duration(i) * time.Minute)
			require.NoError(t, s.AppendTurns(ctx, "s1",
				turn(fmt.Sprintf("u%d", i), medic.RoleUser, fmt.Sprintf("q%d", i), at),
				turn(fmt.Sprintf("a%d", i), medic.RoleAssistant, fmt.Sprintf("r%d", i), at),
			))
		}

		got, err := s.History(ctx, "s1", 4)
		require.NoError(t, err)
		assert.Equal(t, []string{"a2", "u2", "a1", "u1"}, turnIDs(got))
		assert.Equal(t, "s1", got[0].SessionID)
		assert.Equal(t, medic.RoleAssistant, got[0].Role)
		assert.Equal(t, "r2", got[0].Content)

		all, err := s.History(ctx, "s1", 100)
		require.NoError(t, err)
		assert.Len(t, all, 6)

		none, err := s.History(ctx, "s1", 0)
		require.NoError(t, err)
		assert.Empty(t, none)

		sess, err := s.FindSession(ctx, "s1")
		require.NoError(t, err)
		assert.True(t, t0.Add(2*time.Minute).Equal(sess.UpdatedAt))
	})

	t.Run("metadata round trips", func(t *testing.T) {
		t.Parallel()
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.CreateSession(ctx, session("s1", "p1", medic.SessionActive)))
		a := turn("a1", medic.RoleAssistant, "See a doctor.", t0)
		a.Metadata = &medic.TurnMetadata{
			Risk:            medic.RiskHigh,
			ShouldSeeDoctor: true,
			ToolsUsed:       []medic.ToolName{medic.ToolLabExplanation},
		}
		require.NoError(t, s.AppendTurns(ctx, "s1", turn("u1", medic.RoleUser, "q", t0), a))

		got, err := s.History(ctx, "s1", 10)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, a.Metadata, got[0].Metadata)
		assert.Nil(t, got[1].Metadata)
	})

	t.Run("unknown session", func(t *testing.T) {
		t.Parallel()
		err := newStore(t).AppendTurns(context.Background(), "nope", turn("u1", medic.RoleUser, "q", t0))
		require.ErrorIs(t, err, medic.ErrSessionNotFound)
	})

	t.Run("append is atomic", func(t *testing.T) {
		t.Parallel()
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.CreateSession(ctx, session("s1", "p1", medic.SessionActive)))
		err := s.AppendTurns(ctx, "s1",
			turn("u1", medic.RoleUser, "q", t0),
			turn("u1", medic.RoleAssistant, "duplicate id", t0),
		)
		require.Error(t, err)

		got, err := s.History(ctx, "s1", 10)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("invalid role", func(t *testing.T) {
		t.Parallel()
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.CreateSession(ctx, session("s1", "p1", medic.SessionActive)))
		err := s.AppendTurns(ctx, "s1", turn("x", "BOT", "q", t0))
		require.ErrorIs(t, err, medic.ErrValidation)
	})
}

func ids(sessions []*medic.Session) []string {
	out := make([]string, len(sessions))
	for i, s := range sessions {
		out[i] = s.ID
	}
	return out
}

func turnIDs(turns []*medic.Turn) []string {
	out := make([]string, len(turns))
	for i, t := range turns {
		out[i] = t.ID
	}
	return out
}
