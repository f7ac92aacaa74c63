package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/fwojciec/medic"
	"github.com/fwojciec/medic/postgres"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openStore connects to MEDIC_POSTGRES_DSN and skips when it is unset.
func openStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := os.Getenv("MEDIC_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("MEDIC_POSTGRES_DSN not set")
	}
	s, err := postgres.Open(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	// Unique ids keep runs against a shared database independent.
	patient := "p-" + uuid.NewString()
	s1 := &medic.Session{ID: uuid.NewString(), PatientID: patient, Title: "first", Status: medic.SessionActive, CreatedAt: now, UpdatedAt: now}
	s2 := &medic.Session{ID: uuid.NewString(), PatientID: patient, Title: "second", Status: medic.SessionActive, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, s.CreateSession(ctx, s1))
	require.NoError(t, s.CreateSession(ctx, s2))

	t.Run("find", func(t *testing.T) {
		got, err := s.FindSession(ctx, s1.ID)
		require.NoError(t, err)
		assert.Equal(t, "first", got.Title)
		assert.True(t, now.Equal(got.CreatedAt))

		_, err = s.FindSession(ctx, uuid.NewString())
		require.ErrorIs(t, err, medic.ErrSessionNotFound)
	})

	t.Run("turns", func(t *testing.T) {
		user := &medic.Turn{ID: uuid.NewString(), Role: medic.RoleUser, Content: "q", CreatedAt: now}
		asst := &medic.Turn{ID: uuid.NewString(), Role: medic.RoleAssistant, Content: "a", CreatedAt: now,
			Metadata: &medic.TurnMetadata{Risk: medic.RiskLow}}
		require.NoError(t, s.AppendTurns(ctx, s1.ID, user, asst))

		got, err := s.History(ctx, s1.ID, 10)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, asst.ID, got[0].ID)
		assert.Equal(t, medic.RiskLow, got[0].Metadata.Risk)
		assert.Equal(t, user.ID, got[1].ID)
		assert.Nil(t, got[1].Metadata)

		require.ErrorIs(t, s.AppendTurns(ctx, uuid.NewString(), user), medic.ErrSessionNotFound)
	})

	t.Run("status and listing", func(t *testing.T) {
		require.NoError(t, s.UpdateSessionStatus(ctx, s1.ID, medic.SessionClosed))

		all, err := s.ListSessions(ctx, patient, "")
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, s2.ID, all[0].ID)

		active, err := s.ListSessions(ctx, patient, medic.SessionActive)
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, s2.ID, active[0].ID)

		require.ErrorIs(t, s.UpdateSessionStatus(ctx, uuid.NewString(), medic.SessionClosed), medic.ErrSessionNotFound)
	})
}
