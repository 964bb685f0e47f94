package postgres

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/cwrk-planet/karaoke-service/internal/domain"
	"github.com/cwrk-planet/karaoke-service/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Интеграционные тесты, запускаются только при заданном KARAOKE_TEST_POSTGRES_DSN.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("KARAOKE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("KARAOKE_TEST_POSTGRES_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	st, err := Open(ctx, Config{DSN: dsn, MaxConns: 8})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func seedRoom(t *testing.T, st *Store, now time.Time) *domain.Room {
	t.Helper()
	room := &domain.Room{
		ID:        uuid.NewString(),
		Code:      uuid.NewString()[:6],
		Name:      "pg test",
		HostID:    "host",
		IsActive:  true,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
	require.NoError(t, st.Rooms().Create(context.Background(), room))
	return room
}

func seedItems(t *testing.T, st *Store, roomID string, now time.Time, n int) []domain.QueueItem {
	t.Helper()
	out := make([]domain.QueueItem, 0, n)
	for i := 0; i < n; i++ {
		it := &domain.QueueItem{
			ID:          uuid.NewString(),
			RoomID:      roomID,
			SubmitterID: "guest",
			SingerName:  "Guest",
			Song:        domain.Song{Title: "song", VideoID: "vid", Duration: 3 * time.Minute},
			CreatedAt:   now,
		}
		require.NoError(t, st.Queue().Enqueue(context.Background(), it))
		out = append(out, *it)
	}
	return out
}

func TestPostgresStepAdvancesInSeqOrder(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	room := seedRoom(t, st, now)
	items := seedItems(t, st, room.ID, now, 2)

	res, err := st.Queue().Step(ctx, repository.Step{RoomID: room.ID, Final: domain.QueueCompleted, Now: now})
	require.NoError(t, err)
	require.NotNil(t, res.Promoted)
	assert.Equal(t, items[0].ID, res.Promoted.ID)

	res, err = st.Queue().Step(ctx, repository.Step{RoomID: room.ID, Final: domain.QueueCompleted, Now: now})
	require.NoError(t, err)
	require.NotNil(t, res.Promoted)
	assert.Equal(t, items[1].ID, res.Promoted.ID)

	first, err := st.Queue().Get(ctx, room.ID, items[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.QueueCompleted, first.Status)
}

func TestPostgresConcurrentStepsKeepOnePlaying(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	room := seedRoom(t, st, now)
	seedItems(t, st, room.ID, now, 8)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := st.Queue().Step(ctx, repository.Step{RoomID: room.ID, Final: domain.QueueCompleted, Now: now})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	playing, err := st.Queue().List(ctx, room.ID, domain.QueuePlaying)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(playing), 1)

	pending, err := st.Queue().List(ctx, room.ID, domain.QueuePending)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestPostgresParticipantTransition(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	room := seedRoom(t, st, now)
	exp := now.Add(-time.Second)

	require.NoError(t, st.Participants().Create(ctx, &domain.Participant{
		RoomID: room.ID, UserID: "u1", DisplayName: "U1",
		Status: domain.ParticipantPending, Role: domain.RoleGuest, JoinedAt: now, ExpiresAt: &exp,
	}))
	err := st.Participants().Create(ctx, &domain.Participant{
		RoomID: room.ID, UserID: "u1", Status: domain.ParticipantPending, Role: domain.RoleGuest, JoinedAt: now,
	})
	assert.ErrorIs(t, err, repository.ErrAlreadyExists)

	n, err := st.Participants().ExpirePending(ctx, room.ID, "", now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	p, applied, err := st.Participants().Transition(ctx, repository.ParticipantChange{
		RoomID: room.ID, UserID: "u1",
		From: []domain.ParticipantStatus{domain.ParticipantDenied},
		To:   domain.ParticipantApproved, At: now,
	})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, domain.ParticipantApproved, p.Status)
	assert.Nil(t, p.ExpiresAt)
	assert.NotNil(t, p.ApprovedAt)
}
