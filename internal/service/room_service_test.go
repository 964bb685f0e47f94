package service

import (
	"context"
	"testing"
	"time"

	"github.com/cwrk-planet/karaoke-service/internal/domain"
	"github.com/cwrk-planet/karaoke-service/internal/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	room := f.newRoom(t)
	assert.Len(t, room.Code, codeLength)
	assert.True(t, room.IsActive)
	assert.Equal(t, baseTime.Add(DefaultRoomTTL), room.ExpiresAt)

	byCode, err := f.ctl.GetRoomByCode(ctx, " "+room.Code+" ")
	require.NoError(t, err)
	assert.Equal(t, room.ID, byCode.ID)

	st, err := f.ctl.GetStatus(ctx, room.ID, "host")
	require.NoError(t, err)
	assert.Equal(t, domain.ParticipantApproved, st.Status)
	assert.Equal(t, domain.RoleHost, st.Role)

	_, err = f.ctl.CreateRoom(ctx, "", "", "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestCreateRoomRetriesCodeCollision(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	codes := []string{"AAAAAA", "AAAAAA", "BBBBBB"}
	f.ctl.Rooms.newCode = func() (string, error) {
		c := codes[0]
		codes = codes[1:]
		return c, nil
	}

	first, err := f.ctl.CreateRoom(ctx, "h1", "", "one")
	require.NoError(t, err)
	second, err := f.ctl.CreateRoom(ctx, "h2", "", "two")
	require.NoError(t, err)
	assert.Equal(t, "AAAAAA", first.Code)
	assert.Equal(t, "BBBBBB", second.Code)
}

func TestRoomExpiresOnRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.newRoom(t)

	f.clock.Advance(DefaultRoomTTL)
	got, err := f.ctl.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.False(t, f.room(t, room.ID).IsActive)

	_, err = f.ctl.RequestJoin(ctx, room.ID, "p1", "Pat")
	assert.ErrorIs(t, err, domain.ErrRoomInactive)
	_, err = f.ctl.SubmitSong(ctx, room.ID, "host", "", domain.Song{Title: "late"})
	assert.ErrorIs(t, err, domain.ErrRoomInactive)
}

func TestEndRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.newRoom(t)

	_, err := f.ctl.EndRoom(ctx, room.ID, "guest")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	ended, err := f.ctl.EndRoom(ctx, room.ID, "host")
	require.NoError(t, err)
	assert.False(t, ended.IsActive)
	assert.Equal(t, 1, f.events.count(events.RoomUpdated))

	_, err = f.ctl.EndRoom(ctx, room.ID, "host")
	require.NoError(t, err)
}

func TestSubmitSongValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.newRoom(t)

	_, err := f.ctl.SubmitSong(ctx, room.ID, "host", "", domain.Song{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.ctl.SubmitSong(ctx, room.ID, "stranger", "", domain.Song{Title: "x"})
	assert.ErrorIs(t, err, domain.ErrNotApproved)

	_, err = f.ctl.RequestJoin(ctx, room.ID, "p1", "Pat")
	require.NoError(t, err)
	_, err = f.ctl.SubmitSong(ctx, room.ID, "p1", "", domain.Song{Title: "x"})
	assert.ErrorIs(t, err, domain.ErrNotApproved, "pending participants cannot submit")

	_, err = f.ctl.Approve(ctx, room.ID, "p1", "host")
	require.NoError(t, err)
	item, err := f.ctl.SubmitSong(ctx, room.ID, "p1", "", domain.Song{Title: " Song ", Duration: time.Minute})
	require.NoError(t, err)
	assert.Equal(t, "Pat", item.SingerName)
	assert.Equal(t, "Song", item.Song.Title)
	assert.Equal(t, domain.QueuePending, item.Status)
	assert.Positive(t, item.Seq)
}

func TestSnapshotAndHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.newRoom(t)
	a := f.submit(t, room.ID, "A")
	b := f.submit(t, room.ID, "B")
	c := f.submit(t, room.ID, "C")

	_, err := f.ctl.Advance(ctx, room.ID)
	require.NoError(t, err)
	_, err = f.ctl.Advance(ctx, room.ID)
	require.NoError(t, err)

	snap, err := f.ctl.Snapshot(ctx, room.ID)
	require.NoError(t, err)
	require.NotNil(t, snap.NowPlaying)
	assert.Equal(t, b.ID, snap.NowPlaying.ID)
	require.Len(t, snap.Pending, 1)
	assert.Equal(t, c.ID, snap.Pending[0].ID)

	_, err = f.ctl.SkipSong(ctx, room.ID, c.ID)
	require.NoError(t, err)

	page, next, err := f.ctl.History(ctx, room.ID, 1, "")
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, c.ID, page[0].ID)
	require.NotEmpty(t, next)

	page, _, err = f.ctl.History(ctx, room.ID, 1, next)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, a.ID, page[0].ID)

	_, _, err = f.ctl.History(ctx, room.ID, 1, "!!!")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
