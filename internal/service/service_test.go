package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cwrk-planet/karaoke-service/internal/clock"
	"github.com/cwrk-planet/karaoke-service/internal/domain"
	"github.com/cwrk-planet/karaoke-service/internal/events"
	"github.com/cwrk-planet/karaoke-service/internal/sqlite"

	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, time.October, 19, 20, 0, 0, 0, time.UTC)

type fixture struct {
	ctl    *Controller
	store  *sqlite.Store
	clock  *clock.FakeClock
	events *eventLog
}

type eventLog struct {
	mu  sync.Mutex
	all []events.Event
}

func (l *eventLog) Publish(_ context.Context, ev events.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.all = append(l.all, ev)
	return nil
}

func (l *eventLog) count(typ events.Type) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ev := range l.all {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "karaoke.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	clk := clock.Fake(baseTime)
	log := &eventLog{}
	return &fixture{
		ctl:    NewController(st, Options{Clock: clk, Publisher: log}),
		store:  st,
		clock:  clk,
		events: log,
	}
}

// newRoom creates a room hosted by "host".
func (f *fixture) newRoom(t *testing.T) *domain.Room {
	t.Helper()
	room, err := f.ctl.CreateRoom(context.Background(), "host", "Host", "Friday night")
	require.NoError(t, err)
	return room
}

// submit enqueues a song by the host and moves the clock so entries get distinct timestamps.
func (f *fixture) submit(t *testing.T, roomID, title string) *domain.QueueItem {
	t.Helper()
	item, err := f.ctl.SubmitSong(context.Background(), roomID, "host", "", domain.Song{
		Title:    title,
		VideoID:  "vid-" + title,
		Duration: 3 * time.Minute,
	})
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	return item
}

func (f *fixture) item(t *testing.T, roomID, id string) *domain.QueueItem {
	t.Helper()
	it, err := f.store.Queue().Get(context.Background(), roomID, id)
	require.NoError(t, err)
	return it
}

func (f *fixture) room(t *testing.T, roomID string) *domain.Room {
	t.Helper()
	r, err := f.store.Rooms().Get(context.Background(), roomID)
	require.NoError(t, err)
	return r
}

func (f *fixture) playingCount(t *testing.T, roomID string) int {
	t.Helper()
	items, err := f.store.Queue().List(context.Background(), roomID, domain.QueuePlaying)
	require.NoError(t, err)
	return len(items)
}
