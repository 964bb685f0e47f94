package domain

import (
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to QueueStatus
		want     bool
	}{
		{QueuePending, QueuePlaying, true},
		{QueuePending, QueueSkipped, true},
		{QueuePending, QueueError, true},
		{QueuePending, QueueCompleted, false},
		{QueuePlaying, QueueCompleted, true},
		{QueuePlaying, QueueSkipped, true},
		{QueuePlaying, QueueError, true},
		{QueuePlaying, QueuePending, false},
		{QueueCompleted, QueuePlaying, false},
		{QueueSkipped, QueuePending, false},
		{QueueError, QueuePlaying, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestTerminalStatusesHaveNoExits(t *testing.T) {
	all := []QueueStatus{QueuePending, QueuePlaying, QueueCompleted, QueueSkipped, QueueError}
	for _, from := range all {
		if !from.Terminal() {
			continue
		}
		for _, to := range all {
			if CanTransition(from, to) {
				t.Fatalf("terminal status %s must not move to %s", from, to)
			}
		}
	}
}

func TestParticipantPendingExpired(t *testing.T) {
	now := time.Date(2026, time.October, 19, 20, 0, 0, 0, time.UTC)
	past := now.Add(-time.Second)
	future := now.Add(time.Minute)

	p := Participant{Status: ParticipantPending, ExpiresAt: &past}
	if !p.PendingExpired(now) {
		t.Fatal("expected lapsed pending request to be expired")
	}
	p.ExpiresAt = &now
	if !p.PendingExpired(now) {
		t.Fatal("expected request expiring exactly now to be expired")
	}
	p.ExpiresAt = &future
	if p.PendingExpired(now) {
		t.Fatal("expected future deadline to be live")
	}
	p = Participant{Status: ParticipantApproved, ExpiresAt: &past}
	if p.PendingExpired(now) {
		t.Fatal("approved participant never expires")
	}
}

func TestRoomIdleAndExpired(t *testing.T) {
	now := time.Date(2026, time.October, 19, 20, 0, 0, 0, time.UTC)
	r := Room{ExpiresAt: now.Add(time.Hour)}
	if !r.Idle() {
		t.Fatal("room without current entry must be idle")
	}
	id := "item-1"
	r.CurrentEntryID = &id
	if r.Idle() {
		t.Fatal("room with current entry must not be idle")
	}
	if r.Expired(now) {
		t.Fatal("room must not be expired before deadline")
	}
	if !r.Expired(now.Add(time.Hour)) {
		t.Fatal("room must be expired at deadline")
	}
}
