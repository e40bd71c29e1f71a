package sweeper_test

import (
	"context"
	"testing"
	"time"

	"Greenroom/models/postgres"
	"Greenroom/services/store"
	"Greenroom/services/sweeper"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedRoom(t *testing.T, s *store.MemoryStore, session string, expiresAt time.Time) *postgres.Room {
	t.Helper()
	ctx := context.Background()

	guest, err := s.GetOrCreateGuest(ctx, session, "host", 24*time.Hour)
	require.NoError(t, err)

	room := &postgres.Room{
		ID:          uuid.NewString(),
		Code:        "C" + uuid.NewString()[:5],
		Name:        "room",
		MaxCapacity: 3,
		State:       postgres.RoomStateWaiting,
		CreatedAt:   time.Now(),
		ExpiresAt:   expiresAt,
	}
	_, err = s.CreateRoomWithHost(ctx, room, guest, "host")
	require.NoError(t, err)
	return room
}

func TestTickRemovesExpiredRooms(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	expired := seedRoom(t, s, "session-expired", time.Now().Add(-time.Minute))
	live := seedRoom(t, s, "session-live", time.Now().Add(time.Hour))

	sweeper.New(s, nil, time.Minute).Tick(ctx)

	_, err := s.GetRoomByID(ctx, expired.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	view, err := s.GetRoomByID(ctx, live.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, view.CurrentCapacity)
}

func TestTickReleasesGuestsOfExpiredRooms(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	seedRoom(t, s, "session-expired", time.Now().Add(-time.Minute))

	sweeper.New(s, nil, time.Minute).Tick(ctx)

	// Guest survives the room sweep and is free to join again
	guest, err := s.GetGuestBySession(ctx, "session-expired")
	require.NoError(t, err)
	assert.Nil(t, guest.CurrentRoomID)
}

func TestTickRemovesExpiredUnlinkedGuests(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	_, err := s.GetOrCreateGuest(ctx, "session-stale", "stale", -time.Minute)
	require.NoError(t, err)
	_, err = s.GetOrCreateGuest(ctx, "session-fresh", "fresh", 24*time.Hour)
	require.NoError(t, err)

	sweeper.New(s, nil, time.Minute).Tick(ctx)

	_, err = s.GetGuestBySession(ctx, "session-stale")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetGuestBySession(ctx, "session-fresh")
	assert.NoError(t, err)
}

func TestTickKeepsExpiredGuestLinkedToLiveRoom(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	// Guest TTL has passed but the guest still sits in a live room: the
	// guest sweep must not strand the room without its participant's owner.
	guest, err := s.GetOrCreateGuest(ctx, "session-linked", "linked", -time.Minute)
	require.NoError(t, err)

	room := &postgres.Room{
		ID:          uuid.NewString(),
		Code:        "LIVEQQ",
		Name:        "room",
		MaxCapacity: 3,
		State:       postgres.RoomStateActive,
		ExpiresAt:   time.Now().Add(time.Hour),
	}
	_, err = s.CreateRoomWithHost(ctx, room, guest, "linked")
	require.NoError(t, err)

	sweeper.New(s, nil, time.Minute).Tick(ctx)

	_, err = s.GetGuestBySession(ctx, "session-linked")
	assert.NoError(t, err)
}

func TestStartStopsOnContextCancel(t *testing.T) {
	s := store.NewMemoryStore()
	sw := sweeper.New(s, nil, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sw.Start(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop on context cancellation")
	}
}
