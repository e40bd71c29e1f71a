package rooms_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"Greenroom/models/postgres"
	"Greenroom/services/codes"
	"Greenroom/services/rooms"
	"Greenroom/services/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() rooms.Config {
	return rooms.Config{
		RoomTTL:     12 * time.Hour,
		GuestTTL:    24 * time.Hour,
		MinCapacity: 2,
		MaxCapacity: 5,
	}
}

// Helper to build a manager over a fresh in-memory store
func newTestManager(t *testing.T) (*rooms.Manager, *store.MemoryStore) {
	t.Helper()
	s := store.NewMemoryStore()
	generator := codes.NewGenerator(s, 10)
	return rooms.NewManager(testConfig(), s, generator, rooms.NewLocks()), s
}

func TestCreateRoom(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestManager(t)

	view, host, failure := manager.CreateRoom(ctx, "Friday Session", 4, "session-host", "Alice", nil)
	require.Nil(t, failure)

	assert.Len(t, view.Room.Code, codes.CodeLength)
	assert.Equal(t, postgres.RoomStateWaiting, view.Room.State)
	assert.Equal(t, 4, view.Room.MaxCapacity)
	assert.Equal(t, 1, view.CurrentCapacity)
	assert.Equal(t, postgres.RoleHost, host.Role)
	assert.Equal(t, "Alice", host.Nickname)
	require.NotNil(t, view.Room.HostParticipantID)
	assert.Equal(t, host.ID, *view.Room.HostParticipantID)
	assert.JSONEq(t, `{}`, string(view.Room.Settings))
}

func TestCreateRoomValidation(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestManager(t)

	cases := []struct {
		name        string
		roomName    string
		maxCapacity int
		nickname    string
	}{
		{"empty name", "", 3, "Alice"},
		{"empty nickname", "Session", 3, ""},
		{"capacity below minimum", "Session", 1, "Alice"},
		{"capacity above maximum", "Session", 6, "Alice"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, failure := manager.CreateRoom(ctx, tc.roomName, tc.maxCapacity, "session-1", tc.nickname, nil)
			require.NotNil(t, failure)
			assert.Equal(t, rooms.CodeValidation, failure.Code)
		})
	}
}

func TestCreateRoomWhileAlreadyInRoom(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestManager(t)

	_, _, failure := manager.CreateRoom(ctx, "First", 3, "session-host", "Alice", nil)
	require.Nil(t, failure)

	_, _, failure = manager.CreateRoom(ctx, "Second", 3, "session-host", "Alice", nil)
	require.NotNil(t, failure)
	assert.Equal(t, rooms.CodeConflict, failure.Code)
}

func TestJoinRoom(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestManager(t)

	view, _, failure := manager.CreateRoom(ctx, "Session", 3, "session-host", "Alice", nil)
	require.Nil(t, failure)

	updated, participant, failure := manager.JoinRoom(ctx, view.Room.Code, "session-bob", "Bob")
	require.Nil(t, failure)

	assert.Equal(t, 2, updated.CurrentCapacity)
	assert.Equal(t, postgres.RoleParticipant, participant.Role)
	assert.Equal(t, "Bob", participant.Nickname)
	assert.True(t, participant.IsActive)
}

func TestJoinRoomCaseInsensitiveCode(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestManager(t)

	view, _, failure := manager.CreateRoom(ctx, "Session", 3, "session-host", "Alice", nil)
	require.Nil(t, failure)

	lower := "  " + strings.ToLower(view.Room.Code) + " "
	updated, _, failure := manager.JoinRoom(ctx, lower, "session-bob", "Bob")
	require.Nil(t, failure)
	assert.Equal(t, view.Room.ID, updated.Room.ID)
}

func TestJoinRoomFailures(t *testing.T) {
	ctx := context.Background()
	manager, s := newTestManager(t)

	view, _, failure := manager.CreateRoom(ctx, "Session", 2, "session-host", "Alice", nil)
	require.Nil(t, failure)
	code := view.Room.Code

	t.Run("unknown code", func(t *testing.T) {
		_, _, failure := manager.JoinRoom(ctx, "AAAAAA", "session-x", "Xavi")
		require.NotNil(t, failure)
		assert.Equal(t, rooms.CodeNotFound, failure.Code)
	})

	t.Run("malformed code", func(t *testing.T) {
		_, _, failure := manager.JoinRoom(ctx, "AB", "session-x", "Xavi")
		require.NotNil(t, failure)
		assert.Equal(t, rooms.CodeValidation, failure.Code)
	})

	t.Run("duplicate nickname", func(t *testing.T) {
		_, _, failure := manager.JoinRoom(ctx, code, "session-x", "Alice")
		require.NotNil(t, failure)
		assert.Equal(t, rooms.CodeConflict, failure.Code)
	})

	t.Run("guest already in a room", func(t *testing.T) {
		_, _, failure := manager.JoinRoom(ctx, code, "session-host", "AliceAgain")
		require.NotNil(t, failure)
		assert.Equal(t, rooms.CodeConflict, failure.Code)
	})

	t.Run("room full", func(t *testing.T) {
		_, _, failure := manager.JoinRoom(ctx, code, "session-bob", "Bob")
		require.Nil(t, failure)

		_, _, failure = manager.JoinRoom(ctx, code, "session-carol", "Carol")
		require.NotNil(t, failure)
		assert.Equal(t, rooms.CodeConflict, failure.Code)
	})

	t.Run("recording room rejects joiners", func(t *testing.T) {
		require.NoError(t, s.SetRoomState(ctx, view.Room.ID, postgres.RoomStateRecording))
		_, _, failure := manager.JoinRoom(ctx, code, "session-dave", "Dave")
		require.NotNil(t, failure)
		assert.Equal(t, rooms.CodeConflict, failure.Code)
	})
}

// A room at max_capacity=2: host creates, guest joins, host leaves (guest
// becomes host), a third guest takes the freed slot.
func TestCapacitySlotReleasedOnLeave(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestManager(t)

	view, host, failure := manager.CreateRoom(ctx, "Duo", 2, "session-host", "Alice", nil)
	require.Nil(t, failure)
	code := view.Room.Code

	_, bob, failure := manager.JoinRoom(ctx, code, "session-bob", "Bob")
	require.Nil(t, failure)

	// Full now
	_, _, failure = manager.JoinRoom(ctx, code, "session-carol", "Carol")
	require.NotNil(t, failure)
	assert.Equal(t, rooms.CodeConflict, failure.Code)

	result, failure := manager.LeaveRoom(ctx, host.ID)
	require.Nil(t, failure)
	assert.Equal(t, 1, result.RemainingCapacity)
	require.NotNil(t, result.PromotedHost)
	assert.Equal(t, bob.ID, result.PromotedHost.ID)
	assert.Equal(t, postgres.RoleHost, result.PromotedHost.Role)

	updated, _, failure := manager.JoinRoom(ctx, code, "session-carol", "Carol")
	require.Nil(t, failure)
	assert.Equal(t, 2, updated.CurrentCapacity)
}

func TestHostPromotionOldestJoiner(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestManager(t)

	view, host, failure := manager.CreateRoom(ctx, "Trio", 4, "session-host", "Alice", nil)
	require.Nil(t, failure)

	_, bob, failure := manager.JoinRoom(ctx, view.Room.Code, "session-bob", "Bob")
	require.Nil(t, failure)
	time.Sleep(2 * time.Millisecond) // joinedAt ordering must be observable
	_, _, failure = manager.JoinRoom(ctx, view.Room.Code, "session-carol", "Carol")
	require.Nil(t, failure)

	result, failure := manager.LeaveRoom(ctx, host.ID)
	require.Nil(t, failure)
	require.NotNil(t, result.PromotedHost)
	assert.Equal(t, bob.ID, result.PromotedHost.ID)
}

func TestLeaveRoomTwice(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestManager(t)

	view, _, failure := manager.CreateRoom(ctx, "Session", 3, "session-host", "Alice", nil)
	require.Nil(t, failure)
	_, bob, failure := manager.JoinRoom(ctx, view.Room.Code, "session-bob", "Bob")
	require.Nil(t, failure)

	_, failure = manager.LeaveRoom(ctx, bob.ID)
	require.Nil(t, failure)

	_, failure = manager.LeaveRoom(ctx, bob.ID)
	require.NotNil(t, failure)
	assert.Equal(t, rooms.CodeConflict, failure.Code)
}

func TestLastParticipantLeavesRoomStays(t *testing.T) {
	ctx := context.Background()
	manager, s := newTestManager(t)

	view, host, failure := manager.CreateRoom(ctx, "Solo", 3, "session-host", "Alice", nil)
	require.Nil(t, failure)

	result, failure := manager.LeaveRoom(ctx, host.ID)
	require.Nil(t, failure)
	assert.Equal(t, 0, result.RemainingCapacity)
	assert.Nil(t, result.PromotedHost)

	// Room persists until TTL expiry; the sweeper reclaims it later
	stored, err := s.GetRoomByID(ctx, view.Room.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.CurrentCapacity)
	assert.Nil(t, stored.Room.HostParticipantID)
}

func TestRejoinAfterLeaving(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestManager(t)

	view, _, failure := manager.CreateRoom(ctx, "Session", 3, "session-host", "Alice", nil)
	require.Nil(t, failure)

	_, bob, failure := manager.JoinRoom(ctx, view.Room.Code, "session-bob", "Bob")
	require.Nil(t, failure)
	_, failure = manager.LeaveRoom(ctx, bob.ID)
	require.Nil(t, failure)

	// Same guest can come back; a fresh join record is created
	updated, rejoined, failure := manager.JoinRoom(ctx, view.Room.Code, "session-bob", "Bob")
	require.Nil(t, failure)
	assert.NotEqual(t, bob.ID, rejoined.ID)
	assert.Equal(t, 2, updated.CurrentCapacity)
}

func TestEndRoom(t *testing.T) {
	ctx := context.Background()
	manager, s := newTestManager(t)

	view, host, failure := manager.CreateRoom(ctx, "Session", 3, "session-host", "Alice", nil)
	require.Nil(t, failure)
	_, bob, failure := manager.JoinRoom(ctx, view.Room.Code, "session-bob", "Bob")
	require.Nil(t, failure)

	t.Run("non-host cannot end", func(t *testing.T) {
		_, failure := manager.EndRoom(ctx, bob.ID)
		require.NotNil(t, failure)
		assert.Equal(t, rooms.CodeForbidden, failure.Code)
	})

	t.Run("host ends the room", func(t *testing.T) {
		result, failure := manager.EndRoom(ctx, host.ID)
		require.Nil(t, failure)
		assert.Equal(t, view.Room.Code, result.RoomCode)
		assert.Equal(t, int64(2), result.ParticipantCount)

		_, err := s.GetRoomByID(ctx, view.Room.ID)
		assert.ErrorIs(t, err, store.ErrNotFound)

		// Both guests are free to create or join again
		guest, err := s.GetGuestBySession(ctx, "session-bob")
		require.NoError(t, err)
		assert.Nil(t, guest.CurrentRoomID)
	})
}

func TestGetRoomHidesExpired(t *testing.T) {
	ctx := context.Background()
	manager, s := newTestManager(t)

	view, _, failure := manager.CreateRoom(ctx, "Session", 3, "session-host", "Alice", nil)
	require.Nil(t, failure)

	require.NoError(t, s.SetRoomState(ctx, view.Room.ID, postgres.RoomStateExpired))

	_, failure = manager.GetRoom(ctx, view.Room.Code)
	require.NotNil(t, failure)
	assert.Equal(t, rooms.CodeNotFound, failure.Code)
}

// staleSnapshotStore serves a pinned snapshot from the code lookup while
// all other reads see the live store, standing in for a lookup that lost
// a race against a concurrent state transition.
type staleSnapshotStore struct {
	*store.MemoryStore
	stale *store.RoomView
}

func (s *staleSnapshotStore) GetRoomByCode(ctx context.Context, code string) (*store.RoomView, error) {
	return s.stale, nil
}

// A join whose code lookup saw the room still waiting must not slip into
// a room that started recording before the join took the room lock.
func TestJoinStateGateRecheckedUnderLock(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	manager := rooms.NewManager(testConfig(), mem, codes.NewGenerator(mem, 10), rooms.NewLocks())

	view, _, failure := manager.CreateRoom(ctx, "Session", 3, "session-host", "Alice", nil)
	require.Nil(t, failure)

	snapshot, err := mem.GetRoomByCode(ctx, view.Room.Code)
	require.NoError(t, err)
	require.Equal(t, postgres.RoomStateWaiting, snapshot.Room.State)

	require.NoError(t, mem.SetRoomState(ctx, view.Room.ID, postgres.RoomStateRecording))

	staleManager := rooms.NewManager(testConfig(),
		&staleSnapshotStore{MemoryStore: mem, stale: snapshot},
		codes.NewGenerator(mem, 10), rooms.NewLocks())

	_, _, failure = staleManager.JoinRoom(ctx, view.Room.Code, "session-bob", "Bob")
	require.NotNil(t, failure)
	assert.Equal(t, rooms.CodeConflict, failure.Code)

	live, err := mem.GetRoomByID(ctx, view.Room.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, live.CurrentCapacity)
}

// N guests race for the last slot; exactly one join commits and the rest
// surface as capacity conflicts.
func TestConcurrentJoinLastSlot(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestManager(t)

	view, _, failure := manager.CreateRoom(ctx, "Race", 2, "session-host", "Alice", nil)
	require.Nil(t, failure)
	code := view.Room.Code

	const racers = 8
	var wg sync.WaitGroup
	results := make(chan *rooms.Failure, racers)

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, failure := manager.JoinRoom(ctx, code,
				fmt.Sprintf("session-racer-%d", i), fmt.Sprintf("Racer%d", i))
			results <- failure
		}(i)
	}
	wg.Wait()
	close(results)

	var wins, conflicts int
	for failure := range results {
		if failure == nil {
			wins++
			continue
		}
		assert.Equal(t, rooms.CodeConflict, failure.Code)
		conflicts++
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, racers-1, conflicts)

	updated, failure := manager.GetRoom(ctx, code)
	require.Nil(t, failure)
	assert.Equal(t, 2, updated.CurrentCapacity)
}
