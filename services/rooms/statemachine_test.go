package rooms_test

import (
	"context"
	"testing"

	"Greenroom/models/postgres"
	"Greenroom/services/codes"
	"Greenroom/services/rooms"
	"Greenroom/services/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type machineFixture struct {
	manager *rooms.Manager
	machine *rooms.StateMachine
	store   *store.MemoryStore
	roomID  string
	hostGID string
}

func newMachineFixture(t *testing.T) *machineFixture {
	t.Helper()
	ctx := context.Background()

	s := store.NewMemoryStore()
	locks := rooms.NewLocks()
	manager := rooms.NewManager(testConfig(), s, codes.NewGenerator(s, 10), locks)
	machine := rooms.NewStateMachine(s, locks)

	view, host, failure := manager.CreateRoom(ctx, "Session", 3, "session-host", "Alice", nil)
	require.Nil(t, failure)

	return &machineFixture{
		manager: manager,
		machine: machine,
		store:   s,
		roomID:  view.Room.ID,
		hostGID: host.GuestUserID,
	}
}

func TestHostTransitions(t *testing.T) {
	ctx := context.Background()
	f := newMachineFixture(t)

	transition, failure := f.machine.RequestTransition(ctx, f.roomID, f.hostGID, postgres.RoomStateActive)
	require.Nil(t, failure)
	assert.Equal(t, postgres.RoomStateWaiting, transition.OldState)
	assert.Equal(t, postgres.RoomStateActive, transition.NewState)

	transition, failure = f.machine.RequestTransition(ctx, f.roomID, f.hostGID, postgres.RoomStateRecording)
	require.Nil(t, failure)
	assert.Equal(t, postgres.RoomStateRecording, transition.NewState)

	view, err := f.store.GetRoomByID(ctx, f.roomID)
	require.NoError(t, err)
	assert.Equal(t, postgres.RoomStateRecording, view.Room.State)
}

func TestTransitionRejectsSkipsAndBackward(t *testing.T) {
	ctx := context.Background()
	f := newMachineFixture(t)

	// waiting -> recording skips the active step
	_, failure := f.machine.RequestTransition(ctx, f.roomID, f.hostGID, postgres.RoomStateRecording)
	require.NotNil(t, failure)
	assert.Equal(t, rooms.CodeInvalidTransition, failure.Code)

	_, failure = f.machine.RequestTransition(ctx, f.roomID, f.hostGID, postgres.RoomStateActive)
	require.Nil(t, failure)

	// backward is never allowed
	_, failure = f.machine.RequestTransition(ctx, f.roomID, f.hostGID, postgres.RoomStateWaiting)
	require.NotNil(t, failure)
	assert.Equal(t, rooms.CodeInvalidTransition, failure.Code)
}

func TestTransitionRejectsPipelineStatesFromClients(t *testing.T) {
	ctx := context.Background()
	f := newMachineFixture(t)

	for _, target := range []string{postgres.RoomStateProcessing, postgres.RoomStateCompleted} {
		_, failure := f.machine.RequestTransition(ctx, f.roomID, f.hostGID, target)
		require.NotNil(t, failure)
		assert.Equal(t, rooms.CodeValidation, failure.Code)
	}
}

func TestTransitionForbiddenForNonHost(t *testing.T) {
	ctx := context.Background()
	f := newMachineFixture(t)

	view, err := f.store.GetRoomByID(ctx, f.roomID)
	require.NoError(t, err)

	_, bob, failure := f.manager.JoinRoom(ctx, view.Room.Code, "session-bob", "Bob")
	require.Nil(t, failure)

	_, failure = f.machine.RequestTransition(ctx, f.roomID, bob.GuestUserID, postgres.RoomStateActive)
	require.NotNil(t, failure)
	assert.Equal(t, rooms.CodeForbidden, failure.Code)
}

func TestExpireFromAnyNonTerminalState(t *testing.T) {
	ctx := context.Background()

	for _, from := range []string{postgres.RoomStateWaiting, postgres.RoomStateActive, postgres.RoomStateRecording} {
		f := newMachineFixture(t)
		require.NoError(t, f.store.SetRoomState(ctx, f.roomID, from))

		transition, failure := f.machine.RequestTransition(ctx, f.roomID, f.hostGID, postgres.RoomStateExpired)
		require.Nil(t, failure, "expiring from %s", from)
		assert.Equal(t, postgres.RoomStateExpired, transition.NewState)
	}
}

func TestTerminalStatesAreFinal(t *testing.T) {
	ctx := context.Background()

	for _, terminal := range []string{postgres.RoomStateCompleted, postgres.RoomStateExpired} {
		f := newMachineFixture(t)
		require.NoError(t, f.store.SetRoomState(ctx, f.roomID, terminal))

		_, failure := f.machine.RequestTransition(ctx, f.roomID, f.hostGID, postgres.RoomStateExpired)
		require.NotNil(t, failure, "terminal state %s", terminal)
		assert.Equal(t, rooms.CodeInvalidTransition, failure.Code)
	}
}

func TestPipelineTransitions(t *testing.T) {
	ctx := context.Background()
	f := newMachineFixture(t)
	require.NoError(t, f.store.SetRoomState(ctx, f.roomID, postgres.RoomStateRecording))

	transition, failure := f.machine.ApplyPipelineTransition(ctx, f.roomID, postgres.RoomStateProcessing)
	require.Nil(t, failure)
	assert.Equal(t, postgres.RoomStateProcessing, transition.NewState)

	transition, failure = f.machine.ApplyPipelineTransition(ctx, f.roomID, postgres.RoomStateCompleted)
	require.Nil(t, failure)
	assert.Equal(t, postgres.RoomStateCompleted, transition.NewState)

	// The pipeline cannot restart a completed room
	_, failure = f.machine.ApplyPipelineTransition(ctx, f.roomID, postgres.RoomStateProcessing)
	require.NotNil(t, failure)
	assert.Equal(t, rooms.CodeInvalidTransition, failure.Code)
}

func TestPipelineCannotSkipProcessing(t *testing.T) {
	ctx := context.Background()
	f := newMachineFixture(t)
	require.NoError(t, f.store.SetRoomState(ctx, f.roomID, postgres.RoomStateRecording))

	_, failure := f.machine.ApplyPipelineTransition(ctx, f.roomID, postgres.RoomStateCompleted)
	require.NotNil(t, failure)
	assert.Equal(t, rooms.CodeInvalidTransition, failure.Code)
}

func TestTransitionUnknownRoom(t *testing.T) {
	ctx := context.Background()
	f := newMachineFixture(t)

	_, failure := f.machine.RequestTransition(ctx, "no-such-room", f.hostGID, postgres.RoomStateActive)
	require.NotNil(t, failure)
	assert.Equal(t, rooms.CodeNotFound, failure.Code)
}

func TestTransitionAfterHostPromotion(t *testing.T) {
	ctx := context.Background()
	f := newMachineFixture(t)

	view, err := f.store.GetRoomByID(ctx, f.roomID)
	require.NoError(t, err)
	_, bob, failure := f.manager.JoinRoom(ctx, view.Room.Code, "session-bob", "Bob")
	require.Nil(t, failure)

	require.NotNil(t, view.Room.HostParticipantID)
	_, failure = f.manager.LeaveRoom(ctx, *view.Room.HostParticipantID)
	require.Nil(t, failure)

	// The promoted host drives transitions now; the departed one cannot
	_, failure = f.machine.RequestTransition(ctx, f.roomID, f.hostGID, postgres.RoomStateActive)
	require.NotNil(t, failure)
	assert.Equal(t, rooms.CodeForbidden, failure.Code)

	transition, failure := f.machine.RequestTransition(ctx, f.roomID, bob.GuestUserID, postgres.RoomStateActive)
	require.Nil(t, failure)
	assert.Equal(t, postgres.RoomStateActive, transition.NewState)
}
