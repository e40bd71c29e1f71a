package rooms

import (
	"context"
	"errors"
	"fmt"

	"Greenroom/models/postgres"
	"Greenroom/services/store"
)

// clientTransitions is the reachability table for host-driven requests.
// The happy path is strictly forward; "expired" may be forced from any
// non-terminal state (host abandon). processing/completed are never
// reachable here, they belong to the media pipeline callback.
var clientTransitions = map[string][]string{
	postgres.RoomStateWaiting:   {postgres.RoomStateActive, postgres.RoomStateExpired},
	postgres.RoomStateActive:    {postgres.RoomStateRecording, postgres.RoomStateExpired},
	postgres.RoomStateRecording: {postgres.RoomStateExpired},
}

// pipelineTransitions is the reachability table for the internal
// media-pipeline callback.
var pipelineTransitions = map[string][]string{
	postgres.RoomStateRecording:  {postgres.RoomStateProcessing},
	postgres.RoomStateProcessing: {postgres.RoomStateCompleted},
}

// Transition records one applied state change for the caller to report.
type Transition struct {
	RoomID   string
	RoomCode string
	OldState string
	NewState string
}

// StateMachine validates and applies room-state transitions. It shares
// the per-room lock keyring with the membership manager so a transition
// never interleaves with a join or leave on the same room.
type StateMachine struct {
	store store.RoomStore
	locks *Locks
}

func NewStateMachine(s store.RoomStore, locks *Locks) *StateMachine {
	return &StateMachine{store: s, locks: locks}
}

func reachable(table map[string][]string, from, to string) bool {
	for _, next := range table[from] {
		if next == to {
			return true
		}
	}
	return false
}

// RequestTransition applies a host-driven transition. The caller supplies
// the host's guest id; it is checked against the room's current host
// participant, not a cached role.
func (sm *StateMachine) RequestTransition(ctx context.Context, roomID, hostGuestID, target string) (*Transition, *Failure) {
	if _, known := clientTransitions[target]; !known && target != postgres.RoomStateExpired {
		return nil, validationFailure("unknown or non-requestable room state")
	}

	unlock := sm.locks.inner.acquire(roomID)
	defer unlock()

	view, err := sm.store.GetRoomByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFoundFailure("room not found")
		}
		return nil, internalFailure("transition/view", err)
	}

	if view.Room.HostParticipantID == nil {
		return nil, forbiddenFailure("room has no active host")
	}
	host, err := sm.store.GetParticipant(ctx, *view.Room.HostParticipantID)
	if err != nil {
		return nil, internalFailure("transition/host", err)
	}
	if host.GuestUserID != hostGuestID {
		return nil, forbiddenFailure("only the room host may change the room state")
	}

	return sm.apply(ctx, view, clientTransitions, target)
}

// ApplyPipelineTransition advances recording->processing->completed on
// behalf of the out-of-scope media pipeline. No host check: the callback
// endpoint is internal and authenticated at the transport layer.
func (sm *StateMachine) ApplyPipelineTransition(ctx context.Context, roomID, target string) (*Transition, *Failure) {
	unlock := sm.locks.inner.acquire(roomID)
	defer unlock()

	view, err := sm.store.GetRoomByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFoundFailure("room not found")
		}
		return nil, internalFailure("pipeline-transition/view", err)
	}

	return sm.apply(ctx, view, pipelineTransitions, target)
}

func (sm *StateMachine) apply(ctx context.Context, view *store.RoomView, table map[string][]string, target string) (*Transition, *Failure) {
	current := view.Room.State
	if postgres.IsTerminalState(current) || !reachable(table, current, target) {
		return nil, invalidTransitionFailure(
			fmt.Sprintf("cannot transition from %s to %s", current, target))
	}

	if err := sm.store.SetRoomState(ctx, view.Room.ID, target); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFoundFailure("room not found")
		}
		return nil, internalFailure("transition/store", err)
	}

	return &Transition{
		RoomID:   view.Room.ID,
		RoomCode: view.Room.Code,
		OldState: current,
		NewState: target,
	}, nil
}
