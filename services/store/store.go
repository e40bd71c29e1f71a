package store

import (
	"context"
	"errors"
	"time"

	"Greenroom/models/postgres"
)

// Sentinel errors surfaced by RoomStore implementations. The lifecycle
// services map them onto the user-facing failure taxonomy; anything else
// coming out of a store call is treated as an internal storage failure.
var (
	ErrNotFound      = errors.New("store: not found")
	ErrCodeTaken     = errors.New("store: room code already taken")
	ErrCapacityFull  = errors.New("store: room capacity is full")
	ErrNicknameTaken = errors.New("store: nickname already active in room")
	ErrAlreadyInRoom = errors.New("store: guest already active in a room")
	ErrNotActive     = errors.New("store: participant is not active")
)

// PreparationPatch is a partial update over the readiness flags.
// Nil fields keep their previously committed value.
type PreparationPatch struct {
	CharacterReady *bool
	ScreenReady    *bool
	FinalReady     *bool
}

// RoomView is a room plus the values derived from its participant rows,
// read inside the same transaction that produced them.
type RoomView struct {
	Room               postgres.Room
	CurrentCapacity    int
	ActiveParticipants []postgres.Participant
}

// LeaveResult reports the outcome of deactivating a participant.
type LeaveResult struct {
	Room              postgres.Room
	Nickname          string
	RemainingCapacity int
	// Set when the departing participant held the host role and another
	// active participant was promoted in the same transaction.
	PromotedHost *postgres.Participant
}

// SweepResult carries the counts of one bulk expiry delete.
type SweepResult struct {
	Rooms        int64
	Participants int64
	// Codes of the rooms that were removed, so callers can release any
	// ephemeral per-room state (socket rooms, presence keys).
	RoomIDs []string
}

/*
 * RoomStore is the only component touching persistent storage. Every
 * method that mutates membership is a single all-or-nothing unit evaluated
 * against the current committed state, never a previously fetched snapshot.
 * Implementations: the GORM/Postgres store used in production and an
 * in-memory fake used by the service tests.
 */
type RoomStore interface {
	// CreateRoomWithHost inserts the room and its host participant
	// atomically and links the host guest to the room.
	// Fails with ErrCodeTaken if the code lost a creation race.
	CreateRoomWithHost(ctx context.Context, room *postgres.Room, host *postgres.GuestUser, hostNickname string) (*postgres.Participant, error)

	// AddParticipant joins a guest into a room, re-validating capacity,
	// nickname uniqueness and the one-room-per-guest invariant against
	// committed state inside the transaction.
	AddParticipant(ctx context.Context, roomID string, guest *postgres.GuestUser, nickname string) (*postgres.Participant, error)

	// DeactivateParticipant soft-closes a join record and, if the host
	// departed while other active participants remain, promotes the one
	// with the earliest JoinedAt in the same transaction.
	DeactivateParticipant(ctx context.Context, participantID string) (*LeaveResult, error)

	// DeleteRoom hard-deletes a room, cascading its participants and
	// releasing the guests' CurrentRoomID. Returns the participant count.
	DeleteRoom(ctx context.Context, roomID string) (int64, error)

	// SetRoomState persists a state transition.
	SetRoomState(ctx context.Context, roomID string, newState string) error

	// UpdatePreparation merges a partial readiness patch and returns the
	// merged status.
	UpdatePreparation(ctx context.Context, participantID string, patch PreparationPatch) (*postgres.PreparationStatus, error)

	// GetOrCreateGuest resolves the guest bound to a session token,
	// creating it with the given TTL when absent. Idempotent per session.
	GetOrCreateGuest(ctx context.Context, sessionID, nickname string, ttl time.Duration) (*postgres.GuestUser, error)

	GetRoomByCode(ctx context.Context, code string) (*RoomView, error)
	GetRoomByID(ctx context.Context, roomID string) (*RoomView, error)
	GetParticipant(ctx context.Context, participantID string) (*postgres.Participant, error)
	GetGuestBySession(ctx context.Context, sessionID string) (*postgres.GuestUser, error)

	// CodeInUse reports whether a live room currently holds the code.
	CodeInUse(ctx context.Context, code string) (bool, error)

	// DeleteExpiredRooms removes every room with ExpiresAt <= now,
	// cascading participants and clearing affected guests' CurrentRoomID.
	DeleteExpiredRooms(ctx context.Context, now time.Time) (*SweepResult, error)

	// DeleteExpiredGuests removes every guest with ExpiresAt <= now that
	// is not linked to a still-live room.
	DeleteExpiredGuests(ctx context.Context, now time.Time) (int64, error)
}
