package rooms

import (
	"context"
	"errors"
	"strings"
	"time"

	"Greenroom/models/postgres"
	"Greenroom/services/codes"
	"Greenroom/services/store"

	"github.com/google/uuid"

	"gorm.io/datatypes"
)

// Config carries the lifecycle policy knobs. Injected at construction,
// never read from the environment by the services themselves.
type Config struct {
	RoomTTL     time.Duration
	GuestTTL    time.Duration
	MinCapacity int
	MaxCapacity int
}

// Locks is the shared per-room serialization keyring. The membership
// manager and the state machine hold the same instance so joins, leaves,
// end-room and state transitions against one room are linearized.
type Locks struct {
	inner roomLocks
}

func NewLocks() *Locks {
	return &Locks{}
}

// creation retries when a freshly generated code loses the commit race
const createRetries = 3

/*
 * Manager owns the membership invariants: capacity, role uniqueness, one
 * active join record per (room, guest), one room per guest. It serializes
 * per-room traffic with the lock keyring and relies on the store's
 * transactional checks as the second line of defense, so a losing
 * concurrent writer always surfaces as a Conflict instead of corrupting
 * capacity.
 */
type Manager struct {
	config Config
	store  store.RoomStore
	codes  *codes.Generator
	locks  *Locks
}

func NewManager(config Config, s store.RoomStore, generator *codes.Generator, locks *Locks) *Manager {
	return &Manager{config: config, store: s, codes: generator, locks: locks}
}

// NormalizeCode maps user-supplied codes onto the stored representation.
// Join codes are case-insensitive on the wire, uppercase at rest.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// CreateRoom mints a room and its host participant atomically. Guest
// creation is idempotent on the session token: recreating a room with a
// known session reuses the existing guest identity.
func (m *Manager) CreateRoom(ctx context.Context, name string, maxCapacity int, hostSessionID, hostNickname string, settings datatypes.JSON) (*store.RoomView, *postgres.Participant, *Failure) {
	name = strings.TrimSpace(name)
	hostNickname = strings.TrimSpace(hostNickname)

	switch {
	case name == "":
		return nil, nil, validationFailure("room name must not be empty")
	case hostNickname == "":
		return nil, nil, validationFailure("host nickname must not be empty")
	case hostSessionID == "":
		return nil, nil, validationFailure("session id must not be empty")
	case maxCapacity < m.config.MinCapacity || maxCapacity > m.config.MaxCapacity:
		return nil, nil, validationFailure("max capacity out of range")
	}

	guest, err := m.store.GetOrCreateGuest(ctx, hostSessionID, hostNickname, m.config.GuestTTL)
	if err != nil {
		return nil, nil, internalFailure("create-room/guest", err)
	}
	if guest.CurrentRoomID != nil {
		return nil, nil, conflictFailure("guest is already in a room")
	}

	if len(settings) == 0 {
		settings = datatypes.JSON([]byte(`{}`))
	}

	for attempt := 0; attempt < createRetries; attempt++ {
		code, err := m.codes.Generate(ctx)
		if err != nil {
			return nil, nil, internalFailure("create-room/code", err)
		}

		now := time.Now()
		room := &postgres.Room{
			ID:          uuid.NewString(),
			Code:        code,
			Name:        name,
			MaxCapacity: maxCapacity,
			State:       postgres.RoomStateWaiting,
			Settings:    settings,
			CreatedAt:   now,
			ExpiresAt:   now.Add(m.config.RoomTTL),
		}

		host, err := m.store.CreateRoomWithHost(ctx, room, guest, hostNickname)
		if err != nil {
			if errors.Is(err, store.ErrCodeTaken) {
				continue // lost the commit race, mint a fresh code
			}
			if errors.Is(err, store.ErrAlreadyInRoom) {
				return nil, nil, conflictFailure("guest is already in a room")
			}
			return nil, nil, internalFailure("create-room/store", err)
		}

		view, err := m.store.GetRoomByID(ctx, room.ID)
		if err != nil {
			return nil, nil, internalFailure("create-room/view", err)
		}
		return view, host, nil
	}

	return nil, nil, conflictFailure("could not allocate a unique room code")
}

// JoinRoom adds a guest to the room behind a join code. The capacity and
// nickname checks happen inside the store transaction against committed
// state; with the room lock held, a join that would overflow capacity can
// never race past another join that is also checking it.
func (m *Manager) JoinRoom(ctx context.Context, code, sessionID, nickname string) (*store.RoomView, *postgres.Participant, *Failure) {
	nickname = strings.TrimSpace(nickname)
	switch {
	case nickname == "":
		return nil, nil, validationFailure("nickname must not be empty")
	case sessionID == "":
		return nil, nil, validationFailure("session id must not be empty")
	}

	code = NormalizeCode(code)
	if len(code) != codes.CodeLength {
		return nil, nil, validationFailure("room code must be 6 characters")
	}

	view, err := m.store.GetRoomByCode(ctx, code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, notFoundFailure("room not found")
		}
		return nil, nil, internalFailure("join-room/lookup", err)
	}

	guest, err := m.store.GetOrCreateGuest(ctx, sessionID, nickname, m.config.GuestTTL)
	if err != nil {
		return nil, nil, internalFailure("join-room/guest", err)
	}

	unlock := m.locks.inner.acquire(view.Room.ID)
	defer unlock()

	// The state gate is judged under the lock, against a fresh read: the
	// code lookup's snapshot may predate a concurrent transition or expiry
	view, err = m.store.GetRoomByID(ctx, view.Room.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, notFoundFailure("room not found")
		}
		return nil, nil, internalFailure("join-room/recheck", err)
	}
	if view.Room.State == postgres.RoomStateExpired || !view.Room.ExpiresAt.After(time.Now()) {
		// Expired but not yet swept: invisible to joiners
		return nil, nil, notFoundFailure("room not found")
	}
	if view.Room.State != postgres.RoomStateWaiting && view.Room.State != postgres.RoomStateActive {
		return nil, nil, conflictFailure("room session has already started")
	}

	participant, err := m.store.AddParticipant(ctx, view.Room.ID, guest, nickname)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			// Deleted between lookup and lock acquisition
			return nil, nil, notFoundFailure("room not found")
		case errors.Is(err, store.ErrCapacityFull):
			return nil, nil, conflictFailure("room is full")
		case errors.Is(err, store.ErrNicknameTaken):
			return nil, nil, conflictFailure("nickname already taken in this room")
		case errors.Is(err, store.ErrAlreadyInRoom):
			return nil, nil, conflictFailure("guest is already in a room")
		default:
			return nil, nil, internalFailure("join-room/store", err)
		}
	}

	updated, err := m.store.GetRoomByID(ctx, view.Room.ID)
	if err != nil {
		return nil, nil, internalFailure("join-room/view", err)
	}
	return updated, participant, nil
}

// LeaveRoom soft-closes a join record. If the host leaves, the store
// promotes the oldest remaining active participant in the same
// transaction. An emptied room is left for the sweeper: force-deleting it
// here would race against a concurrent join holding a fresh code lookup.
func (m *Manager) LeaveRoom(ctx context.Context, participantID string) (*store.LeaveResult, *Failure) {
	if participantID == "" {
		return nil, validationFailure("participant id must not be empty")
	}

	participant, err := m.store.GetParticipant(ctx, participantID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFoundFailure("participant not found")
		}
		return nil, internalFailure("leave-room/lookup", err)
	}

	unlock := m.locks.inner.acquire(participant.RoomID)
	defer unlock()

	result, err := m.store.DeactivateParticipant(ctx, participantID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return nil, notFoundFailure("participant not found")
		case errors.Is(err, store.ErrNotActive):
			return nil, conflictFailure("participant already left the room")
		default:
			return nil, internalFailure("leave-room/store", err)
		}
	}
	return result, nil
}

// EndRoomResult is returned to the transport layer for logging/reporting.
type EndRoomResult struct {
	RoomID           string
	RoomCode         string
	Name             string
	ParticipantCount int64
}

// EndRoom hard-deletes a room and everything under it. Host only.
func (m *Manager) EndRoom(ctx context.Context, hostParticipantID string) (*EndRoomResult, *Failure) {
	if hostParticipantID == "" {
		return nil, validationFailure("participant id must not be empty")
	}

	participant, err := m.store.GetParticipant(ctx, hostParticipantID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFoundFailure("participant not found")
		}
		return nil, internalFailure("end-room/lookup", err)
	}

	unlock := m.locks.inner.acquire(participant.RoomID)
	defer unlock()

	view, err := m.store.GetRoomByID(ctx, participant.RoomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFoundFailure("room not found")
		}
		return nil, internalFailure("end-room/view", err)
	}

	// Host identity is judged against the room's current host pointer, not
	// the caller's stale role: a promotion may have happened since.
	if view.Room.HostParticipantID == nil || *view.Room.HostParticipantID != participant.ID {
		return nil, forbiddenFailure("only the room host may end the room")
	}

	count, err := m.store.DeleteRoom(ctx, participant.RoomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFoundFailure("room not found")
		}
		return nil, internalFailure("end-room/delete", err)
	}

	m.locks.inner.forget(participant.RoomID)

	return &EndRoomResult{
		RoomID:           view.Room.ID,
		RoomCode:         view.Room.Code,
		Name:             view.Room.Name,
		ParticipantCount: count,
	}, nil
}

// GetRoom resolves a join code to the current room view.
func (m *Manager) GetRoom(ctx context.Context, code string) (*store.RoomView, *Failure) {
	view, err := m.store.GetRoomByCode(ctx, NormalizeCode(code))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFoundFailure("room not found")
		}
		return nil, internalFailure("get-room", err)
	}
	if view.Room.State == postgres.RoomStateExpired || !view.Room.ExpiresAt.After(time.Now()) {
		return nil, notFoundFailure("room not found")
	}
	return view, nil
}
