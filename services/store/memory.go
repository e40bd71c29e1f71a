package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"Greenroom/models/postgres"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory RoomStore used by the lifecycle service
// tests. A single mutex stands in for the database's transaction
// isolation: every method body is one atomic unit, matching the contract
// the GORM store provides with real transactions.
type MemoryStore struct {
	mu           sync.Mutex
	rooms        map[string]*postgres.Room
	participants map[string]*postgres.Participant
	guests       map[string]*postgres.GuestUser
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms:        make(map[string]*postgres.Room),
		participants: make(map[string]*postgres.Participant),
		guests:       make(map[string]*postgres.GuestUser),
	}
}

func (m *MemoryStore) activeParticipants(roomID string) []*postgres.Participant {
	var active []*postgres.Participant
	for _, p := range m.participants {
		if p.RoomID == roomID && p.IsActive {
			active = append(active, p)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].JoinedAt.Before(active[j].JoinedAt)
	})
	return active
}

func (m *MemoryStore) CreateRoomWithHost(ctx context.Context, room *postgres.Room, host *postgres.GuestUser, hostNickname string) (*postgres.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.rooms {
		if r.Code == room.Code {
			return nil, ErrCodeTaken
		}
	}
	if g, ok := m.guests[host.ID]; ok && g.CurrentRoomID != nil {
		return nil, ErrAlreadyInRoom
	}

	stored := *room
	m.rooms[room.ID] = &stored

	participant := &postgres.Participant{
		ID:          uuid.NewString(),
		RoomID:      room.ID,
		GuestUserID: host.ID,
		Nickname:    hostNickname,
		Role:        postgres.RoleHost,
		JoinedAt:    time.Now(),
		IsActive:    true,
	}
	m.participants[participant.ID] = participant
	stored.HostParticipantID = &participant.ID
	room.HostParticipantID = &participant.ID

	if g, ok := m.guests[host.ID]; ok {
		g.CurrentRoomID = &room.ID
		g.LastActiveAt = time.Now()
	}

	copied := *participant
	return &copied, nil
}

func (m *MemoryStore) AddParticipant(ctx context.Context, roomID string, guest *postgres.GuestUser, nickname string) (*postgres.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[roomID]
	if !ok {
		return nil, ErrNotFound
	}

	g, ok := m.guests[guest.ID]
	if !ok {
		return nil, ErrNotFound
	}
	if g.CurrentRoomID != nil {
		return nil, ErrAlreadyInRoom
	}

	active := m.activeParticipants(roomID)
	if len(active) >= room.MaxCapacity {
		return nil, ErrCapacityFull
	}
	for _, p := range active {
		if p.Nickname == nickname {
			return nil, ErrNicknameTaken
		}
		if p.GuestUserID == g.ID {
			return nil, ErrAlreadyInRoom
		}
	}

	participant := &postgres.Participant{
		ID:          uuid.NewString(),
		RoomID:      roomID,
		GuestUserID: g.ID,
		Nickname:    nickname,
		Role:        postgres.RoleParticipant,
		JoinedAt:    time.Now(),
		IsActive:    true,
	}
	m.participants[participant.ID] = participant
	g.CurrentRoomID = &roomID
	g.LastActiveAt = time.Now()

	copied := *participant
	return &copied, nil
}

func (m *MemoryStore) DeactivateParticipant(ctx context.Context, participantID string) (*LeaveResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	participant, ok := m.participants[participantID]
	if !ok {
		return nil, ErrNotFound
	}
	if !participant.IsActive {
		return nil, ErrNotActive
	}
	room, ok := m.rooms[participant.RoomID]
	if !ok {
		return nil, ErrNotFound
	}

	now := time.Now()
	participant.IsActive = false
	participant.LeftAt = &now

	if g, ok := m.guests[participant.GuestUserID]; ok {
		if g.CurrentRoomID != nil && *g.CurrentRoomID == room.ID {
			g.CurrentRoomID = nil
		}
	}

	result := &LeaveResult{Nickname: participant.Nickname}

	remaining := m.activeParticipants(room.ID)
	if participant.Role == postgres.RoleHost {
		if len(remaining) > 0 {
			successor := remaining[0]
			successor.Role = postgres.RoleHost
			room.HostParticipantID = &successor.ID
			copied := *successor
			result.PromotedHost = &copied
		} else {
			room.HostParticipantID = nil
		}
	}

	result.Room = *room
	result.RemainingCapacity = len(remaining)
	return result, nil
}

func (m *MemoryStore) DeleteRoom(ctx context.Context, roomID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rooms[roomID]; !ok {
		return 0, ErrNotFound
	}

	var removed int64
	for id, p := range m.participants {
		if p.RoomID == roomID {
			delete(m.participants, id)
			removed++
		}
	}
	for _, g := range m.guests {
		if g.CurrentRoomID != nil && *g.CurrentRoomID == roomID {
			g.CurrentRoomID = nil
		}
	}
	delete(m.rooms, roomID)
	return removed, nil
}

func (m *MemoryStore) SetRoomState(ctx context.Context, roomID string, newState string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[roomID]
	if !ok {
		return ErrNotFound
	}
	room.State = newState
	return nil
}

func (m *MemoryStore) UpdatePreparation(ctx context.Context, participantID string, patch PreparationPatch) (*postgres.PreparationStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	participant, ok := m.participants[participantID]
	if !ok {
		return nil, ErrNotFound
	}
	if !participant.IsActive {
		return nil, ErrNotActive
	}

	if patch.CharacterReady != nil {
		participant.Preparation.CharacterReady = *patch.CharacterReady
	}
	if patch.ScreenReady != nil {
		participant.Preparation.ScreenReady = *patch.ScreenReady
	}
	if patch.FinalReady != nil {
		participant.Preparation.FinalReady = *patch.FinalReady
	}

	merged := participant.Preparation
	return &merged, nil
}

func (m *MemoryStore) GetOrCreateGuest(ctx context.Context, sessionID, nickname string, ttl time.Duration) (*postgres.GuestUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, g := range m.guests {
		if g.SessionID == sessionID {
			g.LastActiveAt = time.Now()
			copied := *g
			return &copied, nil
		}
	}

	now := time.Now()
	guest := &postgres.GuestUser{
		ID:           uuid.NewString(),
		SessionID:    sessionID,
		Nickname:     nickname,
		CreatedAt:    now,
		LastActiveAt: now,
		ExpiresAt:    now.Add(ttl),
	}
	m.guests[guest.ID] = guest

	copied := *guest
	return &copied, nil
}

func (m *MemoryStore) viewLocked(room *postgres.Room) *RoomView {
	active := m.activeParticipants(room.ID)
	view := &RoomView{
		Room:            *room,
		CurrentCapacity: len(active),
	}
	for _, p := range active {
		view.ActiveParticipants = append(view.ActiveParticipants, *p)
	}
	return view
}

func (m *MemoryStore) GetRoomByCode(ctx context.Context, code string) (*RoomView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, room := range m.rooms {
		if room.Code == code {
			return m.viewLocked(room), nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) GetRoomByID(ctx context.Context, roomID string) (*RoomView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[roomID]
	if !ok {
		return nil, ErrNotFound
	}
	return m.viewLocked(room), nil
}

func (m *MemoryStore) GetParticipant(ctx context.Context, participantID string) (*postgres.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	participant, ok := m.participants[participantID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *participant
	return &copied, nil
}

func (m *MemoryStore) GetGuestBySession(ctx context.Context, sessionID string) (*postgres.GuestUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, g := range m.guests {
		if g.SessionID == sessionID {
			copied := *g
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) CodeInUse(ctx context.Context, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, room := range m.rooms {
		if room.Code == code {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) DeleteExpiredRooms(ctx context.Context, now time.Time) (*SweepResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := &SweepResult{}
	for id, room := range m.rooms {
		if room.ExpiresAt.After(now) {
			continue
		}
		for pid, p := range m.participants {
			if p.RoomID == id {
				delete(m.participants, pid)
				result.Participants++
			}
		}
		for _, g := range m.guests {
			if g.CurrentRoomID != nil && *g.CurrentRoomID == id {
				g.CurrentRoomID = nil
			}
		}
		delete(m.rooms, id)
		result.Rooms++
		result.RoomIDs = append(result.RoomIDs, id)
	}
	return result, nil
}

func (m *MemoryStore) DeleteExpiredGuests(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for id, g := range m.guests {
		if !g.ExpiresAt.After(now) && g.CurrentRoomID == nil {
			delete(m.guests, id)
			removed++
		}
	}
	return removed, nil
}

// compile-time interface checks
var (
	_ RoomStore = (*GormStore)(nil)
	_ RoomStore = (*MemoryStore)(nil)
)
