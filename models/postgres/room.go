package postgres

import (
	"time"

	"gorm.io/datatypes"
)

// Room lifecycle states. The happy path moves forward only:
// waiting -> active -> recording -> processing -> completed.
// "expired" is reachable from any non-terminal state.
const (
	RoomStateWaiting    = "waiting"
	RoomStateActive     = "active"
	RoomStateRecording  = "recording"
	RoomStateProcessing = "processing"
	RoomStateCompleted  = "completed"
	RoomStateExpired    = "expired"
)

/*
 * 'Room' defines the structure of a Greenroom recording room.
 * It contains references to the Participant join records. The current
 * capacity is never stored: it is always recomputed from the active
 * participant rows, inside the same transaction that mutates them.
 */
type Room struct {
	ID          string `gorm:"primaryKey;size:36;not null"`
	Code        string `gorm:"size:6;not null;uniqueIndex:idx_rooms_code"` // Public join token, unique while the room is live
	Name        string `gorm:"size:100;not null"`
	MaxCapacity int    `gorm:"not null"`
	State       string `gorm:"size:20;not null;default:'waiting';index:idx_rooms_state"`

	// The participant currently holding the host role. Nullable because the
	// room row is inserted before its host participant in the same transaction.
	HostParticipantID *string `gorm:"size:36"`

	// Opaque client payload (layout, recording options...). The lifecycle
	// core passes it through unmodified and never inspects its contents.
	Settings datatypes.JSON `gorm:"type:jsonb;default:'{}'"`

	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP"`
	ExpiresAt time.Time `gorm:"not null;index:idx_rooms_expires_at"`

	// Relationship with the join records of this room
	Participants []*Participant `gorm:"foreignKey:RoomID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

// IsTerminal reports whether no further transition may leave the state.
func IsTerminalState(state string) bool {
	return state == RoomStateCompleted || state == RoomStateExpired
}
