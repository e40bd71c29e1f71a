package postgres

import (
	"time"
)

const (
	RoleHost        = "host"
	RoleParticipant = "participant"
)

// PreparationStatus holds the per-participant readiness flags gating
// session start. Fixed named booleans, never an open map: "fully ready"
// is derived and not stored, so the flags can never diverge from it.
type PreparationStatus struct {
	CharacterReady bool `gorm:"default:false" json:"characterReady"`
	ScreenReady    bool `gorm:"default:false" json:"screenReady"`
	FinalReady     bool `gorm:"default:false" json:"finalReady"`
}

// IsFullyReady reports whether every readiness flag is set.
func (p PreparationStatus) IsFullyReady() bool {
	return p.CharacterReady && p.ScreenReady && p.FinalReady
}

/*
 * 'Participant' is the join record of one guest in one room. It is distinct
 * from GuestUser so the same guest keeps left/rejoined history: leaving
 * soft-closes the record (IsActive=false, LeftAt set) and a rejoin creates
 * a fresh one. At most one active record may exist per (room, guest) pair;
 * that uniqueness is enforced by a partial index created after migration.
 */
type Participant struct {
	ID          string `gorm:"primaryKey;size:36;not null"`
	RoomID      string `gorm:"size:36;not null;index:idx_participants_room"`
	GuestUserID string `gorm:"size:36;not null;index:idx_participants_guest"`
	Nickname    string `gorm:"size:50;not null"`
	Role        string `gorm:"size:20;not null;default:'participant'"`

	JoinedAt time.Time  `gorm:"default:CURRENT_TIMESTAMP"`
	LeftAt   *time.Time `gorm:""`
	IsActive bool       `gorm:"default:true;index:idx_participants_active"`

	Preparation PreparationStatus `gorm:"embedded;embeddedPrefix:prep_"`

	// Relationship with the room and the guest identity
	Room      Room      `gorm:"foreignKey:RoomID"`
	GuestUser GuestUser `gorm:"foreignKey:GuestUserID;constraint:OnDelete:CASCADE"`
}
