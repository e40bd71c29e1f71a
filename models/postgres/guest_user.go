package postgres

import (
	"time"
)

/*
 * 'GuestUser' is an anonymous, session-bound identity. Guests are never
 * registered accounts: they live for a bounded TTL and are reclaimed by the
 * expiration sweeper once it passes, independent of any room they joined.
 */
type GuestUser struct {
	ID        string `gorm:"primaryKey;size:36;not null"`
	SessionID string `gorm:"size:128;not null;uniqueIndex:idx_guest_users_session"` // Client-supplied opaque session token
	Nickname  string `gorm:"size:50;not null"`

	// A guest belongs to at most one room at a time
	CurrentRoomID *string `gorm:"size:36;index:idx_guest_users_current_room"`

	CreatedAt    time.Time `gorm:"default:CURRENT_TIMESTAMP"`
	LastActiveAt time.Time `gorm:"default:CURRENT_TIMESTAMP"`
	ExpiresAt    time.Time `gorm:"not null;index:idx_guest_users_expires_at"`
}
