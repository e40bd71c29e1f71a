package redis

type PresenceStatus string

const (
	StatusConnected    PresenceStatus = "connected"
	StatusDisconnected PresenceStatus = "disconnected"
)

// GuestPresence is the ephemeral realtime state of one guest inside a
// room's socket channel. It is disposable: the Postgres membership rows
// stay authoritative, presence only feeds the realtime surface.
type GuestPresence struct {
	SessionID     string         `json:"session_id"`
	ParticipantID string         `json:"participant_id"`
	Nickname      string         `json:"nickname"`
	Status        PresenceStatus `json:"status"`
	LastPing      int64          `json:"last_ping"` // Unix timestamp
	SocketID      string         `json:"socket_id"` // For direct messaging
}

// RoomPresence is the snapshot of everyone connected to a room channel.
type RoomPresence struct {
	RoomID string                   `json:"room_id"`
	Guests map[string]GuestPresence `json:"guests"` // keyed by session id
}
