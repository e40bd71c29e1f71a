package socketio_types

import (
	"sync"

	"github.com/zishang520/socket.io/v2/socket"
)

// SocketServer is a struct that contains the socket.io server and a map of
// socket connections keyed by guest session id. It is used to handle
// socket.io connections and room-scoped broadcasts.
type SocketServer struct {
	Sio_server *socket.Server
	// Map to track session id -> socket connections
	SessionConnections map[string]*socket.Socket
	mutex              sync.RWMutex
}

func NewSocketServer() *SocketServer {
	return &SocketServer{
		SessionConnections: make(map[string]*socket.Socket),
	}
}

// Add methods to manage connections
func (s *SocketServer) AddConnection(sessionID string, socket *socket.Socket) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.SessionConnections[sessionID] = socket
}

func (s *SocketServer) RemoveConnection(sessionID string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.SessionConnections, sessionID)
}

func (s *SocketServer) GetConnection(sessionID string) (*socket.Socket, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	conn, exists := s.SessionConnections[sessionID]
	return conn, exists
}

// BroadcastToRoom emits an event to every socket joined to a room channel.
// Safe to call before the server is started (no-op), so the HTTP layer can
// hold a reference unconditionally.
func (s *SocketServer) BroadcastToRoom(roomID string, event string, payload interface{}) {
	if s == nil || s.Sio_server == nil {
		return
	}
	s.Sio_server.To(socket.Room(roomID)).Emit(event, payload)
}
