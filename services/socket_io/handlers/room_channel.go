package handlers

import (
	"log"

	"Greenroom/models/postgres"
	redis_models "Greenroom/models/redis"
	redisclient "Greenroom/services/redis"
	socketio_types "Greenroom/services/socket_io/types"

	"github.com/gin-gonic/gin"
	"github.com/zishang520/socket.io/v2/socket"
)

// ActiveParticipantLookup resolves the caller's active join record in a
// room; wired from the socket_io package to avoid exposing store queries
// here.
type ActiveParticipantLookup func(roomID string, guestID string) (*postgres.Participant, error)

// HandleJoinRoomChannel joins the socket to its room's broadcast channel.
// The caller must already be an active participant (HTTP join happened
// first); the socket layer never mutates membership, it only mirrors it.
func HandleJoinRoomChannel(redisClient *redisclient.RedisClient, client *socket.Socket,
	sessionID string, guest *postgres.GuestUser, lookup ActiveParticipantLookup) func(args ...interface{}) {
	return func(args ...interface{}) {
		if len(args) < 1 {
			client.Emit("error", gin.H{"error": "Missing room id"})
			return
		}
		roomID, ok := args[0].(string)
		if !ok {
			client.Emit("error", gin.H{"error": "Invalid room id"})
			return
		}

		participant, err := lookup(roomID, guest.ID)
		if err != nil {
			log.Printf("[SOCKET-JOIN-ERROR] session %s room %s: %v", sessionID, roomID, err)
			client.Emit("error", gin.H{"error": "You must join the room before connecting to its channel"})
			return
		}

		client.Join(socket.Room(roomID))

		if err := redisClient.SetGuestPresence(roomID, redis_models.GuestPresence{
			SessionID:     sessionID,
			ParticipantID: participant.ID,
			Nickname:      participant.Nickname,
			Status:        redis_models.StatusConnected,
			SocketID:      string(client.Id()),
		}); err != nil {
			log.Printf("[SOCKET-JOIN-ERROR] saving presence: %v", err)
		}

		log.Printf("[SOCKET-JOIN] session %s connected to room channel %s", sessionID, roomID)
		client.Emit("room_channel_joined", gin.H{
			"room_id":        roomID,
			"participant_id": participant.ID,
		})
	}
}

// HandleLeaveRoomChannel detaches the socket from a room channel. The
// membership row is untouched: leaving the room itself goes through HTTP.
func HandleLeaveRoomChannel(redisClient *redisclient.RedisClient, client *socket.Socket,
	sessionID string) func(args ...interface{}) {
	return func(args ...interface{}) {
		if len(args) < 1 {
			client.Emit("error", gin.H{"error": "Missing room id"})
			return
		}
		roomID, ok := args[0].(string)
		if !ok {
			client.Emit("error", gin.H{"error": "Invalid room id"})
			return
		}

		client.Leave(socket.Room(roomID))
		if err := redisClient.RemoveGuestPresence(roomID, sessionID); err != nil {
			log.Printf("[SOCKET-LEAVE-ERROR] removing presence: %v", err)
		}
		log.Printf("[SOCKET-LEAVE] session %s left room channel %s", sessionID, roomID)
	}
}

// HandleGetRoomPresence answers with the current presence snapshot.
func HandleGetRoomPresence(redisClient *redisclient.RedisClient, client *socket.Socket) func(args ...interface{}) {
	return func(args ...interface{}) {
		if len(args) < 1 {
			client.Emit("error", gin.H{"error": "Missing room id"})
			return
		}
		roomID, ok := args[0].(string)
		if !ok {
			client.Emit("error", gin.H{"error": "Invalid room id"})
			return
		}

		presence, err := redisClient.GetRoomPresence(roomID)
		if err != nil {
			log.Printf("[SOCKET-PRESENCE-ERROR] room %s: %v", roomID, err)
			client.Emit("error", gin.H{"error": "Could not read room presence"})
			return
		}
		client.Emit("room_presence", presence)
	}
}

// HandleDisconnecting cleans the connection map and marks the guest
// disconnected in every room channel the socket was part of.
func HandleDisconnecting(redisClient *redisclient.RedisClient, client *socket.Socket,
	sessionID string, sio *socketio_types.SocketServer) func(args ...interface{}) {
	return func(args ...interface{}) {
		sio.RemoveConnection(sessionID)

		for _, room := range client.Rooms().Keys() {
			roomID := string(room)
			if roomID == string(client.Id()) {
				continue // every socket sits in its own private room
			}
			if err := redisClient.RemoveGuestPresence(roomID, sessionID); err != nil {
				log.Printf("[SOCKET-DISCONNECT-ERROR] removing presence: %v", err)
			}
			sio.BroadcastToRoom(roomID, "participant_disconnected", gin.H{
				"session_id": sessionID,
			})
		}

		log.Printf("[SOCKET-DISCONNECT] session %s disconnecting", sessionID)
	}
}
