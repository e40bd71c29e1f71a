package socket_io

import (
	"context"
	"errors"
	"fmt"

	"Greenroom/middleware"
	"Greenroom/models/postgres"
	"Greenroom/services/store"

	"github.com/gin-gonic/gin"
	"github.com/zishang520/socket.io/v2/socket"
)

// GetSessionTokenFromClient pulls the signed session token out of the
// socket.io handshake auth payload.
func GetSessionTokenFromClient(client *socket.Socket) (string, error) {
	authData, ok := client.Handshake().Auth.(map[string]interface{})
	if !ok {
		client.Emit("error", gin.H{"error": "Authentication failed: missing auth data"})
		return "", errors.New("authentication data missing")
	}

	token, exists := authData["session_token"].(string)
	if !exists || token == "" {
		client.Emit("error", gin.H{"error": "Authentication failed: missing session token"})
		return "", errors.New("session token not found in authentication")
	}

	return token, nil
}

// VerifyGuestConnection authenticates a socket against the guest store.
// The token proves the server issued the session id; the store lookup
// proves a guest is actually bound to it.
func VerifyGuestConnection(client *socket.Socket, sessionKey string, s store.RoomStore) (bool, string, *postgres.GuestUser) {
	token, err := GetSessionTokenFromClient(client)
	if err != nil {
		return false, "", nil
	}

	sessionID, err := middleware.DecodeSessionToken(token, sessionKey)
	if err != nil {
		client.Emit("error", gin.H{"error": "Authentication failed: invalid session token"})
		return false, "", nil
	}

	guest, err := s.GetGuestBySession(context.Background(), sessionID)
	if err != nil {
		client.Emit("error", gin.H{"error": "Authentication failed: unknown guest session"})
		return false, "", nil
	}

	return true, sessionID, guest
}

// activeParticipantIn returns the guest's active join record in a room.
func activeParticipantIn(s store.RoomStore, roomID string, guestID string) (*postgres.Participant, error) {
	view, err := s.GetRoomByID(context.Background(), roomID)
	if err != nil {
		return nil, err
	}
	for i := range view.ActiveParticipants {
		if view.ActiveParticipants[i].GuestUserID == guestID {
			return &view.ActiveParticipants[i], nil
		}
	}
	return nil, fmt.Errorf("guest %s is not an active participant of room %s", guestID, roomID)
}
