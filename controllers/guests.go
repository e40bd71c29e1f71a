package controllers

import (
	"log"

	"Greenroom/middleware"
	"Greenroom/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type guestSessionRequest struct {
	// Optional: clients that already hold an opaque session id may rebind
	// it (e.g. after clearing cookies but keeping local storage)
	SessionID string `json:"session_id"`
}

type guestSessionResponse struct {
	SessionID    string `json:"sessionId"`
	SessionToken string `json:"sessionToken"`
}

// @Summary Issues a guest session
// @Description Mints (or rebinds) an opaque guest session id and returns a signed bearer token for it
// @Tags guests
// @Accept json
// @Produce json
// @Success 200 {object} utils.Envelope
// @Failure 500 {object} utils.Envelope
// @Router /guests/session [post]
func CreateGuestSession(sessionKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req guestSessionRequest
		_ = c.ShouldBindJSON(&req) // empty body is fine

		sessionID := req.SessionID
		if sessionID == "" {
			sessionID = uuid.NewString()
		}

		token, err := middleware.IssueSessionToken(sessionID, sessionKey)
		if err != nil {
			log.Printf("[GUESTS-ERROR] signing session token: %v", err)
			c.JSON(500, gin.H{"error": "could not issue session"})
			return
		}

		if err := middleware.BindSessionCookie(c, sessionID); err != nil {
			log.Printf("[GUESTS-ERROR] binding session cookie: %v", err)
		}

		utils.Success(c, guestSessionResponse{
			SessionID:    sessionID,
			SessionToken: token,
		})
	}
}
