package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Context key under which the resolved guest session id is stored.
const SessionIDKey = "guest_session_id"

// Cookie-session key mirroring the bearer token for browser clients.
const sessionValueKey = "session_id"

// GuestAuth resolves the caller's guest session: a signed bearer token
// first, the cookie session as fallback. Guests are anonymous, so the
// session id is the whole identity; the JWT only proves the server issued
// it.
func GuestAuth(sessionKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
			raw := strings.TrimPrefix(header, "Bearer ")
			if sessionID, err := DecodeSessionToken(raw, sessionKey); err == nil {
				c.Set(SessionIDKey, sessionID)
				c.Next()
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid session token"})
			return
		}

		session := sessions.Default(c)
		if sessionID, ok := session.Get(sessionValueKey).(string); ok && sessionID != "" {
			c.Set(SessionIDKey, sessionID)
			c.Next()
			return
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	}
}

// SessionID returns the guest session id set by GuestAuth.
func SessionID(c *gin.Context) string {
	return c.GetString(SessionIDKey)
}

// BindSessionCookie mirrors a freshly issued session id into the cookie
// session, so browser clients keep working without the Authorization header.
func BindSessionCookie(c *gin.Context, sessionID string) error {
	session := sessions.Default(c)
	session.Set(sessionValueKey, sessionID)
	return session.Save()
}

// IssueSessionToken signs a bearer token carrying the opaque session id.
func IssueSessionToken(sessionID, sessionKey string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"session_id": sessionID,
	})
	return token.SignedString([]byte(sessionKey))
}

func DecodeSessionToken(raw, sessionKey string) (string, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(sessionKey), nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}
	sessionID, ok := claims["session_id"].(string)
	if !ok || sessionID == "" {
		return "", fmt.Errorf("token carries no session id")
	}
	return sessionID, nil
}

// PipelineAuth guards the internal media-pipeline callback with a shared
// secret. An empty configured token disables the endpoint entirely.
func PipelineAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" || c.GetHeader("X-Pipeline-Token") != token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
