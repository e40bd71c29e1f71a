package middleware

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
)

// SetUpMiddleware installs the cookie session store and CORS policy.
func SetUpMiddleware(r *gin.Engine, sessionKey string) {
	store := cookie.NewStore([]byte(sessionKey))
	r.Use(sessions.Sessions("greenroom_session", store))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization", "X-Pipeline-Token")
	r.Use(cors.New(corsConfig))
}
