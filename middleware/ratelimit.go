package middleware

import (
	"net/http"
	"time"

	redisclient "Greenroom/services/redis"

	"github.com/gin-gonic/gin"
)

// RateLimit caps requests per client IP inside a one-second fixed window.
// Counters live in Redis so the cap holds across instances. If Redis is
// down the request passes: rate limiting must never take the API with it.
func RateLimit(rc *redisclient.RedisClient, maxRequests int) gin.HandlerFunc {
	if rc == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		count, err := rc.IncrRateCounter(c.Request.Context(), c.ClientIP(), time.Second)
		if err == nil && count > int64(maxRequests) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
			return
		}
		c.Next()
	}
}
