package routes

import (
	"Greenroom/config"
	"Greenroom/controllers"
	"Greenroom/middleware"
	"Greenroom/services/redis"

	"github.com/gin-gonic/gin"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// SetupRoutes configures all API routes
func SetupRoutes(router *gin.Engine, cfg *config.Config,
	roomsController *controllers.RoomsController, redisClient *redis.RedisClient) {

	// Swagger route
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// API routes group
	api := router.Group("/")
	api.Use(middleware.RateLimit(redisClient, cfg.RateLimitPerSecond))

	api.GET("/ping", controllers.Ping)

	// Session bootstrap: the one endpoint that needs no prior identity
	api.POST("/guests/session", controllers.CreateGuestSession(cfg.SessionKey))

	// Room views are readable by anyone holding the join code
	api.GET("/rooms/:room_code", roomsController.GetRoomInfo)

	// Routes that require a guest session
	authenticated := api.Group("/")
	authenticated.Use(middleware.GuestAuth(cfg.SessionKey))
	{
		authenticated.POST("/rooms", roomsController.CreateRoom)

		authenticated.POST("/rooms/join", roomsController.JoinRoom)

		authenticated.POST("/rooms/leave", roomsController.LeaveRoom)

		authenticated.DELETE("/rooms/:room_code", roomsController.EndRoom)

		authenticated.PATCH("/rooms/:room_code/state", roomsController.UpdateRoomState)

		authenticated.PATCH("/participants/:participant_id/preparation", roomsController.UpdatePreparation)
	}

	// Media pipeline callbacks, guarded by the shared secret instead of a
	// guest session
	internal := router.Group("/internal")
	internal.Use(middleware.PipelineAuth(cfg.PipelineToken))
	{
		internal.POST("/pipeline/rooms/:room_id", roomsController.PipelineCallback)
	}
}
