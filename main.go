package main

import (
	"context"
	"log"
	"os"

	"Greenroom/config"
	_ "Greenroom/config/swagger"
	"Greenroom/controllers"
	"Greenroom/middleware"
	"Greenroom/routes"
	"Greenroom/services/codes"
	"Greenroom/services/highlights"
	"Greenroom/services/redis"
	"Greenroom/services/rooms"
	"Greenroom/services/socket_io"
	"Greenroom/services/store"
	"Greenroom/services/sweeper"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

// @title Greenroom API
// @version 1.0
// @description Gin-Gonic server for the Greenroom recording-room API
// @BasePath /
func main() {
	godotenv.Load()
	log.Println("Setting up server...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Error parsing configuration: %v", err)
	}

	if cfg.Prod {
		gin.SetMode(gin.ReleaseMode)
	}

	gormDB, err := config.ConnectGORM()
	if err != nil {
		log.Fatalf("Error connecting to PostgreSQL: %v", err)
	}
	log.Println("GORM Connected")

	// Only migrate in development or during deployment
	if os.Getenv("MIGRATE_POSTGRES") == "true" {
		log.Println("Migrating PostgreSQL database...")
		if err := config.MigrateDatabase(gormDB); err != nil {
			log.Printf("Warning: Database migration failed: %v", err)
			// Continue execution even if migration fails
		} else {
			log.Println("Database migrated successfully")
		}
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		log.Fatalf("Error reading GORM PostgreSQL instance: %v", err)
	}
	defer sqlDB.Close()

	redisClient, err := config.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Error connecting to Redis: %v", err)
	}
	log.Println("Connection to Redis successful")
	defer redis.CloseRedis(redisClient)

	// Lifecycle services
	roomStore := store.NewGormStore(gormDB)
	locks := rooms.NewLocks()
	generator := codes.NewGenerator(roomStore, cfg.CodeAttempts)
	manager := rooms.NewManager(rooms.Config{
		RoomTTL:     cfg.RoomTTL,
		GuestTTL:    cfg.GuestTTL,
		MinCapacity: cfg.MinCapacity,
		MaxCapacity: cfg.MaxCapacity,
	}, roomStore, generator, locks)
	machine := rooms.NewStateMachine(roomStore, locks)
	prep := rooms.NewPreparationTracker(roomStore)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sweeper.New(roomStore, redisClient, cfg.SweepInterval).Start(ctx)

	r := gin.Default()

	middleware.SetUpMiddleware(r, cfg.SessionKey)

	sio := &socket_io.MySocketServer{}
	sio.Start(r, roomStore, redisClient, cfg.SessionKey)

	roomsController := &controllers.RoomsController{
		Manager:    manager,
		Machine:    machine,
		Prep:       prep,
		Store:      roomStore,
		Highlights: highlights.NewClient(cfg.HighlightsURL),
		Broadcast:  sio.Broadcaster(),
		Presence:   redisClient,
	}

	routes.SetupRoutes(r, cfg, roomsController, redisClient)

	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Error starting server: %v", err)
	}
}
