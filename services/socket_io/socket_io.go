package socket_io

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"Greenroom/models/postgres"
	"Greenroom/services/redis"
	"Greenroom/services/socket_io/handlers"
	socketio_types "Greenroom/services/socket_io/types"
	"Greenroom/services/store"

	"github.com/gin-gonic/gin"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io/v2/socket"
)

type MySocketServer socketio_types.SocketServer

// Broadcaster exposes the room-broadcast surface the HTTP controllers use.
func (sio *MySocketServer) Broadcaster() *socketio_types.SocketServer {
	return (*socketio_types.SocketServer)(sio)
}

// Start mounts the socket.io endpoint on the gin router and wires the room
// channel handlers. Sockets only mirror membership state: joining a room
// happens over HTTP, the channel is for presence and room-scoped events.
func (sio *MySocketServer) Start(router *gin.Engine, s store.RoomStore, redisClient *redis.RedisClient, sessionKey string) {
	c := socket.DefaultServerOptions()
	c.SetServeClient(true)
	// NOTE: higher ping interval and timeout to 1) reduce network load and 2) support slower networks
	c.SetPingInterval(5 * time.Second)
	c.SetPingTimeout(3 * time.Second)
	c.SetMaxHttpBufferSize(1000000)
	c.SetConnectTimeout(10 * time.Second)
	c.SetTransports(types.NewSet("polling", "websocket"))
	c.SetCors(&types.Cors{
		Origin:      "*",
		Credentials: true,
	})

	// KEY: initialize the map, it panics otherwise
	sio.SessionConnections = make(map[string]*socket.Socket)

	lookup := func(roomID string, guestID string) (*postgres.Participant, error) {
		return activeParticipantIn(s, roomID, guestID)
	}

	sio.Sio_server = socket.NewServer(nil, nil)
	sio.Sio_server.On("connection", func(clients ...interface{}) {
		client := clients[0].(*socket.Socket)

		// Check if the client is authenticated
		success, sessionID, guest := VerifyGuestConnection(client, sessionKey, s)
		if !success {
			return
		}

		// Add connection to map
		(*socketio_types.SocketServer)(sio).AddConnection(sessionID, client)

		fmt.Println("A guest just connected!: ", sessionID)

		// Attach the socket to its room's broadcast channel
		client.On("join_room_channel", handlers.HandleJoinRoomChannel(redisClient, client, sessionID, guest, lookup))

		// Detach from a room channel voluntarily
		client.On("leave_room_channel", handlers.HandleLeaveRoomChannel(redisClient, client, sessionID))

		// Snapshot of who is connected to a room channel right now
		client.On("get_room_presence", handlers.HandleGetRoomPresence(redisClient, client))

		// NOTE: will remove sio connection from map
		client.On("disconnecting", handlers.HandleDisconnecting(redisClient, client, sessionID, (*socketio_types.SocketServer)(sio)))
	})

	router.POST("/socket.io/*f", gin.WrapH(sio.Sio_server.ServeHandler(c)))
	router.GET("/socket.io/*f", gin.WrapH(sio.Sio_server.ServeHandler(c)))

	SignalC := make(chan os.Signal, 1)

	signal.Notify(SignalC, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		for s := range SignalC {
			switch s {
			case syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT:
				sio.Sio_server.Close(nil)
				os.Exit(0)
			}
		}
	}()

	fmt.Println("Socket server started")
}
