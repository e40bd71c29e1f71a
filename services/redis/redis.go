package redis

import (
	redis_models "Greenroom/models/redis"
	redis_utils "Greenroom/services/redis/utils"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient handles the ephemeral Redis state: per-room presence
// snapshots for the realtime surface and the fixed-window rate counters.
// Nothing stored here is authoritative; the Postgres store is.
type RedisClient struct {
	Client *redis.Client
	Ctx    context.Context
}

// NewRedisClient creates a new Redis client instance
func NewRedisClient(Addr string, DB int) *RedisClient {
	var client *redis.Client
	if Addr != "localhost:6379" {
		log.Println("Connecting to remote Redis...")
		opt, err := redis.ParseURL(Addr)
		if err != nil {
			panic("Error parsing Redis URL")
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{
			Addr: Addr,
			DB:   DB,
		})
	}
	return &RedisClient{
		Client: client,
		Ctx:    context.Background(),
	}
}

// SaveRoomPresence stores a room's presence snapshot.
// Key format: "room:{id}:presence"
// TTL: 24 hours (presence dies with the room's guests anyway)
func (rc *RedisClient) SaveRoomPresence(presence *redis_models.RoomPresence) error {
	key := redis_utils.FormatRoomPresenceKey(presence.RoomID)
	data, err := json.Marshal(presence)
	if err != nil {
		return fmt.Errorf("error marshaling presence data: %v", err)
	}
	return rc.Client.Set(rc.Ctx, key, data, 24*time.Hour).Err()
}

// GetRoomPresence retrieves a room's presence snapshot.
// Key format: "room:{id}:presence"
// A missing key yields an empty snapshot, not an error.
func (rc *RedisClient) GetRoomPresence(roomID string) (*redis_models.RoomPresence, error) {
	key := redis_utils.FormatRoomPresenceKey(roomID)
	data, err := rc.Client.Get(rc.Ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return &redis_models.RoomPresence{
				RoomID: roomID,
				Guests: make(map[string]redis_models.GuestPresence),
			}, nil
		}
		return nil, fmt.Errorf("error getting presence data: %v", err)
	}

	var presence redis_models.RoomPresence
	if err := json.Unmarshal(data, &presence); err != nil {
		return nil, fmt.Errorf("error unmarshaling presence data: %v", err)
	}
	if presence.Guests == nil {
		presence.Guests = make(map[string]redis_models.GuestPresence)
	}
	return &presence, nil
}

// SetGuestPresence upserts one guest into a room's presence snapshot.
func (rc *RedisClient) SetGuestPresence(roomID string, guest redis_models.GuestPresence) error {
	presence, err := rc.GetRoomPresence(roomID)
	if err != nil {
		return err
	}
	guest.LastPing = time.Now().Unix()
	presence.Guests[guest.SessionID] = guest
	return rc.SaveRoomPresence(presence)
}

// RemoveGuestPresence drops one guest from a room's presence snapshot.
func (rc *RedisClient) RemoveGuestPresence(roomID, sessionID string) error {
	presence, err := rc.GetRoomPresence(roomID)
	if err != nil {
		return err
	}
	delete(presence.Guests, sessionID)
	return rc.SaveRoomPresence(presence)
}

// DeleteRoomPresence removes a room's presence snapshot entirely.
// Called when the room is ended or swept.
func (rc *RedisClient) DeleteRoomPresence(roomID string) error {
	key := redis_utils.FormatRoomPresenceKey(roomID)
	if err := rc.Client.Del(rc.Ctx, key).Err(); err != nil {
		return fmt.Errorf("error deleting presence data: %v", err)
	}
	return nil
}

// CleanupKeys removes the specified keys from Redis
func (rc *RedisClient) CleanupKeys(keys []string) error {
	for _, key := range keys {
		if err := rc.Client.Del(rc.Ctx, key).Err(); err != nil {
			return fmt.Errorf("failed to cleanup Redis key %s: %v", key, err)
		}
	}
	return nil
}

// IncrRateCounter bumps the fixed-window request counter for a client and
// returns the count inside the current window.
func (rc *RedisClient) IncrRateCounter(ctx context.Context, clientIP string, window time.Duration) (int64, error) {
	key := redis_utils.FormatRateLimitKey(clientIP)
	pipe := rc.Client.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("error bumping rate counter: %v", err)
	}
	return incr.Val(), nil
}
