package sweeper

import (
	"context"
	"log"
	"time"

	redisclient "Greenroom/services/redis"
	redis_utils "Greenroom/services/redis/utils"
	"Greenroom/services/store"
)

/*
 * Sweeper is the background reclaimer. On a fixed interval it deletes
 * every room whose TTL has passed (cascading participants, releasing the
 * guests' room links) and then every expired guest that is no longer
 * linked to a live room. It only ever removes rows matching a hard expiry
 * predicate, so it needs no coordination with request traffic beyond the
 * store's own atomic delete semantics. A failed tick is logged and the
 * next tick runs as scheduled.
 */
type Sweeper struct {
	store    store.RoomStore
	redis    *redisclient.RedisClient
	interval time.Duration
}

// New builds a sweeper. redis may be nil (presence cleanup is skipped).
func New(s store.RoomStore, rc *redisclient.RedisClient, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Sweeper{store: s, redis: rc, interval: interval}
}

// Start runs the sweep loop until ctx is cancelled. Call in a goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	log.Printf("[SWEEPER] started, interval %s", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[SWEEPER] stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one sweep pass. Exported so tests and admin tooling can drive
// it without the ticker.
func (s *Sweeper) Tick(ctx context.Context) {
	now := time.Now()

	result, err := s.store.DeleteExpiredRooms(ctx, now)
	if err != nil {
		log.Printf("[SWEEPER-ERROR] room sweep failed: %v", err)
	} else if result.Rooms > 0 {
		log.Printf("[SWEEPER] removed %d expired rooms (%d participants)",
			result.Rooms, result.Participants)
		s.cleanupPresence(result.RoomIDs)
	}

	guests, err := s.store.DeleteExpiredGuests(ctx, now)
	if err != nil {
		log.Printf("[SWEEPER-ERROR] guest sweep failed: %v", err)
	} else if guests > 0 {
		log.Printf("[SWEEPER] removed %d expired guests", guests)
	}
}

func (s *Sweeper) cleanupPresence(roomIDs []string) {
	if s.redis == nil || len(roomIDs) == 0 {
		return
	}
	keys := make([]string, 0, len(roomIDs))
	for _, id := range roomIDs {
		keys = append(keys, redis_utils.FormatRoomPresenceKey(id))
	}
	if err := s.redis.CleanupKeys(keys); err != nil {
		// Presence keys expire on their own TTL anyway
		log.Printf("[SWEEPER-ERROR] presence cleanup failed: %v", err)
	}
}
