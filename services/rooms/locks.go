package rooms

import (
	"sync"
)

// roomLocks hands out one mutex per room id so join/leave/end/transition
// traffic against the same room is serialized in-process while operations
// on different rooms never contend. Entries are removed when a room is
// deleted; a stale acquire after removal just mints a fresh mutex, which
// is harmless because the store rejects operations on missing rooms.
type roomLocks struct {
	locks sync.Map // room id -> *sync.Mutex
}

func (r *roomLocks) acquire(roomID string) func() {
	value, _ := r.locks.LoadOrStore(roomID, &sync.Mutex{})
	mu := value.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (r *roomLocks) forget(roomID string) {
	r.locks.Delete(roomID)
}
