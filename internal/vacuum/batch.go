package vacuum

import (
	"slices"
	"sync"
)

// Batch is the set of rooms requested on one master but not yet dispatched.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Batch struct {
	mu      sync.Mutex
	pending map[RoomID]struct{}
}

// NewBatch returns an empty batch.
func NewBatch() *Batch {
	return &Batch{pending: make(map[RoomID]struct{})}
}

// Add inserts a room. Adding a room already pending is a no-op.
// It reports whether the room was newly added.
func (b *Batch) Add(id RoomID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.pending[id]; ok {
		return false
	}
	b.pending[id] = struct{}{}
	return true
}

// DrainAll atomically takes every pending room and leaves the batch empty.
// The result is sorted and empty (not nil) when nothing was pending.
func (b *Batch) DrainAll() []RoomID {
	b.mu.Lock()
	drained := b.pending
	b.pending = make(map[RoomID]struct{})
	b.mu.Unlock()

	return sortedRooms(drained)
}

// Clear drops every pending room and returns how many were dropped.
func (b *Batch) Clear() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(b.pending)
	if n > 0 {
		b.pending = make(map[RoomID]struct{})
	}
	return n
}

// Len returns the number of pending rooms.
func (b *Batch) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Snapshot returns the pending rooms without draining them.
func (b *Batch) Snapshot() []RoomID {
	b.mu.Lock()
	defer b.mu.Unlock()
	return sortedRooms(b.pending)
}

func sortedRooms(set map[RoomID]struct{}) []RoomID {
	rooms := make([]RoomID, 0, len(set))
	for id := range set {
		rooms = append(rooms, id)
	}
	slices.Sort(rooms)
	return rooms
}
