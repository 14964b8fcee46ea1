package vacuum

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// UniqueIDPrefix starts every virtual room's unique id.
const UniqueIDPrefix = "vacuumzones"

// RoomFeatures is what every virtual room supports.
const RoomFeatures = FeatureStart | FeatureStop | FeatureReturnHome

// RoomUniqueID builds the stable id of a virtual room:
// vacuumzones_{master slug}_{room id}.
func RoomUniqueID(master MasterID, room RoomID) string {
	return fmt.Sprintf("%s_%s_%d", UniqueIDPrefix, master.Slug(), room)
}

// RoomControl is the virtual vacuum of one room. It owns no state of its
// own: requests go through the coordinator and the displayed state is
// always derived from the master.
type RoomControl struct {
	master MasterID
	id     RoomID
	name   string
	prefix string
	coord  *Coordinator
}

// NewRoomControl binds a room of master to the coordinator.
// prefix is prepended to the room name to form the display name.
func NewRoomControl(coord *Coordinator, master MasterID, id RoomID, roomName, prefix string) *RoomControl {
	return &RoomControl{
		master: master,
		id:     id,
		name:   roomName,
		prefix: prefix,
		coord:  coord,
	}
}

// Master returns the master this room belongs to.
func (r *RoomControl) Master() MasterID { return r.master }

// RoomID returns the segment id.
func (r *RoomControl) RoomID() RoomID { return r.id }

// RoomName returns the room name without prefix.
func (r *RoomControl) RoomName() string { return r.name }

// Name returns the display name, e.g. "Clean Kitchen".
func (r *RoomControl) Name() string {
	return strings.TrimSpace(r.prefix + " " + r.name)
}

// UniqueID returns the stable id of this virtual room.
func (r *RoomControl) UniqueID() string {
	return RoomUniqueID(r.master, r.id)
}

// Features returns the supported feature flags.
func (r *RoomControl) Features() Feature {
	return RoomFeatures
}

// Start asks for this room to be cleaned in the master's next batch.
// It returns ErrBusy while the master is cleaning.
func (r *RoomControl) Start(ctx context.Context) error {
	return r.coord.RequestStart(ctx, r.master, r.id)
}

// Stop stops the master and drops its pending batch.
func (r *RoomControl) Stop(ctx context.Context) error {
	return r.coord.RequestStop(ctx, r.master)
}

// ReturnHome sends the master to its dock and drops its pending batch.
func (r *RoomControl) ReturnHome(ctx context.Context) error {
	return r.coord.RequestReturnHome(ctx, r.master)
}

// DisplayState returns the master's activity; every room of a master
// shows the same state.
func (r *RoomControl) DisplayState(ctx context.Context) Activity {
	return r.coord.DisplayState(ctx, r.master)
}

// RoomSet indexes the virtual rooms by unique id.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type RoomSet struct {
	mu    sync.RWMutex
	rooms map[string]*RoomControl
}

// NewRoomSet returns an empty set.
func NewRoomSet() *RoomSet {
	return &RoomSet{rooms: make(map[string]*RoomControl)}
}

// Put adds or replaces a room.
func (s *RoomSet) Put(r *RoomControl) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[r.UniqueID()] = r
}

// ReplaceMaster swaps every room of master for rooms.
func (s *RoomSet) ReplaceMaster(master MasterID, rooms []*RoomControl) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for uid, r := range s.rooms {
		if r.master == master {
			delete(s.rooms, uid)
		}
	}
	for _, r := range rooms {
		s.rooms[r.UniqueID()] = r
	}
}

// Get returns the room with uniqueID.
func (s *RoomSet) Get(uniqueID string) (*RoomControl, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rooms[uniqueID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRoom, uniqueID)
	}
	return r, nil
}

// List returns all rooms ordered by master then room id.
func (s *RoomSet) List() []*RoomControl {
	return s.filter(func(*RoomControl) bool { return true })
}

// ListByMaster returns the rooms of master ordered by room id.
func (s *RoomSet) ListByMaster(master MasterID) []*RoomControl {
	return s.filter(func(r *RoomControl) bool { return r.master == master })
}

// Len returns the number of rooms.
func (s *RoomSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

func (s *RoomSet) filter(keep func(*RoomControl) bool) []*RoomControl {
	s.mu.RLock()
	out := make([]*RoomControl, 0, len(s.rooms))
	for _, r := range s.rooms {
		if keep(r) {
			out = append(out, r)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b *RoomControl) int {
		if c := strings.Compare(string(a.master), string(b.master)); c != 0 {
			return c
		}
		return int(a.id) - int(b.id)
	})
	return out
}
