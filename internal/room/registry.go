package room

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/nerrad567/gray-logic-vacuumzones/internal/vacuum"
)

// Logger defines the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry caches the room catalogue in front of a Repository.
//
// The cache is populated on startup via RefreshCache() and kept in sync by
// ReplaceMaster.
//
// All public methods are thread-safe.
type Registry struct {
	repo    Repository
	cache   map[string]Room
	cacheMu sync.RWMutex
	logger  Logger
}

// NewRegistry creates a registry over repo.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]Room),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads all rooms from the repository.
func (r *Registry) RefreshCache(ctx context.Context) error {
	rooms, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading rooms: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()
	r.cache = make(map[string]Room, len(rooms))
	for _, room := range rooms {
		r.cache[room.UniqueID] = room
	}

	r.logger.Info("room cache refreshed", "count", len(rooms))
	return nil
}

// GetRoom returns the room with uniqueID or ErrRoomNotFound.
func (r *Registry) GetRoom(ctx context.Context, uniqueID string) (Room, error) {
	r.cacheMu.RLock()
	room, ok := r.cache[uniqueID]
	r.cacheMu.RUnlock()
	if ok {
		return room, nil
	}

	stored, err := r.repo.GetByUniqueID(ctx, uniqueID)
	if err != nil {
		return Room{}, err
	}
	r.cacheMu.Lock()
	r.cache[uniqueID] = *stored
	r.cacheMu.Unlock()
	return *stored, nil
}

// ListRooms returns every cached room ordered by master then room id.
func (r *Registry) ListRooms() []Room {
	return r.filter(func(Room) bool { return true })
}

// ListByMaster returns the cached rooms of master ordered by room id.
func (r *Registry) ListByMaster(master vacuum.MasterID) []Room {
	return r.filter(func(room Room) bool { return room.MasterID == master })
}

// Count returns the number of cached rooms.
func (r *Registry) Count() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}

// ReplaceMaster makes rooms the complete catalogue of master: new rooms
// are inserted, known rooms renamed and rooms no longer listed removed.
func (r *Registry) ReplaceMaster(ctx context.Context, master vacuum.MasterID, rooms map[vacuum.RoomID]string, source Source) ([]Room, error) {
	ids := make([]vacuum.RoomID, 0, len(rooms))
	for id := range rooms {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	updated := make([]Room, 0, len(ids))
	for _, id := range ids {
		room := NewRoom(master, id, rooms[id], source)
		if existing, ok := r.cached(room.UniqueID); ok {
			room.CreatedAt = existing.CreatedAt
		}
		if err := r.repo.Upsert(ctx, &room); err != nil {
			return nil, err
		}
		updated = append(updated, room)
	}

	removed, err := r.repo.DeleteMissing(ctx, master, ids)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	for uid, room := range r.cache {
		if room.MasterID == master {
			delete(r.cache, uid)
		}
	}
	for _, room := range updated {
		r.cache[room.UniqueID] = room
	}
	r.cacheMu.Unlock()

	r.logger.Info("room catalogue updated",
		"master_id", master,
		"rooms", len(updated),
		"removed", removed,
		"source", source,
	)
	return updated, nil
}

func (r *Registry) cached(uniqueID string) (Room, bool) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	room, ok := r.cache[uniqueID]
	return room, ok
}

func (r *Registry) filter(keep func(Room) bool) []Room {
	r.cacheMu.RLock()
	out := make([]Room, 0, len(r.cache))
	for _, room := range r.cache {
		if keep(room) {
			out = append(out, room)
		}
	}
	r.cacheMu.RUnlock()

	slices.SortFunc(out, func(a, b Room) int {
		if c := strings.Compare(string(a.MasterID), string(b.MasterID)); c != 0 {
			return c
		}
		return int(a.RoomID) - int(b.RoomID)
	})
	return out
}
