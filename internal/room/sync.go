package room

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-vacuumzones/internal/vacuum"
)

// DefaultDiscoveryTimeout bounds how long a master waits for its map.
const DefaultDiscoveryTimeout = 5 * time.Second

// RoomSource discovers the rooms of a master.
type RoomSource interface {
	DiscoverRooms(ctx context.Context, master vacuum.MasterID) (map[vacuum.RoomID]string, error)
}

// MasterSpec is one configured master.
type MasterSpec struct {
	ID vacuum.MasterID

	// Rooms is the static fallback used when the room source has nothing.
	Rooms map[vacuum.RoomID]string
}

// SyncerOptions holds the collaborators of a Syncer.
type SyncerOptions struct {
	Source      RoomSource // optional
	Registry    *Registry
	Rooms       *vacuum.RoomSet
	Coordinator *vacuum.Coordinator
	NamePrefix  string
	Timeout     time.Duration
	Logger      Logger
}

// Syncer discovers rooms, persists them in the catalogue and binds them to
// the coordinator as virtual rooms.
type Syncer struct {
	source   RoomSource
	registry *Registry
	rooms    *vacuum.RoomSet
	coord    *vacuum.Coordinator
	prefix   string
	timeout  time.Duration
	logger   Logger
}

// NewSyncer creates a Syncer.
func NewSyncer(opts SyncerOptions) (*Syncer, error) {
	if opts.Registry == nil || opts.Rooms == nil || opts.Coordinator == nil {
		return nil, fmt.Errorf("room syncer requires a registry, a room set and a coordinator")
	}
	s := &Syncer{
		source:   opts.Source,
		registry: opts.Registry,
		rooms:    opts.Rooms,
		coord:    opts.Coordinator,
		prefix:   opts.NamePrefix,
		timeout:  opts.Timeout,
		logger:   opts.Logger,
	}
	if s.timeout <= 0 {
		s.timeout = DefaultDiscoveryTimeout
	}
	if s.logger == nil {
		s.logger = noopLogger{}
	}
	return s, nil
}

// SyncAll syncs every master concurrently. It returns the first
// persistence error; discovery problems are logged, not returned.
func (s *Syncer) SyncAll(ctx context.Context, masters []MasterSpec) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, spec := range masters {
		g.Go(func() error {
			_, err := s.SyncMaster(gctx, spec)
			return err
		})
	}
	return g.Wait()
}

// SyncMaster discovers the rooms of one master and returns how many
// virtual rooms it now has.
//
// Rooms come from the room source, then the configured fallback, then the
// stored catalogue. When none has rooms a warning is logged and the master
// gets no virtual rooms.
func (s *Syncer) SyncMaster(ctx context.Context, spec MasterSpec) (int, error) {
	rooms, source, err := s.discover(ctx, spec)
	if err != nil {
		return 0, err
	}

	if rooms == nil {
		stored := s.registry.ListByMaster(spec.ID)
		if len(stored) == 0 {
			s.logger.Warn("no rooms attribute found for master, no rooms created", "master_id", spec.ID)
			s.rooms.ReplaceMaster(spec.ID, nil)
			return 0, nil
		}
		s.logger.Info("using stored room catalogue", "master_id", spec.ID, "rooms", len(stored))
		s.bind(spec.ID, stored)
		return len(stored), nil
	}

	catalogue, err := s.registry.ReplaceMaster(ctx, spec.ID, rooms, source)
	if err != nil {
		return 0, err
	}
	s.bind(spec.ID, catalogue)
	return len(catalogue), nil
}

// discover returns nil rooms when neither the source nor configuration
// lists any.
func (s *Syncer) discover(ctx context.Context, spec MasterSpec) (map[vacuum.RoomID]string, Source, error) {
	if s.source != nil {
		dctx, cancel := context.WithTimeout(ctx, s.timeout)
		rooms, err := s.source.DiscoverRooms(dctx, spec.ID)
		cancel()

		switch {
		case err == nil && len(rooms) > 0:
			return rooms, SourceMap, nil
		case err == nil:
			s.logger.Warn("map source lists no rooms", "master_id", spec.ID)
		case errors.Is(err, vacuum.ErrMalformedRoomSource):
			s.logger.Warn("map source rooms attribute unusable", "master_id", spec.ID, "error", err)
		default:
			s.logger.Info("room discovery unavailable", "master_id", spec.ID, "error", err)
		}
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
	}

	if len(spec.Rooms) > 0 {
		rooms := make(map[vacuum.RoomID]string, len(spec.Rooms))
		for id, name := range spec.Rooms {
			rooms[id] = vacuum.NormalizeRoomName(id, name)
		}
		return rooms, SourceConfig, nil
	}
	return nil, "", nil
}

func (s *Syncer) bind(master vacuum.MasterID, catalogue []Room) {
	controls := make([]*vacuum.RoomControl, 0, len(catalogue))
	for _, room := range catalogue {
		controls = append(controls, vacuum.NewRoomControl(s.coord, master, room.RoomID, room.Name, s.prefix))
	}
	s.rooms.ReplaceMaster(master, controls)
}
