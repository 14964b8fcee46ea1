package vacuumbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/nerrad567/gray-logic-vacuumzones/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-vacuumzones/internal/vacuum"
)

// mapEntry is the last retained payload of one map source.
type mapEntry struct {
	rooms json.RawMessage // nil when the payload had no rooms attribute
}

// MapCache keeps the retained map payload of every map source and resolves
// the rooms of a master from it.
//
// A master with a configured map source uses only that source. Otherwise
// the source named after the master's slug is tried first, then the first
// source (in name order) that carries a rooms attribute.
//
// Thread Safety: All methods are safe for concurrent use.
type MapCache struct {
	logger Logger

	mu       sync.Mutex
	sources  map[vacuum.MasterID]string
	maps     map[string]mapEntry
	changed  chan struct{}
	onUpdate func(source string)
}

// NewMapCache creates a cache. sources maps masters to their configured
// map source; masters may be absent.
func NewMapCache(sources map[vacuum.MasterID]string, logger Logger) *MapCache {
	if logger == nil {
		logger = noopLogger{}
	}
	m := &MapCache{
		logger:  logger,
		sources: make(map[vacuum.MasterID]string, len(sources)),
		maps:    make(map[string]mapEntry),
		changed: make(chan struct{}),
	}
	for master, src := range sources {
		if src != "" {
			m.sources[master] = src
		}
	}
	return m
}

// SetOnUpdate registers a callback run after a map source changes.
func (m *MapCache) SetOnUpdate(fn func(source string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onUpdate = fn
}

// HandleMap processes a message on graylogic/map/vacuum/{map_source}.
// An empty payload forgets the source.
func (m *MapCache) HandleMap(topic string, payload []byte) error {
	source, ok := parseVacuumTopic(topic, mqtt.CategoryMap)
	if !ok {
		return nil
	}

	var entry mapEntry
	if len(payload) > 0 {
		var msg MapMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			return fmt.Errorf("%w: map %s: %w", ErrInvalidMessage, source, err)
		}
		if len(msg.Rooms) > 0 && !bytes.Equal(msg.Rooms, []byte("null")) {
			entry.rooms = msg.Rooms
		} else {
			m.logger.Warn("map source has no rooms attribute", "map_source", source)
		}
	}

	m.mu.Lock()
	if len(payload) == 0 {
		delete(m.maps, source)
	} else {
		m.maps[source] = entry
	}
	close(m.changed)
	m.changed = make(chan struct{})
	onUpdate := m.onUpdate
	m.mu.Unlock()

	if onUpdate != nil {
		onUpdate(source)
	}
	return nil
}

// Sources returns the names of all cached map sources.
func (m *MapCache) Sources() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.maps))
	for src := range m.maps {
		out = append(out, src)
	}
	slices.Sort(out)
	return out
}

// SourceFor returns the map source that would be used for master, if any.
func (m *MapCache) SourceFor(master vacuum.MasterID) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	src, _, ok := m.resolveLocked(master)
	return src, ok
}

// DiscoverRooms returns the rooms of master. It waits for a usable map
// source to be retained until ctx ends, then returns ErrNoRoomSource.
func (m *MapCache) DiscoverRooms(ctx context.Context, master vacuum.MasterID) (map[vacuum.RoomID]string, error) {
	for {
		m.mu.Lock()
		source, raw, ok := m.resolveLocked(master)
		changed := m.changed
		m.mu.Unlock()

		if ok {
			rooms, skipped, err := vacuum.ParseRooms(raw)
			if err != nil {
				return nil, fmt.Errorf("map source %s: %w", source, err)
			}
			if len(skipped) > 0 {
				m.logger.Warn("skipped room entries without a usable id",
					"master_id", master,
					"map_source", source,
					"entries", skipped,
				)
			}
			return rooms, nil
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s", ErrNoRoomSource, master)
		}
	}
}

func (m *MapCache) resolveLocked(master vacuum.MasterID) (string, json.RawMessage, bool) {
	if src, ok := m.sources[master]; ok {
		entry, found := m.maps[src]
		return src, entry.rooms, found && entry.rooms != nil
	}

	if entry, ok := m.maps[master.Slug()]; ok && entry.rooms != nil {
		return master.Slug(), entry.rooms, true
	}

	names := make([]string, 0, len(m.maps))
	for src := range m.maps {
		names = append(names, src)
	}
	slices.Sort(names)
	for _, src := range names {
		if entry := m.maps[src]; entry.rooms != nil {
			return src, entry.rooms, true
		}
	}
	return "", nil, false
}
