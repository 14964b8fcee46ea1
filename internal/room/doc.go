// Package room keeps the catalogue of virtual rooms.
//
// Rooms are discovered per master from a RoomSource (the retained map of
// the vacuum bridge), fall back to rooms listed in configuration, and are
// persisted in SQLite so the API can list them before the bridge has
// republished its map.
//
// The Registry caches the catalogue. The Syncer turns catalogue entries
// into vacuum.RoomControl values bound to the coordinator.
package room
