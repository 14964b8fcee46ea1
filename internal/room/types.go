package room

import (
	"time"

	"github.com/nerrad567/gray-logic-vacuumzones/internal/vacuum"
)

// Source records where a room's name came from.
type Source string

const (
	// SourceMap marks rooms read from a map source's rooms attribute.
	SourceMap Source = "map"

	// SourceConfig marks rooms listed under vacuum.masters[].rooms.
	SourceConfig Source = "config"
)

// Room is one catalogue entry.
type Room struct {
	UniqueID  string          `json:"unique_id"`
	MasterID  vacuum.MasterID `json:"master_id"`
	RoomID    vacuum.RoomID   `json:"room_id"`
	Name      string          `json:"name"`
	Source    Source          `json:"source"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// NewRoom builds a catalogue entry with its unique id filled in.
func NewRoom(master vacuum.MasterID, id vacuum.RoomID, name string, source Source) Room {
	return Room{
		UniqueID: vacuum.RoomUniqueID(master, id),
		MasterID: master,
		RoomID:   id,
		Name:     name,
		Source:   source,
	}
}
