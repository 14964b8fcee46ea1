package room

import "errors"

// ErrRoomNotFound is returned when a room is not in the catalogue.
var ErrRoomNotFound = errors.New("room not found")
