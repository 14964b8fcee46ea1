package vacuum

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Named is implemented by room descriptors that carry their own name.
type Named interface {
	RoomName() string
}

// NormalizeRoomName returns the canonical name of room id given a loosely
// structured descriptor.
//
// It tries, in order:
//  1. a structured name: a Named value, a string, or an object with a "name" field
//  2. a lookup of id in a mapping keyed by room id
//  3. the fallback "Room {id}"
func NormalizeRoomName(id RoomID, descriptor any) string {
	if name := structuredName(descriptor); name != "" {
		return name
	}
	if name := structuredName(lookupRoom(id, descriptor)); name != "" {
		return name
	}
	return FallbackRoomName(id)
}

// FallbackRoomName is the name used when a descriptor has none.
func FallbackRoomName(id RoomID) string {
	return "Room " + id.String()
}

func structuredName(descriptor any) string {
	switch d := descriptor.(type) {
	case Named:
		return strings.TrimSpace(d.RoomName())
	case string:
		return strings.TrimSpace(d)
	case map[string]any:
		if name, ok := d["name"].(string); ok {
			return strings.TrimSpace(name)
		}
	case json.RawMessage:
		var v any
		if err := json.Unmarshal(d, &v); err == nil {
			return structuredName(v)
		}
	}
	return ""
}

func lookupRoom(id RoomID, descriptor any) any {
	switch d := descriptor.(type) {
	case map[string]any:
		return d[id.String()]
	case map[RoomID]string:
		return d[id]
	case map[int]string:
		return d[int(id)]
	}
	return nil
}

// ParseRooms reads the "rooms" attribute of a map payload into room names.
//
// Accepted shapes:
//
//	{"16": "Kitchen", "17": {"name": "Hallway"}}
//	[{"id": 16, "name": "Kitchen"}, {"id": 17}]
//
// Entries without a usable name get FallbackRoomName. Entries without a
// usable id are skipped and reported in skipped. A rooms value of any
// other shape returns ErrMalformedRoomSource.
func ParseRooms(raw json.RawMessage) (rooms map[RoomID]string, skipped []string, err error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrMalformedRoomSource, err)
	}

	rooms = make(map[RoomID]string)
	switch d := v.(type) {
	case map[string]any:
		for key, desc := range d {
			id, convErr := strconv.Atoi(strings.TrimSpace(key))
			if convErr != nil {
				skipped = append(skipped, key)
				continue
			}
			rooms[RoomID(id)] = NormalizeRoomName(RoomID(id), desc)
		}
	case []any:
		for i, item := range d {
			obj, ok := item.(map[string]any)
			if !ok {
				skipped = append(skipped, strconv.Itoa(i))
				continue
			}
			id, ok := roomIDField(obj)
			if !ok {
				skipped = append(skipped, strconv.Itoa(i))
				continue
			}
			rooms[id] = NormalizeRoomName(id, obj)
		}
	default:
		return nil, nil, fmt.Errorf("%w: rooms is %T", ErrMalformedRoomSource, v)
	}

	slices.Sort(skipped)
	return rooms, skipped, nil
}

func roomIDField(obj map[string]any) (RoomID, bool) {
	for _, key := range []string{"id", "segment_id", "room_id"} {
		switch v := obj[key].(type) {
		case float64:
			if v == float64(int(v)) {
				return RoomID(int(v)), true
			}
		case string:
			if id, err := strconv.Atoi(v); err == nil {
				return RoomID(id), true
			}
		}
	}
	return 0, false
}
