package vacuumbridge

import "errors"

var (
	// ErrNotConnected is returned when a command is sent while the broker
	// connection is down.
	ErrNotConnected = errors.New("vacuum bridge: mqtt not connected")

	// ErrCommandRejected means the bridge acknowledged a command with
	// status failed or timeout.
	ErrCommandRejected = errors.New("vacuum bridge: command rejected")

	// ErrAckTimeout means no acknowledgement arrived before the context ended.
	ErrAckTimeout = errors.New("vacuum bridge: acknowledgement timeout")

	// ErrNoRoomSource means no map source with a rooms attribute is known
	// for a master.
	ErrNoRoomSource = errors.New("vacuum bridge: no map source with rooms")

	// ErrInvalidMessage is returned for payloads that cannot be decoded.
	ErrInvalidMessage = errors.New("vacuum bridge: invalid message")
)
