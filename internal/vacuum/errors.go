package vacuum

import "errors"

// Domain errors. Use errors.Is to check for them.
var (
	// ErrUnresolvedMaster means the master's state could not be read.
	// ReadState absorbs it into StatusUnknown.
	ErrUnresolvedMaster = errors.New("vacuum: master state unavailable")

	// ErrBusy rejects a room start while the master is already cleaning.
	ErrBusy = errors.New("vacuum: master is cleaning")

	// ErrDispatchFailed wraps a command the master did not acknowledge.
	ErrDispatchFailed = errors.New("vacuum: dispatch failed")

	// ErrMalformedRoomSource means a room source had no usable rooms attribute.
	ErrMalformedRoomSource = errors.New("vacuum: malformed room source")

	ErrUnknownMaster = errors.New("vacuum: unknown master")
	ErrUnknownRoom   = errors.New("vacuum: unknown room")
	ErrClosed        = errors.New("vacuum: coordinator closed")
)
