package vacuum

import (
	"context"
	"errors"
)

// StateSource looks up the current state of a master.
//
// Implementations return ErrUnknownMaster or ErrUnresolvedMaster (possibly
// wrapped) when no state is available.
type StateSource interface {
	MasterState(ctx context.Context, master MasterID) (MasterState, error)
}

// ReadState performs a fresh read of the master's state.
//
// It never returns an error: anything that prevents a read yields a state
// with StatusUnknown, which callers treat as not busy.
func ReadState(ctx context.Context, src StateSource, master MasterID, logger Logger) MasterState {
	if src == nil {
		return MasterState{Status: StatusUnknown}
	}

	state, err := src.MasterState(ctx, master)
	if err != nil {
		if logger != nil {
			level := logger.Debug
			if !errors.Is(err, ErrUnknownMaster) && !errors.Is(err, ErrUnresolvedMaster) {
				level = logger.Warn
			}
			level("master state unresolved", "master_id", master, "error", err)
		}
		return MasterState{Status: StatusUnknown}
	}

	if state.Status == "" {
		state.Status = StatusUnknown
	}
	return state
}
