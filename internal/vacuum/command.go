package vacuum

import (
	"context"
	"fmt"
)

// CommandKind is the logical command, independent of the device surface.
type CommandKind string

// Logical commands sent to a master.
const (
	KindSegmentClean CommandKind = "segment_clean"
	KindStop         CommandKind = "stop"
	KindReturnHome   CommandKind = "return_home"
)

// Command is one outbound device command.
type Command struct {
	Kind CommandKind

	// Name is the device verb, e.g. "app_segment_clean".
	Name string

	// Params is encoded as the command's JSON parameters. Nil for no params.
	Params any

	// Rooms lists the segments a KindSegmentClean command carries.
	Rooms []RoomID
}

// CommandSender delivers a command to a master and waits for its
// acknowledgement. The wait is bounded by ctx.
type CommandSender interface {
	Send(ctx context.Context, master MasterID, cmd Command) error
}

// Command surfaces.
const (
	// SurfaceAppSegmentClean targets the Roborock miio verbs.
	SurfaceAppSegmentClean = "app_segment_clean"

	// SurfaceSegmentClean targets a bridge exposing a dedicated
	// segment_clean verb.
	SurfaceSegmentClean = "segment_clean"
)

// CommandSet builds commands for one device command surface.
type CommandSet struct {
	Surface string
	Repeats int
}

// NewCommandSet validates the surface and returns a CommandSet.
func NewCommandSet(surface string, repeats int) (CommandSet, error) {
	switch surface {
	case "":
		surface = SurfaceAppSegmentClean
	case SurfaceAppSegmentClean, SurfaceSegmentClean:
	default:
		return CommandSet{}, fmt.Errorf("vacuum: unsupported command surface %q", surface)
	}
	if repeats < 1 {
		repeats = 1
	}
	return CommandSet{Surface: surface, Repeats: repeats}, nil
}

// SegmentClean builds the single multi-segment clean command for rooms.
func (s CommandSet) SegmentClean(rooms []RoomID) Command {
	ids := roomInts(rooms)

	cmd := Command{Kind: KindSegmentClean, Rooms: rooms}
	switch s.Surface {
	case SurfaceSegmentClean:
		cmd.Name = "segment_clean"
		cmd.Params = map[string]any{"segments": ids, "repeats": s.repeats()}
	default:
		cmd.Name = "app_segment_clean"
		if s.repeats() > 1 {
			cmd.Params = []any{ids, s.repeats()}
		} else {
			cmd.Params = ids
		}
	}
	return cmd
}

// Stop builds the stop command.
func (s CommandSet) Stop() Command {
	if s.Surface == SurfaceSegmentClean {
		return Command{Kind: KindStop, Name: "stop"}
	}
	return Command{Kind: KindStop, Name: "app_stop"}
}

// ReturnHome builds the return-to-base command.
func (s CommandSet) ReturnHome() Command {
	if s.Surface == SurfaceSegmentClean {
		return Command{Kind: KindReturnHome, Name: "return_to_base"}
	}
	return Command{Kind: KindReturnHome, Name: "app_charge"}
}

func (s CommandSet) repeats() int {
	if s.Repeats < 1 {
		return 1
	}
	return s.Repeats
}
