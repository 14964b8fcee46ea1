package vacuum

import "time"

// Broadcaster pushes events to connected UI clients.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// WebSocket channels events are broadcast on.
const (
	ChannelRequest  = "vacuum.request"
	ChannelDispatch = "vacuum.dispatch"
	ChannelState    = "vacuum.state"
)

// Recorder receives coordinator metrics.
type Recorder interface {
	StartAccepted(master MasterID)
	StartRejected(master MasterID, reason string)
	PendingRooms(master MasterID, n int)
	BatchCleared(master MasterID, dropped int)
	CommandSent(master MasterID, kind CommandKind, rooms int, err error, latency time.Duration)
}

// TelemetryWriter stores dispatch outcomes in a time-series database.
type TelemetryWriter interface {
	WriteDispatch(master, command, status string, rooms int, latency time.Duration)
}

type noopRecorder struct{}

func (noopRecorder) StartAccepted(MasterID)                                       {}
func (noopRecorder) StartRejected(MasterID, string)                               {}
func (noopRecorder) PendingRooms(MasterID, int)                                   {}
func (noopRecorder) BatchCleared(MasterID, int)                                   {}
func (noopRecorder) CommandSent(MasterID, CommandKind, int, error, time.Duration) {}
