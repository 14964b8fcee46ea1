package vacuum

import (
	"context"
	"fmt"
	"time"
)

// DispatchEvent is broadcast on ChannelDispatch after every command.
type DispatchEvent struct {
	MasterID MasterID    `json:"master_id"`
	Kind     CommandKind `json:"kind"`
	Command  string      `json:"command"`
	RoomIDs  []RoomID    `json:"room_ids,omitempty"`
	Status   string      `json:"status"`
	Error    string      `json:"error,omitempty"`
}

// DispatcherDeps holds the collaborators of a Dispatcher. Only Sender is
// required.
type DispatcherDeps struct {
	Sender    CommandSender
	Commands  CommandSet
	History   HistoryRepository
	Events    Broadcaster
	Telemetry TelemetryWriter
	Metrics   Recorder
	Logger    Logger
}

// Dispatcher turns a drained batch into one segment clean command and
// sends stop and return-home commands.
//
// Delivery is at most once. A failed command is logged and recorded but
// never retried or re-queued.
type Dispatcher struct {
	sender    CommandSender
	commands  CommandSet
	history   HistoryRepository
	events    Broadcaster
	telemetry TelemetryWriter
	metrics   Recorder
	logger    Logger
	now       func() time.Time
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(deps DispatcherDeps) (*Dispatcher, error) {
	if deps.Sender == nil {
		return nil, fmt.Errorf("vacuum: dispatcher requires a command sender")
	}
	d := &Dispatcher{
		sender:    deps.Sender,
		commands:  deps.Commands,
		history:   deps.History,
		events:    deps.Events,
		telemetry: deps.Telemetry,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		now:       time.Now,
	}
	if d.commands.Surface == "" {
		d.commands = CommandSet{Surface: SurfaceAppSegmentClean, Repeats: 1}
	}
	if d.metrics == nil {
		d.metrics = noopRecorder{}
	}
	if d.logger == nil {
		d.logger = noopLogger{}
	}
	return d, nil
}

// Commands returns the command set in use.
func (d *Dispatcher) Commands() CommandSet {
	return d.commands
}

// Flush drains batch and sends its rooms to master as one segment clean
// command. An empty batch sends nothing and returns (nil, nil).
//
// The drained rooms are returned even when the send fails; they are not
// put back into the batch.
func (d *Dispatcher) Flush(ctx context.Context, master MasterID, batch *Batch) ([]RoomID, error) {
	rooms := batch.DrainAll()
	d.metrics.PendingRooms(master, 0)
	if len(rooms) == 0 {
		return nil, nil
	}

	cmd := d.commands.SegmentClean(rooms)
	err := d.Send(ctx, master, cmd)
	if err != nil {
		d.logger.Error("segment clean not acknowledged, rooms must be requested again",
			"master_id", master,
			"room_ids", rooms,
			"error", err,
		)
		return rooms, err
	}

	d.logger.Info("segment clean dispatched", "master_id", master, "room_ids", rooms)
	return rooms, nil
}

// Send delivers cmd to master, waits for the acknowledgement and records
// the outcome. Failures are returned wrapped in ErrDispatchFailed.
func (d *Dispatcher) Send(ctx context.Context, master MasterID, cmd Command) error {
	rec := DispatchRecord{
		MasterID:    master,
		Kind:        cmd.Kind,
		Command:     cmd.Name,
		RoomIDs:     cmd.Rooms,
		RequestedAt: d.now().UTC(),
	}

	sendErr := d.sender.Send(ctx, master, cmd)

	rec.CompletedAt = d.now().UTC()
	rec.Status = DispatchAcknowledged
	if sendErr != nil {
		sendErr = fmt.Errorf("%w: %s to %s: %w", ErrDispatchFailed, cmd.Name, master, sendErr)
		rec.Status = DispatchFailed
		rec.Error = sendErr.Error()
	}

	d.record(rec, sendErr)
	return sendErr
}

// record fans the outcome out to history, telemetry, metrics and UI.
// History uses a fresh context: the send context may already be expired.
func (d *Dispatcher) record(rec DispatchRecord, sendErr error) {
	d.metrics.CommandSent(rec.MasterID, rec.Kind, len(rec.RoomIDs), sendErr, rec.Latency())

	if d.history != nil {
		ctx, cancel := context.WithTimeout(context.Background(), historyWriteTimeout)
		if err := d.history.RecordDispatch(ctx, &rec); err != nil {
			d.logger.Warn("failed to record dispatch", "master_id", rec.MasterID, "error", err)
		}
		cancel()
	}

	if d.telemetry != nil {
		d.telemetry.WriteDispatch(string(rec.MasterID), rec.Command, rec.Status, len(rec.RoomIDs), rec.Latency())
	}

	if d.events != nil {
		d.events.Broadcast(ChannelDispatch, DispatchEvent{
			MasterID: rec.MasterID,
			Kind:     rec.Kind,
			Command:  rec.Command,
			RoomIDs:  rec.RoomIDs,
			Status:   rec.Status,
			Error:    rec.Error,
		})
	}
}

const historyWriteTimeout = 5 * time.Second
