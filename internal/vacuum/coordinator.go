package vacuum

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultAckTimeout bounds a timer-triggered dispatch when none is configured.
const DefaultAckTimeout = 10 * time.Second

// CoordinatorDeps holds the collaborators of a Coordinator.
type CoordinatorDeps struct {
	States     StateSource
	Dispatcher *Dispatcher
	Events     Broadcaster
	Metrics    Recorder
	Logger     Logger

	// Window is the debounce quiet period. Defaults to DefaultDebounceWindow.
	Window time.Duration

	// AckTimeout bounds the acknowledgement wait of batched dispatches.
	AckTimeout time.Duration
}

// RequestEvent is broadcast on ChannelRequest for every room start request.
type RequestEvent struct {
	MasterID MasterID `json:"master_id"`
	RoomID   RoomID   `json:"room_id"`
	Accepted bool     `json:"accepted"`
	Reason   string   `json:"reason,omitempty"`
	Pending  []RoomID `json:"pending,omitempty"`
}

// Pending describes a master's batch that has not been dispatched yet.
type Pending struct {
	MasterID  MasterID       `json:"master_id"`
	RoomIDs   []RoomID       `json:"room_ids"`
	Scheduler SchedulerState `json:"scheduler"`
	FiresAt   *time.Time     `json:"fires_at,omitempty"`
}

// lane is the batching state of one master.
type lane struct {
	mu    sync.Mutex
	batch *Batch
	timer *Scheduler
}

// Coordinator batches room start requests per master and routes stop and
// return-home requests straight to the master.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Dispatch runs on the timer goroutine; waiting for an acknowledgement
//     never blocks new start requests, which fill the next batch.
type Coordinator struct {
	states     StateSource
	dispatcher *Dispatcher
	events     Broadcaster
	metrics    Recorder
	logger     Logger
	window     time.Duration
	ackTimeout time.Duration

	mu       sync.Mutex
	lanes    map[MasterID]*lane
	closed   bool
	inflight sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(deps CoordinatorDeps) (*Coordinator, error) {
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("vacuum: coordinator requires a dispatcher")
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		states:     deps.States,
		dispatcher: deps.Dispatcher,
		events:     deps.Events,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		window:     deps.Window,
		ackTimeout: deps.AckTimeout,
		lanes:      make(map[MasterID]*lane),
		ctx:        ctx,
		cancel:     cancel,
	}
	if c.window <= 0 {
		c.window = DefaultDebounceWindow
	}
	if c.ackTimeout <= 0 {
		c.ackTimeout = DefaultAckTimeout
	}
	if c.metrics == nil {
		c.metrics = noopRecorder{}
	}
	if c.logger == nil {
		c.logger = noopLogger{}
	}
	return c, nil
}

// Window returns the debounce window in use.
func (c *Coordinator) Window() time.Duration {
	return c.window
}

// RequestStart queues room on master and restarts the master's debounce
// window.
//
// While the master is cleaning the request is rejected with ErrBusy and
// nothing changes: no room is queued and no timer is armed. The state read
// outlives ctx, so a caller that has already gone away cannot slip a room
// past a cleaning master.
func (c *Coordinator) RequestStart(ctx context.Context, master MasterID, room RoomID) error {
	l, err := c.laneFor(master)
	if err != nil {
		return err
	}

	state := ReadState(context.WithoutCancel(ctx), c.states, master, c.logger)
	if state.Status == StatusCleaning {
		c.logger.Warn("room start rejected, master is already cleaning",
			"master_id", master,
			"room_id", room,
		)
		c.metrics.StartRejected(master, string(StatusCleaning))
		c.broadcast(ChannelRequest, RequestEvent{
			MasterID: master,
			RoomID:   room,
			Reason:   string(StatusCleaning),
		})
		return fmt.Errorf("%w: %s", ErrBusy, master)
	}

	l.mu.Lock()
	added := l.batch.Add(room)
	l.timer.Arm(c.window, func() { c.flushFromTimer(master, l) })
	pending := l.batch.Snapshot()
	l.mu.Unlock()

	c.metrics.StartAccepted(master)
	c.metrics.PendingRooms(master, len(pending))
	c.logger.Debug("room queued",
		"master_id", master,
		"room_id", room,
		"new", added,
		"pending", pending,
		"window", c.window,
	)
	c.broadcast(ChannelRequest, RequestEvent{
		MasterID: master,
		RoomID:   room,
		Accepted: true,
		Pending:  pending,
	})
	return nil
}

// RequestStop clears master's pending batch, cancels its timer and sends
// stop. The whole batch is dropped, whichever rooms queued it.
func (c *Coordinator) RequestStop(ctx context.Context, master MasterID) error {
	if err := c.clear(master); err != nil {
		return err
	}
	return c.dispatcher.Send(ctx, master, c.dispatcher.Commands().Stop())
}

// RequestReturnHome clears master's pending batch, cancels its timer and
// sends the master back to its dock.
func (c *Coordinator) RequestReturnHome(ctx context.Context, master MasterID) error {
	if err := c.clear(master); err != nil {
		return err
	}
	return c.dispatcher.Send(ctx, master, c.dispatcher.Commands().ReturnHome())
}

// Flush dispatches master's pending batch now instead of waiting for the
// window. An empty batch sends nothing.
func (c *Coordinator) Flush(ctx context.Context, master MasterID) ([]RoomID, error) {
	l, err := c.laneFor(master)
	if err != nil {
		return nil, err
	}
	l.timer.CancelIfPending()
	return c.dispatcher.Flush(ctx, master, l.batch)
}

// State reads master's state afresh.
func (c *Coordinator) State(ctx context.Context, master MasterID) MasterState {
	return ReadState(ctx, c.states, master, c.logger)
}

// DisplayState derives the activity every room of master displays.
func (c *Coordinator) DisplayState(ctx context.Context, master MasterID) Activity {
	return ActivityFor(c.State(ctx, master).Status)
}

// Pending returns master's undispatched batch.
func (c *Coordinator) Pending(master MasterID) Pending {
	p := Pending{MasterID: master, RoomIDs: []RoomID{}, Scheduler: SchedulerIdle}

	c.mu.Lock()
	l, ok := c.lanes[master]
	c.mu.Unlock()
	if !ok {
		return p
	}

	p.RoomIDs = l.batch.Snapshot()
	p.Scheduler = l.timer.State()
	if deadline, armed := l.timer.Deadline(); armed {
		p.FiresAt = &deadline
	}
	return p
}

// Close cancels every pending timer, drops undispatched batches and waits
// for in-flight dispatches to finish.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	lanes := make([]*lane, 0, len(c.lanes))
	for _, l := range c.lanes {
		lanes = append(lanes, l)
	}
	c.mu.Unlock()

	for _, l := range lanes {
		l.mu.Lock()
		l.timer.CancelIfPending()
		l.batch.Clear()
		l.mu.Unlock()
	}

	c.cancel()
	c.inflight.Wait()
}

func (c *Coordinator) laneFor(master MasterID) (*lane, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	l, ok := c.lanes[master]
	if !ok {
		l = &lane{batch: NewBatch(), timer: NewScheduler()}
		c.lanes[master] = l
	}
	return l, nil
}

func (c *Coordinator) clear(master MasterID) error {
	l, err := c.laneFor(master)
	if err != nil {
		return err
	}

	l.mu.Lock()
	dropped := l.batch.Clear()
	cancelled := l.timer.CancelIfPending()
	l.mu.Unlock()

	c.metrics.PendingRooms(master, 0)
	if dropped > 0 || cancelled {
		c.metrics.BatchCleared(master, dropped)
		c.logger.Info("pending batch cleared", "master_id", master, "dropped", dropped)
	}
	return nil
}

func (c *Coordinator) flushFromTimer(master MasterID, l *lane) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.inflight.Add(1)
	c.mu.Unlock()
	defer c.inflight.Done()

	ctx, cancel := context.WithTimeout(c.ctx, c.ackTimeout)
	defer cancel()

	// Failures are logged and recorded by the dispatcher.
	_, _ = c.dispatcher.Flush(ctx, master, l.batch)
}

func (c *Coordinator) broadcast(channel string, payload any) {
	if c.events != nil {
		c.events.Broadcast(channel, payload)
	}
}
