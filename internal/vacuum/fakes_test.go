package vacuum

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// ─── Mock Dependencies ──────────────────────────────────────────────

type fakeStates struct {
	mu     sync.Mutex
	states map[MasterID]Status
	reads  int

	// honorCancel makes reads fail once the caller's context is done.
	honorCancel bool
}

func newFakeStates() *fakeStates {
	return &fakeStates{states: make(map[MasterID]Status)}
}

func (f *fakeStates) set(master MasterID, s Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[master] = s
}

func (f *fakeStates) MasterState(ctx context.Context, master MasterID) (MasterState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.honorCancel && ctx.Err() != nil {
		return MasterState{}, ctx.Err()
	}
	s, ok := f.states[master]
	if !ok {
		return MasterState{}, fmt.Errorf("%w: %s", ErrUnknownMaster, master)
	}
	return MasterState{Status: s, Raw: string(s)}, nil
}

type sentCommand struct {
	master MasterID
	cmd    Command
	at     time.Time
}

type fakeSender struct {
	mu    sync.Mutex
	sent  []sentCommand
	err   error
	block chan struct{} // when non-nil, Send waits for it to close
}

func (f *fakeSender) Send(ctx context.Context, master MasterID, cmd Command) error {
	f.mu.Lock()
	f.sent = append(f.sent, sentCommand{master: master, cmd: cmd, at: time.Now()})
	block := f.block
	err := f.err
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (f *fakeSender) commands() []sentCommand {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentCommand, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeSender) byKind(kind CommandKind) []sentCommand {
	var out []sentCommand
	for _, c := range f.commands() {
		if c.cmd.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

type logEntry struct {
	level string
	msg   string
}

type captureLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *captureLogger) add(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg})
}

func (l *captureLogger) Debug(msg string, _ ...any) { l.add("debug", msg) }
func (l *captureLogger) Info(msg string, _ ...any)  { l.add("info", msg) }
func (l *captureLogger) Warn(msg string, _ ...any)  { l.add("warn", msg) }
func (l *captureLogger) Error(msg string, _ ...any) { l.add("error", msg) }

func (l *captureLogger) count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.level == level {
			n++
		}
	}
	return n
}

type broadcastMsg struct {
	channel string
	payload any
}

type captureBroadcaster struct {
	mu   sync.Mutex
	msgs []broadcastMsg
}

func (b *captureBroadcaster) Broadcast(channel string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, broadcastMsg{channel: channel, payload: payload})
}

func (b *captureBroadcaster) onChannel(channel string) []any {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []any
	for _, m := range b.msgs {
		if m.channel == channel {
			out = append(out, m.payload)
		}
	}
	return out
}

type memHistory struct {
	mu      sync.Mutex
	records []DispatchRecord
}

func (h *memHistory) RecordDispatch(_ context.Context, rec *DispatchRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, *rec)
	return nil
}

func (h *memHistory) ListDispatches(_ context.Context, _ DispatchFilter) ([]DispatchRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]DispatchRecord, len(h.records))
	copy(out, h.records)
	return out, nil
}

type countingRecorder struct {
	mu       sync.Mutex
	accepted int
	rejected int
	cleared  int
	sent     int
	failed   int
}

func (r *countingRecorder) StartAccepted(MasterID) {
	r.mu.Lock()
	r.accepted++
	r.mu.Unlock()
}

func (r *countingRecorder) StartRejected(MasterID, string) {
	r.mu.Lock()
	r.rejected++
	r.mu.Unlock()
}

func (r *countingRecorder) PendingRooms(MasterID, int) {}

func (r *countingRecorder) BatchCleared(MasterID, int) {
	r.mu.Lock()
	r.cleared++
	r.mu.Unlock()
}

func (r *countingRecorder) CommandSent(_ MasterID, _ CommandKind, _ int, err error, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent++
	if err != nil {
		r.failed++
	}
}

// ─── Fixture ────────────────────────────────────────────────────────

type fixture struct {
	states  *fakeStates
	sender  *fakeSender
	logger  *captureLogger
	events  *captureBroadcaster
	history *memHistory
	metrics *countingRecorder
	coord   *Coordinator
}

func newFixture(t testing.TB, window time.Duration) *fixture {
	t.Helper()

	f := &fixture{
		states:  newFakeStates(),
		sender:  &fakeSender{},
		logger:  &captureLogger{},
		events:  &captureBroadcaster{},
		history: &memHistory{},
		metrics: &countingRecorder{},
	}

	d, err := NewDispatcher(DispatcherDeps{
		Sender:   f.sender,
		Commands: CommandSet{Surface: SurfaceAppSegmentClean, Repeats: 1},
		History:  f.history,
		Events:   f.events,
		Metrics:  f.metrics,
		Logger:   f.logger,
	})
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}

	f.coord, err = NewCoordinator(CoordinatorDeps{
		States:     f.states,
		Dispatcher: d,
		Events:     f.events,
		Metrics:    f.metrics,
		Logger:     f.logger,
		Window:     window,
		AckTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("NewCoordinator() error = %v", err)
	}
	t.Cleanup(f.coord.Close)
	return f
}

// waitFor polls cond until it holds or the timeout elapses.
func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
