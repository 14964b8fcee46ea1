package vacuum

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"
)

const master MasterID = "vacuum.roborock_s7"

func TestCoordinator_RoomsWithinWindowDispatchOnce(t *testing.T) {
	const window = 200 * time.Millisecond
	f := newFixture(t, window)
	f.states.set(master, StatusIdle)
	ctx := context.Background()

	if err := f.coord.RequestStart(ctx, master, 1); err != nil {
		t.Fatalf("RequestStart(1) error = %v", err)
	}
	time.Sleep(window / 2)
	if err := f.coord.RequestStart(ctx, master, 2); err != nil {
		t.Fatalf("RequestStart(2) error = %v", err)
	}
	second := time.Now()

	if !waitFor(2*time.Second, func() bool { return len(f.sender.commands()) > 0 }) {
		t.Fatal("no command dispatched")
	}
	time.Sleep(window) // any second dispatch would land by now

	sent := f.sender.byKind(KindSegmentClean)
	if len(sent) != 1 {
		t.Fatalf("sent %d segment clean commands, want 1", len(sent))
	}
	if !slices.Equal(sent[0].cmd.Rooms, []RoomID{1, 2}) {
		t.Errorf("rooms = %v, want [1 2]", sent[0].cmd.Rooms)
	}
	elapsed := sent[0].at.Sub(second)
	if elapsed < window || elapsed >= window+window/2 {
		t.Errorf("dispatched %v after the second request, want in [%v, %v)", elapsed, window, window+window/2)
	}
}

func TestCoordinator_DefaultWindowScenario(t *testing.T) {
	if testing.Short() {
		t.Skip("real-time debounce scenario")
	}
	f := newFixture(t, DefaultDebounceWindow)
	f.states.set(master, StatusIdle)
	ctx := context.Background()

	if err := f.coord.RequestStart(ctx, master, 1); err != nil {
		t.Fatal(err)
	}
	time.Sleep(500 * time.Millisecond)
	if err := f.coord.RequestStart(ctx, master, 2); err != nil {
		t.Fatal(err)
	}
	second := time.Now()

	if !waitFor(4*time.Second, func() bool { return len(f.sender.commands()) > 0 }) {
		t.Fatal("no command dispatched")
	}
	sent := f.sender.commands()
	if len(sent) != 1 || !slices.Equal(sent[0].cmd.Rooms, []RoomID{1, 2}) {
		t.Fatalf("sent = %+v", sent)
	}
	if elapsed := sent[0].at.Sub(second); elapsed < 2*time.Second || elapsed >= 3*time.Second {
		t.Errorf("dispatched %v after the second request, want in [2s, 3s)", elapsed)
	}
}

func TestCoordinator_StartThenStopSendsOnlyStop(t *testing.T) {
	f := newFixture(t, 100*time.Millisecond)
	f.states.set(master, StatusDocked)
	ctx := context.Background()

	if err := f.coord.RequestStart(ctx, master, 1); err != nil {
		t.Fatalf("RequestStart() error = %v", err)
	}
	if err := f.coord.RequestStop(ctx, master); err != nil {
		t.Fatalf("RequestStop() error = %v", err)
	}

	stops := f.sender.byKind(KindStop)
	if len(stops) != 1 || stops[0].cmd.Name != "app_stop" {
		t.Fatalf("stop commands = %+v, want one app_stop", stops)
	}

	time.Sleep(250 * time.Millisecond)
	if n := len(f.sender.byKind(KindSegmentClean)); n != 0 {
		t.Errorf("sent %d segment clean commands after stop, want 0", n)
	}
	if p := f.coord.Pending(master); len(p.RoomIDs) != 0 || p.Scheduler != SchedulerCancelled {
		t.Errorf("Pending() = %+v", p)
	}
}

func TestCoordinator_StartWhileCleaningIsRejected(t *testing.T) {
	f := newFixture(t, 50*time.Millisecond)
	f.states.set(master, StatusCleaning)

	err := f.coord.RequestStart(context.Background(), master, 3)
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("RequestStart() error = %v, want ErrBusy", err)
	}

	p := f.coord.Pending(master)
	if len(p.RoomIDs) != 0 {
		t.Errorf("pending = %v, want empty", p.RoomIDs)
	}
	if p.Scheduler != SchedulerIdle {
		t.Errorf("scheduler = %q, want idle (never armed)", p.Scheduler)
	}
	if f.logger.count("warn") != 1 {
		t.Errorf("warn logs = %d, want 1", f.logger.count("warn"))
	}

	time.Sleep(120 * time.Millisecond)
	if n := len(f.sender.commands()); n != 0 {
		t.Errorf("sent %d commands, want 0", n)
	}
	if f.metrics.rejected != 1 {
		t.Errorf("rejected metric = %d, want 1", f.metrics.rejected)
	}

	events := f.events.onChannel(ChannelRequest)
	if len(events) != 1 || events[0].(RequestEvent).Accepted {
		t.Errorf("request events = %+v", events)
	}
}

func TestCoordinator_StartWhileCleaningWithCancelledContext(t *testing.T) {
	f := newFixture(t, 20*time.Millisecond)
	f.states.honorCancel = true
	f.states.set(master, StatusCleaning)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.coord.RequestStart(ctx, master, 3)
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("RequestStart() error = %v, want ErrBusy", err)
	}
	if p := f.coord.Pending(master); len(p.RoomIDs) != 0 {
		t.Errorf("pending = %v, want empty", p.RoomIDs)
	}

	time.Sleep(80 * time.Millisecond)
	if n := len(f.sender.byKind(KindSegmentClean)); n != 0 {
		t.Errorf("sent %d segment cleans, want 0", n)
	}
}

func TestCoordinator_UnknownMasterStateIsNotBusy(t *testing.T) {
	f := newFixture(t, time.Hour)

	if err := f.coord.RequestStart(context.Background(), "vacuum.unreported", 4); err != nil {
		t.Fatalf("RequestStart() error = %v", err)
	}
	if got := f.coord.Pending("vacuum.unreported").RoomIDs; !slices.Equal(got, []RoomID{4}) {
		t.Errorf("pending = %v, want [4]", got)
	}
	if got := f.coord.DisplayState(context.Background(), "vacuum.unreported"); got != ActivityIdle {
		t.Errorf("DisplayState() = %q, want idle", got)
	}
}

func TestCoordinator_StopAndReturnHomeAlwaysClear(t *testing.T) {
	tests := []struct {
		name     string
		request  func(c *Coordinator, ctx context.Context) error
		wantKind CommandKind
		wantName string
	}{
		{
			name:     "stop",
			request:  func(c *Coordinator, ctx context.Context) error { return c.RequestStop(ctx, master) },
			wantKind: KindStop,
			wantName: "app_stop",
		},
		{
			name:     "return home",
			request:  func(c *Coordinator, ctx context.Context) error { return c.RequestReturnHome(ctx, master) },
			wantKind: KindReturnHome,
			wantName: "app_charge",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name+" without prior start", func(t *testing.T) {
			f := newFixture(t, time.Hour)
			if err := tt.request(f.coord, context.Background()); err != nil {
				t.Fatalf("request error = %v", err)
			}
			sent := f.sender.commands()
			if len(sent) != 1 || sent[0].cmd.Kind != tt.wantKind || sent[0].cmd.Name != tt.wantName {
				t.Errorf("sent = %+v", sent)
			}
			if n := len(f.coord.Pending(master).RoomIDs); n != 0 {
				t.Errorf("pending rooms = %d, want 0", n)
			}
		})

		t.Run(tt.name+" drops other rooms", func(t *testing.T) {
			f := newFixture(t, time.Hour)
			f.states.set(master, StatusIdle)
			ctx := context.Background()
			for _, id := range []RoomID{1, 2, 3} {
				if err := f.coord.RequestStart(ctx, master, id); err != nil {
					t.Fatal(err)
				}
			}

			if err := tt.request(f.coord, ctx); err != nil {
				t.Fatalf("request error = %v", err)
			}
			if n := len(f.coord.Pending(master).RoomIDs); n != 0 {
				t.Errorf("pending rooms = %d, want 0", n)
			}
			if f.metrics.cleared != 1 {
				t.Errorf("cleared metric = %d, want 1", f.metrics.cleared)
			}
		})
	}
}

func TestCoordinator_StopFailureIsReturned(t *testing.T) {
	f := newFixture(t, time.Hour)
	f.sender.err = errors.New("bridge offline")

	err := f.coord.RequestStop(context.Background(), master)
	if !errors.Is(err, ErrDispatchFailed) {
		t.Errorf("RequestStop() error = %v, want ErrDispatchFailed", err)
	}
}

func TestCoordinator_MastersAreIsolated(t *testing.T) {
	const other MasterID = "vacuum.upstairs"
	f := newFixture(t, time.Hour)
	f.states.set(master, StatusIdle)
	f.states.set(other, StatusIdle)
	ctx := context.Background()

	_ = f.coord.RequestStart(ctx, master, 1)
	_ = f.coord.RequestStart(ctx, other, 7)

	if err := f.coord.RequestStop(ctx, master); err != nil {
		t.Fatal(err)
	}

	if n := len(f.coord.Pending(master).RoomIDs); n != 0 {
		t.Errorf("stopped master still has %d pending rooms", n)
	}
	if got := f.coord.Pending(other).RoomIDs; !slices.Equal(got, []RoomID{7}) {
		t.Errorf("other master pending = %v, want [7]", got)
	}
	if f.coord.Pending(other).FiresAt == nil {
		t.Error("other master's timer was cancelled")
	}
}

func TestCoordinator_AckWaitDoesNotBlockNewStarts(t *testing.T) {
	const window = 30 * time.Millisecond
	f := newFixture(t, window)
	f.states.set(master, StatusIdle)
	release := make(chan struct{})
	f.sender.block = release
	ctx := context.Background()

	_ = f.coord.RequestStart(ctx, master, 1)
	if !waitFor(time.Second, func() bool { return len(f.sender.commands()) == 1 }) {
		t.Fatal("first batch not dispatched")
	}

	// The first dispatch is now waiting for its acknowledgement.
	done := make(chan error, 1)
	go func() { done <- f.coord.RequestStart(ctx, master, 2) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("RequestStart() during ack wait error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("RequestStart() blocked behind the ack wait")
	}

	close(release)
	if !waitFor(time.Second, func() bool { return len(f.sender.commands()) == 2 }) {
		t.Fatal("second batch not dispatched")
	}
	sent := f.sender.commands()
	if !slices.Equal(sent[0].cmd.Rooms, []RoomID{1}) || !slices.Equal(sent[1].cmd.Rooms, []RoomID{2}) {
		t.Errorf("batches = %v, %v", sent[0].cmd.Rooms, sent[1].cmd.Rooms)
	}
}

func TestCoordinator_FlushNow(t *testing.T) {
	f := newFixture(t, time.Hour)
	f.states.set(master, StatusIdle)
	ctx := context.Background()

	if rooms, err := f.coord.Flush(ctx, master); err != nil || rooms != nil {
		t.Errorf("Flush() on empty lane = (%v, %v)", rooms, err)
	}

	_ = f.coord.RequestStart(ctx, master, 5)
	rooms, err := f.coord.Flush(ctx, master)
	if err != nil || !slices.Equal(rooms, []RoomID{5}) {
		t.Errorf("Flush() = (%v, %v), want ([5], nil)", rooms, err)
	}
	if p := f.coord.Pending(master); p.Scheduler == SchedulerArmed {
		t.Error("timer still armed after manual flush")
	}
}

func TestCoordinator_CloseCancelsPendingBatches(t *testing.T) {
	f := newFixture(t, 30*time.Millisecond)
	f.states.set(master, StatusIdle)

	_ = f.coord.RequestStart(context.Background(), master, 1)
	f.coord.Close()

	time.Sleep(80 * time.Millisecond)
	if n := len(f.sender.commands()); n != 0 {
		t.Errorf("sent %d commands after Close, want 0", n)
	}
	if err := f.coord.RequestStart(context.Background(), master, 2); !errors.Is(err, ErrClosed) {
		t.Errorf("RequestStart() after Close error = %v, want ErrClosed", err)
	}
}
