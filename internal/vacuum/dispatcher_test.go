package vacuum

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"
)

func TestDispatcher_FlushEmptyBatchSendsNothing(t *testing.T) {
	f := newFixture(t, time.Hour)

	rooms, err := f.coord.dispatcher.Flush(context.Background(), "vacuum.s7", NewBatch())
	if err != nil || rooms != nil {
		t.Errorf("Flush() = (%v, %v), want (nil, nil)", rooms, err)
	}
	if n := len(f.sender.commands()); n != 0 {
		t.Errorf("sent %d commands, want 0", n)
	}
	if len(f.history.records) != 0 {
		t.Error("empty flush must not be recorded")
	}
}

func TestDispatcher_FlushSendsOneCommandWithWholeBatch(t *testing.T) {
	f := newFixture(t, time.Hour)
	b := NewBatch()
	for _, id := range []RoomID{17, 16, 17, 18} {
		b.Add(id)
	}

	rooms, err := f.coord.dispatcher.Flush(context.Background(), "vacuum.s7", b)
	if err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if !slices.Equal(rooms, []RoomID{16, 17, 18}) {
		t.Errorf("Flush() rooms = %v", rooms)
	}

	sent := f.sender.commands()
	if len(sent) != 1 {
		t.Fatalf("sent %d commands, want 1", len(sent))
	}
	if sent[0].master != "vacuum.s7" || sent[0].cmd.Name != "app_segment_clean" {
		t.Errorf("sent %+v", sent[0])
	}
	if !slices.Equal(sent[0].cmd.Params.([]int), []int{16, 17, 18}) {
		t.Errorf("params = %v", sent[0].cmd.Params)
	}
	if b.Len() != 0 {
		t.Errorf("batch not drained, Len() = %d", b.Len())
	}

	if len(f.history.records) != 1 || f.history.records[0].Status != DispatchAcknowledged {
		t.Errorf("history = %+v", f.history.records)
	}
	if events := f.events.onChannel(ChannelDispatch); len(events) != 1 {
		t.Errorf("dispatch events = %d, want 1", len(events))
	}
}

func TestDispatcher_FailureIsLoggedNotRequeued(t *testing.T) {
	f := newFixture(t, time.Hour)
	f.sender.err = errors.New("ack timeout")
	b := NewBatch()
	b.Add(1)
	b.Add(2)

	rooms, err := f.coord.dispatcher.Flush(context.Background(), "vacuum.s7", b)
	if !errors.Is(err, ErrDispatchFailed) {
		t.Fatalf("Flush() error = %v, want ErrDispatchFailed", err)
	}
	if !slices.Equal(rooms, []RoomID{1, 2}) {
		t.Errorf("Flush() rooms = %v", rooms)
	}
	if b.Len() != 0 {
		t.Errorf("failed batch was re-queued, Len() = %d", b.Len())
	}
	if len(f.sender.commands()) != 1 {
		t.Errorf("sent %d commands, want exactly 1 (no retry)", len(f.sender.commands()))
	}
	if f.logger.count("error") != 1 {
		t.Errorf("error logs = %d, want 1", f.logger.count("error"))
	}

	rec := f.history.records[0]
	if rec.Status != DispatchFailed || rec.Error == "" {
		t.Errorf("history record = %+v", rec)
	}
	if f.metrics.failed != 1 {
		t.Errorf("failed metric = %d, want 1", f.metrics.failed)
	}
}

func TestNewDispatcher_RequiresSender(t *testing.T) {
	if _, err := NewDispatcher(DispatcherDeps{}); err == nil {
		t.Error("NewDispatcher() without sender succeeded")
	}
}
