package vacuum

import (
	"context"
	"time"
)

// Dispatch outcomes.
const (
	DispatchAcknowledged = "acknowledged"
	DispatchFailed       = "failed"
)

// DispatchRecord is one command sent to a master and how it ended.
type DispatchRecord struct {
	ID          string      `json:"id"`
	MasterID    MasterID    `json:"master_id"`
	Kind        CommandKind `json:"kind"`
	Command     string      `json:"command"`
	RoomIDs     []RoomID    `json:"room_ids,omitempty"`
	Status      string      `json:"status"`
	Error       string      `json:"error,omitempty"`
	RequestedAt time.Time   `json:"requested_at"`
	CompletedAt time.Time   `json:"completed_at"`
}

// Latency is the time between sending and the acknowledgement or failure.
func (r DispatchRecord) Latency() time.Duration {
	return r.CompletedAt.Sub(r.RequestedAt)
}

// DispatchFilter selects dispatch records.
type DispatchFilter struct {
	MasterID MasterID // optional
	Kind     CommandKind
	Limit    int // default 50, max 500
}

// HistoryRepository persists dispatch records. Batches themselves are
// never persisted.
type HistoryRepository interface {
	RecordDispatch(ctx context.Context, rec *DispatchRecord) error
	ListDispatches(ctx context.Context, filter DispatchFilter) ([]DispatchRecord, error)
}
