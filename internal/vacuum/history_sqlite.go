package vacuum

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500

	// timestampLayout has a fixed-width fraction so stored values sort as text.
	timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// SQLiteHistoryRepository stores dispatch records in the dispatches table.
type SQLiteHistoryRepository struct {
	db *sql.DB
}

// NewSQLiteHistoryRepository creates a repository over an open database.
func NewSQLiteHistoryRepository(db *sql.DB) *SQLiteHistoryRepository {
	return &SQLiteHistoryRepository{db: db}
}

// RecordDispatch inserts rec. ID and timestamps are filled in when empty.
func (r *SQLiteHistoryRepository) RecordDispatch(ctx context.Context, rec *DispatchRecord) error {
	if rec.ID == "" {
		rec.ID = "dsp-" + uuid.NewString()
	}
	now := time.Now().UTC()
	if rec.RequestedAt.IsZero() {
		rec.RequestedAt = now
	}
	if rec.CompletedAt.IsZero() {
		rec.CompletedAt = now
	}

	rooms, err := json.Marshal(roomInts(rec.RoomIDs))
	if err != nil {
		return fmt.Errorf("marshalling room ids: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO dispatches (id, master_id, kind, command, room_ids, status, error, requested_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, string(rec.MasterID), string(rec.Kind), rec.Command, string(rooms),
		rec.Status, nullableString(rec.Error),
		rec.RequestedAt.UTC().Format(timestampLayout),
		rec.CompletedAt.UTC().Format(timestampLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting dispatch: %w", err)
	}
	return nil
}

// ListDispatches returns records matching filter, newest first.
func (r *SQLiteHistoryRepository) ListDispatches(ctx context.Context, filter DispatchFilter) ([]DispatchRecord, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	var conditions []string
	var args []any
	if filter.MasterID != "" {
		conditions = append(conditions, "master_id = ?")
		args = append(args, string(filter.MasterID))
	}
	if filter.Kind != "" {
		conditions = append(conditions, "kind = ?")
		args = append(args, string(filter.Kind))
	}

	query := `SELECT id, master_id, kind, command, room_ids, status, error, requested_at, completed_at FROM dispatches`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY requested_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying dispatches: %w", err)
	}
	defer rows.Close()

	records := make([]DispatchRecord, 0)
	for rows.Next() {
		rec, err := scanDispatch(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating dispatches: %w", err)
	}
	return records, nil
}

func scanDispatch(rows *sql.Rows) (DispatchRecord, error) {
	var (
		rec                    DispatchRecord
		master, kind, roomsRaw string
		errText                sql.NullString
		requested, completed   string
	)
	if err := rows.Scan(&rec.ID, &master, &kind, &rec.Command, &roomsRaw, &rec.Status, &errText, &requested, &completed); err != nil {
		return DispatchRecord{}, fmt.Errorf("scanning dispatch: %w", err)
	}
	rec.MasterID = MasterID(master)
	rec.Kind = CommandKind(kind)
	rec.Error = errText.String

	var ids []int
	if err := json.Unmarshal([]byte(roomsRaw), &ids); err != nil {
		return DispatchRecord{}, fmt.Errorf("decoding room ids for %s: %w", rec.ID, err)
	}
	for _, id := range ids {
		rec.RoomIDs = append(rec.RoomIDs, RoomID(id))
	}

	var err error
	if rec.RequestedAt, err = time.Parse(timestampLayout, requested); err != nil {
		return DispatchRecord{}, fmt.Errorf("parsing requested_at: %w", err)
	}
	if rec.CompletedAt, err = time.Parse(timestampLayout, completed); err != nil {
		return DispatchRecord{}, fmt.Errorf("parsing completed_at: %w", err)
	}
	return rec, nil
}

func roomInts(rooms []RoomID) []int {
	ids := make([]int, len(rooms))
	for i, r := range rooms {
		ids[i] = int(r)
	}
	return ids
}

// nullableString maps "" to NULL for nullable TEXT columns.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
