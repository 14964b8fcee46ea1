package vacuum

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const maxStateHistoryLimit = 200

// StateTransition is a change of a master's coarse status.
type StateTransition struct {
	ID        int64     `json:"id"`
	MasterID  MasterID  `json:"master_id"`
	Status    Status    `json:"status"`
	Previous  Status    `json:"previous,omitempty"`
	Raw       string    `json:"raw,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// StateHistoryRepository stores master state transitions.
//
// Implementations must be thread-safe and use UTC timestamps.
type StateHistoryRepository interface {
	// RecordTransition persists t. CreatedAt defaults to now.
	RecordTransition(ctx context.Context, t StateTransition) error

	// GetHistory returns the newest transitions of master first.
	GetHistory(ctx context.Context, master MasterID, limit int) ([]StateTransition, error)
}

// SQLiteStateHistoryRepository implements StateHistoryRepository on the
// master_state_history table.
type SQLiteStateHistoryRepository struct {
	db *sql.DB
}

// NewSQLiteStateHistoryRepository creates a repository over an open database.
func NewSQLiteStateHistoryRepository(db *sql.DB) *SQLiteStateHistoryRepository {
	return &SQLiteStateHistoryRepository{db: db}
}

// RecordTransition inserts a transition row.
func (r *SQLiteStateHistoryRepository) RecordTransition(ctx context.Context, t StateTransition) error {
	if t.MasterID == "" {
		return fmt.Errorf("master id is required")
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO master_state_history (master_id, status, raw, created_at) VALUES (?, ?, ?, ?)`,
		string(t.MasterID), string(t.Status), nullableString(t.Raw),
		t.CreatedAt.UTC().Format(timestampLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting state transition: %w", err)
	}
	return nil
}

// GetHistory returns up to limit transitions of master, newest first.
// Limit defaults to 50 and is capped at 200.
func (r *SQLiteStateHistoryRepository) GetHistory(ctx context.Context, master MasterID, limit int) ([]StateTransition, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxStateHistoryLimit {
		limit = maxStateHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, master_id, status, raw, created_at
		 FROM master_state_history
		 WHERE master_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		string(master), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying state history: %w", err)
	}
	defer rows.Close()

	entries := make([]StateTransition, 0)
	for rows.Next() {
		var (
			t               StateTransition
			masterID, state string
			raw             sql.NullString
			created         string
		)
		if err := rows.Scan(&t.ID, &masterID, &state, &raw, &created); err != nil {
			return nil, fmt.Errorf("scanning state transition: %w", err)
		}
		t.MasterID = MasterID(masterID)
		t.Status = Status(state)
		t.Raw = raw.String
		if t.CreatedAt, err = time.Parse(timestampLayout, created); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		entries = append(entries, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating state history: %w", err)
	}

	// Previous is derived from the next older row.
	for i := 0; i+1 < len(entries); i++ {
		entries[i].Previous = entries[i+1].Status
	}
	return entries, nil
}
