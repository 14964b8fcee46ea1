package room

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-vacuumzones/internal/vacuum"
)

const timestampLayout = time.RFC3339

// Repository defines the persistence operations of the room catalogue.
type Repository interface {
	// GetByUniqueID returns ErrRoomNotFound if the room does not exist.
	GetByUniqueID(ctx context.Context, uniqueID string) (*Room, error)

	// List returns all rooms ordered by master then room id.
	List(ctx context.Context) ([]Room, error)

	// ListByMaster returns the rooms of master ordered by room id.
	ListByMaster(ctx context.Context, master vacuum.MasterID) ([]Room, error)

	// Upsert inserts or updates room, keeping its original created_at.
	Upsert(ctx context.Context, room *Room) error

	// DeleteMissing removes rooms of master whose id is not in keep and
	// returns how many were removed.
	DeleteMissing(ctx context.Context, master vacuum.MasterID, keep []vacuum.RoomID) (int, error)
}

// SQLiteRepository implements Repository on the rooms table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectRooms = `
	SELECT unique_id, master_id, room_id, name, source, created_at, updated_at
	FROM rooms`

// GetByUniqueID retrieves a room by its unique id.
func (r *SQLiteRepository) GetByUniqueID(ctx context.Context, uniqueID string) (*Room, error) {
	row := r.db.QueryRowContext(ctx, selectRooms+` WHERE unique_id = ?`, uniqueID)
	room, err := scanRoom(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("querying room by unique id: %w", err)
	}
	return room, nil
}

// List retrieves all rooms.
func (r *SQLiteRepository) List(ctx context.Context) ([]Room, error) {
	return r.queryRooms(ctx, selectRooms+` ORDER BY master_id, room_id`)
}

// ListByMaster retrieves the rooms of one master.
func (r *SQLiteRepository) ListByMaster(ctx context.Context, master vacuum.MasterID) ([]Room, error) {
	return r.queryRooms(ctx, selectRooms+` WHERE master_id = ? ORDER BY room_id`, string(master))
}

// Upsert inserts room or updates its name and source.
func (r *SQLiteRepository) Upsert(ctx context.Context, room *Room) error {
	if room.UniqueID == "" {
		room.UniqueID = vacuum.RoomUniqueID(room.MasterID, room.RoomID)
	}
	if room.Source == "" {
		room.Source = SourceMap
	}
	now := time.Now().UTC()
	if room.CreatedAt.IsZero() {
		room.CreatedAt = now
	}
	room.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO rooms (unique_id, master_id, room_id, name, source, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(unique_id) DO UPDATE SET
			name = excluded.name,
			source = excluded.source,
			updated_at = excluded.updated_at`,
		room.UniqueID, string(room.MasterID), int(room.RoomID), room.Name, string(room.Source),
		room.CreatedAt.Format(timestampLayout), room.UpdatedAt.Format(timestampLayout),
	)
	if err != nil {
		return fmt.Errorf("upserting room %s: %w", room.UniqueID, err)
	}
	return nil
}

// DeleteMissing removes the rooms of master not listed in keep.
func (r *SQLiteRepository) DeleteMissing(ctx context.Context, master vacuum.MasterID, keep []vacuum.RoomID) (int, error) {
	query := `DELETE FROM rooms WHERE master_id = ?`
	args := []any{string(master)}
	if len(keep) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keep)), ",")
		query += ` AND room_id NOT IN (` + placeholders + `)`
		for _, id := range keep {
			args = append(args, int(id))
		}
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("deleting stale rooms of %s: %w", master, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return int(n), nil
}

func (r *SQLiteRepository) queryRooms(ctx context.Context, query string, args ...any) ([]Room, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying rooms: %w", err)
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning room: %w", err)
		}
		rooms = append(rooms, *room)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rooms: %w", err)
	}
	return rooms, nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoom(scanner rowScanner) (*Room, error) {
	var (
		room                 Room
		master, source       string
		id                   int
		createdAt, updatedAt string
	)
	if err := scanner.Scan(&room.UniqueID, &master, &id, &room.Name, &source, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	room.MasterID = vacuum.MasterID(master)
	room.RoomID = vacuum.RoomID(id)
	room.Source = Source(source)

	var err error
	if room.CreatedAt, err = time.Parse(timestampLayout, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if room.UpdatedAt, err = time.Parse(timestampLayout, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &room, nil
}
