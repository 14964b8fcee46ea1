// Package database provides SQLite connectivity for the vacuum zones service.
//
// The database holds three tables, created by the embedded migrations:
//   - rooms: the virtual room catalogue per master
//   - dispatches: commands sent to masters and their outcome
//   - master_state_history: coarse status transitions per master
//
// Connections use WAL mode and a busy timeout. The pool is capped at one
// connection because SQLite has a single writer. Open with MemoryPath for
// throwaway databases in tests.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if _, err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are forward-only and additive: new columns are NULLABLE or
// carry a DEFAULT.
package database
