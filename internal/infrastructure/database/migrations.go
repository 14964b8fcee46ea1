package database

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"slices"
	"strings"
	"time"
)

// Migrations holds the schema files, named
// YYYYMMDD_HHMMSS_description.up.sql. The migrations package sets it
// from an init function; a nil filesystem means there is nothing to apply.
//
// The schema only moves forward. Rooms and dispatch history are rebuilt
// from the bridge on startup, so a bad release is fixed by a new version
// rather than by rolling one back.
var Migrations fs.FS

// schemaVersion is one .up.sql file.
type schemaVersion struct {
	version string // YYYYMMDD_HHMMSS
	name    string
	file    string
}

// Migrate applies every schema version not yet recorded in
// schema_migrations, oldest first, and returns the versions it applied.
//
// Each version commits in its own transaction, so a failure keeps the
// versions before it and the next Migrate resumes at the failed one.
func (db *DB) Migrate(ctx context.Context) ([]string, error) {
	if err := db.createMigrationsTable(ctx); err != nil {
		return nil, fmt.Errorf("creating migrations table: %w", err)
	}

	versions, err := listSchemaVersions(Migrations)
	if err != nil {
		return nil, fmt.Errorf("loading migrations: %w", err)
	}

	current, err := db.SchemaVersion(ctx)
	if err != nil {
		return nil, err
	}
	done, err := db.appliedVersions(ctx)
	if err != nil {
		return nil, err
	}

	var applied []string
	for _, v := range versions {
		if done[v.version] {
			continue
		}
		if v.version < current {
			// A gap below the recorded head: an out-of-order file was added
			// after a newer one shipped.
			return applied, fmt.Errorf("migration %s is older than schema version %s", v.version, current)
		}
		if err := db.applySchemaVersion(ctx, v); err != nil {
			return applied, fmt.Errorf("applying migration %s (%s): %w", v.version, v.name, err)
		}
		applied = append(applied, v.version)
	}
	return applied, nil
}

// SchemaVersion returns the most recently applied migration version, or ""
// when no migration has been applied.
func (db *DB) SchemaVersion(ctx context.Context) (string, error) {
	if err := db.createMigrationsTable(ctx); err != nil {
		return "", fmt.Errorf("creating migrations table: %w", err)
	}
	var version sql.NullString
	if err := db.QueryRowContext(ctx,
		"SELECT MAX(version) FROM schema_migrations",
	).Scan(&version); err != nil {
		return "", fmt.Errorf("reading schema version: %w", err)
	}
	return version.String, nil
}

func (db *DB) createMigrationsTable(ctx context.Context) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL
		)
	`)
	return err
}

func (db *DB) appliedVersions(ctx context.Context) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("querying migrations: %w", err)
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scanning migration row: %w", err)
		}
		done[v] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating migrations: %w", err)
	}
	return done, nil
}

func (db *DB) applySchemaVersion(ctx context.Context, v schemaVersion) error {
	body, err := fs.ReadFile(Migrations, v.file)
	if err != nil {
		return fmt.Errorf("reading %s: %w", v.file, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, string(body)); err != nil {
		return fmt.Errorf("executing SQL: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
		v.version, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("recording migration: %w", err)
	}
	return tx.Commit()
}

// listSchemaVersions returns the .up.sql files at the root of fsys sorted
// by version. Other files are ignored; two files for one version are an
// error.
func listSchemaVersions(fsys fs.FS) ([]schemaVersion, error) {
	if fsys == nil {
		return nil, nil
	}
	names, err := fs.Glob(fsys, "*.up.sql")
	if err != nil {
		return nil, err
	}

	seen := make(map[string]string, len(names))
	versions := make([]schemaVersion, 0, len(names))
	for _, file := range names {
		v, ok := parseSchemaFile(file)
		if !ok {
			continue
		}
		if other, dup := seen[v.version]; dup {
			return nil, fmt.Errorf("migration %s defined by both %s and %s", v.version, other, file)
		}
		seen[v.version] = file
		versions = append(versions, v)
	}

	slices.SortFunc(versions, func(a, b schemaVersion) int {
		return strings.Compare(a.version, b.version)
	})
	return versions, nil
}

// parseSchemaFile splits "20260301_090000_initial_schema.up.sql" into its
// version and name.
func parseSchemaFile(file string) (schemaVersion, bool) {
	base, ok := strings.CutSuffix(file, ".up.sql")
	if !ok {
		return schemaVersion{}, false
	}
	date, rest, ok := strings.Cut(base, "_")
	if !ok || len(date) != 8 {
		return schemaVersion{}, false
	}
	clock, name, ok := strings.Cut(rest, "_")
	if !ok || len(clock) != 6 || name == "" {
		return schemaVersion{}, false
	}
	return schemaVersion{version: date + "_" + clock, name: name, file: file}, true
}
