package database

import (
	"context"
	"io/fs"
	"reflect"
	"strings"
	"testing"
	"testing/fstest"
	"time"
)

func useMigrations(t *testing.T, fsys fs.FS) {
	t.Helper()
	orig := Migrations
	Migrations = fsys
	t.Cleanup(func() { Migrations = orig })
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var count int
	if err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name,
	).Scan(&count); err != nil {
		t.Fatalf("querying sqlite_master: %v", err)
	}
	return count == 1
}

var zonesSchema = fstest.MapFS{
	"20260301_090000_create_zones.up.sql": {Data: []byte("CREATE TABLE test_zones (id INTEGER PRIMARY KEY, name TEXT NOT NULL);")},
	"20260302_080000_zone_area.up.sql":    {Data: []byte("ALTER TABLE test_zones ADD COLUMN area REAL;")},
	"README.md":                           {Data: []byte("ignored")},
}

func TestMigrate(t *testing.T) {
	useMigrations(t, zonesSchema)

	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	applied, err := db.Migrate(ctx)
	if err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	want := []string{"20260301_090000", "20260302_080000"}
	if !reflect.DeepEqual(applied, want) {
		t.Errorf("applied = %v, want %v", applied, want)
	}
	if !tableExists(t, db, "test_zones") {
		t.Fatal("table test_zones not created")
	}

	// Running again applies nothing.
	applied, err = db.Migrate(ctx)
	if err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
	if len(applied) != 0 {
		t.Errorf("second Migrate() applied %v", applied)
	}
}

func TestMigrate_ResumesAfterFailure(t *testing.T) {
	broken := fstest.MapFS{
		"20260301_090000_create_zones.up.sql": zonesSchema["20260301_090000_create_zones.up.sql"],
		"20260302_080000_zone_area.up.sql":    {Data: []byte("ALTER TABLE missing_table ADD COLUMN area REAL;")},
	}
	useMigrations(t, broken)

	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup
	ctx := context.Background()

	applied, err := db.Migrate(ctx)
	if err == nil || !strings.Contains(err.Error(), "20260302_080000") {
		t.Fatalf("Migrate() error = %v, want failure naming 20260302_080000", err)
	}
	if !reflect.DeepEqual(applied, []string{"20260301_090000"}) {
		t.Errorf("applied before failure = %v", applied)
	}

	useMigrations(t, zonesSchema)
	applied, err = db.Migrate(ctx)
	if err != nil {
		t.Fatalf("Migrate() after fix error = %v", err)
	}
	if !reflect.DeepEqual(applied, []string{"20260302_080000"}) {
		t.Errorf("applied after fix = %v", applied)
	}
}

func TestMigrate_RejectsVersionBelowHead(t *testing.T) {
	useMigrations(t, zonesSchema)
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup
	ctx := context.Background()

	if _, err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	late := fstest.MapFS{
		"20260301_090000_create_zones.up.sql": zonesSchema["20260301_090000_create_zones.up.sql"],
		"20260301_120000_backfill.up.sql":     {Data: []byte("SELECT 1;")},
		"20260302_080000_zone_area.up.sql":    zonesSchema["20260302_080000_zone_area.up.sql"],
	}
	useMigrations(t, late)
	if _, err := db.Migrate(ctx); err == nil {
		t.Error("Migrate() accepted a version older than the schema head")
	}
}

func TestMigrate_NoMigrations(t *testing.T) {
	useMigrations(t, nil)

	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	applied, err := db.Migrate(context.Background())
	if err != nil {
		t.Fatalf("Migrate() with no migrations error = %v", err)
	}
	if len(applied) != 0 {
		t.Errorf("applied = %v, want none", applied)
	}
}

func TestListSchemaVersions_Duplicate(t *testing.T) {
	dup := fstest.MapFS{
		"20260301_090000_create_zones.up.sql": {Data: []byte("SELECT 1;")},
		"20260301_090000_other_name.up.sql":   {Data: []byte("SELECT 2;")},
	}
	if _, err := listSchemaVersions(dup); err == nil {
		t.Error("listSchemaVersions() accepted two files for one version")
	}
}

func TestParseSchemaFile(t *testing.T) {
	tests := []struct {
		file        string
		wantVersion string
		wantName    string
		wantOk      bool
	}{
		{"20260118_120000_create_rooms.up.sql", "20260118_120000", "create_rooms", true},
		{"20260118_120000_add_source_to_rooms.up.sql", "20260118_120000", "add_source_to_rooms", true},
		{"20260118_120000_create_rooms.down.sql", "", "", false},
		{"20260118_120000_create_rooms.sql", "", "", false},
		{"20260118_120000.up.sql", "", "", false},
		{"2026_120000_short_date.up.sql", "", "", false},
		{"invalid.up.sql", "", "", false},
		{"readme.txt", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			got, ok := parseSchemaFile(tt.file)
			if ok != tt.wantOk {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOk)
			}
			if ok && (got.version != tt.wantVersion || got.name != tt.wantName) {
				t.Errorf("parseSchemaFile(%q) = %s/%s, want %s/%s", tt.file, got.version, got.name, tt.wantVersion, tt.wantName)
			}
		})
	}
}

func TestSchemaVersion(t *testing.T) {
	useMigrations(t, zonesSchema)

	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	ctx := context.Background()

	version, err := db.SchemaVersion(ctx)
	if err != nil {
		t.Fatalf("SchemaVersion() error = %v", err)
	}
	if version != "" {
		t.Errorf("SchemaVersion() before Migrate = %q, want empty", version)
	}

	if _, err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	version, err = db.SchemaVersion(ctx)
	if err != nil {
		t.Fatalf("SchemaVersion() error = %v", err)
	}
	if version != "20260302_080000" {
		t.Errorf("SchemaVersion() = %q, want %q", version, "20260302_080000")
	}
}
