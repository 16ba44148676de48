package database

import (
	"context"
	"os"
	"testing"
	"testing/fstest"
	"time"
)

// journalMigrationsDir is the top-level directory holding the shipped migrations.
const journalMigrationsDir = "../../../migrations"

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"migrations/20261001_120000_create_frames.up.sql": {
			Data: []byte("CREATE TABLE test_frames (id INTEGER PRIMARY KEY, frame TEXT NOT NULL);"),
		},
		"migrations/20261001_120000_create_frames.down.sql": {
			Data: []byte("DROP TABLE test_frames;"),
		},
		"migrations/20261002_080000_add_nodes.up.sql": {
			Data: []byte("CREATE TABLE test_nodes (node_id INTEGER PRIMARY KEY);"),
		},
		"migrations/README.md": {Data: []byte("ignored")},
	}
}

// useMigrations swaps the package migration source for the duration of a test.
func useMigrations(t *testing.T, fsys fstest.MapFS, dir string) {
	t.Helper()
	origFS, origDir := MigrationsFS, MigrationsDir
	t.Cleanup(func() {
		MigrationsFS, MigrationsDir = origFS, origDir
	})
	MigrationsFS, MigrationsDir = fsys, dir
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var count int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name,
	).Scan(&count)
	if err != nil {
		t.Fatalf("querying sqlite_master: %v", err)
	}
	return count == 1
}

func TestMigrate(t *testing.T) {
	useMigrations(t, testMigrations(), "migrations")
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	for _, table := range []string{"test_frames", "test_nodes"} {
		if !tableExists(t, db, table) {
			t.Errorf("table %s not created", table)
		}
	}

	applied, pending, err := db.GetMigrationStatus(ctx)
	if err != nil {
		t.Fatalf("GetMigrationStatus() error = %v", err)
	}
	if len(applied) != 2 || len(pending) != 0 {
		t.Errorf("applied=%d pending=%d, want 2 and 0", len(applied), len(pending))
	}
	if applied[0].Version != "20261001_120000" || applied[0].AppliedAt.IsZero() {
		t.Errorf("first applied = %+v", applied[0])
	}

	version, err := db.SchemaVersion(ctx)
	if err != nil || version != "20261002_080000" {
		t.Errorf("SchemaVersion() = %q, %v", version, err)
	}

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

func TestMigrateDown(t *testing.T) {
	fsys := testMigrations()
	delete(fsys, "migrations/20261002_080000_add_nodes.up.sql")
	useMigrations(t, fsys, "migrations")

	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(ctx); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}
	if tableExists(t, db, "test_frames") {
		t.Error("test_frames should be dropped")
	}

	version, err := db.SchemaVersion(ctx)
	if err != nil || version != "" {
		t.Errorf("SchemaVersion() = %q, %v, want empty", version, err)
	}

	// Nothing left to roll back.
	if err := db.MigrateDown(ctx); err != nil {
		t.Errorf("MigrateDown() on empty schema error = %v", err)
	}
}

func TestMigrateDown_NoDownSQL(t *testing.T) {
	useMigrations(t, testMigrations(), "migrations")
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(ctx); err == nil {
		t.Error("MigrateDown() should fail for a migration without down SQL")
	}
}

func TestMigrate_FailureRollsBack(t *testing.T) {
	fsys := testMigrations()
	fsys["migrations/20261003_000000_broken.up.sql"] = &fstest.MapFile{Data: []byte("CREATE TABLE (;")}
	useMigrations(t, fsys, "migrations")

	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup
	ctx := context.Background()

	if err := db.Migrate(ctx); err == nil {
		t.Fatal("Migrate() should fail on broken SQL")
	}

	applied, pending, err := db.GetMigrationStatus(ctx)
	if err != nil {
		t.Fatalf("GetMigrationStatus() error = %v", err)
	}
	if len(applied) != 2 || len(pending) != 1 {
		t.Errorf("applied=%d pending=%d, want 2 and 1", len(applied), len(pending))
	}
}

func TestLoadMigrations_OrphanDown(t *testing.T) {
	fsys := testMigrations()
	fsys["migrations/20261005_000000_orphan.down.sql"] = &fstest.MapFile{Data: []byte("DROP TABLE orphan;")}
	useMigrations(t, fsys, "migrations")

	got, err := loadMigrations()
	if err != nil {
		t.Fatalf("loadMigrations() error = %v", err)
	}
	for _, m := range got {
		if m.Version == "20261005_000000" {
			t.Errorf("down-only migration %s should be ignored", m.Version)
		}
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].Version >= got[i].Version {
			t.Errorf("migrations not sorted: %s before %s", got[i-1].Version, got[i].Version)
		}
	}
}

func TestMigrateNoMigrations(t *testing.T) {
	useMigrations(t, nil, ".")
	MigrationsFS = nil

	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background()); err != nil {
		t.Errorf("Migrate() with no migrations error = %v", err)
	}
}

func TestJournalMigration(t *testing.T) {
	origFS, origDir := MigrationsFS, MigrationsDir
	t.Cleanup(func() {
		MigrationsFS, MigrationsDir = origFS, origDir
	})
	MigrationsFS, MigrationsDir = os.DirFS(journalMigrationsDir), "."

	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	for _, table := range []string{"zwave_frames", "zwave_nodes"} {
		if !tableExists(t, db, table) {
			t.Errorf("table %s not created", table)
		}
	}

	if _, err := db.ExecContext(ctx,
		"INSERT INTO zwave_frames (direction, node_id, command_class, command, frame, recorded_at) VALUES (?, ?, ?, ?, ?, ?)",
		"sideways", 3, "BASIC", 1, "0X3", time.Now().UnixMilli(),
	); err == nil {
		t.Error("direction CHECK constraint not enforced")
	}

	if err := db.MigrateDown(ctx); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}
	if tableExists(t, db, "zwave_frames") {
		t.Error("zwave_frames should be dropped")
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		wantVersion string
		wantIsUp    bool
		wantOk      bool
	}{
		{"up", "20261019_090000_zwave_journal.up.sql", "20261019_090000", true, true},
		{"down", "20261019_090000_zwave_journal.down.sql", "20261019_090000", false, true},
		{"not sql", "readme.txt", "", false, false},
		{"missing direction", "20261019_090000_zwave_journal.sql", "", false, false},
		{"invalid format", "invalid.up.sql", "", false, false},
		{"missing time", "20261019_.up.sql", "", false, false},
		{"version only", "20261019_090000.down.sql", "20261019_090000", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, isUp, ok := parseMigrationFilename(tt.filename)
			if ok != tt.wantOk {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOk)
			}
			if ok && (version != tt.wantVersion || isUp != tt.wantIsUp) {
				t.Errorf("got (%q, %v), want (%q, %v)", version, isUp, tt.wantVersion, tt.wantIsUp)
			}
		})
	}
}

func TestExtractMigrationName(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"20261019_090000_zwave_journal.up.sql", "zwave_journal"},
		{"20261019_090000_zwave_journal.down.sql", "zwave_journal"},
		{"20261001_120000_add_node_index.up.sql", "add_node_index"},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			if got := extractMigrationName(tt.filename); got != tt.want {
				t.Errorf("extractMigrationName(%q) = %q, want %q", tt.filename, got, tt.want)
			}
		})
	}
}
