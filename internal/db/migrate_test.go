package db

import (
	"path/filepath"
	"testing"
)

func TestMigrate_UpDownVersion(t *testing.T) {
	db, err := OpenDB(filepath.Join(t.TempDir(), "registry.db"))
	if err != nil {
		t.Fatalf("OpenDB failed: %v", err)
	}
	defer db.Close()

	migrations := MigrationsFS()

	version, dirty, err := db.MigrateVersion(migrations)
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != 0 || dirty {
		t.Errorf("fresh database: version=%d dirty=%v, want 0 false", version, dirty)
	}

	if err := db.MigrateUp(migrations); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}
	// A second run is a no-op.
	if err := db.MigrateUp(migrations); err != nil {
		t.Fatalf("second MigrateUp failed: %v", err)
	}

	version, dirty, err = db.MigrateVersion(migrations)
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != 2 || dirty {
		t.Errorf("after up: version=%d dirty=%v, want 2 false", version, dirty)
	}
	if !tableExists(t, db, "artifacts") {
		t.Error("artifacts table missing after MigrateUp")
	}

	if err := db.MigrateDown(migrations); err != nil {
		t.Fatalf("MigrateDown failed: %v", err)
	}
	version, _, _ = db.MigrateVersion(migrations)
	if version != 1 {
		t.Errorf("after down: version=%d, want 1", version)
	}
	if tableExists(t, db, "artifacts") {
		t.Error("artifacts table still present after MigrateDown")
	}
	if !tableExists(t, db, "requests") {
		t.Error("requests table dropped by a single down step")
	}
}

func TestPragmasApplied(t *testing.T) {
	db, err := NewDB(filepath.Join(t.TempDir(), "pragmas.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	defer db.Close()

	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("Failed to query journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("Expected journal_mode=wal, got %s", journalMode)
	}

	var busyTimeout int
	if err := db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout); err != nil {
		t.Fatalf("Failed to query busy_timeout: %v", err)
	}
	if busyTimeout != 5000 {
		t.Errorf("Expected busy_timeout=5000, got %d", busyTimeout)
	}

	var foreignKeys int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys); err != nil {
		t.Fatalf("Failed to query foreign_keys: %v", err)
	}
	if foreignKeys != 1 {
		t.Errorf("Expected foreign_keys=1, got %d", foreignKeys)
	}
}

func TestNewDB_InMemoryIsPrivate(t *testing.T) {
	a, err := NewDB("")
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	defer a.Close()
	b, err := NewDB("")
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	defer b.Close()

	if _, err := a.Exec(`INSERT INTO requests (request_id, workspace, stage, created_at, updated_at) VALUES ('x', 'w', 'uploaded', 0, 0)`); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	var n int
	if err := b.QueryRow(`SELECT COUNT(*) FROM requests`).Scan(&n); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if n != 0 {
		t.Errorf("second in-memory database sees %d rows, want 0", n)
	}
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n); err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	return n > 0
}
