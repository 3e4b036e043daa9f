package db

import (
	"path/filepath"
	"testing"
)

func TestRunMigrationsIsIdempotent(t *testing.T) {
	database, err := OpenSQLite(filepath.Join(t.TempDir(), "nested", "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	first, err := RunMigrations(database)
	if err != nil {
		t.Fatalf("first RunMigrations: %v", err)
	}
	if !first.Changed || first.Version != 1 {
		t.Fatalf("first result = %+v, want changed at version 1", first)
	}

	second, err := RunMigrations(database)
	if err != nil {
		t.Fatalf("second RunMigrations: %v", err)
	}
	if second.Changed {
		t.Fatal("second RunMigrations should report no change")
	}

	for _, table := range []string{"users", "profiles", "sessions", "nudges", "timer_preferences"} {
		var name string
		err := database.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestProfileStatusConstraint(t *testing.T) {
	database, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	if _, err := RunMigrations(database); err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}

	if _, err := database.Exec(`INSERT INTO users (id, email, password_hash, created_at, updated_at) VALUES ('u1', 'a@b.c', 'x', 'now', 'now')`); err != nil {
		t.Fatalf("insert user: %v", err)
	}
	_, err = database.Exec(`INSERT INTO profiles (id, username, current_status, created_at, updated_at) VALUES ('u1', 'ann', 'offline', 'now', 'now')`)
	if err == nil {
		t.Fatal("expected check constraint to reject offline profile status")
	}
}
