package migrations

import (
	"testing"
)

func TestOpen_AppliesAllMigrations(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	version, err := GetCurrentVersion(db)
	if err != nil {
		t.Fatalf("Failed to get version: %v", err)
	}
	want := AllMigrations[len(AllMigrations)-1].Version
	if version != want {
		t.Errorf("Expected version %d, got: %d", want, version)
	}

	for _, table := range []string{"bench_runs", "bench_metrics", "history"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("Expected table %s to exist: %v", table, err)
		}
	}
}

func TestRun_Idempotent(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if err := Run(db); err != nil {
		t.Fatalf("Expected second run to succeed, got: %v", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		t.Fatalf("Failed to count migrations: %v", err)
	}
	if count != len(AllMigrations) {
		t.Errorf("Expected %d recorded migrations, got: %d", len(AllMigrations), count)
	}
}
