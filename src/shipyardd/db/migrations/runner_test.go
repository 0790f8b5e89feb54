package migrations

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func setupMigrationTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	return db
}

func TestRunner_Run(t *testing.T) {
	db := setupMigrationTestDB(t)
	runner := NewRunner(db)

	if err := runner.Run(); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	for _, table := range []string{"projects", "project_versions", "deployments", "image_scans"} {
		var count int
		err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&count)
		if err != nil || count != 1 {
			t.Errorf("expected table %s to exist (count=%d, err=%v)", table, count, err)
		}
	}

	version, err := runner.CurrentVersion()
	if err != nil {
		t.Fatalf("failed to get current version: %v", err)
	}
	migrations := runner.Migrations()
	if version != migrations[len(migrations)-1].Version {
		t.Fatalf("expected version %d, got %d", migrations[len(migrations)-1].Version, version)
	}
}

func TestRunner_Run_Idempotent(t *testing.T) {
	db := setupMigrationTestDB(t)
	runner := NewRunner(db)

	if err := runner.Run(); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	if err := runner.Run(); err != nil {
		t.Fatalf("second run should succeed: %v", err)
	}

	pending, err := runner.PendingCount()
	if err != nil {
		t.Fatalf("failed to count pending: %v", err)
	}
	if pending != 0 {
		t.Fatalf("expected no pending migrations, got %d", pending)
	}
}

func TestRunner_MigrationsOrdered(t *testing.T) {
	migrations := NewRunner(nil).Migrations()
	for i := 1; i < len(migrations); i++ {
		if migrations[i].Version <= migrations[i-1].Version {
			t.Fatalf("migrations out of order at %d: %d after %d",
				i, migrations[i].Version, migrations[i-1].Version)
		}
	}
}
