package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/blktag/internal/infrastructure/config"
)

// TestOpen verifies database connection establishment.
func TestOpen(t *testing.T) {
	t.Run("creates database file and directory", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "test.db")

		db, err := Open(config.DatabaseConfig{
			Path:        dbPath,
			WALMode:     true,
			BusyTimeout: 5,
		})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer db.Close() //nolint:errcheck // Test cleanup

		if _, err := db.ExecContext(context.Background(), "CREATE TABLE t (id INTEGER)"); err != nil {
			t.Fatalf("CREATE TABLE error = %v", err)
		}
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			t.Error("database file was not created")
		}
		if db.Path() != dbPath {
			t.Errorf("Path() = %v, want %v", db.Path(), dbPath)
		}
	})

	t.Run("in memory", func(t *testing.T) {
		db, err := Open(config.DatabaseConfig{Path: MemoryPath, WALMode: true})
		if err != nil {
			t.Fatalf("Open(:memory:) error = %v", err)
		}
		defer db.Close() //nolint:errcheck // Test cleanup

		if db.Stats().MaxOpenConnections != 1 {
			t.Errorf("MaxOpenConnections = %v, want 1", db.Stats().MaxOpenConnections)
		}
	})

	t.Run("empty path", func(t *testing.T) {
		if _, err := Open(config.DatabaseConfig{}); err == nil {
			t.Error("Open() with empty path succeeded")
		}
	})
}

// TestHealthCheck verifies the health check functionality.
func TestHealthCheck(t *testing.T) {
	db := openTestDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	db.Close() //nolint:errcheck // Closing to force failure
	if err := db.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck() on closed database succeeded")
	}
}

// TestClose verifies graceful shutdown.
func TestClose(t *testing.T) {
	db := openTestDB(t)

	if err := db.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	db.DB = nil
	if err := db.Close(); err != nil {
		t.Errorf("Close() on nil DB error = %v", err)
	}

	var nilDB *DB
	if err := nilDB.Close(); err != nil {
		t.Errorf("Close() on nil receiver error = %v", err)
	}
}

// TestBeginTxRollback verifies transaction rollback.
func TestBeginTxRollback(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, "CREATE TABLE tx_rollback_test (id INTEGER PRIMARY KEY, value TEXT)"); err != nil {
		t.Fatalf("CREATE TABLE error = %v", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("BeginTx() error = %v", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO tx_rollback_test (value) VALUES (?)", "rolled_back"); err != nil {
		t.Fatalf("INSERT error = %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}

	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tx_rollback_test").Scan(&count); err != nil {
		t.Fatalf("SELECT error = %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 rows, got %d", count)
	}
}

// openTestDB creates an in-memory database closed at test end.
func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(config.DatabaseConfig{Path: MemoryPath, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	return db
}
