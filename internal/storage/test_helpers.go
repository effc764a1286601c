package storage

import (
	"context"
	"testing"
	"time"

	"github.com/moment-tracker/internal/config"
)

// testContext creates a context with timeout for tests
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func testPostgresConfig() *config.PostgresConfig {
	return &config.PostgresConfig{
		Host:           "localhost",
		Port:           "5432",
		Database:       "moment_tracker_test",
		User:           "tracker",
		Password:       "tracker_dev_password",
		MaxConnections: 5,
	}
}

// openTestPostgres connects to a local Postgres and migrates it, skipping the
// test when none is running
func openTestPostgres(t *testing.T) *PostgresDB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg := testPostgresConfig()
	db, err := NewPostgresDB(cfg)
	if err != nil {
		t.Skipf("Skipping test - Postgres not available: %v", err)
	}
	t.Cleanup(db.Close)

	if err := RunMigrations(PostgresURL(cfg)); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}
	return db
}

// openTestClickHouse connects to a local ClickHouse and applies its schema,
// skipping the test when none is running
func openTestClickHouse(t *testing.T) *ClickHouseDB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db, err := NewClickHouseDB(&config.ClickHouseConfig{
		Host:     "localhost",
		Port:     "9000",
		Database: "default",
		User:     "default",
	})
	if err != nil {
		t.Skipf("Skipping test - ClickHouse not available: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := RunClickHouseMigrations(testContext(t), db); err != nil {
		t.Fatalf("RunClickHouseMigrations() error = %v", err)
	}
	return db
}
