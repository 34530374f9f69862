package migration

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"testing/fstest"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", "file:"+filepath.Join(t.TempDir(), "migrate.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestRunner_Run(t *testing.T) {
	t.Parallel()

	t.Run("applies embedded migrations once", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		db := openTestDB(t)
		runner := NewRunner(db, Embedded(), nil)

		if err := runner.Run(ctx); err != nil {
			t.Fatalf("first Run failed: %v", err)
		}
		if err := runner.Run(ctx); err != nil {
			t.Fatalf("second Run failed: %v", err)
		}

		status, err := runner.Status(ctx)
		if err != nil {
			t.Fatalf("Status failed: %v", err)
		}
		if len(status.Pending) != 0 {
			t.Fatalf("expected no pending migrations, got %d", len(status.Pending))
		}
		if status.CurrentVersion != "002" {
			t.Fatalf("expected current version 002, got %q", status.CurrentVersion)
		}

		var count int
		if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&count); err != nil {
			t.Fatalf("events table missing: %v", err)
		}
	})

	t.Run("rolls back a failing migration", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		db := openTestDB(t)
		runner := NewRunner(db, fstest.MapFS{
			"001_ok.sql":     {Data: []byte("CREATE TABLE a (x INTEGER);")},
			"002_broken.sql": {Data: []byte("CREATE TABLE b (x INTEGER);\nINSERT INTO missing VALUES (1);")},
		}, nil)

		err := runner.Run(ctx)
		if !errors.Is(err, ErrMigrationFailed) {
			t.Fatalf("expected ErrMigrationFailed, got %v", err)
		}
		var stepErr *StepError
		if !errors.As(err, &stepErr) || stepErr.Version != "002" || stepErr.File != "002_broken.sql" {
			t.Fatalf("expected the failing file to be named, got %v", err)
		}

		var name string
		err = db.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'b'`).Scan(&name)
		if !errors.Is(err, sql.ErrNoRows) {
			t.Fatalf("expected table b to be rolled back, got %v", err)
		}

		status, err := runner.Status(ctx)
		if err != nil {
			t.Fatalf("Status failed: %v", err)
		}
		if status.CurrentVersion != "001" || len(status.Pending) != 1 {
			t.Fatalf("unexpected status %#v", status)
		}
	})

	t.Run("detects edited migrations", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		db := openTestDB(t)
		if err := NewRunner(db, fstest.MapFS{
			"001_a.sql": {Data: []byte("CREATE TABLE a (x INTEGER);")},
		}, nil).Run(ctx); err != nil {
			t.Fatalf("initial Run failed: %v", err)
		}

		err := NewRunner(db, fstest.MapFS{
			"001_a.sql": {Data: []byte("CREATE TABLE a (x INTEGER, y INTEGER);")},
		}, nil).Run(ctx)
		if !errors.Is(err, ErrChecksumMismatch) {
			t.Fatalf("expected ErrChecksumMismatch, got %v", err)
		}
	})
}
