package migration

import (
	"errors"
	"testing"
	"testing/fstest"
)

func TestScan(t *testing.T) {
	t.Parallel()

	t.Run("orders migrations numerically and derives descriptions", func(t *testing.T) {
		t.Parallel()

		fsys := fstest.MapFS{
			"10_add_index.sql":   {Data: []byte("CREATE INDEX idx ON t (a);")},
			"2_create_table.sql": {Data: []byte("-- Description: base table\nCREATE TABLE t (a INTEGER);")},
			"README.md":          {Data: []byte("ignored")},
			"notes/003_skip.sql": {Data: []byte("SELECT 1;")},
		}

		migrations, err := Scan(fsys)
		if err != nil {
			t.Fatalf("Scan returned error: %v", err)
		}
		if len(migrations) != 2 {
			t.Fatalf("expected 2 migrations, got %d", len(migrations))
		}
		if migrations[0].Version != "2" || migrations[1].Version != "10" {
			t.Fatalf("unexpected order: %s, %s", migrations[0].Version, migrations[1].Version)
		}
		if migrations[0].Description != "base table" {
			t.Fatalf("expected header description, got %q", migrations[0].Description)
		}
		if migrations[1].Description != "add index" {
			t.Fatalf("expected filename description, got %q", migrations[1].Description)
		}
		if migrations[0].Checksum == "" || migrations[0].Checksum == migrations[1].Checksum {
			t.Fatalf("expected distinct checksums")
		}
	})

	t.Run("rejects malformed file names", func(t *testing.T) {
		t.Parallel()

		_, err := Scan(fstest.MapFS{"create table.sql": {Data: []byte("SELECT 1;")}})
		if !errors.Is(err, ErrInvalidMigrationFile) {
			t.Fatalf("expected ErrInvalidMigrationFile, got %v", err)
		}
	})

	t.Run("rejects duplicate versions", func(t *testing.T) {
		t.Parallel()

		_, err := Scan(fstest.MapFS{
			"001_a.sql": {Data: []byte("SELECT 1;")},
			"001_b.sql": {Data: []byte("SELECT 2;")},
		})
		if !errors.Is(err, ErrDuplicateVersion) {
			t.Fatalf("expected ErrDuplicateVersion, got %v", err)
		}
	})

	t.Run("embedded migrations are valid", func(t *testing.T) {
		t.Parallel()

		migrations, err := Scan(Embedded())
		if err != nil {
			t.Fatalf("Scan(Embedded()) returned error: %v", err)
		}
		if len(migrations) == 0 {
			t.Fatal("expected embedded migrations")
		}
	})
}

func TestSplitStatements(t *testing.T) {
	t.Parallel()

	got := splitStatements("-- header\nCREATE TABLE a (x INTEGER);\n\n-- only a comment;\nCREATE INDEX i ON a (x);\n")
	if len(got) != 2 {
		t.Fatalf("expected 2 statements, got %d: %#v", len(got), got)
	}
	if got[0] != "CREATE TABLE a (x INTEGER)" {
		t.Fatalf("unexpected first statement %q", got[0])
	}
}
