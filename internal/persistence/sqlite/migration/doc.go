// Package migration applies versioned SQL migrations to a SQLite database.
//
// Migration files are embedded into the binary and follow the naming
// convention {version}_{description}.sql (e.g. "001_events.sql"). Applied
// versions and their checksums are tracked in the schema_migrations table;
// a migration that changed after being applied is reported instead of
// silently re-run.
//
// Example usage:
//
//	runner := migration.NewRunner(db, migration.Embedded(), logger)
//	if err := runner.Run(ctx); err != nil {
//		return err
//	}
package migration
