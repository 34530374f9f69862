package migration

import (
	"errors"
	"fmt"
)

var (
	// ErrMigrationFailed wraps a statement the database refused.
	ErrMigrationFailed = errors.New("migration statement failed")
	// ErrInvalidMigrationFile is returned for names outside {version}_{description}.sql and for empty files.
	ErrInvalidMigrationFile = errors.New("invalid migration file")
	ErrDuplicateVersion     = errors.New("duplicate migration version")
	// ErrChecksumMismatch means an embedded file no longer matches the blake2b
	// sum recorded in schema_migrations when it was applied.
	ErrChecksumMismatch = errors.New("migration checksum mismatch")
)

// StepError records which file and step of a schema upgrade failed.
type StepError struct {
	Version string
	File    string
	Step    string
	Err     error
}

func (e *StepError) Error() string {
	if e.Version == "" {
		return fmt.Sprintf("schema upgrade %s: %s: %v", e.File, e.Step, e.Err)
	}
	return fmt.Sprintf("schema upgrade %s (%s): %s: %v", e.Version, e.File, e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

func stepError(version, file, step string, err error) *StepError {
	return &StepError{Version: version, File: file, Step: step, Err: err}
}
