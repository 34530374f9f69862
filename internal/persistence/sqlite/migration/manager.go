package migration

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"time"
)

// Runner applies pending migrations in version order.
type Runner struct {
	fsys     fs.FS
	executor *Executor
	logger   *slog.Logger
}

// NewRunner builds a runner reading migrations from fsys.
func NewRunner(db *sql.DB, fsys fs.FS, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{fsys: fsys, executor: NewExecutor(db), logger: logger.With("component", "migration")}
}

// Run applies every pending migration. It fails without applying anything
// when an already applied migration no longer matches its file.
func (r *Runner) Run(ctx context.Context) error {
	started := time.Now()

	status, err := r.Status(ctx)
	if err != nil {
		return err
	}
	r.logger.InfoContext(ctx, "schema status",
		"current_version", status.CurrentVersion,
		"pending", len(status.Pending),
	)

	for i, m := range status.Pending {
		r.logger.InfoContext(ctx, "applying migration",
			"version", m.Version,
			"description", m.Description,
			"position", fmt.Sprintf("%d/%d", i+1, len(status.Pending)),
		)
		if err := r.executor.Execute(ctx, m); err != nil {
			r.logger.ErrorContext(ctx, "migration failed", "version", m.Version, "error", err)
			return err
		}
	}

	if len(status.Pending) > 0 {
		r.logger.InfoContext(ctx, "migrations applied", "count", len(status.Pending), "duration", time.Since(started))
	}
	return nil
}

// Status compares the embedded files with the schema_migrations table.
func (r *Runner) Status(ctx context.Context) (Status, error) {
	if err := r.executor.InitializeVersionTable(ctx); err != nil {
		return Status{}, err
	}

	available, err := Scan(r.fsys)
	if err != nil {
		return Status{}, err
	}
	applied, err := r.executor.Applied(ctx)
	if err != nil {
		return Status{}, err
	}

	byVersion := make(map[string]AppliedMigration, len(applied))
	for _, a := range applied {
		byVersion[a.Version] = a
	}

	status := Status{Applied: applied}
	if len(applied) > 0 {
		status.CurrentVersion = applied[len(applied)-1].Version
	}
	for _, m := range available {
		a, ok := byVersion[m.Version]
		if !ok {
			status.Pending = append(status.Pending, m)
			continue
		}
		if a.Checksum != m.Checksum {
			return Status{}, stepError(m.Version, m.FilePath, "verify checksum",
				fmt.Errorf("%w: applied %s, file %s", ErrChecksumMismatch, a.Checksum, m.Checksum))
		}
	}
	return status, nil
}
