package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/campus-events/internal/persistence"
	"github.com/example/campus-events/internal/persistence/sqlite/migration"
)

// Storage bundles the SQLite repositories behind a single connection pool.
type Storage struct {
	*EventRepository
	*UserRepository
	*NotificationRepository
	*ReminderRepository

	pool   *ConnectionPool
	logger *slog.Logger
}

var (
	_ persistence.EventRepository        = (*Storage)(nil)
	_ persistence.UserRepository         = (*Storage)(nil)
	_ persistence.NotificationRepository = (*Storage)(nil)
	_ persistence.ReminderRepository     = (*Storage)(nil)
)

// Open opens (creating if needed) the database file at path.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Storage, error) {
	return OpenWithConfig(ctx, DefaultConnectionConfig(path), logger)
}

// OpenWithConfig opens the database using an explicit connection configuration.
func OpenWithConfig(ctx context.Context, config ConnectionConfig, logger *slog.Logger) (*Storage, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := NewConnectionPool(ctx, config)
	if err != nil {
		return nil, err
	}
	retry := NewRetryHelper(DefaultRetryConfig())
	return &Storage{
		EventRepository:        &EventRepository{pool: pool, retry: retry},
		UserRepository:         &UserRepository{pool: pool, retry: retry},
		NotificationRepository: &NotificationRepository{pool: pool, retry: retry},
		ReminderRepository:     &ReminderRepository{pool: pool, retry: retry},
		pool:                   pool,
		logger:                 logger,
	}, nil
}

// Close releases the underlying connection pool.
func (s *Storage) Close() error {
	if s == nil {
		return nil
	}
	return s.pool.Close()
}

// Ping verifies the database is reachable.
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate applies the embedded schema migrations.
func (s *Storage) Migrate(ctx context.Context) error {
	if err := migration.NewRunner(s.pool.DB(), migration.Embedded(), s.logger).Run(ctx); err != nil {
		return fmt.Errorf("migrate sqlite schema: %w", err)
	}
	return nil
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullableMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

func timeFromNull(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringFromNull(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func encodeJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func escapeLike(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(s)
}

func appendPage(query string, args []any, page persistence.Page) (string, []any) {
	switch {
	case page.Limit > 0:
		query += " LIMIT ? OFFSET ?"
		args = append(args, page.Limit, max(page.Offset, 0))
	case page.Offset > 0:
		query += " LIMIT -1 OFFSET ?"
		args = append(args, page.Offset)
	}
	return query, args
}
