package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Storage backends.
const (
	StoreSQLite = "sqlite"
	StoreMongo  = "mongo"
	StoreMemory = "memory"
)

// Config captures environment driven configuration values for the campus
// events service.
type Config struct {
	HTTPPort int `env:"CAMPUS_EVENTS_HTTP_PORT" envDefault:"8080"`

	Store         string `env:"CAMPUS_EVENTS_STORE" envDefault:"sqlite"`
	SQLitePath    string `env:"CAMPUS_EVENTS_SQLITE_PATH" envDefault:"campus-events.db"`
	MongoURI      string `env:"CAMPUS_EVENTS_MONGO_URI"`
	MongoDatabase string `env:"CAMPUS_EVENTS_MONGO_DATABASE" envDefault:"campus_events"`

	PushEndpoint    string        `env:"CAMPUS_EVENTS_PUSH_ENDPOINT" envDefault:"https://exp.host/--/api/v2/push/send"`
	PushAccessToken string        `env:"CAMPUS_EVENTS_PUSH_ACCESS_TOKEN"`
	PushTimeout     time.Duration `env:"CAMPUS_EVENTS_PUSH_TIMEOUT" envDefault:"10s"`
	PushConcurrency int           `env:"CAMPUS_EVENTS_PUSH_CONCURRENCY" envDefault:"4"`

	RemindersEnabled    bool          `env:"CAMPUS_EVENTS_REMINDERS_ENABLED" envDefault:"true"`
	ReminderDedupe      bool          `env:"CAMPUS_EVENTS_REMINDER_DEDUPE" envDefault:"true"`
	DayReminderSpec     string        `env:"CAMPUS_EVENTS_DAY_REMINDER_SPEC" envDefault:"@every 1h"`
	HourReminderSpec    string        `env:"CAMPUS_EVENTS_HOUR_REMINDER_SPEC" envDefault:"@every 10m"`
	ReminderTickTimeout time.Duration `env:"CAMPUS_EVENTS_REMINDER_TICK_TIMEOUT" envDefault:"5m"`

	IdentityCacheTTL time.Duration `env:"CAMPUS_EVENTS_IDENTITY_CACHE_TTL" envDefault:"30s"`
	ShutdownTimeout  time.Duration `env:"CAMPUS_EVENTS_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	LogLevel         slog.Level    `env:"CAMPUS_EVENTS_LOG_LEVEL" envDefault:"INFO"`
}

// Load parses configuration values from the current process environment.
func Load() (Config, error) {
	return load(env.Options{})
}

// LoadFrom parses configuration values from the given variables only.
func LoadFrom(vars map[string]string) (Config, error) {
	if vars == nil {
		vars = map[string]string{}
	}
	return load(env.Options{Environment: vars})
}

// load applies defaults for optional fields, then reports every missing and
// invalid variable by name.
func load(opts env.Options) (Config, error) {
	var cfg Config
	invalid := make([]string, 0, 2)
	missing := make([]string, 0, 1)

	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		names, ok := invalidVariables(err)
		if !ok {
			return Config{}, fmt.Errorf("parse environment: %w", err)
		}
		invalid = append(invalid, names...)
	}

	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))
	cfg.MongoURI = strings.TrimSpace(cfg.MongoURI)

	if cfg.HTTPPort <= 0 || cfg.HTTPPort > 65535 {
		invalid = append(invalid, "CAMPUS_EVENTS_HTTP_PORT")
	}
	switch cfg.Store {
	case StoreSQLite:
		if strings.TrimSpace(cfg.SQLitePath) == "" {
			missing = append(missing, "CAMPUS_EVENTS_SQLITE_PATH")
		}
	case StoreMongo:
		if cfg.MongoURI == "" {
			missing = append(missing, "CAMPUS_EVENTS_MONGO_URI")
		}
		if strings.TrimSpace(cfg.MongoDatabase) == "" {
			missing = append(missing, "CAMPUS_EVENTS_MONGO_DATABASE")
		}
	case StoreMemory:
	default:
		invalid = append(invalid, "CAMPUS_EVENTS_STORE")
	}
	if u, err := url.Parse(cfg.PushEndpoint); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		invalid = append(invalid, "CAMPUS_EVENTS_PUSH_ENDPOINT")
	}
	if cfg.PushConcurrency < 1 {
		invalid = append(invalid, "CAMPUS_EVENTS_PUSH_CONCURRENCY")
	}
	positive := []struct {
		name  string
		value time.Duration
	}{
		{"CAMPUS_EVENTS_PUSH_TIMEOUT", cfg.PushTimeout},
		{"CAMPUS_EVENTS_REMINDER_TICK_TIMEOUT", cfg.ReminderTickTimeout},
		{"CAMPUS_EVENTS_IDENTITY_CACHE_TTL", cfg.IdentityCacheTTL},
		{"CAMPUS_EVENTS_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout},
	}
	for _, d := range positive {
		if d.value <= 0 {
			invalid = append(invalid, d.name)
		}
	}
	if cfg.RemindersEnabled {
		if strings.TrimSpace(cfg.DayReminderSpec) == "" {
			missing = append(missing, "CAMPUS_EVENTS_DAY_REMINDER_SPEC")
		}
		if strings.TrimSpace(cfg.HourReminderSpec) == "" {
			missing = append(missing, "CAMPUS_EVENTS_HOUR_REMINDER_SPEC")
		}
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("required environment variables are not set: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("environment variables have invalid values: %s", strings.Join(uniqueSorted(invalid), ", "))
	}
	return cfg, nil
}

// Addr is the HTTP listen address.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// invalidVariables names the variables behind env parse failures. It reports
// false when err carries anything other than conversion failures.
func invalidVariables(err error) ([]string, bool) {
	var agg env.AggregateError
	if !errors.As(err, &agg) {
		return nil, false
	}
	t := reflect.TypeOf(Config{})
	var names []string
	for _, e := range agg.Errors {
		var parseErr env.ParseError
		if !errors.As(e, &parseErr) {
			return nil, false
		}
		field, ok := t.FieldByName(parseErr.Name)
		if !ok {
			return nil, false
		}
		names = append(names, field.Tag.Get("env"))
	}
	return names, true
}

func uniqueSorted(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := values[:0]
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
