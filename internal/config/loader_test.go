package config

import (
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"
)

func TestLoader_ParseEnvironment(t *testing.T) {

	t.Run("applies defaults when variables are missing", func(t *testing.T) {
		for _, key := range []string{
			"CAMPUS_EVENTS_HTTP_PORT",
			"CAMPUS_EVENTS_STORE",
			"CAMPUS_EVENTS_SQLITE_PATH",
			"CAMPUS_EVENTS_PUSH_TIMEOUT",
			"CAMPUS_EVENTS_REMINDERS_ENABLED",
			"CAMPUS_EVENTS_LOG_LEVEL",
		} {
			if err := os.Unsetenv(key); err != nil {
				t.Fatalf("failed to unset %s: %v", key, err)
			}
		}

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}

		if cfg.HTTPPort != 8080 || cfg.Addr() != ":8080" {
			t.Fatalf("expected default HTTP port 8080, got %d", cfg.HTTPPort)
		}
		if cfg.Store != StoreSQLite || cfg.SQLitePath != "campus-events.db" {
			t.Fatalf("unexpected default store: %q %q", cfg.Store, cfg.SQLitePath)
		}
		if cfg.PushTimeout != 10*time.Second || cfg.PushConcurrency != 4 {
			t.Fatalf("unexpected push defaults: %v %d", cfg.PushTimeout, cfg.PushConcurrency)
		}
		if !cfg.RemindersEnabled || !cfg.ReminderDedupe {
			t.Fatal("expected reminders and dedupe to be enabled by default")
		}
		if cfg.DayReminderSpec != "@every 1h" || cfg.HourReminderSpec != "@every 10m" {
			t.Fatalf("unexpected reminder specs: %q %q", cfg.DayReminderSpec, cfg.HourReminderSpec)
		}
		if cfg.LogLevel != slog.LevelInfo {
			t.Fatalf("expected info level, got %v", cfg.LogLevel)
		}
	})

	t.Run("reads overrides from the environment", func(t *testing.T) {
		t.Setenv("CAMPUS_EVENTS_HTTP_PORT", "9090")
		t.Setenv("CAMPUS_EVENTS_STORE", "Mongo")
		t.Setenv("CAMPUS_EVENTS_MONGO_URI", "mongodb://localhost:27017")
		t.Setenv("CAMPUS_EVENTS_REMINDER_DEDUPE", "false")
		t.Setenv("CAMPUS_EVENTS_LOG_LEVEL", "debug")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}
		if cfg.HTTPPort != 9090 || cfg.Store != StoreMongo || cfg.ReminderDedupe {
			t.Fatalf("overrides not applied: %+v", cfg)
		}
		if cfg.LogLevel != slog.LevelDebug {
			t.Fatalf("expected debug level, got %v", cfg.LogLevel)
		}
	})
}

func TestLoadFrom(t *testing.T) {
	tests := []struct {
		name    string
		vars    map[string]string
		wantErr string
	}{
		{name: "defaults", vars: nil},
		{name: "memory store", vars: map[string]string{"CAMPUS_EVENTS_STORE": "memory"}},
		{
			name:    "mongo without uri",
			vars:    map[string]string{"CAMPUS_EVENTS_STORE": "mongo"},
			wantErr: "required environment variables are not set: CAMPUS_EVENTS_MONGO_URI",
		},
		{
			name:    "unknown store",
			vars:    map[string]string{"CAMPUS_EVENTS_STORE": "redis"},
			wantErr: "environment variables have invalid values: CAMPUS_EVENTS_STORE",
		},
		{
			name:    "unparsable values are reported by name",
			vars:    map[string]string{"CAMPUS_EVENTS_HTTP_PORT": "eighty", "CAMPUS_EVENTS_PUSH_TIMEOUT": "soon"},
			wantErr: "environment variables have invalid values: CAMPUS_EVENTS_HTTP_PORT, CAMPUS_EVENTS_PUSH_TIMEOUT",
		},
		{
			name:    "out of range",
			vars:    map[string]string{"CAMPUS_EVENTS_HTTP_PORT": "70000", "CAMPUS_EVENTS_PUSH_CONCURRENCY": "0"},
			wantErr: "environment variables have invalid values: CAMPUS_EVENTS_HTTP_PORT, CAMPUS_EVENTS_PUSH_CONCURRENCY",
		},
		{
			name:    "push endpoint must be absolute",
			vars:    map[string]string{"CAMPUS_EVENTS_PUSH_ENDPOINT": "/push"},
			wantErr: "environment variables have invalid values: CAMPUS_EVENTS_PUSH_ENDPOINT",
		},
		{
			name:    "negative duration",
			vars:    map[string]string{"CAMPUS_EVENTS_SHUTDOWN_TIMEOUT": "-1s"},
			wantErr: "environment variables have invalid values: CAMPUS_EVENTS_SHUTDOWN_TIMEOUT",
		},
		{
			name: "reminder specs only matter when enabled",
			vars: map[string]string{"CAMPUS_EVENTS_REMINDERS_ENABLED": "false", "CAMPUS_EVENTS_DAY_REMINDER_SPEC": " "},
		},
		{
			name:    "blank reminder spec",
			vars:    map[string]string{"CAMPUS_EVENTS_DAY_REMINDER_SPEC": " "},
			wantErr: "required environment variables are not set: CAMPUS_EVENTS_DAY_REMINDER_SPEC",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(tt.vars)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("unexpected error message: %q", err.Error())
			}
		})
	}
}
