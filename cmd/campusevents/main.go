package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/example/campus-events/internal/application"
	"github.com/example/campus-events/internal/config"
	httptransport "github.com/example/campus-events/internal/http"
	"github.com/example/campus-events/internal/logging"
	"github.com/example/campus-events/internal/persistence"
	"github.com/example/campus-events/internal/persistence/memory"
	"github.com/example/campus-events/internal/persistence/mongo"
	"github.com/example/campus-events/internal/persistence/sqlite"
	"github.com/example/campus-events/internal/push"
	"github.com/example/campus-events/internal/scheduler"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stderr, nil)).Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.New(os.Stdout, cfg.LogLevel)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("campus events service stopped with error", "error", err)
		os.Exit(1)
	}
}

// storage is what every backend provides.
type storage interface {
	persistence.EventRepository
	persistence.UserRepository
	persistence.NotificationRepository
	persistence.ReminderRepository
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

func openStorage(ctx context.Context, cfg config.Config, logger *slog.Logger) (storage, error) {
	var (
		store storage
		err   error
	)
	switch cfg.Store {
	case config.StoreSQLite:
		store, err = sqlite.Open(ctx, cfg.SQLitePath, logger)
	case config.StoreMongo:
		store, err = mongo.Open(ctx, mongo.Config{URI: cfg.MongoURI, Database: cfg.MongoDatabase}, logger)
	case config.StoreMemory:
		store = memory.Open()
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", cfg.Store, err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("migrate %s storage: %w", cfg.Store, err)
	}
	return store, nil
}

// app is the wired service: HTTP surface plus the optional reminder runner.
type app struct {
	handler   http.Handler
	runner    *scheduler.Runner
	reminders *application.ReminderService
}

func newApp(cfg config.Config, store storage, logger *slog.Logger, now func() time.Time) (*app, error) {
	if now == nil {
		now = time.Now
	}

	events := newEventRepositoryAdapter(store)
	users := newUserDirectoryAdapter(store)
	notifications := newNotificationRepositoryAdapter(store)
	var markers application.ReminderMarkers
	if cfg.ReminderDedupe {
		markers = store
	}

	channel := newPushChannelAdapter(push.NewClient(push.Config{
		Endpoint:    cfg.PushEndpoint,
		AccessToken: cfg.PushAccessToken,
		Timeout:     cfg.PushTimeout,
	}))
	dispatcher := application.NewDispatcherWithLogger(channel, notifications, uuid.NewString, now, application.DispatcherConfig{
		Timeout:     cfg.PushTimeout,
		Concurrency: cfg.PushConcurrency,
	}, logger)

	eventService := application.NewEventServiceWithLogger(events, users, dispatcher, uuid.NewString, now, logger)
	rsvpService := application.NewRSVPServiceWithLogger(events, users, dispatcher, now, logger)
	attendanceService := application.NewAttendanceServiceWithLogger(events, users, now, logger)
	notificationService := application.NewNotificationServiceWithLogger(notifications, users, now, logger)
	reminderService := application.NewReminderServiceWithLogger(events, users, markers, dispatcher, now, logger)
	identityService := application.NewIdentityServiceWithLogger(users, cfg.IdentityCacheTTL, now, logger)

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Events:        httptransport.NewEventHandler(eventService, logger),
		RSVPs:         httptransport.NewRSVPHandler(rsvpService, attendanceService, logger),
		Notifications: httptransport.NewNotificationHandler(notificationService, logger),
		Health:        httptransport.NewHealthHandler(store, logger),
		Identity:      httptransport.RequireIdentity(identityService, logger),
		Middleware:    []func(http.Handler) http.Handler{httptransport.RequestLogger(logger)},
	})

	a := &app{handler: router, reminders: reminderService}
	if cfg.RemindersEnabled {
		runner, err := scheduler.NewRunner(reminderService, scheduler.Config{
			DaySpec:     cfg.DayReminderSpec,
			HourSpec:    cfg.HourReminderSpec,
			TickTimeout: cfg.ReminderTickTimeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		a.runner = runner
	}
	return a, nil
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	store, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	a, err := newApp(cfg, store, logger, time.Now)
	if err != nil {
		return err
	}

	if a.runner != nil {
		if err := a.runner.Start(ctx); err != nil {
			return err
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := a.runner.Stop(stopCtx); err != nil {
				logger.Error("failed to stop reminder scheduler", "error", err)
			}
		}()
	}

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("campus events API listening", "addr", server.Addr, "store", cfg.Store, "reminders", a.runner != nil)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve http: %w", err)
	}
	<-shutdownDone
	return nil
}
