package testfixtures

import (
	"log/slog"
	"time"

	"github.com/example/campus-events/internal/application"
)

// ServiceFactory builds application services on a shared deterministic clock
// and ID sequence.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
	Logger      *slog.Logger
}

// ServiceFactoryOption configures a ServiceFactory.
type ServiceFactoryOption func(*ServiceFactory)

func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("id")
	}
	return factory
}

func WithClock(clock *Clock) ServiceFactoryOption {
	return func(f *ServiceFactory) { f.Clock = clock }
}

func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(f *ServiceFactory) { f.IDGenerator = generator }
}

func WithLogger(logger *slog.Logger) ServiceFactoryOption {
	return func(f *ServiceFactory) { f.Logger = logger }
}

// Ports are the repository dependencies shared by the services.
type Ports struct {
	Events        application.EventRepository
	Users         application.UserDirectory
	Notifications application.NotificationRepository
	Reminders     application.ReminderMarkers
	Push          application.PushChannel
}

// Services is the full set of application services wired on one Ports value.
type Services struct {
	Dispatcher    *application.Dispatcher
	Events        *application.EventService
	RSVPs         *application.RSVPService
	Attendance    *application.AttendanceService
	Notifications *application.NotificationService
	Reminders     *application.ReminderService
	Identity      *application.IdentityService
}

// NewDispatcher builds a dispatcher with default push bounds.
func (f *ServiceFactory) NewDispatcher(ports Ports) *application.Dispatcher {
	return application.NewDispatcherWithLogger(ports.Push, ports.Notifications, f.IDGenerator.NextFunc(), f.Clock.NowFunc(), application.DispatcherConfig{}, f.Logger)
}

// Build wires every service.
func (f *ServiceFactory) Build(ports Ports) Services {
	now := f.Clock.NowFunc()
	dispatcher := f.NewDispatcher(ports)
	return Services{
		Dispatcher:    dispatcher,
		Events:        application.NewEventServiceWithLogger(ports.Events, ports.Users, dispatcher, f.IDGenerator.NextFunc(), now, f.Logger),
		RSVPs:         application.NewRSVPServiceWithLogger(ports.Events, ports.Users, dispatcher, now, f.Logger),
		Attendance:    application.NewAttendanceServiceWithLogger(ports.Events, ports.Users, now, f.Logger),
		Notifications: application.NewNotificationServiceWithLogger(ports.Notifications, ports.Users, now, f.Logger),
		Reminders:     application.NewReminderServiceWithLogger(ports.Events, ports.Users, ports.Reminders, dispatcher, now, f.Logger),
		Identity:      application.NewIdentityServiceWithLogger(ports.Users, time.Minute, now, f.Logger),
	}
}
