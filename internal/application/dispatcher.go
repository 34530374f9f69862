package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/example/campus-events/internal/push"
)

const tracerName = "github.com/example/campus-events/internal/application"

// Dispatcher defaults.
const (
	DefaultPushTimeout     = 10 * time.Second
	DefaultPushConcurrency = 4
	defaultBatchSize       = 100
)

// PushRequest is one push delivery addressed to a device token.
type PushRequest struct {
	Token    string
	Title    string
	Body     string
	Data     map[string]string
	ImageURL *string
}

// DeliveryResult is the outcome of one push message. Err is a *ChannelError
// when delivery failed.
type DeliveryResult struct {
	Token     string
	Delivered bool
	TicketID  string
	Err       error
}

// InAppRequest describes one in-app notification to record.
type InAppRequest struct {
	RecipientID string
	Type        NotificationType
	Title       string
	Body        string
	EventID     *string
	Data        map[string]string
}

// OutboundMessage is the content fanned out by Notify.
type OutboundMessage struct {
	Type     NotificationType
	Title    string
	Body     string
	EventID  *string
	Data     map[string]string
	ImageURL *string
}

// NotifyReport summarises the two independent channels of a Notify call.
type NotifyReport struct {
	InApp    []Notification
	InAppErr error
	Push     []DeliveryResult
}

// DispatcherConfig bounds push delivery.
type DispatcherConfig struct {
	Timeout     time.Duration
	Concurrency int
}

// Dispatcher records in-app notifications and delivers push messages. Push is
// best effort: failures are captured in results and logged, never returned.
type Dispatcher struct {
	channel       PushChannel
	notifications NotificationRepository
	idGenerator   func() string
	now           func() time.Time
	timeout       time.Duration
	concurrency   int
	logger        *slog.Logger
	tracer        trace.Tracer
}

// NewDispatcher constructs a dispatcher with the provided dependencies.
func NewDispatcher(channel PushChannel, notifications NotificationRepository, idGenerator func() string, now func() time.Time, cfg DispatcherConfig) *Dispatcher {
	return NewDispatcherWithLogger(channel, notifications, idGenerator, now, cfg, nil)
}

// NewDispatcherWithLogger constructs a dispatcher with a specified logger.
func NewDispatcherWithLogger(channel PushChannel, notifications NotificationRepository, idGenerator func() string, now func() time.Time, cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultPushTimeout
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultPushConcurrency
	}
	return &Dispatcher{
		channel:       channel,
		notifications: notifications,
		idGenerator:   idGenerator,
		now:           now,
		timeout:       cfg.Timeout,
		concurrency:   cfg.Concurrency,
		logger:        defaultLogger(logger),
		tracer:        otel.Tracer(tracerName),
	}
}

func (d *Dispatcher) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, d.logger, "Dispatcher", operation, attrs...)
}

// DispatchSingle sends one push message. An invalid token yields a failed
// result without contacting the channel.
func (d *Dispatcher) DispatchSingle(ctx context.Context, req PushRequest) DeliveryResult {
	ctx, span := d.tracer.Start(ctx, "Dispatcher.DispatchSingle")
	defer span.End()

	logger := d.loggerWith(ctx, "DispatchSingle", "token_fingerprint", push.Fingerprint(req.Token))
	result := DeliveryResult{Token: req.Token}

	switch {
	case d.channel == nil:
		result.Err = &ChannelError{Reason: "push channel not configured"}
	case !d.channel.IsValidToken(req.Token):
		result.Err = &ChannelError{Reason: "invalid token"}
	default:
		sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
		tickets, err := d.channel.SendBatch(sendCtx, []PushMessage{toPushMessage(req)})
		cancel()
		switch {
		case err != nil:
			result.Err = &ChannelError{Reason: "send failed", Err: err}
		case len(tickets) == 0:
			result.Err = &ChannelError{Reason: "no ticket returned"}
		default:
			applyTicket(&result, tickets[0])
		}
	}

	if result.Err != nil {
		span.SetStatus(codes.Error, result.Err.Error())
		logger.WarnContext(ctx, "push delivery failed", "error", result.Err, "error_kind", ErrorKind(result.Err))
		return result
	}
	logger.InfoContext(ctx, "push delivered", "ticket_id", result.TicketID)
	return result
}

// DispatchBulk drops invalid tokens, splits the rest into batches of at most
// the channel's maximum size and sends every batch independently. Results are
// returned in input order.
func (d *Dispatcher) DispatchBulk(ctx context.Context, reqs []PushRequest) []DeliveryResult {
	ctx, span := d.tracer.Start(ctx, "Dispatcher.DispatchBulk", trace.WithAttributes(attribute.Int("push.messages", len(reqs))))
	defer span.End()

	logger := d.loggerWith(ctx, "DispatchBulk", "messages", len(reqs))
	results := make([]DeliveryResult, len(reqs))
	if len(reqs) == 0 {
		return results
	}

	valid := make([]int, 0, len(reqs))
	for i, req := range reqs {
		results[i].Token = req.Token
		switch {
		case d.channel == nil:
			results[i].Err = &ChannelError{Reason: "push channel not configured"}
		case !d.channel.IsValidToken(req.Token):
			results[i].Err = &ChannelError{Reason: "invalid token"}
			logger.WarnContext(ctx, "skipping invalid push token", "token_fingerprint", push.Fingerprint(req.Token))
		default:
			valid = append(valid, i)
		}
	}

	batches := partition(valid, d.batchSize())
	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for n, batch := range batches {
		g.Go(func() error {
			d.sendBatch(ctx, n, batch, reqs, results)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if !r.Delivered {
			failed++
		}
	}
	span.SetAttributes(attribute.Int("push.batches", len(batches)), attribute.Int("push.failed", failed))
	if failed > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d of %d messages failed", failed, len(reqs)))
		logger.WarnContext(ctx, "bulk push completed with failures", "batches", len(batches), "failed", failed)
		return results
	}
	logger.InfoContext(ctx, "bulk push completed", "batches", len(batches))
	return results
}

// sendBatch delivers one batch and writes the outcome into the batch's own
// result slots.
func (d *Dispatcher) sendBatch(ctx context.Context, n int, indices []int, reqs []PushRequest, results []DeliveryResult) {
	ctx, span := d.tracer.Start(ctx, "Dispatcher.sendBatch", trace.WithAttributes(
		attribute.Int("push.batch", n),
		attribute.Int("push.batch_size", len(indices)),
	))
	defer span.End()

	messages := make([]PushMessage, len(indices))
	for i, idx := range indices {
		messages[i] = toPushMessage(reqs[idx])
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	tickets, err := d.channel.SendBatch(sendCtx, messages)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		d.loggerWith(ctx, "DispatchBulk", "batch", n).WarnContext(ctx, "push batch failed", "error", err, "batch_size", len(indices))
		for _, idx := range indices {
			results[idx].Err = &ChannelError{Reason: "batch failed", Err: err}
		}
		return
	}
	for i, idx := range indices {
		if i >= len(tickets) {
			results[idx].Err = &ChannelError{Reason: "no ticket returned"}
			continue
		}
		applyTicket(&results[idx], tickets[i])
	}
}

func (d *Dispatcher) batchSize() int {
	if d.channel == nil {
		return defaultBatchSize
	}
	if size := d.channel.MaxBatchSize(); size > 0 {
		return size
	}
	return defaultBatchSize
}

// RecordInApp persists a single in-app notification.
func (d *Dispatcher) RecordInApp(ctx context.Context, req InAppRequest) (Notification, error) {
	created, err := d.RecordInAppMany(ctx, []InAppRequest{req})
	if err != nil {
		return Notification{}, err
	}
	return created[0], nil
}

// RecordInAppMany persists every notification in one bulk insert.
func (d *Dispatcher) RecordInAppMany(ctx context.Context, reqs []InAppRequest) (created []Notification, err error) {
	if len(reqs) == 0 {
		return nil, nil
	}
	if d.notifications == nil {
		return nil, fmt.Errorf("notification repository not configured")
	}

	logger := d.loggerWith(ctx, "RecordInAppMany", "count", len(reqs))
	defer func() {
		logOutcome(ctx, logger, err, "failed to record in-app notifications", "in-app notifications recorded")
	}()

	now := d.now()
	created = make([]Notification, len(reqs))
	for i, req := range reqs {
		created[i] = Notification{
			ID:          d.idGenerator(),
			RecipientID: req.RecipientID,
			Type:        req.Type,
			Title:       req.Title,
			Body:        req.Body,
			EventID:     req.EventID,
			Data:        req.Data,
			CreatedAt:   now,
		}
	}
	if err = d.notifications.CreateNotifications(ctx, created); err != nil {
		err = fmt.Errorf("record in-app notifications: %w", mapRepoError(err))
		return nil, err
	}
	return created, nil
}

// Notify records the message in-app for every recipient and pushes it to the
// recipients with a known token. The channels fail independently.
func (d *Dispatcher) Notify(ctx context.Context, recipients []User, msg OutboundMessage) NotifyReport {
	var report NotifyReport
	if len(recipients) == 0 {
		return report
	}

	inApp := make([]InAppRequest, len(recipients))
	var pushes []PushRequest
	data := messageData(msg)
	for i, user := range recipients {
		inApp[i] = InAppRequest{
			RecipientID: user.ID,
			Type:        msg.Type,
			Title:       msg.Title,
			Body:        msg.Body,
			EventID:     msg.EventID,
			Data:        msg.Data,
		}
		if user.PushToken != nil && *user.PushToken != "" {
			pushes = append(pushes, PushRequest{
				Token:    *user.PushToken,
				Title:    msg.Title,
				Body:     msg.Body,
				Data:     data,
				ImageURL: msg.ImageURL,
			})
		}
	}

	report.InApp, report.InAppErr = d.RecordInAppMany(ctx, inApp)

	switch len(pushes) {
	case 0:
	case 1:
		report.Push = []DeliveryResult{d.DispatchSingle(ctx, pushes[0])}
	default:
		report.Push = d.DispatchBulk(ctx, pushes)
	}
	return report
}

func messageData(msg OutboundMessage) map[string]string {
	data := make(map[string]string, len(msg.Data)+2)
	for k, v := range msg.Data {
		data[k] = v
	}
	data["type"] = string(msg.Type)
	if msg.EventID != nil {
		data["eventId"] = *msg.EventID
	}
	return data
}

func toPushMessage(req PushRequest) PushMessage {
	return PushMessage{
		To:       req.Token,
		Title:    req.Title,
		Body:     req.Body,
		Data:     req.Data,
		ImageURL: req.ImageURL,
	}
}

func applyTicket(result *DeliveryResult, ticket PushTicket) {
	if !ticket.OK {
		reason := ticket.Message
		if reason == "" {
			reason = "rejected by channel"
		}
		result.Err = &ChannelError{Reason: reason}
		return
	}
	result.Delivered = true
	result.TicketID = ticket.ID
}

func partition(indices []int, size int) [][]int {
	var batches [][]int
	for start := 0; start < len(indices); start += size {
		end := min(start+size, len(indices))
		batches = append(batches, indices[start:end])
	}
	return batches
}
