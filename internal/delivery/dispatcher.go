// Package delivery persists completed reports and forwards them downstream.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/incident-intake/internal/domain"
	"github.com/ashureev/incident-intake/internal/metrics"
	"github.com/ashureev/incident-intake/internal/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// User-facing outcome messages.
const (
	MsgPersisted     = "Your report has been registered in the database."
	MsgStorageFailed = "Your report could not be registered. Please try again later."
	MsgAPISent       = "Your report has been sent. 👌"
	MsgAPIFailed     = "API integration error."
	MsgSMTPFailed    = "SMTP integration error."
	MsgNoChannel     = "No delivery channel was selected for this report."
)

// Forwarder performs one delivery attempt for a report.
type Forwarder interface {
	Forward(ctx context.Context, report domain.Report) error
}

// Replier sends a text reply to a session.
type Replier interface {
	Send(ctx context.Context, sessionID, text string) error
}

// Config holds the dispatcher's collaborators.
type Config struct {
	Repo    store.Repository
	Replies Replier
	API     Forwarder
	SMTP    Forwarder
	Timeout time.Duration
	Metrics *metrics.IntakeMetrics
}

// Dispatcher commits a completed report and makes a single delivery attempt.
type Dispatcher struct {
	repo    store.Repository
	replies Replier
	api     Forwarder
	smtp    Forwarder
	timeout time.Duration
	metrics *metrics.IntakeMetrics
	tracer  trace.Tracer
	now     func() time.Time
}

// NewDispatcher creates a dispatcher. Timeout defaults to 15s.
func NewDispatcher(cfg Config) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Dispatcher{
		repo:    cfg.Repo,
		replies: cfg.Replies,
		api:     cfg.API,
		smtp:    cfg.SMTP,
		timeout: cfg.Timeout,
		metrics: cfg.Metrics,
		tracer:  otel.Tracer("incident-intake.internal.delivery"),
		now:     time.Now,
	}
}

// Dispatch registers the user, persists the report, confirms it and
// forwards it over ch. It returns the incident ID, and a *StorageError or
// *DeliveryError describing the failure, if any. The user has already been
// told about the outcome when Dispatch returns.
func (d *Dispatcher) Dispatch(ctx context.Context, sessionID string, from domain.Identity, report domain.Report, ch domain.Channel) (int64, error) {
	ctx, span := d.tracer.Start(ctx, "delivery.dispatch", trace.WithAttributes(
		attribute.String("session_id", sessionID),
		attribute.Int64("user_id", from.UserID),
		attribute.String("channel", string(ch)),
	))
	defer span.End()

	id, err := d.persist(ctx, from, report)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		slog.Error("Failed to persist incident", "session_id", sessionID, "user_id", from.UserID, "error", err)
		d.reply(ctx, sessionID, MsgStorageFailed)
		d.metrics.ObserveDispatch(string(ch), "storage_failed")
		return 0, &StorageError{Err: err}
	}
	slog.Info("Incident persisted", "session_id", sessionID, "user_id", from.UserID, "incident_id", id, "channel", ch)
	d.reply(ctx, sessionID, MsgPersisted)

	if err := d.deliver(ctx, report, ch); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delivery failed")
		slog.Warn("Incident delivery failed", "session_id", sessionID, "incident_id", id, "channel", ch, "error", err)
		d.reply(ctx, sessionID, failureMessage(ch, err))
		d.metrics.ObserveDispatch(string(ch), "delivery_failed")
		return id, &DeliveryError{Channel: ch, Err: err}
	}

	slog.Info("Incident delivered", "session_id", sessionID, "incident_id", id, "channel", ch)
	if ch == domain.ChannelAPI {
		d.reply(ctx, sessionID, MsgAPISent)
	}
	d.metrics.ObserveDispatch(string(ch), "delivered")
	return id, nil
}

func (d *Dispatcher) persist(ctx context.Context, from domain.Identity, report domain.Report) (int64, error) {
	if err := d.repo.RegisterUser(ctx, from.User(d.now())); err != nil {
		return 0, fmt.Errorf("register user %d: %w", from.UserID, err)
	}
	return d.repo.AddIncident(ctx, &domain.Incident{UserID: from.UserID, Report: report})
}

var errNoForwarder = errors.New("no forwarder configured for channel")

func (d *Dispatcher) deliver(ctx context.Context, report domain.Report, ch domain.Channel) error {
	var fwd Forwarder
	switch ch {
	case domain.ChannelAPI:
		fwd = d.api
	case domain.ChannelSMTP:
		fwd = d.smtp
	}
	if fwd == nil {
		return fmt.Errorf("%w %q", errNoForwarder, ch)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := d.now()
	err := fwd.Forward(ctx, report)
	d.metrics.ObserveDelivery(string(ch), d.now().Sub(start).Seconds())
	return err
}

func (d *Dispatcher) reply(ctx context.Context, sessionID, text string) {
	if d.replies == nil {
		return
	}
	if err := d.replies.Send(ctx, sessionID, text); err != nil {
		slog.Warn("Failed to send reply", "session_id", sessionID, "error", err)
	}
}

func failureMessage(ch domain.Channel, err error) string {
	switch ch {
	case domain.ChannelAPI:
		return MsgAPIFailed
	case domain.ChannelSMTP:
		return MsgSMTPFailed + "\n" + err.Error()
	default:
		return MsgNoChannel
	}
}
