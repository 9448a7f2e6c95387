package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/example/appointment-engine/internal/domain"
)

// DefaultSubjectPrefix is used when no subject prefix is configured.
const DefaultSubjectPrefix = "engine.bookings"

// Notifier announces booking changes.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Publisher is the part of *nats.Conn the notifier needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

var _ Publisher = (*nats.Conn)(nil)

// NATSNotifier publishes events as JSON on <prefix>.created, <prefix>.moved and <prefix>.cancelled.
type NATSNotifier struct {
	publisher Publisher
	prefix    string
}

// NewNATSNotifier wraps a publisher, typically a *nats.Conn.
func NewNATSNotifier(publisher Publisher, prefix string) *NATSNotifier {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSNotifier{publisher: publisher, prefix: prefix}
}

// Connect dials a NATS server and returns a notifier publishing through it.
// The caller owns the returned connection.
func Connect(url, prefix string, logger *slog.Logger) (*NATSNotifier, *nats.Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := nats.Connect(url,
		nats.Name("appointment-engine"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return NewNATSNotifier(conn, prefix), conn, nil
}

// Subject returns the subject an event of kind is published on.
func (n *NATSNotifier) Subject(kind domain.BookingEvent) string {
	switch kind {
	case domain.EventBookingCreated:
		return n.prefix + ".created"
	case domain.EventBookingMoved:
		return n.prefix + ".moved"
	case domain.EventBookingCancelled:
		return n.prefix + ".cancelled"
	}
	return n.prefix + ".unknown"
}

// Notify publishes event.
func (n *NATSNotifier) Notify(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := n.publisher.Publish(n.Subject(event.Type), data); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

// LogNotifier writes events to a logger. It is used when no broker is configured.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a notifier that logs at info level.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With("component", "notifier")}
}

// Notify logs event.
func (n *LogNotifier) Notify(ctx context.Context, event Event) error {
	n.logger.InfoContext(ctx, "booking event",
		"type", event.Type,
		"appointment_id", event.AppointmentID,
		"technician_id", event.TechnicianID,
		"start", event.Start,
		"end", event.End,
	)
	return nil
}

// BillingRecorder records charges and refunds.
type BillingRecorder interface {
	Record(ctx context.Context, record BillingRecord) error
}

// LogBillingRecorder logs billing outcomes for a collaborator that tails the log.
type LogBillingRecorder struct {
	logger *slog.Logger
}

// NewLogBillingRecorder returns a recorder that logs at info level.
func NewLogBillingRecorder(logger *slog.Logger) *LogBillingRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogBillingRecorder{logger: logger.With("component", "billing")}
}

// Record logs record.
func (r *LogBillingRecorder) Record(ctx context.Context, record BillingRecord) error {
	r.logger.InfoContext(ctx, "billing outcome",
		"appointment_id", record.AppointmentID,
		"service_id", record.ServiceID,
		"outcome", record.Outcome,
	)
	return nil
}
