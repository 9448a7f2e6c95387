package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/example/appointment-engine/internal/domain"
)

const (
	// DefaultRetrySchedule drains the retry queue every minute.
	DefaultRetrySchedule = "@every 1m"
	// DefaultMaxAttempts is the number of deliveries tried before a job is dropped.
	DefaultMaxAttempts = 5
	// DefaultQueueSize bounds the number of pending retries.
	DefaultQueueSize = 1024
	// DefaultDeliveryTimeout bounds one delivery attempt.
	DefaultDeliveryTimeout = 2 * time.Second
	// DefaultWorkers bounds the number of concurrent first attempts.
	DefaultWorkers = 8
)

// ErrAlreadyStarted is returned by Start when the retry scheduler is running.
var ErrAlreadyStarted = errors.New("dispatch: retry scheduler already started")

// Options tunes a Dispatcher. Zero values select the defaults.
type Options struct {
	MaxAttempts     int
	QueueSize       int
	DeliveryTimeout time.Duration
	Workers         int
	Now             func() time.Time
	Logger          *slog.Logger
}

type jobKind int

const (
	jobNotify jobKind = iota
	jobBilling
)

type job struct {
	kind     jobKind
	event    Event
	billing  BillingRecord
	attempts int
}

func (j job) appointmentID() string {
	if j.kind == jobBilling {
		return j.billing.AppointmentID
	}
	return j.event.AppointmentID
}

// Dispatcher fans committed booking changes out to a Notifier and a BillingRecorder.
// Each change is handed to one of a bounded set of workers for a first attempt and
// the caller returns at once. Failures, and changes arriving while every worker is
// busy, are queued and retried on a cron schedule. A failed delivery never reaches the caller.
type Dispatcher struct {
	notifier Notifier
	billing  BillingRecorder
	opts     Options
	logger   *slog.Logger

	workers  chan struct{}
	inflight sync.WaitGroup

	mu    sync.Mutex
	queue []job
	cron  *cron.Cron
}

// NewDispatcher constructs a dispatcher. Nil collaborators fall back to the log implementations.
func NewDispatcher(notifier Notifier, billing BillingRecorder, opts Options) *Dispatcher {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.DeliveryTimeout <= 0 {
		opts.DeliveryTimeout = DefaultDeliveryTimeout
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if notifier == nil {
		notifier = NewLogNotifier(opts.Logger)
	}
	if billing == nil {
		billing = NewLogBillingRecorder(opts.Logger)
	}
	return &Dispatcher{
		notifier: notifier,
		billing:  billing,
		opts:     opts,
		logger:   opts.Logger.With("component", "dispatch"),
		workers:  make(chan struct{}, opts.Workers),
	}
}

// AppointmentCreated announces a new booking.
func (d *Dispatcher) AppointmentCreated(ctx context.Context, appointment domain.Appointment) {
	d.deliver(ctx, job{kind: jobNotify, event: newEvent(domain.EventBookingCreated, appointment, d.opts.Now())})
}

// AppointmentMoved announces a change of technician or time.
func (d *Dispatcher) AppointmentMoved(ctx context.Context, previous, current domain.Appointment) {
	event := newEvent(domain.EventBookingMoved, current, d.opts.Now())
	prevStart, prevEnd := previous.Start, previous.End
	event.PreviousStart = &prevStart
	event.PreviousEnd = &prevEnd
	d.deliver(ctx, job{kind: jobNotify, event: event})
}

// AppointmentCancelled announces a cancellation.
func (d *Dispatcher) AppointmentCancelled(ctx context.Context, appointment domain.Appointment) {
	d.deliver(ctx, job{kind: jobNotify, event: newEvent(domain.EventBookingCancelled, appointment, d.opts.Now())})
}

// BillingOutcome records a charge or refund.
func (d *Dispatcher) BillingOutcome(ctx context.Context, appointment domain.Appointment, outcome domain.BillingOutcome) {
	d.deliver(ctx, job{kind: jobBilling, billing: BillingRecord{
		AppointmentID: appointment.ID,
		ClientID:      appointment.ClientID,
		ServiceID:     appointment.ServiceID,
		Outcome:       outcome,
		OccurredAt:    d.opts.Now(),
	}})
}

func (d *Dispatcher) deliver(ctx context.Context, j job) {
	// The write is already committed; a cancelled request must not drop the side effect.
	ctx = context.WithoutCancel(ctx)

	select {
	case d.workers <- struct{}{}:
	default:
		d.logger.WarnContext(ctx, "delivery workers busy, queued for retry", "appointment_id", j.appointmentID())
		d.enqueue(j)
		return
	}

	d.inflight.Add(1)
	go func() {
		defer func() {
			<-d.workers
			d.inflight.Done()
		}()
		if err := d.attempt(ctx, &j); err != nil {
			d.logger.WarnContext(ctx, "delivery failed, queued for retry",
				"appointment_id", j.appointmentID(), "attempts", j.attempts, "error", err)
			d.enqueue(j)
		}
	}()
}

// Wait blocks until every first attempt already handed to a worker has finished.
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
}

func (d *Dispatcher) attempt(ctx context.Context, j *job) error {
	ctx, cancel := context.WithTimeout(ctx, d.opts.DeliveryTimeout)
	defer cancel()

	j.attempts++
	switch j.kind {
	case jobBilling:
		return d.billing.Record(ctx, j.billing)
	default:
		return d.notifier.Notify(ctx, j.event)
	}
}

func (d *Dispatcher) enqueue(j job) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if j.attempts >= d.opts.MaxAttempts {
		d.logger.Error("delivery abandoned", "appointment_id", j.appointmentID(), "attempts", j.attempts)
		return
	}
	if len(d.queue) >= d.opts.QueueSize {
		dropped := d.queue[0]
		d.queue = d.queue[1:]
		d.logger.Error("retry queue full, dropping oldest job", "appointment_id", dropped.appointmentID())
	}
	d.queue = append(d.queue, j)
}

// Pending returns the number of queued retries.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Drain retries every queued job once and returns how many were delivered.
func (d *Dispatcher) Drain(ctx context.Context) int {
	d.mu.Lock()
	pending := d.queue
	d.queue = nil
	d.mu.Unlock()

	delivered := 0
	for _, j := range pending {
		if err := d.attempt(ctx, &j); err != nil {
			d.logger.WarnContext(ctx, "retry failed",
				"appointment_id", j.appointmentID(), "attempts", j.attempts, "error", err)
			d.enqueue(j)
			continue
		}
		delivered++
	}
	if len(pending) > 0 {
		d.logger.InfoContext(ctx, "retry queue drained", "delivered", delivered, "remaining", d.Pending())
	}
	return delivered
}

// Start drains the retry queue on schedule, a cron expression or descriptor such
// as "@every 30s". An empty schedule selects DefaultRetrySchedule.
func (d *Dispatcher) Start(schedule string) error {
	if schedule == "" {
		schedule = DefaultRetrySchedule
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cron != nil {
		return ErrAlreadyStarted
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(schedule, func() { d.Drain(context.Background()) }); err != nil {
		return fmt.Errorf("dispatch: invalid retry schedule %q: %w", schedule, err)
	}
	c.Start()
	d.cron = c
	d.logger.Info("retry scheduler started", "schedule", schedule)
	return nil
}

// Stop halts the retry scheduler and waits for a running drain to finish.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	c := d.cron
	d.cron = nil
	d.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	d.logger.Info("retry scheduler stopped", "pending", d.Pending())
}
