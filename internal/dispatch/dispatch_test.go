package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/appointment-engine/internal/application"
	"github.com/example/appointment-engine/internal/domain"
	"github.com/example/appointment-engine/internal/testfixtures"
)

var _ application.Dispatcher = (*Dispatcher)(nil)

type published struct {
	subject string
	data    []byte
}

type fakePublisher struct {
	mu       sync.Mutex
	failures int
	messages []published
}

func (p *fakePublisher) Publish(subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures > 0 {
		p.failures--
		return errors.New("nats: connection closed")
	}
	p.messages = append(p.messages, published{subject: subject, data: data})
	return nil
}

func (p *fakePublisher) subjects() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.messages))
	for _, msg := range p.messages {
		out = append(out, msg.subject)
	}
	return out
}

type fakeBilling struct {
	mu      sync.Mutex
	fail    bool
	records []BillingRecord
}

func (b *fakeBilling) Record(_ context.Context, record BillingRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail {
		return errors.New("billing unavailable")
	}
	b.records = append(b.records, record)
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleAppointment() domain.Appointment {
	return testfixtures.NewAppointment(testfixtures.WithAppointmentID("appt-1"))
}

func TestNATSNotifier_PublishesJSONOnSubject(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	notifier := NewNATSNotifier(pub, "salon.bookings.")
	d := NewDispatcher(notifier, &fakeBilling{}, Options{Logger: quietLogger(), Now: testfixtures.ReferenceTime})

	appt := sampleAppointment()
	moved := appt
	moved.Start = testfixtures.At(14, 0)
	moved.End = testfixtures.At(15, 0)

	ctx := context.Background()
	d.AppointmentCreated(ctx, appt)
	d.Wait()
	d.AppointmentMoved(ctx, appt, moved)
	d.Wait()
	d.AppointmentCancelled(ctx, moved)
	d.Wait()

	assert.Equal(t, []string{"salon.bookings.created", "salon.bookings.moved", "salon.bookings.cancelled"}, pub.subjects())

	var event Event
	require.NoError(t, json.Unmarshal(pub.messages[1].data, &event))
	assert.Equal(t, domain.EventBookingMoved, event.Type)
	assert.Equal(t, "appt-1", event.AppointmentID)
	require.NotNil(t, event.PreviousStart)
	assert.True(t, event.PreviousStart.Equal(testfixtures.At(10, 0)))
	assert.True(t, event.Start.Equal(testfixtures.At(14, 0)))
	assert.True(t, event.OccurredAt.Equal(testfixtures.ReferenceTime()))
	assert.Zero(t, d.Pending())
}

func TestNATSNotifier_DefaultPrefix(t *testing.T) {
	t.Parallel()

	n := NewNATSNotifier(&fakePublisher{}, "  ")
	assert.Equal(t, DefaultSubjectPrefix+".created", n.Subject(domain.EventBookingCreated))
}

func TestDispatcher_QueuesFailuresAndDrains(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{failures: 2}
	billing := &fakeBilling{fail: true}
	d := NewDispatcher(NewNATSNotifier(pub, ""), billing, Options{Logger: quietLogger()})
	ctx := context.Background()

	d.AppointmentCancelled(ctx, sampleAppointment())
	d.BillingOutcome(ctx, sampleAppointment(), domain.BillingRefund)
	d.Wait()
	assert.Equal(t, 2, d.Pending())

	assert.Equal(t, 0, d.Drain(ctx), "publisher still failing once, billing still down")
	assert.Equal(t, 2, d.Pending())

	billing.mu.Lock()
	billing.fail = false
	billing.mu.Unlock()

	assert.Equal(t, 2, d.Drain(ctx))
	assert.Zero(t, d.Pending())
	assert.Equal(t, []string{DefaultSubjectPrefix + ".cancelled"}, pub.subjects())
	require.Len(t, billing.records, 1)
	assert.Equal(t, domain.BillingRefund, billing.records[0].Outcome)
	assert.Equal(t, "svc-cut", billing.records[0].ServiceID)
}

func TestDispatcher_AbandonsAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	billing := &fakeBilling{fail: true}
	d := NewDispatcher(NewLogNotifier(quietLogger()), billing, Options{Logger: quietLogger(), MaxAttempts: 2})
	ctx := context.Background()

	d.BillingOutcome(ctx, sampleAppointment(), domain.BillingCharge)
	d.Wait()
	assert.Equal(t, 1, d.Pending())

	d.Drain(ctx)
	assert.Zero(t, d.Pending(), "second failure reaches the attempt limit")
}

func TestDispatcher_QueueIsBounded(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(NewLogNotifier(quietLogger()), &fakeBilling{fail: true}, Options{Logger: quietLogger(), QueueSize: 3})
	for range 5 {
		d.BillingOutcome(context.Background(), sampleAppointment(), domain.BillingCharge)
	}
	d.Wait()
	assert.Equal(t, 3, d.Pending())
}

func TestDispatcher_IgnoresCallerCancellation(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	d := NewDispatcher(NewNATSNotifier(pub, ""), nil, Options{Logger: quietLogger()})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d.AppointmentCreated(ctx, sampleAppointment())
	d.Wait()
	assert.Len(t, pub.subjects(), 1)
}

func TestDispatcher_StartStop(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{failures: 1}
	d := NewDispatcher(NewNATSNotifier(pub, ""), nil, Options{Logger: quietLogger()})
	d.AppointmentCreated(context.Background(), sampleAppointment())
	d.Wait()
	require.Equal(t, 1, d.Pending())

	require.Error(t, d.Start("not a schedule"))
	require.NoError(t, d.Start("@every 1s"))
	assert.ErrorIs(t, d.Start(""), ErrAlreadyStarted)

	require.Eventually(t, func() bool { return d.Pending() == 0 }, 5*time.Second, 20*time.Millisecond)
	d.Stop()
	d.Stop()
	assert.Len(t, pub.subjects(), 1)
}

type blockingNotifier struct {
	release chan struct{}
	mu      sync.Mutex
	events  []Event
}

func (n *blockingNotifier) Notify(ctx context.Context, event Event) error {
	select {
	case <-n.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *blockingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

func TestDispatcher_SlowCollaboratorsDoNotBlockCaller(t *testing.T) {
	t.Parallel()

	notifier := &blockingNotifier{release: make(chan struct{})}
	d := NewDispatcher(notifier, nil, Options{Logger: quietLogger(), DeliveryTimeout: time.Minute})

	returned := make(chan struct{})
	go func() {
		d.AppointmentCancelled(context.Background(), sampleAppointment())
		d.BillingOutcome(context.Background(), sampleAppointment(), domain.BillingRefund)
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("caller waited on a blocked notifier")
	}
	assert.Zero(t, notifier.count())

	close(notifier.release)
	d.Wait()
	assert.Equal(t, 1, notifier.count())
	assert.Zero(t, d.Pending())
}

func TestDispatcher_BusyWorkersQueueForRetry(t *testing.T) {
	t.Parallel()

	notifier := &blockingNotifier{release: make(chan struct{})}
	d := NewDispatcher(notifier, nil, Options{Logger: quietLogger(), Workers: 1, DeliveryTimeout: time.Minute})
	ctx := context.Background()

	d.AppointmentCreated(ctx, sampleAppointment())
	d.AppointmentCancelled(ctx, sampleAppointment())
	assert.Equal(t, 1, d.Pending(), "second change arrives while the only worker is busy")

	close(notifier.release)
	d.Wait()
	assert.Equal(t, 1, notifier.count())

	assert.Equal(t, 1, d.Drain(ctx))
	assert.Zero(t, d.Pending())
	assert.Equal(t, 2, notifier.count())
}
