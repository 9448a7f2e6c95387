package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/appointment-engine/internal/availability"
	"github.com/example/appointment-engine/internal/domain"
	"github.com/example/appointment-engine/internal/recurrence"
	"github.com/example/appointment-engine/internal/testfixtures"
)

func newAvailabilityService(h *bookingHarness) *AvailabilityService {
	return NewAvailabilityService(AvailabilityDeps{
		Appointments: h.store,
		Schedules:    h.store,
		Blocks:       h.store,
		Calculator:   availability.NewCalculator(recurrence.NewEngine(time.UTC), 15*time.Minute),
		Metrics:      h.metrics,
		Workers:      2,
		Now:          h.clock.NowFunc(),
	})
}

func TestAvailabilityService_MondayScenario(t *testing.T) {
	t.Parallel()

	h := newBookingHarness(t)
	svc := newAvailabilityService(h)
	ctx := context.Background()
	h.create(t, testfixtures.At(10, 0), 90)

	ok, err := svc.CheckSlot(ctx, "tech-1", "svc-cut", testfixtures.At(10, 30))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.CheckSlot(ctx, "tech-1", "svc-cut", testfixtures.At(11, 30))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.CheckSlot(ctx, "tech-2", "svc-cut", testfixtures.At(10, 30))
	require.NoError(t, err)
	assert.True(t, ok, "other technicians are unaffected")

	assert.Equal(t, 3, h.metrics.observed["check"])
}

func TestAvailabilityService_SlotsRoundTrip(t *testing.T) {
	t.Parallel()

	h := newBookingHarness(t)
	svc := newAvailabilityService(h)
	ctx := context.Background()
	query := SlotQuery{TechnicianID: "tech-1", ServiceID: "svc-color", Date: testfixtures.At(0, 0)}

	slots, err := svc.TechnicianSlots(ctx, query)
	require.NoError(t, err)
	require.NotEmpty(t, slots)

	var booked availability.Slot
	for _, slot := range slots {
		if slot.Available && slot.Start.Hour() == 13 {
			booked = slot
			break
		}
	}
	require.False(t, booked.Start.IsZero())

	appointment, err := h.service.CreateAppointment(ctx, CreateAppointmentParams{
		TechnicianID: "tech-1",
		ServiceID:    "svc-color",
		ClientID:     "client-1",
		Start:        booked.Start,
	})
	require.NoError(t, err, "an available slot must be bookable")
	assert.True(t, appointment.End.Equal(booked.End))

	slots, err = svc.TechnicianSlots(ctx, query)
	require.NoError(t, err)
	var sawEndPlusBuffer bool
	for _, slot := range slots {
		if slot.Start.Equal(booked.Start) {
			assert.False(t, slot.Available)
		}
		if slot.Start.Equal(appointment.End.Add(15 * time.Minute)) {
			sawEndPlusBuffer = true
			assert.True(t, slot.Available)
		}
	}
	assert.True(t, sawEndPlusBuffer)
}

func TestAvailabilityService_ModifiedInstance(t *testing.T) {
	t.Parallel()

	h := newBookingHarness(t)
	svc := newAvailabilityService(h)
	ctx := context.Background()
	tuesday := testfixtures.At(0, 0).AddDate(0, 0, 1)
	at := func(hour int) time.Time { return tuesday.Add(time.Duration(hour) * time.Hour) }

	series := testfixtures.NewBlock(
		testfixtures.WithBlockID("tuesday-lunch"),
		testfixtures.WithBlockSpan(at(12).AddDate(0, 0, -7), at(13).AddDate(0, 0, -7)),
		testfixtures.WithRule("FREQ=WEEKLY;INTERVAL=1"),
	)
	require.NoError(t, h.store.SaveBlock(ctx, series))

	ok, err := svc.CheckSlot(ctx, "tech-1", "svc-cut", at(12))
	require.NoError(t, err)
	assert.False(t, ok, "series instance blocks noon")

	override := testfixtures.NewBlock(testfixtures.WithBlockID("tuesday-lunch-late"), testfixtures.WithBlockSpan(at(15), at(16)))
	require.NoError(t, h.store.ModifyBlockInstance(ctx, series.ID, tuesday.Format(domain.ExceptionDateLayout), override))

	ok, err = svc.CheckSlot(ctx, "tech-1", "svc-cut", at(12))
	require.NoError(t, err)
	assert.True(t, ok, "the modified instance frees noon")

	ok, err = svc.CheckSlot(ctx, "tech-1", "svc-cut", at(15))
	require.NoError(t, err)
	assert.False(t, ok, "the override occupies 15:00")

	ok, err = svc.CheckSlot(ctx, "tech-1", "svc-cut", at(12).AddDate(0, 0, 7))
	require.NoError(t, err)
	assert.False(t, ok, "other weeks keep the series time")
}

func TestAvailabilityService_DaysAvailable(t *testing.T) {
	t.Parallel()

	h := newBookingHarness(t)
	svc := newAvailabilityService(h)
	ctx := context.Background()
	h.create(t, testfixtures.At(9, 0), 600)

	monday := testfixtures.At(0, 0)
	days, err := svc.DaysAvailable(ctx, DaysQuery{
		LocationID: "loc-1",
		ServiceID:  "svc-cut",
		From:       monday,
		To:         monday.AddDate(0, 0, 6),
	})
	require.NoError(t, err)
	require.Len(t, days, 7)

	for i, day := range days {
		assert.True(t, day.Date.Equal(monday.AddDate(0, 0, i)), "results keep date order")
		weekend := day.Date.Weekday() == time.Saturday || day.Date.Weekday() == time.Sunday
		assert.Equal(t, !weekend, day.Available, day.Date.Weekday().String())
	}
	assert.Equal(t, "tech-2", days[0].TechnicianID, "tech-1 is fully booked on Monday")
	assert.Equal(t, "tech-1", days[1].TechnicianID)

	days, err = svc.DaysAvailable(ctx, DaysQuery{
		TechnicianIDs: []string{"tech-1"},
		ServiceID:     "svc-cut",
		From:          monday,
		To:            monday.AddDate(0, 0, 1),
	})
	require.NoError(t, err)
	require.Len(t, days, 2)
	assert.False(t, days[0].Available)
	assert.True(t, days[1].Available)
}

func TestAvailabilityService_Validation(t *testing.T) {
	t.Parallel()

	h := newBookingHarness(t)
	svc := newAvailabilityService(h)
	ctx := context.Background()
	monday := testfixtures.At(0, 0)

	var vErr *ValidationError
	_, err := svc.DaysAvailable(ctx, DaysQuery{LocationID: "loc-1", ServiceID: "svc-cut", From: monday, To: monday.AddDate(0, 0, -1)})
	assert.ErrorAs(t, err, &vErr)

	_, err = svc.DaysAvailable(ctx, DaysQuery{LocationID: "loc-1", ServiceID: "svc-cut", From: monday, To: monday.AddDate(1, 0, 0)})
	assert.ErrorAs(t, err, &vErr)

	_, err = svc.TechnicianSlots(ctx, SlotQuery{TechnicianID: "tech-1", ServiceID: "svc-none", Date: monday})
	assert.ErrorAs(t, err, &vErr)

	_, err = svc.CheckSlot(ctx, "", "svc-cut", monday)
	assert.ErrorAs(t, err, &vErr)
}
