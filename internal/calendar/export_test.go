package calendar

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/appointment-engine/internal/domain"
	"github.com/example/appointment-engine/internal/persistence/memory"
	"github.com/example/appointment-engine/internal/recurrence"
	"github.com/example/appointment-engine/internal/testfixtures"
)

func summaries(t *testing.T, data []byte) map[string]string {
	t.Helper()
	cal, err := ical.ParseCalendar(bytes.NewReader(data))
	require.NoError(t, err)
	out := make(map[string]string)
	for _, event := range cal.Events() {
		summary := event.GetProperty(ical.ComponentPropertySummary)
		require.NotNil(t, summary)
		out[event.Id()] = summary.Value
	}
	return out
}

func TestExporter_Export(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.New()
	require.NoError(t, testfixtures.DefaultSeed().Apply(ctx, store))

	appt := testfixtures.NewAppointment(testfixtures.WithAppointmentID("appt-1"))
	_, err := store.InsertAppointment(ctx, appt)
	require.NoError(t, err)
	cancelled := testfixtures.NewAppointment(testfixtures.WithAppointmentID("appt-2"), testfixtures.WithStatus(domain.StatusCancelled))
	_, err = store.InsertAppointment(ctx, cancelled)
	require.NoError(t, err)

	series := testfixtures.NewBlock(
		testfixtures.WithBlockID("lunch"),
		testfixtures.WithRule("FREQ=DAILY;INTERVAL=1;COUNT=3"),
	)
	series.Title = "Lunch"
	require.NoError(t, store.SaveBlock(ctx, series))
	moved := testfixtures.NewBlock(testfixtures.WithBlockID("lunch-late"), testfixtures.WithBlockSpan(testfixtures.At(14, 0).AddDate(0, 0, 1), testfixtures.At(15, 0).AddDate(0, 0, 1)))
	moved.Title = "Late lunch"
	require.NoError(t, store.ModifyBlockInstance(ctx, "lunch", "2024-03-05", moved))

	exporter := NewExporter(store, store, recurrence.NewEngine(time.UTC), nil).WithClock(testfixtures.ReferenceTime)
	from := testfixtures.At(0, 0)
	data, err := exporter.Export(ctx, "tech-1", from, from.AddDate(0, 0, 7))
	require.NoError(t, err)

	text := string(data)
	assert.True(t, strings.HasPrefix(text, "BEGIN:VCALENDAR"))
	assert.Contains(t, text, "METHOD:PUBLISH")

	got := summaries(t, data)
	assert.Equal(t, map[string]string{
		"appt-1@appointments":     "Appointment svc-cut",
		"lunch/2024-03-04@blocks": "Lunch",
		"lunch-late@blocks":       "Late lunch",
		"lunch/2024-03-06@blocks": "Lunch",
	}, got)
}

func TestExporter_Export_OverrideMovedAcrossWindowEdge(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.New()
	require.NoError(t, testfixtures.DefaultSeed().Apply(ctx, store))

	series := testfixtures.NewBlock(
		testfixtures.WithBlockID("close"),
		testfixtures.WithBlockSpan(testfixtures.At(18, 0), testfixtures.At(19, 0)),
		testfixtures.WithRule("FREQ=DAILY;INTERVAL=1"),
	)
	series.Title = "Closing"
	require.NoError(t, store.SaveBlock(ctx, series))

	// The instance dated one day past the window is pulled back into its last evening.
	pulled := testfixtures.NewBlock(testfixtures.WithBlockID("close-early"),
		testfixtures.WithBlockSpan(testfixtures.At(22, 0).AddDate(0, 0, 1), testfixtures.At(23, 0).AddDate(0, 0, 1)))
	pulled.Title = "Early close"
	require.NoError(t, store.ModifyBlockInstance(ctx, "close", "2024-03-06", pulled))

	// The first instance in the window is pushed out past its end.
	pushed := testfixtures.NewBlock(testfixtures.WithBlockID("close-late"),
		testfixtures.WithBlockSpan(testfixtures.At(1, 0).AddDate(0, 0, 2), testfixtures.At(2, 0).AddDate(0, 0, 2)))
	pushed.Title = "Late close"
	require.NoError(t, store.ModifyBlockInstance(ctx, "close", "2024-03-05", pushed))

	exporter := NewExporter(store, store, recurrence.NewEngine(time.UTC), nil).WithClock(testfixtures.ReferenceTime)
	from := testfixtures.At(0, 0).AddDate(0, 0, 1)
	data, err := exporter.Export(ctx, "tech-1", from, from.AddDate(0, 0, 1))
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"close-early@blocks": "Early close",
	}, summaries(t, data))
}

func TestExporter_RejectsBadRange(t *testing.T) {
	t.Parallel()

	store := memory.New()
	exporter := NewExporter(store, store, nil, nil)
	from := testfixtures.At(0, 0)

	_, err := exporter.Export(context.Background(), "tech-1", from, from)
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = exporter.Export(context.Background(), "tech-1", from, from.AddDate(2, 0, 0))
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestICSStatus(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "TENTATIVE", icsStatus(domain.StatusPending))
	assert.Equal(t, "CONFIRMED", icsStatus(domain.StatusCompleted))
	assert.Equal(t, "CANCELLED", icsStatus(domain.StatusNoShow))
}
