package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/appointment-engine/internal/calendar"
)

// defaultCalendarSpan is exported when the request gives no range.
const defaultCalendarSpan = 30

type calendarExporter interface {
	Export(ctx context.Context, technicianID string, from, to time.Time) ([]byte, error)
}

// CalendarHandler serves technician ICS feeds.
type CalendarHandler struct {
	exporter  calendarExporter
	logger    *slog.Logger
	location  *time.Location
	now       func() time.Time
	responder responder
}

// NewCalendarHandler constructs the feed handler.
func NewCalendarHandler(exporter calendarExporter, loc *time.Location, logger *slog.Logger) *CalendarHandler {
	if loc == nil {
		loc = time.UTC
	}
	logger = defaultLogger(logger)
	return &CalendarHandler{exporter: exporter, logger: logger, location: loc, now: time.Now, responder: newResponder(logger)}
}

// Feed renders the technician's calendar. from and to are inclusive dates and
// default to today and thirty days later.
func (h *CalendarHandler) Feed(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.exporter == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	technicianID := strings.TrimSpace(r.PathValue("id"))
	if technicianID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidID)
		return
	}

	query := r.URL.Query()
	now := h.now().In(h.location)
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, h.location)
	to := from.AddDate(0, 0, defaultCalendarSpan)
	if value := query.Get("from"); value != "" {
		parsed, err := time.ParseInLocation(DateLayout, value, h.location)
		if err != nil {
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidDate)
			return
		}
		from = parsed
		to = from.AddDate(0, 0, defaultCalendarSpan)
	}
	if value := query.Get("to"); value != "" {
		parsed, err := time.ParseInLocation(DateLayout, value, h.location)
		if err != nil {
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidDate)
			return
		}
		to = parsed.AddDate(0, 0, 1)
	}

	data, err := h.exporter.Export(r.Context(), technicianID, from, to)
	if err != nil {
		if errors.Is(err, calendar.ErrInvalidRange) {
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
			return
		}
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="`+technicianID+`.ics"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		requestLogger(r, h.logger, "CalendarHandler", "Feed").ErrorContext(r.Context(), "failed to write calendar", "error", err)
	}
}
