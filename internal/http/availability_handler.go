package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/appointment-engine/internal/application"
	"github.com/example/appointment-engine/internal/availability"
)

// DateLayout is the civil date format of query parameters.
const DateLayout = "2006-01-02"

type availabilityService interface {
	TechnicianSlots(ctx context.Context, query application.SlotQuery) ([]availability.Slot, error)
	CheckSlot(ctx context.Context, technicianID, serviceID string, start time.Time) (bool, error)
	DaysAvailable(ctx context.Context, query application.DaysQuery) ([]application.DayAvailability, error)
}

// AvailabilityHandler serves slot and day availability queries.
type AvailabilityHandler struct {
	service   availabilityService
	logger    *slog.Logger
	location  *time.Location
	responder responder
}

// NewAvailabilityHandler constructs the handler. Dates in queries are read in loc.
func NewAvailabilityHandler(service availabilityService, loc *time.Location, logger *slog.Logger) *AvailabilityHandler {
	if loc == nil {
		loc = time.UTC
	}
	logger = defaultLogger(logger)
	return &AvailabilityHandler{service: service, logger: logger, location: loc, responder: newResponder(logger)}
}

type slotDTO struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Available bool      `json:"available"`
}

type slotsResponse struct {
	TechnicianID string    `json:"technician_id"`
	Date         string    `json:"date"`
	Slots        []slotDTO `json:"slots"`
}

type checkResponse struct {
	Start     time.Time `json:"start"`
	Available bool      `json:"available"`
}

type dayDTO struct {
	Date         string `json:"date"`
	Available    bool   `json:"available"`
	TechnicianID string `json:"technician_id,omitempty"`
}

type daysResponse struct {
	Days []dayDTO `json:"days"`
}

// Slots lists the candidate starts of one technician on one date.
func (h *AvailabilityHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	technicianID := strings.TrimSpace(r.PathValue("id"))
	query := r.URL.Query()
	if strings.TrimSpace(query.Get("service_id")) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errServiceIDRequired)
		return
	}
	date, err := time.ParseInLocation(DateLayout, query.Get("date"), h.location)
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidDate)
		return
	}

	slots, err := h.service.TechnicianSlots(r.Context(), application.SlotQuery{
		TechnicianID: technicianID,
		ServiceID:    query.Get("service_id"),
		Date:         date,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	response := slotsResponse{TechnicianID: technicianID, Date: date.Format(DateLayout), Slots: make([]slotDTO, 0, len(slots))}
	for _, slot := range slots {
		response.Slots = append(response.Slots, slotDTO{Start: slot.Start, End: slot.End, Available: slot.Available})
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, response)
}

// Check answers whether one start time can be booked.
func (h *AvailabilityHandler) Check(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	query := r.URL.Query()
	if strings.TrimSpace(query.Get("service_id")) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errServiceIDRequired)
		return
	}
	start, err := time.Parse(time.RFC3339, query.Get("start"))
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidTimestamp)
		return
	}

	ok, err := h.service.CheckSlot(r.Context(), strings.TrimSpace(r.PathValue("id")), query.Get("service_id"), start)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, checkResponse{Start: start, Available: ok})
}

// Days reports day-level availability for an inclusive date range.
func (h *AvailabilityHandler) Days(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	query := r.URL.Query()
	from, err := time.ParseInLocation(DateLayout, query.Get("from"), h.location)
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidDate)
		return
	}
	to, err := time.ParseInLocation(DateLayout, query.Get("to"), h.location)
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidDate)
		return
	}

	days, err := h.service.DaysAvailable(r.Context(), application.DaysQuery{
		LocationID:    query.Get("location_id"),
		TechnicianIDs: splitList(query.Get("technician_ids")),
		ServiceID:     query.Get("service_id"),
		From:          from,
		To:            to,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	requestLogger(r, h.logger, "AvailabilityHandler", "Days").
		DebugContext(r.Context(), "day availability computed", "days", len(days))
	response := daysResponse{Days: make([]dayDTO, 0, len(days))}
	for _, day := range days {
		response.Days = append(response.Days, dayDTO{
			Date:         day.Date.In(h.location).Format(DateLayout),
			Available:    day.Available,
			TechnicianID: day.TechnicianID,
		})
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, response)
}

func splitList(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
