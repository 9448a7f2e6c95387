package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/example/appointment-engine/internal/application"
	"github.com/example/appointment-engine/internal/domain"
)

type bookingService interface {
	CreateAppointment(ctx context.Context, params application.CreateAppointmentParams) (domain.Appointment, error)
	UpdateAppointment(ctx context.Context, params application.UpdateAppointmentParams) (domain.Appointment, error)
	CancelAppointment(ctx context.Context, id string, expectedVersion *int64) (domain.Appointment, error)
	GetAppointment(ctx context.Context, id string) (domain.Appointment, error)
}

// AppointmentHandler serves the booking endpoints.
type AppointmentHandler struct {
	service   bookingService
	responder responder
	logger    *slog.Logger
}

// NewAppointmentHandler constructs the booking handler.
func NewAppointmentHandler(service bookingService, logger *slog.Logger) *AppointmentHandler {
	logger = defaultLogger(logger)
	return &AppointmentHandler{service: service, responder: newResponder(logger), logger: logger}
}

type createAppointmentRequest struct {
	TechnicianID string     `json:"technician_id"`
	LocationID   string     `json:"location_id"`
	ServiceID    string     `json:"service_id"`
	ClientID     string     `json:"client_id"`
	Start        time.Time  `json:"start"`
	End          *time.Time `json:"end"`
	Status       string     `json:"status"`
	Notes        string     `json:"notes"`
}

type updateAppointmentRequest struct {
	ExpectedVersion *int64     `json:"expected_version"`
	TechnicianID    *string    `json:"technician_id"`
	Start           *time.Time `json:"start"`
	End             *time.Time `json:"end"`
	Status          *string    `json:"status"`
	Notes           *string    `json:"notes"`
	AdminCorrection bool       `json:"admin_correction"`
}

type cancelAppointmentRequest struct {
	ExpectedVersion *int64 `json:"expected_version"`
}

// Create books a new appointment.
func (h *AppointmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req createAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	params := application.CreateAppointmentParams{
		TechnicianID: req.TechnicianID,
		LocationID:   req.LocationID,
		ServiceID:    req.ServiceID,
		ClientID:     req.ClientID,
		Start:        req.Start,
		Notes:        req.Notes,
	}
	if req.End != nil {
		params.End = *req.End
	}
	if req.Status != "" {
		status, ok := domain.ParseStatus(req.Status)
		if !ok {
			h.writeUnknownStatus(r.Context(), w, req.Status)
			return
		}
		params.Status = status
	}

	appointment, err := h.service.CreateAppointment(r.Context(), params)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	requestLogger(r, h.logger, "AppointmentHandler", "Create", "appointment_id", appointment.ID).
		InfoContext(r.Context(), "appointment booked", "technician_id", appointment.TechnicianID, "start", appointment.Start)
	w.Header().Set("Location", "/appointments/"+appointment.ID)
	h.render(r.Context(), w, appointment, http.StatusCreated)
}

// Get returns one appointment.
func (h *AppointmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidID)
		return
	}

	appointment, err := h.service.GetAppointment(r.Context(), id)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.render(r.Context(), w, appointment, http.StatusOK)
}

// Update applies a partial change.
func (h *AppointmentHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidID)
		return
	}

	var req updateAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	expected, err := expectedVersion(r, req.ExpectedVersion)
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}

	params := application.UpdateAppointmentParams{
		ID:              id,
		ExpectedVersion: expected,
		TechnicianID:    req.TechnicianID,
		Start:           req.Start,
		End:             req.End,
		Notes:           req.Notes,
		AdminCorrection: req.AdminCorrection,
	}
	if req.Status != nil {
		status, ok := domain.ParseStatus(*req.Status)
		if !ok {
			h.writeUnknownStatus(r.Context(), w, *req.Status)
			return
		}
		params.Status = &status
	}

	appointment, err := h.service.UpdateAppointment(r.Context(), params)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.render(r.Context(), w, appointment, http.StatusOK)
}

// Cancel cancels an appointment. The body is optional.
func (h *AppointmentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidID)
		return
	}

	var req cancelAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	expected, err := expectedVersion(r, req.ExpectedVersion)
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}

	appointment, err := h.service.CancelAppointment(r.Context(), id, expected)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	requestLogger(r, h.logger, "AppointmentHandler", "Cancel").
		InfoContext(r.Context(), "appointment cancelled", "version", appointment.Version)
	h.render(r.Context(), w, appointment, http.StatusOK)
}

func (h *AppointmentHandler) render(ctx context.Context, w http.ResponseWriter, appointment domain.Appointment, status int) {
	w.Header().Set("ETag", strconv.Quote(strconv.FormatInt(appointment.Version, 10)))
	h.responder.writeJSON(ctx, w, status, toAppointmentDTO(appointment))
}

func (h *AppointmentHandler) writeUnknownStatus(ctx context.Context, w http.ResponseWriter, value string) {
	h.responder.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{
		ErrorCode: "VALIDATION_FAILED",
		Message:   "the request has invalid fields",
		Errors:    map[string]string{"status": "unknown status " + strconv.Quote(value)},
	})
}

// expectedVersion prefers the body field and falls back to an If-Match header.
func expectedVersion(r *http.Request, fromBody *int64) (*int64, error) {
	if fromBody != nil {
		return fromBody, nil
	}
	header := strings.TrimSpace(r.Header.Get("If-Match"))
	if header == "" {
		return nil, nil
	}
	header = strings.TrimPrefix(header, "W/")
	version, err := strconv.ParseInt(strings.Trim(header, `"`), 10, 64)
	if err != nil {
		return nil, errInvalidIfMatch
	}
	return &version, nil
}
