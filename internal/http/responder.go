package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/appointment-engine/internal/application"
	"github.com/example/appointment-engine/internal/domain"
	"github.com/example/appointment-engine/internal/recurrence"
)

var (
	errBadRequestBody    = errors.New("request body is not valid JSON")
	errInvalidID         = errors.New("a resource id is required")
	errInvalidDate       = errors.New("date must be formatted as YYYY-MM-DD")
	errInvalidTimestamp  = errors.New("timestamps must be RFC 3339")
	errInvalidIfMatch    = errors.New("If-Match must carry a numeric version")
	errServiceIDRequired = errors.New("service_id is required")
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	if logger == nil {
		logger = slog.Default()
	}
	return responder{logger: logger}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	message := http.StatusText(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(ctx).WarnContext(ctx, "request rejected", "status", status, "error", err)
	}

	r.writeJSON(ctx, w, status, errorResponse{ErrorCode: statusCode(status), Message: message})
}

func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		r.writeError(ctx, w, http.StatusInternalServerError, errors.New("unknown error"))
		return
	}

	var (
		conflictErr *application.ConflictError
		staleErr    *application.StaleError
		stateErr    *application.InvalidStateError
		ruleErr     *recurrence.RuleError
		vErr        *application.ValidationError
	)
	switch {
	case errors.As(err, &conflictErr):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{
			ErrorCode: "BOOKING_CONFLICT",
			Message:   "the requested time overlaps another appointment",
			Conflict:  toConflictDTO(conflictErr.ConflictInfo),
		})
	case errors.As(err, &staleErr):
		current := toAppointmentDTO(staleErr.Current)
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{
			ErrorCode: "STALE_WRITE",
			Message:   "the appointment was modified since it was read",
			Current:   &current,
		})
	case errors.Is(err, application.ErrNotFound):
		r.writeJSON(ctx, w, http.StatusNotFound, errorResponse{ErrorCode: "NOT_FOUND", Message: "the requested resource does not exist"})
	case errors.As(err, &stateErr):
		r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{ErrorCode: "INVALID_STATE", Message: stateErr.Error()})
	case errors.As(err, &ruleErr):
		r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{ErrorCode: "INVALID_RULE", Message: ruleErr.Error()})
	case errors.As(err, &vErr):
		r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{
			ErrorCode: "VALIDATION_FAILED",
			Message:   "the request has invalid fields",
			Errors:    vErr.FieldErrors,
		})
	default:
		r.loggerFor(ctx).ErrorContext(ctx, "request failed", "error", err, "error_kind", application.ErrorKind(err))
		r.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{ErrorCode: "INTERNAL", Message: "internal server error"})
	}
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

func statusCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "BAD_REQUEST"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case http.StatusUnprocessableEntity:
		return "VALIDATION_FAILED"
	default:
		return "INTERNAL"
	}
}

type errorResponse struct {
	ErrorCode string            `json:"error_code,omitempty"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors,omitempty"`
	Conflict  *conflictDTO      `json:"conflict,omitempty"`
	Current   *appointmentDTO   `json:"current,omitempty"`
}

type conflictDTO struct {
	AppointmentID string    `json:"appointment_id,omitempty"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	ClientLabel   string    `json:"client_label,omitempty"`
}

func toConflictDTO(info application.ConflictInfo) *conflictDTO {
	return &conflictDTO{
		AppointmentID: info.AppointmentID,
		Start:         info.Start,
		End:           info.End,
		ClientLabel:   info.ClientLabel,
	}
}

type appointmentDTO struct {
	ID           string        `json:"id"`
	TechnicianID string        `json:"technician_id"`
	LocationID   string        `json:"location_id,omitempty"`
	ServiceID    string        `json:"service_id"`
	ClientID     string        `json:"client_id,omitempty"`
	Start        time.Time     `json:"start"`
	End          time.Time     `json:"end"`
	Status       domain.Status `json:"status"`
	Notes        string        `json:"notes,omitempty"`
	Version      int64         `json:"version"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

func toAppointmentDTO(a domain.Appointment) appointmentDTO {
	return appointmentDTO{
		ID:           a.ID,
		TechnicianID: a.TechnicianID,
		LocationID:   a.LocationID,
		ServiceID:    a.ServiceID,
		ClientID:     a.ClientID,
		Start:        a.Start,
		End:          a.End,
		Status:       a.Status,
		Notes:        a.Notes,
		Version:      a.Version,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}
