package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/appointment-engine/internal/domain"
	"github.com/example/appointment-engine/internal/persistence"
	"github.com/example/appointment-engine/internal/scheduler"
)

// BookingDeps wires the collaborators of a BookingService. Appointments is required.
type BookingDeps struct {
	Appointments AppointmentStore
	Schedules    ScheduleStore
	Clients      ClientDirectory
	Dispatcher   Dispatcher
	Metrics      Metrics
	IDGenerator  func() string
	Now          func() time.Time
	Logger       *slog.Logger
}

// BookingService is the only path that writes appointments. It pairs an
// in-process conflict pre-check with the store's exclusion guard and a
// version compare-and-swap on updates.
type BookingService struct {
	appointments AppointmentStore
	schedules    ScheduleStore
	clients      ClientDirectory
	dispatcher   Dispatcher
	metrics      Metrics
	idGenerator  func() string
	now          func() time.Time
	logger       *slog.Logger
}

// NewBookingService constructs a booking service from deps.
func NewBookingService(deps BookingDeps) *BookingService {
	s := &BookingService{
		appointments: deps.Appointments,
		schedules:    deps.Schedules,
		clients:      deps.Clients,
		dispatcher:   deps.Dispatcher,
		metrics:      deps.Metrics,
		idGenerator:  deps.IDGenerator,
		now:          deps.Now,
		logger:       defaultLogger(deps.Logger),
	}
	if s.dispatcher == nil {
		s.dispatcher = noopDispatcher{}
	}
	if s.metrics == nil {
		s.metrics = noopMetrics{}
	}
	if s.idGenerator == nil {
		s.idGenerator = uuid.NewString
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *BookingService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "BookingService", operation, attrs...)
}

func (s *BookingService) record(operation string, err error) {
	result := "ok"
	if err != nil {
		result = ErrorKind(err)
	}
	s.metrics.BookingOperation(operation, result)
}

// CheckConflict returns the earliest active appointment of technicianID overlapping
// [start, end), ignoring excludeID. A nil result means the interval is free.
func (s *BookingService) CheckConflict(ctx context.Context, technicianID string, start, end time.Time, excludeID string) (*ConflictInfo, error) {
	if s == nil || s.appointments == nil {
		return nil, fmt.Errorf("BookingService is not configured")
	}

	existing, err := s.appointments.FetchActiveAppointments(ctx, technicianID, start, end)
	if err != nil {
		return nil, fmt.Errorf("fetch active appointments: %w", err)
	}

	spans := make([]scheduler.Span, 0, len(existing))
	byID := make(map[string]domain.Appointment, len(existing))
	for _, appointment := range existing {
		if !appointment.Status.Blocking() {
			continue
		}
		spans = append(spans, scheduler.Span{
			ID:           appointment.ID,
			TechnicianID: appointment.TechnicianID,
			Start:        appointment.Start,
			End:          appointment.End,
		})
		byID[appointment.ID] = appointment
	}

	conflicts := scheduler.DetectConflicts(spans, scheduler.Span{ID: excludeID, TechnicianID: technicianID, Start: start, End: end})
	if len(conflicts) == 0 {
		return nil, nil
	}

	first := conflicts[0]
	return &ConflictInfo{
		AppointmentID: first.WithID,
		Start:         first.Start,
		End:           first.End,
		ClientLabel:   s.clientLabel(ctx, byID[first.WithID].ClientID),
	}, nil
}

// clientLabel never fails the conflict report; a missing label is left empty.
func (s *BookingService) clientLabel(ctx context.Context, clientID string) string {
	if s.clients == nil || clientID == "" {
		return ""
	}
	label, err := s.clients.ClientLabel(ctx, clientID)
	if err != nil {
		s.loggerWith(ctx, "ClientLabel", "client_id", clientID).
			WarnContext(ctx, "client label lookup failed", "error", err)
		return ""
	}
	return label
}

// CreateAppointment validates params, pre-checks for conflicts and inserts the appointment.
// A storage exclusion violation is reported as the same *ConflictError a pre-check produces.
func (s *BookingService) CreateAppointment(ctx context.Context, params CreateAppointmentParams) (appointment domain.Appointment, err error) {
	if s == nil || s.appointments == nil {
		err = fmt.Errorf("BookingService is not configured")
		return
	}

	logger := s.loggerWith(ctx, "CreateAppointment",
		"technician_id", params.TechnicianID,
		"start", params.Start,
	)
	defer func() {
		s.record("create", err)
		if err != nil {
			logger.ErrorContext(ctx, "failed to create appointment", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("appointment_id", appointment.ID, "version", appointment.Version).InfoContext(ctx, "appointment created")
	}()

	if params.End.IsZero() && params.ServiceID != "" {
		if params.End, err = s.defaultEnd(ctx, params); err != nil {
			return
		}
	}
	if vErr := validateCreate(params); vErr.HasErrors() {
		err = vErr
		return
	}

	status := params.Status
	if status == "" {
		status = domain.StatusPending
	}
	now := s.now()
	candidate := domain.Appointment{
		ID:           s.idGenerator(),
		TechnicianID: params.TechnicianID,
		LocationID:   params.LocationID,
		ServiceID:    params.ServiceID,
		ClientID:     params.ClientID,
		Start:        params.Start,
		End:          params.End,
		Status:       status,
		Notes:        strings.TrimSpace(params.Notes),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	var conflict *ConflictInfo
	conflict, err = s.CheckConflict(ctx, candidate.TechnicianID, candidate.Start, candidate.End, "")
	if err != nil {
		return
	}
	if conflict != nil {
		err = &ConflictError{ConflictInfo: *conflict}
		return
	}

	var persisted domain.Appointment
	persisted, err = s.appointments.InsertAppointment(ctx, candidate)
	if err != nil {
		err = s.mapWriteError(ctx, err, candidate)
		return
	}

	appointment = persisted.WithEffectiveStatus(s.now())
	s.dispatcher.AppointmentCreated(ctx, persisted)
	return
}

func (s *BookingService) defaultEnd(ctx context.Context, params CreateAppointmentParams) (time.Time, error) {
	if s.schedules == nil {
		return time.Time{}, nil
	}
	service, err := s.schedules.FetchService(ctx, params.ServiceID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			vErr := &ValidationError{}
			vErr.add("service_id", "unknown service")
			return time.Time{}, vErr
		}
		return time.Time{}, fmt.Errorf("fetch service: %w", err)
	}
	minutes := service.DurationMinutes
	override, err := s.schedules.FetchServiceOverrideDuration(ctx, params.TechnicianID, params.ServiceID)
	if err != nil {
		return time.Time{}, fmt.Errorf("fetch service override: %w", err)
	}
	if override != nil && *override > 0 {
		minutes = *override
	}
	return params.Start.Add(time.Duration(minutes) * time.Minute), nil
}

// UpdateAppointment applies a partial change guarded by the caller's expected version.
func (s *BookingService) UpdateAppointment(ctx context.Context, params UpdateAppointmentParams) (appointment domain.Appointment, err error) {
	if s == nil || s.appointments == nil {
		err = fmt.Errorf("BookingService is not configured")
		return
	}

	logger := s.loggerWith(ctx, "UpdateAppointment", "appointment_id", params.ID)
	defer func() {
		s.record(operationName(params), err)
		if err != nil {
			logger.ErrorContext(ctx, "failed to update appointment", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("version", appointment.Version, "status", appointment.Status).InfoContext(ctx, "appointment updated")
	}()

	if strings.TrimSpace(params.ID) == "" {
		vErr := &ValidationError{}
		vErr.add("id", "id is required")
		err = vErr
		return
	}

	var current domain.Appointment
	current, err = s.appointments.GetAppointment(ctx, params.ID)
	if err != nil {
		err = mapStoreError(err)
		return
	}

	now := s.now()
	if params.ExpectedVersion != nil && *params.ExpectedVersion != current.Version {
		err = &StaleError{Current: current.WithEffectiveStatus(now)}
		return
	}

	next, err := s.applyChanges(current, params, now)
	if err != nil {
		return
	}

	moved := next.TechnicianID != current.TechnicianID || !next.Start.Equal(current.Start) || !next.End.Equal(current.End)
	revived := !current.Status.Blocking() && next.Status.Blocking()
	if (moved || revived) && next.Status.Blocking() {
		var conflict *ConflictInfo
		conflict, err = s.CheckConflict(ctx, next.TechnicianID, next.Start, next.End, next.ID)
		if err != nil {
			return
		}
		if conflict != nil {
			err = &ConflictError{ConflictInfo: *conflict}
			return
		}
	}

	var persisted domain.Appointment
	persisted, err = s.appointments.UpdateAppointment(ctx, next, current.Version)
	if err != nil {
		err = s.mapWriteError(ctx, err, next)
		return
	}

	appointment = persisted.WithEffectiveStatus(s.now())
	s.dispatchUpdate(ctx, current, persisted, moved)
	return
}

// CancelAppointment moves the appointment to CANCELLED through the update path.
func (s *BookingService) CancelAppointment(ctx context.Context, id string, expectedVersion *int64) (domain.Appointment, error) {
	cancelled := domain.StatusCancelled
	return s.UpdateAppointment(ctx, UpdateAppointmentParams{
		ID:              id,
		ExpectedVersion: expectedVersion,
		Status:          &cancelled,
	})
}

// GetAppointment returns the appointment with COMPLETED derived from the clock.
func (s *BookingService) GetAppointment(ctx context.Context, id string) (domain.Appointment, error) {
	if s == nil || s.appointments == nil {
		return domain.Appointment{}, fmt.Errorf("BookingService is not configured")
	}
	appointment, err := s.appointments.GetAppointment(ctx, id)
	if err != nil {
		return domain.Appointment{}, mapStoreError(err)
	}
	return appointment.WithEffectiveStatus(s.now()), nil
}

func (s *BookingService) applyChanges(current domain.Appointment, params UpdateAppointmentParams, now time.Time) (domain.Appointment, error) {
	effective := current.EffectiveStatus(now)
	requested := effective
	if params.Status != nil {
		requested = *params.Status
	}

	if effective.Terminal() && !params.AdminCorrection {
		return domain.Appointment{}, &InvalidStateError{ID: current.ID, Status: effective, Requested: requested}
	}
	if params.Status != nil {
		if !requested.Valid() || requested == domain.StatusCompleted {
			return domain.Appointment{}, &InvalidStateError{ID: current.ID, Status: effective, Requested: requested}
		}
		if !params.AdminCorrection && !current.Status.CanTransition(requested) {
			return domain.Appointment{}, &InvalidStateError{ID: current.ID, Status: current.Status, Requested: requested}
		}
	}

	next := current
	if params.TechnicianID != nil {
		next.TechnicianID = strings.TrimSpace(*params.TechnicianID)
	}
	if params.Start != nil {
		next.Start = *params.Start
	}
	if params.End != nil {
		next.End = *params.End
	}
	if params.Status != nil {
		next.Status = requested
	}
	if params.Notes != nil {
		next.Notes = strings.TrimSpace(*params.Notes)
	}
	next.UpdatedAt = now

	vErr := &ValidationError{}
	validateSpan(next.TechnicianID, next.Start, next.End, vErr)
	if vErr.HasErrors() {
		return domain.Appointment{}, vErr
	}
	return next, nil
}

// mapWriteError turns store guard failures into the service's typed errors.
func (s *BookingService) mapWriteError(ctx context.Context, err error, attempted domain.Appointment) error {
	switch {
	case errors.Is(err, persistence.ErrExclusionViolation):
		conflict, checkErr := s.CheckConflict(ctx, attempted.TechnicianID, attempted.Start, attempted.End, attempted.ID)
		if checkErr != nil || conflict == nil {
			return &ConflictError{}
		}
		return &ConflictError{ConflictInfo: *conflict}
	case errors.Is(err, persistence.ErrVersionMismatch):
		latest, getErr := s.appointments.GetAppointment(ctx, attempted.ID)
		if getErr != nil {
			return mapStoreError(getErr)
		}
		return &StaleError{Current: latest.WithEffectiveStatus(s.now())}
	case errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrConstraintViolation):
		vErr := &ValidationError{}
		vErr.add("appointment", err.Error())
		return vErr
	}
	return fmt.Errorf("write appointment: %w", err)
}

func (s *BookingService) dispatchUpdate(ctx context.Context, previous, current domain.Appointment, moved bool) {
	if moved && current.Status.Blocking() {
		s.dispatcher.AppointmentMoved(ctx, previous, current)
	}
	if previous.Status == current.Status {
		return
	}
	switch current.Status {
	case domain.StatusCancelled:
		s.dispatcher.AppointmentCancelled(ctx, current)
		s.dispatcher.BillingOutcome(ctx, current, domain.BillingRefund)
	case domain.StatusNoShow:
		s.dispatcher.BillingOutcome(ctx, current, domain.BillingCharge)
	}
}

func operationName(params UpdateAppointmentParams) string {
	if params.Status != nil && *params.Status == domain.StatusCancelled {
		return "cancel"
	}
	return "update"
}

func validateCreate(params CreateAppointmentParams) *ValidationError {
	vErr := &ValidationError{}
	validateSpan(params.TechnicianID, params.Start, params.End, vErr)
	if strings.TrimSpace(params.ServiceID) == "" {
		vErr.add("service_id", "service_id is required")
	}
	if params.Status != "" && params.Status != domain.StatusPending && params.Status != domain.StatusConfirmed {
		vErr.add("status", "new appointments must be PENDING or CONFIRMED")
	}
	return vErr
}

func validateSpan(technicianID string, start, end time.Time, vErr *ValidationError) {
	if strings.TrimSpace(technicianID) == "" {
		vErr.add("technician_id", "technician_id is required")
	}
	if start.IsZero() {
		vErr.add("start", "start is required")
	}
	if end.IsZero() {
		vErr.add("end", "end is required")
	} else if !end.After(start) {
		vErr.add("end", "end must be after start")
	}
}
