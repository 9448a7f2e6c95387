package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/example/appointment-engine/internal/availability"
	"github.com/example/appointment-engine/internal/domain"
	"github.com/example/appointment-engine/internal/persistence"
)

// DefaultAvailabilityWorkers bounds concurrent date evaluations when no limit is configured.
const DefaultAvailabilityWorkers = 4

// MaxDaysRange is the widest date range DaysAvailable accepts.
const MaxDaysRange = 93

// AvailabilityDeps wires the collaborators of an AvailabilityService.
type AvailabilityDeps struct {
	Appointments AppointmentStore
	Schedules    ScheduleStore
	Blocks       BlockStore
	Calculator   *availability.Calculator
	Metrics      Metrics
	Workers      int
	Now          func() time.Time
	Logger       *slog.Logger
}

// AvailabilityService fetches a snapshot from the stores and hands it to the calculator.
type AvailabilityService struct {
	appointments AppointmentStore
	schedules    ScheduleStore
	blocks       BlockStore
	calc         *availability.Calculator
	metrics      Metrics
	workers      int
	now          func() time.Time
	logger       *slog.Logger
}

// NewAvailabilityService constructs an availability service.
func NewAvailabilityService(deps AvailabilityDeps) *AvailabilityService {
	s := &AvailabilityService{
		appointments: deps.Appointments,
		schedules:    deps.Schedules,
		blocks:       deps.Blocks,
		calc:         deps.Calculator,
		metrics:      deps.Metrics,
		workers:      deps.Workers,
		now:          deps.Now,
		logger:       defaultLogger(deps.Logger),
	}
	if s.calc == nil {
		s.calc = availability.NewCalculator(nil, 0)
	}
	if s.metrics == nil {
		s.metrics = noopMetrics{}
	}
	if s.workers <= 0 {
		s.workers = DefaultAvailabilityWorkers
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *AvailabilityService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AvailabilityService", operation, attrs...)
}

func (s *AvailabilityService) ensureConfigured() error {
	if s == nil || s.appointments == nil || s.schedules == nil || s.blocks == nil {
		return fmt.Errorf("AvailabilityService is not configured")
	}
	return nil
}

// technicianSnapshot holds the per-technician data shared by every date of a query.
type technicianSnapshot struct {
	id              string
	overrideMinutes *int
	blocks          []domain.Block
	overrides       map[string][]domain.Block
}

// TechnicianSlots lists every candidate start for the technician on the query date.
func (s *AvailabilityService) TechnicianSlots(ctx context.Context, query SlotQuery) (slots []availability.Slot, err error) {
	if err = s.ensureConfigured(); err != nil {
		return nil, err
	}
	logger := s.loggerWith(ctx, "TechnicianSlots", "technician_id", query.TechnicianID, "date", query.Date)
	started := time.Now()
	defer func() {
		s.metrics.AvailabilityObserved("slots", time.Since(started))
		if err != nil {
			logger.ErrorContext(ctx, "failed to compute slots", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	if vErr := validateSlotQuery(query.TechnicianID, query.ServiceID, query.Date); vErr.HasErrors() {
		return nil, vErr
	}

	var req availability.Request
	req, err = s.singleRequest(ctx, query.TechnicianID, query.ServiceID, query.Date)
	if err != nil {
		return nil, err
	}
	return s.calc.Slots(req)
}

// CheckSlot reports whether a booking of serviceID starting at start fits the technician's day.
func (s *AvailabilityService) CheckSlot(ctx context.Context, technicianID, serviceID string, start time.Time) (ok bool, err error) {
	if err = s.ensureConfigured(); err != nil {
		return false, err
	}
	logger := s.loggerWith(ctx, "CheckSlot", "technician_id", technicianID, "start", start)
	started := time.Now()
	defer func() {
		s.metrics.AvailabilityObserved("check", time.Since(started))
		if err != nil {
			logger.ErrorContext(ctx, "failed to check slot", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	if vErr := validateSlotQuery(technicianID, serviceID, start); vErr.HasErrors() {
		return false, vErr
	}

	var req availability.Request
	req, err = s.singleRequest(ctx, technicianID, serviceID, start)
	if err != nil {
		return false, err
	}
	return s.calc.IsAvailable(req, start)
}

// DaysAvailable reports, for each civil date in [From, To], whether any
// technician has a bookable slot. Dates are evaluated concurrently.
func (s *AvailabilityService) DaysAvailable(ctx context.Context, query DaysQuery) (days []DayAvailability, err error) {
	if err = s.ensureConfigured(); err != nil {
		return nil, err
	}
	logger := s.loggerWith(ctx, "DaysAvailable", "location_id", query.LocationID, "from", query.From, "to", query.To)
	started := time.Now()
	defer func() {
		s.metrics.AvailabilityObserved("days", time.Since(started))
		if err != nil {
			logger.ErrorContext(ctx, "failed to compute day availability", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.DebugContext(ctx, "day availability computed", "days", len(days))
	}()

	loc := s.calc.Location()
	dates, vErr := s.dateRange(query, loc)
	if vErr.HasErrors() {
		return nil, vErr
	}

	var service domain.Service
	service, err = s.fetchService(ctx, query.ServiceID)
	if err != nil {
		return nil, err
	}

	technicianIDs := query.TechnicianIDs
	if len(technicianIDs) == 0 {
		var technicians []domain.Technician
		technicians, err = s.schedules.ListTechnicians(ctx, query.LocationID)
		if err != nil {
			return nil, fmt.Errorf("list technicians: %w", err)
		}
		for _, technician := range technicians {
			technicianIDs = append(technicianIDs, technician.ID)
		}
	}

	windowStart := dates[0]
	windowEnd := dates[len(dates)-1].AddDate(0, 0, 1)
	snapshots := make([]technicianSnapshot, 0, len(technicianIDs))
	for _, technicianID := range technicianIDs {
		var snapshot technicianSnapshot
		snapshot, err = s.snapshot(ctx, technicianID, service.ID, windowStart, windowEnd)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snapshot)
	}

	plans := make([]availability.DayPlan, len(dates))
	now := s.now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, date := range dates {
		g.Go(func() error {
			plan := availability.DayPlan{Date: date, Requests: make([]availability.Request, 0, len(snapshots))}
			for _, snapshot := range snapshots {
				req, err := s.buildRequest(gctx, snapshot, service, date, now)
				if err != nil {
					return err
				}
				plan.Requests = append(plan.Requests, req)
			}
			plans[i] = plan
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return nil, err
	}

	return s.calc.Days(ctx, plans, s.workers)
}

func (s *AvailabilityService) singleRequest(ctx context.Context, technicianID, serviceID string, date time.Time) (availability.Request, error) {
	service, err := s.fetchService(ctx, serviceID)
	if err != nil {
		return availability.Request{}, err
	}
	dayStart := domain.StartOfDay(date, s.calc.Location())
	snapshot, err := s.snapshot(ctx, technicianID, service.ID, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		return availability.Request{}, err
	}
	return s.buildRequest(ctx, snapshot, service, dayStart, s.now())
}

func (s *AvailabilityService) fetchService(ctx context.Context, serviceID string) (domain.Service, error) {
	service, err := s.schedules.FetchService(ctx, serviceID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			vErr := &ValidationError{}
			vErr.add("service_id", "unknown service")
			return domain.Service{}, vErr
		}
		return domain.Service{}, fmt.Errorf("fetch service: %w", err)
	}
	return service, nil
}

// snapshot loads blocks, their overrides over [from, to) and the duration override.
func (s *AvailabilityService) snapshot(ctx context.Context, technicianID, serviceID string, from, to time.Time) (technicianSnapshot, error) {
	snapshot := technicianSnapshot{id: technicianID, overrides: make(map[string][]domain.Block)}

	override, err := s.schedules.FetchServiceOverrideDuration(ctx, technicianID, serviceID)
	if err != nil {
		return technicianSnapshot{}, fmt.Errorf("fetch service override: %w", err)
	}
	snapshot.overrideMinutes = override

	blocks, err := s.blocks.FetchActiveBlocks(ctx, technicianID)
	if err != nil {
		return technicianSnapshot{}, fmt.Errorf("fetch blocks: %w", err)
	}
	snapshot.blocks = blocks

	for _, block := range blocks {
		if !block.IsRecurring() {
			continue
		}
		// Overrides may be moved up to a day away from their series date.
		modified, err := s.blocks.FetchModifiedInstances(ctx, block.ID, from.AddDate(0, 0, -1), to.AddDate(0, 0, 1))
		if err != nil {
			return technicianSnapshot{}, fmt.Errorf("fetch modified instances of %s: %w", block.ID, err)
		}
		if len(modified) > 0 {
			snapshot.overrides[block.ID] = modified
		}
	}
	return snapshot, nil
}

func (s *AvailabilityService) buildRequest(ctx context.Context, snapshot technicianSnapshot, service domain.Service, date, now time.Time) (availability.Request, error) {
	schedule, err := s.schedules.FetchWorkingSchedule(ctx, snapshot.id, date.In(s.calc.Location()).Weekday())
	if err != nil {
		return availability.Request{}, fmt.Errorf("fetch working schedule: %w", err)
	}

	dayStart := domain.StartOfDay(date, s.calc.Location())
	buffer := time.Duration(max(service.BufferMinutes, 0)) * time.Minute
	appointments, err := s.appointments.FetchActiveAppointments(ctx, snapshot.id, dayStart.Add(-buffer), dayStart.AddDate(0, 0, 1).Add(buffer))
	if err != nil {
		return availability.Request{}, fmt.Errorf("fetch appointments: %w", err)
	}

	return availability.Request{
		TechnicianID:    snapshot.id,
		Date:            dayStart,
		Schedule:        schedule,
		DurationMinutes: service.DurationMinutes,
		BufferMinutes:   service.BufferMinutes,
		OverrideMinutes: snapshot.overrideMinutes,
		Appointments:    appointments,
		Blocks:          snapshot.blocks,
		Overrides:       snapshot.overrides,
		Now:             now,
	}, nil
}

func (s *AvailabilityService) dateRange(query DaysQuery, loc *time.Location) ([]time.Time, *ValidationError) {
	vErr := &ValidationError{}
	if strings.TrimSpace(query.ServiceID) == "" {
		vErr.add("service_id", "service_id is required")
	}
	if len(query.TechnicianIDs) == 0 && strings.TrimSpace(query.LocationID) == "" {
		vErr.add("location_id", "location_id or technician_ids is required")
	}
	if query.From.IsZero() || query.To.IsZero() {
		vErr.add("range", "from and to are required")
		return nil, vErr
	}

	from := domain.StartOfDay(query.From, loc)
	to := domain.StartOfDay(query.To, loc)
	if to.Before(from) {
		vErr.add("range", "to must not be before from")
		return nil, vErr
	}

	var dates []time.Time
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		dates = append(dates, day)
		if len(dates) > MaxDaysRange {
			vErr.add("range", fmt.Sprintf("range exceeds %d days", MaxDaysRange))
			return nil, vErr
		}
	}
	return dates, vErr
}

func validateSlotQuery(technicianID, serviceID string, date time.Time) *ValidationError {
	vErr := &ValidationError{}
	if strings.TrimSpace(technicianID) == "" {
		vErr.add("technician_id", "technician_id is required")
	}
	if strings.TrimSpace(serviceID) == "" {
		vErr.add("service_id", "service_id is required")
	}
	if date.IsZero() {
		vErr.add("date", "date is required")
	}
	return vErr
}
