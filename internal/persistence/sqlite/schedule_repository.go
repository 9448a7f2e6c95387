package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/example/appointment-engine/internal/domain"
	"github.com/example/appointment-engine/internal/persistence"
)

// ScheduleRepository implements persistence.ScheduleRepository using SQLite
type ScheduleRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewScheduleRepository creates a new SQLite schedule repository
func NewScheduleRepository(pool *ConnectionPool) *ScheduleRepository {
	return &ScheduleRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// SaveTechnician inserts or replaces a technician
func (r *ScheduleRepository) SaveTechnician(ctx context.Context, technician domain.Technician) error {
	if technician.ID == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := r.helper.Exec(ctx, `
		INSERT INTO technicians (id, location_id, display_name) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET location_id = excluded.location_id, display_name = excluded.display_name`,
		technician.ID, technician.LocationID, technician.DisplayName)
	return r.mapper.MapError(err)
}

// GetTechnician retrieves a technician by ID
func (r *ScheduleRepository) GetTechnician(ctx context.Context, id string) (domain.Technician, error) {
	var technician domain.Technician
	err := r.helper.QueryRow(ctx, `SELECT id, location_id, display_name FROM technicians WHERE id = ?`, id).
		Scan(&technician.ID, &technician.LocationID, &technician.DisplayName)
	if err != nil {
		return domain.Technician{}, r.mapper.MapError(err)
	}
	return technician, nil
}

// ListTechnicians returns the technicians of a location ordered by ID
func (r *ScheduleRepository) ListTechnicians(ctx context.Context, locationID string) ([]domain.Technician, error) {
	rows, err := r.helper.Query(ctx, `SELECT id, location_id, display_name FROM technicians WHERE location_id = ? ORDER BY id`, locationID)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var technicians []domain.Technician
	for rows.Next() {
		var technician domain.Technician
		if err := rows.Scan(&technician.ID, &technician.LocationID, &technician.DisplayName); err != nil {
			return nil, r.mapper.MapError(err)
		}
		technicians = append(technicians, technician)
	}
	return technicians, r.mapper.MapError(rows.Err())
}

// SaveWorkingSchedule inserts or replaces the schedule row for one weekday
func (r *ScheduleRepository) SaveWorkingSchedule(ctx context.Context, schedule domain.WorkingSchedule) error {
	if _, err := domain.ParseClock(schedule.StartTime); err != nil {
		return persistence.ErrConstraintViolation
	}
	if _, err := domain.ParseClock(schedule.EndTime); err != nil {
		return persistence.ErrConstraintViolation
	}
	_, err := r.helper.Exec(ctx, `
		INSERT INTO working_schedules (technician_id, day_of_week, is_working, start_time, end_time)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (technician_id, day_of_week) DO UPDATE SET
			is_working = excluded.is_working, start_time = excluded.start_time, end_time = excluded.end_time`,
		schedule.TechnicianID, int(schedule.DayOfWeek), boolToInt(schedule.IsWorking), schedule.StartTime, schedule.EndTime)
	return r.mapper.MapError(err)
}

// FetchWorkingSchedule returns the schedule row for weekday, or nil when there is none
func (r *ScheduleRepository) FetchWorkingSchedule(ctx context.Context, technicianID string, weekday time.Weekday) (*domain.WorkingSchedule, error) {
	var (
		schedule  domain.WorkingSchedule
		day       int
		isWorking int
	)
	err := r.helper.QueryRow(ctx, `
		SELECT technician_id, day_of_week, is_working, start_time, end_time
		FROM working_schedules WHERE technician_id = ? AND day_of_week = ?`,
		technicianID, int(weekday)).
		Scan(&schedule.TechnicianID, &day, &isWorking, &schedule.StartTime, &schedule.EndTime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	schedule.DayOfWeek = time.Weekday(day)
	schedule.IsWorking = isWorking != 0
	return &schedule, nil
}

// SaveService inserts or replaces a service
func (r *ScheduleRepository) SaveService(ctx context.Context, service domain.Service) error {
	if service.ID == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := r.helper.Exec(ctx, `
		INSERT INTO services (id, name, duration_minutes, buffer_minutes) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name, duration_minutes = excluded.duration_minutes, buffer_minutes = excluded.buffer_minutes`,
		service.ID, service.Name, service.DurationMinutes, service.BufferMinutes)
	return r.mapper.MapError(err)
}

// FetchService retrieves a service by ID
func (r *ScheduleRepository) FetchService(ctx context.Context, id string) (domain.Service, error) {
	var service domain.Service
	err := r.helper.QueryRow(ctx, `SELECT id, name, duration_minutes, buffer_minutes FROM services WHERE id = ?`, id).
		Scan(&service.ID, &service.Name, &service.DurationMinutes, &service.BufferMinutes)
	if err != nil {
		return domain.Service{}, r.mapper.MapError(err)
	}
	return service, nil
}

// SaveServiceOverride sets the technician-specific duration for a service
func (r *ScheduleRepository) SaveServiceOverride(ctx context.Context, technicianID, serviceID string, minutes int) error {
	_, err := r.helper.Exec(ctx, `
		INSERT INTO technician_service_overrides (technician_id, service_id, duration_minutes) VALUES (?, ?, ?)
		ON CONFLICT (technician_id, service_id) DO UPDATE SET duration_minutes = excluded.duration_minutes`,
		technicianID, serviceID, minutes)
	return r.mapper.MapError(err)
}

// FetchServiceOverrideDuration returns the override in minutes, or nil when the default applies
func (r *ScheduleRepository) FetchServiceOverrideDuration(ctx context.Context, technicianID, serviceID string) (*int, error) {
	var minutes int
	err := r.helper.QueryRow(ctx, `
		SELECT duration_minutes FROM technician_service_overrides WHERE technician_id = ? AND service_id = ?`,
		technicianID, serviceID).Scan(&minutes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	return &minutes, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
