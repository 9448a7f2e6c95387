package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/example/appointment-engine/internal/domain"
	"github.com/example/appointment-engine/internal/persistence"
)

func (s *Store) SaveTechnician(ctx context.Context, technician domain.Technician) error {
	if technician.ID == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO technicians (id, location_id, display_name) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET location_id = EXCLUDED.location_id, display_name = EXCLUDED.display_name`,
		technician.ID, technician.LocationID, technician.DisplayName)
	return mapError(err)
}

func (s *Store) GetTechnician(ctx context.Context, id string) (domain.Technician, error) {
	var technician domain.Technician
	err := s.pool.QueryRow(ctx, `SELECT id, location_id, display_name FROM technicians WHERE id = $1`, id).
		Scan(&technician.ID, &technician.LocationID, &technician.DisplayName)
	if err != nil {
		return domain.Technician{}, mapError(err)
	}
	return technician, nil
}

// ListTechnicians returns the technicians of a location ordered by ID.
func (s *Store) ListTechnicians(ctx context.Context, locationID string) ([]domain.Technician, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, location_id, display_name FROM technicians WHERE location_id = $1 ORDER BY id`, locationID)
	if err != nil {
		return nil, mapError(err)
	}
	technicians, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Technician, error) {
		var technician domain.Technician
		err := row.Scan(&technician.ID, &technician.LocationID, &technician.DisplayName)
		return technician, err
	})
	return technicians, mapError(err)
}

func (s *Store) SaveWorkingSchedule(ctx context.Context, schedule domain.WorkingSchedule) error {
	if _, err := domain.ParseClock(schedule.StartTime); err != nil {
		return persistence.ErrConstraintViolation
	}
	if _, err := domain.ParseClock(schedule.EndTime); err != nil {
		return persistence.ErrConstraintViolation
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO working_schedules (technician_id, day_of_week, is_working, start_time, end_time)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (technician_id, day_of_week) DO UPDATE SET
			is_working = EXCLUDED.is_working, start_time = EXCLUDED.start_time, end_time = EXCLUDED.end_time`,
		schedule.TechnicianID, int16(schedule.DayOfWeek), schedule.IsWorking, schedule.StartTime, schedule.EndTime)
	return mapError(err)
}

// FetchWorkingSchedule returns the schedule row for weekday, or nil when there is none.
func (s *Store) FetchWorkingSchedule(ctx context.Context, technicianID string, weekday time.Weekday) (*domain.WorkingSchedule, error) {
	var (
		schedule domain.WorkingSchedule
		day      int16
	)
	err := s.pool.QueryRow(ctx, `
		SELECT technician_id, day_of_week, is_working, start_time, end_time
		FROM working_schedules WHERE technician_id = $1 AND day_of_week = $2`,
		technicianID, int16(weekday)).
		Scan(&schedule.TechnicianID, &day, &schedule.IsWorking, &schedule.StartTime, &schedule.EndTime)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapError(err)
	}
	schedule.DayOfWeek = time.Weekday(day)
	return &schedule, nil
}

func (s *Store) SaveService(ctx context.Context, service domain.Service) error {
	if service.ID == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO services (id, name, duration_minutes, buffer_minutes) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, duration_minutes = EXCLUDED.duration_minutes, buffer_minutes = EXCLUDED.buffer_minutes`,
		service.ID, service.Name, service.DurationMinutes, service.BufferMinutes)
	return mapError(err)
}

func (s *Store) FetchService(ctx context.Context, id string) (domain.Service, error) {
	var service domain.Service
	err := s.pool.QueryRow(ctx, `SELECT id, name, duration_minutes, buffer_minutes FROM services WHERE id = $1`, id).
		Scan(&service.ID, &service.Name, &service.DurationMinutes, &service.BufferMinutes)
	if err != nil {
		return domain.Service{}, mapError(err)
	}
	return service, nil
}

func (s *Store) SaveServiceOverride(ctx context.Context, technicianID, serviceID string, minutes int) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO technician_service_overrides (technician_id, service_id, duration_minutes) VALUES ($1, $2, $3)
		ON CONFLICT (technician_id, service_id) DO UPDATE SET duration_minutes = EXCLUDED.duration_minutes`,
		technicianID, serviceID, minutes)
	return mapError(err)
}

// FetchServiceOverrideDuration returns nil when the technician uses the service default.
func (s *Store) FetchServiceOverrideDuration(ctx context.Context, technicianID, serviceID string) (*int, error) {
	var minutes int
	err := s.pool.QueryRow(ctx, `
		SELECT duration_minutes FROM technician_service_overrides
		WHERE technician_id = $1 AND service_id = $2`, technicianID, serviceID).Scan(&minutes)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapError(err)
	}
	return &minutes, nil
}
