package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/appointment-engine/internal/domain"
	"github.com/example/appointment-engine/internal/persistence"
)

const appointmentColumns = `id, technician_id, location_id, service_id, client_id, start_time, end_time, status, notes, version, created_at, updated_at`

// AppointmentRepository implements persistence.AppointmentRepository using SQLite
type AppointmentRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
	retry  *RetryHelper
	now    func() time.Time
}

// NewAppointmentRepository creates a new SQLite appointment repository
func NewAppointmentRepository(pool *ConnectionPool) *AppointmentRepository {
	return &AppointmentRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
		retry:  NewRetryHelper(DefaultRetryConfig()),
		now:    time.Now,
	}
}

// FetchActiveAppointments returns the technician's blocking appointments overlapping [from, to)
func (r *AppointmentRepository) FetchActiveAppointments(ctx context.Context, technicianID string, from, to time.Time) ([]domain.Appointment, error) {
	query := `SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE technician_id = ?
		  AND status NOT IN ('CANCELLED', 'NO_SHOW')
		  AND start_time < ?
		  AND end_time > ?
		ORDER BY start_time, id`

	rows, err := r.helper.Query(ctx, query, technicianID, formatTime(to), formatTime(from))
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var appointments []domain.Appointment
	for rows.Next() {
		appointment, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appointments = append(appointments, appointment)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return appointments, nil
}

// GetAppointment retrieves an appointment by ID
func (r *AppointmentRepository) GetAppointment(ctx context.Context, id string) (domain.Appointment, error) {
	row := r.helper.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = ?`, id)
	appointment, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Appointment{}, persistence.ErrNotFound
		}
		return domain.Appointment{}, err
	}
	return appointment, nil
}

// InsertAppointment stores a new appointment at version 1.
// The insert trigger rejects overlaps with persistence.ErrExclusionViolation.
func (r *AppointmentRepository) InsertAppointment(ctx context.Context, appointment domain.Appointment) (domain.Appointment, error) {
	if appointment.ID == "" {
		return domain.Appointment{}, persistence.ErrConstraintViolation
	}

	now := r.now().UTC()
	appointment.Version = 1
	appointment.CreatedAt = now
	appointment.UpdatedAt = now

	query := `
		INSERT INTO appointments (` + appointmentColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	err := r.retry.WithRetry(ctx, func() error {
		return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			_, err := r.helper.ExecTx(ctx, tx, query,
				appointment.ID,
				appointment.TechnicianID,
				appointment.LocationID,
				appointment.ServiceID,
				appointment.ClientID,
				formatTime(appointment.Start),
				formatTime(appointment.End),
				string(appointment.Status),
				appointment.Notes,
				appointment.Version,
				formatTime(appointment.CreatedAt),
				formatTime(appointment.UpdatedAt),
			)
			return err
		})
	})
	if err != nil {
		return domain.Appointment{}, r.mapper.MapError(err)
	}
	return appointment, nil
}

// UpdateAppointment performs a compare-and-swap write keyed on expectedVersion
func (r *AppointmentRepository) UpdateAppointment(ctx context.Context, appointment domain.Appointment, expectedVersion int64) (domain.Appointment, error) {
	updatedAt := r.now().UTC()
	query := `
		UPDATE appointments
		SET technician_id = ?, location_id = ?, service_id = ?, client_id = ?,
		    start_time = ?, end_time = ?, status = ?, notes = ?,
		    version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`

	var updated domain.Appointment
	err := r.retry.WithRetry(ctx, func() error {
		return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			result, err := r.helper.ExecTx(ctx, tx, query,
				appointment.TechnicianID,
				appointment.LocationID,
				appointment.ServiceID,
				appointment.ClientID,
				formatTime(appointment.Start),
				formatTime(appointment.End),
				string(appointment.Status),
				appointment.Notes,
				formatTime(updatedAt),
				appointment.ID,
				expectedVersion,
			)
			if err != nil {
				return err
			}

			affected, err := result.RowsAffected()
			if err != nil {
				return err
			}
			if affected == 0 {
				var version int64
				err := r.helper.QueryRowTx(ctx, tx, `SELECT version FROM appointments WHERE id = ?`, appointment.ID).Scan(&version)
				if errors.Is(err, sql.ErrNoRows) {
					return persistence.ErrNotFound
				}
				if err != nil {
					return err
				}
				return fmt.Errorf("%w: appointment %s is at version %d, expected %d",
					persistence.ErrVersionMismatch, appointment.ID, version, expectedVersion)
			}

			row := r.helper.QueryRowTx(ctx, tx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = ?`, appointment.ID)
			updated, err = scanAppointment(row)
			return err
		})
	})
	if err != nil {
		return domain.Appointment{}, r.mapper.MapError(err)
	}
	return updated, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAppointment(row rowScanner) (domain.Appointment, error) {
	var (
		appointment                           domain.Appointment
		start, end, status, created, updated string
	)
	if err := row.Scan(
		&appointment.ID,
		&appointment.TechnicianID,
		&appointment.LocationID,
		&appointment.ServiceID,
		&appointment.ClientID,
		&start,
		&end,
		&status,
		&appointment.Notes,
		&appointment.Version,
		&created,
		&updated,
	); err != nil {
		return domain.Appointment{}, err
	}

	var err error
	if appointment.Start, err = parseTime(start); err != nil {
		return domain.Appointment{}, err
	}
	if appointment.End, err = parseTime(end); err != nil {
		return domain.Appointment{}, err
	}
	if appointment.CreatedAt, err = parseTime(created); err != nil {
		return domain.Appointment{}, err
	}
	if appointment.UpdatedAt, err = parseTime(updated); err != nil {
		return domain.Appointment{}, err
	}
	appointment.Status = domain.Status(status)
	return appointment, nil
}
