package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/example/appointment-engine/internal/domain"
	"github.com/example/appointment-engine/internal/persistence"
)

const appointmentColumns = `id, technician_id, location_id, service_id, client_id, start_at, end_at, status, notes, version, created_at, updated_at`

// FetchActiveAppointments returns the technician's blocking appointments overlapping [from, to).
func (s *Store) FetchActiveAppointments(ctx context.Context, technicianID string, from, to time.Time) ([]domain.Appointment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE technician_id = $1
		  AND status NOT IN ('CANCELLED', 'NO_SHOW')
		  AND start_at < $2
		  AND end_at > $3
		ORDER BY start_at, id`, technicianID, to.UTC(), from.UTC())
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var appointments []domain.Appointment
	for rows.Next() {
		appointment, err := scanAppointment(rows)
		if err != nil {
			return nil, mapError(err)
		}
		appointments = append(appointments, appointment)
	}
	return appointments, mapError(rows.Err())
}

func (s *Store) GetAppointment(ctx context.Context, id string) (domain.Appointment, error) {
	appointment, err := scanAppointment(s.pool.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id))
	if err != nil {
		return domain.Appointment{}, mapError(err)
	}
	return appointment, nil
}

// InsertAppointment stores a new appointment at version 1. The exclusion
// constraint rejects overlaps with persistence.ErrExclusionViolation.
func (s *Store) InsertAppointment(ctx context.Context, appointment domain.Appointment) (domain.Appointment, error) {
	if appointment.ID == "" {
		return domain.Appointment{}, persistence.ErrConstraintViolation
	}

	now := s.now().UTC()
	appointment.Version = 1
	appointment.CreatedAt = now
	appointment.UpdatedAt = now

	_, err := s.pool.Exec(ctx, `
		INSERT INTO appointments (`+appointmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		appointment.ID,
		appointment.TechnicianID,
		appointment.LocationID,
		appointment.ServiceID,
		appointment.ClientID,
		appointment.Start.UTC(),
		appointment.End.UTC(),
		string(appointment.Status),
		appointment.Notes,
		appointment.Version,
		appointment.CreatedAt,
		appointment.UpdatedAt,
	)
	if err != nil {
		return domain.Appointment{}, mapError(err)
	}
	return appointment, nil
}

// UpdateAppointment performs a compare-and-swap write keyed on expectedVersion.
func (s *Store) UpdateAppointment(ctx context.Context, appointment domain.Appointment, expectedVersion int64) (domain.Appointment, error) {
	var updated domain.Appointment
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			UPDATE appointments
			SET technician_id = $1, location_id = $2, service_id = $3, client_id = $4,
			    start_at = $5, end_at = $6, status = $7, notes = $8,
			    version = version + 1, updated_at = $9
			WHERE id = $10 AND version = $11
			RETURNING `+appointmentColumns,
			appointment.TechnicianID,
			appointment.LocationID,
			appointment.ServiceID,
			appointment.ClientID,
			appointment.Start.UTC(),
			appointment.End.UTC(),
			string(appointment.Status),
			appointment.Notes,
			s.now().UTC(),
			appointment.ID,
			expectedVersion,
		)
		var err error
		updated, err = scanAppointment(row)
		if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}

		var version int64
		if err := tx.QueryRow(ctx, `SELECT version FROM appointments WHERE id = $1`, appointment.ID).Scan(&version); err != nil {
			return err
		}
		return fmt.Errorf("%w: appointment %s is at version %d, expected %d",
			persistence.ErrVersionMismatch, appointment.ID, version, expectedVersion)
	})
	if err != nil {
		return domain.Appointment{}, err
	}
	return updated, nil
}

func scanAppointment(row rowScanner) (domain.Appointment, error) {
	var (
		appointment domain.Appointment
		status      string
	)
	if err := row.Scan(
		&appointment.ID,
		&appointment.TechnicianID,
		&appointment.LocationID,
		&appointment.ServiceID,
		&appointment.ClientID,
		&appointment.Start,
		&appointment.End,
		&status,
		&appointment.Notes,
		&appointment.Version,
		&appointment.CreatedAt,
		&appointment.UpdatedAt,
	); err != nil {
		return domain.Appointment{}, err
	}
	appointment.Status = domain.Status(status)
	appointment.Start = appointment.Start.UTC()
	appointment.End = appointment.End.UTC()
	return appointment, nil
}
