package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/example/appointment-engine/internal/persistence"
)

// SQLSTATE codes mapped onto persistence errors.
const (
	codeExclusionViolation  = "23P01"
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"
	codeNotNullViolation    = "23502"
	codeLockNotAvailable    = "55P03"
)

// mapError converts driver errors into persistence sentinels. Errors that are
// already sentinels pass through.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return persistence.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeExclusionViolation:
		return fmt.Errorf("%w: %s", persistence.ErrExclusionViolation, pgErr.ConstraintName)
	case codeUniqueViolation:
		return fmt.Errorf("%w: %s", persistence.ErrDuplicate, pgErr.ConstraintName)
	case codeForeignKeyViolation, codeCheckViolation, codeNotNullViolation:
		return fmt.Errorf("%w: %s", persistence.ErrConstraintViolation, pgErr.Message)
	case codeLockNotAvailable:
		return fmt.Errorf("%w: %s", persistence.ErrLocked, pgErr.Message)
	default:
		return fmt.Errorf("postgres: %s (%s): %w", pgErr.Message, pgErr.Code, err)
	}
}
