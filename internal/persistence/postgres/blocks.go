package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/example/appointment-engine/internal/domain"
	"github.com/example/appointment-engine/internal/persistence"
)

const blockColumns = `id, technician_id, title, block_type, start_at, end_at, recurrence_rule, exceptions, parent_block_id, is_active, created_at, updated_at`

type exceptionRecord struct {
	Date            string  `json:"date"`
	Type            string  `json:"type"`
	ModifiedBlockID *string `json:"modified_block_id,omitempty"`
}

// SaveBlock inserts or replaces a block, series or override row.
func (s *Store) SaveBlock(ctx context.Context, block domain.Block) error {
	if block.ID == "" {
		return persistence.ErrConstraintViolation
	}
	if err := block.Validate(); err != nil {
		return fmt.Errorf("%w: %v", persistence.ErrConstraintViolation, err)
	}
	return mapError(s.upsertBlock(ctx, s.pool, block))
}

func (s *Store) upsertBlock(ctx context.Context, q querier, block domain.Block) error {
	exceptions, err := encodeExceptions(block.Exceptions)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	if block.CreatedAt.IsZero() {
		block.CreatedAt = now
	}
	block.UpdatedAt = now
	blockType := block.Type
	if blockType == "" {
		blockType = domain.BlockOther
	}

	_, err = q.Exec(ctx, `
		INSERT INTO blocks (`+blockColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			technician_id = EXCLUDED.technician_id, title = EXCLUDED.title, block_type = EXCLUDED.block_type,
			start_at = EXCLUDED.start_at, end_at = EXCLUDED.end_at,
			recurrence_rule = EXCLUDED.recurrence_rule, exceptions = EXCLUDED.exceptions,
			parent_block_id = EXCLUDED.parent_block_id, is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at`,
		block.ID,
		block.TechnicianID,
		block.Title,
		string(blockType),
		block.Start.UTC(),
		block.End.UTC(),
		block.RecurrenceRule,
		exceptions,
		block.ParentBlockID,
		block.IsActive,
		block.CreatedAt,
		block.UpdatedAt,
	)
	return err
}

func (s *Store) GetBlock(ctx context.Context, id string) (domain.Block, error) {
	block, err := scanBlock(s.pool.QueryRow(ctx, `SELECT `+blockColumns+` FROM blocks WHERE id = $1`, id))
	if err != nil {
		return domain.Block{}, mapError(err)
	}
	return block, nil
}

// FetchActiveBlocks returns the technician's active single blocks and series.
func (s *Store) FetchActiveBlocks(ctx context.Context, technicianID string) ([]domain.Block, error) {
	return s.queryBlocks(ctx, `
		SELECT `+blockColumns+` FROM blocks
		WHERE technician_id = $1 AND is_active AND parent_block_id IS NULL
		ORDER BY start_at, id`, technicianID)
}

// FetchModifiedInstances returns the override rows of a series overlapping [from, to).
func (s *Store) FetchModifiedInstances(ctx context.Context, seriesID string, from, to time.Time) ([]domain.Block, error) {
	return s.queryBlocks(ctx, `
		SELECT `+blockColumns+` FROM blocks
		WHERE parent_block_id = $1 AND start_at < $2 AND end_at > $3
		ORDER BY start_at, id`, seriesID, to.UTC(), from.UTC())
}

func (s *Store) DeleteBlockInstance(ctx context.Context, seriesID, date string) error {
	if _, err := time.Parse(domain.ExceptionDateLayout, date); err != nil {
		return fmt.Errorf("%w: %v", persistence.ErrConstraintViolation, domain.ErrExceptionDate)
	}
	return s.inTx(ctx, func(tx pgx.Tx) error {
		series, err := lockSeries(ctx, tx, seriesID)
		if err != nil {
			return err
		}
		if err := dropOverrides(ctx, tx, series, date); err != nil {
			return err
		}
		series.Exceptions = append(withoutDate(series.Exceptions, date), domain.BlockException{
			Date: date,
			Type: domain.ExceptionDeleted,
		})
		return s.upsertBlock(ctx, tx, series)
	})
}

func (s *Store) ModifyBlockInstance(ctx context.Context, seriesID, date string, override domain.Block) error {
	if _, err := time.Parse(domain.ExceptionDateLayout, date); err != nil {
		return fmt.Errorf("%w: %v", persistence.ErrConstraintViolation, domain.ErrExceptionDate)
	}
	if override.ID == "" {
		return persistence.ErrConstraintViolation
	}
	return s.inTx(ctx, func(tx pgx.Tx) error {
		series, err := lockSeries(ctx, tx, seriesID)
		if err != nil {
			return err
		}
		if err := dropOverrides(ctx, tx, series, date); err != nil {
			return err
		}

		parent := series.ID
		override.ParentBlockID = &parent
		override.RecurrenceRule = ""
		override.Exceptions = nil
		if override.TechnicianID == "" {
			override.TechnicianID = series.TechnicianID
		}
		if override.Type == "" {
			override.Type = series.Type
		}
		if err := override.Validate(); err != nil {
			return fmt.Errorf("%w: %v", persistence.ErrConstraintViolation, err)
		}
		if err := s.upsertBlock(ctx, tx, override); err != nil {
			return err
		}

		overrideID := override.ID
		series.Exceptions = append(withoutDate(series.Exceptions, date), domain.BlockException{
			Date:            date,
			Type:            domain.ExceptionModified,
			ModifiedBlockID: &overrideID,
		})
		return s.upsertBlock(ctx, tx, series)
	})
}

// lockSeries reads the series row FOR UPDATE so concurrent exception edits serialize.
func lockSeries(ctx context.Context, tx pgx.Tx, seriesID string) (domain.Block, error) {
	series, err := scanBlock(tx.QueryRow(ctx, `SELECT `+blockColumns+` FROM blocks WHERE id = $1 FOR UPDATE`, seriesID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Block{}, persistence.ErrNotFound
	}
	if err != nil {
		return domain.Block{}, err
	}
	if !series.IsRecurring() {
		return domain.Block{}, fmt.Errorf("%w: block %s is not a recurring series", persistence.ErrConstraintViolation, seriesID)
	}
	return series, nil
}

func dropOverrides(ctx context.Context, tx pgx.Tx, series domain.Block, date string) error {
	for _, exc := range series.Exceptions {
		if exc.Date != date || exc.ModifiedBlockID == nil {
			continue
		}
		if _, err := tx.Exec(ctx, `DELETE FROM blocks WHERE id = $1 AND parent_block_id = $2`, *exc.ModifiedBlockID, series.ID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) queryBlocks(ctx context.Context, query string, args ...any) ([]domain.Block, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	blocks, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Block, error) {
		return scanBlock(row)
	})
	return blocks, mapError(err)
}

func scanBlock(row rowScanner) (domain.Block, error) {
	var (
		block      domain.Block
		blockType  string
		exceptions []byte
	)
	if err := row.Scan(
		&block.ID,
		&block.TechnicianID,
		&block.Title,
		&blockType,
		&block.Start,
		&block.End,
		&block.RecurrenceRule,
		&exceptions,
		&block.ParentBlockID,
		&block.IsActive,
		&block.CreatedAt,
		&block.UpdatedAt,
	); err != nil {
		return domain.Block{}, err
	}

	var err error
	if block.Exceptions, err = decodeExceptions(exceptions); err != nil {
		return domain.Block{}, err
	}
	block.Type = domain.BlockType(blockType)
	block.Start = block.Start.UTC()
	block.End = block.End.UTC()
	return block, nil
}

func encodeExceptions(exceptions []domain.BlockException) (string, error) {
	records := make([]exceptionRecord, 0, len(exceptions))
	for _, exc := range exceptions {
		records = append(records, exceptionRecord{Date: exc.Date, Type: string(exc.Type), ModifiedBlockID: exc.ModifiedBlockID})
	}
	data, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("postgres: encode exceptions: %w", err)
	}
	return string(data), nil
}

func decodeExceptions(data []byte) ([]domain.BlockException, error) {
	var records []exceptionRecord
	if len(data) > 0 {
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("postgres: decode exceptions: %w", err)
		}
	}
	if len(records) == 0 {
		return nil, nil
	}
	exceptions := make([]domain.BlockException, 0, len(records))
	for _, record := range records {
		exceptions = append(exceptions, domain.BlockException{
			Date:            record.Date,
			Type:            domain.ExceptionType(record.Type),
			ModifiedBlockID: record.ModifiedBlockID,
		})
	}
	return exceptions, nil
}

func withoutDate(exceptions []domain.BlockException, date string) []domain.BlockException {
	kept := make([]domain.BlockException, 0, len(exceptions)+1)
	for _, exc := range exceptions {
		if exc.Date != date {
			kept = append(kept, exc)
		}
	}
	return kept
}
