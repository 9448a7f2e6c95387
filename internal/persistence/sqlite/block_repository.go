package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/example/appointment-engine/internal/domain"
	"github.com/example/appointment-engine/internal/persistence"
)

const blockColumns = `id, technician_id, title, block_type, start_time, end_time, recurrence_rule, exceptions, parent_block_id, is_active, created_at, updated_at`

// exceptionRecord is the JSON shape of one entry in blocks.exceptions
type exceptionRecord struct {
	Date            string  `json:"date"`
	Type            string  `json:"type"`
	ModifiedBlockID *string `json:"modified_block_id,omitempty"`
}

// BlockRepository implements persistence.BlockRepository using SQLite
type BlockRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
	now    func() time.Time
}

// NewBlockRepository creates a new SQLite block repository
func NewBlockRepository(pool *ConnectionPool) *BlockRepository {
	return &BlockRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
		now:    time.Now,
	}
}

// SaveBlock inserts or replaces a block, series or override row
func (r *BlockRepository) SaveBlock(ctx context.Context, block domain.Block) error {
	if block.ID == "" {
		return persistence.ErrConstraintViolation
	}
	if err := block.Validate(); err != nil {
		return fmt.Errorf("%w: %v", persistence.ErrConstraintViolation, err)
	}
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		return r.upsertBlockTx(ctx, tx, block)
	})
}

func (r *BlockRepository) upsertBlockTx(ctx context.Context, tx *sql.Tx, block domain.Block) error {
	exceptions, err := encodeExceptions(block.Exceptions)
	if err != nil {
		return err
	}

	now := r.now().UTC()
	if block.CreatedAt.IsZero() {
		block.CreatedAt = now
	}
	block.UpdatedAt = now

	var parent sql.NullString
	if block.ParentBlockID != nil {
		parent = sql.NullString{String: *block.ParentBlockID, Valid: true}
	}
	blockType := block.Type
	if blockType == "" {
		blockType = domain.BlockOther
	}

	_, err = r.helper.ExecTx(ctx, tx, `
		INSERT INTO blocks (`+blockColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			technician_id = excluded.technician_id, title = excluded.title, block_type = excluded.block_type,
			start_time = excluded.start_time, end_time = excluded.end_time,
			recurrence_rule = excluded.recurrence_rule, exceptions = excluded.exceptions,
			parent_block_id = excluded.parent_block_id, is_active = excluded.is_active,
			updated_at = excluded.updated_at`,
		block.ID,
		block.TechnicianID,
		block.Title,
		string(blockType),
		formatTime(block.Start),
		formatTime(block.End),
		block.RecurrenceRule,
		exceptions,
		parent,
		boolToInt(block.IsActive),
		formatTime(block.CreatedAt),
		formatTime(block.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// GetBlock retrieves a block by ID
func (r *BlockRepository) GetBlock(ctx context.Context, id string) (domain.Block, error) {
	block, err := scanBlock(r.helper.QueryRow(ctx, `SELECT `+blockColumns+` FROM blocks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Block{}, persistence.ErrNotFound
	}
	return block, err
}

// FetchActiveBlocks returns the technician's active single blocks and series
func (r *BlockRepository) FetchActiveBlocks(ctx context.Context, technicianID string) ([]domain.Block, error) {
	return r.queryBlocks(ctx, `
		SELECT `+blockColumns+` FROM blocks
		WHERE technician_id = ? AND is_active = 1 AND parent_block_id IS NULL
		ORDER BY start_time, id`, technicianID)
}

// FetchModifiedInstances returns the override rows of a series overlapping [from, to)
func (r *BlockRepository) FetchModifiedInstances(ctx context.Context, seriesID string, from, to time.Time) ([]domain.Block, error) {
	return r.queryBlocks(ctx, `
		SELECT `+blockColumns+` FROM blocks
		WHERE parent_block_id = ? AND start_time < ? AND end_time > ?
		ORDER BY start_time, id`, seriesID, formatTime(to), formatTime(from))
}

// DeleteBlockInstance marks the series instance on date as deleted
func (r *BlockRepository) DeleteBlockInstance(ctx context.Context, seriesID, date string) error {
	if _, err := time.Parse(domain.ExceptionDateLayout, date); err != nil {
		return fmt.Errorf("%w: %v", persistence.ErrConstraintViolation, domain.ErrExceptionDate)
	}
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		series, err := r.seriesTx(ctx, tx, seriesID)
		if err != nil {
			return err
		}
		if err := r.dropOverridesTx(ctx, tx, series, date); err != nil {
			return err
		}
		series.Exceptions = append(withoutDate(series.Exceptions, date), domain.BlockException{
			Date: date,
			Type: domain.ExceptionDeleted,
		})
		return r.upsertBlockTx(ctx, tx, series)
	})
}

// ModifyBlockInstance stores override as the replacement for the series instance on date
func (r *BlockRepository) ModifyBlockInstance(ctx context.Context, seriesID, date string, override domain.Block) error {
	if _, err := time.Parse(domain.ExceptionDateLayout, date); err != nil {
		return fmt.Errorf("%w: %v", persistence.ErrConstraintViolation, domain.ErrExceptionDate)
	}
	if override.ID == "" {
		return persistence.ErrConstraintViolation
	}
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		series, err := r.seriesTx(ctx, tx, seriesID)
		if err != nil {
			return err
		}
		if err := r.dropOverridesTx(ctx, tx, series, date); err != nil {
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
		if err := r.upsertBlockTx(ctx, tx, override); err != nil {
			return err
		}

		overrideID := override.ID
		series.Exceptions = append(withoutDate(series.Exceptions, date), domain.BlockException{
			Date:            date,
			Type:            domain.ExceptionModified,
			ModifiedBlockID: &overrideID,
		})
		return r.upsertBlockTx(ctx, tx, series)
	})
}

func (r *BlockRepository) seriesTx(ctx context.Context, tx *sql.Tx, seriesID string) (domain.Block, error) {
	series, err := scanBlock(r.helper.QueryRowTx(ctx, tx, `SELECT `+blockColumns+` FROM blocks WHERE id = ?`, seriesID))
	if errors.Is(err, sql.ErrNoRows) {
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

// dropOverridesTx removes override rows previously recorded for date
func (r *BlockRepository) dropOverridesTx(ctx context.Context, tx *sql.Tx, series domain.Block, date string) error {
	for _, exc := range series.Exceptions {
		if exc.Date != date || exc.ModifiedBlockID == nil {
			continue
		}
		if _, err := r.helper.ExecTx(ctx, tx, `DELETE FROM blocks WHERE id = ? AND parent_block_id = ?`, *exc.ModifiedBlockID, series.ID); err != nil {
			return r.mapper.MapError(err)
		}
	}
	return nil
}

func (r *BlockRepository) queryBlocks(ctx context.Context, query string, args ...any) ([]domain.Block, error) {
	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var blocks []domain.Block
	for rows.Next() {
		block, err := scanBlock(rows)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, block)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return blocks, nil
}

func scanBlock(row rowScanner) (domain.Block, error) {
	var (
		block                                 domain.Block
		blockType, start, end, exceptionsJSON string
		created, updated                      string
		parent                                sql.NullString
		isActive                              int
	)
	if err := row.Scan(
		&block.ID,
		&block.TechnicianID,
		&block.Title,
		&blockType,
		&start,
		&end,
		&block.RecurrenceRule,
		&exceptionsJSON,
		&parent,
		&isActive,
		&created,
		&updated,
	); err != nil {
		return domain.Block{}, err
	}

	var err error
	if block.Start, err = parseTime(start); err != nil {
		return domain.Block{}, err
	}
	if block.End, err = parseTime(end); err != nil {
		return domain.Block{}, err
	}
	if block.CreatedAt, err = parseTime(created); err != nil {
		return domain.Block{}, err
	}
	if block.UpdatedAt, err = parseTime(updated); err != nil {
		return domain.Block{}, err
	}
	if block.Exceptions, err = decodeExceptions(exceptionsJSON); err != nil {
		return domain.Block{}, err
	}
	if parent.Valid {
		value := parent.String
		block.ParentBlockID = &value
	}
	block.Type = domain.BlockType(blockType)
	block.IsActive = isActive != 0
	return block, nil
}

func encodeExceptions(exceptions []domain.BlockException) (string, error) {
	records := make([]exceptionRecord, 0, len(exceptions))
	for _, exc := range exceptions {
		records = append(records, exceptionRecord{Date: exc.Date, Type: string(exc.Type), ModifiedBlockID: exc.ModifiedBlockID})
	}
	data, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("sqlite: encode exceptions: %w", err)
	}
	return string(data), nil
}

func decodeExceptions(value string) ([]domain.BlockException, error) {
	if value == "" {
		return nil, nil
	}
	var records []exceptionRecord
	if err := json.Unmarshal([]byte(value), &records); err != nil {
		return nil, fmt.Errorf("sqlite: decode exceptions: %w", err)
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
