package domain

import (
	"errors"
	"strings"
	"time"
)

// BlockType categorizes a technician's unavailable time.
type BlockType string

const (
	BlockTimeOff  BlockType = "TIME_OFF"
	BlockPersonal BlockType = "PERSONAL"
	BlockOther    BlockType = "OTHER"
)

// ExceptionType marks how a single instance of a recurring block diverges.
type ExceptionType string

const (
	ExceptionDeleted  ExceptionType = "deleted"
	ExceptionModified ExceptionType = "modified"
)

// ExceptionDateLayout is the civil date format used for exception keys.
const ExceptionDateLayout = "2006-01-02"

// BlockException suppresses or replaces the instance falling on Date.
type BlockException struct {
	Date            string
	Type            ExceptionType
	ModifiedBlockID *string
}

// Block is a period where a technician cannot take appointments.
// A block with a RecurrenceRule is a series whose Start and End describe the first occurrence.
type Block struct {
	ID             string
	TechnicianID   string
	Title          string
	Type           BlockType
	Start          time.Time
	End            time.Time
	RecurrenceRule string
	Exceptions     []BlockException
	ParentBlockID  *string
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

var (
	// ErrBlockSpan is returned when a block does not end after it starts.
	ErrBlockSpan = errors.New("domain: block end must be after start")
	// ErrOverrideRecurrence is returned when an override block carries its own rule.
	ErrOverrideRecurrence = errors.New("domain: override block cannot recur")
	// ErrExceptionDate is returned for exceptions with an unparseable date.
	ErrExceptionDate = errors.New("domain: exception date must be yyyy-mm-dd")
)

// IsRecurring reports whether the block is a series.
func (b Block) IsRecurring() bool {
	return strings.TrimSpace(b.RecurrenceRule) != ""
}

// IsOverride reports whether the block replaces one instance of a series.
func (b Block) IsOverride() bool {
	return b.ParentBlockID != nil && *b.ParentBlockID != ""
}

// Validate checks the structural invariants of a block.
func (b Block) Validate() error {
	if !b.End.After(b.Start) {
		return ErrBlockSpan
	}
	if b.IsOverride() && b.IsRecurring() {
		return ErrOverrideRecurrence
	}
	for _, exc := range b.Exceptions {
		if _, err := time.Parse(ExceptionDateLayout, exc.Date); err != nil {
			return ErrExceptionDate
		}
	}
	return nil
}
