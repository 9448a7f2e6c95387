package recurrence

import (
	"cmp"
	"slices"

	"github.com/example/appointment-engine/internal/domain"
)

type exceptionEntry struct {
	date string
	kind domain.ExceptionType
}

// exceptionIndex is a date-sorted view of a series' exceptions.
type exceptionIndex []exceptionEntry

func newExceptionIndex(exceptions []domain.BlockException) exceptionIndex {
	if len(exceptions) == 0 {
		return nil
	}
	index := make(exceptionIndex, 0, len(exceptions))
	for _, exc := range exceptions {
		index = append(index, exceptionEntry{date: exc.Date, kind: exc.Type})
	}
	// yyyy-mm-dd sorts lexically in date order.
	slices.SortFunc(index, func(a, b exceptionEntry) int {
		return cmp.Compare(a.date, b.date)
	})
	return index
}

func (x exceptionIndex) lookup(date string) (domain.ExceptionType, bool) {
	i, found := slices.BinarySearchFunc(x, date, func(entry exceptionEntry, target string) int {
		return cmp.Compare(entry.date, target)
	})
	if !found {
		return "", false
	}
	return x[i].kind, true
}
