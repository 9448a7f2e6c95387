package recurrence

import (
	"testing"
	"time"

	"github.com/example/appointment-engine/internal/domain"
)

func BenchmarkEngineExpand(b *testing.B) {
	engine := NewEngine(time.UTC)
	firstStart := time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)

	exceptions := make([]domain.BlockException, 0, 200)
	for i := 0; i < 200; i++ {
		exceptions = append(exceptions, domain.BlockException{
			Date: firstStart.AddDate(0, 0, i*3).Format(domain.ExceptionDateLayout),
			Type: domain.ExceptionDeleted,
		})
	}
	series := Series{
		ID:         "series-1",
		FirstStart: firstStart,
		FirstEnd:   firstStart.Add(90 * time.Minute),
		Rule:       Rule{Freq: FrequencyDaily, Interval: 1},
		Exceptions: exceptions,
	}
	windowStart := firstStart.AddDate(0, 1, 0)
	windowEnd := windowStart.AddDate(0, 3, 0)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		instances, err := engine.Expand(series, windowStart, windowEnd)
		if err != nil {
			b.Fatalf("unexpected error: %v", err)
		}
		if len(instances) == 0 {
			b.Fatal("expected instances to be generated")
		}
	}
}
