package recurrence

import (
	"errors"
	"reflect"
	"slices"
	"testing"
	"time"

	"github.com/example/appointment-engine/internal/domain"
)

func mustRule(t *testing.T, text string) Rule {
	t.Helper()
	rule, err := ParseRule(text)
	if err != nil {
		t.Fatalf("ParseRule(%q) returned error: %v", text, err)
	}
	return rule
}

func strPtr(s string) *string { return &s }

func dates(instances []Instance) []string {
	out := make([]string, 0, len(instances))
	for _, instance := range instances {
		out = append(out, instance.Date)
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestEngine_Expand(t *testing.T) {
	t.Parallel()

	engine := NewEngine(time.UTC)
	monday := time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC)

	t.Run("count is measured over the whole series", func(t *testing.T) {
		t.Parallel()
		series := Series{ID: "s", FirstStart: monday, FirstEnd: monday.Add(time.Hour), Rule: mustRule(t, "FREQ=WEEKLY;INTERVAL=1;COUNT=5")}

		all, err := engine.Expand(series, monday.AddDate(-1, 0, 0), monday.AddDate(10, 0, 0))
		if err != nil {
			t.Fatalf("Expand returned error: %v", err)
		}
		if len(all) != 5 {
			t.Fatalf("expected exactly 5 instances, got %d", len(all))
		}

		tail, err := engine.Expand(series, monday.AddDate(0, 0, 14), monday.AddDate(10, 0, 0))
		if err != nil {
			t.Fatalf("Expand returned error: %v", err)
		}
		want := []string{"2024-03-18", "2024-03-25", "2024-04-01"}
		if !equalStrings(dates(tail), want) {
			t.Fatalf("expected %v, got %v", want, dates(tail))
		}
	})

	t.Run("count exhausted before the window yields nothing", func(t *testing.T) {
		t.Parallel()
		series := Series{ID: "s", FirstStart: monday, FirstEnd: monday.Add(time.Hour), Rule: mustRule(t, "FREQ=DAILY;INTERVAL=1;COUNT=3")}
		instances, err := engine.Expand(series, monday.AddDate(0, 1, 0), monday.AddDate(0, 2, 0))
		if err != nil {
			t.Fatalf("Expand returned error: %v", err)
		}
		if len(instances) != 0 {
			t.Fatalf("expected no instances, got %v", dates(instances))
		}
	})

	t.Run("until includes its own date", func(t *testing.T) {
		t.Parallel()
		first := time.Date(2025, time.January, 1, 18, 0, 0, 0, time.UTC)
		series := Series{ID: "s", FirstStart: first, FirstEnd: first.Add(time.Hour), Rule: mustRule(t, "FREQ=DAILY;INTERVAL=1;UNTIL=20250110")}
		instances, err := engine.Expand(series, first, first.AddDate(0, 1, 0))
		if err != nil {
			t.Fatalf("Expand returned error: %v", err)
		}
		if len(instances) != 10 {
			t.Fatalf("expected 10 instances, got %d", len(instances))
		}
		if last := instances[len(instances)-1].Date; last != "2025-01-10" {
			t.Fatalf("expected last instance on 2025-01-10, got %s", last)
		}
	})

	t.Run("interval greater than one skips periods", func(t *testing.T) {
		t.Parallel()
		series := Series{ID: "s", FirstStart: monday, FirstEnd: monday.Add(time.Hour), Rule: mustRule(t, "FREQ=WEEKLY;INTERVAL=2")}
		instances, err := engine.Expand(series, monday, monday.AddDate(0, 0, 42))
		if err != nil {
			t.Fatalf("Expand returned error: %v", err)
		}
		want := []string{"2024-03-04", "2024-03-18", "2024-04-01"}
		if !equalStrings(dates(instances), want) {
			t.Fatalf("expected %v, got %v", want, dates(instances))
		}

		daily := Series{ID: "d", FirstStart: monday, FirstEnd: monday.Add(time.Hour), Rule: mustRule(t, "FREQ=DAILY;INTERVAL=3")}
		instances, err = engine.Expand(daily, monday, monday.AddDate(0, 0, 7))
		if err != nil {
			t.Fatalf("Expand returned error: %v", err)
		}
		want = []string{"2024-03-04", "2024-03-07", "2024-03-10"}
		if !equalStrings(dates(instances), want) {
			t.Fatalf("expected %v, got %v", want, dates(instances))
		}
	})

	t.Run("weekly instances fall only on the series weekday", func(t *testing.T) {
		t.Parallel()
		series := Series{ID: "s", FirstStart: monday, FirstEnd: monday.Add(time.Hour), Rule: mustRule(t, "FREQ=WEEKLY;INTERVAL=1")}
		instances, err := engine.Expand(series, monday.AddDate(0, 0, 1), monday.AddDate(0, 0, 15))
		if err != nil {
			t.Fatalf("Expand returned error: %v", err)
		}
		for _, instance := range instances {
			if instance.Start.Weekday() != time.Monday {
				t.Fatalf("expected Monday instances only, got %s", instance.Start.Weekday())
			}
		}
		if len(instances) != 2 {
			t.Fatalf("expected 2 instances, got %d", len(instances))
		}
	})

	t.Run("window before series start is empty", func(t *testing.T) {
		t.Parallel()
		series := Series{ID: "s", FirstStart: monday, FirstEnd: monday.Add(time.Hour), Rule: mustRule(t, "FREQ=DAILY;INTERVAL=1")}
		instances, err := engine.Expand(series, monday.AddDate(0, -1, 0), monday.Add(-time.Hour))
		if err != nil {
			t.Fatalf("Expand returned error: %v", err)
		}
		if len(instances) != 0 {
			t.Fatalf("expected no instances, got %v", dates(instances))
		}
	})

	t.Run("deleted exception removes exactly one instance", func(t *testing.T) {
		t.Parallel()
		rule := mustRule(t, "FREQ=DAILY;INTERVAL=1;COUNT=7")
		plain := Series{ID: "s", FirstStart: monday, FirstEnd: monday.Add(time.Hour), Rule: rule}
		withException := plain
		withException.Exceptions = []domain.BlockException{{Date: "2024-03-06", Type: domain.ExceptionDeleted}}

		before, err := engine.Expand(plain, monday, monday.AddDate(0, 0, 30))
		if err != nil {
			t.Fatalf("Expand returned error: %v", err)
		}
		after, err := engine.Expand(withException, monday, monday.AddDate(0, 0, 30))
		if err != nil {
			t.Fatalf("Expand returned error: %v", err)
		}
		if len(after) != len(before)-1 {
			t.Fatalf("expected one fewer instance, got %d and %d", len(before), len(after))
		}
		for _, instance := range after {
			if instance.Date == "2024-03-06" {
				t.Fatalf("deleted instance still present")
			}
		}
	})

	t.Run("window overlap includes an instance already in progress", func(t *testing.T) {
		t.Parallel()
		series := Series{ID: "s", FirstStart: monday, FirstEnd: monday.Add(2 * time.Hour), Rule: mustRule(t, "FREQ=DAILY;INTERVAL=1")}
		instances, err := engine.Expand(series, monday.AddDate(0, 0, 1).Add(time.Hour), monday.AddDate(0, 0, 1).Add(90*time.Minute))
		if err != nil {
			t.Fatalf("Expand returned error: %v", err)
		}
		if len(instances) != 1 || instances[0].Date != "2024-03-05" {
			t.Fatalf("expected the in-progress instance, got %v", dates(instances))
		}
	})

	t.Run("time of day is preserved in the business zone across DST", func(t *testing.T) {
		t.Parallel()
		ny, err := time.LoadLocation("America/New_York")
		if err != nil {
			t.Skipf("timezone database unavailable: %v", err)
		}
		local := NewEngine(ny)
		first := time.Date(2024, time.March, 7, 9, 0, 0, 0, ny)
		series := Series{ID: "s", FirstStart: first, FirstEnd: first.Add(time.Hour), Rule: mustRule(t, "FREQ=DAILY;INTERVAL=1;COUNT=6")}
		instances, err := local.Expand(series, first, first.AddDate(0, 0, 10))
		if err != nil {
			t.Fatalf("Expand returned error: %v", err)
		}
		for _, instance := range instances {
			if instance.Start.Hour() != 9 {
				t.Fatalf("expected 09:00 local on %s, got %s", instance.Date, instance.Start)
			}
		}
	})

	t.Run("invalid inputs fail", func(t *testing.T) {
		t.Parallel()
		series := Series{ID: "s", FirstStart: monday, FirstEnd: monday, Rule: mustRule(t, "FREQ=DAILY;INTERVAL=1")}
		if _, err := engine.Expand(series, monday, monday.AddDate(0, 0, 1)); !errors.Is(err, ErrInvalidDuration) {
			t.Fatalf("expected ErrInvalidDuration, got %v", err)
		}
		series.FirstEnd = monday.Add(time.Hour)
		if _, err := engine.Expand(series, monday, monday); !errors.Is(err, ErrInvalidWindow) {
			t.Fatalf("expected ErrInvalidWindow, got %v", err)
		}
		series.Rule = Rule{}
		if _, err := engine.Expand(series, monday, monday.AddDate(0, 0, 1)); !errors.Is(err, ErrInvalidFrequency) {
			t.Fatalf("expected ErrInvalidFrequency, got %v", err)
		}
	})
}

func TestEngine_ExpandBlock_SplicesModifiedInstance(t *testing.T) {
	t.Parallel()

	engine := NewEngine(time.UTC)
	first := time.Date(2025, time.January, 7, 12, 0, 0, 0, time.UTC)
	overrideStart := time.Date(2025, time.January, 21, 14, 0, 0, 0, time.UTC)

	series := domain.Block{
		ID:             "lunch",
		TechnicianID:   "tech-1",
		Type:           domain.BlockPersonal,
		Start:          first,
		End:            first.Add(time.Hour),
		RecurrenceRule: "FREQ=WEEKLY;INTERVAL=1",
		Exceptions: []domain.BlockException{
			{Date: "2025-01-21", Type: domain.ExceptionModified, ModifiedBlockID: strPtr("lunch-moved")},
		},
		IsActive: true,
	}
	overrides := []domain.Block{
		{ID: "lunch-moved", TechnicianID: "tech-1", Start: overrideStart, End: overrideStart.Add(time.Hour), ParentBlockID: strPtr("lunch"), IsActive: true},
		{ID: "orphan", TechnicianID: "tech-1", Start: overrideStart.AddDate(0, 0, 7), End: overrideStart.AddDate(0, 0, 7).Add(time.Hour), ParentBlockID: strPtr("lunch"), IsActive: true},
	}

	windowStart := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	windowEnd := time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC)
	instances, err := engine.ExpandBlock(series, overrides, windowStart, windowEnd)
	if err != nil {
		t.Fatalf("ExpandBlock returned error: %v", err)
	}

	want := []struct {
		date     string
		hour     int
		override string
	}{
		{"2025-01-07", 12, ""},
		{"2025-01-14", 12, ""},
		{"2025-01-21", 14, "lunch-moved"},
		{"2025-01-28", 12, ""},
	}
	if len(instances) != len(want) {
		t.Fatalf("expected %d instances, got %d: %v", len(want), len(instances), dates(instances))
	}
	for i, w := range want {
		got := instances[i]
		if got.Date != w.date || got.Start.Hour() != w.hour || got.OverrideID != w.override {
			t.Fatalf("instance %d: expected %+v, got %+v", i, w, got)
		}
	}
}

func TestEngine_ExpandBlock_IsDeterministicAndLeavesInputsAlone(t *testing.T) {
	t.Parallel()

	engine := NewEngine(time.UTC)
	first := time.Date(2025, time.January, 6, 9, 0, 0, 0, time.UTC)
	movedA := time.Date(2025, time.January, 20, 15, 0, 0, 0, time.UTC)
	movedB := time.Date(2025, time.February, 3, 7, 0, 0, 0, time.UTC)

	exceptions := []domain.BlockException{
		{Date: "2025-02-03", Type: domain.ExceptionModified, ModifiedBlockID: strPtr("moved-b")},
		{Date: "2025-01-13", Type: domain.ExceptionDeleted},
		{Date: "2025-01-20", Type: domain.ExceptionModified, ModifiedBlockID: strPtr("moved-a")},
		{Date: "2025-01-27", Type: domain.ExceptionDeleted},
	}
	block := domain.Block{
		ID:             "standup",
		TechnicianID:   "tech-1",
		Type:           domain.BlockPersonal,
		Start:          first,
		End:            first.Add(30 * time.Minute),
		RecurrenceRule: "FREQ=WEEKLY;INTERVAL=1;COUNT=8",
		Exceptions:     exceptions,
		IsActive:       true,
	}
	overrides := []domain.Block{
		{ID: "moved-b", TechnicianID: "tech-1", Start: movedB, End: movedB.Add(30 * time.Minute), ParentBlockID: strPtr("standup"), IsActive: true},
		{ID: "moved-a", TechnicianID: "tech-1", Start: movedA, End: movedA.Add(30 * time.Minute), ParentBlockID: strPtr("standup"), IsActive: true},
	}

	exceptionsBefore := slices.Clone(exceptions)
	overridesBefore := slices.Clone(overrides)
	modifiedTargets := []*string{exceptions[0].ModifiedBlockID, exceptions[2].ModifiedBlockID}
	parentTargets := []*string{overrides[0].ParentBlockID, overrides[1].ParentBlockID}

	windowStart := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	windowEnd := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)

	firstRun, err := engine.ExpandBlock(block, overrides, windowStart, windowEnd)
	if err != nil {
		t.Fatalf("ExpandBlock returned error: %v", err)
	}
	secondRun, err := engine.ExpandBlock(block, overrides, windowStart, windowEnd)
	if err != nil {
		t.Fatalf("ExpandBlock returned error: %v", err)
	}
	if !reflect.DeepEqual(firstRun, secondRun) {
		t.Fatalf("expected identical expansions, got %v and %v", dates(firstRun), dates(secondRun))
	}

	wantDates := []string{"2025-01-06", "2025-01-20", "2025-02-03", "2025-02-10", "2025-02-17", "2025-02-24"}
	if !equalStrings(dates(firstRun), wantDates) {
		t.Fatalf("expected %v, got %v", wantDates, dates(firstRun))
	}

	series := Series{ID: block.ID, FirstStart: block.Start, FirstEnd: block.End, Rule: mustRule(t, block.RecurrenceRule), Exceptions: exceptions}
	expandedOnce, err := engine.Expand(series, windowStart, windowEnd)
	if err != nil {
		t.Fatalf("Expand returned error: %v", err)
	}
	expandedTwice, err := engine.Expand(series, windowStart, windowEnd)
	if err != nil {
		t.Fatalf("Expand returned error: %v", err)
	}
	if !reflect.DeepEqual(expandedOnce, expandedTwice) {
		t.Fatalf("expected identical expansions, got %v and %v", dates(expandedOnce), dates(expandedTwice))
	}

	if !reflect.DeepEqual(exceptions, exceptionsBefore) {
		t.Fatalf("exceptions were reordered or rewritten: %+v", exceptions)
	}
	if !reflect.DeepEqual(overrides, overridesBefore) {
		t.Fatalf("overrides were reordered or rewritten: %+v", overrides)
	}
	if exceptions[0].ModifiedBlockID != modifiedTargets[0] || exceptions[2].ModifiedBlockID != modifiedTargets[1] {
		t.Fatalf("exception override pointers were replaced")
	}
	if *modifiedTargets[0] != "moved-b" || *modifiedTargets[1] != "moved-a" {
		t.Fatalf("exception override targets changed: %q, %q", *modifiedTargets[0], *modifiedTargets[1])
	}
	if overrides[0].ParentBlockID != parentTargets[0] || overrides[1].ParentBlockID != parentTargets[1] {
		t.Fatalf("override parent pointers were replaced")
	}
	if *parentTargets[0] != "standup" || *parentTargets[1] != "standup" {
		t.Fatalf("override parent targets changed")
	}
}

func TestEngine_ExpandBlock_RejectsMalformedRule(t *testing.T) {
	t.Parallel()

	engine := NewEngine(time.UTC)
	start := time.Date(2025, time.January, 7, 12, 0, 0, 0, time.UTC)
	block := domain.Block{ID: "b", Start: start, End: start.Add(time.Hour), RecurrenceRule: "FREQ=HOURLY"}

	_, err := engine.ExpandBlock(block, nil, start, start.AddDate(0, 1, 0))
	var ruleErr *RuleError
	if !errors.As(err, &ruleErr) {
		t.Fatalf("expected *RuleError, got %v", err)
	}
}

func TestExceptionIndex_Lookup(t *testing.T) {
	t.Parallel()

	index := newExceptionIndex([]domain.BlockException{
		{Date: "2025-03-01", Type: domain.ExceptionDeleted},
		{Date: "2025-01-15", Type: domain.ExceptionModified},
		{Date: "2025-02-10", Type: domain.ExceptionDeleted},
	})

	if kind, ok := index.lookup("2025-01-15"); !ok || kind != domain.ExceptionModified {
		t.Fatalf("expected modified exception, got %q (%v)", kind, ok)
	}
	if _, ok := index.lookup("2025-01-16"); ok {
		t.Fatalf("expected no exception on 2025-01-16")
	}
}
