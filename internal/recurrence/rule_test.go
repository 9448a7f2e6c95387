package recurrence

import (
	"errors"
	"testing"
	"time"
)

func TestParseRule(t *testing.T) {
	t.Parallel()

	cases := []struct {
		text string
		want Rule
	}{
		{text: "FREQ=DAILY;INTERVAL=1", want: Rule{Freq: FrequencyDaily, Interval: 1}},
		{text: "freq=weekly;interval=2;count=5", want: Rule{Freq: FrequencyWeekly, Interval: 2, Bound: BoundCount, Count: 5}},
		{text: "INTERVAL=3;FREQ=WEEKLY", want: Rule{Freq: FrequencyWeekly, Interval: 3}},
		{text: "FREQ=DAILY", want: Rule{Freq: FrequencyDaily, Interval: 1}},
		{
			text: "FREQ=DAILY;INTERVAL=1;UNTIL=20250110;",
			want: Rule{Freq: FrequencyDaily, Interval: 1, Bound: BoundUntil, Until: time.Date(2025, time.January, 10, 0, 0, 0, 0, time.UTC)},
		},
	}

	for _, tc := range cases {
		got, err := ParseRule(tc.text)
		if err != nil {
			t.Fatalf("ParseRule(%q) returned error: %v", tc.text, err)
		}
		if got.Freq != tc.want.Freq || got.Interval != tc.want.Interval || got.Bound != tc.want.Bound ||
			got.Count != tc.want.Count || !got.Until.Equal(tc.want.Until) {
			t.Fatalf("ParseRule(%q) = %+v, want %+v", tc.text, got, tc.want)
		}
	}
}

func TestParseRule_Rejects(t *testing.T) {
	t.Parallel()

	for _, text := range []string{
		"",
		"FREQ=MONTHLY;INTERVAL=1",
		"FREQ=DAILY;INTERVAL=0",
		"FREQ=DAILY;INTERVAL=x",
		"FREQ=DAILY;COUNT=-1",
		"FREQ=DAILY;UNTIL=2025-01-10",
		"FREQ=DAILY;UNTIL=20250110;COUNT=3",
		"FREQ=DAILY;FREQ=WEEKLY",
		"FREQ=DAILY;BYDAY=MO",
		"INTERVAL=2",
		"FREQ",
	} {
		_, err := ParseRule(text)
		if err == nil {
			t.Fatalf("expected ParseRule(%q) to fail", text)
		}
		var ruleErr *RuleError
		if !errors.As(err, &ruleErr) {
			t.Fatalf("expected *RuleError for %q, got %T", text, err)
		}
		if !errors.Is(err, ErrInvalidRule) {
			t.Fatalf("expected error for %q to wrap ErrInvalidRule", text)
		}
	}
}

func TestRule_StringRoundTrips(t *testing.T) {
	t.Parallel()

	for _, text := range []string{
		"FREQ=WEEKLY;INTERVAL=2;COUNT=5",
		"FREQ=DAILY;INTERVAL=1;UNTIL=20250110",
		"FREQ=DAILY;INTERVAL=4",
	} {
		rule, err := ParseRule(text)
		if err != nil {
			t.Fatalf("ParseRule(%q) returned error: %v", text, err)
		}
		if rule.String() != text {
			t.Fatalf("expected %q, got %q", text, rule.String())
		}
	}
}
