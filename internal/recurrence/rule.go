package recurrence

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Frequency is the stepping unit of a rule.
type Frequency int

const (
	// FrequencyUnspecified indicates the rule frequency is not set.
	FrequencyUnspecified Frequency = iota
	// FrequencyDaily steps by whole days.
	FrequencyDaily
	// FrequencyWeekly steps by whole weeks.
	FrequencyWeekly
)

// String renders the frequency as it appears in rule text.
func (f Frequency) String() string {
	switch f {
	case FrequencyDaily:
		return "DAILY"
	case FrequencyWeekly:
		return "WEEKLY"
	}
	return "UNSPECIFIED"
}

// BoundKind tags how a series terminates.
type BoundKind int

const (
	BoundUnbounded BoundKind = iota
	BoundUntil
	BoundCount
)

// UntilLayout is the rule text layout of UNTIL values.
const UntilLayout = "20060102"

// Rule is a parsed recurrence rule. Exactly one bound applies; Until is a civil
// date interpreted in the engine's location and Count is only meaningful for BoundCount.
type Rule struct {
	Freq     Frequency
	Interval int
	Bound    BoundKind
	Until    time.Time
	Count    int
}

// String renders the rule back to its canonical text form.
func (r Rule) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "FREQ=%s;INTERVAL=%d", r.Freq, r.Interval)
	switch r.Bound {
	case BoundUntil:
		b.WriteString(";UNTIL=" + r.Until.Format(UntilLayout))
	case BoundCount:
		b.WriteString(";COUNT=" + strconv.Itoa(r.Count))
	}
	return b.String()
}

// ErrInvalidRule is the sentinel wrapped by every RuleError.
var ErrInvalidRule = errors.New("recurrence: invalid rule")

// RuleError reports malformed rule text.
type RuleError struct {
	Rule   string
	Reason string
}

// Error implements the error interface.
func (e *RuleError) Error() string {
	return fmt.Sprintf("recurrence: invalid rule %q: %s", e.Rule, e.Reason)
}

// Unwrap allows errors.Is(err, ErrInvalidRule).
func (e *RuleError) Unwrap() error {
	return ErrInvalidRule
}

// ParseRule parses FREQ=DAILY|WEEKLY;INTERVAL=n[;UNTIL=yyyymmdd][;COUNT=n].
// Keys are case-insensitive and may appear in any order. INTERVAL defaults to 1.
func ParseRule(text string) (Rule, error) {
	fail := func(format string, args ...any) (Rule, error) {
		return Rule{}, &RuleError{Rule: text, Reason: fmt.Sprintf(format, args...)}
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return fail("rule is empty")
	}

	rule := Rule{Interval: 1}
	seen := make(map[string]bool, 4)
	for _, part := range strings.Split(strings.TrimSuffix(trimmed, ";"), ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return fail("part %q is not KEY=VALUE", part)
		}
		key = strings.ToUpper(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if seen[key] {
			return fail("duplicate %s", key)
		}
		seen[key] = true

		switch key {
		case "FREQ":
			switch strings.ToUpper(value) {
			case "DAILY":
				rule.Freq = FrequencyDaily
			case "WEEKLY":
				rule.Freq = FrequencyWeekly
			default:
				return fail("unsupported FREQ %q", value)
			}
		case "INTERVAL":
			n, err := strconv.Atoi(value)
			if err != nil || n <= 0 {
				return fail("INTERVAL must be a positive integer")
			}
			rule.Interval = n
		case "UNTIL":
			until, err := time.Parse(UntilLayout, value)
			if err != nil {
				return fail("UNTIL must be yyyymmdd")
			}
			rule.Bound = BoundUntil
			rule.Until = until
		case "COUNT":
			n, err := strconv.Atoi(value)
			if err != nil || n <= 0 {
				return fail("COUNT must be a positive integer")
			}
			rule.Bound = BoundCount
			rule.Count = n
		default:
			return fail("unsupported key %s", key)
		}
	}

	if rule.Freq == FrequencyUnspecified {
		return fail("FREQ is required")
	}
	if seen["UNTIL"] && seen["COUNT"] {
		return fail("UNTIL and COUNT are mutually exclusive")
	}
	return rule, nil
}
