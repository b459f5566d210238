/*
rule.go - Recurrence rule variants

PURPOSE:
  A Rule is a pure, versioned description of when a routine is due. It is a
  closed tagged variant: Kind selects the variant and only that variant's
  payload fields are meaningful. The evaluator switches on Kind
  exhaustively; adding a kind means touching every switch in this package.

VARIANTS:
  daily:            due every logical day
  every_n_days:     due when (day - Anchor) mod Interval == 0, Interval >= 1
  weekly_on_days:   due when the weekday is in Weekdays (non-empty)
  monthly_on_day:   due on DayOfMonth, clamped to the last day of short months
  times_per_period: Count completions per window of PeriodDays starting at Anchor

GRANULARITY:
  The first four are day-granular: IsDue answers per day. times_per_period
  is period-granular: IsDue fails with ErrNotDayGranular and callers use
  PeriodFor / PeriodBounds / Quota instead.

EXAMPLE:
  rule := routine.MonthlyOnDay(31, jan1)
  due, _ := rule.IsDue(routine.DayFromDate(2025, time.April, 30)) // true, April is short
*/
package routine

import (
	"fmt"
	"strings"
	"time"
)

// RuleKind selects the recurrence variant.
type RuleKind string

const (
	RuleDaily          RuleKind = "daily"
	RuleEveryNDays     RuleKind = "every_n_days"
	RuleWeeklyOnDays   RuleKind = "weekly_on_days"
	RuleMonthlyOnDay   RuleKind = "monthly_on_day"
	RuleTimesPerPeriod RuleKind = "times_per_period"
)

// Rule is one entry of a routine's rule history.
type Rule struct {
	Kind          RuleKind
	EffectiveFrom LogicalDay

	// every_n_days: cycle length. times_per_period: unused.
	Interval int

	// every_n_days: cycle anchor. times_per_period: first window start.
	Anchor LogicalDay

	// weekly_on_days
	Weekdays WeekdaySet

	// monthly_on_day: 1..31
	DayOfMonth int

	// times_per_period
	Count      int
	PeriodDays int
}

// Constructors

func Daily(effectiveFrom LogicalDay) Rule {
	return Rule{Kind: RuleDaily, EffectiveFrom: effectiveFrom}
}

func EveryNDays(n int, anchor, effectiveFrom LogicalDay) Rule {
	return Rule{Kind: RuleEveryNDays, EffectiveFrom: effectiveFrom, Interval: n, Anchor: anchor}
}

func WeeklyOn(effectiveFrom LogicalDay, days ...time.Weekday) Rule {
	return Rule{Kind: RuleWeeklyOnDays, EffectiveFrom: effectiveFrom, Weekdays: NewWeekdaySet(days...)}
}

func MonthlyOnDay(dayOfMonth int, effectiveFrom LogicalDay) Rule {
	return Rule{Kind: RuleMonthlyOnDay, EffectiveFrom: effectiveFrom, DayOfMonth: dayOfMonth}
}

func TimesPerPeriod(count, periodDays int, anchor, effectiveFrom LogicalDay) Rule {
	return Rule{Kind: RuleTimesPerPeriod, EffectiveFrom: effectiveFrom, Count: count, PeriodDays: periodDays, Anchor: anchor}
}

// Validate checks the payload of the selected variant.
func (r Rule) Validate() error {
	if !r.EffectiveFrom.InBounds() {
		return &InvalidRuleError{Kind: r.Kind, Reason: fmt.Sprintf("effective day %d outside %s..%s", r.EffectiveFrom, MinDay, MaxDay)}
	}
	if (r.Kind == RuleEveryNDays || r.Kind == RuleTimesPerPeriod) && !r.Anchor.InBounds() {
		return &InvalidRuleError{Kind: r.Kind, Reason: fmt.Sprintf("anchor %d outside %s..%s", r.Anchor, MinDay, MaxDay)}
	}
	switch r.Kind {
	case RuleDaily:
		return nil
	case RuleEveryNDays:
		if r.Interval < 1 {
			return &InvalidRuleError{Kind: r.Kind, Reason: fmt.Sprintf("interval must be >= 1, got %d", r.Interval)}
		}
		return nil
	case RuleWeeklyOnDays:
		if r.Weekdays.Empty() {
			return &InvalidRuleError{Kind: r.Kind, Reason: "weekday set is empty"}
		}
		return nil
	case RuleMonthlyOnDay:
		if r.DayOfMonth < 1 || r.DayOfMonth > 31 {
			return &InvalidRuleError{Kind: r.Kind, Reason: fmt.Sprintf("day of month must be 1..31, got %d", r.DayOfMonth)}
		}
		return nil
	case RuleTimesPerPeriod:
		if r.Count < 1 {
			return &InvalidRuleError{Kind: r.Kind, Reason: fmt.Sprintf("count must be >= 1, got %d", r.Count)}
		}
		if r.PeriodDays < 1 {
			return &InvalidRuleError{Kind: r.Kind, Reason: fmt.Sprintf("period length must be >= 1, got %d", r.PeriodDays)}
		}
		return nil
	default:
		return &InvalidRuleError{Kind: r.Kind, Reason: "unknown kind"}
	}
}

// IsPeriodic reports whether due-ness is period-granular.
func (r Rule) IsPeriodic() bool {
	return r.Kind == RuleTimesPerPeriod
}

// IsDue answers whether a day-granular rule requires action on day.
func (r Rule) IsDue(day LogicalDay) (bool, error) {
	if day < r.EffectiveFrom {
		return false, &RuleNotYetEffectiveError{Day: day, EffectiveFrom: r.EffectiveFrom}
	}
	switch r.Kind {
	case RuleDaily:
		return true, nil
	case RuleEveryNDays:
		if r.Interval < 1 {
			return false, r.Validate()
		}
		return floorMod(int64(day-r.Anchor), int64(r.Interval)) == 0, nil
	case RuleWeeklyOnDays:
		return r.Weekdays.Has(day.Weekday()), nil
	case RuleMonthlyOnDay:
		target := r.DayOfMonth
		if last := day.DaysInMonth(); target > last {
			target = last
		}
		return day.DayOfMonth() == target, nil
	case RuleTimesPerPeriod:
		return false, fmt.Errorf("%w: use PeriodFor and Quota", ErrNotDayGranular)
	default:
		return false, r.Validate()
	}
}

// PeriodFor returns the quota window index containing day.
func (r Rule) PeriodFor(day LogicalDay) (PeriodIndex, error) {
	if r.Kind != RuleTimesPerPeriod {
		return 0, &InvalidRuleError{Kind: r.Kind, Reason: "not a period rule"}
	}
	if day < r.EffectiveFrom {
		return 0, &RuleNotYetEffectiveError{Day: day, EffectiveFrom: r.EffectiveFrom}
	}
	if r.PeriodDays < 1 {
		return 0, r.Validate()
	}
	return PeriodIndex(floorDiv(int64(day-r.Anchor), int64(r.PeriodDays))), nil
}

// PeriodBounds returns the full window for a period index, ignoring EffectiveFrom.
func (r Rule) PeriodBounds(idx PeriodIndex) Period {
	start := r.Anchor + LogicalDay(int64(idx)*int64(r.PeriodDays))
	return Period{Start: start, End: start + LogicalDay(r.PeriodDays-1)}
}

// Quota returns the completions required per window.
func (r Rule) Quota() int {
	if r.Kind != RuleTimesPerPeriod {
		return 0
	}
	return r.Count
}

func (r Rule) String() string {
	switch r.Kind {
	case RuleEveryNDays:
		return fmt.Sprintf("every %d days from %s", r.Interval, r.Anchor)
	case RuleWeeklyOnDays:
		return "weekly on " + r.Weekdays.String()
	case RuleMonthlyOnDay:
		return fmt.Sprintf("monthly on day %d", r.DayOfMonth)
	case RuleTimesPerPeriod:
		return fmt.Sprintf("%d times per %d days from %s", r.Count, r.PeriodDays, r.Anchor)
	default:
		return string(r.Kind)
	}
}

// =============================================================================
// WEEKDAY SET
// =============================================================================

// WeekdaySet is a bitmask of time.Weekday (bit 0 = Sunday).
type WeekdaySet uint8

func NewWeekdaySet(days ...time.Weekday) WeekdaySet {
	var s WeekdaySet
	for _, d := range days {
		s = s.With(d)
	}
	return s
}

func (s WeekdaySet) With(d time.Weekday) WeekdaySet { return s | 1<<uint(d) }
func (s WeekdaySet) Has(d time.Weekday) bool        { return s&(1<<uint(d)) != 0 }
func (s WeekdaySet) Empty() bool                    { return s&0x7f == 0 }

// Days returns the members in Sunday-first order.
func (s WeekdaySet) Days() []time.Weekday {
	var out []time.Weekday
	for d := time.Sunday; d <= time.Saturday; d++ {
		if s.Has(d) {
			out = append(out, d)
		}
	}
	return out
}

func (s WeekdaySet) String() string {
	names := make([]string, 0, 7)
	for _, d := range s.Days() {
		names = append(names, d.String()[:3])
	}
	return strings.Join(names, ",")
}

// ParseWeekday accepts full or three-letter English names, any case.
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || s == name[:3] {
			return d, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown weekday %q", ErrInvalidRule, s)
}
