/*
Package factory provides JSON to Go rule conversion.

PURPOSE:
  Converts JSON rule definitions into routine.Rule values and back. The API
  accepts rules in this shape, and the key-value store persists routine
  state with it, so the wire format is defined in exactly one place.

JSON SCHEMA:
  {"kind": "daily", "effective_from": "2025-03-01"}
  {"kind": "every_n_days", "effective_from": "2025-03-01", "interval": 3, "anchor": "2025-03-01"}
  {"kind": "weekly_on_days", "effective_from": "2025-03-01", "weekdays": ["mon", "wed", "fri"]}
  {"kind": "monthly_on_day", "effective_from": "2025-03-01", "day_of_month": 31}
  {"kind": "times_per_period", "effective_from": "2025-03-01", "count": 3, "period_days": 7, "anchor": "2025-03-03"}

DEFAULTS:
  - anchor defaults to effective_from
  - effective_from may be omitted when the caller supplies it separately
    (rule changes carry it in the request body)

USAGE:
  f := factory.NewRuleFactory()
  rule, err := f.ParseRule(`{"kind": "daily", "effective_from": "2025-03-01"}`)

SEE ALSO:
  - routine/rule.go: Rule type definition
  - factory/routine.go: Routine state encoding
*/
package factory

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/warp/routine-tracker/routine"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// RuleJSON is the JSON representation of a recurrence rule.
type RuleJSON struct {
	Kind          string   `json:"kind"`
	EffectiveFrom string   `json:"effective_from,omitempty"` // YYYY-MM-DD
	Interval      int      `json:"interval,omitempty"`
	Anchor        string   `json:"anchor,omitempty"` // YYYY-MM-DD
	Weekdays      []string `json:"weekdays,omitempty"`
	DayOfMonth    int      `json:"day_of_month,omitempty"`
	Count         int      `json:"count,omitempty"`
	PeriodDays    int      `json:"period_days,omitempty"`
}

// =============================================================================
// RULE FACTORY
// =============================================================================

// RuleFactory converts JSON rules to Go structs.
type RuleFactory struct{}

func NewRuleFactory() *RuleFactory {
	return &RuleFactory{}
}

// ParseRule parses a JSON string into a validated Rule.
func (f *RuleFactory) ParseRule(jsonStr string) (routine.Rule, error) {
	var rj RuleJSON
	if err := json.Unmarshal([]byte(jsonStr), &rj); err != nil {
		return routine.Rule{}, fmt.Errorf("failed to parse rule JSON: %w", err)
	}
	return f.FromJSON(rj)
}

// FromJSON converts RuleJSON to a validated Rule. A missing effective_from
// leaves EffectiveFrom at zero for the caller to fill in.
func (f *RuleFactory) FromJSON(rj RuleJSON) (routine.Rule, error) {
	var effectiveFrom routine.LogicalDay
	if rj.EffectiveFrom != "" {
		d, err := parseDay("effective_from", rj.EffectiveFrom)
		if err != nil {
			return routine.Rule{}, err
		}
		effectiveFrom = d
	}

	anchor := effectiveFrom
	if rj.Anchor != "" {
		d, err := parseDay("anchor", rj.Anchor)
		if err != nil {
			return routine.Rule{}, err
		}
		anchor = d
	}

	var rule routine.Rule
	switch routine.RuleKind(rj.Kind) {
	case routine.RuleDaily:
		rule = routine.Daily(effectiveFrom)
	case routine.RuleEveryNDays:
		rule = routine.EveryNDays(rj.Interval, anchor, effectiveFrom)
	case routine.RuleWeeklyOnDays:
		days, err := parseWeekdays(rj.Weekdays)
		if err != nil {
			return routine.Rule{}, err
		}
		rule = routine.WeeklyOn(effectiveFrom, days...)
	case routine.RuleMonthlyOnDay:
		rule = routine.MonthlyOnDay(rj.DayOfMonth, effectiveFrom)
	case routine.RuleTimesPerPeriod:
		rule = routine.TimesPerPeriod(rj.Count, rj.PeriodDays, anchor, effectiveFrom)
	default:
		return routine.Rule{}, &routine.InvalidRuleError{Kind: routine.RuleKind(rj.Kind), Reason: "unknown kind"}
	}

	if err := rule.Validate(); err != nil {
		return routine.Rule{}, err
	}
	return rule, nil
}

// ToJSON converts a Rule to RuleJSON. Fields irrelevant to the kind are omitted.
func (f *RuleFactory) ToJSON(rule routine.Rule) RuleJSON {
	rj := RuleJSON{
		Kind:          string(rule.Kind),
		EffectiveFrom: rule.EffectiveFrom.String(),
	}

	switch rule.Kind {
	case routine.RuleEveryNDays:
		rj.Interval = rule.Interval
		rj.Anchor = rule.Anchor.String()
	case routine.RuleWeeklyOnDays:
		for _, d := range rule.Weekdays.Days() {
			rj.Weekdays = append(rj.Weekdays, strings.ToLower(d.String()[:3]))
		}
	case routine.RuleMonthlyOnDay:
		rj.DayOfMonth = rule.DayOfMonth
	case routine.RuleTimesPerPeriod:
		rj.Count = rule.Count
		rj.PeriodDays = rule.PeriodDays
		rj.Anchor = rule.Anchor.String()
	}

	return rj
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseDay(field, s string) (routine.LogicalDay, error) {
	d, err := routine.ParseDay(s)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s format %q", routine.ErrInvalidRule, field, s)
	}
	return d, nil
}

func parseWeekdays(names []string) ([]time.Weekday, error) {
	days := make([]time.Weekday, 0, len(names))
	for _, name := range names {
		d, err := routine.ParseWeekday(name)
		if err != nil {
			return nil, err
		}
		days = append(days, d)
	}
	return days, nil
}
