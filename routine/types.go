/*
Package routine provides the recurrence and progress engine.

PURPOSE:
  This package decides, for any logical day, whether a tracked routine is
  due, missed, pending or satisfied, and derives streak and adherence
  statistics by replaying a completion log against a versioned rule history.
  It performs no I/O: persistence, transport and presentation live in the
  store, tracker and api packages.

KEY CONCEPTS IN THIS FILE (types.go):
  - RoutineID: Type-safe routine identifier
  - CompletionStatus: What the user recorded for a day (done / skipped)
  - Completion: One record in the completion log
  - DayStatus: What the evaluator concluded for a day (satisfied / missed / pending)
  - ProgressSnapshot: The immutable evaluator output handed to callers

DESIGN PRINCIPLES:
  1. Logical days: all engine logic runs on LogicalDay ordinals, never raw timestamps
  2. Replay: streaks are folded from the log, never stored as truth
  3. Versioned rules: a schedule change appends a rule, history is never rewritten
  4. Exact ratios: adherence uses decimal.Decimal so snapshots compare bit-for-bit

USAGE:
  cal, _ := routine.NewCalendar("Europe/Paris", 3*time.Hour)
  today := cal.ToLogicalDay(time.Now())

  r, _ := routine.New("rt-1", "Meditate", routine.Daily(today), time.Now())
  _ = r.RecordCompletion(today, routine.StatusDone, time.Now(), "")
  snap, _ := r.ProgressSnapshot(today.AddDays(-30), today, routine.Options{Today: today})

SEE ALSO:
  - calendar.go: Calendar normalizer (timestamp <-> logical day)
  - rule.go: Recurrence rule variants
  - evaluator.go: The progress fold
  - aggregate.go: Routine aggregate
*/
package routine

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type RoutineID string

// =============================================================================
// COMPLETION - What the user recorded for a logical day
// =============================================================================

type CompletionStatus string

const (
	StatusDone    CompletionStatus = "done"
	StatusSkipped CompletionStatus = "skipped"
)

// Valid reports whether s is a known completion status.
func (s CompletionStatus) Valid() bool {
	return s == StatusDone || s == StatusSkipped
}

// Completion is the current-state record for one logical day.
type Completion struct {
	Day    LogicalDay
	Status CompletionStatus
	At     time.Time // when the user marked it, not the logical day
	Note   string
}

func (c Completion) equal(o Completion) bool {
	return c.Day == o.Day && c.Status == o.Status && c.At.Equal(o.At) && c.Note == o.Note
}

// =============================================================================
// EVALUATION OUTPUT
// =============================================================================

type DayStatus string

const (
	// DaySatisfied: due and completed, or not due at all
	DaySatisfied DayStatus = "satisfied"
	// DayMissed: due, not completed, strictly before today
	DayMissed DayStatus = "missed"
	// DayPending: due, not completed, today or later
	DayPending DayStatus = "pending"
)

// DayProgress is the evaluator's verdict for one logical day.
type DayProgress struct {
	Day        LogicalDay
	Due        bool
	Status     DayStatus
	Completion CompletionStatus // empty when nothing was recorded
	Period     *PeriodIndex     // set for days governed by a TimesPerPeriod rule
}

// PeriodAdherence reports how much of a TimesPerPeriod quota was met.
type PeriodAdherence struct {
	Index       PeriodIndex
	Start       LogicalDay
	End         LogicalDay
	Completions int
	Quota       int
	Ratio       decimal.Decimal // completions / quota, clamped to [0, 1]
}

// ProgressSnapshot is the immutable result of folding a routine over a range.
type ProgressSnapshot struct {
	RoutineID     RoutineID
	From          LogicalDay
	To            LogicalDay
	Today         LogicalDay
	Days          []DayProgress
	CurrentStreak int
	BestStreak    int

	// Only populated when a TimesPerPeriod rule governs part of the range.
	Periods          []PeriodAdherence
	AverageAdherence *decimal.Decimal
}

// Options are the caller-supplied knobs consumed at evaluation time.
type Options struct {
	// Today is the reference day separating Missed from Pending.
	Today LogicalDay

	// SkipCountsTowardQuota makes skipped completions count toward a
	// TimesPerPeriod quota. Skips always preserve streaks.
	SkipCountsTowardQuota bool
}
