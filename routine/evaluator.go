/*
evaluator.go - Progress fold

PURPOSE:
  Folds a rule history and a completion log over logical days into per-day
  statuses, current and best streak, and per-period adherence. This is the
  only place statistics are computed; nothing else stores a streak.

ALGORITHM:
  One forward pass from the creation day (or a checkpoint) to the end of
  the queried range, carrying (run, best, open quota window) as state:

    for each day:
      advance the active rule pointer if a newer rule takes effect
      day-granular rule:  status = classify(due, completed, day vs today)
      period rule:        accumulate into the open window, resolve the
                          window's status when it closes

  Rule changes switch due-ness on their effective day without restarting.
  A quota window is clipped to the span of the rule that owns it, so a
  schedule change never splits a completion across two rules.

STATUS:
  Satisfied: due and completed (done or skipped), or not due
  Missed:    due, not completed, strictly before today
  Pending:   due, not completed, today or later

STREAK UNITS:
  One unit per logical day under day-granular rules, one unit per quota
  window under period rules. Satisfied extends the run, Missed resets it,
  Pending leaves it alone. Units after the reference day (min(today, to))
  are reported but never counted.

SKIP POLICY:
  Skipped completions always satisfy a day. They count toward a period
  quota only when Options.SkipCountsTowardQuota is set.

COMPLEXITY:
  O(days folded). Each quota window is scanned once when it opens.
*/
package routine

import (
	"sort"

	"github.com/shopspring/decimal"
)

// MaxRangeDays bounds the queried range [From, To].
const MaxRangeDays = 100 * 366

// MaxFoldDays bounds the folded span, which starts at the creation day or
// a checkpoint. Any routine whose days lie within MinDay..MaxDay fits, so
// old creation days never make a routine unqueryable.
const MaxFoldDays = int64(MaxDay-MinDay) + 1

// checkpointStride is how often the fold offers a checkpoint.
const checkpointStride = 32

// EvalInput is an immutable snapshot of everything the fold reads.
type EvalInput struct {
	RoutineID   RoutineID
	Rules       []Rule // sorted by EffectiveFrom, non-empty
	Completions map[LogicalDay]Completion
	CreatedOn   LogicalDay
	EndOn       *LogicalDay // archive day; later days are not evaluated

	From    LogicalDay
	To      LogicalDay
	Options Options

	// Optional resume point. Ignored unless it is usable for this query.
	Checkpoint *Checkpoint
}

// Evaluate runs the progress fold. It is pure: the same input always
// yields an identical snapshot, with or without a checkpoint.
// The returned checkpoints may be handed back in later calls.
func Evaluate(in EvalInput) (ProgressSnapshot, []Checkpoint, error) {
	if in.From > in.To {
		return ProgressSnapshot{}, nil, ErrInvalidRange
	}
	if span := in.To.Sub(in.From) + 1; span > MaxRangeDays {
		return ProgressSnapshot{}, nil, &RangeTooLargeError{From: in.From, To: in.To, Days: span, Max: MaxRangeDays}
	}
	if len(in.Rules) == 0 {
		return ProgressSnapshot{}, nil, ErrEmptyHistory
	}
	if !sort.SliceIsSorted(in.Rules, func(i, j int) bool {
		return in.Rules[i].EffectiveFrom < in.Rules[j].EffectiveFrom
	}) {
		return ProgressSnapshot{}, nil, &InvalidRuleError{Kind: in.Rules[0].Kind, Reason: "rule history out of order"}
	}

	f := newFold(in)
	if f.start <= f.to {
		if span := f.to.Sub(f.start) + 1; span > MaxFoldDays {
			return ProgressSnapshot{}, nil, &RangeTooLargeError{From: f.start, To: f.to, Days: span, Max: MaxFoldDays}
		}
	}
	if err := f.run(); err != nil {
		return ProgressSnapshot{}, nil, err
	}
	return f.snapshot(), f.checkpoints, nil
}

// =============================================================================
// FOLD STATE
// =============================================================================

type openWindow struct {
	rule    Rule
	index   PeriodIndex
	window  Period
	count   int
	dayRefs []int // indices into fold.days for emitted days of this window
}

type fold struct {
	in    EvalInput
	today LogicalDay
	skip  bool

	start    LogicalDay // first folded day
	emitFrom LogicalDay // first reported day
	to       LogicalDay // last folded and reported day
	ref      LogicalDay // last day whose units count toward streaks

	streak int
	best   int

	open *openWindow

	days        []DayProgress
	periods     []PeriodAdherence
	checkpoints []Checkpoint
	lastOffered LogicalDay
	stable      *Checkpoint
}

func newFold(in EvalInput) *fold {
	f := &fold{
		in:       in,
		today:    in.Options.Today,
		skip:     in.Options.SkipCountsTowardQuota,
		start:    in.CreatedOn,
		emitFrom: maxDay(in.From, in.CreatedOn),
		to:       in.To,
	}
	if in.EndOn != nil && *in.EndOn < f.to {
		f.to = *in.EndOn
	}
	f.ref = minDay(f.today, f.to)

	if cp := in.Checkpoint; cp != nil &&
		cp.SkipCountsTowardQuota == f.skip &&
		cp.Through >= in.CreatedOn &&
		cp.Through < f.emitFrom &&
		cp.Through < f.today {
		f.start = cp.Through + 1
		f.streak = cp.Run
		f.best = cp.Best
	}
	f.lastOffered = f.start - 1
	return f
}

func (f *fold) run() error {
	rules := f.in.Rules
	ri := sort.Search(len(rules), func(i int) bool {
		return rules[i].EffectiveFrom > f.start
	}) - 1
	if ri < 0 {
		// Creation precedes the first rule; start folding where it takes effect.
		ri = 0
		f.start = maxDay(f.start, rules[0].EffectiveFrom)
	}

	for day := f.start; day <= f.to; day++ {
		for ri+1 < len(rules) && rules[ri+1].EffectiveFrom <= day {
			ri++
		}
		rule := rules[ri]

		if rule.IsPeriodic() {
			if f.open == nil {
				f.open = f.startWindow(ri, day)
			}
			if day >= f.emitFrom {
				idx := f.open.index
				f.days = append(f.days, DayProgress{
					Day:        day,
					Due:        true,
					Completion: f.completionStatus(day),
					Period:     &idx,
				})
				f.open.dayRefs = append(f.open.dayRefs, len(f.days)-1)
			}
			if day >= f.open.window.End {
				f.closeWindow()
			}
			continue
		}

		due, err := rule.IsDue(day)
		if err != nil {
			return err
		}
		completion := f.completionStatus(day)
		status := f.classify(due, completion != "", day)
		if day <= f.ref {
			f.apply(status)
		}
		if day >= f.emitFrom {
			f.days = append(f.days, DayProgress{Day: day, Due: due, Status: status, Completion: completion})
		}
		f.offerCheckpoint(day)
	}

	if f.open != nil {
		f.closeWindow()
	}
	if f.stable != nil && (len(f.checkpoints) == 0 || f.checkpoints[len(f.checkpoints)-1].Through != f.stable.Through) {
		f.checkpoints = append(f.checkpoints, *f.stable)
	}
	return nil
}

func (f *fold) classify(due, completed bool, day LogicalDay) DayStatus {
	switch {
	case !due || completed:
		return DaySatisfied
	case day < f.today:
		return DayMissed
	default:
		return DayPending
	}
}

func (f *fold) apply(status DayStatus) {
	switch status {
	case DaySatisfied:
		f.streak++
		if f.streak > f.best {
			f.best = f.streak
		}
	case DayMissed:
		f.streak = 0
	case DayPending:
		// neither extends nor breaks
	}
}

func (f *fold) completionStatus(day LogicalDay) CompletionStatus {
	if c, ok := f.in.Completions[day]; ok {
		return c.Status
	}
	return ""
}

func (f *fold) countsTowardQuota(day LogicalDay) bool {
	c, ok := f.in.Completions[day]
	if !ok {
		return false
	}
	switch c.Status {
	case StatusDone:
		return true
	case StatusSkipped:
		return f.skip
	default:
		return false
	}
}

// startWindow opens the quota window containing day for rules[ri], clipped
// to the days that rule is active and to the archive day.
func (f *fold) startWindow(ri int, day LogicalDay) *openWindow {
	rule := f.in.Rules[ri]
	idx := PeriodIndex(floorDiv(int64(day-rule.Anchor), int64(rule.PeriodDays)))
	window := rule.PeriodBounds(idx)
	limit := window.End
	if ri+1 < len(f.in.Rules) {
		limit = minDay(limit, f.in.Rules[ri+1].EffectiveFrom-1)
	}
	if f.in.EndOn != nil {
		limit = minDay(limit, *f.in.EndOn)
	}
	window = window.Clip(day, limit)

	w := &openWindow{rule: rule, index: idx, window: window}
	// Look ahead over the whole window, past f.to if need be: a window's
	// verdict depends on all of its completions.
	for d := window.Start; d <= window.End; d++ {
		if f.countsTowardQuota(d) {
			w.count++
		}
	}
	return w
}

func (f *fold) closeWindow() {
	w := f.open
	f.open = nil

	quota := w.rule.Count
	var status DayStatus
	switch {
	case w.count >= quota:
		status = DaySatisfied
	case w.window.End < f.today:
		status = DayMissed
	default:
		status = DayPending
	}

	if w.window.Start <= f.ref {
		f.apply(status)
	}
	for _, i := range w.dayRefs {
		f.days[i].Status = status
	}
	if w.window.End >= f.emitFrom && w.window.Start <= f.to {
		f.periods = append(f.periods, PeriodAdherence{
			Index:       w.index,
			Start:       w.window.Start,
			End:         w.window.End,
			Completions: w.count,
			Quota:       quota,
			Ratio:       adherenceRatio(w.count, quota),
		})
	}
	f.offerCheckpoint(w.window.End)
}

// offerCheckpoint records the fold state after day when every status up to
// day is final.
func (f *fold) offerCheckpoint(day LogicalDay) {
	if f.open != nil || day >= f.today || day > f.ref || day > f.to {
		return
	}
	cp := Checkpoint{Through: day, Run: f.streak, Best: f.best, SkipCountsTowardQuota: f.skip}
	f.stable = &cp
	if day-f.lastOffered >= checkpointStride {
		if len(f.checkpoints) == maxCheckpoints {
			f.checkpoints = append(f.checkpoints[:0], f.checkpoints[1:]...)
		}
		f.checkpoints = append(f.checkpoints, cp)
		f.lastOffered = day
	}
}

func (f *fold) snapshot() ProgressSnapshot {
	snap := ProgressSnapshot{
		RoutineID:     f.in.RoutineID,
		From:          f.in.From,
		To:            f.in.To,
		Today:         f.today,
		Days:          f.days,
		CurrentStreak: f.streak,
		BestStreak:    f.best,
		Periods:       f.periods,
	}
	if snap.Days == nil {
		snap.Days = []DayProgress{}
	}
	if len(f.periods) > 0 {
		sum := decimal.Zero
		for _, p := range f.periods {
			sum = sum.Add(p.Ratio)
		}
		avg := sum.Div(decimal.NewFromInt(int64(len(f.periods))))
		snap.AverageAdherence = &avg
	}
	return snap
}

// =============================================================================
// HELPERS
// =============================================================================

var one = decimal.NewFromInt(1)

func adherenceRatio(completions, quota int) decimal.Decimal {
	if quota <= 0 {
		return decimal.Zero
	}
	r := decimal.NewFromInt(int64(completions)).Div(decimal.NewFromInt(int64(quota)))
	if r.GreaterThan(one) {
		return one
	}
	return r
}

func minDay(a, b LogicalDay) LogicalDay {
	if a < b {
		return a
	}
	return b
}

func maxDay(a, b LogicalDay) LogicalDay {
	if a > b {
		return a
	}
	return b
}
