package routine_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/routine-tracker/routine"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var createdAt = time.Date(1970, time.January, 1, 8, 0, 0, 0, time.UTC)

func newRoutine(t *testing.T, initial routine.Rule) *routine.Routine {
	t.Helper()
	r, err := routine.New("r-1", "test routine", initial, createdAt)
	require.NoError(t, err)
	return r
}

func done(t *testing.T, r *routine.Routine, days ...routine.LogicalDay) {
	t.Helper()
	for _, d := range days {
		require.NoError(t, r.RecordCompletion(d, routine.StatusDone, createdAt, ""))
	}
}

func skipped(t *testing.T, r *routine.Routine, days ...routine.LogicalDay) {
	t.Helper()
	for _, d := range days {
		require.NoError(t, r.RecordCompletion(d, routine.StatusSkipped, createdAt, ""))
	}
}

func snapshot(t *testing.T, r *routine.Routine, from, to, today routine.LogicalDay) routine.ProgressSnapshot {
	t.Helper()
	snap, err := r.ProgressSnapshot(from, to, routine.Options{Today: today})
	require.NoError(t, err)
	return snap
}

// evalFresh folds a routine's state without any cached checkpoint.
func evalFresh(t *testing.T, r *routine.Routine, from, to routine.LogicalDay, opts routine.Options) routine.ProgressSnapshot {
	t.Helper()
	s := r.State()
	comps := make(map[routine.LogicalDay]routine.Completion, len(s.Completions))
	for _, c := range s.Completions {
		comps[c.Day] = c
	}
	snap, _, err := routine.Evaluate(routine.EvalInput{
		RoutineID:   s.ID,
		Rules:       s.Rules,
		Completions: comps,
		CreatedOn:   s.Rules[0].EffectiveFrom,
		EndOn:       s.ArchivedOn,
		From:        from,
		To:          to,
		Options:     opts,
	})
	require.NoError(t, err)
	return snap
}

func statuses(snap routine.ProgressSnapshot) []routine.DayStatus {
	out := make([]routine.DayStatus, len(snap.Days))
	for i, d := range snap.Days {
		out[i] = d.Status
	}
	return out
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

const (
	sat     = routine.DaySatisfied
	missed  = routine.DayMissed
	pending = routine.DayPending
)

// =============================================================================
// DAY-GRANULAR RULES
// =============================================================================

func TestProgress_DailyBackfillRepairsStreak(t *testing.T) {
	// GIVEN: Daily routine created on day 0, done on days 0, 1, 3, 4
	r := newRoutine(t, routine.Daily(0))
	done(t, r, 0, 1, 3, 4)

	// WHEN: Progress is evaluated on day 4
	snap := snapshot(t, r, 0, 4, 4)

	// THEN: The gap on day 2 breaks the streak
	assert.Equal(t, []routine.DayStatus{sat, sat, missed, sat, sat}, statuses(snap))
	assert.Equal(t, 2, snap.CurrentStreak)
	assert.Equal(t, 2, snap.BestStreak)
	assert.Equal(t, 1, r.CachedCheckpoints())

	// WHEN: Day 2 is backfilled
	done(t, r, 2)
	assert.Equal(t, 0, r.CachedCheckpoints(), "backfill invalidates checkpoints at or after the edited day")

	// THEN: The whole run counts
	snap = snapshot(t, r, 0, 4, 4)
	assert.Equal(t, 5, snap.CurrentStreak)
	assert.Equal(t, 5, snap.BestStreak)
}

func TestProgress_TodayIsPendingNotMissed(t *testing.T) {
	r := newRoutine(t, routine.Daily(0))
	done(t, r, 0, 1, 2)

	snap := snapshot(t, r, 0, 3, 3)

	assert.Equal(t, []routine.DayStatus{sat, sat, sat, pending}, statuses(snap))
	assert.Equal(t, 3, snap.CurrentStreak, "pending neither extends nor breaks")
	assert.Equal(t, 3, snap.BestStreak)
}

func TestProgress_SkipSatisfiesDay(t *testing.T) {
	r := newRoutine(t, routine.Daily(0))
	done(t, r, 0, 2)
	skipped(t, r, 1)

	snap := snapshot(t, r, 0, 2, 3)

	assert.Equal(t, []routine.DayStatus{sat, sat, sat}, statuses(snap))
	assert.Equal(t, routine.StatusSkipped, snap.Days[1].Completion)
	assert.Equal(t, 3, snap.CurrentStreak)
}

func TestProgress_EveryNDaysCountsNotDueDays(t *testing.T) {
	r := newRoutine(t, routine.EveryNDays(3, 0, 0))
	done(t, r, 0, 3)

	snap := snapshot(t, r, 0, 7, 7)

	assert.Equal(t, []routine.DayStatus{sat, sat, sat, sat, sat, sat, missed, sat}, statuses(snap))
	assert.Equal(t, []bool{true, false, false, true, false, false, true, false}, func() []bool {
		out := make([]bool, len(snap.Days))
		for i, d := range snap.Days {
			out[i] = d.Due
		}
		return out
	}())
	assert.Equal(t, 1, snap.CurrentStreak)
	assert.Equal(t, 6, snap.BestStreak)
}

func TestProgress_DaysBeforeCreationAreOmitted(t *testing.T) {
	r := newRoutine(t, routine.Daily(10))

	snap := snapshot(t, r, 0, 12, 12)

	require.Len(t, snap.Days, 3)
	assert.Equal(t, routine.LogicalDay(10), snap.Days[0].Day)
	assert.Equal(t, routine.LogicalDay(0), snap.From)
}

func TestProgress_FutureDaysReportedButNotCounted(t *testing.T) {
	r := newRoutine(t, routine.Daily(0))
	done(t, r, 0, 1, 2, 3, 4, 5)

	snap := snapshot(t, r, 0, 5, 2)

	assert.Equal(t, 3, snap.CurrentStreak, "days after today never count")
	assert.Len(t, snap.Days, 6)
	assert.Equal(t, sat, snap.Days[5].Status)
}

func TestProgress_QueryEndingBeforeTodayStopsStreakAtTo(t *testing.T) {
	r := newRoutine(t, routine.Daily(0))
	done(t, r, 0, 1, 2, 5)

	snap := snapshot(t, r, 0, 2, 10)

	assert.Equal(t, 3, snap.CurrentStreak)
	assert.Equal(t, 3, snap.BestStreak)
}

// =============================================================================
// RULE CHANGES
// =============================================================================

func TestProgress_RuleChangeSwitchesDueOnEffectiveDay(t *testing.T) {
	// GIVEN: Daily from day 0 (Thursday), weekly on Mondays from day 4
	r := newRoutine(t, routine.Daily(0))
	require.NoError(t, r.AddRuleChange(routine.WeeklyOn(0, time.Monday), 4))
	done(t, r, 0, 1, 2, 3, 4)

	// WHEN: Evaluated on day 12, the Monday of day 11 having been missed
	snap := snapshot(t, r, 0, 12, 12)

	// THEN: Days 5-10 are not due, day 11 breaks the run
	require.Len(t, snap.Days, 13)
	assert.True(t, snap.Days[4].Due)
	assert.False(t, snap.Days[5].Due)
	assert.Equal(t, missed, snap.Days[11].Status)
	assert.Equal(t, 1, snap.CurrentStreak)
	assert.Equal(t, 11, snap.BestStreak)
}

func TestProgress_RuleChangeFromQuotaClipsLastWindow(t *testing.T) {
	// GIVEN: A weekly quota replaced by a daily rule in the middle of a window
	r := newRoutine(t, routine.TimesPerPeriod(2, 7, 0, 0))
	require.NoError(t, r.AddRuleChange(routine.Daily(0), 4))
	done(t, r, 0, 1, 5)

	// WHEN: Evaluating the first week
	snap := snapshot(t, r, 0, 6, 20)

	// THEN: The window ends the day before the change; day 5 is not counted in it
	require.Len(t, snap.Periods, 1)
	assert.Equal(t, routine.LogicalDay(0), snap.Periods[0].Start)
	assert.Equal(t, routine.LogicalDay(3), snap.Periods[0].End)
	assert.Equal(t, 2, snap.Periods[0].Completions)
	assert.Equal(t, []routine.DayStatus{sat, sat, sat, sat, missed, sat, missed}, statuses(snap))
	assert.Equal(t, 1, snap.BestStreak)
}

func TestProgress_RuleChangeToQuotaClipsFirstWindow(t *testing.T) {
	r := newRoutine(t, routine.Daily(0))
	require.NoError(t, r.AddRuleChange(routine.TimesPerPeriod(2, 7, 0, 0), 3))
	done(t, r, 0, 1, 2, 4, 5)

	snap := snapshot(t, r, 0, 10, 20)

	require.Len(t, snap.Periods, 2)
	assert.Equal(t, routine.LogicalDay(3), snap.Periods[0].Start, "window clipped to rule start")
	assert.Equal(t, routine.LogicalDay(6), snap.Periods[0].End)
	assert.Equal(t, 2, snap.Periods[0].Completions)
	assertDecimal(t, "1", snap.Periods[0].Ratio)
	assertDecimal(t, "0", snap.Periods[1].Ratio)
	assertDecimal(t, "0.5", *snap.AverageAdherence)

	require.NotNil(t, snap.Days[3].Period)
	assert.Equal(t, routine.PeriodIndex(0), *snap.Days[3].Period)
	assert.Equal(t, missed, snap.Days[8].Status)

	assert.Equal(t, 0, snap.CurrentStreak)
	assert.Equal(t, 4, snap.BestStreak, "three days plus one window")
}

// =============================================================================
// QUOTA RULES
// =============================================================================

func TestProgress_QuotaAdherence(t *testing.T) {
	tests := []struct {
		name      string
		doneDays  []routine.LogicalDay
		ratio     string
		completes int
		status    routine.DayStatus
	}{
		{"quota met", []routine.LogicalDay{1, 3}, "1", 2, sat},
		{"half", []routine.LogicalDay{1}, "0.5", 1, missed},
		{"over quota clamps", []routine.LogicalDay{1, 2, 3}, "1", 3, sat},
		{"nothing", nil, "0", 0, missed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRoutine(t, routine.TimesPerPeriod(2, 7, 0, 0))
			done(t, r, tt.doneDays...)

			snap := snapshot(t, r, 0, 6, 10)

			require.Len(t, snap.Periods, 1)
			p := snap.Periods[0]
			assert.Equal(t, tt.completes, p.Completions)
			assert.Equal(t, 2, p.Quota)
			assertDecimal(t, tt.ratio, p.Ratio)
			for _, d := range snap.Days {
				assert.True(t, d.Due)
				assert.Equal(t, tt.status, d.Status)
			}
		})
	}
}

func TestProgress_QuotaCompletionsNeverDoubleCounted(t *testing.T) {
	r := newRoutine(t, routine.TimesPerPeriod(2, 7, 0, 0))
	done(t, r, 5, 6, 7, 8, 13)

	snap := snapshot(t, r, 0, 13, 20)

	require.Len(t, snap.Periods, 2)
	assert.Equal(t, 2, snap.Periods[0].Completions)
	assert.Equal(t, 3, snap.Periods[1].Completions)
	assert.Equal(t, 5, snap.Periods[0].Completions+snap.Periods[1].Completions)
	assert.Equal(t, 2, snap.CurrentStreak)
}

func TestProgress_QuotaAverageAdherence(t *testing.T) {
	r := newRoutine(t, routine.TimesPerPeriod(2, 7, 0, 0))
	done(t, r, 1, 7, 8)

	snap := snapshot(t, r, 0, 13, 20)

	require.NotNil(t, snap.AverageAdherence)
	assertDecimal(t, "0.75", *snap.AverageAdherence)
	assert.Equal(t, 1, snap.CurrentStreak)
}

func TestProgress_OpenWindowLooksAheadAndStaysPending(t *testing.T) {
	// GIVEN: A weekly quota window still open today
	r := newRoutine(t, routine.TimesPerPeriod(2, 7, 0, 0))
	done(t, r, 1)

	// WHEN: Queried for a range ending mid-window
	snap := snapshot(t, r, 0, 3, 3)

	// THEN: The window is pending and the streak untouched
	assert.Equal(t, []routine.DayStatus{pending, pending, pending, pending}, statuses(snap))
	assert.Equal(t, 0, snap.CurrentStreak)
}

func TestProgress_SkipPolicyForQuota(t *testing.T) {
	r := newRoutine(t, routine.TimesPerPeriod(2, 7, 0, 0))
	skipped(t, r, 1)
	done(t, r, 2)

	strict, err := r.ProgressSnapshot(0, 6, routine.Options{Today: 10})
	require.NoError(t, err)
	lenient, err := r.ProgressSnapshot(0, 6, routine.Options{Today: 10, SkipCountsTowardQuota: true})
	require.NoError(t, err)

	assertDecimal(t, "0.5", strict.Periods[0].Ratio)
	assertDecimal(t, "1", lenient.Periods[0].Ratio)
	assert.Equal(t, 0, strict.CurrentStreak)
	assert.Equal(t, 1, lenient.CurrentStreak)
}

// =============================================================================
// PROPERTIES
// =============================================================================

func TestProgress_Deterministic(t *testing.T) {
	r := newRoutine(t, routine.Daily(0))
	for d := routine.LogicalDay(0); d <= 60; d++ {
		if d != 10 && d != 40 {
			done(t, r, d)
		}
	}

	first := snapshot(t, r, 50, 60, 60)
	second := snapshot(t, r, 50, 60, 60) // resumes from a cached checkpoint

	assert.Equal(t, first, second)
	assert.Equal(t, 20, first.CurrentStreak)
	assert.Equal(t, 29, first.BestStreak)
	assert.Equal(t, first, evalFresh(t, r, 50, 60, routine.Options{Today: 60}))
}

func TestProgress_BackfillNeverLowersCurrentStreak(t *testing.T) {
	base := map[routine.LogicalDay]routine.Completion{}
	for d := routine.LogicalDay(0); d <= 20; d++ {
		if d%3 != 0 {
			base[d] = routine.Completion{Day: d, Status: routine.StatusDone}
		}
	}

	currentAt := func(comps map[routine.LogicalDay]routine.Completion, day routine.LogicalDay) int {
		snap, _, err := routine.Evaluate(routine.EvalInput{
			Rules:       []routine.Rule{routine.Daily(0)},
			Completions: comps,
			From:        day,
			To:          day,
			Options:     routine.Options{Today: day},
		})
		require.NoError(t, err)
		return snap.CurrentStreak
	}

	for m := routine.LogicalDay(0); m <= 20; m += 3 {
		filled := make(map[routine.LogicalDay]routine.Completion, len(base)+1)
		for d, c := range base {
			filled[d] = c
		}
		filled[m] = routine.Completion{Day: m, Status: routine.StatusDone}

		for day := m; day <= 20; day++ {
			assert.GreaterOrEqual(t, currentAt(filled, day), currentAt(base, day), "backfill %d, day %d", m, day)
		}
	}
}

func TestProgress_CheckpointsMatchFullReplay(t *testing.T) {
	// GIVEN: A long history mixing every rule kind
	r := newRoutine(t, routine.Daily(0))
	require.NoError(t, r.AddRuleChange(routine.TimesPerPeriod(3, 7, 0, 0), 100))
	require.NoError(t, r.AddRuleChange(routine.WeeklyOn(0, time.Monday, time.Thursday), 200))
	require.NoError(t, r.AddRuleChange(routine.EveryNDays(2, 1, 0), 300))
	for d := routine.LogicalDay(0); d < 400; d++ {
		switch {
		case d%11 == 0:
			skipped(t, r, d)
		case d%5 != 0:
			done(t, r, d)
		}
	}

	queries := []struct {
		from, to routine.LogicalDay
		opts     routine.Options
	}{
		{0, 399, routine.Options{Today: 399}},
		{350, 399, routine.Options{Today: 399}},
		{120, 130, routine.Options{Today: 399}},
		{380, 399, routine.Options{Today: 390}},
		{10, 20, routine.Options{Today: 15}},
		{0, 399, routine.Options{Today: 450}},
		{150, 260, routine.Options{Today: 399, SkipCountsTowardQuota: true}},
		{350, 399, routine.Options{Today: 399}},
	}

	// WHEN/THEN: Cached and uncached evaluation always agree
	for _, q := range queries {
		cached, err := r.ProgressSnapshot(q.from, q.to, q.opts)
		require.NoError(t, err)
		assert.Equal(t, evalFresh(t, r, q.from, q.to, q.opts), cached, "query %+v", q)
	}
	assert.Greater(t, r.CachedCheckpoints(), 0)

	// A backfill deep in history changes later results consistently
	done(t, r, 55)
	cached, err := r.ProgressSnapshot(350, 399, routine.Options{Today: 399})
	require.NoError(t, err)
	assert.Equal(t, evalFresh(t, r, 350, 399, routine.Options{Today: 399}), cached)
}

// =============================================================================
// RANGE GUARDS
// =============================================================================

func TestProgress_RangeGuards(t *testing.T) {
	r := newRoutine(t, routine.Daily(0))

	_, err := r.ProgressSnapshot(5, 4, routine.Options{Today: 5})
	assert.ErrorIs(t, err, routine.ErrInvalidRange)

	_, err = r.ProgressSnapshot(0, routine.MaxRangeDays, routine.Options{Today: 0})
	assert.ErrorIs(t, err, routine.ErrRangeTooLarge)
	var tooLarge *routine.RangeTooLargeError
	require.ErrorAs(t, err, &tooLarge)
	assert.Equal(t, int64(routine.MaxRangeDays+1), tooLarge.Days)

	_, err = r.ProgressSnapshot(0, routine.MaxRangeDays-1, routine.Options{Today: 0})
	assert.NoError(t, err)
}

func TestProgress_OldCreationDayStaysQueryable(t *testing.T) {
	// GIVEN: A daily routine created in 1900, far more than MaxRangeDays ago
	created := routine.DayFromDate(1900, time.January, 1)
	today := routine.DayFromDate(2025, time.March, 10)
	r, err := routine.New("r-1", "old habit", routine.Daily(created), createdAt)
	require.NoError(t, err)
	done(t, r, today-2, today-1)

	// WHEN: Querying a recent week
	snap, err := r.ProgressSnapshot(today-6, today, routine.Options{Today: today})

	// THEN: The long fold succeeds and later queries can resume from it
	require.NoError(t, err)
	assert.Len(t, snap.Days, 7)
	assert.Equal(t, 2, snap.CurrentStreak)
	assert.Greater(t, r.CachedCheckpoints(), 0)

	again, err := r.ProgressSnapshot(today-6, today, routine.Options{Today: today})
	require.NoError(t, err)
	assert.Equal(t, snap, again)
}

func TestEvaluate_FoldSpanBeyondDayBounds(t *testing.T) {
	// Unvalidated input reaching past MinDay..MaxDay is still refused.
	_, _, err := routine.Evaluate(routine.EvalInput{
		RoutineID: "r-1",
		Rules:     []routine.Rule{routine.Daily(routine.MinDay - 1)},
		CreatedOn: routine.MinDay - 1,
		From:      routine.MaxDay - 10,
		To:        routine.MaxDay,
		Options:   routine.Options{Today: routine.MaxDay},
	})

	var tooLarge *routine.RangeTooLargeError
	require.ErrorAs(t, err, &tooLarge)
	assert.Equal(t, routine.MaxFoldDays+1, tooLarge.Days)
}
