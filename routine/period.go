package routine

// =============================================================================
// PERIOD - Quota window for TimesPerPeriod rules
// =============================================================================

// PeriodIndex numbers the non-overlapping windows of a TimesPerPeriod rule.
// Index 0 starts at the rule's period anchor; earlier windows are negative.
type PeriodIndex int64

// Period is an inclusive range of logical days [Start, End].
type Period struct {
	Start LogicalDay
	End   LogicalDay
}

// Clip intersects the period with [from, to]. The result is empty
// (End < Start) when they do not overlap.
func (p Period) Clip(from, to LogicalDay) Period {
	if from > p.Start {
		p.Start = from
	}
	if to < p.End {
		p.End = to
	}
	return p
}
