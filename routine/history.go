package routine

import "sort"

// =============================================================================
// RULE HISTORY - Insert-only versioned schedule
// =============================================================================

// RuleHistory holds a routine's rules sorted ascending by EffectiveFrom.
//
// INVARIANTS:
//   - Sorted by EffectiveFrom, no duplicates.
//   - Entries are never modified or removed once inserted.
//
// Editing today's schedule therefore never changes how past days evaluate.
type RuleHistory struct {
	rules []Rule
}

// NewRuleHistory builds a history from rules in any order.
func NewRuleHistory(rules ...Rule) (RuleHistory, error) {
	var h RuleHistory
	for _, r := range rules {
		if err := h.Insert(r); err != nil {
			return RuleHistory{}, err
		}
	}
	return h, nil
}

// Insert adds a rule at its sorted position.
func (h *RuleHistory) Insert(r Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	// Binary search for insertion point
	i := sort.Search(len(h.rules), func(i int) bool {
		return h.rules[i].EffectiveFrom >= r.EffectiveFrom
	})
	if i < len(h.rules) && h.rules[i].EffectiveFrom == r.EffectiveFrom {
		return &OverlappingEffectiveDateError{EffectiveFrom: r.EffectiveFrom, Existing: h.rules[i].Kind}
	}

	h.rules = append(h.rules, Rule{})
	copy(h.rules[i+1:], h.rules[i:])
	h.rules[i] = r
	return nil
}

// Active returns the latest rule with EffectiveFrom <= day.
// The boolean is false when day precedes every rule.
func (h RuleHistory) Active(day LogicalDay) (Rule, bool) {
	i := h.activeIndex(day)
	if i < 0 {
		return Rule{}, false
	}
	return h.rules[i], true
}

func (h RuleHistory) activeIndex(day LogicalDay) int {
	// First rule strictly after day, minus one.
	return sort.Search(len(h.rules), func(i int) bool {
		return h.rules[i].EffectiveFrom > day
	}) - 1
}

// First returns the earliest rule; ok is false for an empty history.
func (h RuleHistory) First() (Rule, bool) {
	if len(h.rules) == 0 {
		return Rule{}, false
	}
	return h.rules[0], true
}

func (h RuleHistory) Len() int { return len(h.rules) }

// Rules returns a copy of the history in order.
func (h RuleHistory) Rules() []Rule {
	out := make([]Rule, len(h.rules))
	copy(out, h.rules)
	return out
}
