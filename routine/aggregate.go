/*
aggregate.go - Routine aggregate

PURPOSE:
  A Routine binds one rule history to one completion log and exposes the
  evaluator's output as a cached, invalidate-on-write view. It owns both
  exclusively; nothing else holds a reference to them.

LIFECYCLE:
  1. New: created with an initial rule; its EffectiveFrom is the creation day
  2. AddRuleChange: appends a rule version (never rewrites history)
  3. RecordCompletion / RemoveCompletion: edit the log, including backfill
  4. Archive: soft-delete; history stays readable, writes are rejected

CONCURRENCY:
  Writers are serialized by an internal RWMutex. ProgressSnapshot copies
  the history and log under the read lock and folds outside it, so readers
  never observe a half-applied mutation and never block each other during
  the fold. Callers that load-modify-save through a repository still need
  their own per-routine lock (see tracker.Service).

CACHING:
  Checkpoints produced by a fold are stored only if no write happened in
  between (version check). Every write invalidates checkpoints at or after
  the edited day.
*/
package routine

import (
	"fmt"
	"sync"
	"time"
)

// State is the persistence shape of a routine: the only thing adapters
// serialize. Field names and encoding are adapter concerns.
type State struct {
	ID          RoutineID
	Name        string
	Rules       []Rule
	Completions []Completion
	Edits       []LogEdit
	CreatedAt   time.Time
	ArchivedAt  *time.Time
	ArchivedOn  *LogicalDay
}

// Routine is the aggregate root.
type Routine struct {
	mu sync.RWMutex

	id         RoutineID
	name       string
	history    RuleHistory
	log        *CompletionLog
	createdAt  time.Time
	archivedAt *time.Time
	archivedOn *LogicalDay

	version uint64
	cache   CheckpointCache
}

// New creates a routine whose creation day is initial.EffectiveFrom.
func New(id RoutineID, name string, initial Rule, createdAt time.Time) (*Routine, error) {
	history, err := NewRuleHistory(initial)
	if err != nil {
		return nil, err
	}
	return &Routine{
		id:        id,
		name:      name,
		history:   history,
		log:       NewCompletionLog(),
		createdAt: createdAt,
	}, nil
}

// Restore rebuilds a routine from persisted state, checking every invariant.
func Restore(s State) (*Routine, error) {
	if len(s.Rules) == 0 {
		return nil, fmt.Errorf("restore %s: %w", s.ID, ErrEmptyHistory)
	}
	history, err := NewRuleHistory(s.Rules...)
	if err != nil {
		return nil, fmt.Errorf("restore %s: %w", s.ID, err)
	}
	first, _ := history.First()

	seen := make(map[LogicalDay]bool, len(s.Completions))
	for _, c := range s.Completions {
		if c.Day < first.EffectiveFrom {
			return nil, fmt.Errorf("restore %s: completion on %s: %w", s.ID, c.Day, ErrDayBeforeCreation)
		}
		if !c.Status.Valid() {
			return nil, fmt.Errorf("restore %s: completion on %s: %w %q", s.ID, c.Day, ErrInvalidStatus, c.Status)
		}
		if seen[c.Day] {
			return nil, fmt.Errorf("restore %s: duplicate completion on %s", s.ID, c.Day)
		}
		seen[c.Day] = true
	}

	r := &Routine{
		id:        s.ID,
		name:      s.Name,
		history:   history,
		log:       restoreCompletionLog(s.Completions, s.Edits),
		createdAt: s.CreatedAt,
	}
	if s.ArchivedAt != nil {
		at := *s.ArchivedAt
		r.archivedAt = &at
	}
	if s.ArchivedOn != nil {
		on := *s.ArchivedOn
		r.archivedOn = &on
	}
	return r, nil
}

// State returns a deep copy suitable for persistence.
func (r *Routine) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := State{
		ID:          r.id,
		Name:        r.name,
		Rules:       r.history.Rules(),
		Completions: r.log.Completions(),
		Edits:       r.log.Edits(),
		CreatedAt:   r.createdAt,
	}
	if r.archivedAt != nil {
		at := *r.archivedAt
		s.ArchivedAt = &at
	}
	if r.archivedOn != nil {
		on := *r.archivedOn
		s.ArchivedOn = &on
	}
	return s
}

// =============================================================================
// ACCESSORS
// =============================================================================

func (r *Routine) ID() RoutineID { return r.id }

func (r *Routine) Name() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.name
}

// CreatedOn is the effective day of the first rule.
func (r *Routine) CreatedOn() LogicalDay {
	r.mu.RLock()
	defer r.mu.RUnlock()
	first, _ := r.history.First()
	return first.EffectiveFrom
}

func (r *Routine) IsArchived() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.archivedAt != nil
}

// Version increments on every successful write.
func (r *Routine) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

func (r *Routine) Rules() []Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.history.Rules()
}

// ActiveRule returns the rule governing day, if the routine existed then.
func (r *Routine) ActiveRule(day LogicalDay) (Rule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.history.Active(day)
}

// IsDueOn answers due-ness under the rule active on day.
func (r *Routine) IsDueOn(day LogicalDay) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rule, ok := r.history.Active(day)
	if !ok {
		first, _ := r.history.First()
		return false, &RuleNotYetEffectiveError{Day: day, EffectiveFrom: first.EffectiveFrom}
	}
	return rule.IsDue(day)
}

func (r *Routine) Completion(day LogicalDay) (Completion, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.log.Get(day)
}

// =============================================================================
// MUTATIONS
// =============================================================================

// AddRuleChange schedules newRule from effectiveFrom onward.
func (r *Routine) AddRuleChange(newRule Rule, effectiveFrom LogicalDay) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.archivedAt != nil {
		return ErrRoutineArchived
	}
	first, _ := r.history.First()
	if effectiveFrom < first.EffectiveFrom {
		return &EffectiveDateBeforeCreationError{EffectiveFrom: effectiveFrom, CreatedOn: first.EffectiveFrom}
	}
	newRule.EffectiveFrom = effectiveFrom
	if err := r.history.Insert(newRule); err != nil {
		return err
	}
	r.touch(effectiveFrom)
	return nil
}

// RecordCompletion upserts the completion for day. Identical input is a no-op.
func (r *Routine) RecordCompletion(day LogicalDay, status CompletionStatus, at time.Time, note string) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.writableOn(day); err != nil {
		return err
	}
	if r.log.Record(day, status, at, note) {
		r.touch(day)
	}
	return nil
}

// RemoveCompletion deletes the completion for day; absent days are a no-op.
func (r *Routine) RemoveCompletion(day LogicalDay, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.writableOn(day); err != nil {
		return err
	}
	if r.log.Remove(day, at) {
		r.touch(day)
	}
	return nil
}

// Archive soft-deletes the routine. Days after the archive day are no
// longer evaluated; everything up to it stays queryable.
func (r *Routine) Archive(day LogicalDay, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.archivedAt != nil {
		return ErrRoutineArchived
	}
	first, _ := r.history.First()
	if day < first.EffectiveFrom {
		return fmt.Errorf("archive on %s: %w", day, ErrDayBeforeCreation)
	}
	r.archivedAt = &at
	r.archivedOn = &day
	r.touch(day + 1)
	return nil
}

func (r *Routine) writableOn(day LogicalDay) error {
	if r.archivedAt != nil {
		return ErrRoutineArchived
	}
	first, _ := r.history.First()
	if day < first.EffectiveFrom {
		return fmt.Errorf("%s is before %s: %w", day, first.EffectiveFrom, ErrDayBeforeCreation)
	}
	if day > MaxDay {
		return fmt.Errorf("%d is after %s: %w", day, MaxDay, ErrDayOutOfRange)
	}
	return nil
}

// touch must be called with the write lock held.
func (r *Routine) touch(from LogicalDay) {
	r.version++
	r.cache.InvalidateFrom(from)
}

// =============================================================================
// PROGRESS
// =============================================================================

// ProgressSnapshot folds the routine over [from, to].
func (r *Routine) ProgressSnapshot(from, to LogicalDay, opts Options) (ProgressSnapshot, error) {
	r.mu.RLock()
	first, _ := r.history.First()
	in := EvalInput{
		RoutineID:   r.id,
		Rules:       r.history.Rules(),
		Completions: r.log.snapshot(),
		CreatedOn:   first.EffectiveFrom,
		From:        from,
		To:          to,
		Options:     opts,
	}
	if r.archivedOn != nil {
		end := *r.archivedOn
		in.EndOn = &end
	}
	if cp, ok := r.cache.Nearest(minDay(maxDay(from, first.EffectiveFrom), opts.Today), opts.SkipCountsTowardQuota); ok {
		in.Checkpoint = &cp
	}
	version := r.version
	r.mu.RUnlock()

	snap, checkpoints, err := Evaluate(in)
	if err != nil {
		return ProgressSnapshot{}, err
	}

	if len(checkpoints) > 0 {
		r.mu.Lock()
		if r.version == version {
			r.cache.Store(checkpoints...)
		}
		r.mu.Unlock()
	}
	return snap, nil
}

// CachedCheckpoints reports how many fold checkpoints are memoized.
func (r *Routine) CachedCheckpoints() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cache.Len()
}
