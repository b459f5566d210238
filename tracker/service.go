/*
Package tracker is the application service over the routine engine.

PURPOSE:
  Glues the pure engine to the outside world: it owns the clock and the
  calendar that define "today", loads and saves aggregates through a
  routine.Repository, and keeps restored aggregates in memory so their
  fold checkpoints survive from one request to the next.

WRITE PATH (load-modify-save):
  1. Take the per-routine mutex (one writer per routine)
  2. Load the aggregate (cache, else repository + routine.Restore)
  3. Apply the engine operation
  4. Save the full state; on failure evict the cached aggregate so the
     next read reloads what was actually persisted

READ PATH:
  Reads take no service lock; the aggregate's own RWMutex lets folds run
  concurrently with each other and with writers.

OBSERVABILITY:
  Every operation is logged with slog and counted in Prometheus metrics.

SEE ALSO:
  - routine/aggregate.go: Routine aggregate
  - api/handlers.go: HTTP surface
  - api/scheduler.go: Background checkpoint warmer
*/
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/warp/routine-tracker/routine"
)

var (
	// ErrInvalidName is returned when a routine is created without a name.
	ErrInvalidName = errors.New("routine name is required")

	// ErrResetUnsupported is returned by Reset when the repository cannot be cleared.
	ErrResetUnsupported = errors.New("repository does not support reset")
)

// Resetter is implemented by repositories that can drop all data.
type Resetter interface {
	Reset(ctx context.Context) error
}

// =============================================================================
// VIEWS
// =============================================================================

// View is a read-only summary of a routine.
type View struct {
	ID          routine.RoutineID
	Name        string
	CreatedOn   routine.LogicalDay
	CreatedAt   time.Time
	Archived    bool
	ArchivedOn  *routine.LogicalDay
	Rules       []routine.Rule
	Completions []routine.Completion
}

func viewOf(s routine.State) View {
	v := View{
		ID:          s.ID,
		Name:        s.Name,
		CreatedAt:   s.CreatedAt,
		Archived:    s.ArchivedAt != nil,
		ArchivedOn:  s.ArchivedOn,
		Rules:       s.Rules,
		Completions: s.Completions,
	}
	if len(s.Rules) > 0 {
		v.CreatedOn = s.Rules[0].EffectiveFrom
	}
	return v
}

// ActiveRule returns the rule governing day, if any.
func (v View) ActiveRule(day routine.LogicalDay) (routine.Rule, bool) {
	i := sort.Search(len(v.Rules), func(i int) bool { return v.Rules[i].EffectiveFrom > day }) - 1
	if i < 0 {
		return routine.Rule{}, false
	}
	return v.Rules[i], true
}

// DueItem answers "what about this routine on this day".
type DueItem struct {
	RoutineID  routine.RoutineID
	Name       string
	Day        routine.LogicalDay
	Rule       routine.Rule
	Due        bool
	Status     routine.DayStatus
	Completion routine.CompletionStatus
	Period     *routine.PeriodAdherence // set under quota rules
}

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	repo    routine.Repository
	cal     routine.Calendar
	now     func() time.Time
	newID   func() routine.RoutineID
	skip    bool
	logger  *slog.Logger
	metrics *Metrics

	mu    sync.Mutex
	locks map[routine.RoutineID]*sync.Mutex
	cache map[routine.RoutineID]*routine.Routine
}

type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator replaces the UUID generator.
func WithIDGenerator(gen func() routine.RoutineID) Option {
	return func(s *Service) { s.newID = gen }
}

// WithSkipCountsTowardQuota sets the default skip policy for evaluations.
func WithSkipCountsTowardQuota(skip bool) Option {
	return func(s *Service) { s.skip = skip }
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(repo routine.Repository, cal routine.Calendar, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		repo:   repo,
		cal:    cal,
		now:    time.Now,
		newID:  func() routine.RoutineID { return routine.RoutineID(uuid.NewString()) },
		logger: logger.With(slog.String("component", "tracker")),
		locks:  make(map[routine.RoutineID]*sync.Mutex),
		cache:  make(map[routine.RoutineID]*routine.Routine),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(prometheus.NewRegistry())
	}
	return s
}

func (s *Service) Calendar() routine.Calendar { return s.cal }

func (s *Service) Metrics() *Metrics { return s.metrics }

// Now is the service clock.
func (s *Service) Now() time.Time { return s.now() }

// Today is the logical day containing the current instant.
func (s *Service) Today() routine.LogicalDay {
	return s.cal.Today(s.now())
}

// =============================================================================
// WRITES
// =============================================================================

// Create stores a new routine whose creation day is rule.EffectiveFrom.
func (s *Service) Create(ctx context.Context, name string, rule routine.Rule) (View, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return View{}, ErrInvalidName
	}

	id := s.newID()
	r, err := routine.New(id, name, rule, s.now())
	if err == nil {
		err = s.repo.Save(ctx, r.State())
	}
	s.metrics.mutations.WithLabelValues("create", result(err)).Inc()
	if err != nil {
		s.logger.Warn("create routine failed", slog.String("name", name), slog.Any("error", err))
		return View{}, err
	}

	s.mu.Lock()
	s.cache[id] = r
	s.mu.Unlock()

	s.logger.Info("routine created",
		slog.String("routine_id", string(id)),
		slog.String("rule", rule.String()),
		slog.String("created_on", rule.EffectiveFrom.String()))
	return viewOf(r.State()), nil
}

// ChangeRule schedules rule from effectiveFrom onward.
func (s *Service) ChangeRule(ctx context.Context, id routine.RoutineID, rule routine.Rule, effectiveFrom routine.LogicalDay) error {
	return s.mutate(ctx, id, "change_rule", func(r *routine.Routine) error {
		return r.AddRuleChange(rule, effectiveFrom)
	}, slog.String("rule", string(rule.Kind)), slog.String("effective_from", effectiveFrom.String()))
}

// RecordCompletionAt records a completion at instant at, mapped to its logical day.
func (s *Service) RecordCompletionAt(ctx context.Context, id routine.RoutineID, at time.Time, status routine.CompletionStatus, note string) (routine.LogicalDay, error) {
	day := s.cal.ToLogicalDay(at)
	err := s.mutate(ctx, id, "record", func(r *routine.Routine) error {
		return r.RecordCompletion(day, status, at, note)
	}, slog.String("day", day.String()), slog.String("status", string(status)))
	return day, err
}

// RecordCompletionOn records a completion for an explicit day (backfill).
func (s *Service) RecordCompletionOn(ctx context.Context, id routine.RoutineID, day routine.LogicalDay, status routine.CompletionStatus, note string) error {
	at := s.now()
	return s.mutate(ctx, id, "record", func(r *routine.Routine) error {
		return r.RecordCompletion(day, status, at, note)
	}, slog.String("day", day.String()), slog.String("status", string(status)))
}

func (s *Service) RemoveCompletion(ctx context.Context, id routine.RoutineID, day routine.LogicalDay) error {
	at := s.now()
	return s.mutate(ctx, id, "remove", func(r *routine.Routine) error {
		return r.RemoveCompletion(day, at)
	}, slog.String("day", day.String()))
}

// Archive soft-deletes the routine as of today.
func (s *Service) Archive(ctx context.Context, id routine.RoutineID) error {
	now := s.now()
	day := s.cal.Today(now)
	return s.mutate(ctx, id, "archive", func(r *routine.Routine) error {
		return r.Archive(day, now)
	}, slog.String("day", day.String()))
}

func (s *Service) mutate(ctx context.Context, id routine.RoutineID, op string, fn func(*routine.Routine) error, attrs ...any) error {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	r, err := s.aggregate(ctx, id)
	if err == nil {
		if err = fn(r); err == nil {
			if err = s.repo.Save(ctx, r.State()); err != nil {
				s.evict(id)
				err = fmt.Errorf("save routine %s: %w", id, err)
			}
		}
	}
	s.metrics.mutations.WithLabelValues(op, result(err)).Inc()

	logger := s.logger.With(slog.String("routine_id", string(id)), slog.String("op", op)).With(attrs...)
	if err != nil {
		if routine.IsClientError(err) || routine.IsNotFound(err) {
			logger.Debug("mutation rejected", slog.Any("error", err))
		} else {
			logger.Error("mutation failed", slog.Any("error", err))
		}
		return err
	}
	logger.Debug("mutation applied")
	return nil
}

// =============================================================================
// READS
// =============================================================================

func (s *Service) Get(ctx context.Context, id routine.RoutineID) (View, error) {
	r, err := s.aggregate(ctx, id)
	if err != nil {
		return View{}, err
	}
	return viewOf(r.State()), nil
}

// List returns every routine, archived ones included, ordered by id.
func (s *Service) List(ctx context.Context) ([]View, error) {
	states, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list routines: %w", err)
	}
	views := make([]View, 0, len(states))
	for _, st := range states {
		views = append(views, viewOf(st))
	}
	return views, nil
}

// Progress folds the routine over [from, to] as of today.
func (s *Service) Progress(ctx context.Context, id routine.RoutineID, from, to routine.LogicalDay) (routine.ProgressSnapshot, error) {
	return s.progress(ctx, id, from, to, s.Today())
}

func (s *Service) progress(ctx context.Context, id routine.RoutineID, from, to, today routine.LogicalDay) (routine.ProgressSnapshot, error) {
	r, err := s.aggregate(ctx, id)
	if err != nil {
		return routine.ProgressSnapshot{}, err
	}

	timer := prometheus.NewTimer(s.metrics.evalDuration)
	snap, err := r.ProgressSnapshot(from, to, routine.Options{Today: today, SkipCountsTowardQuota: s.skip})
	timer.ObserveDuration()
	s.metrics.evaluations.WithLabelValues(result(err)).Inc()
	return snap, err
}

// DueOn reports due-ness and status of one routine on day.
func (s *Service) DueOn(ctx context.Context, id routine.RoutineID, day routine.LogicalDay) (DueItem, error) {
	r, err := s.aggregate(ctx, id)
	if err != nil {
		return DueItem{}, err
	}
	rule, ok := r.ActiveRule(day)
	if !ok {
		return DueItem{}, &routine.RuleNotYetEffectiveError{Day: day, EffectiveFrom: r.CreatedOn()}
	}

	snap, err := s.progress(ctx, id, day, day, s.Today())
	if err != nil {
		return DueItem{}, err
	}
	if len(snap.Days) == 0 {
		// Past the archive day.
		return DueItem{}, fmt.Errorf("%s: %w", day, routine.ErrRoutineArchived)
	}

	d := snap.Days[0]
	item := DueItem{
		RoutineID:  id,
		Name:       r.Name(),
		Day:        day,
		Rule:       rule,
		Due:        d.Due,
		Status:     d.Status,
		Completion: d.Completion,
	}
	if len(snap.Periods) > 0 {
		p := snap.Periods[0]
		item.Period = &p
	}
	return item, nil
}

// DueToday lists active routines that are due today, ordered by id.
func (s *Service) DueToday(ctx context.Context) ([]DueItem, error) {
	views, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	today := s.Today()
	items := make([]DueItem, 0, len(views))
	for _, v := range views {
		if v.Archived || v.CreatedOn > today {
			continue
		}
		item, err := s.DueOn(ctx, v.ID, today)
		if err != nil {
			return nil, err
		}
		if item.Due {
			items = append(items, item)
		}
	}
	return items, nil
}

// Warm folds every active routine through today so checkpoints exist for
// the new day. It returns how many routines were warmed.
func (s *Service) Warm(ctx context.Context) (int, error) {
	views, err := s.List(ctx)
	if err != nil {
		return 0, err
	}

	today := s.Today()
	warmed := 0
	for _, v := range views {
		if err := ctx.Err(); err != nil {
			return warmed, err
		}
		if v.Archived || v.CreatedOn > today {
			continue
		}
		if _, err := s.progress(ctx, v.ID, today, today, today); err != nil {
			s.logger.Warn("warm failed", slog.String("routine_id", string(v.ID)), slog.Any("error", err))
			continue
		}
		warmed++
	}
	s.metrics.activeRoutines.Set(float64(warmed))
	return warmed, nil
}

// Reset drops all routines (for demo scenarios).
func (s *Service) Reset(ctx context.Context) error {
	resetter, ok := s.repo.(Resetter)
	if !ok {
		return ErrResetUnsupported
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := resetter.Reset(ctx); err != nil {
		return err
	}
	s.cache = make(map[routine.RoutineID]*routine.Routine)
	s.locks = make(map[routine.RoutineID]*sync.Mutex)
	s.logger.Info("all routines reset")
	return nil
}

// =============================================================================
// AGGREGATE CACHE
// =============================================================================

func (s *Service) lockFor(id routine.RoutineID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

func (s *Service) aggregate(ctx context.Context, id routine.RoutineID) (*routine.Routine, error) {
	s.mu.Lock()
	r, ok := s.cache[id]
	s.mu.Unlock()
	if ok {
		s.metrics.aggregateCache.WithLabelValues("hit").Inc()
		return r, nil
	}
	s.metrics.aggregateCache.WithLabelValues("miss").Inc()

	st, err := s.repo.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	restored, err := routine.Restore(st)
	if err != nil {
		return nil, fmt.Errorf("restore routine %s: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.cache[id]; ok {
		return existing, nil
	}
	s.cache[id] = restored
	return restored, nil
}

func (s *Service) evict(id routine.RoutineID) {
	s.mu.Lock()
	delete(s.cache, id)
	s.mu.Unlock()
}
