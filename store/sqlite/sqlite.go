/*
Package sqlite provides a SQLite-backed routine.Repository.

PURPOSE:
  Persists routine state relationally so rule versions and the completion
  journal are queryable on their own. Schema changes are versioned goose
  migrations embedded in the binary.

KEY TABLES:
  routines:         One row per routine (name, creation, archive)
  rule_versions:    Append-only rule history, one row per effective day
  completions:      Current-state completion per (routine, day)
  completion_edits: Append-only completion journal

APPEND-ONLY ENFORCEMENT:
  Save never updates or deletes rule_versions or completion_edits rows:
  - INSERT OR IGNORE on the (routine_id, effective_from) / (routine_id, seq) keys
  - completions is the only table rewritten, as it is a derived view

CONCURRENCY:
  Uses sync.RWMutex plus a single pooled connection. SQLite allows one
  writer at a time, and ":memory:" databases exist per connection.

WAL MODE:
  File databases are opened with WAL so readers never block the writer.

USAGE:
  store, err := sqlite.New("./data/routines.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := tracker.NewService(store, cal, logger)

SEE ALSO:
  - routine/store.go: Repository contract
  - routine/store/memory.go: In-memory implementation for testing
  - store/badger/badger.go: Key-value implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/warp/routine-tracker/factory"
	"github.com/warp/routine-tracker/routine"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Store implements routine.Repository using SQLite.
type Store struct {
	db       *sql.DB
	mu       sync.RWMutex
	provider *goose.Provider
	rules    *factory.RuleFactory
}

// New opens the database at dbPath and applies pending migrations.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_foreign_keys=on&_busy_timeout=5000"
	if dbPath != ":memory:" {
		dsn += "&_journal_mode=WAL"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	migrations, err := fs.Sub(migrationFS, "migrations")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("migrations sub-fs: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, migrations)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create migration provider: %w", err)
	}

	store := &Store{db: db, provider: provider, rules: factory.NewRuleFactory()}
	if _, err := store.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies pending migrations and returns the resulting schema version.
func (s *Store) Migrate(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.provider.Up(ctx); err != nil {
		return 0, fmt.Errorf("failed to migrate database: %w", err)
	}
	version, err := s.provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}

// =============================================================================
// REPOSITORY (routine.Repository interface)
// =============================================================================

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Save writes the full state of one routine in a single transaction.
func (s *Store) Save(ctx context.Context, st routine.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := s.saveRoutine(ctx, sqlTx, st); err != nil {
		return err
	}
	if err := s.saveRules(ctx, sqlTx, st); err != nil {
		return err
	}
	if err := s.saveCompletions(ctx, sqlTx, st); err != nil {
		return err
	}
	if err := s.saveEdits(ctx, sqlTx, st); err != nil {
		return err
	}

	return sqlTx.Commit()
}

func (s *Store) saveRoutine(ctx context.Context, db execer, st routine.State) error {
	var archivedAt, archivedOn sql.NullString
	if st.ArchivedAt != nil {
		archivedAt = nullString(formatTime(*st.ArchivedAt))
	}
	if st.ArchivedOn != nil {
		archivedOn = nullString(st.ArchivedOn.String())
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO routines (id, name, created_at, archived_at, archived_on)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			archived_at = excluded.archived_at,
			archived_on = excluded.archived_on
	`, string(st.ID), st.Name, formatTime(st.CreatedAt), archivedAt, archivedOn)
	if err != nil {
		return fmt.Errorf("failed to save routine: %w", err)
	}
	return nil
}

func (s *Store) saveRules(ctx context.Context, db execer, st routine.State) error {
	for _, r := range st.Rules {
		config, err := json.Marshal(s.rules.ToJSON(r))
		if err != nil {
			return fmt.Errorf("failed to encode rule: %w", err)
		}
		_, err = db.ExecContext(ctx, `
			INSERT OR IGNORE INTO rule_versions (routine_id, effective_from, kind, config_json)
			VALUES (?, ?, ?, ?)
		`, string(st.ID), r.EffectiveFrom.String(), string(r.Kind), string(config))
		if err != nil {
			return fmt.Errorf("failed to save rule version: %w", err)
		}
	}
	return nil
}

func (s *Store) saveCompletions(ctx context.Context, db execer, st routine.State) error {
	if _, err := db.ExecContext(ctx, "DELETE FROM completions WHERE routine_id = ?", string(st.ID)); err != nil {
		return fmt.Errorf("failed to clear completions: %w", err)
	}
	for _, c := range st.Completions {
		_, err := db.ExecContext(ctx, `
			INSERT INTO completions (routine_id, day, status, marked_at, note)
			VALUES (?, ?, ?, ?, ?)
		`, string(st.ID), c.Day.String(), string(c.Status), formatTime(c.At), c.Note)
		if err != nil {
			return fmt.Errorf("failed to save completion: %w", err)
		}
	}
	return nil
}

func (s *Store) saveEdits(ctx context.Context, db execer, st routine.State) error {
	for _, e := range st.Edits {
		_, err := db.ExecContext(ctx, `
			INSERT OR IGNORE INTO completion_edits (routine_id, seq, day, op, status, at, note)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, string(st.ID), e.Seq, e.Day.String(), string(e.Op), string(e.Status), formatTime(e.At), e.Note)
		if err != nil {
			return fmt.Errorf("failed to save completion edit: %w", err)
		}
	}
	return nil
}

// Load returns the state for id or routine.ErrRoutineNotFound.
func (s *Store) Load(ctx context.Context, id routine.RoutineID) (routine.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.load(ctx, id)
}

// List returns every routine ordered by id.
func (s *Store) List(ctx context.Context) ([]routine.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids, err := s.routineIDs(ctx)
	if err != nil {
		return nil, err
	}

	states := make([]routine.State, 0, len(ids))
	for _, id := range ids {
		st, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}
		states = append(states, st)
	}
	return states, nil
}

// routineIDs drains its rows before returning; the pool holds one connection.
func (s *Store) routineIDs(ctx context.Context) ([]routine.RoutineID, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM routines ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query routines: %w", err)
	}
	defer rows.Close()

	var ids []routine.RoutineID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan routine id: %w", err)
		}
		ids = append(ids, routine.RoutineID(id))
	}
	return ids, rows.Err()
}

func (s *Store) load(ctx context.Context, id routine.RoutineID) (routine.State, error) {
	var (
		st                     routine.State
		name, createdAt        string
		archivedAt, archivedOn sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT name, created_at, archived_at, archived_on FROM routines WHERE id = ?", string(id),
	).Scan(&name, &createdAt, &archivedAt, &archivedOn)
	if errors.Is(err, sql.ErrNoRows) {
		return routine.State{}, fmt.Errorf("%w: %s", routine.ErrRoutineNotFound, id)
	}
	if err != nil {
		return routine.State{}, fmt.Errorf("failed to load routine: %w", err)
	}

	st.ID = id
	st.Name = name
	if st.CreatedAt, err = parseTime(createdAt); err != nil {
		return routine.State{}, fmt.Errorf("routine %s: bad created_at: %w", id, err)
	}
	if archivedAt.Valid {
		at, err := parseTime(archivedAt.String)
		if err != nil {
			return routine.State{}, fmt.Errorf("routine %s: bad archived_at: %w", id, err)
		}
		st.ArchivedAt = &at
	}
	if archivedOn.Valid {
		d, err := routine.ParseDay(archivedOn.String)
		if err != nil {
			return routine.State{}, fmt.Errorf("routine %s: bad archived_on: %w", id, err)
		}
		st.ArchivedOn = &d
	}

	if st.Rules, err = s.loadRules(ctx, id); err != nil {
		return routine.State{}, err
	}
	if st.Completions, err = s.loadCompletions(ctx, id); err != nil {
		return routine.State{}, err
	}
	if st.Edits, err = s.loadEdits(ctx, id); err != nil {
		return routine.State{}, err
	}
	return st, nil
}

func (s *Store) loadRules(ctx context.Context, id routine.RoutineID) ([]routine.Rule, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT config_json FROM rule_versions WHERE routine_id = ? ORDER BY effective_from ASC", string(id))
	if err != nil {
		return nil, fmt.Errorf("failed to query rule versions: %w", err)
	}
	defer rows.Close()

	var rules []routine.Rule
	for rows.Next() {
		var config string
		if err := rows.Scan(&config); err != nil {
			return nil, fmt.Errorf("failed to scan rule version: %w", err)
		}
		r, err := s.rules.ParseRule(config)
		if err != nil {
			return nil, fmt.Errorf("routine %s: %w", id, err)
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

func (s *Store) loadCompletions(ctx context.Context, id routine.RoutineID) ([]routine.Completion, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT day, status, marked_at, note FROM completions WHERE routine_id = ? ORDER BY day ASC", string(id))
	if err != nil {
		return nil, fmt.Errorf("failed to query completions: %w", err)
	}
	defer rows.Close()

	var out []routine.Completion
	for rows.Next() {
		var day, status, markedAt, note string
		if err := rows.Scan(&day, &status, &markedAt, &note); err != nil {
			return nil, fmt.Errorf("failed to scan completion: %w", err)
		}
		d, err := routine.ParseDay(day)
		if err != nil {
			return nil, fmt.Errorf("routine %s: bad completion day: %w", id, err)
		}
		at, err := parseTime(markedAt)
		if err != nil {
			return nil, fmt.Errorf("routine %s: bad marked_at on %s: %w", id, day, err)
		}
		out = append(out, routine.Completion{
			Day:    d,
			Status: routine.CompletionStatus(status),
			At:     at,
			Note:   note,
		})
	}
	return out, rows.Err()
}

func (s *Store) loadEdits(ctx context.Context, id routine.RoutineID) ([]routine.LogEdit, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT seq, day, op, status, at, note FROM completion_edits WHERE routine_id = ? ORDER BY seq ASC", string(id))
	if err != nil {
		return nil, fmt.Errorf("failed to query completion edits: %w", err)
	}
	defer rows.Close()

	var out []routine.LogEdit
	for rows.Next() {
		var (
			e                       routine.LogEdit
			day, op, status, at, nt string
		)
		if err := rows.Scan(&e.Seq, &day, &op, &status, &at, &nt); err != nil {
			return nil, fmt.Errorf("failed to scan completion edit: %w", err)
		}
		d, err := routine.ParseDay(day)
		if err != nil {
			return nil, fmt.Errorf("routine %s: bad edit day: %w", id, err)
		}
		e.Day = d
		e.Op = routine.EditOp(op)
		e.Status = routine.CompletionStatus(status)
		if e.At, err = parseTime(at); err != nil {
			return nil, fmt.Errorf("routine %s: bad edit at (seq %d): %w", id, e.Seq, err)
		}
		e.Note = nt
		out = append(out, e)
	}
	return out, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"completion_edits", "completions", "rule_versions", "routines"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// RuleVersionCount reports how many rule rows are stored for id.
func (s *Store) RuleVersionCount(ctx context.Context, id routine.RoutineID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM rule_versions WHERE routine_id = ?", string(id),
	).Scan(&count)
	return count, err
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}
