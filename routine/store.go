/*
store.go - Persistence interface for routines

PURPOSE:
  Defines the narrow boundary between the engine and storage. The engine
  never performs I/O itself; adapters load and save State values and
  translate storage failures into domain errors before they reach it.

KEY INTERFACES:
  Repository: Save, Load and List routine state

CONTRACT:
  - Load returns ErrRoutineNotFound (wrapped or bare) for unknown ids.
  - Save persists the full state atomically. Rule versions and journal
    entries are append-only: an adapter may skip rows it already holds but
    must never rewrite them.
  - A Save followed by Load returns a State that restores to a routine
    producing identical progress snapshots.

IMPLEMENTATIONS:
  - routine/store/memory.go: In-memory for testing
  - store/sqlite/sqlite.go: Relational (SQLite, goose migrations)
  - store/badger/badger.go: Key-value (BadgerDB)

SEE ALSO:
  - aggregate.go: State and Restore
  - factory/routine.go: JSON encoding used by the key-value adapter
*/
package routine

import "context"

// Repository persists routine state.
type Repository interface {
	// Save writes the complete state of one routine.
	Save(ctx context.Context, s State) error

	// Load returns the state for id or ErrRoutineNotFound.
	Load(ctx context.Context, id RoutineID) (State, error)

	// List returns every stored routine, archived ones included, ordered by id.
	List(ctx context.Context) ([]State, error)
}
