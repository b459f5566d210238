/*
Package badger provides a BadgerDB-backed routine.Repository.

PURPOSE:
  Embedded key-value persistence for single-node deployments that want no
  SQL at all. Each routine is one JSON document (factory encoding) under
  the key "routine/<id>".

KEY LAYOUT:
  routine/<id> -> factory.StateJSON

APPEND-ONLY ENFORCEMENT:
  Save reads the stored document in the same transaction and refuses to
  drop rule versions or journal entries it already holds.

USAGE:
  store, err := badger.New("./data/badger")  // "" for in-memory
  defer store.Close()
*/
package badger

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/warp/routine-tracker/factory"
	"github.com/warp/routine-tracker/routine"
)

const keyPrefix = "routine/"

// ErrHistoryRewrite is returned when a save would drop persisted history.
var ErrHistoryRewrite = errors.New("save would rewrite persisted history")

// Store implements routine.Repository on BadgerDB.
type Store struct {
	db    *badgerdb.DB
	codec *factory.RuleFactory
}

// New opens a database in dir. An empty dir opens an in-memory instance.
func New(dir string) (*Store, error) {
	opts := badgerdb.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &Store{db: db, codec: factory.NewRuleFactory()}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func routineKey(id routine.RoutineID) []byte {
	return []byte(keyPrefix + string(id))
}

// Save writes the routine document, rejecting writes that would shorten
// the stored rule history or completion journal.
func (s *Store) Save(_ context.Context, st routine.State) error {
	data, err := s.codec.EncodeState(st)
	if err != nil {
		return fmt.Errorf("failed to encode routine: %w", err)
	}

	return s.db.Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(routineKey(st.ID))
		switch {
		case errors.Is(err, badgerdb.ErrKeyNotFound):
		case err != nil:
			return err
		default:
			var prev routine.State
			if err := item.Value(func(val []byte) error {
				prev, err = s.codec.DecodeState(val)
				return err
			}); err != nil {
				return err
			}
			if len(st.Rules) < len(prev.Rules) || len(st.Edits) < len(prev.Edits) {
				return fmt.Errorf("%w: routine %s", ErrHistoryRewrite, st.ID)
			}
		}
		return txn.Set(routineKey(st.ID), data)
	})
}

// Load returns the state for id or routine.ErrRoutineNotFound.
func (s *Store) Load(_ context.Context, id routine.RoutineID) (routine.State, error) {
	var st routine.State
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(routineKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			st, err = s.codec.DecodeState(val)
			return err
		})
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return routine.State{}, fmt.Errorf("%w: %s", routine.ErrRoutineNotFound, id)
	}
	if err != nil {
		return routine.State{}, fmt.Errorf("failed to load routine: %w", err)
	}
	return st, nil
}

// List iterates the routine prefix; keys sort by id.
func (s *Store) List(_ context.Context) ([]routine.State, error) {
	var states []routine.State
	err := s.db.View(func(txn *badgerdb.Txn) error {
		it := txn.NewIterator(badgerdb.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			if !bytes.HasPrefix(item.Key(), prefix) {
				break
			}
			if err := item.Value(func(val []byte) error {
				st, err := s.codec.DecodeState(val)
				if err != nil {
					return err
				}
				states = append(states, st)
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list routines: %w", err)
	}
	return states, nil
}

// Reset drops every routine (for testing/demo).
func (s *Store) Reset(_ context.Context) error {
	return s.db.DropPrefix([]byte(keyPrefix))
}
