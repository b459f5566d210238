package badger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/routine-tracker/routine"
	"github.com/warp/routine-tracker/store/badger"
)

var at = time.Date(2025, time.March, 1, 9, 30, 0, 0, time.UTC)

func newStore(t *testing.T) *badger.Store {
	t.Helper()
	store, err := badger.New("")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	start := routine.DayFromDate(2025, time.March, 3)

	r, err := routine.New("rt-gym", "Gym", routine.TimesPerPeriod(3, 7, start, start), at)
	require.NoError(t, err)
	require.NoError(t, r.RecordCompletion(start, routine.StatusDone, at, ""))
	require.NoError(t, r.RecordCompletion(start.AddDays(2), routine.StatusSkipped, at, "travel"))

	require.NoError(t, store.Save(ctx, r.State()))
	loaded, err := store.Load(ctx, "rt-gym")
	require.NoError(t, err)

	want := r.State()
	assert.Equal(t, want.Rules, loaded.Rules)
	assert.Equal(t, want.Completions, loaded.Completions)
	assert.Equal(t, want.Edits, loaded.Edits)

	restored, err := routine.Restore(loaded)
	require.NoError(t, err)
	opts := routine.Options{Today: start.AddDays(10), SkipCountsTowardQuota: true}
	a, err := r.ProgressSnapshot(start, start.AddDays(13), opts)
	require.NoError(t, err)
	b, err := restored.ProgressSnapshot(start, start.AddDays(13), opts)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestStore_LoadMissing(t *testing.T) {
	store := newStore(t)

	_, err := store.Load(context.Background(), "nope")

	assert.ErrorIs(t, err, routine.ErrRoutineNotFound)
}

func TestStore_RefusesHistoryRewrite(t *testing.T) {
	// GIVEN: A stored routine with two rule versions
	ctx := context.Background()
	store := newStore(t)

	r, err := routine.New("rt-1", "Stretch", routine.Daily(0), at)
	require.NoError(t, err)
	stale := r.State()
	require.NoError(t, r.AddRuleChange(routine.EveryNDays(2, 0, 0), 5))
	require.NoError(t, store.Save(ctx, r.State()))

	// WHEN: An older state with fewer versions is saved over it
	err = store.Save(ctx, stale)

	// THEN: The write is refused
	assert.ErrorIs(t, err, badger.ErrHistoryRewrite)
	loaded, err := store.Load(ctx, "rt-1")
	require.NoError(t, err)
	assert.Len(t, loaded.Rules, 2)
}

func TestStore_ListAndReset(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	for _, id := range []routine.RoutineID{"b", "a", "c"} {
		r, err := routine.New(id, string(id), routine.Daily(0), at)
		require.NoError(t, err)
		require.NoError(t, store.Save(ctx, r.State()))
	}

	states, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, states, 3)
	assert.Equal(t, routine.RoutineID("a"), states[0].ID)
	assert.Equal(t, routine.RoutineID("c"), states[2].ID)

	require.NoError(t, store.Reset(ctx))
	states, err = store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, states)
}
