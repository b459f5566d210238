// Package store provides Repository implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/routine-tracker/routine"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	routines map[routine.RoutineID]routine.State
}

func NewMemory() *Memory {
	return &Memory{
		routines: make(map[routine.RoutineID]routine.State),
	}
}

// Save stores a deep copy so later caller mutations never leak in.
func (m *Memory) Save(_ context.Context, s routine.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routines[s.ID] = cloneState(s)
	return nil
}

func (m *Memory) Load(_ context.Context, id routine.RoutineID) (routine.State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.routines[id]
	if !ok {
		return routine.State{}, routine.ErrRoutineNotFound
	}
	return cloneState(s), nil
}

func (m *Memory) List(_ context.Context) ([]routine.State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]routine.State, 0, len(m.routines))
	for _, s := range m.routines {
		result = append(result, cloneState(s))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// Reset drops every routine.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routines = make(map[routine.RoutineID]routine.State)
	return nil
}

func cloneState(s routine.State) routine.State {
	out := s
	out.Rules = append([]routine.Rule(nil), s.Rules...)
	out.Completions = append([]routine.Completion(nil), s.Completions...)
	out.Edits = append([]routine.LogEdit(nil), s.Edits...)
	if s.ArchivedAt != nil {
		at := *s.ArchivedAt
		out.ArchivedAt = &at
	}
	if s.ArchivedOn != nil {
		on := *s.ArchivedOn
		out.ArchivedOn = &on
	}
	return out
}
