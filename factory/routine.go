package factory

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/warp/routine-tracker/routine"
)

// =============================================================================
// ROUTINE STATE ENCODING
// =============================================================================

// StateJSON is the persisted JSON shape of a routine.
type StateJSON struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	CreatedAt   time.Time        `json:"created_at"`
	ArchivedAt  *time.Time       `json:"archived_at,omitempty"`
	ArchivedOn  string           `json:"archived_on,omitempty"`
	Rules       []RuleJSON       `json:"rules"`
	Completions []CompletionJSON `json:"completions"`
	Edits       []EditJSON       `json:"edits,omitempty"`
}

// CompletionJSON is one current-state completion record.
type CompletionJSON struct {
	Day    string    `json:"day"`
	Status string    `json:"status"`
	At     time.Time `json:"at"`
	Note   string    `json:"note,omitempty"`
}

// EditJSON is one completion journal entry.
type EditJSON struct {
	Seq    int64     `json:"seq"`
	Day    string    `json:"day"`
	Op     string    `json:"op"`
	Status string    `json:"status,omitempty"`
	At     time.Time `json:"at"`
	Note   string    `json:"note,omitempty"`
}

// EncodeState serializes routine state. Days are written as YYYY-MM-DD so
// the stored form is readable and independent of the day ordinal.
func (f *RuleFactory) EncodeState(s routine.State) ([]byte, error) {
	sj := StateJSON{
		ID:          string(s.ID),
		Name:        s.Name,
		CreatedAt:   s.CreatedAt,
		ArchivedAt:  s.ArchivedAt,
		Rules:       make([]RuleJSON, 0, len(s.Rules)),
		Completions: make([]CompletionJSON, 0, len(s.Completions)),
	}
	if s.ArchivedOn != nil {
		sj.ArchivedOn = s.ArchivedOn.String()
	}
	for _, r := range s.Rules {
		sj.Rules = append(sj.Rules, f.ToJSON(r))
	}
	for _, c := range s.Completions {
		sj.Completions = append(sj.Completions, CompletionJSON{
			Day:    c.Day.String(),
			Status: string(c.Status),
			At:     c.At,
			Note:   c.Note,
		})
	}
	for _, e := range s.Edits {
		sj.Edits = append(sj.Edits, EditJSON{
			Seq:    e.Seq,
			Day:    e.Day.String(),
			Op:     string(e.Op),
			Status: string(e.Status),
			At:     e.At,
			Note:   e.Note,
		})
	}
	return json.Marshal(sj)
}

// DecodeState parses persisted routine state. It does not check aggregate
// invariants; routine.Restore does.
func (f *RuleFactory) DecodeState(data []byte) (routine.State, error) {
	var sj StateJSON
	if err := json.Unmarshal(data, &sj); err != nil {
		return routine.State{}, fmt.Errorf("failed to parse routine JSON: %w", err)
	}

	s := routine.State{
		ID:         routine.RoutineID(sj.ID),
		Name:       sj.Name,
		CreatedAt:  sj.CreatedAt,
		ArchivedAt: sj.ArchivedAt,
	}
	if sj.ArchivedOn != "" {
		d, err := parseDay("archived_on", sj.ArchivedOn)
		if err != nil {
			return routine.State{}, err
		}
		s.ArchivedOn = &d
	}

	for _, rj := range sj.Rules {
		r, err := f.FromJSON(rj)
		if err != nil {
			return routine.State{}, fmt.Errorf("routine %s: %w", sj.ID, err)
		}
		s.Rules = append(s.Rules, r)
	}

	for _, cj := range sj.Completions {
		d, err := parseDay("completion day", cj.Day)
		if err != nil {
			return routine.State{}, err
		}
		s.Completions = append(s.Completions, routine.Completion{
			Day:    d,
			Status: routine.CompletionStatus(cj.Status),
			At:     cj.At,
			Note:   cj.Note,
		})
	}

	for _, ej := range sj.Edits {
		d, err := parseDay("edit day", ej.Day)
		if err != nil {
			return routine.State{}, err
		}
		s.Edits = append(s.Edits, routine.LogEdit{
			Seq:    ej.Seq,
			Day:    d,
			Op:     routine.EditOp(ej.Op),
			Status: routine.CompletionStatus(ej.Status),
			At:     ej.At,
			Note:   ej.Note,
		})
	}

	return s, nil
}
