/*
completion.go - Completion log

PURPOSE:
  The completion log records what the user did on each logical day. Its
  current-state view is a map with at most one record per day; behind it
  sits an append-only edit journal so every change stays auditable and
  undoable.

CONTRACT:
  Record(day, status, at, note): upsert. Recording the identical record
    again is a no-op and leaves both the map and the journal untouched.
  Remove(day): delete. Removing an absent day is a no-op, not an error.
  Get(day): current record, if any.

  Record and Remove report whether the current state changed so the owner
  can invalidate cached fold state from that day forward.

BACKFILL:
  Any day may be edited, including past days. Because evaluation is a
  left-to-right fold, an edit at day D only affects results at D and later.
*/
package routine

import (
	"sort"
	"time"
)

// EditOp is the kind of journal entry.
type EditOp string

const (
	EditRecord EditOp = "record"
	EditRemove EditOp = "remove"
)

// LogEdit is one append-only journal entry.
type LogEdit struct {
	Seq    int64
	Day    LogicalDay
	Op     EditOp
	Status CompletionStatus // empty for removals
	At     time.Time
	Note   string
}

// CompletionLog is the per-routine completion record. Not safe for
// concurrent use; the owning Routine serializes access.
type CompletionLog struct {
	records map[LogicalDay]Completion
	edits   []LogEdit
}

func NewCompletionLog() *CompletionLog {
	return &CompletionLog{records: make(map[LogicalDay]Completion)}
}

// Record upserts the record for day.
func (l *CompletionLog) Record(day LogicalDay, status CompletionStatus, at time.Time, note string) bool {
	c := Completion{Day: day, Status: status, At: at, Note: note}
	if existing, ok := l.records[day]; ok && existing.equal(c) {
		return false
	}
	l.records[day] = c
	l.appendEdit(LogEdit{Day: day, Op: EditRecord, Status: status, At: at, Note: note})
	return true
}

// Remove deletes the record for day.
func (l *CompletionLog) Remove(day LogicalDay, at time.Time) bool {
	if _, ok := l.records[day]; !ok {
		return false
	}
	delete(l.records, day)
	l.appendEdit(LogEdit{Day: day, Op: EditRemove, At: at})
	return true
}

// Get returns the current record for day.
func (l *CompletionLog) Get(day LogicalDay) (Completion, bool) {
	c, ok := l.records[day]
	return c, ok
}

// Days returns the days with a record, ascending.
func (l *CompletionLog) Days() []LogicalDay {
	days := make([]LogicalDay, 0, len(l.records))
	for d := range l.records {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
	return days
}

// Completions returns the current records ordered by day.
func (l *CompletionLog) Completions() []Completion {
	out := make([]Completion, 0, len(l.records))
	for _, d := range l.Days() {
		out = append(out, l.records[d])
	}
	return out
}

// Edits returns a copy of the journal in append order.
func (l *CompletionLog) Edits() []LogEdit {
	out := make([]LogEdit, len(l.edits))
	copy(out, l.edits)
	return out
}

// snapshot copies the current-state view for a lock-free fold.
func (l *CompletionLog) snapshot() map[LogicalDay]Completion {
	out := make(map[LogicalDay]Completion, len(l.records))
	for d, c := range l.records {
		out[d] = c
	}
	return out
}

func (l *CompletionLog) appendEdit(e LogEdit) {
	e.Seq = int64(len(l.edits)) + 1
	if n := len(l.edits); n > 0 && l.edits[n-1].Seq >= e.Seq {
		e.Seq = l.edits[n-1].Seq + 1
	}
	l.edits = append(l.edits, e)
}

// restoreCompletionLog rebuilds a log from persisted state. The journal is
// taken as-is; records are the authoritative current view.
func restoreCompletionLog(records []Completion, edits []LogEdit) *CompletionLog {
	l := NewCompletionLog()
	for _, c := range records {
		l.records[c.Day] = c
	}
	l.edits = append(l.edits, edits...)
	sort.SliceStable(l.edits, func(i, j int) bool { return l.edits[i].Seq < l.edits[j].Seq })
	return l
}
