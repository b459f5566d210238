package routine

import (
	"fmt"
	"time"
)

// =============================================================================
// LOGICAL DAY - Ordinal day count, the atomic unit of evaluation
// =============================================================================

// LogicalDay counts civil days since 1970-01-01 (day 0).
// It is derived from a timestamp through a Calendar and is meaningless
// without one; never cache it across time zone changes.
type LogicalDay int64

const secondsPerDay = 24 * 60 * 60

// MinDay and MaxDay bound the days a routine may reference: years 0001
// through 9999, whose YYYY-MM-DD labels round-trip through ParseDay.
const (
	MinDay LogicalDay = -719162 // 0001-01-01
	MaxDay LogicalDay = 2932896 // 9999-12-31
)

// InBounds reports whether d lies within [MinDay, MaxDay].
func (d LogicalDay) InBounds() bool { return d >= MinDay && d <= MaxDay }

// DayFromDate returns the logical day labelled by a civil date.
func DayFromDate(year int, month time.Month, day int) LogicalDay {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return LogicalDay(floorDiv(t.Unix(), secondsPerDay))
}

// ParseDay parses a YYYY-MM-DD label.
func ParseDay(s string) (LogicalDay, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return 0, fmt.Errorf("parse logical day %q: %w", s, err)
	}
	return DayFromDate(t.Year(), t.Month(), t.Day()), nil
}

// Date returns the civil date of the day at UTC midnight.
func (d LogicalDay) Date() time.Time {
	return time.Unix(int64(d)*secondsPerDay, 0).UTC()
}

// Arithmetic
func (d LogicalDay) AddDays(n int) LogicalDay { return d + LogicalDay(n) }
func (d LogicalDay) Sub(o LogicalDay) int64   { return int64(d - o) }

// Properties
func (d LogicalDay) Year() int             { return d.Date().Year() }
func (d LogicalDay) Month() time.Month     { return d.Date().Month() }
func (d LogicalDay) DayOfMonth() int       { return d.Date().Day() }
func (d LogicalDay) Weekday() time.Weekday { return d.Date().Weekday() }
func (d LogicalDay) String() string        { return d.Date().Format(time.DateOnly) }

func (d LogicalDay) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *LogicalDay) UnmarshalText(b []byte) error {
	parsed, err := ParseDay(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DaysInMonth returns the length of the month containing d.
func (d LogicalDay) DaysInMonth() int {
	t := d.Date()
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// =============================================================================
// CALENDAR - Timestamp <-> logical day normalizer
// =============================================================================

// Calendar maps instants to logical days for one user configuration.
//
// Logical day d starts at the local wall-clock instant
// midnight(date(d)) + dayStartOffset. An offset of 3h makes days run from
// 03:00 to 03:00, so a 01:30 workout still belongs to the previous day.
// A negative offset starts the day on the previous evening.
//
// The zero Calendar is UTC with no offset.
type Calendar struct {
	loc    *time.Location
	offset time.Duration
}

// NewCalendar validates a time zone identifier and day boundary offset.
func NewCalendar(timezone string, dayStartOffset time.Duration) (Calendar, error) {
	if dayStartOffset <= -24*time.Hour || dayStartOffset >= 24*time.Hour {
		return Calendar{}, fmt.Errorf("%w: %s", ErrInvalidDayStartOffset, dayStartOffset)
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return Calendar{}, &InvalidTimezoneError{Timezone: timezone, Cause: err}
	}
	return Calendar{loc: loc, offset: dayStartOffset}, nil
}

func (c Calendar) Location() *time.Location {
	if c.loc == nil {
		return time.UTC
	}
	return c.loc
}

func (c Calendar) Timezone() string              { return c.Location().String() }
func (c Calendar) DayStartOffset() time.Duration { return c.offset }

// ToLogicalDay returns the unique d with DayRange(d) containing t.
func (c Calendar) ToLogicalDay(t time.Time) LogicalDay {
	local := t.In(c.Location())
	wall := time.Date(local.Year(), local.Month(), local.Day(),
		local.Hour(), local.Minute(), local.Second(), local.Nanosecond(), time.UTC).Add(-c.offset)
	d := DayFromDate(wall.Year(), wall.Month(), wall.Day())

	// The wall-clock guess can be off by one around DST transitions;
	// settle it against the authoritative day starts.
	for !c.dayStart(d + 1).After(t) {
		d++
	}
	for c.dayStart(d).After(t) {
		d--
	}
	return d
}

// DayRange returns the half-open instant interval [start, end) of day d.
func (c Calendar) DayRange(d LogicalDay) (start, end time.Time) {
	return c.dayStart(d), c.dayStart(d + 1)
}

// Today returns the logical day containing now.
func (c Calendar) Today(now time.Time) LogicalDay {
	return c.ToLogicalDay(now)
}

func (c Calendar) dayStart(d LogicalDay) time.Time {
	date := d.Date()
	// time.Date normalizes the nanosecond overflow on the wall clock
	// before resolving the zone, so offsets cross midnight cleanly.
	return time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, int(c.offset), c.Location())
}

// =============================================================================
// TIME UTILITIES
// =============================================================================

func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func floorMod(a, b int64) int64 {
	return a - floorDiv(a, b)*b
}
