/*
errors.go - Centralized error types for the engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Every engine error is a local-validation error: it signals caller misuse
  or corrupted input, never a transient failure, and must not be retried.

ERROR CATEGORIES:
  1. Calendar errors - Unknown time zone, bad day-start offset
  2. Rule errors - Malformed rule, query before effective date
  3. Aggregate errors - Overlapping or pre-creation rule changes, archived routine
  4. Range errors - Inverted or oversized evaluation range
  5. Adapter errors - RoutineNotFound, translated by repositories

USAGE:
  if errors.Is(err, routine.ErrOverlappingEffectiveDate) {
      // a rule already starts on that day
  }

  var rangeErr *routine.RangeTooLargeError
  if errors.As(err, &rangeErr) {
      log.Printf("asked for %d days", rangeErr.Days)
  }
*/
package routine

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidTimezone is returned when a time zone identifier is unknown.
	ErrInvalidTimezone = errors.New("invalid timezone")

	// ErrInvalidDayStartOffset is returned when the day boundary shift is a day or more.
	ErrInvalidDayStartOffset = errors.New("invalid day start offset")

	// ErrInvalidRule is returned when a rule payload is malformed.
	ErrInvalidRule = errors.New("invalid recurrence rule")

	// ErrRuleNotYetEffective is returned when a rule is queried before its effective day.
	ErrRuleNotYetEffective = errors.New("rule not yet effective")

	// ErrNotDayGranular is returned by IsDue for period-quota rules.
	ErrNotDayGranular = errors.New("rule is period-granular")

	// ErrOverlappingEffectiveDate is returned when a rule already starts on that day.
	ErrOverlappingEffectiveDate = errors.New("overlapping effective date")

	// ErrEffectiveDateBeforeCreation is returned when a rule change predates the routine.
	ErrEffectiveDateBeforeCreation = errors.New("effective date before creation")

	// ErrDayBeforeCreation is returned when a completion predates the routine.
	ErrDayBeforeCreation = errors.New("day before routine creation")

	// ErrDayOutOfRange is returned for a day outside MinDay..MaxDay.
	ErrDayOutOfRange = errors.New("day out of range")

	// ErrRoutineArchived is returned when mutating an archived routine.
	ErrRoutineArchived = errors.New("routine archived")

	// ErrRangeTooLarge is returned when a range exceeds MaxRangeDays or a fold MaxFoldDays.
	ErrRangeTooLarge = errors.New("range too large")

	// ErrInvalidRange is returned when from is after to.
	ErrInvalidRange = errors.New("invalid range: from after to")

	// ErrInvalidStatus is returned for an unknown completion status.
	ErrInvalidStatus = errors.New("invalid completion status")

	// ErrEmptyHistory is returned when restoring a routine without rules.
	ErrEmptyHistory = errors.New("rule history is empty")

	// ErrRoutineNotFound is returned by repositories for unknown ids.
	ErrRoutineNotFound = errors.New("routine not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidTimezoneError names the identifier that failed to load.
type InvalidTimezoneError struct {
	Timezone string
	Cause    error
}

func (e *InvalidTimezoneError) Error() string {
	return fmt.Sprintf("invalid timezone %q: %v", e.Timezone, e.Cause)
}

func (e *InvalidTimezoneError) Unwrap() error {
	return ErrInvalidTimezone
}

// RuleNotYetEffectiveError reports a query before a rule's effective day.
type RuleNotYetEffectiveError struct {
	Day           LogicalDay
	EffectiveFrom LogicalDay
}

func (e *RuleNotYetEffectiveError) Error() string {
	return fmt.Sprintf("rule not yet effective on %s (effective from %s)", e.Day, e.EffectiveFrom)
}

func (e *RuleNotYetEffectiveError) Unwrap() error {
	return ErrRuleNotYetEffective
}

// OverlappingEffectiveDateError reports a duplicate rule start day.
type OverlappingEffectiveDateError struct {
	EffectiveFrom LogicalDay
	Existing      RuleKind
}

func (e *OverlappingEffectiveDateError) Error() string {
	return fmt.Sprintf("a %s rule is already effective from %s", e.Existing, e.EffectiveFrom)
}

func (e *OverlappingEffectiveDateError) Unwrap() error {
	return ErrOverlappingEffectiveDate
}

// EffectiveDateBeforeCreationError reports a rule change predating the routine.
type EffectiveDateBeforeCreationError struct {
	EffectiveFrom LogicalDay
	CreatedOn     LogicalDay
}

func (e *EffectiveDateBeforeCreationError) Error() string {
	return fmt.Sprintf("effective date %s precedes creation day %s", e.EffectiveFrom, e.CreatedOn)
}

func (e *EffectiveDateBeforeCreationError) Unwrap() error {
	return ErrEffectiveDateBeforeCreation
}

// RangeTooLargeError reports an evaluation span beyond its limit.
type RangeTooLargeError struct {
	From LogicalDay
	To   LogicalDay
	Days int64
	Max  int64
}

func (e *RangeTooLargeError) Error() string {
	return fmt.Sprintf("range %s..%s spans %d days (max %d)", e.From, e.To, e.Days, e.Max)
}

func (e *RangeTooLargeError) Unwrap() error {
	return ErrRangeTooLarge
}

// InvalidRuleError explains why a rule failed validation.
type InvalidRuleError struct {
	Kind   RuleKind
	Reason string
}

func (e *InvalidRuleError) Error() string {
	return fmt.Sprintf("invalid %s rule: %s", e.Kind, e.Reason)
}

func (e *InvalidRuleError) Unwrap() error {
	return ErrInvalidRule
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input.
// Engine errors are never retryable, so there is no IsRetryable.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidTimezone) ||
		errors.Is(err, ErrInvalidDayStartOffset) ||
		errors.Is(err, ErrInvalidRule) ||
		errors.Is(err, ErrRuleNotYetEffective) ||
		errors.Is(err, ErrNotDayGranular) ||
		errors.Is(err, ErrOverlappingEffectiveDate) ||
		errors.Is(err, ErrEffectiveDateBeforeCreation) ||
		errors.Is(err, ErrDayBeforeCreation) ||
		errors.Is(err, ErrDayOutOfRange) ||
		errors.Is(err, ErrRoutineArchived) ||
		errors.Is(err, ErrRangeTooLarge) ||
		errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrInvalidStatus)
}

// IsConflict returns true if the error reports a clash with existing state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrOverlappingEffectiveDate) ||
		errors.Is(err, ErrRoutineArchived)
}

// IsNotFound returns true if the error indicates a missing routine.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRoutineNotFound)
}
