/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the tracker with realistic
	histories relative to today. Each scenario creates routines, schedules
	rule changes and records (or backfills) completions that demonstrate
	specific engine features.

AVAILABLE SCENARIOS:

	daily-meditation: Daily habit with a missed day and a backfilled skip
	gym-weekly-quota: Three sessions per 7-day window, one short week
	monthly-rent:     Monthly on the 31st, clamped in short months
	schedule-change:  Daily for two weeks, then Mon/Wed/Fri

HOW SCENARIOS WORK:
 1. Reset the repository (drop all routines)
 2. Create routines with rules effective in the past
 3. Schedule rule changes
 4. Record completions on past days

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "gym-weekly-quota"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx)
 3. Add it to the loaders map

NOTE:

	Scenarios reset the repository. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler type
  - tracker/service.go: Operations used by the loaders
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/warp/routine-tracker/routine"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "daily-meditation",
		Name:        "Daily Meditation",
		Description: "Daily routine for three weeks with a missed day and a backfilled skip",
	},
	{
		ID:          "gym-weekly-quota",
		Name:        "Gym 3x / Week",
		Description: "Times-per-period quota over four weeks, one week short",
	},
	{
		ID:          "monthly-rent",
		Name:        "Pay Rent",
		Description: "Monthly on the 31st; short months fall on their last day",
	},
	{
		ID:          "schedule-change",
		Name:        "Schedule Change",
		Description: "Daily stretching that moves to Mon/Wed/Fri, history preserved",
	},
}

type scenarioLoader func(h *Handler, ctx context.Context) error

var loaders = map[string]scenarioLoader{
	"daily-meditation": (*Handler).loadDailyMeditationScenario,
	"gym-weekly-quota": (*Handler).loadGymQuotaScenario,
	"monthly-rent":     (*Handler).loadMonthlyRentScenario,
	"schedule-change":  (*Handler).loadScheduleChangeScenario,
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the repository and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	load, ok := loaders[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	h.currentScenario = ""
	if err := h.Service.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset routines", err)
		return
	}
	if err := load(h, ctx); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}
	h.currentScenario = req.ScenarioID

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetRoutines drops every routine.
func (h *Handler) ResetRoutines(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Service.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset routines", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadDailyMeditationScenario(ctx context.Context) error {
	// 21 days of history. Day -8 was skipped (entered afterwards), day -7
	// was missed, everything else done. Current streak: 6, today pending.
	today := h.Service.Today()
	v, err := h.Service.Create(ctx, "Meditate 10 minutes", routine.Daily(today.AddDays(-20)))
	if err != nil {
		return err
	}
	for d := today.AddDays(-20); d < today; d++ {
		if d == today.AddDays(-8) || d == today.AddDays(-7) {
			continue
		}
		if err := h.Service.RecordCompletionOn(ctx, v.ID, d, routine.StatusDone, ""); err != nil {
			return err
		}
	}
	return h.Service.RecordCompletionOn(ctx, v.ID, today.AddDays(-8), routine.StatusSkipped, "backfilled: travel day")
}

func (h *Handler) loadGymQuotaScenario(ctx context.Context) error {
	// Four 7-day windows anchored 28 days ago. Three sessions in each
	// except the third window, which only got two.
	today := h.Service.Today()
	start := today.AddDays(-28)
	v, err := h.Service.Create(ctx, "Gym", routine.TimesPerPeriod(3, 7, start, start))
	if err != nil {
		return err
	}

	sessions := []int{0, 2, 4, 7, 9, 11, 15, 18, 21, 23, 26}
	for _, offset := range sessions {
		if err := h.Service.RecordCompletionOn(ctx, v.ID, start.AddDays(offset), routine.StatusDone, ""); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadMonthlyRentScenario(ctx context.Context) error {
	// Monthly on the 31st for six months, paid on every due day so far.
	today := h.Service.Today()
	start := today.AddDays(-183)
	v, err := h.Service.Create(ctx, "Pay rent", routine.MonthlyOnDay(31, start))
	if err != nil {
		return err
	}

	rule := routine.MonthlyOnDay(31, start)
	for d := start; d < today; d++ {
		due, err := rule.IsDue(d)
		if err != nil {
			return err
		}
		if !due {
			continue
		}
		if err := h.Service.RecordCompletionOn(ctx, v.ID, d, routine.StatusDone, "paid"); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadScheduleChangeScenario(ctx context.Context) error {
	// Daily for 14 days, then Mon/Wed/Fri from one week ago. The daily
	// history keeps its verdicts after the change.
	today := h.Service.Today()
	start := today.AddDays(-21)
	change := today.AddDays(-7)
	v, err := h.Service.Create(ctx, "Stretch", routine.Daily(start))
	if err != nil {
		return err
	}
	if err := h.Service.ChangeRule(ctx, v.ID, routine.WeeklyOn(change, time.Monday, time.Wednesday, time.Friday), change); err != nil {
		return err
	}

	for d := start; d < today; d++ {
		if d < change && d.Sub(start)%5 == 4 {
			continue // an occasional missed day before the change
		}
		if d >= change {
			switch d.Weekday() {
			case time.Monday, time.Wednesday, time.Friday:
			default:
				continue
			}
		}
		if err := h.Service.RecordCompletionOn(ctx, v.ID, d, routine.StatusDone, ""); err != nil {
			return err
		}
	}
	return nil
}
