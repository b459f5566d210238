/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the engine's types from the external API contract: days travel as
  YYYY-MM-DD strings, ratios as fixed-point decimal strings.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Routine:
    RoutineDTO, CreateRoutineRequest, ChangeRuleRequest

  Completion:
    CompletionDTO, RecordCompletionRequest

  Progress:
    ProgressDTO, DayDTO, PeriodDTO

  Today:
    DueItemDTO, TodayDTO

  Scenarios:
    ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Validation is done by the factory and the engine, not in DTOs.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/rule.go: RuleJSON type
*/
package api

import (
	"time"

	"github.com/warp/routine-tracker/factory"
	"github.com/warp/routine-tracker/routine"
	"github.com/warp/routine-tracker/tracker"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// RoutineDTO represents a routine in API responses.
type RoutineDTO struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	CreatedOn   string             `json:"created_on"`
	CreatedAt   string             `json:"created_at"`
	Archived    bool               `json:"archived"`
	ArchivedOn  string             `json:"archived_on,omitempty"`
	ActiveRule  *factory.RuleJSON  `json:"active_rule,omitempty"`
	Rules       []factory.RuleJSON `json:"rules"`
	Completions []CompletionDTO    `json:"completions"`
}

// CreateRoutineRequest creates a routine. rule.effective_from defaults to today.
type CreateRoutineRequest struct {
	Name string           `json:"name"`
	Rule factory.RuleJSON `json:"rule"`
}

// ChangeRuleRequest schedules a new rule. effective_from defaults to
// rule.effective_from, then to today.
type ChangeRuleRequest struct {
	EffectiveFrom string           `json:"effective_from,omitempty"`
	Rule          factory.RuleJSON `json:"rule"`
}

type CompletionDTO struct {
	Day        string `json:"day"`
	Status     string `json:"status"`
	Note       string `json:"note,omitempty"`
	RecordedAt string `json:"recorded_at"`
}

// RecordCompletionRequest is the body of PUT .../completions/{day} and
// POST .../completions. For the POST form, At picks the logical day
// through the calendar and defaults to now.
type RecordCompletionRequest struct {
	Status string `json:"status"`
	Note   string `json:"note,omitempty"`
	At     string `json:"at,omitempty"` // RFC3339
}

type DayDTO struct {
	Day        string `json:"day"`
	Due        bool   `json:"due"`
	Status     string `json:"status"`
	Completion string `json:"completion,omitempty"`
	Period     *int64 `json:"period,omitempty"`
}

type PeriodDTO struct {
	Index       int64  `json:"index"`
	Start       string `json:"start"`
	End         string `json:"end"`
	Completions int    `json:"completions"`
	Quota       int    `json:"quota"`
	Ratio       string `json:"ratio"`
}

// ProgressDTO is a progress snapshot.
type ProgressDTO struct {
	RoutineID        string      `json:"routine_id"`
	From             string      `json:"from"`
	To               string      `json:"to"`
	Today            string      `json:"today"`
	CurrentStreak    int         `json:"current_streak"`
	BestStreak       int         `json:"best_streak"`
	AverageAdherence *string     `json:"average_adherence,omitempty"`
	Days             []DayDTO    `json:"days"`
	Periods          []PeriodDTO `json:"periods,omitempty"`
}

// DueItemDTO answers "is this routine due on this day".
type DueItemDTO struct {
	RoutineID  string           `json:"routine_id"`
	Name       string           `json:"name"`
	Day        string           `json:"day"`
	Rule       factory.RuleJSON `json:"rule"`
	Due        bool             `json:"due"`
	Status     string           `json:"status"`
	Completion string           `json:"completion,omitempty"`
	Period     *PeriodDTO       `json:"period,omitempty"`
}

// TodayDTO lists what is due on the current logical day.
type TodayDTO struct {
	Today          string       `json:"today"`
	Timezone       string       `json:"timezone"`
	DayStartOffset string       `json:"day_start_offset"`
	Items          []DueItemDTO `json:"items"`
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the error envelope for every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toRoutineDTO(rf *factory.RuleFactory, v tracker.View, today routine.LogicalDay) RoutineDTO {
	dto := RoutineDTO{
		ID:          string(v.ID),
		Name:        v.Name,
		CreatedOn:   v.CreatedOn.String(),
		CreatedAt:   v.CreatedAt.Format(time.RFC3339),
		Archived:    v.Archived,
		Rules:       make([]factory.RuleJSON, 0, len(v.Rules)),
		Completions: make([]CompletionDTO, 0, len(v.Completions)),
	}
	if v.ArchivedOn != nil {
		dto.ArchivedOn = v.ArchivedOn.String()
	}
	for _, r := range v.Rules {
		dto.Rules = append(dto.Rules, rf.ToJSON(r))
	}
	if r, ok := v.ActiveRule(today); ok {
		rj := rf.ToJSON(r)
		dto.ActiveRule = &rj
	}
	for _, c := range v.Completions {
		dto.Completions = append(dto.Completions, CompletionDTO{
			Day:        c.Day.String(),
			Status:     string(c.Status),
			Note:       c.Note,
			RecordedAt: c.At.Format(time.RFC3339),
		})
	}
	return dto
}

func toPeriodDTO(p routine.PeriodAdherence) PeriodDTO {
	return PeriodDTO{
		Index:       int64(p.Index),
		Start:       p.Start.String(),
		End:         p.End.String(),
		Completions: p.Completions,
		Quota:       p.Quota,
		Ratio:       p.Ratio.StringFixed(4),
	}
}

func toProgressDTO(snap routine.ProgressSnapshot) ProgressDTO {
	dto := ProgressDTO{
		RoutineID:     string(snap.RoutineID),
		From:          snap.From.String(),
		To:            snap.To.String(),
		Today:         snap.Today.String(),
		CurrentStreak: snap.CurrentStreak,
		BestStreak:    snap.BestStreak,
		Days:          make([]DayDTO, 0, len(snap.Days)),
	}
	if snap.AverageAdherence != nil {
		avg := snap.AverageAdherence.StringFixed(4)
		dto.AverageAdherence = &avg
	}
	for _, d := range snap.Days {
		day := DayDTO{
			Day:        d.Day.String(),
			Due:        d.Due,
			Status:     string(d.Status),
			Completion: string(d.Completion),
		}
		if d.Period != nil {
			idx := int64(*d.Period)
			day.Period = &idx
		}
		dto.Days = append(dto.Days, day)
	}
	for _, p := range snap.Periods {
		dto.Periods = append(dto.Periods, toPeriodDTO(p))
	}
	return dto
}

func toDueItemDTO(rf *factory.RuleFactory, item tracker.DueItem) DueItemDTO {
	dto := DueItemDTO{
		RoutineID:  string(item.RoutineID),
		Name:       item.Name,
		Day:        item.Day.String(),
		Rule:       rf.ToJSON(item.Rule),
		Due:        item.Due,
		Status:     string(item.Status),
		Completion: string(item.Completion),
	}
	if item.Period != nil {
		p := toPeriodDTO(*item.Period)
		dto.Period = &p
	}
	return dto
}
