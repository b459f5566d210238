/*
handlers.go - HTTP API handlers for the routine tracker

PURPOSE:
  Exposes the tracker service via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the tracker service.

ENDPOINTS:
  Routines:
    GET    /api/routines                          List all routines
    POST   /api/routines                          Create routine
    GET    /api/routines/{id}                     Get routine details
    POST   /api/routines/{id}/rules               Schedule a rule change
    POST   /api/routines/{id}/archive             Archive as of today

  Completions:
    POST   /api/routines/{id}/completions         Record at an instant (default now)
    PUT    /api/routines/{id}/completions/{day}   Record or backfill a day
    DELETE /api/routines/{id}/completions/{day}   Remove a day's completion

  Progress:
    GET    /api/routines/{id}/progress?from=&to=&format=   Snapshot (json, csv, export)
    GET    /api/routines/{id}/due?day=                     Due-ness on one day
    GET    /api/today                                      Everything due today

  Admin:
    POST   /api/admin/warm                        Fold all routines through today

  Scenarios:
    GET    /api/scenarios                         List demo scenarios
    GET    /api/scenarios/current                 Currently loaded scenario
    POST   /api/scenarios/load                    Load a demo scenario
    POST   /api/scenarios/reset                   Drop all routines

REQUEST FLOW:
  1. Parse HTTP request
  2. Convert JSON to engine values (factory)
  3. Call the tracker service
  4. Serialize response
  5. Map errors to status codes

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Invalid rule, status, day, range, or a day before creation
  - 404: Routine not found
  - 409: Conflict (duplicate effective date, archived routine)
  - 500: Internal errors

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/routine-tracker/export"
	"github.com/warp/routine-tracker/factory"
	"github.com/warp/routine-tracker/routine"
	"github.com/warp/routine-tracker/tracker"
)

// DefaultProgressWindow is the number of days reported when no from is given.
const DefaultProgressWindow = 30

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *tracker.Service
	Rules   *factory.RuleFactory

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler over svc.
func NewHandler(svc *tracker.Service) *Handler {
	return &Handler{
		Service: svc,
		Rules:   factory.NewRuleFactory(),
	}
}

// =============================================================================
// ROUTINE HANDLERS
// =============================================================================

// ListRoutines returns all routines.
func (h *Handler) ListRoutines(w http.ResponseWriter, r *http.Request) {
	views, err := h.Service.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list routines", err)
		return
	}

	today := h.Service.Today()
	dtos := make([]RoutineDTO, len(views))
	for i, v := range views {
		dtos[i] = toRoutineDTO(h.Rules, v, today)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetRoutine returns a single routine.
func (h *Handler) GetRoutine(w http.ResponseWriter, r *http.Request) {
	v, err := h.Service.Get(r.Context(), routineID(r))
	if err != nil {
		writeServiceError(w, "Failed to get routine", err)
		return
	}
	writeJSON(w, http.StatusOK, toRoutineDTO(h.Rules, v, h.Service.Today()))
}

// CreateRoutine creates a routine. The rule's effective_from is its creation day.
func (h *Handler) CreateRoutine(w http.ResponseWriter, r *http.Request) {
	var req CreateRoutineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	today := h.Service.Today()
	if req.Rule.EffectiveFrom == "" {
		req.Rule.EffectiveFrom = today.String()
	}
	rule, err := h.Rules.FromJSON(req.Rule)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid rule", err)
		return
	}

	v, err := h.Service.Create(r.Context(), req.Name, rule)
	if err != nil {
		writeServiceError(w, "Failed to create routine", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRoutineDTO(h.Rules, v, today))
}

// ChangeRule schedules a new rule from effective_from onward.
// POST /api/routines/{id}/rules
func (h *Handler) ChangeRule(w http.ResponseWriter, r *http.Request) {
	var req ChangeRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	effective := req.EffectiveFrom
	if effective == "" {
		effective = req.Rule.EffectiveFrom
	}
	if effective == "" {
		effective = h.Service.Today().String()
	}
	req.Rule.EffectiveFrom = effective

	rule, err := h.Rules.FromJSON(req.Rule)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid rule", err)
		return
	}

	ctx := r.Context()
	id := routineID(r)
	if err := h.Service.ChangeRule(ctx, id, rule, rule.EffectiveFrom); err != nil {
		writeServiceError(w, "Failed to change rule", err)
		return
	}
	h.writeRoutine(w, r, http.StatusOK, id)
}

// ArchiveRoutine soft-deletes a routine as of today.
// POST /api/routines/{id}/archive
func (h *Handler) ArchiveRoutine(w http.ResponseWriter, r *http.Request) {
	id := routineID(r)
	if err := h.Service.Archive(r.Context(), id); err != nil {
		writeServiceError(w, "Failed to archive routine", err)
		return
	}
	h.writeRoutine(w, r, http.StatusOK, id)
}

// =============================================================================
// COMPLETION HANDLERS
// =============================================================================

// RecordCompletionNow records a completion at an instant.
// POST /api/routines/{id}/completions
func (h *Handler) RecordCompletionNow(w http.ResponseWriter, r *http.Request) {
	var req RecordCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	at := h.Service.Now()
	if req.At != "" {
		t, err := time.Parse(time.RFC3339, req.At)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid at format (use RFC3339)", err)
			return
		}
		at = t
	}

	day, err := h.Service.RecordCompletionAt(r.Context(), routineID(r), at, routine.CompletionStatus(req.Status), req.Note)
	if err != nil {
		writeServiceError(w, "Failed to record completion", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"day": day.String(), "status": req.Status})
}

// RecordCompletion records or backfills the completion for a day.
// PUT /api/routines/{id}/completions/{day}
func (h *Handler) RecordCompletion(w http.ResponseWriter, r *http.Request) {
	day, err := routine.ParseDay(chi.URLParam(r, "day"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid day format (use YYYY-MM-DD)", err)
		return
	}

	var req RecordCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.Service.RecordCompletionOn(r.Context(), routineID(r), day, routine.CompletionStatus(req.Status), req.Note); err != nil {
		writeServiceError(w, "Failed to record completion", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"day": day.String(), "status": req.Status})
}

// RemoveCompletion deletes the completion for a day. Absent days succeed.
// DELETE /api/routines/{id}/completions/{day}
func (h *Handler) RemoveCompletion(w http.ResponseWriter, r *http.Request) {
	day, err := routine.ParseDay(chi.URLParam(r, "day"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid day format (use YYYY-MM-DD)", err)
		return
	}

	if err := h.Service.RemoveCompletion(r.Context(), routineID(r), day); err != nil {
		writeServiceError(w, "Failed to remove completion", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// PROGRESS HANDLERS
// =============================================================================

// GetProgress returns a progress snapshot.
// GET /api/routines/{id}/progress?from=YYYY-MM-DD&to=YYYY-MM-DD&format=json|csv|export
//
// to defaults to today; from defaults to DefaultProgressWindow days before to.
func (h *Handler) GetProgress(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	to := h.Service.Today()
	if s := q.Get("to"); s != "" {
		d, err := routine.ParseDay(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid to format (use YYYY-MM-DD)", err)
			return
		}
		to = d
	}
	from := to.AddDays(-(DefaultProgressWindow - 1))
	if s := q.Get("from"); s != "" {
		d, err := routine.ParseDay(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid from format (use YYYY-MM-DD)", err)
			return
		}
		from = d
	}

	snap, err := h.Service.Progress(r.Context(), routineID(r), from, to)
	if err != nil {
		writeServiceError(w, "Failed to compute progress", err)
		return
	}

	switch q.Get("format") {
	case "", "json":
		writeJSON(w, http.StatusOK, toProgressDTO(snap))
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", string(snap.RoutineID)+".csv"))
		// Headers are already sent; a write error cannot reach the client.
		_ = export.ToCSV(w, snap)
	case "export":
		w.Header().Set("Content-Type", "application/json")
		_ = export.ToJSON(w, snap, h.Service.Now())
	default:
		writeError(w, http.StatusBadRequest, "Unknown format (use json, csv or export)", nil)
	}
}

// GetDue reports due-ness and status on one day (default today).
// GET /api/routines/{id}/due?day=YYYY-MM-DD
func (h *Handler) GetDue(w http.ResponseWriter, r *http.Request) {
	day := h.Service.Today()
	if s := r.URL.Query().Get("day"); s != "" {
		d, err := routine.ParseDay(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid day format (use YYYY-MM-DD)", err)
			return
		}
		day = d
	}

	item, err := h.Service.DueOn(r.Context(), routineID(r), day)
	if err != nil {
		writeServiceError(w, "Failed to evaluate day", err)
		return
	}
	writeJSON(w, http.StatusOK, toDueItemDTO(h.Rules, item))
}

// GetToday lists the routines due on the current logical day.
// GET /api/today
func (h *Handler) GetToday(w http.ResponseWriter, r *http.Request) {
	items, err := h.Service.DueToday(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list due routines", err)
		return
	}

	cal := h.Service.Calendar()
	dto := TodayDTO{
		Today:          h.Service.Today().String(),
		Timezone:       cal.Timezone(),
		DayStartOffset: cal.DayStartOffset().String(),
		Items:          make([]DueItemDTO, 0, len(items)),
	}
	for _, item := range items {
		dto.Items = append(dto.Items, toDueItemDTO(h.Rules, item))
	}
	writeJSON(w, http.StatusOK, dto)
}

// TriggerWarm folds every active routine through today.
// POST /api/admin/warm
func (h *Handler) TriggerWarm(w http.ResponseWriter, r *http.Request) {
	n, err := h.Service.Warm(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to warm routines", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"warmed": n})
}

// =============================================================================
// HELPERS
// =============================================================================

func routineID(r *http.Request) routine.RoutineID {
	return routine.RoutineID(chi.URLParam(r, "id"))
}

func (h *Handler) writeRoutine(w http.ResponseWriter, r *http.Request, status int, id routine.RoutineID) {
	v, err := h.Service.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, "Failed to get routine", err)
		return
	}
	writeJSON(w, status, toRoutineDTO(h.Rules, v, h.Service.Today()))
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeServiceError maps engine and service errors to HTTP status codes.
// Conflicts are checked before client errors since they are both.
func writeServiceError(w http.ResponseWriter, message string, err error) {
	switch {
	case routine.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Routine not found", err)
	case routine.IsConflict(err):
		writeError(w, http.StatusConflict, message, err)
	case routine.IsClientError(err), errors.Is(err, tracker.ErrInvalidName):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
