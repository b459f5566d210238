package export

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/warp/routine-tracker/routine"
)

type jsonExport struct {
	ExportedAt       string       `json:"exported_at"`
	RoutineID        string       `json:"routine_id"`
	From             string       `json:"from"`
	To               string       `json:"to"`
	Today            string       `json:"today"`
	CurrentStreak    int          `json:"current_streak"`
	BestStreak       int          `json:"best_streak"`
	AverageAdherence string       `json:"average_adherence,omitempty"`
	Days             []jsonDay    `json:"days"`
	Periods          []jsonPeriod `json:"periods,omitempty"`
}

type jsonDay struct {
	Day        string `json:"day"`
	Due        bool   `json:"due"`
	Status     string `json:"status"`
	Completion string `json:"completion,omitempty"`
	Period     *int64 `json:"period,omitempty"`
}

type jsonPeriod struct {
	Index       int64  `json:"index"`
	Start       string `json:"start"`
	End         string `json:"end"`
	Completions int    `json:"completions"`
	Quota       int    `json:"quota"`
	Ratio       string `json:"ratio"`
}

// ToJSON writes snap as an indented document stamped with exportedAt.
func ToJSON(w io.Writer, snap routine.ProgressSnapshot, exportedAt time.Time) error {
	export := jsonExport{
		ExportedAt:    exportedAt.UTC().Format(time.RFC3339),
		RoutineID:     string(snap.RoutineID),
		From:          snap.From.String(),
		To:            snap.To.String(),
		Today:         snap.Today.String(),
		CurrentStreak: snap.CurrentStreak,
		BestStreak:    snap.BestStreak,
		Days:          make([]jsonDay, 0, len(snap.Days)),
	}
	if snap.AverageAdherence != nil {
		export.AverageAdherence = snap.AverageAdherence.StringFixed(4)
	}

	for _, d := range snap.Days {
		day := jsonDay{
			Day:        d.Day.String(),
			Due:        d.Due,
			Status:     string(d.Status),
			Completion: string(d.Completion),
		}
		if d.Period != nil {
			idx := int64(*d.Period)
			day.Period = &idx
		}
		export.Days = append(export.Days, day)
	}
	for _, p := range snap.Periods {
		export.Periods = append(export.Periods, jsonPeriod{
			Index:       int64(p.Index),
			Start:       p.Start.String(),
			End:         p.End.String(),
			Completions: p.Completions,
			Quota:       p.Quota,
			Ratio:       p.Ratio.StringFixed(4),
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(export); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}
