package factory_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/routine-tracker/factory"
	"github.com/warp/routine-tracker/routine"
)

func day(t *testing.T, s string) routine.LogicalDay {
	t.Helper()
	d, err := routine.ParseDay(s)
	require.NoError(t, err)
	return d
}

func TestParseRule_AllKinds(t *testing.T) {
	f := factory.NewRuleFactory()

	tests := []struct {
		name string
		json string
		want routine.Rule
	}{
		{
			name: "daily",
			json: `{"kind": "daily", "effective_from": "2025-03-01"}`,
			want: routine.Daily(day(t, "2025-03-01")),
		},
		{
			name: "every n days, anchor defaults to effective_from",
			json: `{"kind": "every_n_days", "effective_from": "2025-03-01", "interval": 3}`,
			want: routine.EveryNDays(3, day(t, "2025-03-01"), day(t, "2025-03-01")),
		},
		{
			name: "weekly",
			json: `{"kind": "weekly_on_days", "effective_from": "2025-03-01", "weekdays": ["mon", "Wednesday", "FRI"]}`,
			want: routine.WeeklyOn(day(t, "2025-03-01"), time.Monday, time.Wednesday, time.Friday),
		},
		{
			name: "monthly",
			json: `{"kind": "monthly_on_day", "effective_from": "2025-01-01", "day_of_month": 31}`,
			want: routine.MonthlyOnDay(31, day(t, "2025-01-01")),
		},
		{
			name: "quota with explicit anchor",
			json: `{"kind": "times_per_period", "effective_from": "2025-03-01", "count": 3, "period_days": 7, "anchor": "2025-03-03"}`,
			want: routine.TimesPerPeriod(3, 7, day(t, "2025-03-03"), day(t, "2025-03-01")),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.ParseRule(tt.json)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			// ToJSON feeds back into FromJSON unchanged
			back, err := f.FromJSON(f.ToJSON(got))
			require.NoError(t, err)
			assert.Equal(t, got, back)
		})
	}
}

func TestParseRule_Rejects(t *testing.T) {
	f := factory.NewRuleFactory()

	tests := []struct {
		name string
		json string
	}{
		{"unknown kind", `{"kind": "hourly"}`},
		{"zero interval", `{"kind": "every_n_days", "interval": 0}`},
		{"bad weekday", `{"kind": "weekly_on_days", "weekdays": ["funday"]}`},
		{"no weekdays", `{"kind": "weekly_on_days"}`},
		{"bad date", `{"kind": "daily", "effective_from": "03/01/2025"}`},
		{"day 32", `{"kind": "monthly_on_day", "day_of_month": 32}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.ParseRule(tt.json)
			assert.ErrorIs(t, err, routine.ErrInvalidRule)
			assert.True(t, routine.IsClientError(err))
		})
	}

	_, err := f.ParseRule(`{not json`)
	assert.Error(t, err)
}

func TestEncodeState_RestoresToIdenticalProgress(t *testing.T) {
	// GIVEN: A routine with a rule change, edits and an archive
	f := factory.NewRuleFactory()
	at := time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)
	start := day(t, "2025-03-01")

	r, err := routine.New("rt-1", "Gym", routine.WeeklyOn(start, time.Monday, time.Thursday), at)
	require.NoError(t, err)
	require.NoError(t, r.AddRuleChange(routine.TimesPerPeriod(3, 7, start, 0), start.AddDays(14)))
	require.NoError(t, r.RecordCompletion(start.AddDays(2), routine.StatusDone, at, "legs"))
	require.NoError(t, r.RecordCompletion(start.AddDays(5), routine.StatusSkipped, at, ""))
	require.NoError(t, r.RecordCompletion(start.AddDays(15), routine.StatusDone, at, ""))
	require.NoError(t, r.RemoveCompletion(start.AddDays(5), at))
	require.NoError(t, r.Archive(start.AddDays(30), at.AddDate(0, 1, 0)))

	// WHEN: State is encoded and decoded
	data, err := f.EncodeState(r.State())
	require.NoError(t, err)
	decoded, err := f.DecodeState(data)
	require.NoError(t, err)
	restored, err := routine.Restore(decoded)
	require.NoError(t, err)

	// THEN: Everything the engine reads survives
	assert.Equal(t, r.Rules(), restored.Rules())
	assert.Equal(t, r.State().Completions, decoded.Completions)
	assert.Equal(t, r.State().Edits, decoded.Edits)
	require.NotNil(t, decoded.ArchivedOn)
	assert.Equal(t, start.AddDays(30), *decoded.ArchivedOn)

	opts := routine.Options{Today: start.AddDays(40)}
	want, err := r.ProgressSnapshot(start, start.AddDays(40), opts)
	require.NoError(t, err)
	got, err := restored.ProgressSnapshot(start, start.AddDays(40), opts)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDecodeState_Malformed(t *testing.T) {
	f := factory.NewRuleFactory()

	_, err := f.DecodeState([]byte(`{"id": "x", "rules": [{"kind": "nope"}]}`))
	assert.ErrorIs(t, err, routine.ErrInvalidRule)

	_, err = f.DecodeState([]byte(`{"id": "x", "completions": [{"day": "yesterday"}]}`))
	assert.Error(t, err)

	_, err = f.DecodeState([]byte(`[]`))
	assert.Error(t, err)
}
