package orchestrator

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/longplan-ai/longplan/chaos"
	"github.com/longplan-ai/longplan/memory"
	"github.com/longplan-ai/longplan/model/mock"
	"github.com/longplan-ai/longplan/profiles"
	"github.com/longplan-ai/longplan/runstore"
	"github.com/longplan-ai/longplan/telemetry"
	"github.com/longplan-ai/longplan/validator"
)

var ada = profiles.UserProfile{
	Name:         "Ada",
	Age:          40,
	Goals:        []string{"sleep"},
	Budget:       "500-1500",
	Availability: []string{"weekday-morning"},
}

// servicePlanJSON is a valid structured plan with three booked services at
// 120 + 150 + 80.
const servicePlanJSON = `{
  "user_name": "Ada",
  "focus_area": "Sleep & Recovery",
  "total_cost": 350.0,
  "items": [
    {"month": 1, "service": "baseline_bloodwork", "rationale": "baseline",
     "appointment": {"service": "baseline_bloodwork", "start_iso": "2025-01-03T09:00:00Z", "staff_role": "lab tech", "location": "Main Clinic", "price": 120.0}},
    {"month": 2, "service": "vo2_test", "rationale": "fitness",
     "appointment": {"service": "vo2_test", "start_iso": "2025-01-10T09:00:00Z", "staff_role": "coach", "location": "Main Clinic", "price": 150.0}},
    {"month": 3, "service": "lifestyle_coaching", "rationale": "habits",
     "appointment": {"service": "lifestyle_coaching", "start_iso": "2025-02-03T09:00:00Z", "staff_role": "coach", "location": "Main Clinic", "price": 80.0}}
  ],
  "disclaimers": ["This plan is educational and not medical advice.", "Discuss all interventions with a licensed clinician."]
}`

func unreachableValidator() *validator.Client {
	return validator.NewClient("http://127.0.0.1:9", 200*time.Millisecond)
}

func TestRunHappyPath(t *testing.T) {
	chaos.Set(chaos.Config{})
	t.Cleanup(chaos.Refresh)

	out := t.TempDir()
	res, err := Run(context.Background(), Options{
		Client:    mock.New(mock.Options{PlanJSON: servicePlanJSON}),
		Validator: unreachableValidator(),
		User:      ada,
		OutputDir: out,
		TurnLimit: 9,
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.NotNil(t, res.Plan)
	assert.True(t, res.Structured)
	assert.InDelta(t, 350.0, res.Plan.TotalCost, 1e-9)
	assert.InDelta(t, res.Plan.AppointmentCost(), res.Plan.TotalCost, 1e-9)

	// final_plan.json exists and matches.
	data, err := os.ReadFile(filepath.Join(res.OutputsDir, runstore.FinalPlanFile))
	require.NoError(t, err)
	var onDisk map[string]any
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Equal(t, "Ada", onDisk["user_name"])

	// One turn record per phase up to FinalPlan.
	turns := 0
	for _, rec := range res.Telemetry {
		if rec.Type == telemetry.TypeTurn {
			turns++
			assert.NotEmpty(t, rec.Phase)
			assert.NotEmpty(t, rec.Speaker)
		}
	}
	assert.Equal(t, 7, turns)
	assert.LessOrEqual(t, turns, 9)

	// Transcript has the seed line plus one line per executed phase.
	transcript, err := os.ReadFile(filepath.Join(res.OutputsDir, runstore.TranscriptFile))
	require.NoError(t, err)
	lines := 0
	for _, b := range transcript {
		if b == '\n' {
			lines++
		}
	}
	assert.Equal(t, 8, lines)

	// Remaining artifacts exist.
	for _, name := range []string{
		runstore.SummaryJSONFile, runstore.SummaryTextFile,
		runstore.ValidityFile, runstore.TelemetryFile, runstore.ManifestFile,
	} {
		_, err := os.Stat(filepath.Join(res.OutputsDir, name))
		assert.NoError(t, err, name)
	}

	// Run index records the run.
	idx, err := os.ReadFile(filepath.Join(out, "run_index.json"))
	require.NoError(t, err)
	var entries []runstore.IndexEntry
	require.NoError(t, json.Unmarshal(idx, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "success", entries[0].Status)
	assert.Equal(t, "Ada", entries[0].User)
}

func TestRunValidatorUnreachable(t *testing.T) {
	chaos.Set(chaos.Config{})
	t.Cleanup(chaos.Refresh)

	claimText := "Post-meal walks reduce mortality in observational studies show benefits."
	client := mock.New(mock.Options{Responses: map[string]string{
		"PlanDraft": claimText,
	}})

	res, err := Run(context.Background(), Options{
		Client:    client,
		Validator: unreachableValidator(),
		User:      ada,
		OutputDir: t.TempDir(),
		TurnLimit: 9,
	})
	require.NoError(t, err)
	assert.True(t, res.Success)

	data, err := os.ReadFile(filepath.Join(res.OutputsDir, runstore.ValidityFile))
	require.NoError(t, err)
	var vals []memory.ValidationRecord
	require.NoError(t, json.Unmarshal(data, &vals))
	require.Len(t, vals, 1)
	assert.Equal(t, "unknown", vals[0].Validity)
	assert.Zero(t, vals[0].Confidence)
	assert.True(t, vals[0].ServerUnavailable)
	assert.Equal(t, 2, vals[0].Claim.Turn)
	assert.Equal(t, "planner", vals[0].Claim.Speaker)
}

func TestRunChaosToolFailures(t *testing.T) {
	chaos.Set(chaos.Config{Enabled: true, ToolFailProb: 1, JitterMinMS: 0, JitterMaxMS: 0})
	t.Cleanup(chaos.Refresh)

	res, err := Run(context.Background(), Options{
		Client:    mock.New(mock.Options{PlanJSON: servicePlanJSON}),
		Validator: unreachableValidator(),
		User:      ada,
		OutputDir: t.TempDir(),
		TurnLimit: 9,
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.NotNil(t, res.Plan)
	for _, rec := range res.Telemetry {
		if rec.Type == telemetry.TypeTool && rec.Booked != nil {
			assert.Zero(t, *rec.Booked)
		}
	}
}

func TestRunFallbackPlanWhenNoStructuredOutput(t *testing.T) {
	chaos.Set(chaos.Config{})
	t.Cleanup(chaos.Refresh)

	res, err := Run(context.Background(), Options{
		Client:    mock.New(mock.Options{}),
		Validator: unreachableValidator(),
		User:      ada,
		OutputDir: t.TempDir(),
		TurnLimit: 9,
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.False(t, res.Structured)
	require.NotNil(t, res.Plan)

	// All nine phases ran.
	assert.Equal(t, 9, res.NumTurns)

	// No final_plan.json: the agents never produced a structured plan.
	_, err = os.Stat(filepath.Join(res.OutputsDir, runstore.FinalPlanFile))
	assert.True(t, os.IsNotExist(err))

	// The fallback booked the canonical services.
	require.Len(t, res.Plan.Items, 3)
	assert.InDelta(t, 350.0, res.Plan.TotalCost, 1e-9)

	data, err := os.ReadFile(filepath.Join(res.OutputsDir, runstore.BookingsFile))
	require.NoError(t, err)
	var bookings []map[string]any
	require.NoError(t, json.Unmarshal(data, &bookings))
	assert.Len(t, bookings, 3)
}

func TestRunTurnLimit(t *testing.T) {
	chaos.Set(chaos.Config{})
	t.Cleanup(chaos.Refresh)

	res, err := Run(context.Background(), Options{
		Client:    mock.New(mock.Options{}),
		Validator: unreachableValidator(),
		User:      ada,
		OutputDir: t.TempDir(),
		TurnLimit: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.NumTurns)
	turns := 0
	for _, rec := range res.Telemetry {
		if rec.Type == telemetry.TypeTurn {
			turns++
		}
	}
	assert.LessOrEqual(t, turns, 3)
}

func TestDetectRequestedServices(t *testing.T) {
	got := detectRequestedServices("We'll start with bloodwork, then a VO2 assessment and ongoing coaching. Bloodwork first.")
	assert.Equal(t, []string{"baseline_bloodwork", "vo2_test", "lifestyle_coaching"}, got)
	assert.Empty(t, detectRequestedServices("No services mentioned here."))
}

func TestPhaseTable(t *testing.T) {
	require.Len(t, Phases, 9)
	assert.Equal(t, PhaseStart, Phases[0].Name)
	assert.Equal(t, profiles.AdvocateName, Phases[0].Speaker)
	assert.Equal(t, PhaseFinalSummary, Phases[8].Name)
	assert.Equal(t, profiles.AdvocateName, Phases[8].Speaker)
	planner := 0
	for _, ph := range Phases {
		if ph.Speaker == profiles.PlannerName {
			planner++
		}
	}
	assert.Equal(t, 4, planner)
}
