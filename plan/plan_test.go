package plan

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/longplan-ai/longplan/memory"
	"github.com/longplan-ai/longplan/scheduler"
)

const validPlanJSON = `{
  "user_name": "Ada",
  "focus_area": "Sleep & Recovery",
  "total_cost": 350.0,
  "items": [
    {"month": 1, "service": "baseline_bloodwork", "rationale": "baseline",
     "appointment": {"service": "baseline_bloodwork", "start_iso": "2025-01-03T09:00:00Z", "staff_role": "lab tech", "location": "Main Clinic", "price": 120.0}},
    {"month": 2, "service": "vo2_test",
     "appointment": {"service": "vo2_test", "start_iso": "2025-01-10T09:00:00Z", "staff_role": "coach", "location": "Main Clinic", "price": 150.0}},
    {"month": 3, "category": "sleep", "action": "Fixed wake time",
     "appointment": {"service": "lifestyle_coaching", "start_iso": "2025-02-03T09:00:00Z", "staff_role": "coach", "location": "Main Clinic", "price": 80.0}}
  ],
  "disclaimers": ["This plan is educational and not medical advice.", "Discuss all interventions with a licensed clinician."]
}`

func TestValidateAcceptsBothItemShapes(t *testing.T) {
	p, err := Validate([]byte(validPlanJSON))
	require.NoError(t, err)
	assert.Equal(t, "Ada", p.UserName)
	require.Len(t, p.Items, 3)
	assert.Equal(t, "baseline_bloodwork", p.Items[0].Service)
	assert.Equal(t, "sleep", p.Items[2].Category)
	assert.InDelta(t, 350.0, p.AppointmentCost(), 1e-9)
}

func TestValidateRejectsBadMonth(t *testing.T) {
	_, err := Validate([]byte(`{"user_name":"Ada","total_cost":0,"items":[{"month":7,"category":"sleep"}]}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema")
}

func TestValidateRejectsItemWithoutShape(t *testing.T) {
	_, err := Validate([]byte(`{"user_name":"Ada","total_cost":0,"items":[{"month":1}]}`))
	assert.Error(t, err)
}

func TestValidateRejectsMissingUser(t *testing.T) {
	_, err := Validate([]byte(`{"total_cost":0,"items":[]}`))
	assert.Error(t, err)
}

func TestValidateDefaultsDisclaimers(t *testing.T) {
	p, err := Validate([]byte(`{"user_name":"Ada","total_cost":0,"items":[]}`))
	require.NoError(t, err)
	assert.Equal(t, Disclaimers, p.Disclaimers)
}

func TestParsePlainAndFenced(t *testing.T) {
	p, err := Parse(validPlanJSON)
	require.NoError(t, err)
	assert.Equal(t, "Ada", p.UserName)

	fenced := "```json\n" + validPlanJSON + "\n```"
	p, err = Parse(fenced)
	require.NoError(t, err)
	assert.Equal(t, "Ada", p.UserName)
}

func TestParseRejectsProse(t *testing.T) {
	_, err := Parse("Here is your plan: it will be great.")
	assert.Error(t, err)
	_, err = Parse("{ not: valid json")
	assert.Error(t, err)
	_, err = Parse("")
	assert.Error(t, err)
}

func TestRoundTrip(t *testing.T) {
	p, err := Validate([]byte(validPlanJSON))
	require.NoError(t, err)
	data, err := json.Marshal(p)
	require.NoError(t, err)
	again, err := Validate(data)
	require.NoError(t, err)
	assert.Equal(t, p, again)
}

func TestCanonicalHashInputStable(t *testing.T) {
	p, err := Validate([]byte(validPlanJSON))
	require.NoError(t, err)
	a, err := p.CanonicalHashInput()
	require.NoError(t, err)
	b, err := p.CanonicalHashInput()
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestFallbackPlan(t *testing.T) {
	base := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	pool := scheduler.GenerateSlotsFrom(base, 42)

	validations := []memory.ValidationRecord{
		{Claim: memory.ClaimRecord{Text: "baseline bloodwork improves outcomes in studies"}, Validity: "true", Confidence: 0.9},
		{Claim: memory.ClaimRecord{Text: "a vo2 test lowers mortality markers"}, Validity: "true", Confidence: 0.4},
	}
	p := fallbackFrom(pool, "Ada", "u1", validations, "")

	require.Len(t, p.Items, 3)
	assert.Equal(t, EvidenceOK, p.Items[0].EvidenceFlag)
	assert.Equal(t, EvidenceLow, p.Items[1].EvidenceFlag)
	assert.Equal(t, EvidenceUnknown, p.Items[2].EvidenceFlag)

	assert.InDelta(t, 120.0+150.0+80.0, p.TotalCost, 1e-9)
	assert.InDelta(t, p.TotalCost, p.AppointmentCost(), 1e-9)

	require.Len(t, p.Warnings, 1)
	assert.Contains(t, p.Warnings[0], "lifestyle_coaching")
	assert.Contains(t, p.Warnings[0], "vo2_test")
	assert.NotContains(t, p.Warnings[0], "baseline_bloodwork,")

	assert.Equal(t, Disclaimers, p.Disclaimers)
	for i, it := range p.Items {
		assert.Equal(t, i+1, it.Month)
		require.NotNil(t, it.Appointment)
		assert.NotEmpty(t, it.Appointment.BookingID)
	}
}

func TestFallbackMonthsClamp(t *testing.T) {
	p := Fallback("Ada", "u1", nil, "")
	for _, it := range p.Items {
		assert.GreaterOrEqual(t, it.Month, 1)
		assert.LessOrEqual(t, it.Month, 6)
	}
}

func TestRenderText(t *testing.T) {
	p, err := Validate([]byte(validPlanJSON))
	require.NoError(t, err)
	p.Warnings = []string{"check with a clinician"}
	p.Items[0].EvidenceFlag = EvidenceOK

	text := p.RenderText()
	assert.Contains(t, text, "LONGEVITY PLAN SUMMARY for Ada")
	assert.Contains(t, text, "Total Cost (est.): $350.00")
	assert.Contains(t, text, "M1: baseline_bloodwork @ 2025-01-03T09:00:00Z")
	assert.Contains(t, text, "Warnings:")
	assert.Contains(t, text, "Disclaimers:")
	assert.Contains(t, text, Disclaimers[0])
}

func TestScore(t *testing.T) {
	p := &FinalPlan{Items: []Item{
		{EvidenceFlag: EvidenceOK},
		{EvidenceFlag: EvidenceOK},
		{EvidenceFlag: EvidenceLow},
		{EvidenceFlag: EvidenceUnknown},
	}}
	assert.InDelta(t, 43.8, p.Score(), 0.01)
	assert.Zero(t, (&FinalPlan{}).Score())
}
