package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderBriefEmpty(t *testing.T) {
	assert.Equal(t, "(empty)", New().RenderBrief())
}

func TestRenderBriefSections(t *testing.T) {
	m := New()
	m.AddFact("user_name", "Ada")
	m.AddFact("goals", []string{"sleep"})
	m.AddClaim(ClaimRecord{Text: "claim one", Turn: 0, Speaker: "planner"})
	m.AddClaim(ClaimRecord{Text: "claim two", Turn: 1, Speaker: "advocate"})
	m.AddValidation(ValidationRecord{Validity: "true", Confidence: 0.9})
	m.AddValidation(ValidationRecord{Validity: "unknown"})
	m.AddAppointment(AppointmentRecord{ServiceType: "vo2_test"})
	m.AddDecision("prefer morning slots")

	brief := m.RenderBrief()
	assert.Contains(t, brief, "facts: [user_name goals]")
	assert.Contains(t, brief, "recent_appointments: [vo2_test]")
	assert.Contains(t, brief, "claims_collected: 2")
	assert.Contains(t, brief, "validated_true: 1/2")
	assert.Contains(t, brief, "decisions: [prefer morning slots]")
	assert.Contains(t, brief, " | ")
}

func TestRenderBriefTrimsRecents(t *testing.T) {
	m := New()
	for _, svc := range []string{"a", "b", "c", "d"} {
		m.AddAppointment(AppointmentRecord{ServiceType: svc})
	}
	for _, d := range []string{"d1", "d2", "d3"} {
		m.AddDecision(d)
	}
	brief := m.RenderBrief()
	assert.Contains(t, brief, "recent_appointments: [b c d]")
	assert.Contains(t, brief, "decisions: [d2; d3]")
	assert.NotContains(t, brief, "d1")
}

func TestFactsKeepInsertionOrder(t *testing.T) {
	m := New()
	m.AddFact("b", 1)
	m.AddFact("a", 2)
	m.AddFact("b", 3)
	assert.Contains(t, m.RenderBrief(), "facts: [b a]")
}

func TestAccessorsCopy(t *testing.T) {
	m := New()
	m.AddClaim(ClaimRecord{Text: "x"})
	claims := m.Claims()
	claims[0].Text = "mutated"
	assert.Equal(t, "x", m.Claims()[0].Text)
}
