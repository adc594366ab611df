package orchestrator

import "github.com/longplan-ai/longplan/profiles"

// Phase names in conversation order.
const (
	PhaseStart        = "Start"
	PhaseIntake       = "Intake"
	PhasePlanDraft    = "PlanDraft"
	PhasePlanReview   = "PlanReview"
	PhaseAudit        = "Audit"
	PhaseRevision     = "Revision"
	PhaseFinalPlan    = "FinalPlan"
	PhaseScheduling   = "Scheduling"
	PhaseFinalSummary = "FinalSummary"
)

// Phase pairs a conversation state with its responsible speaker.
type Phase struct {
	Name    string
	Speaker string
}

// Phases is the fixed ordered conversation state list. Each phase has exactly
// one responsible speaker; the advocate opens and closes.
var Phases = []Phase{
	{PhaseStart, profiles.AdvocateName},
	{PhaseIntake, profiles.AdvocateName},
	{PhasePlanDraft, profiles.PlannerName},
	{PhasePlanReview, profiles.AdvocateName},
	{PhaseAudit, profiles.PlannerName},
	{PhaseRevision, profiles.AdvocateName},
	{PhaseFinalPlan, profiles.PlannerName},
	{PhaseScheduling, profiles.PlannerName},
	{PhaseFinalSummary, profiles.AdvocateName},
}

// capturePhase reports whether a structured final plan is expected in this
// phase.
func capturePhase(name string) bool {
	return name == PhaseFinalPlan || name == PhaseFinalSummary
}

// speakerTag maps a speaker display name to its claim/telemetry tag.
func speakerTag(speaker string) string {
	if speaker == profiles.PlannerName {
		return profiles.PlannerTag
	}
	return profiles.AdvocateTag
}
