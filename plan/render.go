package plan

import (
	"fmt"
	"strings"
)

// RenderText produces the human-readable plan summary written to
// longevity_plan_summary.txt.
func (p *FinalPlan) RenderText() string {
	var b strings.Builder
	fmt.Fprintf(&b, "LONGEVITY PLAN SUMMARY for %s\n", p.UserName)
	if p.FocusArea != "" {
		fmt.Fprintf(&b, "Focus: %s\n", p.FocusArea)
	}
	fmt.Fprintf(&b, "Total Cost (est.): $%.2f\n\n", p.TotalCost)
	b.WriteString("Appointments:\n")
	for _, it := range p.Items {
		if it.Appointment == nil {
			continue
		}
		name := it.Service
		if name == "" {
			name = it.Category
		}
		fmt.Fprintf(&b, "- M%d: %s @ %s (%s, %s) $%.2f [evidence: %s]\n",
			it.Month, name, it.Appointment.StartISO, it.Appointment.StaffRole,
			it.Appointment.Location, it.Appointment.Price, it.EvidenceFlag)
	}
	if len(p.Warnings) > 0 {
		b.WriteString("\nWarnings:\n")
		for _, w := range p.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
	}
	b.WriteString("\nDisclaimers:\n")
	for _, d := range p.Disclaimers {
		fmt.Fprintf(&b, "- %s\n", d)
	}
	return b.String()
}

// Score is the heuristic 0..100 quality grade recorded in the run index.
func (p *FinalPlan) Score() float64 {
	if len(p.Items) == 0 {
		return 0
	}
	ok, low := 0, 0
	for _, it := range p.Items {
		switch it.EvidenceFlag {
		case EvidenceOK:
			ok++
		case EvidenceLow:
			low++
		}
	}
	n := float64(len(p.Items))
	score := 100*(float64(ok)/n) - 25*(float64(low)/n)
	if score < 0 {
		score = 0
	}
	return float64(int(score*10+0.5)) / 10
}
