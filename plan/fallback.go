package plan

import (
	"fmt"
	"sort"
	"strings"

	"github.com/longplan-ai/longplan/memory"
	"github.com/longplan-ai/longplan/scheduler"
)

// fallbackServices is the canonical service list booked when the agents never
// produce a valid structured plan.
var fallbackServices = []string{
	scheduler.ServiceBloodwork,
	scheduler.ServiceVO2Test,
	scheduler.ServiceCoaching,
}

// Fallback synthesizes a deterministic plan by booking the canonical services
// against a fresh seed-42 slot pool. Evidence flags derive from the run's
// validations; persistPath (bookings.json) may be empty to skip persistence.
func Fallback(userName, userID string, validations []memory.ValidationRecord, persistPath string) *FinalPlan {
	pool := scheduler.GenerateSlots(42)
	return fallbackFrom(pool, userName, userID, validations, persistPath)
}

func fallbackFrom(pool []*scheduler.Slot, userName, userID string, validations []memory.ValidationRecord, persistPath string) *FinalPlan {
	p := &FinalPlan{
		UserName:    userName,
		FocusArea:   "Longevity foundations",
		Disclaimers: append([]string(nil), Disclaimers...),
	}
	for i, svc := range fallbackServices {
		// A persistence error does not roll back the booking; the in-memory
		// pool is the source of truth for the run.
		appt, _ := scheduler.BookSlot(pool, svc, userID, persistPath)
		if appt == nil {
			continue
		}
		month := i + 1
		if month > 6 {
			month = 6
		}
		item := Item{
			Month:     month,
			Service:   svc,
			Rationale: fmt.Sprintf("Supports user goals via %s.", svc),
			Appointment: &Appointment{
				Service:   appt.ServiceType,
				StartISO:  appt.StartISO,
				EndISO:    appt.EndISO,
				StaffRole: appt.StaffRole,
				Location:  appt.Location,
				Price:     appt.Price,
				BookingID: appt.BookingID,
			},
			EvidenceFlag: evidenceFlag(svc, validations),
		}
		p.TotalCost += appt.Price
		p.Items = append(p.Items, item)
	}
	if uncertain := uncertainServices(p.Items); len(uncertain) > 0 {
		p.Warnings = append(p.Warnings,
			"Evidence-uncertain items present: "+strings.Join(uncertain, ", ")+". Consider clinician review.")
	}
	return p
}

// FromAppointments builds the run summary plan from appointments already
// booked through tool calls, one item per appointment in booking order.
func FromAppointments(userName string, appts []memory.AppointmentRecord, validations []memory.ValidationRecord) *FinalPlan {
	p := &FinalPlan{
		UserName:    userName,
		FocusArea:   "Longevity foundations",
		Disclaimers: append([]string(nil), Disclaimers...),
	}
	for i, a := range appts {
		month := i + 1
		if month > 6 {
			month = 6
		}
		p.TotalCost += a.Price
		p.Items = append(p.Items, Item{
			Month:     month,
			Service:   a.ServiceType,
			Rationale: fmt.Sprintf("Supports user goals via %s.", a.ServiceType),
			Appointment: &Appointment{
				Service:   a.ServiceType,
				StartISO:  a.StartISO,
				EndISO:    a.EndISO,
				StaffRole: a.StaffRole,
				Location:  a.Location,
				Price:     a.Price,
				BookingID: a.BookingID,
			},
			EvidenceFlag: evidenceFlag(a.ServiceType, validations),
		})
	}
	if uncertain := uncertainServices(p.Items); len(uncertain) > 0 {
		p.Warnings = append(p.Warnings,
			"Evidence-uncertain items present: "+strings.Join(uncertain, ", ")+". Consider clinician review.")
	}
	return p
}

// evidenceFlag grades a service by the run's validations: "ok" when a true
// verdict mentioning the service reaches confidence 0.6, "low" when mentions
// exist below that bar, "unknown" otherwise.
func evidenceFlag(serviceType string, validations []memory.ValidationRecord) string {
	label := strings.ReplaceAll(serviceType, "_", " ")
	hits := false
	best := 0.0
	for _, v := range validations {
		if !strings.Contains(strings.ToLower(v.Claim.Text), label) {
			continue
		}
		hits = true
		if v.Validity == "true" && v.Confidence > best {
			best = v.Confidence
		}
	}
	switch {
	case !hits:
		return EvidenceUnknown
	case best >= 0.6:
		return EvidenceOK
	default:
		return EvidenceLow
	}
}

func uncertainServices(items []Item) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, it := range items {
		if it.EvidenceFlag != EvidenceLow && it.EvidenceFlag != EvidenceUnknown {
			continue
		}
		name := it.Service
		if name == "" {
			name = it.Category
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
