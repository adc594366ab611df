// Package memory provides the append-only shared memory carried across the
// two-agent conversation: facts, extracted claims, validations, appointments,
// and decisions. Each turn renders a compact brief of the current state for
// injection into the next prompt.
package memory

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

type (
	// ClaimRecord is the compact claim form kept in shared memory.
	ClaimRecord struct {
		Text    string `json:"text"`
		Turn    int    `json:"turn"`
		Speaker string `json:"speaker"`
	}

	// ValidationRecord is the flattened validation payload kept in shared
	// memory and persisted to scientific_validity_checks.json.
	ValidationRecord struct {
		Claim             ClaimRecord `json:"claim"`
		Validity          string      `json:"validity"`
		Confidence        float64     `json:"confidence"`
		Evidence          string      `json:"evidence,omitempty"`
		ServerUnavailable bool        `json:"server_unavailable"`
	}

	// AppointmentRecord mirrors a booked appointment.
	AppointmentRecord struct {
		ServiceType string  `json:"service_type"`
		StartISO    string  `json:"start_iso"`
		EndISO      string  `json:"end_iso"`
		StaffRole   string  `json:"staff_role"`
		Location    string  `json:"location"`
		Price       float64 `json:"price"`
		BookingID   string  `json:"booking_id"`
	}

	// SharedMemory accumulates run state. Collections are append-only for the
	// lifetime of a run; a mutex guards access because tool executions touch
	// memory from within the agent loop.
	SharedMemory struct {
		mu           sync.Mutex
		facts        map[string]any
		factOrder    []string
		claims       []ClaimRecord
		validations  []ValidationRecord
		appointments []AppointmentRecord
		decisions    []string
	}
)

// New returns an empty SharedMemory.
func New() *SharedMemory {
	return &SharedMemory{facts: make(map[string]any)}
}

// AddFact records a key/value fact. Re-adding a key overwrites the value but
// keeps its original position in the brief.
func (m *SharedMemory) AddFact(key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.facts[key]; !ok {
		m.factOrder = append(m.factOrder, key)
	}
	m.facts[key] = value
}

// AddClaim appends an extracted claim.
func (m *SharedMemory) AddClaim(c ClaimRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.claims = append(m.claims, c)
}

// AddValidation appends a claim validation.
func (m *SharedMemory) AddValidation(v ValidationRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.validations = append(m.validations, v)
}

// AddAppointment appends a booked appointment.
func (m *SharedMemory) AddAppointment(a AppointmentRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appointments = append(m.appointments, a)
}

// AddDecision appends a decision string.
func (m *SharedMemory) AddDecision(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions = append(m.decisions, text)
}

// Claims returns a copy of the recorded claims.
func (m *SharedMemory) Claims() []ClaimRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ClaimRecord(nil), m.claims...)
}

// Validations returns a copy of the recorded validations.
func (m *SharedMemory) Validations() []ValidationRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ValidationRecord(nil), m.validations...)
}

// Appointments returns a copy of the recorded appointments.
func (m *SharedMemory) Appointments() []AppointmentRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]AppointmentRecord(nil), m.appointments...)
}

// RenderBrief produces the single-line memory summary injected into prompts.
// Only non-empty sections appear, joined by " | "; "(empty)" is the fallback.
func (m *SharedMemory) RenderBrief() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var parts []string
	if len(m.facts) > 0 {
		keys := append([]string(nil), m.factOrder...)
		if len(keys) == 0 {
			for k := range m.facts {
				keys = append(keys, k)
			}
			sort.Strings(keys)
		}
		parts = append(parts, fmt.Sprintf("facts: [%s]", strings.Join(keys, " ")))
	}
	if n := len(m.appointments); n > 0 {
		recent := m.appointments
		if n > 3 {
			recent = recent[n-3:]
		}
		names := make([]string, len(recent))
		for i, a := range recent {
			names[i] = a.ServiceType
		}
		parts = append(parts, fmt.Sprintf("recent_appointments: [%s]", strings.Join(names, " ")))
	}
	if len(m.claims) > 0 {
		parts = append(parts, fmt.Sprintf("claims_collected: %d", len(m.claims)))
	}
	if len(m.validations) > 0 {
		ok := 0
		for _, v := range m.validations {
			if v.Validity == "true" {
				ok++
			}
		}
		parts = append(parts, fmt.Sprintf("validated_true: %d/%d", ok, len(m.validations)))
	}
	if n := len(m.decisions); n > 0 {
		recent := m.decisions
		if n > 2 {
			recent = recent[n-2:]
		}
		parts = append(parts, fmt.Sprintf("decisions: [%s]", strings.Join(recent, "; ")))
	}
	if len(parts) == 0 {
		return "(empty)"
	}
	return strings.Join(parts, " | ")
}
