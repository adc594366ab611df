// Package plan defines the structured FinalPlan negotiated by the two agents,
// its JSON Schema validation, and the deterministic fallback built when the
// agents never yield a valid structured plan.
package plan

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Evidence flags attached to plan items.
const (
	EvidenceOK      = "ok"
	EvidenceLow     = "low"
	EvidenceUnknown = "unknown"
)

// Disclaimers present on every plan.
var Disclaimers = []string{
	"This plan is educational and not medical advice.",
	"Discuss all interventions with a licensed clinician.",
}

type (
	// Appointment is the plan-level rendition of a booked slot.
	Appointment struct {
		Service   string  `json:"service,omitempty"`
		StartISO  string  `json:"start_iso"`
		EndISO    string  `json:"end_iso,omitempty"`
		StaffRole string  `json:"staff_role"`
		Location  string  `json:"location"`
		Price     float64 `json:"price"`
		BookingID string  `json:"booking_id,omitempty"`
	}

	// Item is one entry of the 6-month plan. Category carries a plan-level
	// category (sleep, movement, nutrition, stress); Service carries the
	// service label when an appointment is attached; the two shapes share one
	// type.
	Item struct {
		Month        int          `json:"month"`
		Category     string       `json:"category,omitempty"`
		Service      string       `json:"service,omitempty"`
		Action       string       `json:"action,omitempty"`
		Rationale    string       `json:"rationale,omitempty"`
		Appointment  *Appointment `json:"appointment,omitempty"`
		EvidenceFlag string       `json:"evidence_flag,omitempty"`
	}

	// FinalPlan is the structured outcome of a run.
	FinalPlan struct {
		UserName    string   `json:"user_name"`
		FocusArea   string   `json:"focus_area,omitempty"`
		TotalCost   float64  `json:"total_cost"`
		Items       []Item   `json:"items"`
		Warnings    []string `json:"warnings,omitempty"`
		Disclaimers []string `json:"disclaimers"`
	}
)

// schemaJSON is the validation schema for agent-produced plans. Items accept
// the category-shaped and the service-shaped variant.
const schemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["user_name", "total_cost", "items"],
  "properties": {
    "user_name": {"type": "string", "minLength": 1},
    "focus_area": {"type": "string"},
    "total_cost": {"type": "number", "minimum": 0},
    "items": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["month"],
        "properties": {
          "month": {"type": "integer", "minimum": 1, "maximum": 6},
          "category": {"type": "string"},
          "service": {"type": "string"},
          "action": {"type": "string"},
          "rationale": {"type": ["string", "null"]},
          "evidence_flag": {"enum": ["ok", "low", "unknown", null]},
          "evidence": {"type": ["string", "null"]},
          "appointment": {
            "type": ["object", "null"],
            "properties": {
              "service": {"type": "string"},
              "start_iso": {"type": "string"},
              "end_iso": {"type": "string"},
              "staff_role": {"type": "string"},
              "location": {"type": "string"},
              "price": {"type": "number", "minimum": 0},
              "booking_id": {"type": "string"}
            }
          }
        },
        "anyOf": [
          {"required": ["category"]},
          {"required": ["service"]}
        ]
      }
    },
    "warnings": {"type": ["array", "null"], "items": {"type": "string"}},
    "disclaimers": {"type": "array", "items": {"type": "string"}}
  }
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		var doc any
		if err := json.Unmarshal([]byte(schemaJSON), &doc); err != nil {
			schemaErr = fmt.Errorf("unmarshal plan schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("final_plan.json", doc); err != nil {
			schemaErr = fmt.Errorf("add plan schema resource: %w", err)
			return
		}
		schema, schemaErr = c.Compile("final_plan.json")
	})
	return schema, schemaErr
}

// Validate checks raw JSON against the FinalPlan schema and decodes it.
func Validate(raw []byte) (*FinalPlan, error) {
	sch, err := compiledSchema()
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("plan is not valid JSON: %w", err)
	}
	if err := sch.Validate(doc); err != nil {
		return nil, fmt.Errorf("plan schema validation: %w", err)
	}
	var p FinalPlan
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	if len(p.Disclaimers) == 0 {
		p.Disclaimers = append([]string(nil), Disclaimers...)
	}
	return &p, nil
}

// Parse attempts to extract a FinalPlan from free-form agent text. The text
// must be a JSON object, optionally wrapped in a Markdown code fence.
func Parse(text string) (*FinalPlan, error) {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
		trimmed = strings.TrimSpace(trimmed)
	}
	if trimmed == "" || trimmed[0] != '{' {
		return nil, fmt.Errorf("text does not contain a JSON plan")
	}
	return Validate([]byte(trimmed))
}

// AppointmentCost sums the appointment prices across items, each counted
// exactly once.
func (p *FinalPlan) AppointmentCost() float64 {
	var total float64
	for _, it := range p.Items {
		if it.Appointment != nil {
			total += it.Appointment.Price
		}
	}
	return total
}

// CanonicalHashInput serializes the plan as canonical JSON (sorted keys, no
// insignificant whitespace) for consistency hashing.
func (p *FinalPlan) CanonicalHashInput() ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	// encoding/json sorts map keys on marshal.
	return json.Marshal(doc)
}
