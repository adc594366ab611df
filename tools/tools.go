// Package tools exposes the two agent-callable tools, validate_claims and
// schedule_services, with typed argument schemas. Tool telemetry is
// attributed to the invoking agent through a caller label carried in the
// request context, so concurrent runs never share attribution state.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/longplan-ai/longplan/chaos"
	"github.com/longplan-ai/longplan/memory"
	"github.com/longplan-ai/longplan/model"
	"github.com/longplan-ai/longplan/resilience"
	"github.com/longplan-ai/longplan/scheduler"
	"github.com/longplan-ai/longplan/telemetry"
	"github.com/longplan-ai/longplan/validator"
)

// Tool names.
const (
	ValidateClaimsName   = "validate_claims"
	ScheduleServicesName = "schedule_services"
)

// slotSeed is the deterministic seed used for tool-side slot pools.
const slotSeed = 42

type callerKey struct{}

// WithCaller labels ctx with the agent on whose behalf tools execute.
func WithCaller(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, callerKey{}, name)
}

// CallerFromContext returns the caller label, empty when unset.
func CallerFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(callerKey{}).(string); ok {
		return v
	}
	return ""
}

type (
	// Registry holds the per-run tool wiring.
	Registry struct {
		Memory    *memory.SharedMemory
		Recorder  *telemetry.Recorder
		Validator *validator.Client

		// BookingsPath is the bookings.json location for persistence; empty
		// disables persistence.
		BookingsPath string
	}

	validateArgs struct {
		Claims  []string `json:"claims"`
		Context string   `json:"context,omitempty"`
		URL     string   `json:"url,omitempty"`
	}

	validateResult struct {
		Claim             string  `json:"claim"`
		Validity          string  `json:"validity"`
		Confidence        float64 `json:"confidence"`
		Evidence          string  `json:"evidence,omitempty"`
		ServerUnavailable bool    `json:"server_unavailable"`
	}

	scheduleArgs struct {
		Services []string `json:"services"`
		UserID   string   `json:"user_id"`
	}
)

// Definitions advertises the tool schemas to the model.
func (r *Registry) Definitions() []model.ToolDefinition {
	return []model.ToolDefinition{
		{
			Name: ValidateClaimsName,
			Description: "Validate scientific-sounding claims for longevity/lifestyle against the validation endpoint. " +
				"Input: claims (list of strings). Output: list of {validity, confidence, evidence}.",
			InputSchema: map[string]any{
				"type":     "object",
				"required": []string{"claims"},
				"properties": map[string]any{
					"claims":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Claim sentences to validate"},
					"context": map[string]any{"type": "string", "description": "Optional surrounding context for the claims"},
					"url":     map[string]any{"type": "string", "description": "Override validation URL"},
				},
			},
		},
		{
			Name: ScheduleServicesName,
			Description: "Schedule requested clinic services into deterministic slots. " +
				"Returns the booked appointments with timestamps, staff role, and price.",
			InputSchema: map[string]any{
				"type":     "object",
				"required": []string{"services", "user_id"},
				"properties": map[string]any{
					"services": map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Services to book, e.g. baseline_bloodwork, vo2_test"},
					"user_id":  map[string]any{"type": "string", "description": "User identifier for the booking hash"},
				},
			},
		},
	}
}

// Execute routes one tool call and serializes its outcome.
func (r *Registry) Execute(ctx context.Context, call model.ToolCall) model.ToolResult {
	result := model.ToolResult{ToolCallID: call.ID, Name: call.Name}
	var payload any
	var err error
	switch call.Name {
	case ValidateClaimsName:
		payload, err = r.validateClaims(ctx, call.Input)
	case ScheduleServicesName:
		payload, err = r.scheduleServices(ctx, call.Input)
	default:
		err = fmt.Errorf("unknown tool %q", call.Name)
	}
	if err != nil {
		result.IsError = true
		result.Content = err.Error()
		return result
	}
	data, merr := json.Marshal(payload)
	if merr != nil {
		result.IsError = true
		result.Content = fmt.Sprintf("marshal tool result: %s", merr)
		return result
	}
	result.Content = string(data)
	return result
}

// validateClaims delegates to the validator client through the resilience
// tool wrapper. A hard failure degrades every claim to "unknown" with
// server_unavailable set, preserving the validator's containment contract.
func (r *Registry) validateClaims(ctx context.Context, input json.RawMessage) ([]validateResult, error) {
	var args validateArgs
	if err := json.Unmarshal(input, &args); err != nil {
		return nil, fmt.Errorf("validate_claims args: %w", err)
	}
	claims := make([]validator.Claim, len(args.Claims))
	for i, text := range args.Claims {
		claims[i] = validator.Claim{Text: text, Speaker: "planner", ContextBefore: args.Context}
	}
	client := r.Validator
	if args.URL != "" {
		client = validator.NewClient(args.URL, client.Timeout)
	}

	start := time.Now()
	validations, meta := resilience.ToolCall(ctx, func(ctx context.Context) ([]validator.Validation, error) {
		return client.Validate(ctx, claims), nil
	})
	if meta.HardFailure {
		validations = make([]validator.Validation, len(claims))
		for i, cl := range claims {
			validations[i] = validator.Validation{Claim: cl, Validity: validator.VerdictUnknown, ServerUnavailable: true}
		}
	}

	out := make([]validateResult, len(validations))
	for i, v := range validations {
		out[i] = validateResult{
			Claim:             v.Claim.Text,
			Validity:          v.Validity,
			Confidence:        v.Confidence,
			Evidence:          v.Evidence,
			ServerUnavailable: v.ServerUnavailable,
		}
		r.Memory.AddValidation(memory.ValidationRecord{
			Claim:             memory.ClaimRecord{Text: v.Claim.Text, Turn: v.Claim.TurnIndex, Speaker: v.Claim.Speaker},
			Validity:          v.Validity,
			Confidence:        v.Confidence,
			Evidence:          v.Evidence,
			ServerUnavailable: v.ServerUnavailable,
		})
	}
	r.Recorder.RecordTool(ValidateClaimsName, CallerFromContext(ctx), len(out), -1, nil, time.Since(start))
	return out, nil
}

// scheduleServices books each requested service against a fresh deterministic
// pool. Tool chaos is applied per service and a failure skips that service
// only, so a fully chaotic run yields an empty booking list rather than an
// error.
func (r *Registry) scheduleServices(ctx context.Context, input json.RawMessage) ([]*scheduler.Appointment, error) {
	var args scheduleArgs
	if err := json.Unmarshal(input, &args); err != nil {
		return nil, fmt.Errorf("schedule_services args: %w", err)
	}
	start := time.Now()
	pool := scheduler.GenerateSlots(slotSeed)
	booked := make([]*scheduler.Appointment, 0, len(args.Services))
	for _, svc := range args.Services {
		if err := chaos.ApplyToolChaos(); err != nil {
			continue
		}
		if len(scheduler.FindAvailableSlots(pool, svc, nil)) == 0 {
			continue
		}
		appt, err := scheduler.BookSlot(pool, svc, args.UserID, r.BookingsPath)
		if appt == nil {
			continue
		}
		if err != nil {
			// Persistence is best-effort; the booking stands.
			r.Recorder.RecordError(telemetry.TypeTool, err.Error())
		}
		r.Memory.AddAppointment(memory.AppointmentRecord{
			ServiceType: appt.ServiceType,
			StartISO:    appt.StartISO,
			EndISO:      appt.EndISO,
			StaffRole:   appt.StaffRole,
			Location:    appt.Location,
			Price:       appt.Price,
			BookingID:   appt.BookingID,
		})
		booked = append(booked, appt)
	}
	r.Recorder.RecordTool(ScheduleServicesName, CallerFromContext(ctx), -1, len(booked), args.Services, time.Since(start))
	return booked, nil
}
