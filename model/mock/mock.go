// Package mock provides a deterministic model.Client for offline runs,
// benchmarks, and tests. Responses are derived only from the request content:
// identical conversations produce identical output.
package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/longplan-ai/longplan/model"
	"github.com/longplan-ai/longplan/profiles"
)

type (
	// Options configures the scripted behavior.
	Options struct {
		// PlanJSON is emitted (as text and structured artifact) when the
		// phase hint names FinalPlan or FinalSummary. Empty disables plan
		// emission.
		PlanJSON string

		// Responses overrides the reply for specific phases by name.
		Responses map[string]string
	}

	// Client is a deterministic offline chat client.
	Client struct {
		planJSON  string
		responses map[string]string
	}
)

// New builds a mock client.
func New(opts Options) *Client {
	return &Client{planJSON: opts.PlanJSON, responses: opts.Responses}
}

// NewWithDeterministicPlan builds a mock client whose FinalPlan output is
// derived only from the user profile.
func NewWithDeterministicPlan(user profiles.UserProfile) *Client {
	return New(Options{PlanJSON: DeterministicPlan(user)})
}

// Complete echoes the last message, emitting the scripted plan in capture
// phases.
func (c *Client) Complete(_ context.Context, req *model.Request) (*model.Response, error) {
	phase := phaseFromRequest(req)
	if text, ok := c.responses[phase]; ok {
		return &model.Response{Text: text, StopReason: "end_turn"}, nil
	}
	if c.planJSON != "" && (phase == "FinalPlan" || phase == "FinalSummary") {
		return &model.Response{
			Text:       c.planJSON,
			Structured: json.RawMessage(c.planJSON),
			StopReason: "end_turn",
		}, nil
	}
	last := ""
	for _, m := range req.Messages {
		if m.Content != "" {
			last = m.Content
		}
	}
	if len(last) > 120 {
		last = last[:120]
	}
	return &model.Response{Text: fmt.Sprintf("Ack: %s ...", last), StopReason: "end_turn"}, nil
}

// phaseFromRequest recovers the phase name from the "[phase] X | ..." hint
// line, empty when absent.
func phaseFromRequest(req *model.Request) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		content := req.Messages[i].Content
		if !strings.HasPrefix(content, "[phase] ") {
			continue
		}
		rest := strings.TrimPrefix(content, "[phase] ")
		if idx := strings.Index(rest, " |"); idx >= 0 {
			return rest[:idx]
		}
		return rest
	}
	return ""
}

// DeterministicPlan renders a schema-valid plan derived only from the user
// profile, with category items and no appointments.
func DeterministicPlan(user profiles.UserProfile) string {
	categories := []string{"sleep", "movement", "nutrition"}
	items := make([]map[string]any, 0, len(categories))
	for i, cat := range categories {
		action := fmt.Sprintf("Monthly %s habit review", cat)
		if len(user.Goals) > 0 {
			action = fmt.Sprintf("Monthly %s habit review toward: %s", cat, user.Goals[0])
		}
		items = append(items, map[string]any{
			"month":     i + 1,
			"category":  cat,
			"action":    action,
			"rationale": fmt.Sprintf("Builds %s foundations for longevity.", cat),
		})
	}
	name := user.Name
	if name == "" {
		name = "User"
	}
	doc := map[string]any{
		"user_name":  name,
		"focus_area": "Longevity foundations",
		"total_cost": 0.0,
		"items":      items,
		"disclaimers": []string{
			"This plan is educational and not medical advice.",
			"Discuss all interventions with a licensed clinician.",
		},
	}
	data, _ := json.Marshal(doc)
	return string(data)
}
