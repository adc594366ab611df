// Package profiles builds the two agent identities of a run: the Health
// Advocate (patient-side) and the Service Planner (clinic-side). Prompts are
// rendered once from the user profile and the verbatim clinic resource text
// and are immutable for the run.
package profiles

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Speaker display names.
const (
	AdvocateName = "Health Advocate"
	PlannerName  = "Service Planner"
)

// Speaker tags used in claims and telemetry.
const (
	AdvocateTag = "advocate"
	PlannerTag  = "planner"
)

type (
	// UserProfile is the immutable per-run user input.
	UserProfile struct {
		ID            string   `json:"id"`
		Name          string   `json:"name"`
		Age           int      `json:"age"`
		Goals         []string `json:"goals"`
		Constraints   []string `json:"constraints"`
		Budget        string   `json:"budget"`
		Availability  []string `json:"availability"`
		BlackoutDates []string `json:"blackout_dates"`
	}

	// Profiles holds the two rendered system prompts.
	Profiles struct {
		AdvocateSystem string
		PlannerSystem  string
	}
)

// UserID returns the booking identifier for the user: the explicit id when
// set, else the name when set, else "user".
func (u UserProfile) UserID() string {
	if u.ID != "" {
		return u.ID
	}
	if u.Name != "" {
		return u.Name
	}
	return "user"
}

// LoadUserProfile reads a UserProfile from a JSON file.
func LoadUserProfile(path string) (UserProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return UserProfile{}, fmt.Errorf("read user profile: %w", err)
	}
	var u UserProfile
	if err := json.Unmarshal(data, &u); err != nil {
		return UserProfile{}, fmt.Errorf("parse user profile: %w", err)
	}
	return u, nil
}

// LoadClinicResource reads the opaque clinic resource text.
func LoadClinicResource(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read clinic resource: %w", err)
	}
	return string(data), nil
}

// Build renders both system prompts from the user profile and clinic text.
func Build(user UserProfile, clinicText string) Profiles {
	name := displayName(user)
	goals := strings.Join(user.Goals, ", ")
	if goals == "" {
		goals = "general health and longevity"
	}
	constraints := strings.Join(user.Constraints, ", ")

	advocate := fmt.Sprintf(`You are %s for %s. You represent the patient and their interests.
Never role-play as the clinic or make promises on behalf of providers.
Your duties:
- Ensure user goals are respected: %s
- Respect constraints/budget/schedule and safety; do NOT give diagnoses or prescriptions: %s
- Prefer lifestyle/educational guidance and referrals to clinicians
- Keep tone supportive and clear; at most 4 short sentences or bullets per reply
- Encourage the planner to validate risky scientific claims with its tools
Safety:
- Non-diagnostic. Include risk disclaimers and suggest consulting a licensed clinician.`,
		AdvocateName, name, goals, constraints)

	planner := fmt.Sprintf(`You are %s for a longevity clinic. Use only services in the company resource.
Never speak as the user.
Your duties:
- Propose bundles, timelines, and costs based on eligibility rules
- Avoid contraindications and follow company policies
- Do not diagnose or prescribe; suggest consults when medical evaluation is needed
- Use the validate_claims tool for scientific claims and schedule_services for bookings
Context:
--- COMPANY RESOURCE START ---
%s
--- COMPANY RESOURCE END ---`,
		PlannerName, clinicText)

	return Profiles{AdvocateSystem: advocate, PlannerSystem: planner}
}

// SeedMessage is the fixed advocate opening derived from the user profile.
func SeedMessage(user UserProfile) string {
	age := "unknown age"
	if user.Age > 0 {
		age = fmt.Sprintf("%d", user.Age)
	}
	goals := strings.Join(user.Goals, ", ")
	if goals == "" {
		goals = "improve longevity and health span"
	}
	budget := user.Budget
	if budget == "" {
		budget = "not specified"
	}
	availability := strings.Join(user.Availability, ", ")
	if availability == "" {
		availability = "limited"
	}
	return fmt.Sprintf("I represent %s (age %s). Goals: %s. Budget: %s. Availability: %s. Let's draft a 6-month plan together.",
		displayName(user), age, goals, budget, availability)
}

func displayName(user UserProfile) string {
	if user.Name != "" {
		return user.Name
	}
	return "User"
}
