package profiles

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ada = UserProfile{
	Name:         "Ada",
	Age:          40,
	Goals:        []string{"sleep"},
	Budget:       "500-1500",
	Availability: []string{"weekday-morning"},
}

func TestSeedMessage(t *testing.T) {
	got := SeedMessage(ada)
	assert.Equal(t,
		"I represent Ada (age 40). Goals: sleep. Budget: 500-1500. Availability: weekday-morning. Let's draft a 6-month plan together.",
		got)
}

func TestSeedMessageDefaults(t *testing.T) {
	got := SeedMessage(UserProfile{})
	assert.Contains(t, got, "I represent User (age unknown age)")
	assert.Contains(t, got, "Goals: improve longevity and health span")
	assert.Contains(t, got, "Budget: not specified")
	assert.Contains(t, got, "Availability: limited")
}

func TestBuildEmbedsUserAndClinic(t *testing.T) {
	p := Build(ada, "Our clinic offers VO2 testing on Tuesdays.")

	assert.Contains(t, p.AdvocateSystem, "Health Advocate for Ada")
	assert.Contains(t, p.AdvocateSystem, "sleep")
	assert.Contains(t, p.AdvocateSystem, "Non-diagnostic")
	assert.NotContains(t, p.AdvocateSystem, "COMPANY RESOURCE")

	assert.Contains(t, p.PlannerSystem, "Service Planner for a longevity clinic")
	assert.Contains(t, p.PlannerSystem, "--- COMPANY RESOURCE START ---")
	assert.Contains(t, p.PlannerSystem, "Our clinic offers VO2 testing on Tuesdays.")
	assert.Contains(t, p.PlannerSystem, "--- COMPANY RESOURCE END ---")
	assert.Contains(t, p.PlannerSystem, "validate_claims")
}

func TestUserID(t *testing.T) {
	assert.Equal(t, "u1", UserProfile{ID: "u1", Name: "Ada"}.UserID())
	assert.Equal(t, "Ada", UserProfile{Name: "Ada"}.UserID())
	assert.Equal(t, "user", UserProfile{}.UserID())
}

func TestLoadUserProfile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "user_info.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"id":"u1","name":"Ada","age":40,"goals":["sleep"],"blackout_dates":["2025-02-10"]}`), 0o644))

	u, err := LoadUserProfile(path)
	require.NoError(t, err)
	assert.Equal(t, "Ada", u.Name)
	assert.Equal(t, []string{"2025-02-10"}, u.BlackoutDates)

	_, err = LoadUserProfile(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestLoadClinicResource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "company_resource.txt")
	require.NoError(t, os.WriteFile(path, []byte("resource text"), 0o644))

	text, err := LoadClinicResource(path)
	require.NoError(t, err)
	assert.Equal(t, "resource text", text)
}
