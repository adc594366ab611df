package telemetry

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderOrdering(t *testing.T) {
	r := NewRecorder()
	r.RecordTurn("Start", "advocate", 100*time.Millisecond)
	r.RecordTool("validate_claims", "planner", 3, -1, nil, 50*time.Millisecond)
	r.RecordMemoryUpdate(2)

	recs := r.Snapshot()
	require.Len(t, recs, 3)
	assert.Equal(t, TypeTurn, recs[0].Type)
	assert.Equal(t, TypeTool, recs[1].Type)
	assert.Equal(t, TypeMemoryUpdate, recs[2].Type)
	assert.Equal(t, 1, r.TurnCount())
}

func TestTurnCount(t *testing.T) {
	r := NewRecorder()
	r.RecordTurn("Start", "advocate", time.Millisecond)
	r.RecordTurn("Intake", "advocate", time.Millisecond)
	r.RecordTool("schedule_services", "planner", -1, 2, []string{"scan"}, time.Millisecond)
	assert.Equal(t, 2, r.TurnCount())
}

func TestToolRecordJSONShape(t *testing.T) {
	r := NewRecorder()
	r.RecordTool("schedule_services", "Service Planner", -1, 2, []string{"vo2_test", "scan"}, 10*time.Millisecond)

	data, err := json.Marshal(r.Snapshot()[0])
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "tool", m["type"])
	assert.Equal(t, "schedule_services", m["name"])
	assert.Equal(t, float64(2), m["booked"])
	assert.NotContains(t, m, "count")
	assert.NotContains(t, m, "phase")
}

func TestTotalLatency(t *testing.T) {
	r := NewRecorder()
	r.RecordTurn("Start", "advocate", 200*time.Millisecond)
	r.RecordTurn("Intake", "advocate", 300*time.Millisecond)
	assert.InDelta(t, 0.5, r.TotalLatency().Seconds(), 1e-9)
}
