package chaos

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledHooksAreNoOps(t *testing.T) {
	Set(Config{Enabled: false, NetworkFailProb: 1, ToolFailProb: 1, LLMBadOutputProb: 1, JitterMinMS: 500, JitterMaxMS: 1000})
	t.Cleanup(Refresh)

	start := time.Now()
	require.NoError(t, ApplyNetworkChaos(context.Background()))
	require.NoError(t, ApplyToolChaos())
	assert.Equal(t, "hello world", MaybeCorruptOutput("hello world"))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestNetworkChaosAlwaysFails(t *testing.T) {
	Set(Config{Enabled: true, NetworkFailProb: 1, JitterMinMS: 0, JitterMaxMS: 0})
	t.Cleanup(Refresh)

	err := ApplyNetworkChaos(context.Background())
	require.ErrorIs(t, err, ErrNetwork)
}

func TestToolChaosAlwaysFails(t *testing.T) {
	Set(Config{Enabled: true, ToolFailProb: 1})
	t.Cleanup(Refresh)

	require.ErrorIs(t, ApplyToolChaos(), ErrTool)
}

func TestNetworkChaosHonorsContext(t *testing.T) {
	Set(Config{Enabled: true, JitterMinMS: 5000, JitterMaxMS: 5000})
	t.Cleanup(Refresh)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := ApplyNetworkChaos(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCorruptOutputShapes(t *testing.T) {
	Set(Config{Enabled: true, LLMBadOutputProb: 1})
	t.Cleanup(Refresh)

	text := "a scientific-sounding sentence about longevity planning"
	for range 50 {
		out := MaybeCorruptOutput(text)
		switch out {
		case "", "{ not: valid json":
		default:
			assert.Equal(t, text[:len(text)/2], out)
		}
	}
}

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("CHAOS_MODE", "")
	t.Setenv("CHAOS_JITTER_MIN_MS", "")
	t.Setenv("CHAOS_JITTER_MAX_MS", "")

	cfg := FromEnv()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, 200, cfg.JitterMinMS)
	assert.Equal(t, 1000, cfg.JitterMaxMS)
	assert.Zero(t, cfg.NetworkFailProb)
}

func TestFromEnvParsesValues(t *testing.T) {
	t.Setenv("CHAOS_MODE", "1")
	t.Setenv("CHAOS_JITTER_MIN_MS", "10")
	t.Setenv("CHAOS_JITTER_MAX_MS", "20")
	t.Setenv("CHAOS_NET_FAIL_PROB", "0.25")
	t.Setenv("CHAOS_TOOL_FAIL_PROB", "0.5")
	t.Setenv("CHAOS_LLM_BAD_OUTPUT_PROB", "0.75")

	cfg := FromEnv()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 10, cfg.JitterMinMS)
	assert.Equal(t, 20, cfg.JitterMaxMS)
	assert.Equal(t, 0.25, cfg.NetworkFailProb)
	assert.Equal(t, 0.5, cfg.ToolFailProb)
	assert.Equal(t, 0.75, cfg.LLMBadOutputProb)
}
