// Package resilience wraps LLM and tool invocations with chaos injection and
// bounded exponential-backoff retries. Callers receive the result together
// with retry metadata instead of an error: a hard failure after exhaustion is
// reported through Meta.HardFailure so the orchestrator can degrade the turn
// rather than abort the run.
package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/longplan-ai/longplan/chaos"
)

// MaxRetries is the number of retries after the initial attempt.
const MaxRetries = 3

// Meta describes the retry history of a wrapped call.
type Meta struct {
	// Retries is the number of retries consumed (0 on first-attempt success).
	Retries int `json:"retries"`

	// LastError is the stringified error from the most recent failed attempt.
	LastError string `json:"last_error,omitempty"`

	// HardFailure reports that every attempt failed and no result exists.
	HardFailure bool `json:"hard_failure,omitempty"`
}

// LLMCall invokes fn with network chaos applied before each attempt. Only
// chaos-raised failures are retried; real provider errors propagate to the
// caller through Meta with no further attempts.
func LLMCall[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, Meta) {
	var zero T
	meta := Meta{}
	for attempt := 0; ; attempt++ {
		err := chaos.ApplyNetworkChaos(ctx)
		if err == nil {
			var result T
			result, err = fn(ctx)
			if err == nil {
				meta.Retries = attempt
				return result, meta
			}
			if !errors.Is(err, chaos.ErrNetwork) {
				meta.Retries = attempt
				meta.LastError = err.Error()
				meta.HardFailure = true
				return zero, meta
			}
		}
		meta.LastError = err.Error()
		if attempt == MaxRetries {
			meta.Retries = attempt
			meta.HardFailure = true
			return zero, meta
		}
		if !sleep(ctx, backoff(attempt)) {
			meta.Retries = attempt
			meta.HardFailure = true
			return zero, meta
		}
	}
}

// ToolCall invokes fn with tool chaos then network chaos applied before each
// attempt, so tool failures dominate. Any error is retried: the chaos error
// class is treated as a superset of transient tool failures.
func ToolCall[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, Meta) {
	var zero T
	meta := Meta{}
	for attempt := 0; ; attempt++ {
		err := chaos.ApplyToolChaos()
		if err == nil {
			err = chaos.ApplyNetworkChaos(ctx)
		}
		if err == nil {
			var result T
			result, err = fn(ctx)
			if err == nil {
				meta.Retries = attempt
				return result, meta
			}
		}
		meta.LastError = err.Error()
		if attempt == MaxRetries {
			meta.Retries = attempt
			meta.HardFailure = true
			return zero, meta
		}
		if !sleep(ctx, backoff(attempt)) {
			meta.Retries = attempt
			meta.HardFailure = true
			return zero, meta
		}
	}
}

// backoff computes the delay before the next attempt: 2^attempt seconds plus
// up to half a second of jitter.
func backoff(attempt int) time.Duration {
	secs := math.Pow(2, float64(attempt)) + rand.Float64()*0.5
	return time.Duration(secs * float64(time.Second))
}

func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
