// Package telemetry collects the per-run telemetry records serialized into
// telemetry.json and mirrors them onto OTEL metrics through the global meter
// provider. Configure the provider before a run (for example via
// clue.ConfigureOpenTelemetry); when none is configured the mirroring is a
// no-op.
package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Record types.
const (
	TypeTurn         = "turn"
	TypeTool         = "tool"
	TypeMemoryUpdate = "memory_update"
)

type (
	// Record is one telemetry entry, discriminated by Type.
	Record struct {
		Type string `json:"type"`

		// Turn records.
		Phase   string `json:"phase,omitempty"`
		Speaker string `json:"speaker,omitempty"`

		// Tool records.
		Name      string   `json:"name,omitempty"`
		Caller    string   `json:"caller,omitempty"`
		Count     *int     `json:"count,omitempty"`
		Booked    *int     `json:"booked,omitempty"`
		Requested []string `json:"requested,omitempty"`

		// Memory-update records.
		ClaimsAdded *int `json:"claims_added,omitempty"`

		LatencySeconds float64 `json:"latency_s,omitempty"`

		// Error notes for best-effort failures (persistence, hard turn
		// failures) that must not abort the run.
		Error string `json:"error,omitempty"`
	}

	// Recorder accumulates records for one run.
	Recorder struct {
		mu      sync.Mutex
		records []Record
		meter   metric.Meter
	}
)

// NewRecorder returns an empty per-run recorder.
func NewRecorder() *Recorder {
	return &Recorder{meter: otel.Meter("github.com/longplan-ai/longplan")}
}

// RecordTurn appends a turn record.
func (r *Recorder) RecordTurn(phase, speaker string, latency time.Duration) {
	r.append(Record{
		Type:           TypeTurn,
		Phase:          phase,
		Speaker:        speaker,
		LatencySeconds: latency.Seconds(),
	})
	r.timer("longplan.turn.latency", latency, "phase", phase, "speaker", speaker)
}

// RecordTool appends a tool record. count and booked are optional and appear
// only when non-negative.
func (r *Recorder) RecordTool(name, caller string, count, booked int, requested []string, latency time.Duration) {
	rec := Record{
		Type:           TypeTool,
		Name:           name,
		Caller:         caller,
		Requested:      requested,
		LatencySeconds: latency.Seconds(),
	}
	if count >= 0 {
		rec.Count = &count
	}
	if booked >= 0 {
		rec.Booked = &booked
	}
	r.append(rec)
	r.counter("longplan.tool.calls", 1, "tool", name, "caller", caller)
	r.timer("longplan.tool.latency", latency, "tool", name)
}

// RecordMemoryUpdate appends a memory_update record.
func (r *Recorder) RecordMemoryUpdate(claimsAdded int) {
	r.append(Record{Type: TypeMemoryUpdate, ClaimsAdded: &claimsAdded})
}

// RecordError appends a best-effort error note of the given type.
func (r *Recorder) RecordError(recordType, note string) {
	r.append(Record{Type: recordType, Error: note})
}

// TurnCount reports how many turn records were taken.
func (r *Recorder) TurnCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, rec := range r.records {
		if rec.Type == TypeTurn {
			n++
		}
	}
	return n
}

// Snapshot returns a copy of the records in append order.
func (r *Recorder) Snapshot() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Record(nil), r.records...)
}

// TotalLatency sums the latency of all records.
func (r *Recorder) TotalLatency() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total float64
	for _, rec := range r.records {
		total += rec.LatencySeconds
	}
	return time.Duration(total * float64(time.Second))
}

func (r *Recorder) append(rec Record) {
	r.mu.Lock()
	r.records = append(r.records, rec)
	r.mu.Unlock()
}

func (r *Recorder) counter(name string, value int64, tags ...string) {
	c, err := r.meter.Int64Counter(name)
	if err != nil {
		return
	}
	c.Add(context.Background(), value, metric.WithAttributes(tagAttrs(tags)...))
}

func (r *Recorder) timer(name string, d time.Duration, tags ...string) {
	h, err := r.meter.Float64Histogram(name)
	if err != nil {
		return
	}
	h.Record(context.Background(), d.Seconds(), metric.WithAttributes(tagAttrs(tags)...))
}

func tagAttrs(tags []string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(tags)/2)
	for i := 0; i+1 < len(tags); i += 2 {
		attrs = append(attrs, attribute.String(tags[i], tags[i+1]))
	}
	return attrs
}
