// Package runstore persists the artifact set of one run: the transcript,
// final plan renditions, validity checks, telemetry, bookings, and a
// composite manifest, plus the bounded global run index used by discovery
// layers. Every write is best-effort: a persistence failure is logged and
// recorded, never fatal to the in-memory run.
package runstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"goa.design/clue/log"

	"github.com/longplan-ai/longplan/memory"
	"github.com/longplan-ai/longplan/plan"
	"github.com/longplan-ai/longplan/telemetry"
)

// Artifact file names within a run directory.
const (
	TranscriptFile  = "conversation_history.txt"
	FinalPlanFile   = "final_plan.json"
	SummaryJSONFile = "longevity_plan_summary.json"
	SummaryTextFile = "longevity_plan_summary.txt"
	ValidityFile    = "scientific_validity_checks.json"
	TelemetryFile   = "telemetry.json"
	BookingsFile    = "bookings.json"
	ManifestFile    = "manifest.json"

	indexFile     = "run_index.json"
	indexCapacity = 200
)

type (
	// Store owns one run's directory under the data root.
	Store struct {
		root string
		dir  string
	}

	// IndexEntry is the compact per-run record kept in run_index.json.
	IndexEntry struct {
		ID         string  `json:"id"`
		RunID      string  `json:"run_id"`
		Timestamp  string  `json:"timestamp"`
		User       string  `json:"user"`
		Status     string  `json:"status"`
		PlanScore  float64 `json:"plan_score"`
		OutputsDir string  `json:"outputs_dir"`
	}

	// Manifest is the composite per-run document.
	Manifest struct {
		ID           string                    `json:"id"`
		Summary      *plan.FinalPlan           `json:"summary"`
		Telemetry    []telemetry.Record        `json:"telemetry"`
		Validations  []memory.ValidationRecord `json:"validations"`
		Conversation string                    `json:"conversation"`
		Bookings     json.RawMessage           `json:"bookings"`
	}
)

// New creates the per-run directory longevity_plan_{YYYYMMDD_HHMMSS} under
// root. Concurrent runs starting within the same second get a numeric suffix
// so every run keeps an isolated directory.
func New(root string, now time.Time) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create data root: %w", err)
	}
	base := filepath.Join(root, fmt.Sprintf("longevity_plan_%s", now.UTC().Format("20060102_150405")))
	dir := base
	for i := 1; ; i++ {
		err := os.Mkdir(dir, 0o755)
		if err == nil {
			return &Store{root: root, dir: dir}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("create run dir: %w", err)
		}
		dir = fmt.Sprintf("%s_%d", base, i)
	}
}

// Dir returns the run directory path.
func (s *Store) Dir() string { return s.dir }

// ID returns the run directory name.
func (s *Store) ID() string { return filepath.Base(s.dir) }

// BookingsPath returns the bookings.json path for scheduler persistence.
func (s *Store) BookingsPath() string { return filepath.Join(s.dir, BookingsFile) }

// AppendTranscript appends one "{speaker}: {text}" line and flushes. Line
// breaks inside text are written as spaces so each turn stays on one line.
func (s *Store) AppendTranscript(speaker, text string) error {
	f, err := os.OpenFile(filepath.Join(s.dir, TranscriptFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()
	line := strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(text)
	if _, err := fmt.Fprintf(f, "%s: %s\n", speaker, line); err != nil {
		return fmt.Errorf("append transcript: %w", err)
	}
	return nil
}

// SaveJSON writes v as indented JSON to the named artifact.
func (s *Store) SaveJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// SaveText writes a text artifact.
func (s *Store) SaveText(name, text string) error {
	if err := os.WriteFile(filepath.Join(s.dir, name), []byte(text), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// Transcript reads back the transcript file, empty when missing.
func (s *Store) Transcript() string {
	data, err := os.ReadFile(filepath.Join(s.dir, TranscriptFile))
	if err != nil {
		return ""
	}
	return string(data)
}

// WriteManifest assembles and writes the composite manifest from the run's
// state and artifacts already on disk.
func (s *Store) WriteManifest(summary *plan.FinalPlan, records []telemetry.Record, validations []memory.ValidationRecord) error {
	bookings := json.RawMessage("[]")
	if data, err := os.ReadFile(s.BookingsPath()); err == nil && json.Valid(data) {
		bookings = data
	}
	m := Manifest{
		ID:           s.ID(),
		Summary:      summary,
		Telemetry:    records,
		Validations:  validations,
		Conversation: s.Transcript(),
		Bookings:     bookings,
	}
	return s.SaveJSON(ManifestFile, m)
}

// AppendIndex prepends the entry to {root}/run_index.json, deduplicating by
// run directory id, capping at 200 entries, and rewriting atomically. A
// corrupt existing index is treated as empty.
func (s *Store) AppendIndex(entry IndexEntry) error {
	path := filepath.Join(s.root, indexFile)
	var existing []IndexEntry
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &existing); err != nil {
			existing = nil
		}
	}
	kept := make([]IndexEntry, 0, len(existing)+1)
	kept = append(kept, entry)
	for _, e := range existing {
		if e.ID == entry.ID {
			continue
		}
		kept = append(kept, e)
	}
	if len(kept) > indexCapacity {
		kept = kept[:indexCapacity]
	}
	data, err := json.MarshalIndent(kept, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run index: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write run index: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace run index: %w", err)
	}
	return nil
}

// Persist is the best-effort write helper used by the orchestrator: failures
// are logged and noted in telemetry, never propagated.
func Persist(ctx context.Context, rec *telemetry.Recorder, op string, err error) {
	if err == nil {
		return
	}
	log.Warn(ctx, log.KV{K: "msg", V: "persistence failure"},
		log.KV{K: "op", V: op}, log.KV{K: "err", V: err.Error()})
	if rec != nil {
		rec.RecordError("tool", fmt.Sprintf("persistence: %s: %s", op, err))
	}
}
