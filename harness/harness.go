// Package harness fans out independent phased conversations at bounded
// concurrency and aggregates latency, success, and plan-consistency metrics
// into a JSON report. Each run owns its output directory, slot pool, shared
// memory, and telemetry; the only cross-run state is the chaos snapshot and
// the validator semaphore.
package harness

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"goa.design/clue/log"

	"github.com/longplan-ai/longplan/chaos"
	"github.com/longplan-ai/longplan/orchestrator"
)

type (
	// Options configures a benchmark batch.
	Options struct {
		// NumRuns is the number of conversations to execute.
		NumRuns int

		// Concurrency bounds simultaneous runs; minimum 1.
		Concurrency int

		// Scenario labels chaos batches; Mode labels plain parallel batches.
		// A non-empty Scenario selects the chaos_{scenario}_{ts}.json report
		// name, otherwise parallel_test_{mode}_{ts}.json is used.
		Scenario string
		Mode     string

		// Run configures each conversation. OutputDir doubles as the report
		// root.
		Run orchestrator.Options
	}

	// RunRecord captures one run's outcome.
	RunRecord struct {
		RunID      string   `json:"run_id"`
		Success    bool     `json:"success"`
		LatencyMS  int64    `json:"latency_ms"`
		OutputsDir string   `json:"outputs_dir,omitempty"`
		PlanHash   string   `json:"plan_hash,omitempty"`
		Errors     []string `json:"errors"`
	}

	// Summary aggregates a batch.
	Summary struct {
		Scenario             string  `json:"scenario,omitempty"`
		Mode                 string  `json:"mode,omitempty"`
		NumRuns              int     `json:"num_runs"`
		Concurrency          int     `json:"concurrency"`
		ElapsedSeconds       float64 `json:"elapsed_s"`
		SuccessRate          float64 `json:"success_rate"`
		P50LatencyMS         int64   `json:"p50_latency_ms"`
		P95LatencyMS         int64   `json:"p95_latency_ms"`
		AvgLatencyMS         int64   `json:"avg_latency_ms"`
		PlanConsistencyScore float64 `json:"plan_consistency_score"`
		ErrorCount           int     `json:"error_count"`
		ReportPath           string  `json:"report_path,omitempty"`
	}

	report struct {
		Scenario    string       `json:"scenario,omitempty"`
		Mode        string       `json:"mode,omitempty"`
		ChaosConfig chaos.Config `json:"chaos_config"`
		Summary     *Summary     `json:"summary"`
		Runs        []RunRecord  `json:"runs"`
	}
)

// Run executes the batch and writes the report.
func Run(ctx context.Context, opts Options) (*Summary, error) {
	if opts.NumRuns <= 0 {
		return nil, fmt.Errorf("harness: num runs must be positive")
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	chaos.Refresh()

	log.Info(ctx, log.KV{K: "msg", V: "benchmark started"},
		log.KV{K: "runs", V: opts.NumRuns}, log.KV{K: "concurrency", V: opts.Concurrency})

	records := make([]RunRecord, opts.NumRuns)
	sem := make(chan struct{}, opts.Concurrency)
	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < opts.NumRuns; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			records[idx] = runOne(ctx, idx, opts.Run)
		}(i)
	}
	wg.Wait()
	elapsed := time.Since(start)

	summary := summarize(opts, records, elapsed)
	path, err := writeReport(opts, summary, records)
	if err != nil {
		return summary, fmt.Errorf("write report: %w", err)
	}
	summary.ReportPath = path
	log.Info(ctx, log.KV{K: "msg", V: "benchmark finished"},
		log.KV{K: "success_rate", V: summary.SuccessRate},
		log.KV{K: "report", V: path})
	return summary, nil
}

func runOne(ctx context.Context, idx int, runOpts orchestrator.Options) RunRecord {
	start := time.Now()
	res, err := orchestrator.Run(ctx, runOpts)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return RunRecord{
			RunID:     fmt.Sprintf("error_%d", idx),
			LatencyMS: latency,
			Errors:    []string{err.Error()},
		}
	}
	rec := RunRecord{
		RunID:      res.RunID,
		Success:    res.Success,
		LatencyMS:  latency,
		OutputsDir: res.OutputsDir,
		Errors:     append([]string{}, res.Errors...),
	}
	if res.Plan != nil {
		if h, err := planHash(res.Plan); err == nil {
			rec.PlanHash = h
		}
	}
	return rec
}

// planHash is the SHA-256 of the plan's canonical sorted-key serialization.
func planHash(p interface{ CanonicalHashInput() ([]byte, error) }) (string, error) {
	data, err := p.CanonicalHashInput()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func summarize(opts Options, records []RunRecord, elapsed time.Duration) *Summary {
	s := &Summary{
		Scenario:       opts.Scenario,
		Mode:           opts.Mode,
		NumRuns:        opts.NumRuns,
		Concurrency:    opts.Concurrency,
		ElapsedSeconds: float64(elapsed.Milliseconds()) / 1000,
	}
	successes := 0
	var latencies []int64
	var latencySum int64
	for _, r := range records {
		if r.Success {
			successes++
		}
		if len(r.Errors) > 0 {
			s.ErrorCount++
		}
		latencies = append(latencies, r.LatencyMS)
		latencySum += r.LatencyMS
	}
	s.SuccessRate = round3(float64(successes) / float64(len(records)))
	s.P50LatencyMS = percentile(latencies, 50)
	s.P95LatencyMS = percentile(latencies, 95)
	if len(latencies) > 0 {
		s.AvgLatencyMS = latencySum / int64(len(latencies))
	}
	s.PlanConsistencyScore = round3(consistency(records))
	return s
}

// percentile returns sorted[round((p/100)*(n-1))].
func percentile(values []int64, p float64) int64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]int64(nil), values...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(p/100*float64(len(sorted)-1) + 0.5)
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// consistency is the fraction of runs whose plan hash equals the modal hash.
// Ties break by first appearance.
func consistency(records []RunRecord) float64 {
	if len(records) == 0 {
		return 0
	}
	counts := make(map[string]int)
	var order []string
	for _, r := range records {
		if _, seen := counts[r.PlanHash]; !seen {
			order = append(order, r.PlanHash)
		}
		counts[r.PlanHash]++
	}
	modal := order[0]
	for _, h := range order {
		if counts[h] > counts[modal] {
			modal = h
		}
	}
	return float64(counts[modal]) / float64(len(records))
}

func writeReport(opts Options, summary *Summary, records []RunRecord) (string, error) {
	dir := filepath.Join(opts.Run.OutputDir, "tests")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	ts := time.Now().UTC().Format("20060102_150405")
	name := fmt.Sprintf("parallel_test_%s_%s.json", labelOr(opts.Mode, "baseline"), ts)
	if opts.Scenario != "" {
		name = fmt.Sprintf("chaos_%s_%s.json", opts.Scenario, ts)
	}
	path := filepath.Join(dir, name)
	payload := report{
		Scenario:    opts.Scenario,
		Mode:        opts.Mode,
		ChaosConfig: chaos.Snapshot(),
		Summary:     summary,
		Runs:        records,
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func labelOr(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func round3(v float64) float64 {
	return float64(int64(v*1000+0.5)) / 1000
}
