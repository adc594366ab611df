// Package orchestrator drives one phased dual-agent conversation: the Health
// Advocate and the Service Planner alternate through a fixed phase list,
// mediated by the tool registry and the resilience wrappers, until a
// structured final plan is captured or the phase list or turn budget is
// exhausted. All run state is owned here and serialized on completion.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"goa.design/clue/log"

	"github.com/longplan-ai/longplan/chaos"
	"github.com/longplan-ai/longplan/memory"
	"github.com/longplan-ai/longplan/model"
	"github.com/longplan-ai/longplan/plan"
	"github.com/longplan-ai/longplan/profiles"
	"github.com/longplan-ai/longplan/resilience"
	"github.com/longplan-ai/longplan/runstore"
	"github.com/longplan-ai/longplan/telemetry"
	"github.com/longplan-ai/longplan/tools"
	"github.com/longplan-ai/longplan/validator"
)

// maxToolRounds bounds tool-call/resume cycles within one turn.
const maxToolRounds = 4

type (
	// Options configures a single run.
	Options struct {
		// Client is the chat provider for both agents.
		Client model.Client

		// Validator checks extracted claims; required.
		Validator *validator.Client

		// User and ClinicText are the immutable run inputs.
		User       profiles.UserProfile
		ClinicText string

		// OutputDir is the data root under which the run directory is created.
		OutputDir string

		// TurnLimit caps the number of phases executed. Defaults to 10.
		TurnLimit int

		// ModelName, Temperature and MaxTokens are passed through to the
		// provider on every completion.
		ModelName   string
		Temperature float32
		MaxTokens   int
	}

	// Result summarizes a completed run.
	Result struct {
		RunID      string             `json:"run_id"`
		OutputsDir string             `json:"outputs_dir"`
		Success    bool               `json:"success"`
		NumTurns   int                `json:"num_turns"`
		Plan       *plan.FinalPlan    `json:"plan,omitempty"`
		Structured bool               `json:"structured"`
		Telemetry  []telemetry.Record `json:"-"`
		Errors     []string           `json:"errors,omitempty"`
	}

	runState struct {
		opts     Options
		store    *runstore.Store
		mem      *memory.SharedMemory
		recorder *telemetry.Recorder
		registry *tools.Registry
		profiles profiles.Profiles
	}
)

// Run executes one phased conversation and persists its artifact set.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("orchestrator: model client is required")
	}
	if opts.Validator == nil {
		return nil, fmt.Errorf("orchestrator: validator client is required")
	}
	if opts.TurnLimit <= 0 {
		opts.TurnLimit = 10
	}

	store, err := runstore.New(opts.OutputDir, time.Now())
	if err != nil {
		return nil, err
	}
	mem := memory.New()
	mem.AddFact("user_name", opts.User.UserID())
	mem.AddFact("goals", opts.User.Goals)
	recorder := telemetry.NewRecorder()

	s := &runState{
		opts:     opts,
		store:    store,
		mem:      mem,
		recorder: recorder,
		registry: &tools.Registry{
			Memory:       mem,
			Recorder:     recorder,
			Validator:    opts.Validator,
			BookingsPath: store.BookingsPath(),
		},
		profiles: profiles.Build(opts.User, opts.ClinicText),
	}

	result := &Result{
		RunID:      fmt.Sprintf("run_%s", uuid.NewString()[:8]),
		OutputsDir: store.Dir(),
	}
	log.Info(ctx, log.KV{K: "msg", V: "run started"},
		log.KV{K: "run_id", V: result.RunID}, log.KV{K: "dir", V: store.Dir()})

	s.conversation(ctx, result)
	s.finish(ctx, result)
	return result, nil
}

// conversation runs the phase loop, filling result.Plan when a structured
// final plan is captured.
func (s *runState) conversation(ctx context.Context, result *Result) {
	seed := profiles.SeedMessage(s.opts.User)
	runstore.Persist(ctx, s.recorder, "transcript",
		s.store.AppendTranscript(profiles.AdvocateName, seed))
	prev := seed

	for i, ph := range Phases {
		if i >= s.opts.TurnLimit {
			break
		}
		hint := fmt.Sprintf("[phase] %s | [shared_memory] %s", ph.Name, s.mem.RenderBrief())
		messages := []model.Message{
			{Role: model.RoleUser, Content: prev},
			{Role: model.RoleUser, Content: hint},
		}
		system := s.profiles.AdvocateSystem
		if ph.Speaker == profiles.PlannerName {
			system = s.profiles.PlannerSystem
		}

		callCtx := tools.WithCaller(ctx, ph.Speaker)
		start := time.Now()
		resp, meta := s.converse(callCtx, system, messages)
		s.recorder.RecordTurn(ph.Name, ph.Speaker, time.Since(start))

		if meta.HardFailure {
			note := fmt.Sprintf("turn %s failed after %d retries: %s", ph.Name, meta.Retries, meta.LastError)
			result.Errors = append(result.Errors, note)
			s.recorder.RecordError(telemetry.TypeTurn, note)
			log.Warn(ctx, log.KV{K: "msg", V: "turn hard failure"},
				log.KV{K: "phase", V: ph.Name}, log.KV{K: "err", V: meta.LastError})
			result.NumTurns = i + 1
			continue
		}

		text := resp.Text
		newClaims := validator.ExtractClaims(text, i, speakerTag(ph.Speaker))
		for _, c := range newClaims {
			s.mem.AddClaim(memory.ClaimRecord{Text: c.Text, Turn: c.TurnIndex, Speaker: c.Speaker})
		}
		s.recorder.RecordMemoryUpdate(len(newClaims))

		runstore.Persist(ctx, s.recorder, "transcript",
			s.store.AppendTranscript(ph.Speaker, text))
		prev = text
		result.NumTurns = i + 1

		// The Scheduling phase expects the planner to book through the tool;
		// when it only talks about services, book the ones it named.
		if ph.Name == PhaseScheduling && len(s.mem.Appointments()) == 0 {
			if services := detectRequestedServices(text); len(services) > 0 {
				s.scheduleDetected(callCtx, services)
			}
		}

		if capturePhase(ph.Name) {
			if p, structured := s.capturePlan(resp); p != nil {
				result.Plan = p
				result.Structured = structured
				break
			}
		}
	}
}

// converse runs the completion/tool loop for one turn. Each completion goes
// through the resilience LLM wrapper; successful output passes the corruption
// hook before use.
func (s *runState) converse(ctx context.Context, system string, messages []model.Message) (*model.Response, resilience.Meta) {
	req := &model.Request{
		Model:       s.opts.ModelName,
		System:      system,
		Messages:    messages,
		Tools:       s.registry.Definitions(),
		Temperature: s.opts.Temperature,
		MaxTokens:   s.opts.MaxTokens,
	}
	var lastMeta resilience.Meta
	for round := 0; round <= maxToolRounds; round++ {
		resp, meta := resilience.LLMCall(ctx, func(ctx context.Context) (*model.Response, error) {
			return s.opts.Client.Complete(ctx, req)
		})
		lastMeta = meta
		if meta.HardFailure {
			return nil, meta
		}
		resp.Text = chaos.MaybeCorruptOutput(resp.Text)
		if len(resp.ToolCalls) == 0 || round == maxToolRounds {
			return resp, meta
		}

		results := make([]model.ToolResult, len(resp.ToolCalls))
		for i, call := range resp.ToolCalls {
			results[i] = s.registry.Execute(ctx, call)
		}
		req.Messages = append(req.Messages,
			model.Message{Role: model.RoleAssistant, Content: resp.Text, ToolCalls: resp.ToolCalls},
			model.Message{Role: model.RoleTool, ToolResults: results},
		)
	}
	return nil, lastMeta
}

// scheduleDetected issues a synthetic schedule_services call for services the
// planner described without booking.
func (s *runState) scheduleDetected(ctx context.Context, services []string) {
	input, err := json.Marshal(map[string]any{
		"services": services,
		"user_id":  s.opts.User.UserID(),
	})
	if err != nil {
		return
	}
	res := s.registry.Execute(ctx, model.ToolCall{Name: tools.ScheduleServicesName, Input: input})
	if res.IsError {
		log.Debug(ctx, log.KV{K: "msg", V: "detected-service scheduling failed"},
			log.KV{K: "err", V: res.Content})
	}
}

// capturePlan extracts a validated FinalPlan from the response: the
// structured artifact first, then JSON parsing of the text. Returns
// (nil, false) when neither validates.
func (s *runState) capturePlan(resp *model.Response) (*plan.FinalPlan, bool) {
	if len(resp.Structured) > 0 {
		p, err := plan.Validate(resp.Structured)
		if err == nil {
			return p, true
		}
		s.recorder.RecordError(telemetry.TypeTurn, fmt.Sprintf("structured plan rejected: %s", err))
	}
	if p, err := plan.Parse(resp.Text); err == nil {
		return p, false
	}
	return nil, false
}

// finish validates leftover claims, synthesizes the summary plan when the
// agents produced none, and persists the artifact set.
func (s *runState) finish(ctx context.Context, result *Result) {
	s.validateCollectedClaims(ctx)
	validations := s.mem.Validations()
	if validations == nil {
		validations = []memory.ValidationRecord{}
	}

	summary := result.Plan
	if summary == nil {
		if appts := s.mem.Appointments(); len(appts) > 0 {
			summary = plan.FromAppointments(displayName(s.opts.User), appts, validations)
		} else {
			summary = plan.Fallback(displayName(s.opts.User), s.opts.User.UserID(), validations, s.store.BookingsPath())
		}
	}
	result.Success = summary != nil
	result.Telemetry = s.recorder.Snapshot()

	if result.Plan != nil {
		runstore.Persist(ctx, s.recorder, runstore.FinalPlanFile,
			s.store.SaveJSON(runstore.FinalPlanFile, result.Plan))
	}
	runstore.Persist(ctx, s.recorder, runstore.SummaryJSONFile,
		s.store.SaveJSON(runstore.SummaryJSONFile, summary))
	runstore.Persist(ctx, s.recorder, runstore.SummaryTextFile,
		s.store.SaveText(runstore.SummaryTextFile, summary.RenderText()))
	runstore.Persist(ctx, s.recorder, runstore.ValidityFile,
		s.store.SaveJSON(runstore.ValidityFile, validations))
	runstore.Persist(ctx, s.recorder, runstore.TelemetryFile,
		s.store.SaveJSON(runstore.TelemetryFile, s.recorder.Snapshot()))
	runstore.Persist(ctx, s.recorder, runstore.ManifestFile,
		s.store.WriteManifest(summary, s.recorder.Snapshot(), validations))

	status := "success"
	if !result.Success {
		status = "failed"
	}
	runstore.Persist(ctx, s.recorder, "run_index", s.store.AppendIndex(runstore.IndexEntry{
		ID:         s.store.ID(),
		RunID:      result.RunID,
		Timestamp:  time.Now().UTC().Format("2006-01-02 15:04:05"),
		User:       displayName(s.opts.User),
		Status:     status,
		PlanScore:  summary.Score(),
		OutputsDir: s.store.Dir(),
	}))

	if result.Plan == nil {
		result.Plan = summary
	}
	log.Info(ctx, log.KV{K: "msg", V: "run finished"},
		log.KV{K: "run_id", V: result.RunID},
		log.KV{K: "success", V: result.Success},
		log.KV{K: "turns", V: result.NumTurns})
}

// validateCollectedClaims submits claims gathered by extraction that were
// never validated through a tool call. Best-effort: unavailable servers
// degrade to unknown verdicts inside the client.
func (s *runState) validateCollectedClaims(ctx context.Context) {
	validated := make(map[string]struct{})
	for _, v := range s.mem.Validations() {
		validated[v.Claim.Text] = struct{}{}
	}
	var pending []validator.Claim
	for _, c := range s.mem.Claims() {
		if _, done := validated[c.Text]; done {
			continue
		}
		pending = append(pending, validator.Claim{Text: c.Text, TurnIndex: c.Turn, Speaker: c.Speaker})
	}
	if len(pending) == 0 {
		return
	}
	start := time.Now()
	results := s.opts.Validator.Validate(ctx, pending)
	for _, v := range results {
		s.mem.AddValidation(memory.ValidationRecord{
			Claim:             memory.ClaimRecord{Text: v.Claim.Text, Turn: v.Claim.TurnIndex, Speaker: v.Claim.Speaker},
			Validity:          v.Validity,
			Confidence:        v.Confidence,
			Evidence:          v.Evidence,
			ServerUnavailable: v.ServerUnavailable,
		})
	}
	s.recorder.RecordTool(tools.ValidateClaimsName, "orchestrator", len(results), -1, nil, time.Since(start))
}

func displayName(user profiles.UserProfile) string {
	if user.Name != "" {
		return user.Name
	}
	return "User"
}
