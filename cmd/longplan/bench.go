package main

import (
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/longplan-ai/longplan/harness"
	"github.com/longplan-ai/longplan/validator"
)

var (
	flagNumRuns      int
	flagConcurrency  int
	flagScenario     string
	flagMode         string
	flagToolLimit    int
	flagValidatorRPS float64
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Run N conversations at bounded concurrency and report metrics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := logContext(cmd.Context())
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		runOpts, err := buildRunOptions(ctx, cfg)
		if err != nil {
			return err
		}
		validator.SetConcurrencyLimit(flagToolLimit)
		if flagValidatorRPS > 0 {
			runOpts.Validator.Limiter = rate.NewLimiter(rate.Limit(flagValidatorRPS), 1)
		}
		summary, err := harness.Run(ctx, harness.Options{
			NumRuns:     flagNumRuns,
			Concurrency: flagConcurrency,
			Scenario:    flagScenario,
			Mode:        flagMode,
			Run:         runOpts,
		})
		if err != nil {
			return err
		}
		return printJSON(summary)
	},
}

func init() {
	fl := benchCmd.Flags()
	fl.IntVar(&flagNumRuns, "num-runs", 5, "number of conversations to execute")
	fl.IntVar(&flagConcurrency, "concurrency", 2, "simultaneous runs")
	fl.StringVar(&flagScenario, "scenario", "", "chaos scenario label (writes a chaos_{scenario} report)")
	fl.StringVar(&flagMode, "mode", "baseline", "batch label for plain parallel reports")
	fl.IntVar(&flagToolLimit, "tool-concurrency", 5, "process-wide validator concurrency bound")
	fl.Float64Var(&flagValidatorRPS, "validator-rps", 0, "pace outbound validation requests (0 disables)")

	fl.IntVar(&flagTurnLimit, "turn-limit", 10, "maximum number of phases per run")
	fl.StringVar(&flagModel, "model", "gpt-4o-mini", "model identifier")
	fl.StringVar(&flagValidatorURL, "valyu-url", "http://localhost:3000/validate", "claim validation endpoint")
	fl.StringVar(&flagUserProfile, "user-profile", "user_info.json", "user profile JSON path")
	fl.StringVar(&flagClinicResource, "company-resource", "company_resource.txt", "clinic resource text path")
	fl.StringVar(&flagOutputDir, "output-dir", "data", "data root for run artifacts and reports")
	fl.StringVar(&flagProvider, "provider", "", "model provider override (openai|bedrock|anthropic|mock)")
	fl.BoolVar(&flagMock, "mock", false, "use the deterministic offline model")
}
