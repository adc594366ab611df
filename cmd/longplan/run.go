package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"goa.design/clue/log"

	"github.com/longplan-ai/longplan/config"
	"github.com/longplan-ai/longplan/model"
	"github.com/longplan-ai/longplan/model/mock"
	"github.com/longplan-ai/longplan/orchestrator"
	"github.com/longplan-ai/longplan/profiles"
	"github.com/longplan-ai/longplan/validator"
)

var (
	flagTurnLimit      int
	flagModel          string
	flagValidatorURL   string
	flagUserProfile    string
	flagClinicResource string
	flagOutputDir      string
	flagProvider       string
	flagMock           bool
	flagDebug          bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a single dual-agent conversation",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := logContext(cmd.Context())
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		opts, err := buildRunOptions(ctx, cfg)
		if err != nil {
			return err
		}
		result, err := orchestrator.Run(ctx, opts)
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

func init() {
	fl := runCmd.Flags()
	fl.IntVar(&flagTurnLimit, "turn-limit", config.DefaultTurnLimit, "maximum number of phases to execute")
	fl.StringVar(&flagModel, "model", config.DefaultModel, "model identifier")
	fl.StringVar(&flagValidatorURL, "valyu-url", config.DefaultValidatorURL, "claim validation endpoint")
	fl.StringVar(&flagUserProfile, "user-profile", "user_info.json", "user profile JSON path")
	fl.StringVar(&flagClinicResource, "company-resource", "company_resource.txt", "clinic resource text path")
	fl.StringVar(&flagOutputDir, "output-dir", config.DefaultOutputDir, "data root for run artifacts")
	fl.StringVar(&flagProvider, "provider", "", "model provider override (openai|bedrock|anthropic|mock)")
	fl.BoolVar(&flagMock, "mock", false, "use the deterministic offline model")
}

// logContext installs the clue logger into the context.
func logContext(parent context.Context) context.Context {
	if parent == nil {
		parent = context.Background()
	}
	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(parent, log.WithFormat(format))
	if flagDebug {
		ctx = log.Context(ctx, log.WithDebug())
	}
	return ctx
}

func loadConfig() (*config.Config, error) {
	opts := []config.Option{
		config.WithTurnLimit(flagTurnLimit),
		config.WithModel(flagModel),
		config.WithValidatorURL(flagValidatorURL),
		config.WithOutputDir(flagOutputDir),
		config.WithInputs(flagUserProfile, flagClinicResource),
	}
	if flagMock {
		opts = append(opts, config.WithProvider(config.ProviderMock))
	} else if flagProvider != "" {
		opts = append(opts, config.WithProvider(flagProvider))
	}
	return config.Load(opts...)
}

// buildRunOptions resolves the run inputs and the provider, failing fast on
// missing credentials before any expensive work.
func buildRunOptions(ctx context.Context, cfg *config.Config) (orchestrator.Options, error) {
	user, err := profiles.LoadUserProfile(cfg.UserProfilePath)
	if err != nil {
		return orchestrator.Options{}, err
	}
	clinicText, err := profiles.LoadClinicResource(cfg.ClinicResourcePath)
	if err != nil {
		return orchestrator.Options{}, err
	}

	var client model.Client
	if cfg.Provider == config.ProviderMock {
		client = mock.NewWithDeterministicPlan(user)
	} else {
		if err := config.EnsureProviderReady(cfg.Model); err != nil {
			return orchestrator.Options{}, err
		}
		client, err = config.NewModelClient(cfg)
		if err != nil {
			return orchestrator.Options{}, err
		}
	}
	log.Info(ctx, log.KV{K: "msg", V: "provider ready"},
		log.KV{K: "model", V: cfg.Model}, log.KV{K: "mock", V: cfg.Provider == config.ProviderMock})

	return orchestrator.Options{
		Client:     client,
		Validator:  validator.NewClient(cfg.ValidatorURL, cfg.ValidatorTimeout),
		User:       user,
		ClinicText: clinicText,
		OutputDir:  cfg.OutputDir,
		TurnLimit:  cfg.TurnLimit,
		ModelName:  cfg.Model,
	}, nil
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	fmt.Fprintln(os.Stdout, string(data))
	return nil
}
