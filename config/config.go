// Package config carries the run options and the fail-fast provider
// readiness checks performed before any expensive work.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultTurnLimit    = 10
	DefaultModel        = "gpt-4o-mini"
	DefaultValidatorURL = "http://localhost:3000/validate"
	DefaultTimeout      = 12 * time.Second
	DefaultOutputDir    = "data"
	DefaultSeed         = 42
)

type (
	// Config is the resolved runtime configuration for conversation runs.
	Config struct {
		TurnLimit int    `yaml:"turn_limit"`
		Model     string `yaml:"model"`

		UserProfilePath    string `yaml:"user_profile"`
		ClinicResourcePath string `yaml:"company_resource"`

		ValidatorURL     string        `yaml:"valyu_url"`
		ValidatorTimeout time.Duration `yaml:"valyu_timeout"`

		OutputDir string `yaml:"output_dir"`
		Seed      int64  `yaml:"seed"`

		// Provider selects the model adapter explicitly; empty derives it
		// from the model name. "mock" runs offline.
		Provider string `yaml:"provider"`
	}

	// Option mutates a Config during Load.
	Option func(*Config)
)

// ProviderConfigError reports missing or placeholder provider credentials.
type ProviderConfigError struct {
	Model  string
	Reason string
}

// Error implements the error interface.
func (e *ProviderConfigError) Error() string {
	return fmt.Sprintf("provider configuration for %q: %s", e.Model, e.Reason)
}

// WithTurnLimit overrides the phase budget.
func WithTurnLimit(n int) Option { return func(c *Config) { c.TurnLimit = n } }

// WithModel overrides the model name.
func WithModel(m string) Option { return func(c *Config) { c.Model = m } }

// WithValidatorURL overrides the validation endpoint.
func WithValidatorURL(u string) Option { return func(c *Config) { c.ValidatorURL = u } }

// WithOutputDir overrides the data root.
func WithOutputDir(d string) Option { return func(c *Config) { c.OutputDir = d } }

// WithProvider overrides provider selection.
func WithProvider(p string) Option { return func(c *Config) { c.Provider = p } }

// WithInputs overrides the user profile and clinic resource paths.
func WithInputs(userProfile, clinicResource string) Option {
	return func(c *Config) {
		c.UserProfilePath = userProfile
		c.ClinicResourcePath = clinicResource
	}
}

// Load builds a Config from defaults, an optional .env file, the LLM_PROVIDER
// environment variable, and the given options. The output directory is
// created eagerly.
func Load(opts ...Option) (*Config, error) {
	// Best-effort: absence of a .env file is the common case.
	_ = godotenv.Load()

	cfg := &Config{
		TurnLimit:          DefaultTurnLimit,
		Model:              DefaultModel,
		UserProfilePath:    "user_info.json",
		ClinicResourcePath: "company_resource.txt",
		ValidatorURL:       DefaultValidatorURL,
		ValidatorTimeout:   DefaultTimeout,
		OutputDir:          DefaultOutputDir,
		Seed:               DefaultSeed,
		Provider:           os.Getenv("LLM_PROVIDER"),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return cfg, nil
}

// LoadFile merges a YAML options file over the defaults; used by bench
// scenario files.
func LoadFile(path string, opts ...Option) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	cfg, err := Load(opts...)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// EnsureProviderReady fails fast when the selected model family lacks usable
// credentials:
//
//   - OpenAI-style models (gpt-*, o3*, o4*) require a non-placeholder
//     OPENAI_API_KEY.
//   - Managed-ecosystem models (claude/llama/nova, us.* or mistral.*) require
//     HOLISTIC_AI_TEAM_ID and HOLISTIC_AI_API_TOKEN.
func EnsureProviderReady(modelName string) error {
	switch {
	case isOpenAILike(modelName):
		key := os.Getenv("OPENAI_API_KEY")
		if key == "" || isPlaceholder(key) {
			return &ProviderConfigError{
				Model:  modelName,
				Reason: "OPENAI_API_KEY missing or placeholder; set a real key in the environment or .env",
			}
		}
	case isManagedLike(modelName):
		if os.Getenv("HOLISTIC_AI_TEAM_ID") == "" || os.Getenv("HOLISTIC_AI_API_TOKEN") == "" {
			return &ProviderConfigError{
				Model:  modelName,
				Reason: "managed-ecosystem credentials missing; set HOLISTIC_AI_TEAM_ID and HOLISTIC_AI_API_TOKEN or choose an OpenAI model",
			}
		}
	}
	return nil
}

func isOpenAILike(modelName string) bool {
	return strings.HasPrefix(modelName, "gpt-") ||
		strings.HasPrefix(modelName, "o3") ||
		strings.HasPrefix(modelName, "o4")
}

func isManagedLike(modelName string) bool {
	if strings.HasPrefix(modelName, "us.") || strings.HasPrefix(modelName, "mistral.") {
		return true
	}
	lower := strings.ToLower(modelName)
	for _, marker := range []string{"claude", "llama", "nova"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// isPlaceholder detects template credentials left in the environment.
func isPlaceholder(value string) bool {
	v := strings.ToLower(strings.TrimSpace(value))
	return strings.HasPrefix(v, "sk-your") || strings.HasSuffix(v, "here") || strings.Contains(v, "your-")
}
