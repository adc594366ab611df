package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/smithy-go/middleware"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/longplan-ai/longplan/model"
	"github.com/longplan-ai/longplan/model/anthropic"
	"github.com/longplan-ai/longplan/model/bedrock"
	"github.com/longplan-ai/longplan/model/mock"
	"github.com/longplan-ai/longplan/model/openai"
)

// Provider names accepted in LLM_PROVIDER and Config.Provider.
const (
	ProviderOpenAI    = "openai"
	ProviderBedrock   = "bedrock"
	ProviderAnthropic = "anthropic"
	ProviderMock      = "mock"
)

// NewModelClient builds the chat client for the configured provider. When no
// explicit provider is set it derives one from the model family: gpt-*/o3*/o4*
// goes to OpenAI, managed-ecosystem identifiers go to Bedrock.
func NewModelClient(cfg *Config) (model.Client, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		switch {
		case isOpenAILike(cfg.Model):
			provider = ProviderOpenAI
		case isManagedLike(cfg.Model):
			provider = ProviderBedrock
		default:
			return nil, &ProviderConfigError{
				Model:  cfg.Model,
				Reason: "cannot derive a provider from the model name; set LLM_PROVIDER",
			}
		}
	}
	switch provider {
	case ProviderMock:
		return mock.New(mock.Options{}), nil
	case ProviderOpenAI:
		return openai.NewFromAPIKey(os.Getenv("OPENAI_API_KEY"), cfg.Model)
	case ProviderAnthropic:
		return anthropic.NewFromAPIKey(os.Getenv("ANTHROPIC_API_KEY"), cfg.Model)
	case ProviderBedrock:
		return newBedrockClient(cfg)
	default:
		return nil, &ProviderConfigError{Model: cfg.Model, Reason: fmt.Sprintf("unknown provider %q", provider)}
	}
}

// newBedrockClient reaches Bedrock through the managed gateway: team
// credentials ride as headers and request signing is disabled. The endpoint
// and region come from HOLISTIC_AI_BEDROCK_ENDPOINT and AWS_REGION.
func newBedrockClient(cfg *Config) (model.Client, error) {
	teamID := os.Getenv("HOLISTIC_AI_TEAM_ID")
	token := os.Getenv("HOLISTIC_AI_API_TOKEN")
	if teamID == "" || token == "" {
		return nil, &ProviderConfigError{
			Model:  cfg.Model,
			Reason: "HOLISTIC_AI_TEAM_ID and HOLISTIC_AI_API_TOKEN are required for managed-ecosystem models",
		}
	}
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "us-east-1"
	}
	options := bedrockruntime.Options{
		Region:      region,
		Credentials: aws.AnonymousCredentials{},
		APIOptions: []func(*middleware.Stack) error{
			smithyhttp.AddHeaderValue("Authorization", "Bearer "+token),
			smithyhttp.AddHeaderValue("X-Team-Id", teamID),
		},
	}
	if endpoint := os.Getenv("HOLISTIC_AI_BEDROCK_ENDPOINT"); endpoint != "" {
		options.BaseEndpoint = aws.String(endpoint)
	}
	runtime := bedrockruntime.New(options)
	return bedrock.New(bedrock.Options{Runtime: runtime, DefaultModel: cfg.Model})
}
