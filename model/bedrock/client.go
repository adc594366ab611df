// Package bedrock provides a model.Client backed by the AWS Bedrock Converse
// API, used for managed-ecosystem models (Claude, Llama, Nova, us.* and
// mistral.* identifiers) reached directly or through a Bedrock-compatible
// gateway. It splits system from conversational messages, encodes tool
// schemas into Bedrock's ToolConfiguration, and translates Converse responses
// (text + tool_use blocks) back into the generic structures.
package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"

	"github.com/longplan-ai/longplan/model"
)

// RuntimeClient mirrors the subset of the AWS Bedrock runtime client required
// by the adapter. It matches *bedrockruntime.Client so callers can pass
// either the real client or a mock in tests.
type RuntimeClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Options configures the Bedrock adapter.
type Options struct {
	// Runtime provides access to the Bedrock runtime. Required.
	Runtime RuntimeClient

	// DefaultModel is the model identifier used when Request.Model is empty.
	DefaultModel string

	// MaxTokens caps completions when a request does not specify MaxTokens.
	// When zero the field is omitted so Bedrock applies its own default.
	MaxTokens int

	// Temperature is used when a request does not specify Temperature.
	Temperature float32
}

// Client implements model.Client on top of Bedrock Converse.
type Client struct {
	runtime      RuntimeClient
	defaultModel string
	maxTok       int
	temp         float32
}

// New builds a Bedrock-backed model client.
func New(opts Options) (*Client, error) {
	if opts.Runtime == nil {
		return nil, errors.New("bedrock runtime client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("default model identifier is required")
	}
	return &Client{
		runtime:      opts.Runtime,
		defaultModel: opts.DefaultModel,
		maxTok:       opts.MaxTokens,
		temp:         opts.Temperature,
	}, nil
}

// Complete issues a Converse request and translates the response.
func (c *Client) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	input, err := c.buildInput(req)
	if err != nil {
		return nil, err
	}
	output, err := c.runtime.Converse(ctx, input)
	if err != nil {
		if isRateLimited(err) {
			return nil, fmt.Errorf("%w: %w", model.ErrRateLimited, err)
		}
		return nil, fmt.Errorf("bedrock converse: %w", err)
	}
	return translateResponse(output)
}

func (c *Client) buildInput(req *model.Request) (*bedrockruntime.ConverseInput, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("bedrock: messages are required")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.defaultModel
	}
	messages, err := encodeMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(modelID),
		Messages: messages,
	}
	if req.System != "" {
		input.System = []brtypes.SystemContentBlock{
			&brtypes.SystemContentBlockMemberText{Value: req.System},
		}
	}
	toolConfig, err := encodeTools(req.Tools)
	if err != nil {
		return nil, err
	}
	input.ToolConfig = toolConfig
	if cfg := c.inferenceConfig(req.MaxTokens, req.Temperature); cfg != nil {
		input.InferenceConfig = cfg
	}
	return input, nil
}

func (c *Client) inferenceConfig(maxTokens int, temp float32) *brtypes.InferenceConfiguration {
	var cfg brtypes.InferenceConfiguration
	tokens := maxTokens
	if tokens <= 0 {
		tokens = c.maxTok
	}
	if tokens > 0 {
		cfg.MaxTokens = aws.Int32(int32(tokens)) //nolint:gosec // AWS SDK requires int32
	}
	t := temp
	if t <= 0 {
		t = c.temp
	}
	if t > 0 {
		cfg.Temperature = aws.Float32(t)
	}
	if cfg.MaxTokens == nil && cfg.Temperature == nil {
		return nil
	}
	return &cfg
}

func encodeMessages(msgs []model.Message) ([]brtypes.Message, error) {
	out := make([]brtypes.Message, 0, len(msgs))
	for _, m := range msgs {
		var blocks []brtypes.ContentBlock
		switch m.Role {
		case model.RoleUser:
			if m.Content != "" {
				blocks = append(blocks, &brtypes.ContentBlockMemberText{Value: m.Content})
			}
		case model.RoleAssistant:
			if m.Content != "" {
				blocks = append(blocks, &brtypes.ContentBlockMemberText{Value: m.Content})
			}
			for _, call := range m.ToolCalls {
				tb := brtypes.ToolUseBlock{
					Name:  aws.String(call.Name),
					Input: toDocument(call.Input),
				}
				if call.ID != "" {
					tb.ToolUseId = aws.String(call.ID)
				}
				blocks = append(blocks, &brtypes.ContentBlockMemberToolUse{Value: tb})
			}
		case model.RoleTool:
			// Bedrock expects tool_result blocks inside user messages,
			// correlated to a prior tool_use.
			for _, res := range m.ToolResults {
				tr := brtypes.ToolResultBlock{
					Content: []brtypes.ToolResultContentBlock{
						&brtypes.ToolResultContentBlockMemberText{Value: res.Content},
					},
				}
				if res.ToolCallID != "" {
					tr.ToolUseId = aws.String(res.ToolCallID)
				}
				if res.IsError {
					tr.Status = brtypes.ToolResultStatusError
				}
				blocks = append(blocks, &brtypes.ContentBlockMemberToolResult{Value: tr})
			}
		default:
			return nil, fmt.Errorf("bedrock: unsupported message role %q", m.Role)
		}
		if len(blocks) == 0 {
			continue
		}
		role := brtypes.ConversationRoleUser
		if m.Role == model.RoleAssistant {
			role = brtypes.ConversationRoleAssistant
		}
		out = append(out, brtypes.Message{Role: role, Content: blocks})
	}
	if len(out) == 0 {
		return nil, errors.New("bedrock: at least one user/assistant message is required")
	}
	return out, nil
}

func encodeTools(defs []model.ToolDefinition) (*brtypes.ToolConfiguration, error) {
	if len(defs) == 0 {
		return nil, nil
	}
	toolList := make([]brtypes.Tool, 0, len(defs))
	for _, def := range defs {
		if def.Name == "" {
			continue
		}
		if def.Description == "" {
			return nil, fmt.Errorf("bedrock: tool %q is missing description", def.Name)
		}
		spec := brtypes.ToolSpecification{
			Name:        aws.String(def.Name),
			Description: aws.String(def.Description),
			InputSchema: &brtypes.ToolInputSchemaMemberJson{Value: toDocument(def.InputSchema)},
		}
		toolList = append(toolList, &brtypes.ToolMemberToolSpec{Value: spec})
	}
	if len(toolList) == 0 {
		return nil, nil
	}
	return &brtypes.ToolConfiguration{Tools: toolList}, nil
}

func toDocument(v any) document.Interface {
	if v == nil {
		return document.NewLazyDocument(map[string]any{"type": "object"})
	}
	switch t := v.(type) {
	case document.Interface:
		return t
	case json.RawMessage:
		var decoded any
		if len(t) == 0 || json.Unmarshal(t, &decoded) != nil {
			return document.NewLazyDocument(map[string]any{"type": "object"})
		}
		return document.NewLazyDocument(decoded)
	default:
		return document.NewLazyDocument(t)
	}
}

func decodeDocument(doc document.Interface) json.RawMessage {
	if doc == nil {
		return nil
	}
	data, err := doc.MarshalSmithyDocument()
	if err != nil || len(data) == 0 {
		return nil
	}
	return json.RawMessage(data)
}

func translateResponse(output *bedrockruntime.ConverseOutput) (*model.Response, error) {
	if output == nil {
		return nil, errors.New("bedrock: response is nil")
	}
	resp := &model.Response{}
	if msg, ok := output.Output.(*brtypes.ConverseOutputMemberMessage); ok {
		for _, block := range msg.Value.Content {
			switch v := block.(type) {
			case *brtypes.ContentBlockMemberText:
				if v.Value == "" {
					continue
				}
				if resp.Text != "" {
					resp.Text += "\n"
				}
				resp.Text += v.Value
			case *brtypes.ContentBlockMemberToolUse:
				call := model.ToolCall{Input: decodeDocument(v.Value.Input)}
				if v.Value.Name != nil {
					call.Name = *v.Value.Name
				}
				if v.Value.ToolUseId != nil {
					call.ID = *v.Value.ToolUseId
				}
				resp.ToolCalls = append(resp.ToolCalls, call)
			}
		}
	}
	if usage := output.Usage; usage != nil {
		resp.Usage = model.TokenUsage{
			InputTokens:  int(ptrValue(usage.InputTokens)),
			OutputTokens: int(ptrValue(usage.OutputTokens)),
			TotalTokens:  int(ptrValue(usage.TotalTokens)),
		}
	}
	resp.StopReason = string(output.StopReason)
	return resp, nil
}

// isRateLimited reports whether err represents provider throttling (HTTP 429
// or a ThrottlingException error code).
func isRateLimited(err error) bool {
	if err == nil {
		return false
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException":
			return true
		}
	}
	return false
}

func ptrValue(v *int32) int32 {
	if v == nil {
		return 0
	}
	return *v
}
