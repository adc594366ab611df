// Package openai provides a model.Client backed by the OpenAI Chat
// Completions API, used for gpt-*/o3*/o4* model identifiers. It translates
// requests into ChatCompletion calls using github.com/openai/openai-go and
// maps responses back to the generic structures.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/longplan-ai/longplan/model"
)

// ChatClient captures the subset of the openai-go client used by the adapter.
type ChatClient interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Options configures the OpenAI adapter.
type Options struct {
	// Chat issues the completion calls. Required.
	Chat ChatClient

	// DefaultModel is used when Request.Model is empty.
	DefaultModel string
}

// Client implements model.Client via Chat Completions.
type Client struct {
	chat         ChatClient
	defaultModel string
}

// New builds an OpenAI-backed model client.
func New(opts Options) (*Client, error) {
	if opts.Chat == nil {
		return nil, errors.New("openai chat client is required")
	}
	if strings.TrimSpace(opts.DefaultModel) == "" {
		return nil, errors.New("default model is required")
	}
	return &Client{chat: opts.Chat, defaultModel: opts.DefaultModel}, nil
}

// NewFromAPIKey constructs a client using the default openai-go HTTP client.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("api key is required")
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return New(Options{Chat: &client.Chat.Completions, DefaultModel: defaultModel})
}

// Complete renders a chat completion using the configured client.
func (c *Client) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("openai: messages are required")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.defaultModel
	}
	messages, err := encodeMessages(req.System, req.Messages)
	if err != nil {
		return nil, err
	}
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(modelID),
		Messages: messages,
		Tools:    encodeTools(req.Tools),
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(float64(req.Temperature))
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	completion, err := c.chat.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	return translateResponse(completion), nil
}

func encodeMessages(system string, msgs []model.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs)+1)
	if system != "" {
		out = append(out, openai.SystemMessage(system))
	}
	for _, m := range msgs {
		switch m.Role {
		case model.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case model.RoleUser:
			out = append(out, openai.UserMessage(m.Content))
		case model.RoleAssistant:
			assistant := openai.ChatCompletionAssistantMessageParam{}
			if m.Content != "" {
				assistant.Content.OfString = openai.String(m.Content)
			}
			for _, call := range m.ToolCalls {
				assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: call.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      call.Name,
						Arguments: string(call.Input),
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		case model.RoleTool:
			for _, res := range m.ToolResults {
				tool := openai.ChatCompletionToolMessageParam{ToolCallID: res.ToolCallID}
				tool.Content.OfString = openai.String(res.Content)
				out = append(out, openai.ChatCompletionMessageParamUnion{OfTool: &tool})
			}
		default:
			return nil, fmt.Errorf("openai: unsupported message role %q", m.Role)
		}
	}
	return out, nil
}

func encodeTools(defs []model.ToolDefinition) []openai.ChatCompletionToolParam {
	if len(defs) == 0 {
		return nil
	}
	tools := make([]openai.ChatCompletionToolParam, 0, len(defs))
	for _, def := range defs {
		params := shared.FunctionParameters{}
		if def.InputSchema != nil {
			if data, err := json.Marshal(def.InputSchema); err == nil {
				var m map[string]any
				if err := json.Unmarshal(data, &m); err == nil {
					params = shared.FunctionParameters(m)
				}
			}
		}
		tools = append(tools, openai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        def.Name,
				Description: openai.String(def.Description),
				Parameters:  params,
			},
		})
	}
	return tools
}

func translateResponse(completion *openai.ChatCompletion) *model.Response {
	resp := &model.Response{}
	if len(completion.Choices) > 0 {
		choice := completion.Choices[0]
		resp.Text = choice.Message.Content
		resp.StopReason = string(choice.FinishReason)
		for _, call := range choice.Message.ToolCalls {
			resp.ToolCalls = append(resp.ToolCalls, model.ToolCall{
				ID:    call.ID,
				Name:  call.Function.Name,
				Input: json.RawMessage(call.Function.Arguments),
			})
		}
	}
	resp.Usage = model.TokenUsage{
		InputTokens:  int(completion.Usage.PromptTokens),
		OutputTokens: int(completion.Usage.CompletionTokens),
		TotalTokens:  int(completion.Usage.TotalTokens),
	}
	return resp
}
