package bedrock

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/longplan-ai/longplan/model"
)

type fakeRuntime struct {
	lastInput *bedrockruntime.ConverseInput
	output    *bedrockruntime.ConverseOutput
	err       error
}

func (f *fakeRuntime) Converse(_ context.Context, params *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.lastInput = params
	return f.output, f.err
}

func textOutput(text string) *bedrockruntime.ConverseOutput {
	return &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{
			Value: brtypes.Message{
				Role:    brtypes.ConversationRoleAssistant,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: text}},
			},
		},
		StopReason: brtypes.StopReasonEndTurn,
		Usage:      &brtypes.TokenUsage{InputTokens: aws.Int32(10), OutputTokens: aws.Int32(4), TotalTokens: aws.Int32(14)},
	}
}

func TestNewValidation(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
	_, err = New(Options{Runtime: &fakeRuntime{}})
	assert.Error(t, err)
	_, err = New(Options{Runtime: &fakeRuntime{}, DefaultModel: "us.amazon.nova-pro-v1:0"})
	assert.NoError(t, err)
}

func TestCompleteEncodesRequest(t *testing.T) {
	rt := &fakeRuntime{output: textOutput("hello")}
	c, err := New(Options{Runtime: rt, DefaultModel: "us.amazon.nova-pro-v1:0", MaxTokens: 512, Temperature: 0.2})
	require.NoError(t, err)

	resp, err := c.Complete(context.Background(), &model.Request{
		System: "be helpful",
		Messages: []model.Message{
			{Role: model.RoleUser, Content: "draft a plan"},
		},
		Tools: []model.ToolDefinition{
			{Name: "schedule_services", Description: "book services", InputSchema: map[string]any{"type": "object"}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Text)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, 14, resp.Usage.TotalTokens)

	in := rt.lastInput
	require.NotNil(t, in)
	assert.Equal(t, "us.amazon.nova-pro-v1:0", aws.ToString(in.ModelId))
	require.Len(t, in.System, 1)
	require.Len(t, in.Messages, 1)
	require.NotNil(t, in.ToolConfig)
	require.Len(t, in.ToolConfig.Tools, 1)
	require.NotNil(t, in.InferenceConfig)
	assert.Equal(t, int32(512), aws.ToInt32(in.InferenceConfig.MaxTokens))
}

func TestCompleteTranslatesToolUse(t *testing.T) {
	rt := &fakeRuntime{output: &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{
			Value: brtypes.Message{
				Role: brtypes.ConversationRoleAssistant,
				Content: []brtypes.ContentBlock{
					&brtypes.ContentBlockMemberToolUse{Value: brtypes.ToolUseBlock{
						ToolUseId: aws.String("call-1"),
						Name:      aws.String("validate_claims"),
						Input:     document.NewLazyDocument(map[string]any{"claims": []string{"c1"}}),
					}},
				},
			},
		},
		StopReason: brtypes.StopReasonToolUse,
	}}
	c, err := New(Options{Runtime: rt, DefaultModel: "m"})
	require.NoError(t, err)

	resp, err := c.Complete(context.Background(), &model.Request{
		Messages: []model.Message{{Role: model.RoleUser, Content: "check this"}},
	})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "call-1", resp.ToolCalls[0].ID)
	assert.Equal(t, "validate_claims", resp.ToolCalls[0].Name)
	var args map[string]any
	require.NoError(t, json.Unmarshal(resp.ToolCalls[0].Input, &args))
	assert.Contains(t, args, "claims")
}

func TestEncodeToolRoundTripMessages(t *testing.T) {
	msgs, err := encodeMessages([]model.Message{
		{Role: model.RoleUser, Content: "hi"},
		{Role: model.RoleAssistant, Content: "calling", ToolCalls: []model.ToolCall{
			{ID: "t1", Name: "schedule_services", Input: json.RawMessage(`{"services":["scan"],"user_id":"u1"}`)},
		}},
		{Role: model.RoleTool, ToolResults: []model.ToolResult{
			{ToolCallID: "t1", Name: "schedule_services", Content: `[]`},
		}},
	})
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, brtypes.ConversationRoleUser, msgs[0].Role)
	assert.Equal(t, brtypes.ConversationRoleAssistant, msgs[1].Role)
	// Tool results ride in a user-role message.
	assert.Equal(t, brtypes.ConversationRoleUser, msgs[2].Role)
}

func TestEncodeMessagesRejectsUnknownRole(t *testing.T) {
	_, err := encodeMessages([]model.Message{{Role: "bot", Content: "x"}})
	assert.Error(t, err)
}

func TestCompleteRequiresMessages(t *testing.T) {
	c, err := New(Options{Runtime: &fakeRuntime{}, DefaultModel: "m"})
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), &model.Request{})
	assert.Error(t, err)
}
