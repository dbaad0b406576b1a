package llm

import (
	"context"
	"encoding/json"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicClient implements Client over the Anthropic Messages API via the
// official SDK's streaming endpoint.
type AnthropicClient struct {
	msg       sdk.MessageService
	model     string
	maxTokens int
}

// NewAnthropicClient creates a client for model, reading connection
// defaults (base URL, timeouts) from the SDK the same way the rest of the
// Anthropic ecosystem does.
func NewAnthropicClient(apiKey, model string, maxTokens int) *AnthropicClient {
	client := sdk.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicClient{msg: client.Messages, model: model, maxTokens: maxTokens}
}

// Stream issues a Messages.NewStreaming call and adapts the SDK's
// server-sent event union into the channel of StreamEvent the Turn Engine
// consumes, one goroutine pumping the SDK stream into the channel.
func (c *AnthropicClient) Stream(ctx context.Context, messages []Message, tools []ToolDef) (<-chan StreamEvent, error) {
	params, err := c.buildParams(messages, tools)
	if err != nil {
		return nil, err
	}

	stream := c.msg.NewStreaming(ctx, *params)
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("anthropic messages.new stream: %w", err)
	}

	ch := make(chan StreamEvent, 32)
	go pumpAnthropicStream(ctx, stream, ch)
	return ch, nil
}

func (c *AnthropicClient) buildParams(messages []Message, tools []ToolDef) (*sdk.MessageNewParams, error) {
	system, msgs, err := encodeAnthropicMessages(messages)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("anthropic: at least one user/assistant message is required")
	}
	params := &sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: int64(c.maxTokens),
		Messages:  msgs,
	}
	if system != "" {
		params.System = []sdk.TextBlockParam{{Text: system}}
	}
	if len(tools) > 0 {
		toolParams, err := encodeAnthropicTools(tools)
		if err != nil {
			return nil, err
		}
		params.Tools = toolParams
	}
	return params, nil
}

func encodeAnthropicMessages(messages []Message) (string, []sdk.MessageParam, error) {
	var system string
	var out []sdk.MessageParam

	for _, msg := range messages {
		switch msg.Role {
		case "system":
			system = msg.ContentString()

		case "user":
			out = append(out, sdk.NewUserMessage(sdk.NewTextBlock(msg.ContentString())))

		case "assistant":
			blocks := assistantBlocks(msg)
			out = append(out, sdk.NewAssistantMessage(blocks...))

		case "tool":
			block := sdk.NewToolResultBlock(msg.ToolCallID, msg.ContentString(), false)
			if n := len(out); n > 0 && out[n-1].Role == sdk.MessageParamRoleUser {
				out[n-1].Content = append(out[n-1].Content, block)
				continue
			}
			out = append(out, sdk.NewUserMessage(block))

		default:
			return "", nil, fmt.Errorf("anthropic: unsupported message role %q", msg.Role)
		}
	}
	return system, out, nil
}

func assistantBlocks(msg Message) []sdk.ContentBlockParamUnion {
	var blocks []sdk.ContentBlockParamUnion
	if msg.Content != nil && *msg.Content != "" {
		blocks = append(blocks, sdk.NewTextBlock(*msg.Content))
	}
	for _, tc := range msg.ToolCalls {
		var input any
		if tc.Function.Arguments != "" {
			_ = json.Unmarshal([]byte(tc.Function.Arguments), &input)
		}
		blocks = append(blocks, sdk.NewToolUseBlock(tc.ID, input, tc.Function.Name))
	}
	if len(blocks) == 0 {
		blocks = append(blocks, sdk.NewTextBlock(""))
	}
	return blocks
}

func encodeAnthropicTools(tools []ToolDef) ([]sdk.ToolUnionParam, error) {
	out := make([]sdk.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var schemaFields map[string]any
		if len(t.Function.Parameters) > 0 {
			if err := json.Unmarshal(t.Function.Parameters, &schemaFields); err != nil {
				return nil, fmt.Errorf("anthropic: tool %q schema: %w", t.Function.Name, err)
			}
		}
		u := sdk.ToolUnionParamOfTool(sdk.ToolInputSchemaParam{ExtraFields: schemaFields}, t.Function.Name)
		if u.OfTool != nil {
			u.OfTool.Description = sdk.String(t.Function.Description)
		}
		out = append(out, u)
	}
	return out, nil
}
