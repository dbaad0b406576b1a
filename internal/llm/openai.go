package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIClient implements Client over the Chat Completions streaming API
// via the official SDK.
type OpenAIClient struct {
	client    openai.Client
	model     string
	maxTokens int
}

// NewOpenAIClient creates a client for model. baseURL overrides the default
// endpoint, for OpenAI-compatible gateways; pass "" for the real API.
func NewOpenAIClient(apiKey, model string, maxTokens int, baseURL string) *OpenAIClient {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIClient{client: openai.NewClient(opts...), model: model, maxTokens: maxTokens}
}

// Stream issues a Chat Completions streaming request and adapts the SDK's
// chunk stream into the channel of StreamEvent the Turn Engine consumes.
func (c *OpenAIClient) Stream(ctx context.Context, messages []Message, tools []ToolDef) (<-chan StreamEvent, error) {
	params := openai.ChatCompletionNewParams{
		Model:     c.model,
		Messages:  encodeOpenAIMessages(messages),
		MaxTokens: openai.Int(int64(c.maxTokens)),
	}
	if len(tools) > 0 {
		params.Tools = encodeOpenAITools(tools)
	}

	stream := c.client.Chat.Completions.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("openai chat.completions.new stream: %w", err)
	}

	ch := make(chan StreamEvent, 32)
	go pumpOpenAIStream(ctx, stream, ch)
	return ch, nil
}

func encodeOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			out = append(out, openai.SystemMessage(m.ContentString()))
		case "user":
			out = append(out, openai.UserMessage(m.ContentString()))
		case "assistant":
			if len(m.ToolCalls) == 0 {
				out = append(out, openai.AssistantMessage(m.ContentString()))
				continue
			}
			calls := make([]openai.ChatCompletionMessageToolCallParam, len(m.ToolCalls))
			for i, tc := range m.ToolCalls {
				calls[i] = openai.ChatCompletionMessageToolCallParam{
					ID:   tc.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Function.Name,
						Arguments: tc.Function.Arguments,
					},
				}
			}
			asst := openai.ChatCompletionAssistantMessageParam{ToolCalls: calls}
			if m.Content != nil && *m.Content != "" {
				asst.Content.OfString = openai.String(*m.Content)
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &asst})
		case "tool":
			out = append(out, openai.ToolMessage(m.ContentString(), m.ToolCallID))
		}
	}
	return out
}

func encodeOpenAITools(tools []ToolDef) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, len(tools))
	for i, t := range tools {
		var schema map[string]any
		if len(t.Function.Parameters) > 0 {
			_ = json.Unmarshal(t.Function.Parameters, &schema)
		}
		out[i] = openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        t.Function.Name,
				Description: openai.String(t.Function.Description),
				Parameters:  schema,
			},
		}
	}
	return out
}
