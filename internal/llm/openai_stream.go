package llm

import (
	"context"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/ssestream"
)

// pumpOpenAIStream drains the SDK's chunk stream into ch, mirroring
// pumpAnthropicStream's shape: one goroutine per Stream call, translating
// provider-specific deltas into the shared StreamEvent type.
func pumpOpenAIStream(ctx context.Context, stream *ssestream.Stream[openai.ChatCompletionChunk], ch chan<- StreamEvent) {
	defer close(ch)
	defer stream.Close()

	for stream.Next() {
		select {
		case <-ctx.Done():
			ch <- StreamEvent{Err: ctx.Err()}
			return
		default:
		}

		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]

		if choice.Delta.Content != "" {
			ch <- StreamEvent{TextDelta: choice.Delta.Content}
		}

		if len(choice.Delta.ToolCalls) > 0 {
			deltas := make([]ToolCallDelta, len(choice.Delta.ToolCalls))
			for i, tc := range choice.Delta.ToolCalls {
				d := ToolCallDelta{Index: int(tc.Index), ID: tc.ID, Type: "function"}
				d.Function.Name = tc.Function.Name
				d.Function.Arguments = tc.Function.Arguments
				deltas[i] = d
			}
			ch <- StreamEvent{ToolCallDeltas: deltas}
		}

		if choice.FinishReason != "" || chunk.Usage.TotalTokens != 0 {
			ev := StreamEvent{}
			if choice.FinishReason == "tool_calls" {
				ev.FinishReason = "tool_calls"
			} else if choice.FinishReason != "" {
				ev.FinishReason = "stop"
			}
			if chunk.Usage.TotalTokens != 0 {
				ev.Usage = &Usage{
					PromptTokens:     int(chunk.Usage.PromptTokens),
					CompletionTokens: int(chunk.Usage.CompletionTokens),
					TotalTokens:      int(chunk.Usage.TotalTokens),
				}
			}
			ch <- ev
		}
	}
	if err := stream.Err(); err != nil {
		ch <- StreamEvent{Err: err}
		return
	}
	ch <- StreamEvent{Done: true}
}
