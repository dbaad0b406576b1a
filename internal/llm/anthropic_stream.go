package llm

import (
	"context"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
)

// pumpAnthropicStream drains the SDK's event union stream into ch, one
// goroutine per Stream call, converting Anthropic's block-indexed deltas
// into the tool-call-index-addressed StreamEvent shape the rest of the
// package (and AccumulateStream) expects.
func pumpAnthropicStream(ctx context.Context, stream *ssestream.Stream[sdk.MessageStreamEventUnion], ch chan<- StreamEvent) {
	defer close(ch)
	defer stream.Close()

	proc := newAnthropicChunkProcessor()

	for stream.Next() {
		select {
		case <-ctx.Done():
			ch <- StreamEvent{Err: ctx.Err()}
			return
		default:
		}
		for _, ev := range proc.handle(stream.Current()) {
			ch <- ev
		}
	}
	if err := stream.Err(); err != nil {
		ch <- StreamEvent{Err: err}
		return
	}
	ch <- StreamEvent{Done: true}
}

// anthropicChunkProcessor tracks in-flight content blocks so interleaved
// text/tool_use blocks can be addressed by a stable tool-call index
// (Anthropic indexes content blocks, not tool calls specifically).
type anthropicChunkProcessor struct {
	toolBlockIndex map[int]int // content block index -> tool call index
	nextToolIndex  int
	stopReason     string
}

func newAnthropicChunkProcessor() *anthropicChunkProcessor {
	return &anthropicChunkProcessor{toolBlockIndex: make(map[int]int)}
}

func (p *anthropicChunkProcessor) handle(event sdk.MessageStreamEventUnion) []StreamEvent {
	switch ev := event.AsAny().(type) {
	case sdk.MessageStartEvent:
		p.toolBlockIndex = make(map[int]int)
		p.nextToolIndex = 0
		p.stopReason = ""
		return nil

	case sdk.ContentBlockStartEvent:
		idx := int(ev.Index)
		block := ev.ContentBlock.AsAny()
		toolUse, ok := block.(sdk.ToolUseBlock)
		if !ok {
			return nil
		}
		tcIdx := p.nextToolIndex
		p.toolBlockIndex[idx] = tcIdx
		p.nextToolIndex++
		return []StreamEvent{{
			ToolCallDeltas: []ToolCallDelta{newToolCallDelta(tcIdx, toolUse.ID, toolUse.Name, "")},
		}}

	case sdk.ContentBlockDeltaEvent:
		idx := int(ev.Index)
		switch delta := ev.Delta.AsAny().(type) {
		case sdk.TextDelta:
			if delta.Text == "" {
				return nil
			}
			return []StreamEvent{{TextDelta: delta.Text}}
		case sdk.InputJSONDelta:
			if delta.PartialJSON == "" {
				return nil
			}
			tcIdx, ok := p.toolBlockIndex[idx]
			if !ok {
				return nil
			}
			return []StreamEvent{{
				ToolCallDeltas: []ToolCallDelta{newToolCallDelta(tcIdx, "", "", delta.PartialJSON)},
			}}
		}
		return nil

	case sdk.MessageDeltaEvent:
		p.stopReason = string(ev.Delta.StopReason)
		usage := &Usage{
			PromptTokens:     int(ev.Usage.InputTokens),
			CompletionTokens: int(ev.Usage.OutputTokens),
			TotalTokens:      int(ev.Usage.InputTokens + ev.Usage.OutputTokens),
		}
		return []StreamEvent{{Usage: usage, FinishReason: mapStopReason(p.stopReason)}}

	case sdk.MessageStopEvent:
		return nil

	default:
		return nil
	}
}

func newToolCallDelta(index int, id, name, argsFragment string) ToolCallDelta {
	d := ToolCallDelta{Index: index, ID: id, Type: "function"}
	d.Function.Name = name
	d.Function.Arguments = argsFragment
	return d
}

func mapStopReason(stopReason string) string {
	switch stopReason {
	case "tool_use":
		return "tool_calls"
	case "max_tokens":
		return "length"
	case "end_turn", "stop_sequence":
		return "stop"
	default:
		return ""
	}
}
