package turn

import (
	"fmt"
	"strings"

	"github.com/lowkaihon/agentd/internal/llm"
	"github.com/lowkaihon/agentd/internal/session"
)

// historyToLLM flattens durable, block-interleaved session history into the
// flat request/response message sequence the Model Stream Adapter expects:
// one assistant message carrying its text and tool_use calls, immediately
// followed by one tool-role message per tool_result block.
func historyToLLM(history []session.Message) []llm.Message {
	var out []llm.Message
	for _, m := range history {
		switch m.Role {
		case "user":
			text := m.Text
			for _, img := range m.Images {
				text += fmt.Sprintf("\n[attached image: %s]", img)
			}
			out = append(out, llm.TextMessage("user", text))
		case "assistant":
			out = append(out, assistantMessageFromBlocks(m.Blocks)...)
		}
	}
	return out
}

// assistantMessageFromBlocks rebuilds one model round's worth of messages
// (the assistant turn plus any paired tool results) from its stored blocks.
func assistantMessageFromBlocks(blocks []session.Block) []llm.Message {
	var text strings.Builder
	var calls []llm.ToolCall
	var results []llm.Message

	for _, b := range blocks {
		switch b.Kind {
		case session.BlockText:
			text.WriteString(b.Text)
		case session.BlockToolUse:
			calls = append(calls, llm.ToolCall{
				ID:   b.ID,
				Type: "function",
				Function: llm.FunctionCall{
					Name:      b.Name,
					Arguments: b.Input,
				},
			})
		case session.BlockToolResult:
			results = append(results, llm.ToolResultMessage(b.ID, b.Content))
		}
	}

	var content *string
	if text.Len() > 0 {
		s := text.String()
		content = &s
	}

	out := []llm.Message{llm.AssistantMessage(content, calls)}
	return append(out, results...)
}

// blocksFromMessage converts one accumulated assistant response into its
// text/tool_use blocks, in declaration order, ready to be combined with
// tool_result blocks (from resultBlocks, or a synthetic one) before a
// single AppendAssistant call closes out the round.
func blocksFromMessage(msg *llm.Message) []session.Block {
	var out []session.Block
	if msg.Content != nil && *msg.Content != "" {
		out = append(out, session.Block{Kind: session.BlockText, Text: *msg.Content})
	}
	for _, tc := range msg.ToolCalls {
		out = append(out, session.Block{
			Kind:  session.BlockToolUse,
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: tc.Function.Arguments,
		})
	}
	return out
}
