package turn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowkaihon/agentd/internal/llm"
	"github.com/lowkaihon/agentd/internal/session"
)

func TestHistoryToLLMRoundTrip(t *testing.T) {
	history := []session.Message{
		{Role: "user", Text: "find the bug"},
		{Role: "assistant", Blocks: []session.Block{
			{Kind: session.BlockText, Text: "Looking into it."},
			{Kind: session.BlockToolUse, ID: "call_1", Name: "grep", Input: `{"pattern":"TODO"}`},
			{Kind: session.BlockToolResult, ID: "call_1", Content: "3 matches", Success: true},
		}},
	}

	msgs := historyToLLM(history)
	require.Len(t, msgs, 3)

	assert.Equal(t, "user", msgs[0].Role)
	assert.Equal(t, "find the bug", msgs[0].ContentString())

	assert.Equal(t, "assistant", msgs[1].Role)
	require.Len(t, msgs[1].ToolCalls, 1)
	assert.Equal(t, "grep", msgs[1].ToolCalls[0].Function.Name)

	assert.Equal(t, "tool", msgs[2].Role)
	assert.Equal(t, "call_1", msgs[2].ToolCallID)
}

func TestHistoryToLLMAttachesImages(t *testing.T) {
	history := []session.Message{{Role: "user", Text: "look at this", Images: []string{"screenshot.png"}}}
	msgs := historyToLLM(history)
	require.Len(t, msgs, 1)
	assert.NotEqual(t, "look at this", msgs[0].ContentString(), "expected image reference appended to the message text")
}

func TestBlocksFromMessageTextOnly(t *testing.T) {
	text := "all done"
	msg := llm.Message{Role: "assistant", Content: &text}
	blocks := blocksFromMessage(&msg)
	require.Len(t, blocks, 1)
	assert.Equal(t, session.BlockText, blocks[0].Kind)
	assert.Equal(t, "all done", blocks[0].Text)
}
