package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccumulateStreamTextOnly(t *testing.T) {
	ch := make(chan StreamEvent, 10)
	go func() {
		ch <- StreamEvent{TextDelta: "Hello "}
		ch <- StreamEvent{TextDelta: "world!"}
		ch <- StreamEvent{FinishReason: "stop"}
		ch <- StreamEvent{Done: true}
		close(ch)
	}()

	var collected strings.Builder
	msg, finishReason, _, err := AccumulateStream(ch, func(text string) {
		collected.WriteString(text)
	})
	require.NoError(t, err)

	assert.Equal(t, "Hello world!", msg.ContentString())
	assert.Equal(t, "Hello world!", collected.String())
	assert.Equal(t, "stop", finishReason)
}

func TestAccumulateStreamToolCalls(t *testing.T) {
	ch := make(chan StreamEvent, 10)
	go func() {
		ch <- StreamEvent{
			ToolCallDeltas: []ToolCallDelta{{
				Index: 0,
				ID:    "call_abc",
				Type:  "function",
				Function: struct {
					Name      string `json:"name,omitempty"`
					Arguments string `json:"arguments,omitempty"`
				}{Name: "glob"},
			}},
		}
		ch <- StreamEvent{
			ToolCallDeltas: []ToolCallDelta{{
				Index: 0,
				Function: struct {
					Name      string `json:"name,omitempty"`
					Arguments string `json:"arguments,omitempty"`
				}{Arguments: `{"pat`},
			}},
		}
		ch <- StreamEvent{
			ToolCallDeltas: []ToolCallDelta{{
				Index: 0,
				Function: struct {
					Name      string `json:"name,omitempty"`
					Arguments string `json:"arguments,omitempty"`
				}{Arguments: `tern":"*.go"}`},
			}},
		}

		ch <- StreamEvent{
			ToolCallDeltas: []ToolCallDelta{{
				Index: 1,
				ID:    "call_def",
				Type:  "function",
				Function: struct {
					Name      string `json:"name,omitempty"`
					Arguments string `json:"arguments,omitempty"`
				}{Name: "grep", Arguments: `{"pattern":"func"}`},
			}},
		}

		ch <- StreamEvent{FinishReason: "tool_calls", Done: true}
		close(ch)
	}()

	msg, _, _, err := AccumulateStream(ch, nil)
	require.NoError(t, err)
	require.Len(t, msg.ToolCalls, 2)

	tc0 := msg.ToolCalls[0]
	assert.Equal(t, "call_abc", tc0.ID)
	assert.Equal(t, "glob", tc0.Function.Name)
	assert.Equal(t, `{"pattern":"*.go"}`, tc0.Function.Arguments)

	tc1 := msg.ToolCalls[1]
	assert.Equal(t, "call_def", tc1.ID)
	assert.Equal(t, "grep", tc1.Function.Name)
}

func TestAccumulateStreamError(t *testing.T) {
	ch := make(chan StreamEvent, 10)
	go func() {
		ch <- StreamEvent{TextDelta: "partial"}
		ch <- StreamEvent{Err: errTest("stream failed")}
		close(ch)
	}()

	_, _, _, err := AccumulateStream(ch, nil)
	require.Error(t, err)
	assert.Equal(t, "stream failed", err.Error())
}

type errTest string

func (e errTest) Error() string { return string(e) }

func TestAccumulateStreamUsage(t *testing.T) {
	ch := make(chan StreamEvent, 10)
	go func() {
		ch <- StreamEvent{TextDelta: "hi"}
		ch <- StreamEvent{
			Usage: &Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		}
		ch <- StreamEvent{FinishReason: "stop", Done: true}
		close(ch)
	}()

	_, _, usage, err := AccumulateStream(ch, nil)
	require.NoError(t, err)
	assert.Equal(t, 15, usage.TotalTokens)
}
