package llm

import "strings"

// AccumulateStream collects StreamEvents into a complete assistant Message,
// calling onText for each text delta so the Transport Bridge can forward
// partial output as it arrives.
func AccumulateStream(events <-chan StreamEvent, onText func(string)) (*Message, string, Usage, error) {
	var content strings.Builder
	toolCalls := make(map[int]*ToolCall)
	var usage Usage
	var finishReason string

	for event := range events {
		if event.Err != nil {
			return nil, "", usage, event.Err
		}
		if event.Done {
			break
		}

		if event.TextDelta != "" {
			content.WriteString(event.TextDelta)
			if onText != nil {
				onText(event.TextDelta)
			}
		}

		for _, delta := range event.ToolCallDeltas {
			tc, ok := toolCalls[delta.Index]
			if !ok {
				tc = &ToolCall{Type: "function"}
				toolCalls[delta.Index] = tc
			}
			if delta.ID != "" {
				tc.ID = delta.ID
			}
			if delta.Function.Name != "" {
				tc.Function.Name = delta.Function.Name
			}
			tc.Function.Arguments += delta.Function.Arguments
		}

		if event.Usage != nil {
			usage = *event.Usage
		}
		if event.FinishReason != "" {
			finishReason = event.FinishReason
		}
	}

	var contentPtr *string
	if content.Len() > 0 {
		s := content.String()
		contentPtr = &s
	}

	var calls []ToolCall
	for i := 0; i < len(toolCalls); i++ {
		if tc, ok := toolCalls[i]; ok {
			calls = append(calls, *tc)
		}
	}

	msg := &Message{Role: "assistant", Content: contentPtr, ToolCalls: calls}
	return msg, finishReason, usage, nil
}
