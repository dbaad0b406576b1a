package turn

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/lowkaihon/agentd/internal/llm"
	"github.com/lowkaihon/agentd/internal/session"
	"github.com/lowkaihon/agentd/internal/tools"
)

// toolResult is one tool_use call's outcome, keyed to its call id so
// results can be reassembled in the model's original call order even
// after concurrent dispatch.
type toolResult struct {
	id      string
	output  string
	success bool
}

// dispatchToolCalls executes a batch of tool_use calls from one assistant
// message. Read-only calls run concurrently (spec.md §4.B concurrency
// contract); any mutating call in the batch forces the whole batch serial,
// in declaration order, so write/edit/delete/bash confirmations resolve
// one at a time. A canceled ctx completes every remaining call with a
// synthetic failed result instead of blocking (spec.md §5 cancellation).
func dispatchToolCalls(ctx context.Context, registry *tools.Registry, calls []llm.ToolCall, emit EventFunc) []toolResult {
	results := make([]toolResult, len(calls))

	allReadOnly := true
	for _, tc := range calls {
		if !registry.IsReadOnly(tc.Function.Name) {
			allReadOnly = false
			break
		}
	}

	emitCall := func(tc llm.ToolCall) {
		emit(evToolCall(tc.ID, tc.Function.Name, tc.Function.Arguments))
	}

	if allReadOnly && len(calls) > 1 {
		for _, tc := range calls {
			emitCall(tc)
		}
		var wg sync.WaitGroup
		for i, tc := range calls {
			results[i].id = tc.ID
			if !json.Valid([]byte(tc.Function.Arguments)) {
				results[i].output = fmt.Sprintf("Error: invalid JSON in tool arguments: %s", tc.Function.Arguments)
				continue
			}
			wg.Add(1)
			go func(idx int, tc llm.ToolCall) {
				defer wg.Done()
				results[idx] = runOne(ctx, registry, tc, emit)
			}(i, tc)
		}
		wg.Wait()
		for _, r := range results {
			emit(evToolResult(r.id, r.success, r.output))
		}
		return results
	}

	for i, tc := range calls {
		results[i].id = tc.ID
		if ctx.Err() != nil {
			results[i].output = "cancelled"
			results[i].success = false
			emit(evToolResult(tc.ID, false, "cancelled"))
			continue
		}
		emitCall(tc)
		if !json.Valid([]byte(tc.Function.Arguments)) {
			results[i].output = fmt.Sprintf("Error: invalid JSON in tool arguments: %s", tc.Function.Arguments)
			emit(evToolResult(tc.ID, false, results[i].output))
			continue
		}
		results[i] = runOne(ctx, registry, tc, emit)
		emit(evToolResult(tc.ID, results[i].success, results[i].output))
	}
	return results
}

// runOne executes a single tool call. A NeedsConfirmation from a mutating
// tool is executed at once and reported with an auto_approved event; there
// is no per-call approval round-trip with the client.
func runOne(ctx context.Context, registry *tools.Registry, tc llm.ToolCall, emit EventFunc) toolResult {
	if tc.Function.Name == "bash" || tc.Function.Name == "ask_user" {
		ctx = tools.WithToolUseID(ctx, tc.ID)
	}
	input := json.RawMessage(tc.Function.Arguments)
	output, err := registry.Execute(ctx, tc.Function.Name, input)
	if err != nil {
		if confirm, ok := err.(*tools.NeedsConfirmation); ok {
			// Auto-approved path: execute the confirmed action right away
			// and report it.
			result, execErr := confirm.Execute()
			if execErr != nil {
				return toolResult{id: tc.ID, output: fmt.Sprintf("Error: %s", execErr), success: false}
			}
			emit(evAutoApproved(tc.ID, tc.Function.Name))
			return toolResult{id: tc.ID, output: result, success: true}
		}
		return toolResult{id: tc.ID, output: fmt.Sprintf("Error: %s", err), success: false}
	}
	return toolResult{id: tc.ID, output: output, success: true}
}

// resultsToMessages converts tool results plus the blocks already recorded
// for the assistant turn into tool_result llm.Message entries appended to
// the model conversation for the next round-trip.
func resultsToMessages(results []toolResult) []llm.Message {
	out := make([]llm.Message, len(results))
	for i, r := range results {
		out[i] = llm.ToolResultMessage(r.id, r.output)
	}
	return out
}

// resultBlocks converts tool results into session.Block entries (paired
// with their originating tool_use blocks) for durable history.
func resultBlocks(results []toolResult) []session.Block {
	out := make([]session.Block, len(results))
	for i, r := range results {
		out[i] = session.Block{Kind: session.BlockToolResult, ID: r.id, Content: r.output, Success: r.success}
	}
	return out
}
