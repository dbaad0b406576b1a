package turn

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/lowkaihon/agentd/internal/llm"
	"github.com/lowkaihon/agentd/internal/tools"
	"github.com/lowkaihon/agentd/internal/workspace"
)

// maxScoutIterations bounds the sub-agent's own round-trip loop so a
// confused scout cannot run forever inside a suspended parent turn.
const maxScoutIterations = 30

// runScout drives a read-only research sub-loop over task, using the
// non-streaming accumulate-then-check pattern so its output never
// interleaves with the parent turn's own content events. Usable both as
// the Engine's own SCOUT phase (mode == ModeScoutPlan) and, wired via
// tools.Registry.SetScoutFunc, as the mid-turn `scout` tool callback.
func runScout(ctx context.Context, client llm.Client, ws *workspace.Workspace, task string, emit EventFunc) (string, error) {
	registry := tools.NewReadOnlyRegistry(ws)
	defs := registry.Definitions()

	messages := []llm.Message{
		llm.TextMessage("system", scoutSystemPrompt(ws.Root())),
		llm.TextMessage("user", task),
	}

	totalCalls := 0
	emit(evScoutStart())

	for iteration := 0; iteration < maxScoutIterations; iteration++ {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		events, err := client.Stream(ctx, messages, defs)
		if err != nil {
			return "", fmt.Errorf("scout sub-agent stream: %w", err)
		}
		msg, _, _, err := llm.AccumulateStream(events, func(string) {})
		if err != nil {
			return "", fmt.Errorf("scout sub-agent accumulate: %w", err)
		}

		messages = append(messages, *msg)

		if len(msg.ToolCalls) == 0 {
			emit(evScoutEnd())
			return msg.ContentString(), nil
		}

		for _, tc := range msg.ToolCalls {
			totalCalls++
			emit(evScoutProgress(fmt.Sprintf("%s(%s)", tc.Function.Name, tc.Function.Arguments)))
		}

		outputs := make([]string, len(msg.ToolCalls))
		var wg sync.WaitGroup
		for i, tc := range msg.ToolCalls {
			wg.Add(1)
			go func(idx int, tc llm.ToolCall) {
				defer wg.Done()
				input := json.RawMessage(tc.Function.Arguments)
				output, toolErr := registry.Execute(ctx, tc.Function.Name, input)
				if toolErr != nil {
					output = fmt.Sprintf("Error: %s", toolErr)
				}
				outputs[idx] = output
			}(i, tc)
		}
		wg.Wait()

		for i, tc := range msg.ToolCalls {
			messages = append(messages, llm.ToolResultMessage(tc.ID, outputs[i]))
		}
	}

	emit(evScoutEnd())
	return "Scout reached maximum iterations without completing.", nil
}

func scoutSystemPrompt(workDir string) string {
	return fmt.Sprintf(`You are a scouting sub-agent. Your job is to thoroughly research the workspace to answer the given question.

Working directory: %s

This is a READ-ONLY exploration task. You only have access to: glob, grep, find_symbol, ls, read.

Guidelines:
- Use glob for broad file pattern matching (prefer over repeated ls calls)
- Use grep for searching file contents with regex
- Use read when you know the specific file path
- Use ls only when you need to see directory structure

You are meant to be fast. Make efficient use of your tools, call multiple tools in parallel wherever possible, and start broad before narrowing down to specific reads.

When you have gathered enough information, provide a clear, structured summary of your findings. Do not ask follow-up questions — just research and report.`, workDir)
}
