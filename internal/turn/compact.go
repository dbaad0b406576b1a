package turn

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lowkaihon/agentd/internal/llm"
	"github.com/lowkaihon/agentd/internal/session"
)

const (
	// charsPerToken is the heuristic ratio for estimating token count.
	charsPerToken = 4
	// contextBuffer is the fraction of context window kept free before
	// compaction triggers (spec.md §9 supplemented feature).
	contextBuffer = 0.2
)

// estimateTokens estimates the token count of one history message using
// the chars/4 heuristic, ported from the teacher's agent/context.go.
func estimateTokens(m session.Message) int {
	tokens := len(m.Role) / charsPerToken
	tokens += len(m.Text) / charsPerToken
	for _, b := range m.Blocks {
		tokens += len(b.Text) / charsPerToken
		tokens += len(b.Name) / charsPerToken
		tokens += len(b.Input) / charsPerToken
		tokens += len(b.Content) / charsPerToken
	}
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}

// estimateToolDefTokens estimates the token cost of the tool catalog sent
// with every request.
func estimateToolDefTokens(defs []llm.ToolDef) int {
	data, err := json.Marshal(defs)
	if err != nil {
		return 0
	}
	tokens := len(data) / charsPerToken
	if tokens < 1 && len(defs) > 0 {
		tokens = 1
	}
	return tokens
}

// estimateTotalTokens estimates total tokens across history plus tool defs.
func estimateTotalTokens(history []session.Message, defs []llm.ToolDef) int {
	total := estimateToolDefTokens(defs)
	for _, m := range history {
		total += estimateTokens(m)
	}
	return total
}

// ContextUsage reports current context usage as a fraction (for
// TokenStats.ContextUsagePct and the context_usage_pct surfaced to the
// client).
func ContextUsage(history []session.Message, defs []llm.ToolDef, actualTokens, contextWindow int) float64 {
	if contextWindow <= 0 {
		return 0
	}
	used := actualTokens
	if used == 0 {
		used = estimateTotalTokens(history, defs)
	}
	return float64(used) / float64(contextWindow)
}

// needsCompaction reports whether history exceeds (1-contextBuffer) of the
// context window.
func needsCompaction(history []session.Message, defs []llm.ToolDef, actualTokens, contextWindow int) bool {
	if contextWindow <= 0 {
		return false
	}
	threshold := int(float64(contextWindow) * (1 - contextBuffer))
	used := actualTokens
	if used == 0 {
		used = estimateTotalTokens(history, defs)
	}
	return used > threshold
}

// compactionPrompt is the system prompt used to ask the model to summarize
// the conversation so far, ported near-verbatim from the teacher's
// agent/context.go compactionPrompt.
func compactionPrompt() string {
	return `Your task is to create a detailed summary of the conversation so far, paying close attention to the user's explicit requests and your previous actions. This summary should be thorough in capturing technical details, code patterns, and architectural decisions essential for continuing work without losing context.

Before providing your final summary, wrap your analysis in <analysis> tags to organize your thoughts. In your analysis:
1. Chronologically analyze each message, identifying: the user's explicit requests and intents, your approach, key decisions and code patterns, specific file names, code snippets, function signatures, and file edits.
2. Note errors encountered and how they were fixed, paying special attention to user feedback.
3. Double-check for technical accuracy and completeness.

Your summary should include these sections:

1. Primary Request and Intent: All of the user's explicit requests and intents in detail.
2. Key Technical Concepts: Important technical concepts, technologies, and frameworks discussed.
3. Files and Code Sections: Specific files examined, modified, or created, with summaries of why each is important and what changes were made. Include code snippets where applicable.
4. Errors and Fixes: All errors encountered and how they were resolved, including any user feedback.
5. Problem Solving: Problems solved and any ongoing troubleshooting.
6. Pending Tasks: Any tasks explicitly asked for that remain incomplete.
7. Current Work: Precisely what was being worked on immediately before this summary, including file names and code snippets.
8. Optional Next Step: The next step related to the most recent work, only if directly in line with the user's most recent explicit request.

Drop verbose tool outputs (full file contents, long search results) — instead note what was learned. Drop redundant back-and-forth and dead-end steps unless the dead end itself is informative.

Output the summary directly. Do not include any preamble or meta-commentary outside the analysis and summary.`
}

// serializeHistory formats session history into readable text for the
// model to summarize, ported from the teacher's serializeHistory.
func serializeHistory(history []session.Message) string {
	var sb strings.Builder
	for _, m := range history {
		switch m.Role {
		case "user":
			sb.WriteString("[User]\n")
			sb.WriteString(m.Text)
		case "assistant":
			sb.WriteString("[Assistant]\n")
			for _, b := range m.Blocks {
				switch b.Kind {
				case session.BlockText:
					sb.WriteString(b.Text)
				case session.BlockToolUse:
					fmt.Fprintf(&sb, "\n[Tool Call: %s(%s)]", b.Name, b.Input)
				case session.BlockToolResult:
					content := b.Content
					if len(content) > 1000 {
						content = content[:1000] + "...[truncated]"
					}
					fmt.Fprintf(&sb, "\n[Tool Result: %s]", content)
				}
			}
		default:
			fmt.Fprintf(&sb, "[%s]\n%s", m.Role, m.Text)
		}
		sb.WriteString("\n\n")
	}
	return sb.String()
}

// compact asks the model to summarize history, then replaces it with the
// summary (as a user-role message) plus the most recent user message, preserving
// continuity the way the teacher's doCompact does. Returns the replacement
// history; the caller persists it onto the session.
func compact(ctx context.Context, client llm.Client, history []session.Message, emit EventFunc) ([]session.Message, error) {
	emit(evStatus("Context is large, compacting conversation..."))

	summaryPrompt := []llm.Message{
		llm.TextMessage("system", compactionPrompt()),
		llm.TextMessage("user", serializeHistory(history)),
	}

	events, err := client.Stream(ctx, summaryPrompt, nil)
	if err != nil {
		emit(evStatus("Compaction failed, continuing with full history."))
		return history, fmt.Errorf("compaction stream: %w", err)
	}
	msg, _, _, err := llm.AccumulateStream(events, func(string) {})
	if err != nil {
		emit(evStatus("Compaction failed, continuing with full history."))
		return history, fmt.Errorf("compaction accumulate: %w", err)
	}

	summary := ""
	if msg.Content != nil {
		summary = *msg.Content
	}

	var lastUser *session.Message
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == "user" {
			lastUser = &history[i]
			break
		}
	}

	var out []session.Message
	if summary != "" {
		out = append(out, session.Message{
			Role: "user",
			Text: "[Conversation compacted] Here is a summary of our conversation so far:\n\n" + summary,
		})
	}
	if lastUser != nil {
		out = append(out, *lastUser)
	}

	emit(evStatus("Context compacted successfully."))
	return out, nil
}
