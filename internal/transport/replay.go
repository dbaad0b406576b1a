package transport

import (
	"github.com/lowkaihon/agentd/internal/session"
	"github.com/lowkaihon/agentd/internal/turn"
)

// replay sends the reconnect sequence spec.md §4.F describes: init, then
// the session's history flattened into replay_* events preserving order,
// then replay_state if a decision is pending, then resumed.
func (b *Bridge) replay(s *session.Session, emit turn.EventFunc) {
	meta := s.MetaSnapshot()
	s.Lock()
	contextWindow := s.ContextWindow
	tokenStats := s.TokenStats
	s.Unlock()

	emit(turn.Event{Type: "init", Data: map[string]any{
		"session_id":        meta.ID,
		"name":              meta.Name,
		"working_directory": meta.WorkingDirectory,
		"token_stats":       tokenStats,
		"context_window":    contextWindow,
	}})

	for _, msg := range s.HistorySnapshot() {
		if msg.Role == "user" {
			emit(turn.Event{Type: "replay_user", Content: msg.Text, Data: map[string]any{"images": msg.Images}})
			continue
		}
		for _, blk := range msg.Blocks {
			switch blk.Kind {
			case session.BlockThinking:
				emit(turn.Event{Type: "replay_thinking", Content: blk.Text})
			case session.BlockText:
				emit(turn.Event{Type: "replay_text", Content: blk.Text})
			case session.BlockToolUse:
				emit(turn.Event{Type: "replay_tool_call", Data: map[string]any{
					"id": blk.ID, "name": blk.Name, "input": blk.Input,
				}})
			case session.BlockToolResult:
				emit(turn.Event{Type: "replay_tool_result", Content: blk.Content, Data: map[string]any{
					"tool_use_id": blk.ID, "success": blk.Success,
				}})
			}
		}
	}
	emit(turn.Event{Type: "replay_done"})

	if s.AwaitingDecision() {
		emit(replayState(s))
	}

	if s.IsRunning() {
		emit(turn.Event{Type: "resumed", Data: map[string]any{"agent_running": true}})
	} else {
		emit(turn.Event{Type: "resumed", Data: map[string]any{"agent_running": false}})
	}
}

// replayState builds the replay_state event covering whichever interactive
// suspension is currently pending: a plan awaiting build/replan/reject, or
// diffs awaiting keep/revert.
func replayState(s *session.Session) turn.Event {
	plan := s.PendingPlanSnapshot()
	s.Lock()
	diffs := append([]session.PendingDiff(nil), s.PendingDiffs...)
	s.Unlock()

	data := map[string]any{
		"awaiting_build":       plan != nil,
		"awaiting_keep_revert": len(diffs) > 0,
		"todos":                todosPayload(s),
	}
	if plan != nil {
		data["pending_plan"] = plan
	}
	if len(diffs) > 0 {
		files := make([]map[string]any, len(diffs))
		for i, d := range diffs {
			files[i] = map[string]any{"path": d.Path, "label": string(d.Label)}
		}
		data["diffs"] = files
	}
	return turn.Event{Type: "replay_state", Data: data}
}
