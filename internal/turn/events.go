// Package turn implements the Turn Engine: the per-session state machine
// that drives one user message through mode selection, optional scouting
// and planning, the build/direct tool loop, and the post-build review
// (keep/revert), emitting a single ordered stream of typed events the
// Transport Bridge forwards to the browser client.
package turn

// Event is the outbound envelope every Turn Engine signal is wrapped in,
// matching spec.md §6's enumerated event kinds. Content is the generic
// text payload (deltas, warnings); Data carries kind-specific structured
// fields as a loosely typed map so the wire shape stays flat JSON without
// one Go struct per event kind.
type Event struct {
	Type    string         `json:"type"`
	Content string         `json:"content,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// EventFunc receives one outbound event at a time, in emission order
// (spec.md §5: "outbound events are serialized in the order produced by
// the engine").
type EventFunc func(Event)

func ev(typ string) Event { return Event{Type: typ} }

func evContent(typ, content string) Event { return Event{Type: typ, Content: content} }

func evData(typ string, data map[string]any) Event { return Event{Type: typ, Data: data} }

// Lifecycle events.
func evDone(usage map[string]any) Event    { return evData("done", usage) }
func evCancelled() Event                   { return ev("cancelled") }
func evError(message string) Event         { return evContent("error", message) }
func evResetDone() Event                   { return ev("reset_done") }
func evResumed() Event                     { return ev("resumed") }
func evStatus(content string) Event        { return evContent("status", content) }
func evStreamRetry(attempt int) Event      { return evData("stream_retry", map[string]any{"attempt": attempt}) }
func evStreamRecovering() Event            { return ev("stream_recovering") }
func evStreamFailed(message string) Event  { return evContent("stream_failed", message) }

// Reasoning & text events.
func evThinkingStart() Event       { return ev("thinking_start") }
func evThinking(delta string) Event { return evContent("thinking", delta) }
func evThinkingEnd() Event         { return ev("thinking_end") }
func evTextStart() Event           { return ev("text_start") }
func evText(delta string) Event    { return evContent("text", delta) }
func evTextEnd() Event             { return ev("text_end") }

// Tool events.
func evToolCall(id, name, input string) Event {
	return evData("tool_call", map[string]any{"id": id, "name": name, "input": input})
}
func evToolResult(toolUseID string, success bool, content string) Event {
	return Event{Type: "tool_result", Content: content, Data: map[string]any{"tool_use_id": toolUseID, "success": success}}
}
func evCommandStart(toolUseID string) Event {
	return evData("command_start", map[string]any{"tool_use_id": toolUseID})
}
func evCommandOutput(toolUseID, chunk string, isStderr bool) Event {
	return Event{Type: "command_output", Content: chunk, Data: map[string]any{"tool_use_id": toolUseID, "is_stderr": isStderr}}
}
func evCommandPartialFailure(toolUseID string) Event {
	return evData("command_partial_failure", map[string]any{"tool_use_id": toolUseID})
}
func evAutoApproved(toolUseID, name string) Event {
	return evData("auto_approved", map[string]any{"tool_use_id": toolUseID, "name": name})
}

// Phase events.
func evPhaseStart(phase string) Event { return evContent("phase_start", phase) }
func evPhaseEnd(phase string, elapsedMs int64) Event {
	return Event{Type: "phase_end", Content: phase, Data: map[string]any{"elapsed": elapsedMs}}
}
func evScoutStart() Event            { return ev("scout_start") }
func evScoutProgress(content string) Event { return evContent("scout_progress", content) }
func evScoutEnd() Event               { return ev("scout_end") }

// Plan/build events.
func evPlan(steps []string, planText, planFile string) Event {
	return Event{Type: "plan", Data: map[string]any{"steps": steps, "plan_file": planFile, "plan_text": planText}}
}
func evUpdatedPlan(steps []string) Event {
	return evData("updated_plan", map[string]any{"steps": steps})
}
func evPlanStepProgress(step, total int) Event {
	return evData("plan_step_progress", map[string]any{"step": step, "total": total})
}
func evPlanRejected() Event { return ev("plan_rejected") }
func evNoPlan() Event       { return ev("no_plan") }

// Review events.
type diffFile struct {
	Path      string `json:"path"`
	Label     string `json:"label"`
	Diff      string `json:"diff"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
}

func evDiff(files []diffFile, cumulative bool) Event {
	return Event{Type: "diff", Data: map[string]any{"files": files, "cumulative": cumulative}}
}
func evNoChanges() Event { return ev("no_changes") }
func evKept() Event       { return ev("kept") }
func evReverted(files []string) Event {
	return evData("reverted", map[string]any{"files": files})
}
func evRevertedToStep(step int, files []string, noCheckpoint bool) Event {
	return evData("reverted_to_step", map[string]any{"step": step, "files": files, "no_checkpoint": noCheckpoint})
}
func evClearKeepRevert() Event { return ev("clear_keep_revert") }

// Checkpoint events.
func evCheckpointList(checkpoints []map[string]any) Event {
	return evData("checkpoint_list", map[string]any{"checkpoints": checkpoints})
}
func evCheckpointCreated(id string) Event {
	return evData("checkpoint_created", map[string]any{"checkpoint_id": id})
}
func evCheckpointRestored(id string, count int, paths []string) Event {
	return evData("checkpoint_restored", map[string]any{"checkpoint_id": id, "count": count, "paths": paths})
}
func evCheckpointError(message string) Event { return evContent("checkpoint_error", message) }

// Interactive events.
func evUserQuestion(toolUseID, question string, context string, options []string) Event {
	return Event{Type: "user_question", Content: question, Data: map[string]any{"tool_use_id": toolUseID, "context": context, "options": options}}
}
func evTodosUpdated(todos []map[string]any) Event {
	return evData("todos_updated", map[string]any{"todos": todos})
}
func evSessionNameUpdate(name string) Event { return evContent("session_name_update", name) }
func evFileChanged(path string) Event       { return evContent("file_changed", path) }

// Replay events mirror their live counterparts with a replay_ prefix; the
// Transport Bridge's replay.go builds these directly from session history
// rather than through the Engine, so no constructors live here.
