package turn

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowkaihon/agentd/internal/llm"
	"github.com/lowkaihon/agentd/internal/session"
	"github.com/lowkaihon/agentd/internal/workspace"
)

// mockLLMClient streams back one queued llm.Message per Stream call, in
// order, mirroring agent/agent_test.go's mockLLMClient but against the
// Stream-only internal/llm.Client interface.
type mockLLMClient struct {
	responses []llm.Message
	callCount int32
}

func (m *mockLLMClient) Stream(ctx context.Context, messages []llm.Message, toolDefs []llm.ToolDef) (<-chan llm.StreamEvent, error) {
	idx := int(atomic.AddInt32(&m.callCount, 1)) - 1
	ch := make(chan llm.StreamEvent, 8)
	go func() {
		defer close(ch)
		if idx >= len(m.responses) {
			ch <- llm.StreamEvent{TextDelta: "done"}
			ch <- llm.StreamEvent{Done: true, FinishReason: "stop"}
			return
		}
		resp := m.responses[idx]
		if resp.Content != nil && *resp.Content != "" {
			ch <- llm.StreamEvent{TextDelta: *resp.Content}
		}
		for i, tc := range resp.ToolCalls {
			ch <- llm.StreamEvent{ToolCallDeltas: []llm.ToolCallDelta{{
				Index: i,
				ID:    tc.ID,
				Type:  "function",
				Function: struct {
					Name      string `json:"name,omitempty"`
					Arguments string `json:"arguments,omitempty"`
				}{Name: tc.Function.Name, Arguments: tc.Function.Arguments},
			}}}
		}
		reason := "stop"
		if len(resp.ToolCalls) > 0 {
			reason = "tool_calls"
		}
		ch <- llm.StreamEvent{Done: true, FinishReason: reason}
	}()
	return ch, nil
}

func textMsg(text string) llm.Message {
	return llm.Message{Role: "assistant", Content: &text}
}

func toolCallMsg(id, name string, args any) llm.Message {
	raw, _ := json.Marshal(args)
	return llm.Message{Role: "assistant", ToolCalls: []llm.ToolCall{{
		ID: id, Type: "function",
		Function: llm.FunctionCall{Name: name, Arguments: string(raw)},
	}}}
}

// testSession builds a fully wired session rooted at a temp dir, backed by
// mock, with an Engine bound to a real (temp-dir) session.Manager so
// finishTurn's FlushSave has somewhere to write.
func testSession(t *testing.T, mock *mockLLMClient) (*session.Session, *Engine) {
	t.Helper()
	dir := t.TempDir()
	mgr := session.NewManager(t.TempDir(),
		func(string) (llm.Client, int, error) { return mock, 128000, nil },
		func(wd string) (*workspace.Workspace, error) { return workspace.New(wd, nil), nil },
	)
	s, err := mgr.Create("demo", dir)
	require.NoError(t, err, "create session")
	return s, NewEngine(mgr, nil)
}

func collect(events *[]Event) EventFunc {
	return func(e Event) { *events = append(*events, e) }
}

func hasType(events []Event, typ string) bool {
	for _, e := range events {
		if e.Type == typ {
			return true
		}
	}
	return false
}

func TestRunTurnDirectNoChanges(t *testing.T) {
	mock := &mockLLMClient{responses: []llm.Message{textMsg("Hello there.")}}
	s, eng := testSession(t, mock)

	var events []Event
	eng.RunTurn(context.Background(), s, "explain what why", nil, collect(&events))

	assert.False(t, s.IsRunning(), "expected agent_running cleared after a DIRECT turn with no changes")
	assert.True(t, hasType(events, "no_changes"), "expected no_changes event, got %+v", events)
	assert.True(t, hasType(events, "done"), "expected done event, got %+v", events)
	assert.Len(t, s.HistorySnapshot(), 2, "expected user+assistant history")
}

func TestRunTurnDirectWithDiff(t *testing.T) {
	writeArgs := map[string]string{"path": "new.go", "content": "package main\n"}
	mock := &mockLLMClient{responses: []llm.Message{
		toolCallMsg("call_1", "write", writeArgs),
		textMsg("Created new.go."),
	}}
	s, eng := testSession(t, mock)

	var events []Event
	eng.RunTurn(context.Background(), s, "fix add a new file", nil, collect(&events))

	require.True(t, hasType(events, "diff"), "expected diff event, got %+v", events)
	assert.True(t, s.AwaitingDecision(), "expected session to suspend awaiting keep/revert")
	_, err := os.Stat(filepath.Join(s.WorkingDirectory, "new.go"))
	assert.NoError(t, err, "expected new.go to exist on disk")
}

func TestRunTurnScoutPlanProposesPlan(t *testing.T) {
	planArgs := map[string]any{"tasks": []map[string]string{
		{"content": "Add handler", "description": "add the new HTTP handler in routes.go"},
		{"content": "Add tests", "description": "cover the new handler with a table test"},
	}}
	mock := &mockLLMClient{responses: []llm.Message{
		textMsg("Scout findings: nothing relevant found."), // scout round
		toolCallMsg("call_plan", "write_tasks", planArgs),  // plan round
	}}
	s, eng := testSession(t, mock)

	var events []Event
	eng.RunTurn(context.Background(), s, "Please design and implement an entirely new subsystem end to end, including API routes, persistence, and tests", nil, collect(&events))

	require.True(t, hasType(events, "plan"), "expected plan event, got %+v", events)
	require.NotNil(t, s.PendingPlanSnapshot(), "expected pending plan to be stored")
	assert.Len(t, s.PendingPlanSnapshot().Steps, 2)
	assert.False(t, s.IsRunning(), "expected agent_running cleared once suspended in PLAN")

	// The synthesized tool_result must pair with the write_tasks tool_use,
	// satisfying the Pairing invariant while the plan awaits a decision.
	hist := s.HistorySnapshot()
	last := hist[len(hist)-1]
	require.Len(t, last.Blocks, 2)
	assert.Equal(t, session.BlockToolUse, last.Blocks[0].Kind)
	assert.Equal(t, session.BlockToolResult, last.Blocks[1].Kind)
}

func TestRejectPlanClearsPendingPlan(t *testing.T) {
	mock := &mockLLMClient{responses: []llm.Message{textMsg("done")}}
	s, eng := testSession(t, mock)
	s.SetPendingPlan(&session.PendingPlan{Steps: []string{"step one"}})

	var events []Event
	eng.RejectPlan(s, collect(&events))
	assert.Nil(t, s.PendingPlanSnapshot(), "expected reject_plan to clear the pending plan")
	assert.True(t, hasType(events, "plan_rejected"), "expected plan_rejected event, got %+v", events)
}

func TestBuildNoChanges(t *testing.T) {
	mock := &mockLLMClient{responses: []llm.Message{textMsg("step complete")}}
	s, eng := testSession(t, mock)
	s.SetPendingPlan(&session.PendingPlan{Steps: []string{"do the one thing"}})

	var events []Event
	eng.Build(context.Background(), s, nil, collect(&events))

	require.True(t, hasType(events, "done"), "expected done event, got %+v", events)
	todos := s.TodosSnapshot()
	require.Len(t, todos, 1)
	assert.Equal(t, "do the one thing", todos[0].Content)
}

func TestKeepDropsCheckpointsAndDiffs(t *testing.T) {
	mock := &mockLLMClient{}
	s, eng := testSession(t, mock)
	s.Workspace.Checkpoints().Open("turn", "turn", nil)
	s.AddCheckpoint(session.CheckpointMeta{ID: "turn", Label: "turn"})
	s.SetPendingDiffs([]session.PendingDiff{{Path: "a.go"}})

	var events []Event
	eng.Keep(s, collect(&events))

	assert.False(t, s.AwaitingDecision(), "expected keep to clear AwaitingDecision")
	assert.True(t, hasType(events, "kept") && hasType(events, "done"), "expected kept+done events, got %+v", events)
}

func TestRevertRestoresFiles(t *testing.T) {
	mock := &mockLLMClient{}
	s, eng := testSession(t, mock)

	path := filepath.Join(s.WorkingDirectory, "existing.go")
	require.NoError(t, os.WriteFile(path, []byte("package main\n"), 0644))

	cp := s.Workspace.Checkpoints().Open("turn", "turn", nil)
	require.NoError(t, s.Workspace.Write(cp, "existing.go", "package main\n\nfunc changed() {}\n"))
	s.AddCheckpoint(session.CheckpointMeta{ID: "turn", Label: "turn"})
	s.SetPendingDiffs([]session.PendingDiff{{Path: "existing.go"}})

	var events []Event
	eng.Revert(s, collect(&events))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "package main\n", string(data), "expected file restored to baseline")
	assert.True(t, hasType(events, "reverted"), "expected reverted event, got %+v", events)
}

func TestRunTurnCancelled(t *testing.T) {
	mock := &mockLLMClient{responses: []llm.Message{textMsg("should not finish")}}
	s, eng := testSession(t, mock)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var events []Event
	eng.RunTurn(ctx, s, "run a quick fix", nil, collect(&events))

	assert.True(t, hasType(events, "cancelled"), "expected cancelled event for an already-cancelled context, got %+v", events)
	assert.False(t, s.IsRunning(), "expected agent_running cleared after cancellation")
}
