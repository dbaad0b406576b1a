package transport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowkaihon/agentd/internal/llm"
	"github.com/lowkaihon/agentd/internal/session"
	"github.com/lowkaihon/agentd/internal/turn"
	"github.com/lowkaihon/agentd/internal/workspace"
)

// stubClient implements llm.Client with no stream events at all; fine for
// tests that never let a turn actually reach the model.
type stubClient struct{}

func (stubClient) Stream(ctx context.Context, messages []llm.Message, tools []llm.ToolDef) (<-chan llm.StreamEvent, error) {
	ch := make(chan llm.StreamEvent, 1)
	ch <- llm.StreamEvent{Done: true}
	close(ch)
	return ch, nil
}

func testBridge(t *testing.T) (*Bridge, *session.Session) {
	t.Helper()
	dir := t.TempDir()
	mgr := session.NewManager(t.TempDir(),
		func(string) (llm.Client, int, error) { return stubClient{}, 100000, nil },
		func(wd string) (*workspace.Workspace, error) { return workspace.New(wd, nil), nil },
	)
	s, err := mgr.Create("demo", dir)
	require.NoError(t, err)
	engine := turn.NewEngine(mgr, nil)
	ask := NewAskUserBridge()
	return NewBridge(mgr, engine, ask), s
}

func collect() (turn.EventFunc, *[]turn.Event) {
	var events []turn.Event
	return func(ev turn.Event) { events = append(events, ev) }, &events
}

func TestDispatchResetEmitsResetDone(t *testing.T) {
	b, s := testBridge(t)
	s.AddTodo("leftover")
	emit, events := collect()

	b.dispatch(context.Background(), s, &inbound{Type: typeReset}, emit)

	assert.Empty(t, s.TodosSnapshot(), "expected Reset to clear todos")
	assert.True(t, hasType(*events, "reset_done"), "expected reset_done event, got %+v", *events)
}

func TestDispatchAddAndRemoveTodo(t *testing.T) {
	b, s := testBridge(t)
	emit, events := collect()

	b.dispatch(context.Background(), s, &inbound{Type: typeAddTodo, Content: "write tests"}, emit)
	todos := s.TodosSnapshot()
	require.Len(t, todos, 1)
	assert.Equal(t, "write tests", todos[0].Content)
	assert.True(t, hasType(*events, "todos_updated"), "expected todos_updated event, got %+v", *events)

	b.dispatch(context.Background(), s, &inbound{Type: typeRemoveTodo, ID: todos[0].ID}, emit)
	assert.Empty(t, s.TodosSnapshot(), "expected todo removed")
}

func TestDispatchUnknownTypeEmitsError(t *testing.T) {
	b, s := testBridge(t)
	emit, events := collect()

	b.dispatch(context.Background(), s, &inbound{Type: "not_a_real_type"}, emit)

	assert.True(t, hasType(*events, "error"), "expected error event for an unknown message type, got %+v", *events)
}

func TestDispatchTaskWhileRunningReturnsSoftError(t *testing.T) {
	b, s := testBridge(t)
	emit, events := collect()

	// Simulate an in-flight turn without actually running the engine.
	s.SetRunning(true)
	b.dispatch(context.Background(), s, &inbound{Type: typeTask, Content: "hello"}, emit)
	s.SetRunning(false)

	assert.True(t, hasType(*events, "error"), "expected a soft error while a turn is already running, got %+v", *events)
}

func TestCheckpointListReflectsSessionCheckpoints(t *testing.T) {
	b, s := testBridge(t)
	s.AddCheckpoint(session.CheckpointMeta{ID: "step:1", Label: "step:1", Paths: []string{"a.go"}})
	emit, events := collect()

	b.dispatch(context.Background(), s, &inbound{Type: typeCheckpointList}, emit)

	assert.True(t, hasType(*events, "checkpoint_list"), "expected checkpoint_list event, got %+v", *events)
}

func TestReplayEmitsInitAndDone(t *testing.T) {
	b, s := testBridge(t)
	s.AppendUser("hi there", nil)
	s.AppendAssistant([]session.Block{{Kind: session.BlockText, Text: "hello back"}})
	emit, events := collect()

	b.replay(s, emit)

	assert.True(t, hasType(*events, "init"), "expected init event, got %+v", *events)
	assert.True(t, hasType(*events, "replay_user"), "expected replay_user event, got %+v", *events)
	assert.True(t, hasType(*events, "replay_text"), "expected replay_text event, got %+v", *events)
	assert.True(t, hasType(*events, "replay_done"), "expected replay_done event, got %+v", *events)
	assert.True(t, hasType(*events, "resumed"), "expected resumed event, got %+v", *events)
}

func TestReplayEmitsStateWhenAwaitingDecision(t *testing.T) {
	b, s := testBridge(t)
	s.SetPendingPlan(&session.PendingPlan{Steps: []string{"do the thing"}})
	emit, events := collect()

	b.replay(s, emit)

	assert.True(t, hasType(*events, "replay_state"), "expected replay_state event when a plan is pending, got %+v", *events)
}

func hasType(events []turn.Event, typ string) bool {
	for _, e := range events {
		if e.Type == typ {
			return true
		}
	}
	return false
}
