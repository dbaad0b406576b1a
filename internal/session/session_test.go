package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowkaihon/agentd/internal/workspace"
)

func TestGenerateSessionID(t *testing.T) {
	id1 := generateSessionID()
	id2 := generateSessionID()
	assert.NotEqual(t, id1, id2, "expected unique IDs")
	assert.GreaterOrEqual(t, len(id1), 20, "session ID too short: %s", id1)
}

func TestNewSession(t *testing.T) {
	s := New("demo", "/workspace")
	require.NotEmpty(t, s.ID, "expected non-empty session id")
	assert.Equal(t, "demo", s.Name)
	assert.Equal(t, "/workspace", s.WorkingDirectory)
	assert.False(t, s.IsRunning(), "new session should not be running")
	assert.False(t, s.AwaitingDecision(), "new session should not be awaiting a decision")
}

func TestAppendUserAndAssistant(t *testing.T) {
	s := New("demo", "/workspace")
	s.AppendUser("fix the bug", nil)
	s.AppendAssistant([]Block{
		{Kind: BlockText, Text: "looking into it"},
		{Kind: BlockToolUse, ID: "call_1", Name: "read", Input: `{"path":"main.go"}`},
		{Kind: BlockToolResult, ID: "call_1", Content: "package main", Success: true},
	})

	hist := s.HistorySnapshot()
	require.Len(t, hist, 2)
	assert.Equal(t, "user", hist[0].Role)
	assert.Equal(t, "fix the bug", hist[0].Text)
	assert.Equal(t, "assistant", hist[1].Role)
	assert.Len(t, hist[1].Blocks, 3)
}

func TestSetRunningAndCancel(t *testing.T) {
	s := New("demo", "/workspace")
	s.SetRunning(true)
	require.True(t, s.IsRunning())

	called := false
	s.SetCancel(func() { called = true })
	require.True(t, s.Cancel(), "expected Cancel to report a cancel func was invoked")
	assert.True(t, called, "expected cancel function to run")

	s.SetRunning(false)
	assert.False(t, s.IsRunning(), "expected not running after SetRunning(false)")
}

func TestCancelWithoutInFlightTurn(t *testing.T) {
	s := New("demo", "/workspace")
	assert.False(t, s.Cancel(), "expected Cancel to report false with no cancel func set")
}

func TestPendingPlanAndDiffsGateAwaitingDecision(t *testing.T) {
	s := New("demo", "/workspace")

	s.SetPendingPlan(&PendingPlan{Steps: []string{"step one", "step two"}})
	assert.True(t, s.AwaitingDecision(), "expected awaiting decision with a pending plan")
	s.ClearPendingPlan()
	assert.False(t, s.AwaitingDecision(), "expected not awaiting decision after plan cleared")

	s.SetPendingDiffs([]PendingDiff{{Path: "main.go", Label: LabelModified}})
	assert.True(t, s.AwaitingDecision(), "expected awaiting decision with pending diffs")
	s.ClearPendingDiffs()
	assert.False(t, s.AwaitingDecision(), "expected not awaiting decision after diffs cleared")
}

func TestTodoLifecycle(t *testing.T) {
	s := New("demo", "/workspace")

	id1 := s.AddTodo("write tests")
	id2 := s.AddTodo("update docs")
	require.NotEqual(t, id1, id2, "expected distinct todo ids")

	require.True(t, s.UpdateTodoStatus(id1, TodoInProgress), "expected update to succeed")
	assert.False(t, s.UpdateTodoStatus(999, TodoCompleted), "expected update on unknown id to fail")

	todos := s.TodosSnapshot()
	require.Len(t, todos, 2)
	assert.Equal(t, TodoInProgress, todos[0].Status)

	s.RemoveTodo(id2)
	todos = s.TodosSnapshot()
	assert.Len(t, todos, 1)
}

func TestSetTodosReplacesList(t *testing.T) {
	s := New("demo", "/workspace")
	s.AddTodo("old task")

	newTodos := s.SetTodos([]string{"task a", "task b", "task c"})
	require.Len(t, newTodos, 3)
	snapshot := s.TodosSnapshot()
	require.Len(t, snapshot, 3)
	for _, td := range snapshot {
		assert.Equal(t, TodoPending, td.Status, "expected fresh todos pending")
	}
}

func TestCheckpointMetaLifecycle(t *testing.T) {
	s := New("demo", "/workspace")
	step0 := 0
	s.AddCheckpoint(CheckpointMeta{ID: "cp1", Paths: []string{"a.go"}, StepIndex: &step0})
	step1 := 1
	s.AddCheckpoint(CheckpointMeta{ID: "cp2", Paths: []string{"b.go"}, StepIndex: &step1})

	s.TruncateCheckpoints(1)
	require.Len(t, s.Checkpoints, 1)
	assert.Equal(t, "cp1", s.Checkpoints[0].ID, "expected cp1 to remain")

	s.ClearCheckpoints()
	assert.Empty(t, s.Checkpoints)
}

func TestUpdateTokenStatsAccumulates(t *testing.T) {
	s := New("demo", "/workspace")
	s.UpdateTokenStats(100, 50, 10, 0.1)
	s.UpdateTokenStats(200, 75, 20, 0.2)

	assert.Equal(t, 300, s.TokenStats.InputTokens, "expected accumulated input tokens")
	assert.Equal(t, 125, s.TokenStats.OutputTokens, "expected accumulated output tokens")
	assert.Equal(t, 0.2, s.TokenStats.ContextUsagePct, "expected latest context usage pct")
}

func TestResetPreservesIdentity(t *testing.T) {
	dir := t.TempDir()
	s := New("demo", dir)
	s.Workspace = workspace.New(s.WorkingDirectory, nil)
	s.AppendUser("hello", nil)
	s.AddTodo("task")
	s.SetPendingPlan(&PendingPlan{Steps: []string{"a"}})
	s.AddCheckpoint(CheckpointMeta{ID: "cp1"})
	s.UpdateTokenStats(10, 10, 0, 0.1)
	s.SetRunning(true)

	originalID := s.ID
	s.Reset()

	assert.Equal(t, originalID, s.ID, "expected identity preserved across reset")
	assert.Equal(t, "demo", s.Name)
	assert.Equal(t, dir, s.WorkingDirectory)
	assert.Empty(t, s.History, "expected cleared history after reset")
	assert.Empty(t, s.Todos, "expected cleared todos after reset")
	assert.Nil(t, s.PendingPlan)
	assert.Empty(t, s.Checkpoints, "expected cleared checkpoints after reset")
	assert.Equal(t, TokenStats{}, s.TokenStats, "expected cleared stats after reset")
	assert.False(t, s.AgentRunning, "expected cleared running flag after reset")
}

func TestMetaSnapshot(t *testing.T) {
	s := New("demo", "/workspace")
	s.AppendUser("hi", nil)
	s.AppendAssistant([]Block{{Kind: BlockText, Text: "hello"}})

	meta := s.MetaSnapshot()
	assert.Equal(t, s.ID, meta.ID)
	assert.Equal(t, "demo", meta.Name)
	assert.Equal(t, 2, meta.MessageCount, "expected message count 2")
}
