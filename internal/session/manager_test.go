package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowkaihon/agentd/internal/llm"
	"github.com/lowkaihon/agentd/internal/workspace"
)

type noopClient struct{}

func (noopClient) Stream(ctx context.Context, messages []llm.Message, tools []llm.ToolDef) (<-chan llm.StreamEvent, error) {
	ch := make(chan llm.StreamEvent)
	close(ch)
	return ch, nil
}

func testManager(t *testing.T) *Manager {
	t.Helper()
	dir := t.TempDir()
	return NewManager(dir,
		func(workingDirectory string) (llm.Client, int, error) { return noopClient{}, 128000, nil },
		func(workingDirectory string) (*workspace.Workspace, error) { return workspace.New(workingDirectory, nil), nil },
	)
}

func TestManagerCreateAndGet(t *testing.T) {
	m := testManager(t)
	s, err := m.Create("demo", t.TempDir())
	require.NoError(t, err)
	require.NotNil(t, s.Workspace)
	require.NotNil(t, s.Tools)
	require.NotNil(t, s.Client)
	assert.Equal(t, 128000, s.ContextWindow, "expected context window from factory")

	got, err := m.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got, "expected Get to return the same resident session instance")
}

func TestManagerGetLazyLoadsFromDisk(t *testing.T) {
	m := testManager(t)
	s, err := m.Create("demo", t.TempDir())
	require.NoError(t, err)
	s.AppendUser("hello", nil)
	require.NoError(t, m.FlushSave(s))

	// A second manager over the same directory has no resident sessions yet.
	m2 := NewManager(m.dir, m.newClient, m.newWorkspace)
	loaded, err := m2.Get(s.ID)
	require.NoError(t, err, "lazy load failed")
	assert.Len(t, loaded.HistorySnapshot(), 1, "expected loaded session to carry persisted history")
	assert.NotNil(t, loaded.Workspace)
	assert.NotNil(t, loaded.Tools)
	assert.NotNil(t, loaded.Client)
}

func TestManagerTryStartEnforcesOneTurnAtATime(t *testing.T) {
	m := testManager(t)
	s, err := m.Create("demo", t.TempDir())
	require.NoError(t, err)

	require.True(t, m.TryStart(s), "expected first TryStart to succeed")
	assert.False(t, m.TryStart(s), "expected second TryStart to fail while a turn is in flight")

	s.SetRunning(false)
	assert.True(t, m.TryStart(s), "expected TryStart to succeed again once the turn finished")
}

func TestManagerDeleteRemovesFromMemoryAndDisk(t *testing.T) {
	m := testManager(t)
	s, err := m.Create("demo", t.TempDir())
	require.NoError(t, err)
	require.NoError(t, m.FlushSave(s))

	require.NoError(t, m.Delete(s.ID))
	_, err = Load(m.dir, s.ID)
	assert.Error(t, err, "expected session file to be gone after delete")
	_, err = m.Get(s.ID)
	assert.Error(t, err, "expected Get to fail for a deleted session")
}

func TestManagerListReturnsPersistedSessions(t *testing.T) {
	m := testManager(t)
	a, err := m.Create("alpha", t.TempDir())
	require.NoError(t, err)
	b, err := m.Create("beta", t.TempDir())
	require.NoError(t, err)
	require.NoError(t, m.FlushSave(a))
	require.NoError(t, m.FlushSave(b))

	metas, err := m.List()
	require.NoError(t, err)
	assert.Len(t, metas, 2)
}

func TestManagerScheduleSaveCoalesces(t *testing.T) {
	m := testManager(t)
	s, err := m.Create("demo", t.TempDir())
	require.NoError(t, err)

	s.AppendUser("first", nil)
	m.ScheduleSave(s)
	s.AppendUser("second", nil)
	m.ScheduleSave(s)

	// FlushSave must win over any pending coalesced timer and persist the
	// latest state immediately, which is what done/cancelled/error rely on.
	require.NoError(t, m.FlushSave(s))

	loaded, err := Load(m.dir, s.ID)
	require.NoError(t, err)
	assert.Len(t, loaded.History, 2, "expected both appended messages persisted")
}
