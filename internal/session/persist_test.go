package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := New("demo", "/workspace")
	s.AppendUser("hello", nil)
	s.AppendAssistant([]Block{{Kind: BlockText, Text: "hi there"}})
	s.AddTodo("write tests")
	s.SetPendingPlan(&PendingPlan{Steps: []string{"step one"}})
	s.UpdateTokenStats(100, 50, 0, 0.15)

	require.NoError(t, s.Save(dir))

	_, err := os.Stat(filepath.Join(dir, s.ID+".json"))
	require.NoError(t, err, "expected session file to exist")

	loaded, err := Load(dir, s.ID)
	require.NoError(t, err)

	assert.Equal(t, s.ID, loaded.ID)
	assert.Equal(t, s.Name, loaded.Name)
	assert.Equal(t, s.WorkingDirectory, loaded.WorkingDirectory)
	require.Len(t, loaded.History, 2)
	require.Len(t, loaded.Todos, 1)
	assert.Equal(t, "write tests", loaded.Todos[0].Content)
	require.NotNil(t, loaded.PendingPlan)
	assert.Equal(t, "step one", loaded.PendingPlan.Steps[0])
	assert.Equal(t, 100, loaded.TokenStats.InputTokens)
	assert.False(t, loaded.AgentRunning, "expected agent_running to be false on a freshly loaded session")

	// nextTodoID must continue past the loaded todo so a new AddTodo doesn't collide.
	nextID := loaded.AddTodo("second task")
	assert.Equal(t, loaded.Todos[0].ID+1, nextID, "expected next todo id to follow loaded max")
}

func TestSaveIsAtomic(t *testing.T) {
	dir := t.TempDir()
	s := New("demo", "/workspace")
	require.NoError(t, s.Save(dir))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotEqual(t, ".tmp", filepath.Ext(e.Name()), "expected no leftover temp files, found %s", e.Name())
	}
}

func TestLoadUnknownSession(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(dir, "does-not-exist")
	assert.Error(t, err, "expected error loading a session that was never saved")
}

func TestListSessionFilesOrdering(t *testing.T) {
	dir := t.TempDir()
	older := New("older", "/workspace")
	require.NoError(t, older.Save(dir))
	newer := New("newer", "/workspace")
	require.NoError(t, newer.Save(dir))

	olderPath := filepath.Join(dir, older.ID+".json")
	newerPath := filepath.Join(dir, newer.ID+".json")
	past := time.Now().Add(-1 * time.Hour)
	require.NoError(t, os.Chtimes(olderPath, past, past))
	now := time.Now()
	require.NoError(t, os.Chtimes(newerPath, now, now))

	ids, err := ListSessionFiles(dir)
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.Equal(t, newer.ID, ids[0], "expected newest-first ordering")
	assert.Equal(t, older.ID, ids[1])
}

func TestListSessionFilesNoDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "missing")
	ids, err := ListSessionFiles(dir)
	require.NoError(t, err)
	assert.Nil(t, ids, "expected nil ids for missing dir")
}

func TestDeleteSessionFile(t *testing.T) {
	dir := t.TempDir()
	s := New("demo", "/workspace")
	require.NoError(t, s.Save(dir))
	require.NoError(t, deleteSessionFile(dir, s.ID))
	_, err := Load(dir, s.ID)
	assert.Error(t, err, "expected load to fail after delete")
	// Deleting again must be a no-op, not an error.
	assert.NoError(t, deleteSessionFile(dir, s.ID), "expected idempotent delete")
}
