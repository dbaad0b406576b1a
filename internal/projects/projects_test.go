package projects

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTouchInsertsMostRecentFirst(t *testing.T) {
	st := NewStore(filepath.Join(t.TempDir(), "projects.json"))

	require.NoError(t, st.Touch("/work/a", "a", nil))
	require.NoError(t, st.Touch("/work/b", "b", nil))

	list, err := st.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "/work/b", list[0].Path, "expected b most recent")
}

func TestTouchExistingPathMovesToFront(t *testing.T) {
	st := NewStore(filepath.Join(t.TempDir(), "projects.json"))
	st.Touch("/work/a", "a", nil)
	st.Touch("/work/b", "b", nil)
	st.Touch("/work/a", "renamed-a", nil)

	list, _ := st.List()
	require.Len(t, list, 2)
	require.Equal(t, "/work/a", list[0].Path)
	require.Equal(t, "renamed-a", list[0].Name, "expected updated name")
}

func TestRemoveDropsEntry(t *testing.T) {
	st := NewStore(filepath.Join(t.TempDir(), "projects.json"))
	st.Touch("/work/a", "a", nil)

	require.NoError(t, st.Remove("/work/a"))
	list, _ := st.List()
	require.Empty(t, list)
}

func TestTouchRecordsSSHInfo(t *testing.T) {
	st := NewStore(filepath.Join(t.TempDir(), "projects.json"))
	st.Touch("ssh://box/srv/app", "app", &SSHInfo{Host: "box", User: "deploy", Port: 22})

	list, _ := st.List()
	require.Len(t, list, 1)
	require.True(t, list[0].IsSSH)
	require.NotNil(t, list[0].SSHInfo)
	require.Equal(t, "box", list[0].SSHInfo.Host)
}

func TestListOnMissingFileReturnsEmpty(t *testing.T) {
	st := NewStore(filepath.Join(t.TempDir(), "does-not-exist.json"))
	list, err := st.List()
	require.NoError(t, err)
	require.Empty(t, list)
}
