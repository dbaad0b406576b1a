package turn

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowkaihon/agentd/internal/workspace"
)

func TestBuildReviewSkipsUnchangedPaths(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte("package a\n"), 0644))
	ws := workspace.New(dir, nil)
	cp := ws.Checkpoints().Open("turn", "turn", nil)

	// Touched but rewritten with identical content: should produce no diff.
	require.NoError(t, ws.Write(cp, "a.go", "package a\n"))
	files, pending := buildReview(ws)
	assert.Empty(t, files, "expected no diff entries for an unchanged file")
	assert.Empty(t, pending)
}

func TestBuildReviewReportsModifiedAndNewFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "existing.go"), []byte("package a\n"), 0644))
	ws := workspace.New(dir, nil)
	cp := ws.Checkpoints().Open("turn", "turn", nil)

	require.NoError(t, ws.Write(cp, "existing.go", "package a\n\nfunc X() {}\n"))
	require.NoError(t, ws.Write(cp, "new.go", "package a\n"))

	files, pending := buildReview(ws)
	require.Len(t, files, 2)
	require.Len(t, pending, 2)
	// Sorted path order: existing.go before new.go.
	assert.Equal(t, "existing.go", files[0].Path)
	assert.Equal(t, "new.go", files[1].Path)
}
