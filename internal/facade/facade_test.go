package facade

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowkaihon/agentd/internal/llm"
	"github.com/lowkaihon/agentd/internal/projects"
	"github.com/lowkaihon/agentd/internal/session"
	"github.com/lowkaihon/agentd/internal/transport"
	"github.com/lowkaihon/agentd/internal/turn"
	"github.com/lowkaihon/agentd/internal/workspace"
)

type stubClient struct{}

func (stubClient) Stream(ctx context.Context, messages []llm.Message, tools []llm.ToolDef) (<-chan llm.StreamEvent, error) {
	ch := make(chan llm.StreamEvent, 1)
	ch <- llm.StreamEvent{Done: true}
	close(ch)
	return ch, nil
}

func testFacade(t *testing.T) (*Facade, string) {
	t.Helper()
	workDir := t.TempDir()
	sessionsDir := t.TempDir()
	mgr := session.NewManager(sessionsDir,
		func(string) (llm.Client, int, error) { return stubClient{}, 100000, nil },
		func(wd string) (*workspace.Workspace, error) { return workspace.New(wd, nil), nil },
	)
	engine := turn.NewEngine(mgr, nil)
	bridge := transport.NewBridge(mgr, engine, transport.NewAskUserBridge())
	store := projects.NewStore(filepath.Join(t.TempDir(), "projects.json"))
	return New(mgr, bridge, store, workDir, "test"), workDir
}

func getJSON(t *testing.T, h http.Handler, url string, out any) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, url, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), "decode response %s", rec.Body.String())
	}
	return rec
}

func postJSON(t *testing.T, h http.Handler, url string, body any, out any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, url, strings.NewReader(string(data)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), "decode response %s", rec.Body.String())
	}
	return rec
}

func TestHandleInfoReportsService(t *testing.T) {
	f, _ := testFacade(t)
	var resp map[string]string
	rec := getJSON(t, f.Router(), "/api/info", &resp)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "agentd", resp["service"])
}

func TestSessionsNewCreatesSessionAndProject(t *testing.T) {
	f, workDir := testFacade(t)
	var meta session.Meta
	rec := postJSON(t, f.Router(), "/api/sessions/new", sessionsNewRequest{WorkingDirectory: workDir}, &meta)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, meta.ID)

	list, err := f.projects.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, workDir, list[0].Path)
}

func TestFileWriteReadRoundTrip(t *testing.T) {
	f, workDir := testFacade(t)
	var meta session.Meta
	postJSON(t, f.Router(), "/api/sessions/new", sessionsNewRequest{WorkingDirectory: workDir}, &meta)

	putReq := httptest.NewRequest(http.MethodPut, "/api/file?session_id="+meta.ID, strings.NewReader(`{"path":"hello.txt","content":"hi there"}`))
	putRec := httptest.NewRecorder()
	f.Router().ServeHTTP(putRec, putReq)
	require.Equal(t, http.StatusOK, putRec.Code, putRec.Body.String())

	var getResp map[string]string
	getJSON(t, f.Router(), "/api/file?session_id="+meta.ID+"&path=hello.txt", &getResp)
	assert.Equal(t, "hi there", getResp["content"])

	_, err := os.Stat(filepath.Join(workDir, "hello.txt"))
	assert.NoError(t, err, "expected file on disk")
}

func TestListFilesReturnsEntries(t *testing.T) {
	f, workDir := testFacade(t)
	os.WriteFile(filepath.Join(workDir, "a.go"), []byte("package main"), 0644)

	var meta session.Meta
	postJSON(t, f.Router(), "/api/sessions/new", sessionsNewRequest{WorkingDirectory: workDir}, &meta)

	var resp map[string]any
	getJSON(t, f.Router(), "/api/files?session_id="+meta.ID, &resp)
	entries, ok := resp["entries"].([]any)
	require.True(t, ok)
	assert.Len(t, entries, 1)
}

func TestProjectsRemoveDropsEntry(t *testing.T) {
	f, workDir := testFacade(t)
	var meta session.Meta
	postJSON(t, f.Router(), "/api/sessions/new", sessionsNewRequest{WorkingDirectory: workDir}, &meta)

	var resp map[string]any
	postJSON(t, f.Router(), "/api/projects/remove", projectsRemoveRequest{Path: workDir}, &resp)

	list, _ := f.projects.List()
	assert.Empty(t, list, "expected project removed")
}

func TestSearchFindsPattern(t *testing.T) {
	f, workDir := testFacade(t)
	os.WriteFile(filepath.Join(workDir, "main.go"), []byte("package main\nfunc Hello() {}\n"), 0644)

	var meta session.Meta
	postJSON(t, f.Router(), "/api/sessions/new", sessionsNewRequest{WorkingDirectory: workDir}, &meta)

	var resp map[string]any
	getJSON(t, f.Router(), "/api/search?session_id="+meta.ID+"&pattern=Hello", &resp)
	matches, ok := resp["matches"].([]any)
	require.True(t, ok)
	assert.Len(t, matches, 1)
}

func TestFindSymbolMatchesFuncDeclaration(t *testing.T) {
	f, workDir := testFacade(t)
	os.WriteFile(filepath.Join(workDir, "main.go"), []byte("package main\nfunc Hello() {}\n"), 0644)

	var meta session.Meta
	postJSON(t, f.Router(), "/api/sessions/new", sessionsNewRequest{WorkingDirectory: workDir}, &meta)

	var resp map[string]any
	getJSON(t, f.Router(), "/api/find-symbol?session_id="+meta.ID+"&name=Hello", &resp)
	matches, ok := resp["matches"].([]any)
	require.True(t, ok)
	assert.Len(t, matches, 1)
}

func TestGitStatusReportsNotARepo(t *testing.T) {
	f, workDir := testFacade(t)
	var meta session.Meta
	postJSON(t, f.Router(), "/api/sessions/new", sessionsNewRequest{WorkingDirectory: workDir}, &meta)

	var resp map[string]any
	getJSON(t, f.Router(), "/api/git-status?session_id="+meta.ID, &resp)
	assert.Equal(t, false, resp["is_repo"], "expected is_repo=false outside a git repo")
}
