package facade

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/lowkaihon/agentd/internal/projects"
	"github.com/lowkaihon/agentd/internal/sshfs"
)

type sshConnectRequest struct {
	Host         string `json:"host"`
	User         string `json:"user"`
	Port         int    `json:"port,omitempty"`
	IdentityFile string `json:"identity_file,omitempty"`
	Path         string `json:"path"`
}

// handleSSHConnect verifies an SSH target is reachable and its path exists,
// then records it in the recent-projects registry; it does not create a
// session (the session is created separately via /api/sessions/new or
// /api/set-directory with an ssh:// working_directory).
func (f *Facade) handleSSHConnect(w http.ResponseWriter, r *http.Request) {
	var req sshConnectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Host == "" || req.Path == "" {
		writeError(w, http.StatusBadRequest, "host and path are required")
		return
	}

	client, err := sshfs.Dial(r.Context(), req.Host, req.User, req.IdentityFile, req.Port)
	if err != nil {
		writeError(w, http.StatusBadGateway, "ssh connect failed: "+err.Error())
		return
	}
	defer client.Close()

	entries, err := client.ReadDir(r.Context(), req.Path)
	if err != nil {
		writeError(w, http.StatusBadGateway, "path not accessible: "+err.Error())
		return
	}

	info := client.Info()
	if f.projects != nil {
		f.projects.Touch(sshWorkingDirectory(info, req.Path), req.Path, &projects.SSHInfo{
			Host: info.Host, User: info.User, Port: info.Port,
		})
	}

	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "entries": names})
}

func (f *Facade) handleSSHListDir(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	host := q.Get("host")
	path := q.Get("path")
	if host == "" || path == "" {
		writeError(w, http.StatusBadRequest, "host and path are required")
		return
	}
	port, _ := strconv.Atoi(q.Get("port"))

	client, err := sshfs.Dial(r.Context(), host, q.Get("user"), q.Get("identity_file"), port)
	if err != nil {
		writeError(w, http.StatusBadGateway, "ssh connect failed: "+err.Error())
		return
	}
	defer client.Close()

	entries, err := client.ReadDir(r.Context(), path)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	type entry struct {
		Name  string `json:"name"`
		IsDir bool   `json:"is_dir"`
	}
	out := make([]entry, len(entries))
	for i, e := range entries {
		out[i] = entry{Name: e.Name(), IsDir: e.IsDir()}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}

func sshWorkingDirectory(info sshfs.Info, path string) string {
	return fmt.Sprintf("ssh://%s@%s:%d%s", info.User, info.Host, info.Port, path)
}
