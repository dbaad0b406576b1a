package facade

import (
	"net/http"
	"path/filepath"
)

func (f *Facade) handleSessionsList(w http.ResponseWriter, r *http.Request) {
	metas, err := f.mgr.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": metas})
}

type sessionsNewRequest struct {
	Name             string `json:"name"`
	WorkingDirectory string `json:"working_directory"`
}

func (f *Facade) handleSessionsNew(w http.ResponseWriter, r *http.Request) {
	var req sessionsNewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	dir := req.WorkingDirectory
	if dir == "" {
		dir = f.defaultDir
	}
	name := req.Name
	if name == "" {
		name = filepath.Base(dir)
	}
	s, err := f.mgr.Create(name, dir)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	f.touchProject(dir, name)
	writeJSON(w, http.StatusOK, s.MetaSnapshot())
}

type setDirectoryRequest struct {
	SessionID        string `json:"session_id"`
	WorkingDirectory string `json:"working_directory"`
}

// handleSetDirectory repoints an existing session at a new working
// directory. Since Workspace/Tools/Client are wired once at session
// creation, switching directories creates a fresh session rather than
// mutating one in place, keeping the "one workspace per session" invariant
// the Turn Engine and checkpoint store both assume.
func (f *Facade) handleSetDirectory(w http.ResponseWriter, r *http.Request) {
	var req setDirectoryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.WorkingDirectory == "" {
		writeError(w, http.StatusBadRequest, "working_directory is required")
		return
	}
	name := filepath.Base(req.WorkingDirectory)
	if req.SessionID != "" {
		if existing, err := f.mgr.Get(req.SessionID); err == nil {
			name = existing.MetaSnapshot().Name
		}
	}
	s, err := f.mgr.Create(name, req.WorkingDirectory)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	f.touchProject(req.WorkingDirectory, name)
	writeJSON(w, http.StatusOK, s.MetaSnapshot())
}

func (f *Facade) touchProject(dir, name string) {
	if f.projects == nil {
		return
	}
	f.projects.Touch(dir, name, nil)
}
