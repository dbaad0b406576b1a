package facade

import (
	"net/http"
)

func (f *Facade) handleListFiles(w http.ResponseWriter, r *http.Request) {
	s, err := f.sessionFromRequest(r)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	entries, err := s.Workspace.List(r.URL.Query().Get("dir"))
	if err != nil {
		writeWorkspaceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (f *Facade) handleFileGet(w http.ResponseWriter, r *http.Request) {
	s, err := f.sessionFromRequest(r)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	content, err := s.Workspace.ReadRaw(path)
	if err != nil {
		writeWorkspaceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"path": path, "content": content})
}

type filePutRequest struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

func (f *Facade) handleFilePut(w http.ResponseWriter, r *http.Request) {
	s, err := f.sessionFromRequest(r)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	var req filePutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	// Facade writes bypass checkpoint capture: they are direct IDE edits,
	// not agent tool calls, so there is no BUILD-step baseline to track.
	if err := s.Workspace.Write(nil, req.Path, req.Content); err != nil {
		writeWorkspaceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type filePathRequest struct {
	Path string `json:"path"`
}

func (f *Facade) handleFileDelete(w http.ResponseWriter, r *http.Request) {
	s, err := f.sessionFromRequest(r)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	var req filePathRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.Workspace.Delete(nil, req.Path); err != nil {
		writeWorkspaceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type fileRenameRequest struct {
	OldPath string `json:"old_path"`
	NewPath string `json:"new_path"`
}

func (f *Facade) handleFileRename(w http.ResponseWriter, r *http.Request) {
	s, err := f.sessionFromRequest(r)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	var req fileRenameRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.Workspace.Rename(nil, req.OldPath, req.NewPath); err != nil {
		writeWorkspaceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (f *Facade) handleFileMkdir(w http.ResponseWriter, r *http.Request) {
	s, err := f.sessionFromRequest(r)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	var req filePathRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.Workspace.Mkdir(req.Path); err != nil {
		writeWorkspaceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (f *Facade) handleFileDiff(w http.ResponseWriter, r *http.Request) {
	s, err := f.sessionFromRequest(r)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	diff, err := s.Workspace.Diff(path)
	if err != nil {
		writeWorkspaceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, diff)
}
