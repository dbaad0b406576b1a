package facade

import "net/http"

func (f *Facade) handleGitStatus(w http.ResponseWriter, r *http.Request) {
	s, err := f.sessionFromRequest(r)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	files, ok, err := s.Workspace.GitStatus()
	if err != nil {
		writeWorkspaceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"is_repo": ok, "files": files})
}

func (f *Facade) handleGitFileDiff(w http.ResponseWriter, r *http.Request) {
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
	diff, ok, err := s.Workspace.GitDiff(path)
	if err != nil {
		writeWorkspaceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"is_repo": ok, "diff": diff})
}

// handleGitDiffStats reports the additions/deletions summary the IDE's file
// tree badges use, one entry per changed path, without the full unified text.
func (f *Facade) handleGitDiffStats(w http.ResponseWriter, r *http.Request) {
	s, err := f.sessionFromRequest(r)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	files, ok, err := s.Workspace.GitStatus()
	if err != nil {
		writeWorkspaceError(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"is_repo": false, "stats": []any{}})
		return
	}
	type stat struct {
		Path      string `json:"path"`
		Additions int    `json:"additions"`
		Deletions int    `json:"deletions"`
	}
	stats := make([]stat, 0, len(files))
	for _, gf := range files {
		diff, _, derr := s.Workspace.GitDiff(gf.Path)
		if derr != nil {
			continue
		}
		stats = append(stats, stat{Path: gf.Path, Additions: diff.Additions, Deletions: diff.Deletions})
	}
	writeJSON(w, http.StatusOK, map[string]any{"is_repo": true, "stats": stats})
}
