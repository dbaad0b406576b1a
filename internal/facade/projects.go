package facade

import "net/http"

func (f *Facade) handleProjectsList(w http.ResponseWriter, r *http.Request) {
	if f.projects == nil {
		writeJSON(w, http.StatusOK, map[string]any{"projects": []any{}})
		return
	}
	list, err := f.projects.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": list})
}

type projectsRemoveRequest struct {
	Path string `json:"path"`
}

func (f *Facade) handleProjectsRemove(w http.ResponseWriter, r *http.Request) {
	var req projectsRemoveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if f.projects == nil {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}
	if err := f.projects.Remove(req.Path); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
