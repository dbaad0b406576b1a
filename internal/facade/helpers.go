package facade

import (
	"encoding/json"
	"net/http"

	"github.com/lowkaihon/agentd/internal/session"
	"github.com/lowkaihon/agentd/internal/workspace"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeWorkspaceError maps a workspace.Error to the facade's status/hint
// convention so a Monaco client can surface why a file operation failed.
func writeWorkspaceError(w http.ResponseWriter, err error) {
	if werr, ok := err.(*workspace.Error); ok {
		status := http.StatusInternalServerError
		switch werr.Kind {
		case workspace.ENotFound:
			status = http.StatusNotFound
		case workspace.EScope, workspace.EAnchorMissing, workspace.EAnchorAmbiguous:
			status = http.StatusBadRequest
		}
		writeJSON(w, status, map[string]string{"error": werr.Error(), "hint": werr.Hint()})
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// sessionFromRequest resolves the session named by the session_id query
// parameter. Without one it falls back to the most recent session, or
// creates a fresh one rooted at the facade's default directory; an unknown
// id is reported as Manager.Get's error.
func (f *Facade) sessionFromRequest(r *http.Request) (*session.Session, error) {
	id := r.URL.Query().Get("session_id")
	if id == "" {
		if s, err := f.mgr.MostRecent(); err == nil && s != nil {
			return s, nil
		}
		return f.mgr.Create("session", f.defaultDir)
	}
	return f.mgr.Get(id)
}
