package facade

import "net/http"

// handleInfo reports the server's identifying metadata, used by the IDE to
// show a version badge and confirm it is talking to an agentd backend.
func (f *Facade) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "agentd",
		"version": f.version,
	})
}
