package facade

import "net/http"

func (f *Facade) handleTerminal(w http.ResponseWriter, r *http.Request) {
	s, err := f.sessionFromRequest(r)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	f.bridge.HandleTerminal(w, r, s)
}
