package facade

import (
	"net/http"
	"regexp"
)

func (f *Facade) handleSearch(w http.ResponseWriter, r *http.Request) {
	s, err := f.sessionFromRequest(r)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	pattern := r.URL.Query().Get("pattern")
	if pattern == "" {
		writeError(w, http.StatusBadRequest, "pattern is required")
		return
	}
	matches, total, err := s.Workspace.Grep(r.Context(), pattern, r.URL.Query().Get("dir"), r.URL.Query().Get("include"))
	if err != nil {
		writeWorkspaceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"matches": matches, "total": total})
}

type replaceRequest struct {
	Pattern     string `json:"pattern"`
	Replacement string `json:"replacement"`
	Include     string `json:"include,omitempty"`
	Dir         string `json:"dir,omitempty"`
}

// handleReplace runs the same content search as /api/search, then, for each
// matched file, applies the regexp replacement to the whole content read via
// Workspace.ReadRaw and writes the result back with Workspace.Write.
// Workspace.Edit's single-occurrence/ambiguous-match rules do not apply.
func (f *Facade) handleReplace(w http.ResponseWriter, r *http.Request) {
	s, err := f.sessionFromRequest(r)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	var req replaceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Pattern == "" {
		writeError(w, http.StatusBadRequest, "pattern is required")
		return
	}
	re, err := regexp.Compile(req.Pattern)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid pattern: "+err.Error())
		return
	}

	matches, _, err := s.Workspace.Grep(r.Context(), req.Pattern, req.Dir, req.Include)
	if err != nil {
		writeWorkspaceError(w, err)
		return
	}

	type result struct {
		Path  string `json:"path"`
		Lines int    `json:"lines_replaced"`
		Error string `json:"error,omitempty"`
	}
	seen := make(map[string]bool)
	results := make([]result, 0, len(matches))
	for _, m := range matches {
		if seen[m.Path] {
			continue
		}
		seen[m.Path] = true

		content, rerr := s.Workspace.ReadRaw(m.Path)
		if rerr != nil {
			results = append(results, result{Path: m.Path, Error: rerr.Error()})
			continue
		}
		replaced := re.ReplaceAllString(content, req.Replacement)
		if replaced == content {
			continue
		}
		if werr := s.Workspace.Write(nil, m.Path, replaced); werr != nil {
			results = append(results, result{Path: m.Path, Error: werr.Error()})
			continue
		}
		results = append(results, result{Path: m.Path, Lines: len(re.FindAllString(content, -1))})
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (f *Facade) handleFindSymbol(w http.ResponseWriter, r *http.Request) {
	s, err := f.sessionFromRequest(r)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	matches, total, err := s.Workspace.FindSymbol(r.Context(), name, r.URL.Query().Get("include"))
	if err != nil {
		writeWorkspaceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"matches": matches, "total": total})
}
