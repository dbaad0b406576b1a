// Package facade implements the External Facade: HTTP JSON endpoints the
// browser IDE uses for the file tree, file CRUD, search/replace, git status,
// recent projects, SSH connect, and session listing (spec.md §4.G), plus the
// two WebSocket upgrades (agent, terminal) the Transport Bridge drives.
// Every handler that touches a workspace resolves it through a Session, so
// scope enforcement stays centralized in internal/workspace.
package facade

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lowkaihon/agentd/internal/logging"
	"github.com/lowkaihon/agentd/internal/projects"
	"github.com/lowkaihon/agentd/internal/session"
	"github.com/lowkaihon/agentd/internal/transport"
)

// Facade wires the session manager, transport bridge, and recent-projects
// registry into one HTTP router.
type Facade struct {
	mgr        *session.Manager
	bridge     *transport.Bridge
	projects   *projects.Store
	defaultDir string
	version    string
	log        logging.Logger
}

// New creates a Facade. defaultDir roots a brand-new session when a client
// connects without naming one; version is echoed by /api/info.
func New(mgr *session.Manager, bridge *transport.Bridge, projectStore *projects.Store, defaultDir, version string) *Facade {
	return &Facade{
		mgr:        mgr,
		bridge:     bridge,
		projects:   projectStore,
		defaultDir: defaultDir,
		version:    version,
		log:        logging.Named("facade"),
	}
}

// Router builds the complete chi.Router for the HTTP facade, including the
// two WebSocket upgrade endpoints.
func (f *Facade) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Get("/ws", func(w http.ResponseWriter, req *http.Request) {
		f.bridge.HandleWS(w, req, f.defaultDir)
	})
	r.Get("/ws/terminal", f.handleTerminal)

	r.Route("/api", func(api chi.Router) {
		api.Get("/info", f.handleInfo)

		api.Get("/files", f.handleListFiles)
		api.Get("/file", f.handleFileGet)
		api.Put("/file", f.handleFilePut)
		api.Post("/file/delete", f.handleFileDelete)
		api.Post("/file/rename", f.handleFileRename)
		api.Post("/file/mkdir", f.handleFileMkdir)
		api.Get("/file-diff", f.handleFileDiff)

		api.Get("/git-status", f.handleGitStatus)
		api.Get("/git-file-diff", f.handleGitFileDiff)
		api.Get("/git-diff-stats", f.handleGitDiffStats)

		api.Get("/search", f.handleSearch)
		api.Post("/replace", f.handleReplace)
		api.Get("/find-symbol", f.handleFindSymbol)

		api.Get("/projects", f.handleProjectsList)
		api.Post("/projects/remove", f.handleProjectsRemove)

		api.Get("/sessions", f.handleSessionsList)
		api.Post("/sessions/new", f.handleSessionsNew)
		api.Post("/set-directory", f.handleSetDirectory)

		api.Post("/ssh-connect", f.handleSSHConnect)
		api.Get("/ssh-list-dir", f.handleSSHListDir)
	})

	return r
}
