package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/lowkaihon/agentd/internal/llm"
	"github.com/lowkaihon/agentd/internal/tools"
	"github.com/lowkaihon/agentd/internal/workspace"
)

// saveCoalesceWindow is how long Manager waits after a mutation before
// flushing a session to disk, coalescing bursts of state changes into one
// write (spec §4.E: "throttled, coalesced within ≈250ms").
const saveCoalesceWindow = 250 * time.Millisecond

// ClientFactory builds the LLM client and reports the model's context
// window for a session's working directory. Injected by cmd/agentd so the
// Manager has no direct dependency on provider selection/config.
type ClientFactory func(workingDirectory string) (llm.Client, int, error)

// WorkspaceFactory builds a Workspace for a working_directory, resolving
// local vs SSH-composite roots. Injected to keep internal/sshfs out of
// this package's import graph.
type WorkspaceFactory func(workingDirectory string) (*workspace.Workspace, error)

// ToolsFactory builds the Tool Registry bound to a freshly created
// Workspace. Injected so config.Config's bash denylist reaches the
// registry without this package depending on internal/config.
type ToolsFactory func(ws *workspace.Workspace) *tools.Registry

// Manager keeps a session_id -> *Session map in memory, persists sessions
// after every state-changing event (coalesced), and lazily loads
// previously persisted sessions on first reference (spec §4.E).
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	dir      string

	newClient    ClientFactory
	newWorkspace WorkspaceFactory
	newTools     ToolsFactory

	pending map[string]*time.Timer // session id -> pending coalesced save
}

// NewManager creates a Manager persisting sessions under dir, using
// tools.NewRegistry's defaults for every session's Tool Registry.
func NewManager(dir string, newClient ClientFactory, newWorkspace WorkspaceFactory) *Manager {
	return NewManagerWithTools(dir, newClient, newWorkspace, tools.NewRegistry)
}

// NewManagerWithTools creates a Manager whose sessions' Tool Registries are
// built by newTools (e.g. config.Config.BashDenylist wired through
// tools.NewRegistryWithDenylist), instead of the package defaults.
func NewManagerWithTools(dir string, newClient ClientFactory, newWorkspace WorkspaceFactory, newTools ToolsFactory) *Manager {
	return &Manager{
		sessions:     make(map[string]*Session),
		dir:          dir,
		newClient:    newClient,
		newWorkspace: newWorkspace,
		newTools:     newTools,
		pending:      make(map[string]*time.Timer),
	}
}

// wire attaches a Workspace, Tool Registry, and LLM client to a freshly
// created or loaded Session.
func (m *Manager) wire(s *Session) error {
	ws, err := m.newWorkspace(s.WorkingDirectory)
	if err != nil {
		return fmt.Errorf("resolve workspace for %s: %w", s.WorkingDirectory, err)
	}
	client, contextWindow, err := m.newClient(s.WorkingDirectory)
	if err != nil {
		return fmt.Errorf("create model client: %w", err)
	}
	s.Workspace = ws
	s.Tools = m.newTools(ws)
	s.Client = client
	s.ContextWindow = contextWindow
	return nil
}

// Create starts a brand-new session rooted at workingDirectory.
func (m *Manager) Create(name, workingDirectory string) (*Session, error) {
	s := New(name, workingDirectory)
	if err := m.wire(s); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s, nil
}

// Get returns an in-memory session, lazily loading it from disk on first
// reference if it exists there but isn't resident yet.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	if s, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		return s, nil
	}
	m.mu.Unlock()

	s, err := Load(m.dir, id)
	if err != nil {
		return nil, err
	}
	if err := m.wire(s); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if existing, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		return existing, nil
	}
	m.sessions[id] = s
	m.mu.Unlock()
	return s, nil
}

// Most recently updated resident or persisted session id, used when a
// client connects to /ws without a session_id (spec §4.F).
func (m *Manager) MostRecent() (*Session, error) {
	ids, err := ListSessionFiles(m.dir)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	var newest *Session
	var newestUpdated time.Time
	for _, s := range m.sessions {
		meta := s.MetaSnapshot()
		if newest == nil || meta.UpdatedAt.After(newestUpdated) {
			newest = s
			newestUpdated = meta.UpdatedAt
		}
	}
	m.mu.Unlock()
	if len(ids) == 0 {
		return newest, nil
	}
	onDisk, err := m.Get(ids[0])
	if err != nil {
		return newest, nil
	}
	if newest == nil || onDisk.MetaSnapshot().UpdatedAt.After(newestUpdated) {
		return onDisk, nil
	}
	return newest, nil
}

// List returns metadata for every persisted session, newest first.
func (m *Manager) List() ([]Meta, error) {
	ids, err := ListSessionFiles(m.dir)
	if err != nil {
		return nil, err
	}
	out := make([]Meta, 0, len(ids))
	for _, id := range ids {
		m.mu.Lock()
		s, resident := m.sessions[id]
		m.mu.Unlock()
		if resident {
			out = append(out, s.MetaSnapshot())
			continue
		}
		loaded, err := Load(m.dir, id)
		if err != nil {
			continue
		}
		out = append(out, loaded.MetaSnapshot())
	}
	return out, nil
}

// Delete removes a session from memory and disk.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	delete(m.sessions, id)
	if t, ok := m.pending[id]; ok {
		t.Stop()
		delete(m.pending, id)
	}
	m.mu.Unlock()
	return deleteSessionFile(m.dir, id)
}

// TryStart marks a session running if no turn is already in flight,
// enforcing the one-turn-at-a-time invariant (spec §3/§4.E): a second task
// submission while agent_running is true returns ok=false, a soft error.
func (m *Manager) TryStart(s *Session) (ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.AgentRunning {
		return false
	}
	s.AgentRunning = true
	s.touch()
	return true
}

// ScheduleSave coalesces Save calls within saveCoalesceWindow.
func (m *Manager) ScheduleSave(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.pending[s.ID]; ok {
		t.Stop()
	}
	m.pending[s.ID] = time.AfterFunc(saveCoalesceWindow, func() {
		s.Save(m.dir)
		m.mu.Lock()
		delete(m.pending, s.ID)
		m.mu.Unlock()
	})
}

// FlushSave saves immediately, bypassing coalescing. Must be called before
// a done/cancelled/error event reaches the client (spec §4.E/§7).
func (m *Manager) FlushSave(s *Session) error {
	m.mu.Lock()
	if t, ok := m.pending[s.ID]; ok {
		t.Stop()
		delete(m.pending, s.ID)
	}
	m.mu.Unlock()
	return s.Save(m.dir)
}
