// Package projects implements the recent-projects registry: a small durable
// list of directories the IDE has pointed a session at, most recently used
// first, so the facade's /api/projects can offer a picker without scanning
// the session store. It is deliberately separate from internal/session's
// persistence (spec §6): a project can be recorded before any session ever
// opens it, and survives session deletion.
package projects

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// SSHInfo identifies the remote side of an SSH-backed project.
type SSHInfo struct {
	Host string `json:"host"`
	User string `json:"user"`
	Port int    `json:"port,omitempty"`
}

// Project is one entry of the recent-projects list.
type Project struct {
	Path      string   `json:"path"`
	Name      string   `json:"name"`
	UpdatedAt string   `json:"updated_at"`
	IsSSH     bool     `json:"is_ssh"`
	SSHInfo   *SSHInfo `json:"ssh_info,omitempty"`
}

// maxProjects bounds the registry so it never grows unbounded across years
// of use; the oldest entries fall off first.
const maxProjects = 50

// Store is the durable, mutex-guarded recent-projects list, one JSON file
// on disk.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore creates a Store backed by path (created on first Touch/Remove if
// it doesn't yet exist).
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Touch records path as most-recently-used, updating its name/ssh_info if
// already present, or inserting it at the front if not.
func (st *Store) Touch(path, name string, sshInfo *SSHInfo) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	list, err := st.load()
	if err != nil {
		return err
	}

	now := time.Now().Format(time.RFC3339)
	filtered := make([]Project, 0, len(list)+1)
	filtered = append(filtered, Project{
		Path:      path,
		Name:      name,
		UpdatedAt: now,
		IsSSH:     sshInfo != nil,
		SSHInfo:   sshInfo,
	})
	for _, p := range list {
		if p.Path == path {
			continue
		}
		filtered = append(filtered, p)
	}
	if len(filtered) > maxProjects {
		filtered = filtered[:maxProjects]
	}
	return st.save(filtered)
}

// List returns the recent-projects list, most recently used first.
func (st *Store) List() ([]Project, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.load()
}

// Remove drops path from the registry, if present.
func (st *Store) Remove(path string) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	list, err := st.load()
	if err != nil {
		return err
	}
	filtered := list[:0]
	for _, p := range list {
		if p.Path != path {
			filtered = append(filtered, p)
		}
	}
	return st.save(filtered)
}

func (st *Store) load() ([]Project, error) {
	data, err := os.ReadFile(st.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var list []Project
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, err
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].UpdatedAt > list[j].UpdatedAt })
	return list, nil
}

func (st *Store) save(list []Project) error {
	if list == nil {
		list = []Project{}
	}
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(st.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".projects-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, st.path)
}
