package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// persistedFields mirrors Session's exported-and-tagged fields; marshaling
// Session directly works since the runtime-only fields carry `json:"-"`,
// but a dedicated type keeps the on-disk shape explicit and stable even if
// Session grows more runtime-only fields later — ported from the teacher's
// SessionFile split between metadata and durable content.
type persistedFields struct {
	ID               string           `json:"session_id"`
	Name             string           `json:"name"`
	WorkingDirectory string           `json:"working_directory"`
	CreatedAt        string           `json:"created_at"`
	UpdatedAt        string           `json:"updated_at"`
	History          []Message       `json:"history"`
	Todos            []Todo          `json:"todos"`
	PendingPlan      *PendingPlan     `json:"pending_plan,omitempty"`
	PendingDiffs     []PendingDiff    `json:"pending_diffs,omitempty"`
	Checkpoints      []CheckpointMeta `json:"checkpoints"`
	TokenStats       TokenStats       `json:"token_stats"`
	AgentRunning     bool             `json:"agent_running"`
}

// sessionFilePath returns the on-disk path for a session, one file per id.
func sessionFilePath(dir, id string) string {
	return filepath.Join(dir, id+".json")
}

// Save atomically persists the session's durable fields to dir. Called by
// the Manager's debounced writer and always before a done/cancelled/error
// event is emitted (spec §4.E flush guarantee).
func (s *Session) Save(dir string) error {
	s.mu.Lock()
	data, err := json.Marshal(persistedFields{
		ID:               s.ID,
		Name:             s.Name,
		WorkingDirectory: s.WorkingDirectory,
		CreatedAt:        s.CreatedAt.Format(timeLayout),
		UpdatedAt:        s.UpdatedAt.Format(timeLayout),
		History:          s.History,
		Todos:            s.Todos,
		PendingPlan:      s.PendingPlan,
		PendingDiffs:     s.PendingDiffs,
		Checkpoints:      s.Checkpoints,
		TokenStats:       s.TokenStats,
		AgentRunning:     s.AgentRunning,
	})
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", s.ID, err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create sessions dir: %w", err)
	}
	return atomicWriteFile(sessionFilePath(dir, s.ID), data)
}

const timeLayout = "2006-01-02T15:04:05.999999999Z07:00"

func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".session-*.tmp")
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
	return os.Rename(tmpName, path)
}

// Load reads a session's durable fields from dir into a fresh Session. The
// caller (the Manager) must still wire Workspace/Tools/Client.
func Load(dir, id string) (*Session, error) {
	data, err := os.ReadFile(sessionFilePath(dir, id))
	if err != nil {
		return nil, fmt.Errorf("read session %s: %w", id, err)
	}
	var pf persistedFields
	if err := json.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse session %s: %w", id, err)
	}

	s := &Session{
		ID:               pf.ID,
		Name:             pf.Name,
		WorkingDirectory: pf.WorkingDirectory,
		History:          pf.History,
		Todos:            pf.Todos,
		PendingPlan:      pf.PendingPlan,
		PendingDiffs:     pf.PendingDiffs,
		Checkpoints:      pf.Checkpoints,
		TokenStats:       pf.TokenStats,
		AgentRunning:     false, // a resumed process never has a turn in flight
	}
	s.CreatedAt = parseTimeOrNow(pf.CreatedAt)
	s.UpdatedAt = parseTimeOrNow(pf.UpdatedAt)
	for _, t := range pf.Todos {
		if t.ID >= s.nextTodoID {
			s.nextTodoID = t.ID + 1
		}
	}
	if s.nextTodoID == 0 {
		s.nextTodoID = 1
	}
	return s, nil
}

func parseTimeOrNow(v string) time.Time {
	t, err := time.Parse(timeLayout, v)
	if err != nil {
		return time.Now()
	}
	return t
}

// deleteSessionFile removes a session's persisted file, if present.
func deleteSessionFile(dir, id string) error {
	err := os.Remove(sessionFilePath(dir, id))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

// ListSessionFiles returns the ids of all persisted sessions under dir,
// sorted by file modification time descending (newest first).
func ListSessionFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	type entry struct {
		id      string
		modTime int64
	}
	var out []entry
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, entry{id: e.Name()[:len(e.Name())-len(".json")], modTime: info.ModTime().UnixNano()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].modTime > out[j].modTime })
	ids := make([]string, len(out))
	for i, e := range out {
		ids[i] = e.id
	}
	return ids, nil
}
