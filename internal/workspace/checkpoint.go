package workspace

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"sync"
	"time"
)

// Baseline is the pre-mutation content of one path, or nil if the path did
// not exist before the mutation that triggered the capture.
type Baseline struct {
	Existed bool
	Content []byte
}

// Checkpoint is a named snapshot of the set of files touched since it was
// opened, storing each path's pre-mutation bytes. Ported from the teacher's
// per-turn Checkpoint, generalized to one-per-BUILD-step.
type Checkpoint struct {
	ID        string
	Label     string // "turn", "step:N", ...
	StepIndex *int
	CreatedAt time.Time
	Files     map[string]*Baseline
	sealed    bool
}

// CheckpointStore owns the ordered list of checkpoints for one session's
// Workspace. Exclusively owned by the session actor (spec.md §5).
type CheckpointStore struct {
	mu          sync.Mutex
	root        string
	remote      RemoteFS // nil for local workspaces, mirrors Workspace.remote
	checkpoints []*Checkpoint
	interned    map[string][]byte // content_hash -> bytes, dedupes nearby baselines
}

func newCheckpointStore(root string, remote RemoteFS) *CheckpointStore {
	return &CheckpointStore{root: root, remote: remote, interned: make(map[string][]byte)}
}

func (s *CheckpointStore) readFile(abs string) ([]byte, error) {
	if s.remote != nil {
		return s.remote.ReadFile(context.Background(), abs)
	}
	return os.ReadFile(abs)
}

func (s *CheckpointStore) writeFile(abs string, data []byte, perm os.FileMode) error {
	if s.remote != nil {
		return s.remote.WriteFile(context.Background(), abs, data, perm)
	}
	return atomicWrite(abs, data, perm)
}

func (s *CheckpointStore) removeFile(abs string) error {
	if s.remote != nil {
		return s.remote.Remove(context.Background(), abs)
	}
	return os.Remove(abs)
}

// Open starts a new checkpoint with the given id/label and returns it. The
// checkpoint accumulates baselines via CaptureBeforeWrite until Seal is called.
func (s *CheckpointStore) Open(id, label string, stepIndex *int) *Checkpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := &Checkpoint{
		ID:        id,
		Label:     label,
		StepIndex: stepIndex,
		CreatedAt: time.Now(),
		Files:     make(map[string]*Baseline),
	}
	s.checkpoints = append(s.checkpoints, cp)
	return cp
}

// CaptureBeforeWrite records path's current on-disk bytes into the active
// (unsealed) checkpoint the first time the path is touched within it.
// Subsequent mutations of the same path within the same checkpoint are
// no-ops, per spec.md §4.A.
func (s *CheckpointStore) CaptureBeforeWrite(cp *Checkpoint, absPath, relPath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := cp.Files[relPath]; ok {
		return
	}
	data, err := s.readFile(absPath)
	if err != nil {
		cp.Files[relPath] = &Baseline{Existed: false}
		return
	}
	hash := contentHash(data)
	if interned, ok := s.interned[hash]; ok {
		cp.Files[relPath] = &Baseline{Existed: true, Content: interned}
		return
	}
	s.interned[hash] = data
	cp.Files[relPath] = &Baseline{Existed: true, Content: data}
}

func contentHash(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}

// Seal freezes a checkpoint; its baselines no longer accept new captures.
func (s *CheckpointStore) Seal(cp *Checkpoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp.sealed = true
}

// List returns all checkpoints in creation order.
func (s *CheckpointStore) List() []*Checkpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Checkpoint, len(s.checkpoints))
	copy(out, s.checkpoints)
	return out
}

// Drop removes all checkpoints — used by `keep`, which discards baselines
// without touching the filesystem.
func (s *CheckpointStore) Drop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints = nil
	s.interned = make(map[string][]byte)
}

// CumulativeBaselines merges baselines across all open checkpoints, keeping
// the *earliest* recorded baseline for each path, per spec.md §4.D.
func (s *CheckpointStore) CumulativeBaselines() map[string]*Baseline {
	s.mu.Lock()
	defer s.mu.Unlock()
	merged := make(map[string]*Baseline)
	for _, cp := range s.checkpoints {
		for path, b := range cp.Files {
			if _, ok := merged[path]; !ok {
				merged[path] = b
			}
		}
	}
	return merged
}

// RestoreCheckpoint restores every path recorded in cp to its baseline
// bytes: creates the path if the baseline existed, deletes it if not.
func (s *CheckpointStore) RestoreCheckpoint(cp *Checkpoint, root string) ([]string, error) {
	var paths []string
	for relPath, b := range cp.Files {
		absPath, verr := validatePath(root, relPath)
		if verr != nil {
			continue
		}
		if !b.Existed {
			s.removeFile(absPath)
		} else if err := s.writeFile(absPath, b.Content, 0644); err != nil {
			return paths, newErr(EIO, relPath, err)
		}
		paths = append(paths, relPath)
	}
	return paths, nil
}

// RestoreFrom restores the earliest baseline (among checkpoints[keep:]) for
// every path touched by checkpoints from index keep onward, then discards
// those checkpoints, keeping only the first `keep` of them — the
// revert_to_step{step} operation, where keep equals the step number to
// preserve. Returns ok=false (no paths touched, nothing to restore) if
// there are no checkpoints past `keep`.
func (s *CheckpointStore) RestoreFrom(root string, keep int) (paths []string, ok bool, err error) {
	s.mu.Lock()
	if keep < 0 || keep >= len(s.checkpoints) {
		s.mu.Unlock()
		return nil, false, nil
	}
	discarded := s.checkpoints[keep:]
	merged := make(map[string]*Baseline)
	for _, cp := range discarded {
		for path, b := range cp.Files {
			if _, exists := merged[path]; !exists {
				merged[path] = b
			}
		}
	}
	s.mu.Unlock()

	for relPath, b := range merged {
		absPath, verr := validatePath(root, relPath)
		if verr != nil {
			continue
		}
		if !b.Existed {
			s.removeFile(absPath)
		} else if werr := s.writeFile(absPath, b.Content, 0644); werr != nil {
			return paths, true, newErr(EIO, relPath, werr)
		}
		paths = append(paths, relPath)
	}

	s.mu.Lock()
	s.checkpoints = s.checkpoints[:keep]
	s.mu.Unlock()
	return paths, true, nil
}

// RestoreCumulative restores the earliest baseline for every path touched
// across all open checkpoints (the `revert` action after BUILD/DIRECT).
func (s *CheckpointStore) RestoreCumulative(root string) ([]string, error) {
	merged := s.CumulativeBaselines()
	var paths []string
	for relPath, b := range merged {
		absPath, verr := validatePath(root, relPath)
		if verr != nil {
			continue
		}
		if !b.Existed {
			s.removeFile(absPath)
		} else if err := s.writeFile(absPath, b.Content, 0644); err != nil {
			return paths, newErr(EIO, relPath, err)
		}
		paths = append(paths, relPath)
	}
	s.Drop()
	return paths, nil
}
