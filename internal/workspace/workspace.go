// Package workspace implements the Workspace layer: scoped file read/write/
// edit/delete, directory listing, glob/grep search, checkpoint/baseline
// snapshotting, and diff computation against either a checkpoint baseline
// or git HEAD.
package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Workspace is the scoped view of a project directory (local or, via
// internal/sshfs, remote-over-SSH) that every tool and the External Facade
// read and write through.
type Workspace struct {
	root       string
	checkpoint *CheckpointStore
	remote     RemoteFS // nil for local workspaces
}

// RemoteFS abstracts the subset of filesystem operations the Workspace
// needs when the working_directory is an SSH composite. Implemented by
// internal/sshfs; kept as an interface here so Workspace has no import
// dependency on the transport details.
type RemoteFS interface {
	ReadFile(ctx context.Context, path string) ([]byte, error)
	WriteFile(ctx context.Context, path string, data []byte, perm os.FileMode) error
	Remove(ctx context.Context, path string) error
	Rename(ctx context.Context, old, new string) error
	Mkdir(ctx context.Context, path string) error
	ReadDir(ctx context.Context, path string) ([]os.FileInfo, error)
	Stat(ctx context.Context, path string) (os.FileInfo, error)
}

// RemotePTYSession is an interactive shell opened on the same connection as
// a RemoteFS, for spec.md §4.F: an SSH workspace's terminal roots on the
// remote host rather than spawning a local shell.
type RemotePTYSession interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Resize(rows, cols int) error
	Close() error
}

// RemoteShell is an optional capability of a RemoteFS: most callers only
// need file operations, but the Transport Bridge's PTY handler type-asserts
// for this to root a terminal on the remote host.
type RemoteShell interface {
	Shell(ctx context.Context, cwd string) (RemotePTYSession, error)
}

// New creates a Workspace rooted at root. remote is nil for a local
// filesystem workspace.
func New(root string, remote RemoteFS) *Workspace {
	return &Workspace{root: root, checkpoint: newCheckpointStore(root, remote), remote: remote}
}

// Root returns the workspace's confinement root.
func (w *Workspace) Root() string { return w.root }

// Remote returns the RemoteFS backing this workspace, or nil for a local
// one. Exposed for callers that need a capability beyond RemoteFS itself,
// such as RemoteShell, via a type assertion.
func (w *Workspace) Remote() RemoteFS { return w.remote }

// Checkpoints exposes the checkpoint store for the Turn Engine to open,
// seal, and restore checkpoints around BUILD steps.
func (w *Workspace) Checkpoints() *CheckpointStore { return w.checkpoint }

func (w *Workspace) resolve(path string) (abs, rel string, err *Error) {
	abs, err = validatePath(w.root, path)
	if err != nil {
		return "", "", err
	}
	rel, rerr := filepath.Rel(w.root, abs)
	if rerr != nil {
		return "", "", newErr(EIO, path, rerr)
	}
	return abs, filepath.ToSlash(rel), nil
}

// Read returns lines offset through limit of path (1-indexed, inclusive;
// limit is a line number, not a count) as line-numbered text, mirroring the tool layer's read
// behavior so both the Read tool and /api/file share one implementation.
func (w *Workspace) Read(path string, offset, limit int) (string, error) {
	abs, _, verr := w.resolve(path)
	if verr != nil {
		return "", verr
	}
	data, err := w.readFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", newErr(ENotFound, path, err)
		}
		return "", newErr(EIO, path, err)
	}
	if len(data) == 0 {
		return "", nil
	}

	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	start := offset
	if start <= 0 {
		start = 1
	}
	end := limit
	if end <= 0 || end > len(lines) {
		end = len(lines)
	}
	if start > len(lines) {
		return "", nil
	}

	var sb strings.Builder
	for i := start; i <= end; i++ {
		fmt.Fprintf(&sb, "%4d │ %s\n", i, lines[i-1])
	}
	return sb.String(), nil
}

// Write creates or overwrites path with content, capturing a pre-mutation
// baseline into the active checkpoint if one is open.
func (w *Workspace) Write(cp *Checkpoint, path, content string) error {
	abs, rel, verr := w.resolve(path)
	if verr != nil {
		return verr
	}
	if cp != nil {
		w.checkpoint.CaptureBeforeWrite(cp, abs, rel)
	}
	if err := w.writeFile(abs, []byte(content), 0644); err != nil {
		return newErr(EIO, path, err)
	}
	return nil
}

// Edit replaces exactly one occurrence of oldStr with newStr in path
// (or all occurrences if replaceAll), returning the resulting diff.
func (w *Workspace) Edit(cp *Checkpoint, path, oldStr, newStr string, replaceAll bool) (FileDiff, error) {
	abs, rel, verr := w.resolve(path)
	if verr != nil {
		return FileDiff{}, verr
	}
	data, err := w.readFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return FileDiff{}, newErr(ENotFound, path, err)
		}
		return FileDiff{}, newErr(EIO, path, err)
	}
	content := string(data)
	count := strings.Count(content, oldStr)
	if count == 0 {
		return FileDiff{}, newErr(EAnchorMissing, path, nil)
	}
	if count > 1 && !replaceAll {
		return FileDiff{}, newErr(EAnchorAmbiguous, path, nil)
	}

	n := 1
	if replaceAll {
		n = -1
	}
	newContent := strings.Replace(content, oldStr, newStr, n)

	if cp != nil {
		w.checkpoint.CaptureBeforeWrite(cp, abs, rel)
	}
	if err := w.writeFile(abs, []byte(newContent), w.fileMode(abs)); err != nil {
		return FileDiff{}, newErr(EIO, path, err)
	}
	return computeDiff(rel, content, newContent), nil
}

// Delete removes path, capturing its pre-deletion content into cp.
func (w *Workspace) Delete(cp *Checkpoint, path string) error {
	abs, rel, verr := w.resolve(path)
	if verr != nil {
		return verr
	}
	if cp != nil {
		w.checkpoint.CaptureBeforeWrite(cp, abs, rel)
	}
	if err := w.removeFile(abs); err != nil {
		if os.IsNotExist(err) {
			return newErr(ENotFound, path, err)
		}
		return newErr(EIO, path, err)
	}
	return nil
}

// Rename moves oldPath to newPath, capturing both paths' pre-mutation state.
func (w *Workspace) Rename(cp *Checkpoint, oldPath, newPath string) error {
	absOld, relOld, verr := w.resolve(oldPath)
	if verr != nil {
		return verr
	}
	absNew, relNew, verr := w.resolve(newPath)
	if verr != nil {
		return verr
	}
	if cp != nil {
		w.checkpoint.CaptureBeforeWrite(cp, absOld, relOld)
		w.checkpoint.CaptureBeforeWrite(cp, absNew, relNew)
	}
	if err := w.renameFile(absOld, absNew); err != nil {
		return newErr(EIO, oldPath, err)
	}
	return nil
}

// Mkdir creates dir (and any missing parents) inside the workspace.
func (w *Workspace) Mkdir(dir string) error {
	abs, _, verr := w.resolve(dir)
	if verr != nil {
		return verr
	}
	if err := w.mkdirAll(abs); err != nil {
		return newErr(EIO, dir, err)
	}
	return nil
}

// DirEntry is one entry of a List result.
type DirEntry struct {
	Name  string
	IsDir bool
	Size  int64
}

// List returns the entries of dir (default: workspace root).
func (w *Workspace) List(dir string) ([]DirEntry, error) {
	target := w.root
	if dir != "" {
		abs, _, verr := w.resolve(dir)
		if verr != nil {
			return nil, verr
		}
		target = abs
	}
	entries, err := w.readDir(target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, newErr(ENotFound, dir, err)
		}
		return nil, newErr(EIO, dir, err)
	}
	out := make([]DirEntry, 0, len(entries))
	for _, info := range entries {
		out = append(out, DirEntry{Name: info.Name(), IsDir: info.IsDir(), Size: info.Size()})
	}
	return out, nil
}

// Glob returns paths (relative, forward-slash) under root matching pattern,
// sorted by modification time descending, capped at maxGlobResults.
const maxGlobResults = 100

func (w *Workspace) Glob(ctx context.Context, pattern string) ([]string, error) {
	if w.remote != nil {
		return w.globRemote(ctx, pattern)
	}

	type match struct {
		path    string
		modTime int64
	}
	var matches []match

	err := filepath.WalkDir(w.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if shouldSkipDir(d.Name()) {
				return filepath.SkipDir
			}
			if d.Type()&os.ModeSymlink != 0 {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(w.root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		ok, err := matchGlob(pattern, rel)
		if err != nil {
			return newErr(EIO, pattern, err)
		}
		if ok {
			info, ierr := d.Info()
			mt := int64(0)
			if ierr == nil {
				mt = info.ModTime().UnixNano()
			}
			matches = append(matches, match{path: rel, modTime: mt})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].modTime > matches[j].modTime })
	if len(matches) > maxGlobResults {
		matches = matches[:maxGlobResults]
	}
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.path
	}
	return out, nil
}

// GrepMatch is one content-search hit.
type GrepMatch struct {
	Path string
	Line int
	Text string
}

// globRemote mirrors Glob's local WalkDir traversal over a RemoteFS, at the
// cost of modification-time ordering: RemoteFS.Stat's ModTime is not
// populated from `ls`/`stat` output cheaply, so remote matches are returned
// in directory-walk order instead of newest-first.
func (w *Workspace) globRemote(ctx context.Context, pattern string) ([]string, error) {
	entries, err := w.walkRemote(ctx, w.root)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		ok, err := matchGlob(pattern, e.rel)
		if err != nil {
			return nil, newErr(EIO, pattern, err)
		}
		if ok {
			out = append(out, e.rel)
			if len(out) >= maxGlobResults {
				break
			}
		}
	}
	return out, nil
}

// ReadRaw returns path's current bytes verbatim (no line-number gutter),
// for diff rendering and other callers that need the exact file content.
func (w *Workspace) ReadRaw(path string) (string, error) {
	abs, _, verr := w.resolve(path)
	if verr != nil {
		return "", verr
	}
	return w.readFileOrEmpty(abs)
}

// Diff computes the agent-scope diff of path against the earliest recorded
// checkpoint baseline for it (spec.md §4.A `diff(path)`).
func (w *Workspace) Diff(path string) (FileDiff, error) {
	abs, rel, verr := w.resolve(path)
	if verr != nil {
		return FileDiff{}, verr
	}
	baselines := w.checkpoint.CumulativeBaselines()
	original := ""
	if b, ok := baselines[rel]; ok && b.Existed {
		original = string(b.Content)
	}
	current, err := w.readFileOrEmpty(abs)
	if err != nil {
		return FileDiff{}, newErr(EIO, path, err)
	}
	return computeDiff(rel, original, current), nil
}
