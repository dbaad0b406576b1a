package workspace

import (
	"context"
	"os"
	"path/filepath"
)

// The helpers in this file are the single dispatch point between a
// Workspace's confined, validated paths and either the local os package or
// a RemoteFS for an SSH-backed working_directory. Every exported Workspace
// method funnels its actual I/O through one of these instead of calling
// os.* directly, so remote:=nil (the common case) reduces to the old local
// behavior and remote!=nil actually reaches the far host.
//
// RemoteFS methods take a context but none of the surrounding Workspace API
// does (it predates the SSH workspace mode); context.Background() is used
// here rather than threading ctx through every tool call site.

func (w *Workspace) readFile(abs string) ([]byte, error) {
	if w.remote != nil {
		return w.remote.ReadFile(context.Background(), abs)
	}
	return os.ReadFile(abs)
}

func (w *Workspace) writeFile(abs string, data []byte, perm os.FileMode) error {
	if w.remote != nil {
		return w.remote.WriteFile(context.Background(), abs, data, perm)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return err
	}
	return atomicWrite(abs, data, perm)
}

func (w *Workspace) removeFile(abs string) error {
	if w.remote != nil {
		return w.remote.Remove(context.Background(), abs)
	}
	return os.Remove(abs)
}

func (w *Workspace) renameFile(absOld, absNew string) error {
	if w.remote != nil {
		return w.remote.Rename(context.Background(), absOld, absNew)
	}
	if err := os.MkdirAll(filepath.Dir(absNew), 0755); err != nil {
		return err
	}
	return os.Rename(absOld, absNew)
}

func (w *Workspace) mkdirAll(abs string) error {
	if w.remote != nil {
		return w.remote.Mkdir(context.Background(), abs)
	}
	return os.MkdirAll(abs, 0755)
}

func (w *Workspace) readDir(abs string) ([]os.FileInfo, error) {
	if w.remote != nil {
		return w.remote.ReadDir(context.Background(), abs)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, err
	}
	infos := make([]os.FileInfo, 0, len(entries))
	for _, e := range entries {
		info, ierr := e.Info()
		if ierr != nil {
			continue
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// fileMode reports abs's current permission bits, defaulting to 0644 if it
// cannot be statted (new file, or a stat error to surface later on write).
func (w *Workspace) fileMode(abs string) os.FileMode {
	if w.remote != nil {
		info, err := w.remote.Stat(context.Background(), abs)
		if err != nil {
			return 0644
		}
		return info.Mode()
	}
	info, err := os.Stat(abs)
	if err != nil {
		return 0644
	}
	return info.Mode()
}

// readFileOrEmpty returns a file's content, or "" if it does not exist.
func (w *Workspace) readFileOrEmpty(abs string) (string, error) {
	data, err := w.readFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return string(data), nil
}

// remoteEntry is one non-directory file discovered while walking a remote
// directory tree.
type remoteEntry struct {
	abs string
	rel string
}

// walkRemote recursively lists files under root via repeated RemoteFS.ReadDir
// calls, since a RemoteFS has no equivalent of filepath.WalkDir. Traversal
// is breadth-first and skips the same directories the local Glob/Grep skip.
func (w *Workspace) walkRemote(ctx context.Context, root string) ([]remoteEntry, error) {
	var out []remoteEntry
	queue := []string{root}
	for len(queue) > 0 {
		dir := queue[0]
		queue = queue[1:]
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		infos, err := w.remote.ReadDir(ctx, dir)
		if err != nil {
			continue
		}
		for _, info := range infos {
			abs := filepath.Join(dir, info.Name())
			if info.IsDir() {
				if shouldSkipDir(info.Name()) {
					continue
				}
				queue = append(queue, abs)
				continue
			}
			rel, rerr := filepath.Rel(w.root, abs)
			if rerr != nil {
				continue
			}
			out = append(out, remoteEntry{abs: abs, rel: filepath.ToSlash(rel)})
		}
	}
	return out, nil
}
