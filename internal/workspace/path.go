package workspace

import (
	"os"
	"path/filepath"
	"strings"
)

// validatePath confines requestedPath to root, rewriting absolute paths
// relative to root where possible. Ported from the tool layer's path
// sandboxing so every Workspace entry point shares one scope check.
func validatePath(root, requestedPath string) (string, *Error) {
	var absPath string
	if filepath.IsAbs(requestedPath) {
		rel, err := filepath.Rel(root, requestedPath)
		if err != nil || strings.HasPrefix(rel, "..") {
			return "", newErr(EScope, requestedPath, nil)
		}
		absPath = filepath.Clean(requestedPath)
	} else {
		absPath = filepath.Clean(filepath.Join(root, requestedPath))
	}

	rel, err := filepath.Rel(root, absPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", newErr(EScope, requestedPath, nil)
	}

	// Resolve symlinks on the portion of the path that exists, so a symlink
	// pointing outside root cannot be used to escape scope.
	resolved, err := resolveExistingSymlinks(absPath)
	if err != nil {
		return "", newErr(EIO, requestedPath, err)
	}
	rel2, err := filepath.Rel(root, resolved)
	if err != nil || rel2 == ".." || strings.HasPrefix(rel2, ".."+string(filepath.Separator)) {
		return "", newErr(EScope, requestedPath, nil)
	}

	return absPath, nil
}

// resolveExistingSymlinks walks up from path until it finds a segment that
// exists, resolves symlinks for that prefix, then reattaches the remainder.
func resolveExistingSymlinks(path string) (string, error) {
	if _, err := os.Lstat(path); err == nil {
		real, err := filepath.EvalSymlinks(path)
		if err != nil {
			return path, nil
		}
		return real, nil
	}
	parent := filepath.Dir(path)
	if parent == path {
		return path, nil
	}
	realParent, err := resolveExistingSymlinks(parent)
	if err != nil {
		return path, err
	}
	return filepath.Join(realParent, filepath.Base(path)), nil
}

// atomicWrite writes content to a file atomically via temp file + rename,
// ported from the tool layer's AtomicWrite.
func atomicWrite(targetPath string, content []byte, perm os.FileMode) error {
	dir := filepath.Dir(targetPath)
	tmp, err := os.CreateTemp(dir, ".agentd-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmpPath != "" {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, targetPath); err != nil {
		return err
	}
	tmpPath = ""
	return nil
}

var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	".venv":        true,
	"__pycache__":  true,
}

func shouldSkipDir(name string) bool {
	return skipDirs[name]
}
