package workspace

import (
	"io"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// GitFileStatus is one entry in a git working-tree status listing.
type GitFileStatus struct {
	Path    string
	Staging string
	Worktree string
}

// GitStatus returns the git working-tree status for the workspace root, if
// it is (or is inside) a git repository. Returns ok=false when there is no
// repository — status() is optional per spec.md §4.A.
func (w *Workspace) GitStatus() (files []GitFileStatus, ok bool, err error) {
	repo, werr := git.PlainOpenWithOptions(w.root, &git.PlainOpenOptions{DetectDotGit: true})
	if werr != nil {
		return nil, false, nil
	}
	wt, werr := repo.Worktree()
	if werr != nil {
		return nil, false, nil
	}
	status, werr := wt.Status()
	if werr != nil {
		return nil, true, newErr(EIO, w.root, werr)
	}
	for path, s := range status {
		files = append(files, GitFileStatus{
			Path:     path,
			Staging:  string(s.Staging),
			Worktree: string(s.Worktree),
		})
	}
	return files, true, nil
}

// GitDiff returns the unified diff of relPath against HEAD, i.e. the
// committed version, distinct from Diff (which compares against the
// checkpoint baseline). Returns ok=false only when not a git repo; a path
// with no HEAD blob (untracked/new file) is diffed against empty content
// with ok=true.
func (w *Workspace) GitDiff(relPath string) (FileDiff, bool, error) {
	repo, err := git.PlainOpenWithOptions(w.root, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return FileDiff{}, false, nil
	}

	headContent := ""
	if head, err := repo.Head(); err == nil {
		if commit, err := repo.CommitObject(head.Hash()); err == nil {
			if tree, err := commit.Tree(); err == nil {
				if f, err := tree.File(relPath); err == nil {
					headContent, _ = readTreeFile(f)
				}
			}
		}
	}

	absPath, verr := validatePath(w.root, relPath)
	if verr != nil {
		return FileDiff{}, true, verr
	}
	current, _ := w.readFileOrEmpty(absPath)

	return computeDiff(relPath, headContent, current), true, nil
}

func readTreeFile(f *object.File) (string, error) {
	r, err := f.Reader()
	if err != nil {
		return "", err
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
