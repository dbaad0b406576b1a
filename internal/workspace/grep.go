package workspace

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const maxGrepResults = 50

// Grep searches file contents under dir (default: workspace root) for re2
// pattern, optionally filtered by an include glob on filename. Ported from
// the tool layer's grepTool.
func (w *Workspace) Grep(ctx context.Context, pattern, dir, include string) ([]GrepMatch, int, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, 0, newErr(EIO, pattern, err)
	}

	searchDir := w.root
	if dir != "" {
		abs, _, verr := w.resolve(dir)
		if verr != nil {
			return nil, 0, verr
		}
		searchDir = abs
	}

	if w.remote != nil {
		return w.grepRemote(ctx, re, searchDir, include)
	}

	var results []GrepMatch
	total := 0

	werr := filepath.WalkDir(searchDir, func(path string, d os.DirEntry, err error) error {
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
			return nil
		}
		if include != "" {
			if ok, _ := filepath.Match(include, d.Name()); !ok {
				return nil
			}
		}
		if isBinaryFile(path) {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return nil
		}
		defer f.Close()

		rel, _ := filepath.Rel(w.root, path)
		rel = filepath.ToSlash(rel)

		scanner := bufio.NewScanner(f)
		lineNum := 0
		for scanner.Scan() {
			lineNum++
			line := scanner.Text()
			if re.MatchString(line) {
				total++
				if len(results) < maxGrepResults {
					results = append(results, GrepMatch{Path: rel, Line: lineNum, Text: truncateLine(line, 200)})
				}
			}
		}
		return nil
	})
	if werr != nil {
		return nil, 0, werr
	}
	return results, total, nil
}

// grepRemote mirrors Grep's local WalkDir traversal over a RemoteFS, reading
// each candidate file whole (there is no remote streaming read) instead of
// bufio.Scanner-ing a local *os.File.
func (w *Workspace) grepRemote(ctx context.Context, re *regexp.Regexp, searchDir, include string) ([]GrepMatch, int, error) {
	entries, err := w.walkRemote(ctx, searchDir)
	if err != nil {
		return nil, 0, err
	}

	var results []GrepMatch
	total := 0
	for _, e := range entries {
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		if include != "" {
			if ok, _ := filepath.Match(include, filepath.Base(e.abs)); !ok {
				continue
			}
		}
		data, err := w.remote.ReadFile(ctx, e.abs)
		if err != nil {
			continue
		}
		if isBinary(data) {
			continue
		}
		for i, line := range strings.Split(string(data), "\n") {
			if re.MatchString(line) {
				total++
				if len(results) < maxGrepResults {
					results = append(results, GrepMatch{Path: e.rel, Line: i + 1, Text: truncateLine(line, 200)})
				}
			}
		}
	}
	return results, total, nil
}

func truncateLine(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func isBinaryFile(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return true
	}
	defer f.Close()
	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil {
		return true
	}
	return isBinary(buf[:n])
}

// isBinary reports whether buf looks like binary content (a NUL byte in the
// first chunk), the same heuristic isBinaryFile applies to a local file
// handle, reused by grepRemote against a fully-read remote file.
func isBinary(buf []byte) bool {
	for _, b := range buf {
		if b == 0 {
			return true
		}
	}
	return false
}
