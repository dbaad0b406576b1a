package turn

import (
	"sort"

	"github.com/lowkaihon/agentd/internal/session"
	"github.com/lowkaihon/agentd/internal/workspace"
)

// buildReview computes the diff across every path touched by the turn's
// open checkpoints (cumulative baseline = earliest recorded per path, per
// spec.md §4.D), in stable path order. Returns the wire-shaped diff file
// list alongside the durable PendingDiff records the session stores while
// awaiting keep/revert.
func buildReview(ws *workspace.Workspace) (files []diffFile, pending []session.PendingDiff) {
	baselines := ws.Checkpoints().CumulativeBaselines()
	paths := make([]string, 0, len(baselines))
	for p := range baselines {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		fd, err := ws.Diff(p)
		if err != nil {
			continue
		}
		if fd.Additions == 0 && fd.Deletions == 0 {
			continue
		}
		b := baselines[p]
		original := ""
		if b.Existed {
			original = string(b.Content)
		}
		current, _ := ws.ReadRaw(p)

		files = append(files, diffFile{
			Path:      fd.Path,
			Label:     fd.Label,
			Diff:      fd.Unified,
			Additions: fd.Additions,
			Deletions: fd.Deletions,
		})
		pending = append(pending, session.PendingDiff{
			Path:            fd.Path,
			OriginalContent: original,
			CurrentContent:  current,
			Label:           session.DiffLabel(fd.Label),
		})
	}
	return files, pending
}
