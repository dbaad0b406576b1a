package workspace

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// largeFileLineThreshold is the line count above which diff computation
// falls back to a position-aligned heuristic instead of full DP LCS.
const largeFileLineThreshold = 5000

// coalesceWindow is how many lines apart a deletion and an addition can be
// and still be classified as one "modified" hunk rather than separate
// delete/add hunks.
const coalesceWindow = 3

// FileDiff is the result of diffing two versions of one file.
type FileDiff struct {
	Path      string
	Unified   string
	Additions int
	Deletions int
	Label     string // "modified" or "new_file"
}

// diffLine is one rendered line of a line-level diff, tagged with its op.
type diffLine struct {
	op   diffmatchpatch.Operation
	text string
}

// computeDiff returns a unified diff between original and current content
// for path, using line-level LCS via go-diff. Above largeFileLineThreshold
// lines it pairs lines by position (line i against line i) to bound CPU cost.
func computeDiff(path, original, current string) FileDiff {
	label := "modified"
	if original == "" {
		label = "new_file"
	}

	lineCount := strings.Count(original, "\n") + strings.Count(current, "\n")
	dmp := diffmatchpatch.New()

	var diffs []diffmatchpatch.Diff
	if lineCount > largeFileLineThreshold {
		oldLines := strings.SplitAfter(original, "\n")
		newLines := strings.SplitAfter(current, "\n")
		for i := 0; i < len(oldLines) || i < len(newLines); i++ {
			if i < len(oldLines) && i < len(newLines) && oldLines[i] == newLines[i] {
				diffs = append(diffs, diffmatchpatch.Diff{Type: diffmatchpatch.DiffEqual, Text: oldLines[i]})
				continue
			}
			if i < len(oldLines) {
				diffs = append(diffs, diffmatchpatch.Diff{Type: diffmatchpatch.DiffDelete, Text: oldLines[i]})
			}
			if i < len(newLines) {
				diffs = append(diffs, diffmatchpatch.Diff{Type: diffmatchpatch.DiffInsert, Text: newLines[i]})
			}
		}
	} else {
		text1, text2, lineArray := dmp.DiffLinesToChars(original, current)
		raw := dmp.DiffMain(text1, text2, false)
		diffs = dmp.DiffCharsToLines(raw, lineArray)
	}

	unified, additions, deletions := renderUnifiedDiff(path, diffs)
	return FileDiff{Path: path, Unified: unified, Additions: additions, Deletions: deletions, Label: label}
}

// renderUnifiedDiff walks the diffmatchpatch op list (already coalesced to
// whole lines) and emits standard unified-diff text, folding a deletion
// immediately followed (within coalesceWindow lines) by an insertion into
// one adjacent block so the gutter reads as "modified" rather than an
// unrelated delete far from an unrelated add.
func renderUnifiedDiff(path string, diffs []diffmatchpatch.Diff) (string, int, int) {
	var lines []diffLine
	for _, d := range diffs {
		for _, segment := range strings.SplitAfter(d.Text, "\n") {
			if segment == "" {
				continue
			}
			lines = append(lines, diffLine{op: d.Type, text: strings.TrimSuffix(segment, "\n")})
		}
	}

	coalesced := coalesceModifications(lines, coalesceWindow)
	if len(coalesced) == 0 {
		return fmt.Sprintf("--- a/%s\n+++ b/%s\n", path, path), 0, 0
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "--- a/%s\n+++ b/%s\n", path, path)

	oldCount := countOp(coalesced, diffmatchpatch.DiffDelete) + countOp(coalesced, diffmatchpatch.DiffEqual)
	newCount := countOp(coalesced, diffmatchpatch.DiffInsert) + countOp(coalesced, diffmatchpatch.DiffEqual)
	fmt.Fprintf(&sb, "@@ -1,%d +1,%d @@\n", oldCount, newCount)

	additions, deletions := 0, 0
	for _, l := range coalesced {
		switch l.op {
		case diffmatchpatch.DiffEqual:
			sb.WriteString(" " + l.text + "\n")
		case diffmatchpatch.DiffDelete:
			sb.WriteString("-" + l.text + "\n")
			deletions++
		case diffmatchpatch.DiffInsert:
			sb.WriteString("+" + l.text + "\n")
			additions++
		}
	}

	return sb.String(), additions, deletions
}

func countOp(lines []diffLine, op diffmatchpatch.Operation) int {
	n := 0
	for _, l := range lines {
		if l.op == op {
			n++
		}
	}
	return n
}

// coalesceModifications reorders a delete run that is followed within
// `window` equal-lines by an insert run so they sit adjacent, matching the
// gutter convention most diff viewers use for "modified" lines.
func coalesceModifications(lines []diffLine, window int) []diffLine {
	out := make([]diffLine, 0, len(lines))
	i := 0
	for i < len(lines) {
		if lines[i].op != diffmatchpatch.DiffDelete {
			out = append(out, lines[i])
			i++
			continue
		}
		delStart := i
		for i < len(lines) && lines[i].op == diffmatchpatch.DiffDelete {
			i++
		}
		deletes := lines[delStart:i]

		lookahead := i
		equalsSkipped := 0
		for lookahead < len(lines) && lines[lookahead].op == diffmatchpatch.DiffEqual && equalsSkipped < window {
			lookahead++
			equalsSkipped++
		}
		if lookahead < len(lines) && lines[lookahead].op == diffmatchpatch.DiffInsert {
			insStart := lookahead
			insEnd := lookahead
			for insEnd < len(lines) && lines[insEnd].op == diffmatchpatch.DiffInsert {
				insEnd++
			}
			out = append(out, deletes...)
			out = append(out, lines[insStart:insEnd]...)
			out = append(out, lines[i:insStart]...) // the skipped equals, now after
			i = insEnd
			continue
		}
		out = append(out, deletes...)
	}
	return out
}
