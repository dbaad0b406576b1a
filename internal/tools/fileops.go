package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// NeedsConfirmation signals that a tool call must be confirmed by the user
// before Execute runs. The Turn Engine renders Preview/NewContent as a diff
// and calls Execute once the user approves (or drops the call on reject).
type NeedsConfirmation struct {
	Tool       string
	Path       string
	Preview    string // old content, "" for new files
	NewContent string // new content, for diff display
	Execute    func() (string, error)
}

func (e *NeedsConfirmation) Error() string {
	return fmt.Sprintf("%s requires confirmation for %s", e.Tool, e.Path)
}

func parseInput[T any](input json.RawMessage) (T, error) {
	var params T
	if err := json.Unmarshal(input, &params); err != nil {
		return params, fmt.Errorf("invalid input: %w", err)
	}
	return params, nil
}

type readInput struct {
	Path      string `json:"path"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

func (r *Registry) readTool(_ context.Context, input json.RawMessage) (string, error) {
	params, err := parseInput[readInput](input)
	if err != nil {
		return "", err
	}
	if params.Path == "" {
		return "", fmt.Errorf("path is required")
	}
	out, err := r.ws.Read(params.Path, params.StartLine, params.EndLine)
	if err != nil {
		return "", err
	}
	if out == "" {
		return "File is empty.", nil
	}
	return out, nil
}

type writeInput struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

func (r *Registry) writeTool(_ context.Context, input json.RawMessage) (string, error) {
	params, err := parseInput[writeInput](input)
	if err != nil {
		return "", err
	}
	if params.Path == "" {
		return "", fmt.Errorf("path is required")
	}

	oldContent, _ := r.ws.Read(params.Path, 0, 0)

	return "", &NeedsConfirmation{
		Tool:       "write",
		Path:       params.Path,
		Preview:    oldContent,
		NewContent: params.Content,
		Execute: func() (string, error) {
			if err := r.ws.Write(r.cp, params.Path, params.Content); err != nil {
				return "", err
			}
			return fmt.Sprintf("Successfully wrote %s (%d bytes)", params.Path, len(params.Content)), nil
		},
	}
}

type editInput struct {
	Path       string `json:"path"`
	OldStr     string `json:"old_str"`
	NewStr     string `json:"new_str"`
	ReplaceAll bool   `json:"replace_all"`
}

func (r *Registry) editTool(_ context.Context, input json.RawMessage) (string, error) {
	params, err := parseInput[editInput](input)
	if err != nil {
		return "", err
	}
	if params.Path == "" {
		return "", fmt.Errorf("path is required")
	}
	if params.OldStr == "" {
		return "", fmt.Errorf("old_str is required")
	}

	before, err := r.ws.Read(params.Path, 0, 0)
	if err != nil {
		return "", err
	}
	// Validate the anchor up front so the user isn't shown a confirmation
	// for an edit that cannot possibly apply.
	rawContent := stripLineGutter(before)
	count := strings.Count(rawContent, params.OldStr)
	if count == 0 {
		return "", fmt.Errorf("no match found for old_str in %s. Check for exact whitespace and indentation", params.Path)
	}
	if count > 1 && !params.ReplaceAll {
		return "", fmt.Errorf("old_str matches %d times in %s. Include more surrounding context, or set replace_all", count, params.Path)
	}

	return "", &NeedsConfirmation{
		Tool:    "edit",
		Path:    params.Path,
		Preview: before,
		Execute: func() (string, error) {
			diff, err := r.ws.Edit(r.cp, params.Path, params.OldStr, params.NewStr, params.ReplaceAll)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Successfully edited %s (+%d -%d)", params.Path, diff.Additions, diff.Deletions), nil
		},
	}
}

// stripLineGutter removes the Workspace.Read "%4d │ " prefix so the raw
// file content can be matched against old_str (which never includes it).
func stripLineGutter(numbered string) string {
	var sb strings.Builder
	for _, line := range strings.Split(numbered, "\n") {
		if idx := strings.Index(line, "│ "); idx >= 0 {
			sb.WriteString(line[idx+len("│ "):])
		} else {
			sb.WriteString(line)
		}
		sb.WriteByte('\n')
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

type deleteInput struct {
	Path string `json:"path"`
}

func (r *Registry) deleteTool(_ context.Context, input json.RawMessage) (string, error) {
	params, err := parseInput[deleteInput](input)
	if err != nil {
		return "", err
	}
	if params.Path == "" {
		return "", fmt.Errorf("path is required")
	}
	before, _ := r.ws.Read(params.Path, 0, 0)

	return "", &NeedsConfirmation{
		Tool:    "delete",
		Path:    params.Path,
		Preview: before,
		Execute: func() (string, error) {
			if err := r.ws.Delete(r.cp, params.Path); err != nil {
				return "", err
			}
			return fmt.Sprintf("Deleted %s", params.Path), nil
		},
	}
}

type lsInput struct {
	Path string `json:"path"`
}

func (r *Registry) lsTool(_ context.Context, input json.RawMessage) (string, error) {
	params, err := parseInput[lsInput](input)
	if err != nil {
		return "", err
	}
	entries, err := r.ws.List(params.Path)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "Directory is empty.", nil
	}
	var out string
	for _, e := range entries {
		if e.IsDir {
			out += fmt.Sprintf("  %s/\n", e.Name)
		} else {
			out += fmt.Sprintf("  %-40s %s\n", e.Name, formatSize(e.Size))
		}
	}
	return out, nil
}

func formatSize(bytes int64) string {
	switch {
	case bytes >= 1<<20:
		return fmt.Sprintf("%.1fMB", float64(bytes)/(1<<20))
	case bytes >= 1<<10:
		return fmt.Sprintf("%.1fKB", float64(bytes)/(1<<10))
	default:
		return fmt.Sprintf("%dB", bytes)
	}
}

type globInput struct {
	Pattern string `json:"pattern"`
}

func (r *Registry) globTool(ctx context.Context, input json.RawMessage) (string, error) {
	params, err := parseInput[globInput](input)
	if err != nil {
		return "", err
	}
	if params.Pattern == "" {
		return "", fmt.Errorf("pattern is required")
	}
	matches, err := r.ws.Glob(ctx, params.Pattern)
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "No files matched the pattern.", nil
	}
	out := ""
	for _, m := range matches {
		out += m + "\n"
	}
	return out, nil
}

type grepInput struct {
	Pattern string `json:"pattern"`
	Path    string `json:"path"`
	Include string `json:"include"`
}

func (r *Registry) grepTool(ctx context.Context, input json.RawMessage) (string, error) {
	params, err := parseInput[grepInput](input)
	if err != nil {
		return "", err
	}
	if params.Pattern == "" {
		return "", fmt.Errorf("pattern is required")
	}
	matches, total, err := r.ws.Grep(ctx, params.Pattern, params.Path, params.Include)
	if err != nil {
		return "", err
	}
	if total == 0 {
		return "No matches found.", nil
	}
	out := ""
	for _, m := range matches {
		out += fmt.Sprintf("%s:%d: %s\n", m.Path, m.Line, m.Text)
	}
	if total > len(matches) {
		out += fmt.Sprintf("\n... and %d more matches\n", total-len(matches))
	}
	return out, nil
}

type findSymbolInput struct {
	Name    string `json:"name"`
	Include string `json:"include"`
}

func (r *Registry) findSymbolTool(ctx context.Context, input json.RawMessage) (string, error) {
	params, err := parseInput[findSymbolInput](input)
	if err != nil {
		return "", err
	}
	if params.Name == "" {
		return "", fmt.Errorf("name is required")
	}
	matches, total, err := r.ws.FindSymbol(ctx, params.Name, params.Include)
	if err != nil {
		return "", err
	}
	if total == 0 {
		return fmt.Sprintf("No declaration of %q found.", params.Name), nil
	}
	out := ""
	for _, m := range matches {
		out += fmt.Sprintf("%s:%d: %s\n", m.Path, m.Line, m.Text)
	}
	if total > len(matches) {
		out += fmt.Sprintf("\n... and %d more matches\n", total-len(matches))
	}
	return out, nil
}
