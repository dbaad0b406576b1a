// Package tools implements the Tool Registry & Executor: the declarative
// set of tools offered to the model, each backed by internal/workspace for
// file operations or by a direct OS call for bash, dispatched by name with
// read-only/approval metadata the Turn Engine uses to decide what can run
// without a round trip to the user.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lowkaihon/agentd/internal/llm"
	"github.com/lowkaihon/agentd/internal/workspace"
)

// ToolFunc is the signature for tool implementations.
type ToolFunc func(ctx context.Context, input json.RawMessage) (string, error)

type toolEntry struct {
	name       string
	fn         ToolFunc
	def        llm.ToolDef
	readOnly   bool
	needsApproval bool
}

// Registry holds all available tools and dispatches execution by name.
type Registry struct {
	tools         []toolEntry
	ws            *workspace.Workspace
	cp            *workspace.Checkpoint
	scoutFunc     ScoutFunc
	taskCallbacks TaskCallbacks
	askCallback   AskUserFunc
	bashStream    BashStreamFunc
	bashDenylist  []string
}

// NewRegistry creates a registry bound to ws and registers all built-in
// tools. No checkpoint is active until SetCheckpoint binds the one that
// mutating tools capture pre-write baselines into.
func NewRegistry(ws *workspace.Workspace) *Registry {
	r := &Registry{ws: ws}
	r.registerBuiltins()
	return r
}

// NewRegistryWithDenylist creates a registry bound to ws whose bash tool
// rejects commands matching any of denylist (agentd's
// config.Config.BashDenylist), instead of the package default.
func NewRegistryWithDenylist(ws *workspace.Workspace, denylist []string) *Registry {
	r := NewRegistry(ws)
	r.SetBashDenylist(denylist)
	return r
}

// SetCheckpoint rebinds the checkpoint that mutating tools capture into,
// called by the Turn Engine at the start of each BUILD step.
func (r *Registry) SetCheckpoint(cp *workspace.Checkpoint) {
	r.cp = cp
}

func (r *Registry) register(name, description string, schema json.RawMessage, readOnly, needsApproval bool, fn ToolFunc) {
	r.tools = append(r.tools, toolEntry{
		name:          name,
		fn:            fn,
		readOnly:      readOnly,
		needsApproval: needsApproval,
		def: llm.ToolDef{
			Type: "function",
			Function: llm.FunctionDef{
				Name:        name,
				Description: description,
				Parameters:  schema,
			},
		},
	})
}

// Execute runs a tool by name with the given input.
func (r *Registry) Execute(ctx context.Context, name string, input json.RawMessage) (string, error) {
	for _, t := range r.tools {
		if t.name == name {
			return t.fn(ctx, input)
		}
	}
	return "", fmt.Errorf("unknown tool: %s", name)
}

// IsReadOnly reports whether a tool can run without suspending for approval
// and can be dispatched in parallel with other read-only calls in the same
// round.
func (r *Registry) IsReadOnly(name string) bool {
	for _, t := range r.tools {
		if t.name == name {
			return t.readOnly
		}
	}
	return false
}

// NeedsApproval reports whether a tool call must be confirmed by the user
// before it runs (write, edit, delete, write_tasks).
func (r *Registry) NeedsApproval(name string) bool {
	for _, t := range r.tools {
		if t.name == name {
			return t.needsApproval
		}
	}
	return false
}

// Definitions returns tool definitions in stable registration order, for
// inclusion in the model request.
func (r *Registry) Definitions() []llm.ToolDef {
	defs := make([]llm.ToolDef, len(r.tools))
	for i, t := range r.tools {
		defs[i] = t.def
	}
	return defs
}

func (r *Registry) registerReadOnlyTools() {
	r.register("glob",
		`Fast file pattern matching. Supports "**" for recursive directory matching, e.g. "**/*.go". Returns matching paths relative to the workspace root, newest first. Prefer this over bash find.`,
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"pattern": {"type": "string", "description": "Glob pattern, e.g. '**/*.go'"}
			},
			"required": ["pattern"]
		}`),
		true, false,
		r.globTool,
	)

	r.register("grep",
		`Search file contents using RE2 regex. Returns matching lines with file paths and line numbers. Always use this instead of bash grep/rg. RE2 has no lookaheads/lookbehinds; literal braces need escaping.`,
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"pattern": {"type": "string", "description": "RE2 regular expression"},
				"path": {"type": "string", "description": "Directory to search in (default: workspace root)"},
				"include": {"type": "string", "description": "Glob to filter filenames, e.g. '*.go'"}
			},
			"required": ["pattern"]
		}`),
		true, false,
		r.grepTool,
	)

	r.register("find_symbol",
		`Find a declaration of name (func, class, struct, type, const, var, ...) across the workspace. A heuristic grep, not a language server — prefer this over grep when you know the symbol name and want its definition site, not every reference.`,
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"name": {"type": "string", "description": "Symbol name to find a declaration of"},
				"include": {"type": "string", "description": "Glob to filter filenames, e.g. '*.go'"}
			},
			"required": ["name"]
		}`),
		true, false,
		r.findSymbolTool,
	)

	r.register("ls", "List directory contents with file/directory indicators and sizes. Directories only — use glob to find files.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {"type": "string", "description": "Directory to list (default: workspace root)"}
			}
		}`),
		true, false,
		r.lsTool,
	)

	r.register("read",
		`Read file contents with line numbers (cat -n style, 1-indexed). Use start_line/end_line for large files. Always prefer this over bash cat/head/tail.`,
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {"type": "string", "description": "File to read"},
				"start_line": {"type": "integer", "description": "First line to read (1-indexed, default: 1)"},
				"end_line": {"type": "integer", "description": "Last line to read (inclusive)"}
			},
			"required": ["path"]
		}`),
		true, false,
		r.readTool,
	)
}

func (r *Registry) registerTaskTools() {
	r.register("write_tasks",
		`Create or replace the task list for planning multi-step work. Requires user confirmation. Each task has content (short imperative title), description (files to touch, approach, what "done" looks like), and an optional active_form. After the plan is approved, mark task 1 in_progress and begin.`,
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"tasks": {
					"type": "array",
					"items": {
						"type": "object",
						"properties": {
							"content": {"type": "string"},
							"description": {"type": "string"},
							"active_form": {"type": "string"}
						},
						"required": ["content", "description"]
					}
				}
			},
			"required": ["tasks"]
		}`),
		false, true,
		r.writeTasksTool,
	)

	r.register("update_task",
		`Update a task's status by ID. Valid statuses: pending, in_progress, completed.`,
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"id": {"type": "integer"},
				"status": {"type": "string", "enum": ["pending", "in_progress", "completed"]}
			},
			"required": ["id", "status"]
		}`),
		false, false,
		r.updateTaskTool,
	)

	r.register("read_tasks",
		"Read the current task list. Task state is already in the system prompt each turn; only useful after compaction.",
		json.RawMessage(`{"type": "object", "properties": {}}`),
		true, false,
		r.readTasksTool,
	)
}

func (r *Registry) registerBuiltins() {
	r.registerReadOnlyTools()
	r.registerTaskTools()

	r.register("write",
		`Create or overwrite a file. Creates parent directories as needed. Requires user confirmation. Prefer edit for existing files. Never create *.md or README files unless explicitly requested.`,
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {"type": "string"},
				"content": {"type": "string"}
			},
			"required": ["path", "content"]
		}`),
		false, true,
		r.writeTool,
	)

	r.register("edit",
		`Replace an exact string match in a file. old_str must appear exactly once unless replace_all is set. Preserve exact indentation from read output; do not include its line-number gutter.`,
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {"type": "string"},
				"old_str": {"type": "string"},
				"new_str": {"type": "string"},
				"replace_all": {"type": "boolean"}
			},
			"required": ["path", "old_str", "new_str"]
		}`),
		false, true,
		r.editTool,
	)

	r.register("delete",
		`Delete a file. Requires user confirmation.`,
		json.RawMessage(`{
			"type": "object",
			"properties": {"path": {"type": "string"}},
			"required": ["path"]
		}`),
		false, true,
		r.deleteTool,
	)

	r.register("bash",
		`Execute a shell command in the workspace root. Not for file reads/writes/edits/search — use the dedicated tools. Dispatched immediately (a command_start/command_output stream is emitted to the client) but blocked by a denylist of patterns that duplicate a dedicated tool. Default timeout 30s, max 120s; output truncated past 50,000 characters.

Git safety: never force-push, reset --hard, --no-verify, or amend unless explicitly asked. No interactive flags. Prefer staging specific files over "git add -A". Only commit when explicitly requested.`,
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"command": {"type": "string"},
				"timeout": {"type": "integer", "description": "Seconds, default 30, max 120"}
			},
			"required": ["command"]
		}`),
		false, false,
		r.bashTool,
	)

	r.register("scout",
		`Delegate a broad research question to a read-only sub-agent with its own context window (glob, grep, find_symbol, ls, read only). Use for "how does X work?" or "find all call sites of Y" — not for direct edits or commands.`,
		json.RawMessage(`{
			"type": "object",
			"properties": {"task": {"type": "string"}},
			"required": ["task"]
		}`),
		true, false,
		r.scoutTool,
	)

	r.register("ask_user",
		`Ask the user a clarifying question and suspend the turn until they respond. Use sparingly — only when a genuine ambiguity blocks progress and guessing would be wrong.`,
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"question": {"type": "string"},
				"options": {"type": "array", "items": {"type": "string"}, "description": "Optional suggested answers"}
			},
			"required": ["question"]
		}`),
		true, false,
		r.askUserTool,
	)
}
