package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"
)

const (
	defaultTimeout = 30
	maxTimeout     = 120
	maxOutputChars = 50000 // rolling window shown to the model; full output is not truncated in the stream
)

// defaultDenylist blocks shell invocations of tools that duplicate a
// dedicated tool (file reads/search), where the model should use the
// structured equivalent instead of raw bash output. Overridable per
// Registry via SetBashDenylist (agentd's config.Config.BashDenylist).
var defaultDenylist = []string{"find ", "grep ", "rg ", "cat ", "head ", "tail ", "sed ", "awk "}

// BashEvent is emitted around an auto-approved bash invocation so the Turn
// Engine can forward command_start/command_output/tool_result-adjacent data
// to the client without bash going through the confirmation round trip.
type BashEvent struct {
	ToolUseID string
	Kind      string // "start", "output", "result"
	Chunk     string
	IsStderr  bool
	ExitCode  int
	Duration  time.Duration
}

// BashStreamFunc receives BashEvents as a command runs. Set via
// SetBashStreamFunc; nil is a valid no-op (e.g. in the scout sub-registry).
type BashStreamFunc func(BashEvent)

// SetBashStreamFunc wires the Turn Engine's event emitter for bash's
// auto-approval streaming (command_start, command_output, exit code).
func (r *Registry) SetBashStreamFunc(f BashStreamFunc) {
	r.bashStream = f
}

// SetBashDenylist overrides the patterns bashTool rejects, set once at
// registry construction from config.Config.BashDenylist.
func (r *Registry) SetBashDenylist(patterns []string) {
	r.bashDenylist = patterns
}

func (r *Registry) denylist() []string {
	if r.bashDenylist != nil {
		return r.bashDenylist
	}
	return defaultDenylist
}

type toolUseIDKey struct{}

// WithToolUseID attaches the originating tool_use id to ctx so bashTool can
// tag its streamed BashEvents; set by the Turn Engine before dispatch.
func WithToolUseID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, toolUseIDKey{}, id)
}

func toolUseIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(toolUseIDKey{}).(string)
	return id
}

type bashInput struct {
	Command string `json:"command"`
	Timeout int    `json:"timeout"`
}

// bashTool is registered auto-approved (spec: Bash dispatches immediately,
// gated only by the denylist, not a user confirmation). It still emits a
// command_start-equivalent event before running and command_output chunks
// as the process produces them.
func (r *Registry) bashTool(ctx context.Context, input json.RawMessage) (string, error) {
	params, err := parseInput[bashInput](input)
	if err != nil {
		return "", err
	}
	if params.Command == "" {
		return "", fmt.Errorf("command is required")
	}
	for _, d := range r.denylist() {
		if strings.Contains(params.Command, d) {
			return "", fmt.Errorf("use a dedicated tool instead of bash %s", strings.TrimSpace(d))
		}
	}

	timeout := params.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if timeout > maxTimeout {
		timeout = maxTimeout
	}

	toolUseID := toolUseIDFromContext(ctx)
	if r.bashStream != nil {
		r.bashStream(BashEvent{ToolUseID: toolUseID, Kind: "start"})
	}

	return runBash(ctx, r.ws.Root(), params.Command, timeout, toolUseID, r.bashStream)
}

// streamWriter forwards every Write to a BashStreamFunc as a command_output
// chunk while also buffering into dst for the final persisted tool_result.
type streamWriter struct {
	mu       *sync.Mutex
	dst      *bytes.Buffer
	toolUse  string
	isStderr bool
	stream   BashStreamFunc
}

func (w *streamWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	w.dst.Write(p)
	w.mu.Unlock()
	if w.stream != nil {
		w.stream(BashEvent{ToolUseID: w.toolUse, Kind: "output", Chunk: string(p), IsStderr: w.isStderr})
	}
	return len(p), nil
}

// runBash executes command with a hard timeout, escalating SIGTERM to
// SIGKILL if the process ignores cancellation, streaming output chunks via
// stream and returning the merged, rolling-window-truncated output.
func runBash(ctx context.Context, dir, command string, timeoutSecs int, toolUseID string, stream BashStreamFunc) (string, error) {
	start := time.Now()
	execCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutSecs)*time.Second)
	defer cancel()

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(execCtx, "cmd", "/C", command)
	} else {
		cmd = exec.CommandContext(execCtx, "bash", "-c", command)
	}
	cmd.Dir = dir
	cmd.Cancel = terminateThenKill(cmd)

	var mu sync.Mutex
	var buf bytes.Buffer
	cmd.Stdout = &streamWriter{mu: &mu, dst: &buf, toolUse: toolUseID, isStderr: false, stream: stream}
	cmd.Stderr = &streamWriter{mu: &mu, dst: &buf, toolUse: toolUseID, isStderr: true, stream: stream}

	err := cmd.Run()
	duration := time.Since(start)

	output := buf.String()
	truncated := false
	if len(output) > maxOutputChars {
		output = output[len(output)-maxOutputChars:]
		truncated = true
	}

	exitCode := 0
	var result string
	switch {
	case err != nil && execCtx.Err() != nil:
		exitCode = -1
		result = fmt.Sprintf("Command timed out after %ds.\n%s", timeoutSecs, output)
	case err != nil:
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
		result = fmt.Sprintf("Exit code: %s\n%s", err, output)
	case output == "":
		result = "(no output)"
	default:
		result = output
	}
	if truncated {
		result += "\n[output truncated]"
	}

	if stream != nil {
		stream(BashEvent{ToolUseID: toolUseID, Kind: "result", ExitCode: exitCode, Duration: duration})
	}
	return result, nil
}

// terminateThenKill returns the cmd.Cancel hook used on context timeout:
// send SIGTERM, and if the process is still alive after a grace period the
// runtime's WaitDelay forces SIGKILL.
func terminateThenKill(cmd *exec.Cmd) func() error {
	return func() error {
		if cmd.Process == nil {
			return nil
		}
		cmd.WaitDelay = 2 * time.Second
		return cmd.Process.Signal(syscall.SIGTERM)
	}
}
