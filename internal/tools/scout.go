package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lowkaihon/agentd/internal/workspace"
)

// ScoutFunc runs a read-only research sub-loop over a question and returns
// its findings. Injected by the Turn Engine to break the tools->turn import
// cycle — the scout sub-agent is itself a small turn loop with its own
// context window and a read-only registry.
type ScoutFunc func(ctx context.Context, task string) (string, error)

// SetScoutFunc injects the scout callback.
func (r *Registry) SetScoutFunc(fn ScoutFunc) {
	r.scoutFunc = fn
}

type scoutInput struct {
	Task string `json:"task"`
}

func (r *Registry) scoutTool(ctx context.Context, input json.RawMessage) (string, error) {
	params, err := parseInput[scoutInput](input)
	if err != nil {
		return "", err
	}
	if params.Task == "" {
		return "", fmt.Errorf("task is required")
	}
	if r.scoutFunc == nil {
		return "", fmt.Errorf("scout sub-agent not configured")
	}
	return r.scoutFunc(ctx, params.Task)
}

// NewReadOnlyRegistry creates a registry with only the read-only tools
// (glob, grep, find_symbol, ls, read), used by the scout sub-agent so it cannot mutate
// the workspace it is investigating.
func NewReadOnlyRegistry(ws *workspace.Workspace) *Registry {
	r := &Registry{ws: ws}
	r.registerReadOnlyTools()
	return r
}
