package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// AskUserFunc suspends the turn, surfaces a question (with optional
// suggested answers, tagged with the originating tool_use_id) to the
// browser client, and blocks until the user responds or the turn is
// cancelled.
type AskUserFunc func(ctx context.Context, toolUseID, question string, options []string) (string, error)

// SetAskUserFunc injects the ask_user callback.
func (r *Registry) SetAskUserFunc(fn AskUserFunc) {
	r.askCallback = fn
}

type askUserInput struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

func (r *Registry) askUserTool(ctx context.Context, input json.RawMessage) (string, error) {
	params, err := parseInput[askUserInput](input)
	if err != nil {
		return "", err
	}
	if params.Question == "" {
		return "", fmt.Errorf("question is required")
	}
	if r.askCallback == nil {
		return "", fmt.Errorf("ask_user not configured")
	}
	return r.askCallback(ctx, toolUseIDFromContext(ctx), params.Question, params.Options)
}
