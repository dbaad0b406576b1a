// Package transport implements the Transport Bridge: the per-connection
// WebSocket adapter that turns inbound client messages into Turn Engine
// calls and forwards the Engine's outbound events back to the browser,
// plus the PTY multiplexer for the separate terminal socket.
package transport

import "encoding/json"

// inbound is the envelope every client->server WebSocket message arrives
// in; Type selects how the remaining fields are interpreted (spec.md §4.F).
type inbound struct {
	Type string `json:"type"`

	// task
	Content string   `json:"content,omitempty"`
	Images  []string `json:"images,omitempty"`
	Context string   `json:"context,omitempty"`

	// build
	Steps []string `json:"steps,omitempty"`

	// revert_to_step
	Step int `json:"step,omitempty"`

	// user_answer
	ToolUseID string `json:"tool_use_id,omitempty"`
	Answer    string `json:"answer,omitempty"`

	// checkpoint_restore
	CheckpointID string `json:"checkpoint_id,omitempty"`

	// add_todo
	// (reuses Content)

	// remove_todo
	ID int `json:"id,omitempty"`
}

func decodeInbound(raw []byte) (*inbound, error) {
	var msg inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

const (
	typeTask              = "task"
	typeCancel            = "cancel"
	typeBuild             = "build"
	typeReplan            = "replan"
	typeRejectPlan        = "reject_plan"
	typeKeep              = "keep"
	typeRevert            = "revert"
	typeRevertToStep      = "revert_to_step"
	typeUserAnswer        = "user_answer"
	typeReset             = "reset"
	typeCheckpointList    = "checkpoint_list"
	typeCheckpointRestore = "checkpoint_restore"
	typeAddTodo           = "add_todo"
	typeRemoveTodo        = "remove_todo"
)
