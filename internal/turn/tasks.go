package turn

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lowkaihon/agentd/internal/session"
	"github.com/lowkaihon/agentd/internal/tools"
)

// taskCallbacksFor builds the tools.TaskCallbacks that route update_task and
// read_tasks through the session's todo list, emitting todos_updated so the
// client stays in sync. write_tasks is deliberately absent here — unlike
// update_task/read_tasks it is never auto-dispatched through the registry;
// the Engine intercepts it before the tool loop's normal dispatch because it
// is the plan-proposal mechanism, not a todo mutation (see handlePlanProposal).
func taskCallbacksFor(s *session.Session, emit EventFunc) tools.TaskCallbacks {
	return tools.TaskCallbacks{
		UpdateTask: func(id int, status string) error {
			if !s.UpdateTodoStatus(id, session.TodoStatus(status)) {
				return fmt.Errorf("no such task: %d", id)
			}
			emit(evTodosUpdated(todosToMaps(s.TodosSnapshot())))
			return nil
		},
		ReadTasks: func() string {
			return formatTodos(s.TodosSnapshot())
		},
	}
}

func todosToMaps(todos []session.Todo) []map[string]any {
	out := make([]map[string]any, len(todos))
	for i, t := range todos {
		out[i] = map[string]any{"id": t.ID, "content": t.Content, "status": string(t.Status)}
	}
	return out
}

func formatTodos(todos []session.Todo) string {
	if len(todos) == 0 {
		return "No tasks."
	}
	var sb strings.Builder
	for _, t := range todos {
		fmt.Fprintf(&sb, "[%d] (%s) %s\n", t.ID, t.Status, t.Content)
	}
	return sb.String()
}

// writeTasksArgs mirrors tools.writeTasksInput's wire shape so the Engine
// can parse a write_tasks call's raw arguments without importing the
// registry's unexported parameter type.
type writeTasksArgs struct {
	Tasks []struct {
		Content     string `json:"content"`
		Description string `json:"description"`
		ActiveForm  string `json:"active_form"`
	} `json:"tasks"`
}

// parsePlanProposal extracts the step list and a human-readable plan body
// from a write_tasks call's raw JSON arguments.
func parsePlanProposal(rawArgs string) (steps []string, planText string, err error) {
	var args writeTasksArgs
	if jerr := json.Unmarshal([]byte(rawArgs), &args); jerr != nil {
		return nil, "", fmt.Errorf("invalid write_tasks arguments: %w", jerr)
	}
	if len(args.Tasks) == 0 {
		return nil, "", fmt.Errorf("write_tasks arguments carry no tasks")
	}
	steps = make([]string, len(args.Tasks))
	var sb strings.Builder
	for i, t := range args.Tasks {
		steps[i] = t.Content
		fmt.Fprintf(&sb, "%d. %s\n", i+1, t.Content)
		if t.Description != "" {
			fmt.Fprintf(&sb, "   %s\n", t.Description)
		}
	}
	return steps, sb.String(), nil
}
