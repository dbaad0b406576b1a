// Package session implements the Session Manager: durable per-session state
// (history, todos, pending plan, pending diffs, checkpoints, token stats)
// and the one-turn-at-a-time actor discipline each session enforces, per
// spec §3/§4.E. A Session owns its Workspace and Tool Registry exclusively;
// all external access — the Turn Engine, the Transport Bridge, the External
// Facade's read-only queries — goes through its exported methods, which
// take the session's single mutex.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lowkaihon/agentd/internal/llm"
	"github.com/lowkaihon/agentd/internal/tools"
	"github.com/lowkaihon/agentd/internal/workspace"
)

// BlockKind is the kind of one ordered block within an assistant message.
type BlockKind string

const (
	BlockThinking   BlockKind = "thinking"
	BlockText       BlockKind = "text"
	BlockToolUse    BlockKind = "tool_use"
	BlockToolResult BlockKind = "tool_result"
)

// Block is one ordered piece of an assistant message, preserving the
// interleaving of reasoning, text, tool calls and their results exactly as
// the model produced them (spec §3).
type Block struct {
	Kind BlockKind `json:"kind"`

	Text string `json:"text,omitempty"` // thinking/text content

	ID    string `json:"id,omitempty"`    // tool_use/tool_result id
	Name  string `json:"name,omitempty"`  // tool_use function name
	Input string `json:"input,omitempty"` // tool_use raw JSON input

	Content string `json:"content,omitempty"` // tool_result content
	Success bool   `json:"success,omitempty"` // tool_result outcome
}

// Message is one history entry: a user message (plain text plus optional
// inline images) or an assistant message (ordered blocks).
type Message struct {
	Role   string   `json:"role"` // "user" | "assistant"
	Text   string   `json:"text,omitempty"`
	Images []string `json:"images,omitempty"` // data-URL or path references
	Blocks []Block  `json:"blocks,omitempty"`
}

// TodoStatus is the lifecycle state of one todo item.
type TodoStatus string

const (
	TodoPending    TodoStatus = "pending"
	TodoInProgress TodoStatus = "in_progress"
	TodoCompleted  TodoStatus = "completed"
)

// Todo is one entry of the session's task list.
type Todo struct {
	ID      int        `json:"id"`
	Content string     `json:"content"`
	Status  TodoStatus `json:"status"`
}

// PendingPlan is the plan awaiting a build/replan/reject decision.
type PendingPlan struct {
	Steps    []string `json:"steps"`
	PlanText string   `json:"plan_text,omitempty"`
	PlanFile string   `json:"plan_file,omitempty"`
}

// DiffLabel classifies a pending diff entry.
type DiffLabel string

const (
	LabelModified DiffLabel = "modified"
	LabelNewFile  DiffLabel = "new_file"
)

// PendingDiff is one file awaiting a keep/revert decision.
type PendingDiff struct {
	Path            string    `json:"path"`
	OriginalContent string    `json:"original_content"`
	CurrentContent  string    `json:"current_content"`
	Label           DiffLabel `json:"label"`
}

// CheckpointMeta is the durable (non-content) record of a checkpoint; the
// baseline bytes themselves live in the workspace's in-memory
// CheckpointStore, interned by content hash (spec §9).
type CheckpointMeta struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	StepIndex *int      `json:"step_index,omitempty"`
	Paths     []string  `json:"paths"`
	CreatedAt time.Time `json:"created_at"`
}

// TokenStats tracks running token usage and the per-turn context-usage
// percentage the client shows alongside the compaction threshold.
type TokenStats struct {
	InputTokens     int     `json:"input_tokens"`
	OutputTokens    int     `json:"output_tokens"`
	CacheReadTokens int     `json:"cache_read_tokens"`
	ContextUsagePct float64 `json:"context_usage_pct"`
}

// Session is the unit of persistence and concurrency: one logical agent,
// with its own workspace, tool registry, conversation, and interactive
// suspension state. Exactly one turn runs at a time (spec §3 invariant);
// mu serializes all access, standing in for the single-actor mailbox spec
// §5/§9 describe without requiring a dedicated goroutine per session.
type Session struct {
	mu sync.Mutex

	ID               string    `json:"session_id"`
	Name             string    `json:"name"`
	WorkingDirectory string    `json:"working_directory"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`

	History      []Message      `json:"history"`
	Todos        []Todo         `json:"todos"`
	PendingPlan  *PendingPlan   `json:"pending_plan,omitempty"`
	PendingDiffs []PendingDiff  `json:"pending_diffs,omitempty"`
	Checkpoints  []CheckpointMeta `json:"checkpoints"`
	TokenStats   TokenStats     `json:"token_stats"`
	AgentRunning bool           `json:"agent_running"`

	nextTodoID int

	// Runtime-only: not persisted, rebuilt by the Manager on load.
	Workspace     *workspace.Workspace `json:"-"`
	Tools         *tools.Registry      `json:"-"`
	Client        llm.Client           `json:"-"`
	ContextWindow int                  `json:"-"`
	cancel        func()               `json:"-"`
}

// New creates a fresh Session rooted at workingDirectory. The caller (the
// Manager) wires Workspace/Tools/Client after construction.
func New(name, workingDirectory string) *Session {
	now := time.Now()
	return &Session{
		ID:               generateSessionID(),
		Name:             name,
		WorkingDirectory: workingDirectory,
		CreatedAt:        now,
		UpdatedAt:        now,
		nextTodoID:       1,
	}
}

func generateSessionID() string {
	return time.Now().Format("20060102-150405") + "-" + uuid.NewString()
}

// Lock/Unlock expose the session's single mutex to callers that need to
// hold it across several mutations (the Turn Engine, mid-turn) without
// duplicating lock plumbing on every method.
func (s *Session) Lock()   { s.mu.Lock() }
func (s *Session) Unlock() { s.mu.Unlock() }

// Touch marks the session as updated now; called on every mutation.
func (s *Session) touch() { s.UpdatedAt = time.Now() }

// AppendUser appends a user message to history.
func (s *Session) AppendUser(text string, images []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.History = append(s.History, Message{Role: "user", Text: text, Images: images})
	s.touch()
}

// AppendAssistant appends a fully-formed assistant message (its blocks
// already closed) to history.
func (s *Session) AppendAssistant(blocks []Block) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.History = append(s.History, Message{Role: "assistant", Blocks: blocks})
	s.touch()
}

// SetRunning flips agent_running; callers clear it on every terminal event
// (spec §3 invariant: "cleared on terminal event").
func (s *Session) SetRunning(running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AgentRunning = running
	s.touch()
}

// IsRunning reports whether a turn is currently in flight.
func (s *Session) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.AgentRunning
}

// SetCancel stores the cancel function for the in-flight turn, if any.
func (s *Session) SetCancel(cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancel = cancel
}

// Cancel invokes the in-flight turn's cancel function, if one is set.
func (s *Session) Cancel() bool {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return false
	}
	cancel()
	return true
}

// SetPendingPlan stores a freshly proposed plan, suspending the turn in
// PLAN (spec §4.D).
func (s *Session) SetPendingPlan(p *PendingPlan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PendingPlan = p
	s.touch()
}

// PendingPlanSnapshot returns the plan awaiting a decision, or nil.
func (s *Session) PendingPlanSnapshot() *PendingPlan {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.PendingPlan
}

// ClearPendingPlan clears the plan on build/reject.
func (s *Session) ClearPendingPlan() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PendingPlan = nil
	s.touch()
}

// SetPendingDiffs stores the set of files awaiting keep/revert.
func (s *Session) SetPendingDiffs(diffs []PendingDiff) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PendingDiffs = diffs
	s.touch()
}

// ClearPendingDiffs clears the awaiting-keep/revert state.
func (s *Session) ClearPendingDiffs() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PendingDiffs = nil
	s.touch()
}

// AwaitingDecision reports whether the session cannot accept a new task:
// either a plan awaits build/reject, or diffs await keep/revert (spec §3
// invariant).
func (s *Session) AwaitingDecision() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.PendingPlan != nil || len(s.PendingDiffs) > 0
}

// AddCheckpoint records a checkpoint's metadata (the byte baselines
// themselves live in the Workspace's CheckpointStore).
func (s *Session) AddCheckpoint(meta CheckpointMeta) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Checkpoints = append(s.Checkpoints, meta)
	s.touch()
}

// ClearCheckpoints drops all checkpoint metadata (used by `keep`).
func (s *Session) ClearCheckpoints() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Checkpoints = nil
	s.touch()
}

// TruncateCheckpoints keeps only the first n checkpoint records (used by
// revert_to_step, which discards later steps' metadata).
func (s *Session) TruncateCheckpoints(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n < 0 || n > len(s.Checkpoints) {
		return
	}
	s.Checkpoints = s.Checkpoints[:n]
	s.touch()
}

// AddTodo appends a new todo in pending status and returns its id.
func (s *Session) AddTodo(content string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextTodoID
	s.nextTodoID++
	s.Todos = append(s.Todos, Todo{ID: id, Content: content, Status: TodoPending})
	s.touch()
	return id
}

// RemoveTodo deletes the todo with the given id.
func (s *Session) RemoveTodo(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.Todos {
		if t.ID == id {
			s.Todos = append(s.Todos[:i], s.Todos[i+1:]...)
			break
		}
	}
	s.touch()
}

// SetTodos replaces the entire todo list (write_tasks), assigning fresh
// sequential ids.
func (s *Session) SetTodos(contents []string) []Todo {
	s.mu.Lock()
	defer s.mu.Unlock()
	todos := make([]Todo, len(contents))
	for i, c := range contents {
		todos[i] = Todo{ID: s.nextTodoID, Content: c, Status: TodoPending}
		s.nextTodoID++
	}
	s.Todos = todos
	s.touch()
	return append([]Todo(nil), todos...)
}

// UpdateTodoStatus updates one todo's status by id.
func (s *Session) UpdateTodoStatus(id int, status TodoStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.Todos {
		if s.Todos[i].ID == id {
			s.Todos[i].Status = status
			s.touch()
			return true
		}
	}
	return false
}

// TodosSnapshot returns a copy of the current todo list.
func (s *Session) TodosSnapshot() []Todo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Todo(nil), s.Todos...)
}

// UpdateTokenStats accumulates usage and records the latest context-usage
// percentage (driven by internal/turn's compaction check).
func (s *Session) UpdateTokenStats(input, output, cacheRead int, contextUsagePct float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TokenStats.InputTokens += input
	s.TokenStats.OutputTokens += output
	s.TokenStats.CacheReadTokens += cacheRead
	s.TokenStats.ContextUsagePct = contextUsagePct
	s.touch()
}

// HistorySnapshot returns a copy of the full message history, for replay.
func (s *Session) HistorySnapshot() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.History...)
}

// ReplaceHistory overwrites the full message history, used by the Turn
// Engine's compaction pass to swap in a summarized conversation.
func (s *Session) ReplaceHistory(history []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.History = history
	s.touch()
}

// Reset clears history, todos, pending plan/diffs, and checkpoints,
// preserving session_id, name, and working_directory (spec §4.E).
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.History = nil
	s.Todos = nil
	s.nextTodoID = 1
	s.PendingPlan = nil
	s.PendingDiffs = nil
	s.Checkpoints = nil
	s.TokenStats = TokenStats{}
	s.AgentRunning = false
	s.Workspace.Checkpoints().Drop()
	s.touch()
}

// Meta is the lightweight, listable view of a session (no history).
type Meta struct {
	ID               string    `json:"session_id"`
	Name             string    `json:"name"`
	WorkingDirectory string    `json:"working_directory"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	MessageCount     int       `json:"message_count"`
}

// MetaSnapshot returns this session's lightweight metadata view.
func (s *Session) MetaSnapshot() Meta {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Meta{
		ID:               s.ID,
		Name:             s.Name,
		WorkingDirectory: s.WorkingDirectory,
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
		MessageCount:     len(s.History),
	}
}
