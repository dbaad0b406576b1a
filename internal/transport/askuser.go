package transport

import (
	"context"
	"sync"

	"github.com/lowkaihon/agentd/internal/tools"
)

// AskUserBridge implements the blocking half of tools.AskUserFunc: the Turn
// Engine already emits the user_question event itself before invoking the
// callback (internal/turn's wireTools), so the bridge only needs to block
// until a matching user_answer inbound message arrives. One Engine (and so
// one AskUserFunc) is shared by every session, so pending questions are
// keyed purely by tool_use_id, which the model provider guarantees unique;
// cancellation needs no bookkeeping here because the per-turn context
// passed into Ask is already a child of the context internal/turn cancels
// on a `cancel` message — ctx.Done() unblocks the wait on its own.
type AskUserBridge struct {
	mu      sync.Mutex
	pending map[string]chan string
}

// NewAskUserBridge creates an empty bridge.
func NewAskUserBridge() *AskUserBridge {
	return &AskUserBridge{pending: make(map[string]chan string)}
}

// Ask implements tools.AskUserFunc, suitable for passing once to
// turn.NewEngine at process start.
func (b *AskUserBridge) Ask(ctx context.Context, toolUseID, question string, options []string) (string, error) {
	ch := make(chan string, 1)

	b.mu.Lock()
	b.pending[toolUseID] = ch
	b.mu.Unlock()

	select {
	case answer := <-ch:
		return answer, nil
	case <-ctx.Done():
		b.mu.Lock()
		delete(b.pending, toolUseID)
		b.mu.Unlock()
		return "", ctx.Err()
	}
}

// Answer delivers a user_answer message to the waiting Ask call, if any.
// Returns false if there was no pending question for that tool_use_id (a
// late or duplicate answer, or one for a question this process never
// asked).
func (b *AskUserBridge) Answer(toolUseID, answer string) bool {
	b.mu.Lock()
	ch, ok := b.pending[toolUseID]
	if ok {
		delete(b.pending, toolUseID)
	}
	b.mu.Unlock()
	if !ok {
		return false
	}
	ch <- answer
	return true
}

var _ tools.AskUserFunc = (*AskUserBridge)(nil).Ask
