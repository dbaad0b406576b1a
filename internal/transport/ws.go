package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/lowkaihon/agentd/internal/logging"
	"github.com/lowkaihon/agentd/internal/session"
	"github.com/lowkaihon/agentd/internal/turn"
)

// outboundQueueSize bounds the per-connection event buffer (spec.md §5
// "Backpressure"); beyond it, further events are dropped in favor of one
// coarse status event, and the client is expected to resync on reconnect.
const outboundQueueSize = 256

// Bridge is the Transport Bridge: it upgrades HTTP connections to
// WebSockets, translates inbound client messages into Turn Engine calls,
// and forwards the Engine's event stream back out, one goroutine per
// connection plus one per in-flight turn.
type Bridge struct {
	mgr      *session.Manager
	engine   *turn.Engine
	askUser  *AskUserBridge
	upgrader websocket.Upgrader
	log      logging.Logger
}

// NewBridge creates a Bridge wired to mgr/engine/askUser.
func NewBridge(mgr *session.Manager, engine *turn.Engine, askUser *AskUserBridge) *Bridge {
	return &Bridge{
		mgr:     mgr,
		engine:  engine,
		askUser: askUser,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: logging.Named("transport"),
	}
}

// conn wraps one WebSocket with a serialized, bounded outbound queue so the
// Engine's synchronous emit callback never blocks on a slow client and two
// goroutines (the running turn, a concurrent control-message handler) never
// interleave writes on the raw socket.
type conn struct {
	ws       *websocket.Conn
	outbound chan turn.Event
	done     chan struct{}
	once     sync.Once
}

func newConn(ws *websocket.Conn) *conn {
	c := &conn{ws: ws, outbound: make(chan turn.Event, outboundQueueSize), done: make(chan struct{})}
	go c.writePump()
	return c
}

func (c *conn) writePump() {
	for {
		select {
		case ev, ok := <-c.outbound:
			if !ok {
				return
			}
			if err := c.ws.WriteJSON(ev); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// emit is the EventFunc handed to the Turn Engine. A full queue means the
// client is not draining fast enough; per spec.md §5 the overflow is
// collapsed into one status event instead of blocking the turn.
func (c *conn) emit(ev turn.Event) {
	select {
	case c.outbound <- ev:
	default:
		select {
		case c.outbound <- turn.Event{Type: "status", Content: "client is behind; reconnect to resync"}:
		default:
		}
	}
}

func (c *conn) close() {
	c.once.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}

// HandleWS upgrades the request and drives one IDE client connection for
// the session named by the session_id query parameter (or the most recent
// session, or a fresh one rooted at the server's default directory, per
// spec.md §4.F).
func (b *Bridge) HandleWS(w http.ResponseWriter, r *http.Request, defaultDir string) {
	s, err := b.resolveSession(r, defaultDir)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ws, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	c := newConn(ws)
	defer c.close()

	b.replay(s, c.emit)

	ctx := r.Context()
	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return
		}
		msg, err := decodeInbound(raw)
		if err != nil {
			c.emit(turn.Event{Type: "error", Content: "malformed message: " + err.Error()})
			continue
		}
		b.dispatch(ctx, s, msg, c.emit)
	}
}

// resolveSession binds the connection to a session: a session_id the
// Manager knows is loaded; an unknown session_id creates a fresh session
// rooted at defaultDir rather than failing; with no session_id the most
// recent session is used, or a fresh one is created.
func (b *Bridge) resolveSession(r *http.Request, defaultDir string) (*session.Session, error) {
	id := r.URL.Query().Get("session_id")
	if id != "" {
		if s, err := b.mgr.Get(id); err == nil {
			return s, nil
		}
		return b.mgr.Create("session", defaultDir)
	}
	if s, err := b.mgr.MostRecent(); err == nil && s != nil {
		return s, nil
	}
	return b.mgr.Create("session", defaultDir)
}

// dispatch routes one decoded inbound message to the matching Turn Engine
// entrypoint or session mutation, per spec.md §4.F's enumeration.
func (b *Bridge) dispatch(ctx context.Context, s *session.Session, msg *inbound, emit turn.EventFunc) {
	switch msg.Type {
	case typeTask:
		if s.AwaitingDecision() {
			emit(turn.Event{Type: "error", Content: "a plan or review decision is pending on this session"})
			return
		}
		b.startTurn(ctx, s, emit, func(turnCtx context.Context) {
			b.engine.RunTurn(turnCtx, s, msg.Content, msg.Images, emit)
		})
	case typeCancel:
		s.Cancel()
	case typeBuild:
		b.startTurn(ctx, s, emit, func(turnCtx context.Context) {
			b.engine.Build(turnCtx, s, msg.Steps, emit)
		})
	case typeReplan:
		b.startTurn(ctx, s, emit, func(turnCtx context.Context) {
			b.engine.Replan(turnCtx, s, msg.Content, emit)
		})
	case typeRejectPlan:
		if b.mgr.TryStart(s) {
			b.engine.RejectPlan(s, emit)
		}
	case typeKeep:
		if b.mgr.TryStart(s) {
			b.engine.Keep(s, emit)
		}
	case typeRevert:
		if b.mgr.TryStart(s) {
			b.engine.Revert(s, emit)
		}
	case typeRevertToStep:
		if b.mgr.TryStart(s) {
			b.engine.RevertToStep(s, msg.Step, emit)
		}
	case typeUserAnswer:
		b.askUser.Answer(msg.ToolUseID, msg.Answer)
	case typeReset:
		s.Reset()
		emit(turn.Event{Type: "reset_done"})
	case typeCheckpointList:
		b.emitCheckpointList(s, emit)
	case typeCheckpointRestore:
		b.restoreCheckpoint(s, msg.CheckpointID, emit)
	case typeAddTodo:
		s.AddTodo(msg.Content)
		emit(turn.Event{Type: "todos_updated", Data: map[string]any{"todos": todosPayload(s)}})
	case typeRemoveTodo:
		s.RemoveTodo(msg.ID)
		emit(turn.Event{Type: "todos_updated", Data: map[string]any{"todos": todosPayload(s)}})
	default:
		emit(turn.Event{Type: "error", Content: fmt.Sprintf("unknown message type %q", msg.Type)})
	}
}

// startTurn enforces the one-turn-at-a-time invariant (spec.md §4.E) before
// launching an Engine entrypoint in its own goroutine, so the connection's
// read loop stays responsive to cancel/user_answer while a turn streams.
func (b *Bridge) startTurn(ctx context.Context, s *session.Session, emit turn.EventFunc, run func(context.Context)) {
	if !b.mgr.TryStart(s) {
		emit(turn.Event{Type: "error", Content: "a turn is already running on this session"})
		return
	}
	go run(ctx)
}

func (b *Bridge) emitCheckpointList(s *session.Session, emit turn.EventFunc) {
	s.Lock()
	checkpoints := make([]map[string]any, 0, len(s.Checkpoints))
	for _, cp := range s.Checkpoints {
		checkpoints = append(checkpoints, map[string]any{
			"id":         cp.ID,
			"label":      cp.Label,
			"step_index": cp.StepIndex,
			"paths":      cp.Paths,
			"created_at": cp.CreatedAt,
		})
	}
	s.Unlock()
	emit(turn.Event{Type: "checkpoint_list", Data: map[string]any{"checkpoints": checkpoints}})
}

func (b *Bridge) restoreCheckpoint(s *session.Session, id string, emit turn.EventFunc) {
	for _, cp := range s.Workspace.Checkpoints().List() {
		if cp.ID != id {
			continue
		}
		paths, err := s.Workspace.Checkpoints().RestoreCheckpoint(cp, s.Workspace.Root())
		if err != nil {
			emit(turn.Event{Type: "checkpoint_error", Content: err.Error()})
			return
		}
		emit(turn.Event{Type: "checkpoint_restored", Data: map[string]any{
			"checkpoint_id": id, "count": len(paths), "paths": paths,
		}})
		return
	}
	emit(turn.Event{Type: "checkpoint_error", Content: fmt.Sprintf("no such checkpoint: %s", id)})
}

func todosPayload(s *session.Session) []map[string]any {
	todos := s.TodosSnapshot()
	out := make([]map[string]any, len(todos))
	for i, t := range todos {
		out[i] = map[string]any{"id": t.ID, "content": t.Content, "status": string(t.Status)}
	}
	return out
}
