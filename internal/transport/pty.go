package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"os/exec"

	"github.com/creack/pty"
	"github.com/gorilla/websocket"

	"github.com/lowkaihon/agentd/internal/session"
	"github.com/lowkaihon/agentd/internal/workspace"
)

// ptyResize is the inbound control frame that resizes the terminal
// (spec.md §4.F: `{resize:[rows,cols]}`).
type ptyResize struct {
	Resize []int `json:"resize"`
}

// defaultShell is the interactive shell spawned for a terminal connection;
// overridable for workspaces that set $SHELL.
func defaultShell() string {
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	return "/bin/sh"
}

// ptySession is the minimal surface HandleTerminal pumps bytes through,
// satisfied by both a local *os.File-backed pty and a remote
// workspace.RemotePTYSession, so the websocket plumbing below is written
// once and does not care which one it got.
type ptySession interface {
	io.Reader
	io.Writer
	Resize(rows, cols int) error
	Close() error
}

// localPTY adapts the creack/pty *os.File handle to ptySession.
type localPTY struct{ f *os.File }

func (l localPTY) Read(b []byte) (int, error)  { return l.f.Read(b) }
func (l localPTY) Write(b []byte) (int, error) { return l.f.Write(b) }
func (l localPTY) Resize(rows, cols int) error {
	return pty.Setsize(l.f, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
}
func (l localPTY) Close() error { return l.f.Close() }

// startPTY spawns the shell a terminal connection multiplexes: a
// remote-rooted shell over SSH when the session's workspace is backed by
// one (spec.md §4.F — "for SSH workspaces, through the SSH transport"), or
// a local shell process rooted at the workspace directory otherwise.
func startPTY(s *session.Session) (ptySession, func(), error) {
	if shell, ok := s.Workspace.Remote().(workspace.RemoteShell); ok {
		sess, err := shell.Shell(context.Background(), s.Workspace.Root())
		if err != nil {
			return nil, nil, err
		}
		return sess, func() { sess.Close() }, nil
	}

	cmd := exec.Command(defaultShell())
	cmd.Dir = s.Workspace.Root()
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		ptmx.Close()
		cmd.Process.Kill()
		cmd.Wait()
	}
	return localPTY{f: ptmx}, cleanup, nil
}

// HandleTerminal upgrades the request and multiplexes one PTY session
// rooted at s's working directory. Multiple terminals per session are
// allowed (spec.md §4.F): each call spawns its own shell process.
func (b *Bridge) HandleTerminal(w http.ResponseWriter, r *http.Request, s *session.Session) {
	ws, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Error().Err(err).Msg("terminal websocket upgrade failed")
		return
	}
	defer ws.Close()

	sess, cleanup, err := startPTY(s)
	if err != nil {
		ws.WriteJSON(map[string]any{"type": "error", "content": "failed to start terminal: " + err.Error()})
		return
	}
	defer cleanup()

	ws.WriteJSON(map[string]any{"type": "ready"})

	done := make(chan struct{})
	go pumpPTYToSocket(sess, ws, done)
	pumpSocketToPTY(ws, sess)
	<-done
}

// pumpPTYToSocket forwards the shell's output to the client as binary
// frames until the PTY closes (the shell exited or the process was killed).
func pumpPTYToSocket(sess ptySession, ws *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	buf := make([]byte, 4096)
	for {
		n, err := sess.Read(buf)
		if n > 0 {
			if werr := ws.WriteMessage(websocket.BinaryMessage, buf[:n]); werr != nil {
				return
			}
		}
		if err != nil {
			if err != io.EOF {
				ws.WriteJSON(map[string]any{"type": "error", "content": err.Error()})
			}
			return
		}
	}
}

// pumpSocketToPTY forwards client frames to the PTY: binary/text frames
// become stdin bytes; a JSON control frame with a "resize" field resizes
// the PTY instead.
func pumpSocketToPTY(ws *websocket.Conn, sess ptySession) {
	for {
		kind, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		if kind == websocket.TextMessage {
			var ctrl ptyResize
			if json.Unmarshal(data, &ctrl) == nil && len(ctrl.Resize) == 2 {
				sess.Resize(ctrl.Resize[0], ctrl.Resize[1])
				continue
			}
		}
		if _, err := sess.Write(data); err != nil {
			return
		}
	}
}
