package supervisor

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/Pratham2994/OmniCompiler/internal/debug"
	"github.com/Pratham2994/OmniCompiler/internal/session"
)

// fakeDebugBackend emulates the line-JSON debugger shim behind a
// DebugHandle, so the full debug supervision loop runs without a sandbox.
type fakeDebugBackend struct {
	in     *io.PipeReader
	out    *io.PipeWriter
	waitCh chan error
}

func (b *fakeDebugBackend) emit(event string, body any) {
	raw, _ := json.Marshal(map[string]any{"event": event, "body": body})
	_, _ = b.out.Write(append(raw, '\n'))
}

func (b *fakeDebugBackend) serve() {
	// Initial stop on the first line, as the shim does without breakpoints.
	b.emit("stopped", map[string]any{
		"file": "/work/m.py", "line": 1,
		"locals": map[string]string{"i": "1"},
		"stack":  []map[string]any{{"file": "/work/m.py", "line": 1, "func": "<module>"}},
	})

	scanner := bufio.NewScanner(b.in)
	for scanner.Scan() {
		var cmd struct {
			Type string `json:"type"`
			Expr string `json:"expr"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &cmd); err != nil {
			continue
		}
		switch cmd.Type {
		case "set_breakpoints":
			b.emit("breakpoints_set", map[string]any{"ok": true})
		case "evaluate":
			b.emit("evaluate_result", map[string]any{"expr": cmd.Expr, "value": "1"})
		case "continue":
			b.emit("stopped", map[string]any{
				"file": "m.py", "line": 5,
				"locals": map[string]string{"i": "2"},
				"stack":  []map[string]any{{"file": "m.py", "line": 5, "func": "<module>"}},
			})
		case "stop":
			b.emit("terminated", map[string]any{})
			b.waitCh <- nil
			return
		}
	}
}

func newDebugFixture(t *testing.T, sv *Supervisor) (*session.Session, *fakeConn) {
	t.Helper()
	cmdR, cmdW := io.Pipe()
	evR, evW := io.Pipe()
	errR, errW := io.Pipe()
	t.Cleanup(func() {
		cmdW.Close()
		evW.Close()
		errW.Close()
	})

	backend := &fakeDebugBackend{in: cmdR, out: evW, waitCh: make(chan error, 1)}
	go backend.serve()

	sess := sv.Registry.Create(&session.Session{
		Lang:    session.LangPython,
		Entry:   "m.py",
		Mode:    session.ModeDebug,
		State:   session.StateDebugReady,
		Workdir: t.TempDir(),
		Debug: &session.DebugHandle{
			Stdin:  cmdW,
			Stdout: evR,
			Stderr: errR,
			WaitCh: backend.waitCh,
		},
	})

	conn := newFakeConn()
	go sv.Attach(context.Background(), sess.ID, conn)
	return sess, conn
}

func TestDebugSessionLifecycle(t *testing.T) {
	sv := testSupervisor(30 * time.Second)
	_, conn := newDebugFixture(t, sv)

	conn.waitFor(t, "breakpoints synced", 5*time.Second, func(f Frame) bool {
		if !frameType(f, "debug_event") || f["event"] != "breakpoints" {
			return false
		}
		payload, ok := f["payload"].(Frame)
		return ok && payload["synced"] == true
	})
	conn.waitFor(t, "status running", 5*time.Second, func(f Frame) bool {
		return frameType(f, "status") && f["phase"] == "running"
	})

	paused := conn.waitFor(t, "initial paused", 5*time.Second, func(f Frame) bool {
		return frameType(f, "debug_event") && f["event"] == "paused"
	})
	if paused["payload"] == nil {
		t.Fatal("paused frame missing payload")
	}

	// Evaluate while paused.
	conn.inbox <- ClientMessage{Type: "debug_cmd", Command: "evaluate", Expr: "i"}
	conn.waitFor(t, "evaluate result", 5*time.Second, func(f Frame) bool {
		if !frameType(f, "debug_event") || f["event"] != "evaluate_result" {
			return false
		}
		payload, ok := f["payload"].(Frame)
		return ok && payload["value"] == "1"
	})

	// Breakpoint round trip acknowledges both mutations.
	conn.inbox <- ClientMessage{Type: "debug_cmd", Command: "add_breakpoint", File: "/work/m.py", Line: 10}
	conn.waitFor(t, "breakpoint added", 5*time.Second, func(f Frame) bool {
		if !frameType(f, "debug_event") || f["event"] != "breakpoints" {
			return false
		}
		payload, ok := f["payload"].(Frame)
		if !ok {
			return false
		}
		_, added := payload["added"]
		return added
	})
	conn.inbox <- ClientMessage{Type: "debug_cmd", Command: "remove_breakpoint", File: "m.py", Line: 10}
	conn.waitFor(t, "breakpoint removed", 5*time.Second, func(f Frame) bool {
		if !frameType(f, "debug_event") || f["event"] != "breakpoints" {
			return false
		}
		payload, ok := f["payload"].(Frame)
		if !ok {
			return false
		}
		_, removed := payload["removed"]
		return removed
	})

	// Continue pauses again at the next stop.
	conn.inbox <- ClientMessage{Type: "debug_cmd", Command: "continue"}
	conn.waitFor(t, "second paused", 5*time.Second, func(f Frame) bool {
		if !frameType(f, "debug_event") || f["event"] != "paused" {
			return false
		}
		p, ok := f["payload"].(*debug.Paused)
		return ok && p.Line == 5
	})

	// Stop tears everything down with a single terminal frame.
	conn.inbox <- ClientMessage{Type: "debug_cmd", Command: "stop"}
	conn.waitFor(t, "exit frame", 10*time.Second, func(f Frame) bool {
		return frameType(f, "exit")
	})

	exits := 0
	for _, f := range conn.snapshot() {
		if frameType(f, "exit") {
			exits++
		}
	}
	if exits != 1 {
		t.Errorf("exit frames = %d, want 1", exits)
	}
}

func TestDebugUnknownCommandReportsError(t *testing.T) {
	sv := testSupervisor(30 * time.Second)
	_, conn := newDebugFixture(t, sv)

	conn.waitFor(t, "initial paused", 5*time.Second, func(f Frame) bool {
		return frameType(f, "debug_event") && f["event"] == "paused"
	})

	// An unknown debug command is answered with an err frame and the
	// session stays alive until stop.
	conn.inbox <- ClientMessage{Type: "debug_cmd", Command: "warp"}
	conn.waitFor(t, "unknown cmd err", 5*time.Second, func(f Frame) bool {
		return frameType(f, "err")
	})

	conn.inbox <- ClientMessage{Type: "debug_cmd", Command: "stop"}
	conn.waitFor(t, "exit", 10*time.Second, func(f Frame) bool { return frameType(f, "exit") })
}
