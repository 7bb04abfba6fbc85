package debug

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/Pratham2994/OmniCompiler/internal/session"
)

// gdbAdapter drives gdb in MI mode over the backend's stdio. MI result
// records fulfill the single in-flight command future; console/target
// stream records become program output; *stopped records trigger stack and
// locals collection before a paused event is emitted. When the launcher
// could hand the inferior a dedicated pty, its master side is pumped in
// parallel for program I/O.
type gdbAdapter struct {
	h       *session.DebugHandle
	workdir string
	initial []session.Breakpoint
	timeout time.Duration

	sink *eventSink

	writeMu sync.Mutex
	slot    commandSlot
	bps     *breakpointRegistry

	stateMu sync.Mutex
	paused  bool
}

func newGDBAdapter(s *session.Session, timeout CommandTimeout) *gdbAdapter {
	return &gdbAdapter{
		h:       s.Debug,
		workdir: s.Workdir,
		initial: s.Breakpoints,
		timeout: time.Duration(timeout),
		sink:    newEventSink(64),
		bps:     newBreakpointRegistry(s.Workdir),
	}
}

func (a *gdbAdapter) Events() <-chan Event { return a.sink.events() }

func (a *gdbAdapter) Start(ctx context.Context) error {
	go a.pumpStdout()
	go a.pumpStderr()
	if a.h.PTY != nil {
		go a.pumpInferiorTTY()
	}

	for _, bp := range a.initial {
		if _, err := a.AddBreakpoint(ctx, bp.File, bp.Line); err != nil {
			a.sink.output("stderr", fmt.Sprintf("failed to set breakpoint %s:%d: %v\n", bp.File, bp.Line, err))
		}
	}

	if _, err := a.send(ctx, "-exec-run", true); err != nil {
		return fmt.Errorf("failed to start debug target: %w", err)
	}
	return nil
}

func (a *gdbAdapter) Continue(ctx context.Context) error { return a.exec(ctx, "-exec-continue") }
func (a *gdbAdapter) Next(ctx context.Context) error     { return a.exec(ctx, "-exec-next") }
func (a *gdbAdapter) StepIn(ctx context.Context) error   { return a.exec(ctx, "-exec-step") }
func (a *gdbAdapter) StepOut(ctx context.Context) error  { return a.exec(ctx, "-exec-finish") }

func (a *gdbAdapter) exec(ctx context.Context, cmd string) error {
	a.setPaused(false)
	_, err := a.send(ctx, cmd, true)
	return err
}

func (a *gdbAdapter) AddBreakpoint(ctx context.Context, file string, line int) (string, error) {
	loc := CanonicalPath(a.workdir, file)
	resp, err := a.send(ctx, fmt.Sprintf("-break-insert %s:%d", loc, line), true)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(resp, "^error") {
		return "", fmt.Errorf("breakpoint rejected at %s:%d", loc, line)
	}
	id := miBreakID(resp)
	if id == "" {
		return "", fmt.Errorf("no breakpoint number in response")
	}
	a.bps.put(file, line, id)
	return id, nil
}

func (a *gdbAdapter) RemoveBreakpoint(ctx context.Context, file string, line int, id string) (string, error) {
	if id == "" {
		var ok bool
		if id, ok = a.bps.lookup(file, line); !ok {
			return "", fmt.Errorf("breakpoint id not found")
		}
	}
	if _, err := a.send(ctx, "-break-delete "+id, true); err != nil {
		return "", err
	}
	a.bps.removeByID(id)
	return id, nil
}

func (a *gdbAdapter) Evaluate(ctx context.Context, expr string) (string, error) {
	if !a.isPaused() {
		return "", ErrNotPaused
	}
	resp, err := a.send(ctx, fmt.Sprintf("-data-evaluate-expression %q", expr), true)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(resp, "^done") {
		return "", fmt.Errorf("evaluate failed")
	}
	if v, ok := miValue(resp); ok {
		return v, nil
	}
	return "", fmt.Errorf("evaluate failed")
}

func (a *gdbAdapter) SendStdin(data string) error {
	if a.h.PTY == nil {
		// Without a pty the container boundary hides the inferior's stdin.
		return nil
	}
	_, err := a.h.PTY.WriteString(data)
	return err
}

func (a *gdbAdapter) Stop() {
	_, _ = a.send(context.Background(), "-gdb-exit", false)
}

// send writes one MI command under the write lock, optionally arming the
// single-slot response future the stdout pump fulfills on ^done/^running/
// ^error.
func (a *gdbAdapter) send(ctx context.Context, cmd string, expect bool) (string, error) {
	a.writeMu.Lock()
	var ch chan cmdResult
	if expect {
		ch = a.slot.arm()
	}
	_, err := io.WriteString(a.h.Stdin, cmd+"\n")
	a.writeMu.Unlock()
	if err != nil {
		if ch != nil {
			a.slot.disarm(ch)
		}
		return "", fmt.Errorf("gdb stdin closed: %w", err)
	}
	if !expect {
		return "", nil
	}
	return a.slot.await(ctx, ch, a.timeout)
}

func (a *gdbAdapter) pumpStdout() {
	r := bufio.NewReader(a.h.Stdout)
	for {
		raw, err := r.ReadString('\n')
		line := strings.TrimSpace(raw)
		if line != "" && line != "(gdb)" {
			a.handleLine(line)
		}
		if err != nil {
			a.slot.fail(fmt.Errorf("gdb stdout closed"))
			a.sink.terminate("")
			return
		}
	}
}

func (a *gdbAdapter) handleLine(line string) {
	switch {
	case strings.HasPrefix(line, "^done"),
		strings.HasPrefix(line, "^running"),
		strings.HasPrefix(line, "^error"):
		a.slot.fulfill(line)

	case strings.HasPrefix(line, "~"), strings.HasPrefix(line, "@"):
		a.sink.output("stdout", miUnquote(line[1:]))

	case strings.HasPrefix(line, "&"):
		a.sink.output("stderr", miUnquote(line[1:]))

	case strings.HasPrefix(line, "*stopped"):
		if strings.Contains(line, "exited") {
			a.sink.terminate("exited")
			return
		}
		go a.handleStop(line)

	case strings.HasPrefix(line, "*running"):
		// Suppressed: the client already saw the command acknowledged.

	case strings.Contains(line, "exited-normally"):
		a.sink.terminate("exited")
	}
}

// handleStop collects the stack and locals before emitting a single paused
// event. It runs off the pump goroutine because it issues further MI
// commands whose responses the pump must keep delivering.
func (a *gdbAdapter) handleStop(stopLine string) {
	top := miStopFrame(stopLine)

	stackResp, _ := a.send(context.Background(), "-stack-list-frames", true)
	localsResp, _ := a.send(context.Background(), "-stack-list-variables --all-values", true)

	stack := miStackFrames(stackResp)
	locals := miLocals(localsResp)

	if len(stack) > 0 {
		if top.File == "" {
			top.File = stack[0].File
		}
		if top.Line == 0 {
			top.Line = stack[0].Line
		}
		if top.Function == "" {
			top.Function = stack[0].Function
		}
	}

	a.setPaused(true)
	a.sink.emit(Event{Kind: EventPaused, Paused: &Paused{
		File:     top.File,
		Line:     top.Line,
		Function: top.Function,
		Stack:    stack,
		Locals:   locals,
	}})
}

func (a *gdbAdapter) pumpStderr() {
	r := bufio.NewReader(a.h.Stderr)
	for {
		raw, err := r.ReadString('\n')
		if raw != "" {
			a.sink.output("stderr", raw)
		}
		if err != nil {
			return
		}
	}
}

// pumpInferiorTTY forwards program output read from the pty master. Short
// reads without a trailing newline look like prompts and raise await_input.
func (a *gdbAdapter) pumpInferiorTTY() {
	buf := make([]byte, 1024)
	for {
		n, err := a.h.PTY.Read(buf)
		if n > 0 {
			text := string(buf[:n])
			a.sink.output("stdout", text)
			if !strings.HasSuffix(text, "\n") {
				a.sink.emit(Event{Kind: EventAwaitInput})
			}
		}
		if err != nil {
			return
		}
	}
}

func (a *gdbAdapter) setPaused(v bool) {
	a.stateMu.Lock()
	a.paused = v
	a.stateMu.Unlock()
}

func (a *gdbAdapter) isPaused() bool {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.paused
}
