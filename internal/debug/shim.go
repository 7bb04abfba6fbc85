package debug

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Pratham2994/OmniCompiler/internal/session"
)

// shimAdapter speaks the line-JSON protocol of the in-sandbox debugger
// shims (python's bdb shim and the JavaScript inspector shim): one command
// object per line in, one event object per line out. The shims take a bulk
// set_breakpoints replace, so the adapter keeps the desired set and
// resyncs it on every mutation, acknowledging only after the shim reports
// breakpoints_set. Program stdout is whatever the child prints that does
// not parse as an event line.
type shimAdapter struct {
	h       *session.DebugHandle
	workdir string
	initial []session.Breakpoint
	timeout time.Duration

	sink *eventSink

	writeMu sync.Mutex
	bpAck   commandSlot
	evalAck commandSlot

	desiredMu sync.Mutex
	desired   map[string]session.Breakpoint
	bps       *breakpointRegistry

	stateMu sync.Mutex
	paused  bool
}

type shimCommand struct {
	Type        string               `json:"type"`
	Breakpoints []session.Breakpoint `json:"breakpoints,omitempty"`
	Expr        string               `json:"expr,omitempty"`
	Data        string               `json:"data,omitempty"`
}

type shimEvent struct {
	Event string          `json:"event"`
	Body  json.RawMessage `json:"body"`
}

type shimStopBody struct {
	File      string            `json:"file"`
	Line      int               `json:"line"`
	Exception string            `json:"exception,omitempty"`
	Message   string            `json:"message,omitempty"`
	Locals    map[string]string `json:"locals"`
	Stack     []struct {
		File string `json:"file"`
		Line int    `json:"line"`
		Func string `json:"func"`
	} `json:"stack"`
}

type shimEvalBody struct {
	Expr  string `json:"expr"`
	Value string `json:"value"`
	Error string `json:"error"`
}

type shimOutputBody struct {
	Stream string `json:"stream"`
	Data   string `json:"data"`
	Text   string `json:"text"`
}

type shimAwaitBody struct {
	Prompt string `json:"prompt"`
}

func newShimAdapter(s *session.Session, timeout CommandTimeout) *shimAdapter {
	a := &shimAdapter{
		h:       s.Debug,
		workdir: s.Workdir,
		initial: s.Breakpoints,
		timeout: time.Duration(timeout),
		sink:    newEventSink(64),
		desired: make(map[string]session.Breakpoint),
		bps:     newBreakpointRegistry(s.Workdir),
	}
	// Initial breakpoints were applied inside the shim at spawn time via
	// the environment; mirror them in the registry.
	for _, bp := range s.Breakpoints {
		key := a.bps.key(bp.File, bp.Line)
		a.desired[key] = bp
		a.bps.put(bp.File, bp.Line, key)
	}
	return a
}

func (a *shimAdapter) Events() <-chan Event { return a.sink.events() }

func (a *shimAdapter) Start(ctx context.Context) error {
	go a.pumpStdout()
	go a.pumpStderr()
	// The shim runs the target on its own; with no initial breakpoints it
	// stops on the first user line.
	return nil
}

func (a *shimAdapter) Continue(ctx context.Context) error { return a.exec(ctx, "continue") }
func (a *shimAdapter) Next(ctx context.Context) error     { return a.exec(ctx, "step_over") }
func (a *shimAdapter) StepIn(ctx context.Context) error   { return a.exec(ctx, "step_in") }
func (a *shimAdapter) StepOut(ctx context.Context) error  { return a.exec(ctx, "step_out") }

func (a *shimAdapter) exec(ctx context.Context, cmd string) error {
	a.setPaused(false)
	return a.write(shimCommand{Type: cmd})
}

func (a *shimAdapter) AddBreakpoint(ctx context.Context, file string, line int) (string, error) {
	key := a.bps.key(file, line)
	a.desiredMu.Lock()
	a.desired[key] = session.Breakpoint{File: CanonicalPath(a.workdir, file), Line: line}
	a.desiredMu.Unlock()
	if err := a.syncBreakpoints(ctx); err != nil {
		return "", err
	}
	a.bps.put(file, line, key)
	return key, nil
}

func (a *shimAdapter) RemoveBreakpoint(ctx context.Context, file string, line int, id string) (string, error) {
	key := a.bps.key(file, line)
	if id != "" {
		key = id
	}
	a.desiredMu.Lock()
	_, existed := a.desired[key]
	delete(a.desired, key)
	a.desiredMu.Unlock()
	if !existed {
		return "", fmt.Errorf("breakpoint id not found")
	}
	if err := a.syncBreakpoints(ctx); err != nil {
		return "", err
	}
	a.bps.removeByID(key)
	return key, nil
}

// syncBreakpoints pushes the full desired set and waits for the shim's
// acknowledgement.
func (a *shimAdapter) syncBreakpoints(ctx context.Context) error {
	a.desiredMu.Lock()
	list := make([]session.Breakpoint, 0, len(a.desired))
	for _, bp := range a.desired {
		list = append(list, bp)
	}
	a.desiredMu.Unlock()

	ch := a.bpAck.arm()
	if err := a.write(shimCommand{Type: "set_breakpoints", Breakpoints: list}); err != nil {
		a.bpAck.disarm(ch)
		return err
	}
	_, err := a.bpAck.await(ctx, ch, a.timeout)
	return err
}

func (a *shimAdapter) Evaluate(ctx context.Context, expr string) (string, error) {
	if !a.isPaused() {
		return "", ErrNotPaused
	}
	ch := a.evalAck.arm()
	if err := a.write(shimCommand{Type: "evaluate", Expr: expr}); err != nil {
		a.evalAck.disarm(ch)
		return "", err
	}
	return a.evalAck.await(ctx, ch, a.timeout)
}

func (a *shimAdapter) SendStdin(data string) error {
	return a.write(shimCommand{Type: "stdin", Data: data})
}

func (a *shimAdapter) Stop() {
	_ = a.write(shimCommand{Type: "stop"})
}

func (a *shimAdapter) write(cmd shimCommand) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	if _, err := a.h.Stdin.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("debugger stdin closed: %w", err)
	}
	return nil
}

func (a *shimAdapter) pumpStdout() {
	pumpPromptLines(a.h.Stdout,
		func(string) bool { return false },
		func(line string, _ bool) { a.handleLine(line) },
		func() {
			a.bpAck.fail(fmt.Errorf("debugger stdout closed"))
			a.evalAck.fail(fmt.Errorf("debugger stdout closed"))
			a.sink.terminate("")
		})
}

func (a *shimAdapter) handleLine(line string) {
	var ev shimEvent
	if err := json.Unmarshal([]byte(line), &ev); err != nil || ev.Event == "" {
		// Anything that is not an event line is the program printing
		// directly to stdout.
		a.sink.output("stdout", line+"\n")
		return
	}

	switch ev.Event {
	case "stopped":
		var body shimStopBody
		_ = json.Unmarshal(ev.Body, &body)
		a.setPaused(true)
		a.sink.emit(Event{Kind: EventPaused, Paused: a.pausedFromBody(&body)})

	case "exception":
		var body shimStopBody
		_ = json.Unmarshal(ev.Body, &body)
		a.setPaused(true)
		msg := body.Exception
		if msg == "" {
			msg = body.Message
		}
		a.sink.emit(Event{Kind: EventException, Exception: &Exception{
			Message: msg,
			File:    CanonicalPath(a.workdir, body.File),
			Line:    body.Line,
		}})

	case "evaluate_result":
		var body shimEvalBody
		_ = json.Unmarshal(ev.Body, &body)
		if body.Error != "" {
			a.evalAck.fail(fmt.Errorf("%s", body.Error))
		} else {
			a.evalAck.fulfill(body.Value)
		}

	case "breakpoints_set":
		a.bpAck.fulfill("ok")

	case "await_input":
		var body shimAwaitBody
		_ = json.Unmarshal(ev.Body, &body)
		a.sink.emit(Event{Kind: EventAwaitInput, Prompt: body.Prompt})

	case "output":
		var body shimOutputBody
		_ = json.Unmarshal(ev.Body, &body)
		data := body.Data
		if data == "" {
			data = body.Text
		}
		stream := body.Stream
		if stream == "" {
			stream = "stdout"
		}
		a.sink.output(stream, data)

	case "terminated":
		var body struct {
			Reason string `json:"reason"`
		}
		_ = json.Unmarshal(ev.Body, &body)
		a.sink.terminate(body.Reason)
	}
}

func (a *shimAdapter) pausedFromBody(body *shimStopBody) *Paused {
	p := &Paused{
		File:   CanonicalPath(a.workdir, body.File),
		Line:   body.Line,
		Locals: body.Locals,
	}
	if p.Locals == nil {
		p.Locals = map[string]string{}
	}
	for _, f := range body.Stack {
		p.Stack = append(p.Stack, Frame{
			File:     CanonicalPath(a.workdir, f.File),
			Line:     f.Line,
			Function: f.Func,
		})
	}
	if len(p.Stack) > 0 {
		p.Function = p.Stack[0].Function
	}
	if p.Function == "" {
		p.Function = "<module>"
	}
	return p
}

func (a *shimAdapter) pumpStderr() {
	buf := make([]byte, 1024)
	for {
		n, err := a.h.Stderr.Read(buf)
		if n > 0 {
			a.sink.output("stderr", string(buf[:n]))
		}
		if err != nil {
			return
		}
	}
}

func (a *shimAdapter) setPaused(v bool) {
	a.stateMu.Lock()
	a.paused = v
	a.stateMu.Unlock()
}

func (a *shimAdapter) isPaused() bool {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.paused
}
