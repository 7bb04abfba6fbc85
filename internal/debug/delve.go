package debug

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Pratham2994/OmniCompiler/internal/session"
)

// delveAdapter drives delve's CLI on a binary built without optimization or
// inlining. The literal "(dlv)" prompt terminates a response; pause
// detection uses the "> <func> <file>:<line>" marker delve prints when the
// target stops. Stack and locals are queried before each paused event.
type delveAdapter struct {
	h       *session.DebugHandle
	workdir string
	initial []session.Breakpoint
	timeout time.Duration

	sink *eventSink

	writeMu sync.Mutex
	slot    commandSlot
	buffer  []string
	bufMu   sync.Mutex
	bps     *breakpointRegistry

	stateMu      sync.Mutex
	paused       bool
	pendingPause string
}

var (
	dlvPauseRe   = regexp.MustCompile(`^>\s+(\S+?)(?:\(\))?\s+(\S+):(\d+)`)
	dlvBreakRe   = regexp.MustCompile(`Breakpoint (\d+) set at`)
	dlvStackTop  = regexp.MustCompile(`^\s*\d+\s+0x[0-9a-fA-F]+\s+in\s+(\S+)`)
	dlvStackAt   = regexp.MustCompile(`^\s*at\s+(\S+):(\d+)`)
	dlvLocalRe   = regexp.MustCompile(`^([\w.]+)\s=\s(.*)$`)
	dlvExitedRe  = regexp.MustCompile(`Process \d+ has exited with status (-?\d+)`)
	dlvRunningRe = regexp.MustCompile(`^Process restarted`)
)

func newDelveAdapter(s *session.Session, timeout CommandTimeout) *delveAdapter {
	return &delveAdapter{
		h:       s.Debug,
		workdir: s.Workdir,
		initial: s.Breakpoints,
		timeout: time.Duration(timeout),
		sink:    newEventSink(64),
		bps:     newBreakpointRegistry(s.Workdir),
	}
}

func (a *delveAdapter) Events() <-chan Event { return a.sink.events() }

func (a *delveAdapter) Start(ctx context.Context) error {
	go a.pumpStdout()
	go a.pumpStderr()

	for _, bp := range a.initial {
		if _, err := a.AddBreakpoint(ctx, bp.File, bp.Line); err != nil {
			a.sink.output("stderr", fmt.Sprintf("failed to set breakpoint %s:%d: %v\n", bp.File, bp.Line, err))
		}
	}

	// The target is stopped at entry until the first continue.
	if _, err := a.send(ctx, "continue", false); err != nil {
		return fmt.Errorf("failed to start debug target: %w", err)
	}
	return nil
}

func (a *delveAdapter) Continue(ctx context.Context) error { return a.exec(ctx, "continue") }
func (a *delveAdapter) Next(ctx context.Context) error     { return a.exec(ctx, "next") }
func (a *delveAdapter) StepIn(ctx context.Context) error   { return a.exec(ctx, "step") }
func (a *delveAdapter) StepOut(ctx context.Context) error  { return a.exec(ctx, "stepout") }

func (a *delveAdapter) exec(ctx context.Context, cmd string) error {
	a.setPaused(false)
	_, err := a.send(ctx, cmd, false)
	return err
}

func (a *delveAdapter) AddBreakpoint(ctx context.Context, file string, line int) (string, error) {
	loc := CanonicalPath(a.workdir, file)
	resp, err := a.send(ctx, fmt.Sprintf("break %s:%d", loc, line), true)
	if err != nil {
		return "", err
	}
	m := dlvBreakRe.FindStringSubmatch(resp)
	if m == nil {
		return "", fmt.Errorf("breakpoint rejected at %s:%d", loc, line)
	}
	a.bps.put(file, line, m[1])
	return m[1], nil
}

func (a *delveAdapter) RemoveBreakpoint(ctx context.Context, file string, line int, id string) (string, error) {
	if id == "" {
		var ok bool
		if id, ok = a.bps.lookup(file, line); !ok {
			return "", fmt.Errorf("breakpoint id not found")
		}
	}
	if _, err := a.send(ctx, "clear "+id, true); err != nil {
		return "", err
	}
	a.bps.removeByID(id)
	return id, nil
}

func (a *delveAdapter) Evaluate(ctx context.Context, expr string) (string, error) {
	if !a.isPaused() {
		return "", ErrNotPaused
	}
	resp, err := a.send(ctx, "print "+expr, true)
	if err != nil {
		return "", err
	}
	resp = strings.TrimSpace(resp)
	if strings.HasPrefix(resp, "Command failed") || strings.HasPrefix(resp, "could not") {
		return "", fmt.Errorf("evaluate failed")
	}
	return resp, nil
}

func (a *delveAdapter) SendStdin(string) error {
	// The delve CLI offers no channel to the target's stdin.
	return nil
}

func (a *delveAdapter) Stop() {
	_, _ = a.send(context.Background(), "quit", false)
}

func (a *delveAdapter) send(ctx context.Context, cmd string, expect bool) (string, error) {
	a.writeMu.Lock()
	var ch chan cmdResult
	if expect {
		a.bufMu.Lock()
		a.buffer = nil
		a.bufMu.Unlock()
		ch = a.slot.arm()
	}
	_, err := io.WriteString(a.h.Stdin, cmd+"\n")
	a.writeMu.Unlock()
	if err != nil {
		if ch != nil {
			a.slot.disarm(ch)
		}
		return "", fmt.Errorf("dlv stdin closed: %w", err)
	}
	if !expect {
		return "", nil
	}
	return a.slot.await(ctx, ch, a.timeout)
}

func (a *delveAdapter) pumpStdout() {
	isPrompt := func(s string) bool { return strings.HasSuffix(s, "(dlv)") }
	pumpPromptLines(a.h.Stdout, isPrompt,
		a.handleLine,
		func() {
			a.slot.fail(fmt.Errorf("dlv stdout closed"))
			a.sink.terminate("")
		})
}

func (a *delveAdapter) handleLine(line string, prompt bool) {
	if prompt {
		if a.slot.armed() {
			a.bufMu.Lock()
			resp := strings.Join(a.buffer, "\n")
			a.buffer = nil
			a.bufMu.Unlock()
			a.slot.fulfill(resp)
			return
		}
		if pending := a.takePendingPause(); pending != "" {
			go a.handleStop(pending)
		}
		return
	}

	if a.slot.armed() {
		a.bufMu.Lock()
		a.buffer = append(a.buffer, line)
		a.bufMu.Unlock()
		return
	}

	switch {
	case dlvExitedRe.MatchString(line):
		a.sink.terminate("exited")

	case dlvPauseRe.MatchString(line):
		a.setPendingPause(line)

	case dlvRunningRe.MatchString(line):
		// Informational.

	default:
		a.sink.output("stdout", line+"\n")
	}
}

func (a *delveAdapter) handleStop(marker string) {
	top := Frame{}
	if m := dlvPauseRe.FindStringSubmatch(marker); m != nil {
		top.Function = strings.TrimSuffix(m[1], "()")
		top.File = m[2]
		top.Line, _ = strconv.Atoi(m[3])
	}

	stackResp, _ := a.send(context.Background(), "stack", true)
	localsResp, _ := a.send(context.Background(), "locals", true)

	stack := parseDelveStack(stackResp)
	locals := parseDelveLocals(localsResp)

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

// parseDelveStack pairs "N 0x… in func" lines with their "at file:line"
// continuation.
func parseDelveStack(resp string) []Frame {
	var frames []Frame
	var current *Frame
	for _, line := range strings.Split(resp, "\n") {
		if m := dlvStackTop.FindStringSubmatch(line); m != nil {
			frames = append(frames, Frame{Function: m[1]})
			current = &frames[len(frames)-1]
			continue
		}
		if m := dlvStackAt.FindStringSubmatch(line); m != nil && current != nil {
			current.File = m[1]
			current.Line, _ = strconv.Atoi(m[2])
			current = nil
		}
	}
	return frames
}

func parseDelveLocals(resp string) map[string]string {
	locals := make(map[string]string)
	for _, line := range strings.Split(resp, "\n") {
		if m := dlvLocalRe.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			locals[m[1]] = m[2]
		}
	}
	return locals
}

func (a *delveAdapter) pumpStderr() {
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

func (a *delveAdapter) setPaused(v bool) {
	a.stateMu.Lock()
	a.paused = v
	a.stateMu.Unlock()
}

func (a *delveAdapter) isPaused() bool {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.paused
}

func (a *delveAdapter) setPendingPause(marker string) {
	a.stateMu.Lock()
	a.pendingPause = marker
	a.stateMu.Unlock()
}

func (a *delveAdapter) takePendingPause() string {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	p := a.pendingPause
	a.pendingPause = ""
	return p
}
